package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"order_monitor/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Talos struct {
		Host      string `yaml:"host"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		WSPath    string `yaml:"ws_path"`
		Stream    string `yaml:"stream"`
	} `yaml:"talos"`

	Slack struct {
		BotToken string `yaml:"bot_token"`
		APIURL   string `yaml:"api_url"`
	} `yaml:"slack"`

	Storage StorageConfig `yaml:"storage"`

	Monitor MonitorConfig `yaml:"monitor"`

	Metrics struct {
		Addr string `yaml:"addr"` // empty disables the /metrics listener
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// StorageConfig selects the subscription store backend.
type StorageConfig struct {
	Driver        string `yaml:"driver"` // sqlite, redis
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// MonitorConfig tunes the order monitor loop.
type MonitorConfig struct {
	CacheSize            int             `yaml:"cache_size"`
	MonitoredTTLSec      int             `yaml:"monitored_ttl_sec"`
	BatchIntervalMS      int             `yaml:"batch_interval_ms"`
	BatchSize            int             `yaml:"batch_size"`
	SendTimeoutSec       int             `yaml:"send_timeout_sec"`
	LookupTimeoutSec     int             `yaml:"lookup_timeout_sec"`
	Workers              int             `yaml:"workers"`
	ReconnectIntervalSec int             `yaml:"reconnect_interval_sec"`
	ReceiveTimeoutSec    int             `yaml:"receive_timeout_sec"`
	MetricsIntervalSec   int             `yaml:"metrics_interval_sec"`
	MaxDrainPasses       int             `yaml:"max_drain_passes"`
	ShutdownTimeoutSec   int             `yaml:"shutdown_timeout_sec"`
	MaxAuthFailures      int             `yaml:"max_auth_failures"` // 0 = retry forever
	ScanPageSize         int             `yaml:"scan_page_size"`
	StatusFilter         string          `yaml:"status_filter"`
	FillDeltaPct         decimal.Decimal `yaml:"fill_delta_pct"`  // 0 = rule disabled
	PriceDeltaPct        decimal.Decimal `yaml:"price_delta_pct"` // 0 = rule disabled
	AllowedChannels      []string        `yaml:"allowed_channels"`
}

func (m MonitorConfig) MonitoredTTL() time.Duration {
	return time.Duration(m.MonitoredTTLSec) * time.Second
}

func (m MonitorConfig) BatchInterval() time.Duration {
	return time.Duration(m.BatchIntervalMS) * time.Millisecond
}

func (m MonitorConfig) SendTimeout() time.Duration {
	return time.Duration(m.SendTimeoutSec) * time.Second
}

// LookupTimeout bounds one channel lookup in the realtime path.
func (m MonitorConfig) LookupTimeout() time.Duration {
	return time.Duration(m.LookupTimeoutSec) * time.Second
}

func (m MonitorConfig) ReconnectInterval() time.Duration {
	return time.Duration(m.ReconnectIntervalSec) * time.Second
}

func (m MonitorConfig) ReceiveTimeout() time.Duration {
	return time.Duration(m.ReceiveTimeoutSec) * time.Second
}

func (m MonitorConfig) MetricsInterval() time.Duration {
	return time.Duration(m.MetricsIntervalSec) * time.Second
}

func (m MonitorConfig) ShutdownTimeout() time.Duration {
	return time.Duration(m.ShutdownTimeoutSec) * time.Second
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "order-monitor"
	cfg.Talos.WSPath = "/ws/v1"
	cfg.Talos.Stream = "Order"
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.RedisPrefix = "monitor:order:"
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	cfg.Monitor = MonitorConfig{
		CacheSize:            10000,
		MonitoredTTLSec:      300,
		BatchIntervalMS:      2000,
		BatchSize:            10,
		SendTimeoutSec:       5,
		LookupTimeoutSec:     2,
		Workers:              4,
		ReconnectIntervalSec: 30,
		ReceiveTimeoutSec:    10,
		MetricsIntervalSec:   300,
		MaxDrainPasses:       50,
		ShutdownTimeoutSec:   10,
		ScanPageSize:         100,
	}
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
// A missing file is not an error: defaults and the environment are used.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &domain.ConfigError{Field: path, Err: err}
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.ConfigError{Field: ".env", Err: err}
	}

	// 4원칙: 보안 우선 - 환경 변수 오버라이드 지원
	overrideWithEnv(cfg)

	// 5원칙: 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Talos.Host == "" {
		return &domain.ConfigError{Field: "talos.host", Err: domain.ErrMissingCredentials}
	}
	if strings.Contains(c.Talos.Host, "://") {
		return &domain.ConfigError{Field: "talos.host", Err: fmt.Errorf("host must not include a scheme: %s", c.Talos.Host)}
	}
	if c.Talos.APIKey == "" || c.Talos.APISecret == "" {
		return &domain.ConfigError{Field: "talos.api_key", Err: domain.ErrMissingCredentials}
	}
	if c.Slack.BotToken == "" {
		return &domain.ConfigError{Field: "slack.bot_token", Err: domain.ErrMissingCredentials}
	}

	switch c.Storage.Driver {
	case "sqlite":
	case "redis":
		if c.Storage.RedisAddr == "" {
			return &domain.ConfigError{Field: "storage.redis_addr", Err: errors.New("required for redis driver")}
		}
	default:
		return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unsupported driver %q", c.Storage.Driver)}
	}

	m := c.Monitor
	positives := map[string]int{
		"monitor.cache_size":             m.CacheSize,
		"monitor.monitored_ttl_sec":      m.MonitoredTTLSec,
		"monitor.batch_interval_ms":      m.BatchIntervalMS,
		"monitor.batch_size":             m.BatchSize,
		"monitor.send_timeout_sec":       m.SendTimeoutSec,
		"monitor.lookup_timeout_sec":     m.LookupTimeoutSec,
		"monitor.workers":                m.Workers,
		"monitor.reconnect_interval_sec": m.ReconnectIntervalSec,
		"monitor.receive_timeout_sec":    m.ReceiveTimeoutSec,
		"monitor.metrics_interval_sec":   m.MetricsIntervalSec,
		"monitor.max_drain_passes":       m.MaxDrainPasses,
		"monitor.scan_page_size":         m.ScanPageSize,
	}
	for field, v := range positives {
		if v <= 0 {
			return &domain.ConfigError{Field: field, Err: errors.New("must be positive")}
		}
	}
	if m.MaxAuthFailures < 0 {
		return &domain.ConfigError{Field: "monitor.max_auth_failures", Err: errors.New("must not be negative")}
	}
	if m.FillDeltaPct.IsNegative() || m.PriceDeltaPct.IsNegative() {
		return &domain.ConfigError{Field: "monitor.*_delta_pct", Err: errors.New("must not be negative")}
	}

	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if host := os.Getenv("API_HOST"); host != "" {
		cfg.Talos.Host = host
	}
	if key := os.Getenv("API_KEY"); key != "" {
		cfg.Talos.APIKey = key
	}
	if secret := os.Getenv("API_SECRET"); secret != "" {
		cfg.Talos.APISecret = secret
	}
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		cfg.Slack.BotToken = token
	}
	if driver := os.Getenv("MONITOR_STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if path := os.Getenv("MONITOR_SQLITE_PATH"); path != "" {
		cfg.Storage.SQLitePath = path
	}
	if addr := os.Getenv("MONITOR_REDIS_ADDR"); addr != "" {
		cfg.Storage.RedisAddr = addr
	}
}
