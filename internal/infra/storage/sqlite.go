package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"order_monitor/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore keeps subscriptions in a local SQLite database.
type SQLiteStore struct {
	db *gorm.DB
}

var _ domain.SubscriptionStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) the database at path. An empty path
// resolves to the per-user config directory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		p, err := getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		path = p
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Subscription{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "OrderMonitor", "data", "monitor.db"), nil
}

// Get retrieves a subscription by order id
func (s *SQLiteStore) Get(ctx context.Context, orderID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.WithContext(ctx).First(&sub, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, domain.NewError(domain.KindPersistence, "get", err)
	}
	return &sub, nil
}

// Put creates or replaces a subscription
func (s *SQLiteStore) Put(ctx context.Context, sub *domain.Subscription) error {
	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return domain.NewError(domain.KindPersistence, "put", err)
	}
	return nil
}

// Update sets the non-nil fields of patch on an existing subscription
func (s *SQLiteStore) Update(ctx context.Context, orderID string, patch domain.SubscriptionPatch) error {
	fields := patchColumns(patch)
	if len(fields) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&domain.Subscription{}).Where("order_id = ?", orderID).Updates(fields)
	if res.Error != nil {
		return domain.NewError(domain.KindPersistence, "update", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NewError(domain.KindPersistence, "update", domain.ErrSubscriptionNotFound)
	}
	return nil
}

// Scan pages through subscriptions ordered by order id. The cursor is the
// last order id of the previous page.
func (s *SQLiteStore) Scan(ctx context.Context, filter domain.ScanFilter, cursor string, limit int) ([]domain.Subscription, string, error) {
	if limit <= 0 {
		limit = 100
	}

	q := s.db.WithContext(ctx).Order("order_id").Limit(limit)
	if cursor != "" {
		q = q.Where("order_id > ?", cursor)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var page []domain.Subscription
	if err := q.Find(&page).Error; err != nil {
		return nil, "", domain.NewError(domain.KindPersistence, "scan", err)
	}

	next := ""
	if len(page) == limit {
		next = page[len(page)-1].OrderID
	}
	return page, next, nil
}

// Delete removes a subscription
func (s *SQLiteStore) Delete(ctx context.Context, orderID string) error {
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&domain.Subscription{}).Error; err != nil {
		return domain.NewError(domain.KindPersistence, "delete", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func patchColumns(p domain.SubscriptionPatch) map[string]any {
	fields := make(map[string]any)
	if p.Status != nil {
		fields["status"] = *p.Status
	}
	if p.LastCheck != nil {
		fields["last_check"] = *p.LastCheck
	}
	if p.CompletionTime != nil {
		fields["completion_time"] = *p.CompletionTime
	}
	if p.LastUpdate != nil {
		fields["last_update"] = *p.LastUpdate
	}
	if p.LastStatus != nil {
		fields["last_status"] = *p.LastStatus
	}
	if p.LastFillPct != nil {
		fields["last_fill_pct"] = p.LastFillPct.String()
	}
	return fields
}
