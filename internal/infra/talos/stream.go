package talos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"order_monitor/internal/domain"
	"order_monitor/internal/infra"

	"github.com/gorilla/websocket"
)

// Stream is the authenticated order-update websocket.
// Messages are read by a background goroutine and handed out by Receive,
// so a receive timeout never tears down the connection.
type Stream struct {
	host    string
	path    string
	url     string // overridable for testing; defaults to wss://host/path
	signer  *Signer
	metrics *infra.Metrics
	logger  *slog.Logger

	mu      sync.RWMutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	msgs    chan []byte
	done    chan struct{} // closed when the read loop exits
	stop    chan struct{} // closed by Close
	readErr error
	wg      sync.WaitGroup
}

// NewStream creates a stream client for host (no scheme) and path.
func NewStream(host, path string, signer *Signer, metrics *infra.Metrics) *Stream {
	if path == "" {
		path = defaultWSPath
	}
	if metrics == nil {
		metrics = infra.NewMetrics()
	}
	return &Stream{
		host:    host,
		path:    path,
		url:     "wss://" + host + path,
		signer:  signer,
		metrics: metrics,
		logger:  slog.Default().With("module", "talos_stream"),
	}
}

// Connect performs the signed websocket handshake.
func (s *Stream) Connect(ctx context.Context) error {
	if s.IsConnected() {
		return nil
	}
	// Drop a connection whose read loop already died.
	_ = s.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	header := make(http.Header)
	for k, v := range s.signer.GenerateHeaders(http.MethodGet, s.host, s.path, "") {
		header.Set(k, v)
	}

	s.logger.Info("Connecting to stream", slog.String("url", s.url))
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return domain.NewError(domain.KindAuth, "handshake", fmt.Errorf("status %d: %w", resp.StatusCode, err))
		}
		return domain.NewError(domain.KindTransport, "connect", err)
	}

	s.conn = conn
	s.msgs = make(chan []byte, inboxSize)
	s.done = make(chan struct{})
	s.stop = make(chan struct{})
	s.readErr = nil

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	s.wg.Add(2)
	go s.readLoop(conn, s.msgs, s.done, s.stop)
	go s.pingLoop(conn, s.stop)

	s.metrics.IncrementConnections()
	s.logger.Info("Stream connected")
	return nil
}

// Subscribe requests a named stream starting at start.
func (s *Stream) Subscribe(ctx context.Context, topic string, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := subscribeRequest{
		ReqID: time.Now().Unix(),
		Type:  "subscribe",
		Streams: []streamFilter{{
			Name:      topic,
			StartDate: start.UTC().Format(time.RFC3339Nano),
		}},
	}
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := s.threadSafeWrite(websocket.TextMessage, b); err != nil {
		return domain.NewError(domain.KindTransport, "subscribe", err)
	}
	s.logger.Info("Subscribed", slog.String("stream", topic))
	return nil
}

// Receive waits up to timeout for the next message.
func (s *Stream) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	s.mu.RLock()
	msgs, done := s.msgs, s.done
	s.mu.RUnlock()
	if msgs == nil {
		return nil, domain.NewError(domain.KindTransport, "receive", domain.ErrNotConnected)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-msgs:
		return msg, nil
	case <-done:
		// Hand out anything read before the failure first.
		select {
		case msg := <-msgs:
			return msg, nil
		default:
		}
		s.mu.RLock()
		cause := s.readErr
		s.mu.RUnlock()
		return nil, domain.NewError(domain.KindTransport, "receive", fmt.Errorf("%w: %v", domain.ErrConnectionLost, cause))
	case <-timer.C:
		return nil, domain.ErrReceiveTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsConnected reports whether a connection is open and still being read.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Close tears down the connection. It is safe to call when not connected.
func (s *Stream) Close() error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return nil
	}
	close(s.stop)
	s.conn = nil
	s.msgs = nil
	s.mu.Unlock()

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := conn.Close()
	s.wg.Wait()
	s.metrics.DecrementConnections()
	return err
}

func (s *Stream) readLoop(conn *websocket.Conn, msgs chan<- []byte, done chan<- struct{}, stop <-chan struct{}) {
	defer s.wg.Done()
	defer close(done)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			select {
			case <-stop:
			default:
				s.logger.Warn("Stream read failed", slog.Any("error", err))
			}
			return
		}
		select {
		case msgs <- msg:
		case <-stop:
			return
		}
	}
}

func (s *Stream) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					s.logger.Debug("Ping failed", slog.Any("error", err))
				}
				return
			}
		}
	}
}

func (s *Stream) threadSafeWrite(msgType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return domain.ErrNotConnected
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(msgType, data)
}
