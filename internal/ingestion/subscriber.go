package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
)

// SubscriberConfig configures WebSocket subscriber behavior.
type SubscriberConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing control frames.
	WriteTimeout time.Duration
	// Buffer is the capacity of the events channel.
	Buffer int
}

// DefaultSubscriberConfig returns default subscriber configuration.
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
		Buffer:            256,
	}
}

// Subscriber reads IngestionCompleted JSON frames from a WebSocket feed and
// reconnects with exponential backoff when the connection drops.
type Subscriber struct {
	endpoint string
	config   SubscriberConfig
	logger   *zap.Logger
	metrics  *observability.Metrics

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	events chan domain.IngestionCompleted

	// reconnects counts successful redials, for status reporting.
	reconnects atomic.Int64

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup
}

// NewSubscriber dials endpoint and starts reading. The first dial must
// succeed; later drops are retried until Close.
func NewSubscriber(ctx context.Context, endpoint string, config *SubscriberConfig, logger *zap.Logger, metrics *observability.Metrics) (*Subscriber, error) {
	cfg := DefaultSubscriberConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Subscriber{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger.Named("ingestion").With(zap.String("endpoint", endpoint)),
		metrics:  metrics,
		events:   make(chan domain.IngestionCompleted, cfg.Buffer),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	s.wg.Add(1)
	go s.readLoop()

	// Start ping goroutine
	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

var _ Source = (*Subscriber)(nil)

// Events returns the event stream. It is closed after Close.
func (s *Subscriber) Events() <-chan domain.IngestionCompleted {
	return s.events
}

// Reconnects returns how many times the feed was redialed.
func (s *Subscriber) Reconnects() int64 {
	return s.reconnects.Load()
}

// connect establishes WebSocket connection.
func (s *Subscriber) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

// Close closes the WebSocket connection and the events channel.
func (s *Subscriber) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.events)
	return nil
}

// readLoop reads frames and redials on failure until closed.
func (s *Subscriber) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.redial(&reconnectDelay) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Warn("feed read failed, reconnecting",
				zap.Error(err),
				zap.Duration("delay", reconnectDelay),
			)

			s.connMu.Lock()
			if s.conn == conn {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()
			continue
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		if !s.handleMessage(message) {
			return
		}
	}
}

// redial waits for the current backoff, then dials once. The delay doubles
// up to MaxReconnectDelay after every failed attempt. Returns false when
// the subscriber was closed while waiting.
func (s *Subscriber) redial(delay *time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-time.After(*delay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		s.logger.Warn("reconnect failed", zap.Error(err))
		*delay *= 2
		if *delay > s.config.MaxReconnectDelay {
			*delay = s.config.MaxReconnectDelay
		}
		return true
	}

	// Close raced with the dial.
	if s.closed.Load() {
		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.connMu.Unlock()
		return false
	}

	s.reconnects.Add(1)
	s.logger.Info("feed reconnected")
	return true
}

// handleMessage decodes one frame and forwards it. Malformed frames are
// logged and skipped. Returns false if the subscriber closed while blocked.
func (s *Subscriber) handleMessage(message []byte) bool {
	ev, err := DecodeEvent(message)
	if err != nil {
		s.metrics.RecordIngestionEvent("invalid")
		s.logger.Warn("skipping malformed ingestion event", zap.Error(err), zap.ByteString("frame", truncate(message, 256)))
		return true
	}

	s.metrics.RecordIngestionEvent("received")

	// Block until we can send - never drop events
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (s *Subscriber) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				// Failure surfaces on the next read, which reconnects.
				_ = s.conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.connMu.Unlock()
		}
	}
}

// ErrInvalidEvent is returned for frames that are not a usable event.
var ErrInvalidEvent = errors.New("invalid ingestion event")

// DecodeEvent parses one IngestionCompleted frame. The frame is either the
// bare event object or an envelope {"type": "ingestion_completed", "data": {...}}.
func DecodeEvent(frame []byte) (domain.IngestionCompleted, error) {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return domain.IngestionCompleted{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	payload := frame
	if envelope.Type != "" || len(envelope.Data) > 0 {
		if envelope.Type != "ingestion_completed" {
			return domain.IngestionCompleted{}, fmt.Errorf("%w: unexpected type %q", ErrInvalidEvent, envelope.Type)
		}
		payload = envelope.Data
	}

	var ev domain.IngestionCompleted
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.IngestionCompleted{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ev.ID == "" {
		return domain.IngestionCompleted{}, fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if ev.MarketCount < 0 {
		return domain.IngestionCompleted{}, fmt.Errorf("%w: negative market_count", ErrInvalidEvent)
	}
	return ev, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
