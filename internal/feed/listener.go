// Package feed consumes pool swap notifications over WebSocket and drives
// the engine's swap hooks. It also tracks block height announced by the
// feed, serving as the engine's block clock.
package feed

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"confidential-rebalancer/internal/fhe"
	"confidential-rebalancer/internal/logger"
	"confidential-rebalancer/internal/observability"
)

// Hooks is the engine surface the listener drives.
type Hooks interface {
	OnPreSwap(ctx context.Context, poolID, asset0, asset1 string) error
	OnPostSwap(ctx context.Context, poolID, asset0, asset1 string, realizedDelta0, realizedDelta1 fhe.Handle) error
}

// Config configures listener behavior.
type Config struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// HookTimeout bounds one hook dispatch.
	HookTimeout time.Duration
}

// DefaultConfig returns default listener configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HookTimeout:       30 * time.Second,
	}
}

// Listener connects to a swap notification endpoint and dispatches events.
type Listener struct {
	endpoint string
	config   Config
	hooks    Hooks
	metrics  *observability.Metrics
	log      zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// block is the latest height announced by the feed
	block atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// New creates a listener and connects to the endpoint. Metrics may be nil.
func New(ctx context.Context, endpoint string, hooks Hooks, metrics *observability.Metrics, config *Config) (*Listener, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}

	l := &Listener{
		endpoint: endpoint,
		config:   cfg,
		hooks:    hooks,
		metrics:  metrics,
		log:      logger.GetForComponent("feed"),
		done:     make(chan struct{}),
	}

	if err := l.connect(ctx); err != nil {
		return nil, err
	}

	l.wg.Add(1)
	go l.readLoop()

	l.wg.Add(1)
	go l.pingLoop()

	return l, nil
}

// CurrentBlock returns the latest block height announced by the feed.
// Implements engine.BlockClock.
func (l *Listener) CurrentBlock() uint64 {
	return l.block.Load()
}

// connect establishes the WebSocket connection.
func (l *Listener) connect(ctx context.Context) error {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, l.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	l.conn = conn
	return nil
}

// Close closes the connection and stops the loops.
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil // Already closed
	}

	close(l.done)

	l.connMu.Lock()
	if l.conn != nil {
		l.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		l.conn.Close()
	}
	l.connMu.Unlock()

	l.wg.Wait()
	return nil
}

// readLoop reads messages and dispatches them until closed.
func (l *Listener) readLoop() {
	defer l.wg.Done()

	reconnectDelay := l.config.ReconnectDelay

	for !l.closed.Load() {
		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			select {
			case <-l.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(l.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if l.closed.Load() {
				return
			}

			// Connection error - reconnect with exponential backoff
			if !l.reconnecting.Swap(true) {
				go l.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > l.config.MaxReconnectDelay {
				reconnectDelay = l.config.MaxReconnectDelay
			}

			select {
			case <-l.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = l.config.ReconnectDelay

		l.handleMessage(message)
	}
}

// reconnect attempts to re-establish the connection after delay.
func (l *Listener) reconnect(delay time.Duration) {
	defer l.reconnecting.Store(false)

	if l.closed.Load() {
		return
	}

	select {
	case <-l.done:
		return
	case <-time.After(delay):
	}

	l.connMu.Lock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.connect(ctx); err != nil {
		l.log.Warn().Err(err).Msg("feed reconnect failed, will retry")
		return
	}

	if l.metrics != nil {
		l.metrics.FeedReconnects.Inc()
	}
	l.log.Info().Str("endpoint", l.endpoint).Msg("feed reconnected")
}

// swapMessage is one feed notification. Realized deltas travel as
// hex-encoded ciphertext handles; the feed never carries plaintext amounts.
type swapMessage struct {
	Type   string `json:"type"` // block | pre_swap | post_swap
	Pool   string `json:"pool,omitempty"`
	Asset0 string `json:"asset0,omitempty"`
	Asset1 string `json:"asset1,omitempty"`
	Delta0 string `json:"delta0,omitempty"`
	Delta1 string `json:"delta1,omitempty"`
	Block  uint64 `json:"block"`
}

// handleMessage parses one feed message and dispatches it.
func (l *Listener) handleMessage(message []byte) {
	var msg swapMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		if l.metrics != nil {
			l.metrics.FeedErrors.Inc()
		}
		l.log.Warn().Err(err).Msg("malformed feed message")
		return
	}

	if l.metrics != nil {
		l.metrics.FeedMessages.Inc()
	}
	if msg.Block > l.block.Load() {
		l.block.Store(msg.Block)
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.config.HookTimeout)
	defer cancel()

	switch msg.Type {
	case "block":
		// Height update only, already applied above.
	case "pre_swap":
		if err := l.hooks.OnPreSwap(ctx, msg.Pool, msg.Asset0, msg.Asset1); err != nil {
			l.hookError("pre_swap", msg.Pool, err)
		}
	case "post_swap":
		d0, err := decodeHandle(msg.Delta0)
		if err != nil {
			l.hookError("post_swap", msg.Pool, err)
			return
		}
		d1, err := decodeHandle(msg.Delta1)
		if err != nil {
			l.hookError("post_swap", msg.Pool, err)
			return
		}
		if err := l.hooks.OnPostSwap(ctx, msg.Pool, msg.Asset0, msg.Asset1, d0, d1); err != nil {
			l.hookError("post_swap", msg.Pool, err)
		}
	default:
		l.log.Debug().Str("type", msg.Type).Msg("ignoring unknown feed message type")
	}
}

func (l *Listener) hookError(hook, pool string, err error) {
	if l.metrics != nil {
		l.metrics.FeedErrors.Inc()
	}
	l.log.Error().Err(err).Str("hook", hook).Str("pool", pool).Msg("hook dispatch failed")
}

// decodeHandle parses a hex-encoded ciphertext handle. Empty input decodes
// to the zero-equivalent handle.
func decodeHandle(s string) (fhe.Handle, error) {
	var h fhe.Handle
	if s == "" {
		return h, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode handle: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("handle length %d, want %d", len(b), len(h))
	}
	copy(h[:], b)
	return h, nil
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (l *Listener) pingLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.connMu.Lock()
			if l.conn != nil {
				l.conn.SetWriteDeadline(time.Now().Add(l.config.WriteTimeout))
				if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			l.connMu.Unlock()
		}
	}
}
