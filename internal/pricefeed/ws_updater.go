package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"moltapp-trading/internal/domain"
)

// WSConfig configures the streaming price updater.
type WSConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the reconnect backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout bounds each message read.
	ReadTimeout time.Duration
	// WriteTimeout bounds each write.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default updater configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSUpdater keeps a Cache current by subscribing to a streaming price
// endpoint. It reconnects with capped exponential backoff and resubscribes
// after every reconnect.
type WSUpdater struct {
	endpoint string
	mints    []string
	cache    *Cache
	config   WSConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup
}

// priceUpdate is one streamed observation.
type priceUpdate struct {
	Mint     string  `json:"mint"`
	USDPrice float64 `json:"usdPrice"`
}

// NewWSUpdater creates and starts a streaming updater for the given mints.
func NewWSUpdater(ctx context.Context, endpoint string, mints []string, cache *Cache, config *WSConfig, logger *log.Logger) (*WSUpdater, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	u := &WSUpdater{
		endpoint: endpoint,
		mints:    mints,
		cache:    cache,
		config:   cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}

	if err := u.connect(ctx); err != nil {
		return nil, err
	}
	if err := u.subscribe(); err != nil {
		u.closeConn()
		return nil, err
	}

	u.wg.Add(1)
	go u.readLoop()

	u.wg.Add(1)
	go u.pingLoop()

	return u, nil
}

// connect establishes the WebSocket connection.
func (u *WSUpdater) connect(ctx context.Context) error {
	u.connMu.Lock()
	defer u.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	u.conn = conn
	return nil
}

// subscribe sends the mint subscription request on the current connection.
func (u *WSUpdater) subscribe() error {
	u.connMu.Lock()
	defer u.connMu.Unlock()
	if u.conn == nil {
		return fmt.Errorf("not connected")
	}

	req := map[string]interface{}{
		"op":    "subscribe",
		"mints": u.mints,
	}
	u.conn.SetWriteDeadline(time.Now().Add(u.config.WriteTimeout))
	if err := u.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// readLoop reads price updates and reconnects on failure.
func (u *WSUpdater) readLoop() {
	defer u.wg.Done()

	for {
		select {
		case <-u.done:
			return
		default:
		}

		u.connMu.Lock()
		conn := u.conn
		u.connMu.Unlock()
		if conn == nil {
			u.reconnect()
			continue
		}

		conn.SetReadDeadline(time.Now().Add(u.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if u.closed.Load() {
				return
			}
			u.logger.Printf("price stream read: %v, reconnecting", err)
			u.reconnect()
			continue
		}

		var update priceUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			// Subscription acks and heartbeats are not price updates.
			continue
		}
		if update.Mint == "" || update.USDPrice <= 0 {
			continue
		}

		u.cache.Put(&domain.ReferencePrice{
			Mint:       update.Mint,
			USDPrice:   update.USDPrice,
			ObservedAt: time.Now(),
		})
	}
}

// reconnect re-establishes the connection with capped exponential backoff
// and resubscribes.
func (u *WSUpdater) reconnect() {
	u.closeConn()

	delay := u.config.ReconnectDelay
	for {
		select {
		case <-u.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := u.connect(ctx)
		cancel()
		if err == nil {
			if err := u.subscribe(); err == nil {
				u.logger.Printf("price stream reconnected")
				return
			}
			u.closeConn()
		}

		delay *= 2
		if delay > u.config.MaxReconnectDelay {
			delay = u.config.MaxReconnectDelay
		}
	}
}

// pingLoop keeps the connection alive.
func (u *WSUpdater) pingLoop() {
	defer u.wg.Done()

	ticker := time.NewTicker(u.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-u.done:
			return
		case <-ticker.C:
			u.connMu.Lock()
			if u.conn != nil {
				u.conn.SetWriteDeadline(time.Now().Add(u.config.WriteTimeout))
				_ = u.conn.WriteMessage(websocket.PingMessage, nil)
			}
			u.connMu.Unlock()
		}
	}
}

// closeConn closes the underlying connection if open.
func (u *WSUpdater) closeConn() {
	u.connMu.Lock()
	defer u.connMu.Unlock()
	if u.conn != nil {
		u.conn.Close()
		u.conn = nil
	}
}

// Close shuts the updater down and waits for its goroutines.
func (u *WSUpdater) Close() {
	if !u.closed.CompareAndSwap(false, true) {
		return
	}
	close(u.done)
	u.closeConn()
	u.wg.Wait()
}
