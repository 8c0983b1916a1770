package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	domrepo "OTCPulse/internal/domain/repository"
	applogger "OTCPulse/pkg/logger"
)

// Client streams real-market reference prices over WebSocket and pushes
// them into the engine's RealPriceSink. The engine throttles admission
// itself; the client forwards every quote it sees.
type Client struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	sink domrepo.RealPriceSink
	l    *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a reference feed client.
func New(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, sink domrepo.RealPriceSink, l *applogger.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		sink:           sink,
		l:              l,
		stopCh:         make(chan struct{}),
	}
}

// Start connects, subscribes, and runs the read and ping loops until
// Stop. Connection loss triggers reconnect with the configured delay;
// a dead feed is never fatal to the engine, which degrades to
// synthetic pricing on its own.
func (c *Client) Start(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	c.wg.Add(2)
	go c.pingLoop()
	go c.readLoop(ctx)
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	u := c.websocketURL
	if c.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.l.Info("feed connected", applogger.Strings("symbols", c.symbols))
	return nil
}

type quoteMessage struct {
	Type string `json:"type"`
	Data []struct {
		Symbol string  `json:"s"`
		Price  float64 `json:"p"`
	} `json:"data"`
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		_, b, err := conn.ReadMessage()
		if err != nil {
			c.l.Warn("feed read error", applogger.Error(err))
			c.markDisconnected()
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		var m quoteMessage
		if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
			// ignore non-quote frames
			continue
		}
		for _, d := range m.Data {
			if d.Price > 0 {
				c.sink.UpdateRealPrice(d.Symbol, d.Price)
			}
		}
	}
}

func (c *Client) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

// reconnect retries until connected or stopped. Returns false when the
// client is shutting down.
func (c *Client) reconnect(ctx context.Context) bool {
	for {
		select {
		case <-c.stopCh:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(c.reconnectDelay):
		}
		if err := c.connect(ctx); err != nil {
			c.l.Warn("feed reconnect failed", applogger.Error(err))
			continue
		}
		return true
	}
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Stop closes the connection and stops background loops.
func (c *Client) Stop() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.markDisconnected()
	c.wg.Wait()
	return nil
}
