package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSClient handles the WebSocket connection to an upstream price feed and
// hands every frame to a message handler.
type WSClient struct {
	url               string
	args              []string
	reconnectInterval time.Duration
	maxReconnects     int
	heartbeat         time.Duration
	dialer            *websocket.Dialer
	handler           func([]byte)
	logger            *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// Options tunes reconnect behaviour and the subscription frame.
type Options struct {
	Topics            []string      // sent as {"op":"subscribe","args":[...]} after connecting; skipped when empty
	ReconnectInterval time.Duration // pause between reconnect attempts
	MaxReconnects     int           // consecutive failed attempts before Listen gives up; 0 disables reconnecting
	Heartbeat         time.Duration // interval for {"op":"ping"} frames; 0 disables
}

// NewWSClient creates a new WebSocket client with the given URL and logger.
func NewWSClient(url string, opts Options, logger *zap.Logger) *WSClient {
	return &WSClient{
		url:               url,
		args:              opts.Topics,
		reconnectInterval: opts.ReconnectInterval,
		maxReconnects:     opts.MaxReconnects,
		heartbeat:         opts.Heartbeat,
		dialer:            websocket.DefaultDialer,
		logger:            logger,
	}
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// Connect establishes the WebSocket connection and sends the subscription
// frame. It does not start the listener.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("Failed to connect to WebSocket", zap.String("url", c.url), zap.Error(err))
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.logger.Info("WebSocket connected", zap.String("url", c.url))

	if err := c.subscribe(conn); err != nil {
		_ = conn.Close()
		return err
	}
	c.setConn(conn)
	return nil
}

// Listen reads frames until ctx is cancelled or the connection is lost and
// could not be re-established. A nil return means ctx ended.
func (c *WSClient) Listen(ctx context.Context) error {
	// unblock ReadMessage on cancellation
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	if c.heartbeat > 0 {
		pingCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go c.ping(pingCtx)
	}

	for {
		conn := c.current()
		if conn == nil {
			return fmt.Errorf("websocket not connected")
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("WebSocket read error", zap.Error(err))

			if rerr := c.reconnectLoop(ctx); rerr != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("websocket lost: %w", err)
			}
			if ctx.Err() != nil {
				_ = c.Close()
				return nil
			}
			c.logger.Info("Reconnected successfully")
			continue
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// Close closes the current connection, if any.
func (c *WSClient) Close() error {
	conn := c.current()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *WSClient) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *WSClient) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	// Close the old connection if it exists
	if old != nil && old != conn {
		_ = old.Close()
	}
}

// ping is the only writer on the current connection; subscribe frames go
// out before a connection becomes current.
func (c *WSClient) ping(ctx context.Context) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn := c.current()
			if conn == nil {
				continue
			}
			if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				c.logger.Debug("heartbeat failed", zap.Error(err))
			}
		}
	}
}

func (c *WSClient) reconnectLoop(ctx context.Context) error {
	var lastErr error = fmt.Errorf("reconnect disabled")
	for attempt := 1; attempt <= c.maxReconnects; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectInterval):
		}

		if err := c.reconnectAndResubscribe(ctx); err != nil {
			c.logger.Warn("Retrying reconnect...", zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (c *WSClient) reconnectAndResubscribe(ctx context.Context) error {
	newConn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	if err := c.subscribe(newConn); err != nil {
		_ = newConn.Close()
		return err
	}
	c.setConn(newConn)
	return nil
}

func (c *WSClient) subscribe(conn *websocket.Conn) error {
	if len(c.args) == 0 {
		return nil
	}
	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": c.args,
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("websocket subscribe failed: %w", err)
	}
	return nil
}
