// Package dashboardws is a client for the dashboard's live snapshot stream.
package dashboardws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultRetryDelay = 3 * time.Second

// WSClient handles the WebSocket connection to the dashboard and message routing.
type WSClient struct {
	url        string
	handler    func([]byte)
	logger     *zap.Logger
	retryDelay time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSClient creates a new WebSocket client with the given URL and logger.
func NewWSClient(url string, logger *zap.Logger) *WSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSClient{
		url:        url,
		logger:     logger,
		retryDelay: defaultRetryDelay,
	}
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// SetRetryDelay changes the pause between reconnect attempts.
func (c *WSClient) SetRetryDelay(d time.Duration) {
	c.retryDelay = d
}

// Connect establishes the WebSocket connection. It does not start the listener.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("failed to connect to dashboard stream", zap.String("url", c.url), zap.Error(err))
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	c.logger.Info("dashboard stream connected", zap.String("url", c.url))
	return nil
}

// Listen reads messages until ctx is cancelled, reconnecting indefinitely
// after read errors. It always returns a non-nil error.
func (c *WSClient) Listen(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		conn := c.current()
		if conn == nil {
			return errors.New("listen called before connect")
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("dashboard stream read error", zap.Error(err))

			if err := c.reconnect(ctx); err != nil {
				return err
			}
			continue // start listening again with the new connection
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// reconnect retries Connect until it succeeds or ctx is done.
func (c *WSClient) reconnect(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}

		if err := c.Connect(ctx); err != nil {
			c.logger.Warn("retrying reconnect...")
			continue
		}
		if ctx.Err() != nil {
			_ = c.Close()
			return ctx.Err()
		}
		c.logger.Info("reconnected successfully")
		return nil
	}
}

func (c *WSClient) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Close closes the active connection, if any.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
