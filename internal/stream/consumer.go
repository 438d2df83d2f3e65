// Package stream consumes the server-pushed guidance event channel for a
// session over a websocket.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/stillpoint/stillpoint/internal/coach"
)

// ErrAlreadySubscribed is returned when a subscription is opened while one
// is still active. At most one subscription exists per consumer.
var ErrAlreadySubscribed = errors.New("event stream already subscribed")

// URLResolver maps a session id to its websocket events endpoint.
type URLResolver func(sessionID string) string

// Consumer holds one long-lived server-push connection. Malformed messages
// are dropped and logged; a connection-level error closes the subscription
// without reconnecting (the service ends the stream at session completion).
type Consumer struct {
	resolve URLResolver
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewConsumer builds a consumer resolving event URLs through resolve.
func NewConsumer(resolve URLResolver) *Consumer {
	return &Consumer{resolve: resolve, dialer: websocket.DefaultDialer}
}

// Subscribe opens the push connection for sessionID and decodes each inbound
// message into a GuidanceEvent passed to onEvent. Decoding and dispatch run
// on a dedicated goroutine until the connection ends.
func (c *Consumer) Subscribe(ctx context.Context, sessionID string, onEvent func(coach.GuidanceEvent)) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadySubscribed
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.resolve(sessionID), nil)
	if err != nil {
		c.mu.Unlock()
		if resp != nil {
			_ = resp.Body.Close()
		}
		return fmt.Errorf("dial event stream: %w", err)
	}
	c.conn = conn
	c.closed = false
	c.mu.Unlock()

	go c.readLoop(conn, sessionID, onEvent)
	return nil
}

// Unsubscribe closes the connection. Safe to call repeatedly or when never
// subscribed.
func (c *Consumer) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.closed = true
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("close event stream: %w", err)
	}
	return nil
}

func (c *Consumer) readLoop(conn *websocket.Conn, sessionID string, onEvent func(coach.GuidanceEvent)) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !c.wasClosed(conn) {
				log.Printf("event stream for session %s ended: %v", sessionID, err)
				c.forget(conn)
			}
			return
		}

		var ev coach.GuidanceEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			log.Printf("dropping malformed event for session %s: %v", sessionID, err)
			continue
		}
		if ev.ID == "" {
			log.Printf("dropping event without id for session %s", sessionID)
			continue
		}
		onEvent(ev)
	}
}

func (c *Consumer) wasClosed(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.conn != conn
}

func (c *Consumer) forget(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		_ = conn.Close()
		c.conn = nil
	}
}
