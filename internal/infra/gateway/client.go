package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Call while the socket is down
var ErrNotConnected = errors.New("gateway not connected")

// EventHandler receives pushed events
type EventHandler func(event string, payload json.RawMessage)

// Client is a request/response websocket client for the messaging gateway
type Client struct {
	url     string
	token   string
	timeout time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	selfID    string
	done      chan struct{}

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan wireMessage

	onEvent EventHandler
}

// NewClient creates a gateway client
func NewClient(url, token string, logger *zap.Logger) *Client {
	return &Client{
		url:     url,
		token:   token,
		timeout: 30 * time.Second,
		logger:  logger.Named("gateway"),
		pending: make(map[string]chan wireMessage),
	}
}

// OnEvent sets the event handler; must be called before Run
func (c *Client) OnEvent(handler EventHandler) {
	c.onEvent = handler
}

// SelfID returns the bot's id reported at connect
func (c *Client) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

// IsConnected reports whether the socket is up
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect dials the gateway and authenticates
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	go c.readLoop(conn, done)

	var res ConnectResult
	if err := c.Call(ctx, MethodConnect, map[string]string{"token": c.token}, &res); err != nil {
		conn.Close()
		return fmt.Errorf("auth: %w", err)
	}

	c.mu.Lock()
	c.connected = true
	c.selfID = res.SelfID
	c.mu.Unlock()

	c.logger.Info("connected", zap.String("url", c.url), zap.String("self", res.SelfID))
	return nil
}

// Done is closed when the current connection ends
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Close closes the socket
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		close(done)
		c.mu.Lock()
		if c.conn == conn {
			c.connected = false
		}
		c.mu.Unlock()
		c.failPending()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug("read loop ended", zap.Error(err))
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("malformed frame", zap.Error(err))
			continue
		}

		switch msg.Type {
		case FrameResponse:
			c.pendingMu.Lock()
			ch, ok := c.pending[msg.ID]
			if ok {
				delete(c.pending, msg.ID)
			}
			c.pendingMu.Unlock()
			if ok {
				ch <- msg
			}
		case FrameEvent:
			if c.onEvent != nil {
				c.onEvent(msg.Event, msg.Payload)
			}
		}
	}
}

// failPending unblocks callers waiting on a dead connection
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Call sends a request and decodes the response payload into out
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	id := uuid.NewString()
	ch := make(chan wireMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	data, err := json.Marshal(wireMessage{Type: FrameRequest, ID: id, Method: method, Params: params})
	if err != nil {
		c.dropPending(id)
		return fmt.Errorf("encode %s: %w", method, err)
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(id)
		return fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: connection closed", method)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if !resp.OK {
			return fmt.Errorf("%s rejected", method)
		}
		if out != nil && len(resp.Payload) > 0 {
			if err := json.Unmarshal(resp.Payload, out); err != nil {
				return fmt.Errorf("decode %s: %w", method, err)
			}
		}
		return nil
	case <-timer.C:
		c.dropPending(id)
		return fmt.Errorf("timeout waiting for %s response", method)
	case <-ctx.Done():
		c.dropPending(id)
		return ctx.Err()
	}
}

func (c *Client) dropPending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// Run keeps the connection up until ctx is cancelled, calling onState on
// every transition
func (c *Client) Run(ctx context.Context, onState func(open bool)) error {
	backoff := time.Second
	for {
		if err := c.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("connect failed", zap.Error(err), zap.Duration("retry_in", backoff))
		} else {
			backoff = time.Second
			if onState != nil {
				onState(true)
			}
			select {
			case <-ctx.Done():
				c.Close()
				if onState != nil {
					onState(false)
				}
				return ctx.Err()
			case <-c.Done():
				c.Close()
				if onState != nil {
					onState(false)
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
