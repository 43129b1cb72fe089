// Package wsconn provides a WebSocket client with automatic reconnection,
// built on coder/websocket. Subscription-style consumers register an
// OnMessage handler and re-issue their subscriptions from OnStateChange
// when the connection comes back.
package wsconn

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/fd1az/dexarb/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// MessageHandler receives every inbound message.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler is notified on every state transition. err is non-nil when
// the transition was caused by a failure.
type StateHandler func(state State, err error)

// Config holds WebSocket client configuration.
type Config struct {
	URL  string
	Name string

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxReconnects caps reconnection attempts; 0 means retry forever.
	MaxReconnects  int
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns sensible defaults for a named connection.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// Client is a reconnecting WebSocket client.
type Client struct {
	config Config

	connMu sync.RWMutex
	conn   *websocket.Conn

	stateMu sync.RWMutex
	state   State

	handlerMu    sync.RWMutex
	msgHandler   MessageHandler
	stateHandler StateHandler

	// lifeCtx outlives any single connection; Close cancels it.
	lifeCtx  context.Context
	cancel   context.CancelFunc
	closed   atomic.Bool
	writeMu  sync.Mutex
}

// New creates a client. Handlers must be registered before Connect.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("websocket url required"))
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 1 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 1 << 20
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config:  cfg,
		state:   StateDisconnected,
		lifeCtx: ctx,
		cancel:  cancel,
	}, nil
}

// OnMessage registers the inbound message handler.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlerMu.Lock()
	c.msgHandler = h
	c.handlerMu.Unlock()
}

// OnStateChange registers the state transition handler.
func (c *Client) OnStateChange(h StateHandler) {
	c.handlerMu.Lock()
	c.stateHandler = h
	c.handlerMu.Unlock()
}

// Connect dials the endpoint and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return apperror.New(apperror.CodeWebSocketClosed)
	}

	c.setState(StateConnecting, nil)

	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected, err)
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext(c.config.Name+" dial "+c.config.URL))
	}

	c.setState(StateConnected, nil)

	go c.readLoop()
	if c.config.PingInterval > 0 {
		go c.pingLoop()
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(c.config.MaxMessageSize)

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// Send writes a raw text message.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil || c.State() != StateConnected {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithContext("not connected"))
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError, apperror.WithCause(err))
	}
	return nil
}

// SendJSON marshals v and sends it as a text message.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperror.New(apperror.CodeWebSocketSendError, apperror.WithCause(err))
	}
	return c.Send(ctx, data)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether the connection is usable.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Close tears the connection down permanently. Idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close(websocket.StatusNormalClosure, "")
		c.conn = nil
	}
	c.connMu.Unlock()

	c.setState(StateClosed, nil)
	return nil
}

func (c *Client) readLoop() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.Read(c.lifeCtx)
		if err != nil {
			if c.closed.Load() || c.lifeCtx.Err() != nil {
				return
			}
			go c.reconnect(err)
			return
		}

		c.handlerMu.RLock()
		h := c.msgHandler
		c.handlerMu.RUnlock()
		if h != nil {
			h(c.lifeCtx, data)
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.lifeCtx.Done():
			return
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil || c.State() != StateConnected {
				continue
			}

			ctx, cancel := context.WithTimeout(c.lifeCtx, c.config.PongTimeout)
			err := conn.Ping(ctx)
			cancel()
			if err != nil && !c.closed.Load() && c.lifeCtx.Err() == nil {
				go c.reconnect(err)
				return
			}
		}
	}
}

// reconnect retries with exponential backoff until the dial succeeds, the
// attempt budget runs out, or the client is closed.
func (c *Client) reconnect(cause error) {
	c.setState(StateReconnecting, cause)

	backoff := c.config.InitialBackoff
	for attempt := 1; ; attempt++ {
		if c.config.MaxReconnects > 0 && attempt > c.config.MaxReconnects {
			c.setState(StateDisconnected, cause)
			return
		}

		select {
		case <-c.lifeCtx.Done():
			return
		case <-time.After(backoff):
		}

		dialCtx, cancel := context.WithTimeout(c.lifeCtx, 15*time.Second)
		err := c.dial(dialCtx)
		cancel()
		if err == nil {
			c.setState(StateConnected, nil)
			go c.readLoop()
			if c.config.PingInterval > 0 {
				go c.pingLoop()
			}
			return
		}
		cause = err

		backoff *= 2
		if backoff > c.config.MaxBackoff {
			backoff = c.config.MaxBackoff
		}
	}
}

func (c *Client) setState(state State, err error) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()

	c.handlerMu.RLock()
	h := c.stateHandler
	c.handlerMu.RUnlock()
	if h != nil {
		h(state, err)
	}
}
