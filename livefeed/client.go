package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/huntkit/livefeed-sdk-go/livefeed/internal"
)

// Client follows the live feed of one puzzle page.
//
// Frames are handled one at a time in arrival order on a single goroutine, so
// callbacks never run concurrently with each other.
type Client struct {
	cfg        Config
	logger     Logger
	notifier   Notifier
	clock      clockwork.Clock
	session    string
	feed       *Feed
	dispatcher *Dispatcher

	onError func(error)
	onState func(StateEvent)

	mu          sync.Mutex
	state       ConnectionState
	conn        *internal.Conn
	writeCh     chan Request
	cancel      context.CancelFunc
	lastUpdated time.Time
}

// NewClient constructs a client with provided config.
// Use DefaultConfig() as a starting point and modify as needed.
func NewClient(cfg Config) *Client {
	feed := NewFeed()
	return &Client{
		cfg:        cfg,
		logger:     noopLogger{},
		notifier:   noopNotifier{},
		clock:      clockwork.NewRealClock(),
		session:    uuid.NewString(),
		feed:       feed,
		dispatcher: NewDispatcher(feed),
	}
}

// SetLogger overrides logger (optional).
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		return
	}
	c.logger = l
}

// SetNotifier sets where user-facing warnings go (optional).
func (c *Client) SetNotifier(n Notifier) {
	if n == nil {
		return
	}
	c.notifier = n
}

// SetClock overrides the clock used for the last-updated marker.
func (c *Client) SetClock(clock clockwork.Clock) {
	if clock == nil {
		return
	}
	c.clock = clock
}

// OnGuess registers callback for guesses not seen before.
func (c *Client) OnGuess(fn func(GuessEvent)) { c.dispatcher.SetOnGuess(fn) }

// OnHint registers callback for new or updated hints.
func (c *Client) OnHint(fn func(HintEvent)) { c.dispatcher.SetOnHint(fn) }

// OnEureka registers callback for eurekas not seen before.
func (c *Client) OnEureka(fn func(EurekaEvent)) { c.dispatcher.SetOnEureka(fn) }

// OnError registers callback for protocol violations and transport failures.
func (c *Client) OnError(fn func(error)) { c.onError = fn }

// OnStateChanged registers callback for connection state transitions.
func (c *Client) OnStateChanged(fn func(StateEvent)) { c.onState = fn }

// Feed returns the visible state maintained by the client.
func (c *Client) Feed() *Feed { return c.feed }

// Session returns the id the client tags its logs with.
func (c *Client) Session() string { return c.session }

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastUpdated returns the resync marker and whether any frame has been handled.
func (c *Client) LastUpdated() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdated, !c.lastUpdated.IsZero()
}

// Connect dials the event endpoint, requests backfill, and starts internal loops.
// After a transport failure Connect may be called again; backfill then starts
// from the last-updated marker.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	endpoint, _ := EventURL(c.cfg.PageURL)

	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected:
		c.mu.Unlock()
		return NewError(ErrorConnection, "already connected")
	case StateClosed:
		c.mu.Unlock()
		return NewError(ErrorNotConnected, "client closed")
	}
	marker := c.lastUpdated
	c.mu.Unlock()
	c.setState(StateConnecting, nil)

	conn, err := internal.Dial(ctx, endpoint, c.cfg.HandshakeTimeout, c.cfg.ReadTimeout, c.cfg.WriteTimeout)
	if err != nil {
		werr := WrapError(ErrorConnection, "dial "+endpoint, err)
		c.setState(StateDisconnected, werr)
		return werr
	}

	backfill := BackfillRequests(marker)
	if err := internal.WriteAll(ctx, conn, backfill); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "backfill error")
		werr := WrapError(ErrorConnection, "request backfill", err)
		c.setState(StateDisconnected, werr)
		return werr
	}
	c.logger.Info("connected", map[string]any{
		"session":  c.session,
		"endpoint": endpoint,
		"resync":   !marker.IsZero(),
	})

	runCtx, cancel := context.WithCancel(context.Background())
	writeCh := make(chan Request, 16)
	c.mu.Lock()
	c.conn = conn
	c.writeCh = writeCh
	c.cancel = cancel
	c.mu.Unlock()
	c.setState(StateConnected, nil)

	go c.readLoop(runCtx, conn)
	go c.writeLoop(runCtx, conn, writeCh)
	return nil
}

// Resync asks the server again for everything newer than the marker.
func (c *Client) Resync(ctx context.Context) error {
	c.mu.Lock()
	marker := c.lastUpdated
	c.mu.Unlock()
	for _, req := range BackfillRequests(marker) {
		if err := c.send(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts down client and closes WebSocket.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	c.setState(StateClosed, nil)
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client close")
	}
	return nil
}

func (c *Client) send(ctx context.Context, req Request) error {
	c.mu.Lock()
	connected := c.state == StateConnected
	writeCh := c.writeCh
	c.mu.Unlock()
	if !connected {
		return NewError(ErrorNotConnected, "not connected")
	}

	select {
	case writeCh <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) readLoop(ctx context.Context, conn *internal.Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if isExpectedDisconnect(ctx, err) {
				if ctx.Err() == nil {
					c.closedByServer()
				}
				return
			}
			c.fail(ctx, WrapError(ErrorConnection, "read", err))
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.violation("", WrapError(ErrorSerialization, "malformed frame", err))
			continue
		}
		c.handle(f)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *internal.Conn, writeCh <-chan Request) {
	for {
		select {
		case req := <-writeCh:
			if err := conn.Write(ctx, req); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.fail(ctx, WrapError(ErrorConnection, "write", err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handle applies one frame. The marker only advances when the frame was handled.
func (c *Client) handle(f Frame) {
	if err := c.dispatcher.Dispatch(f); err != nil {
		c.violation(f.Type, err)
		return
	}
	c.mu.Lock()
	c.lastUpdated = c.clock.Now()
	c.mu.Unlock()
	c.logger.Debug("event applied", map[string]any{"session": c.session, "type": string(f.Type)})
}

func (c *Client) violation(kind Kind, err error) {
	c.logger.Error("protocol violation", map[string]any{
		"session": c.session,
		"type":    string(kind),
		"error":   err.Error(),
	})
	c.fireError(err)
}

func (c *Client) closedByServer() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.conn = nil
	c.mu.Unlock()
	c.logger.Info("server closed connection", map[string]any{"session": c.session})
	c.setState(StateDisconnected, nil)
}

// fail marks the feed stale. There is no automatic reconnect. Only the first
// failure of a connection is reported.
func (c *Client) fail(ctx context.Context, err error) {
	c.mu.Lock()
	if ctx.Err() != nil || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	old := c.state
	c.state = StateStale
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	cancel()
	if conn != nil {
		_ = conn.Close(websocket.StatusInternalError, "transport error")
	}
	c.logger.Warn("live updates stopped", map[string]any{"session": c.session, "error": err.Error()})
	if c.onState != nil {
		c.onState(StateEvent{OldState: old, NewState: StateStale, Error: err})
	}
	c.notifier.Notify(LevelDanger, MsgFeedBroken, true)
	c.fireError(err)
}

func (c *Client) setState(s ConnectionState, err error) {
	c.mu.Lock()
	old := c.state
	if old == StateClosed && s != StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	if old != s && c.onState != nil {
		c.onState(StateEvent{OldState: old, NewState: s, Error: err})
	}
}

func (c *Client) fireError(err error) {
	if c.onError != nil && err != nil {
		c.onError(err)
	}
}

// isExpectedDisconnect reports whether err ends the read loop without a warning.
func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	// A dropped socket without a close frame is a failure, not a disconnect.
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
