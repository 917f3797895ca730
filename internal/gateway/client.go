// Package gateway implements the client endpoint of the gateway wire
// protocol: a persistent websocket carrying correlated request/response
// exchanges and out-of-band events, with a signed challenge/response
// handshake and transparent reconnection.
package gateway

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/codefionn/gatelink/internal/identity"
	"github.com/codefionn/gatelink/internal/logger"
)

// Status is the connection status observed by listeners.
type Status int

const (
	// StatusDisconnected indicates no socket exists
	StatusDisconnected Status = iota
	// StatusConnecting indicates a socket is being opened or the handshake is in flight
	StatusConnecting
	// StatusConnected indicates the handshake succeeded
	StatusConnected
	// StatusPairing indicates the gateway knows the socket but the device
	// identity awaits approval; the socket stays open
	StatusPairing
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusPairing:
		return "pairing"
	default:
		return "unknown"
	}
}

// EventHandler receives server-pushed events in arrival order.
type EventHandler func(Event)

// StatusHandler receives connection status transitions.
type StatusHandler func(Status)

// IdentityStore supplies the device identity used to sign the handshake.
// A nil store means the connect request carries no device field.
type IdentityStore interface {
	GetOrCreate(ctx context.Context) (*identity.Identity, error)
}

type result struct {
	payload json.RawMessage
	err     error
}

type pendingRequest struct {
	ch    chan result
	timer *time.Timer
}

// Client is a gateway protocol client. One Client owns one logical
// connection; the socket and the pending-request map are never mutated from
// outside.
type Client struct {
	cfg    *Config
	dialer Dialer
	ids    IdentityStore
	log    *logger.Logger

	mu             sync.Mutex
	creds          Credentials
	conn           Conn
	connGen        uint64
	status         Status
	autoReconnect  bool
	attempts       int
	reconnectTimer *time.Timer
	nonce          string
	pending        map[string]*pendingRequest
	eventSubs      map[int]EventHandler
	statusSubs     map[int]StatusHandler
	nextSubID      int
}

// New creates a gateway client. cfg may be nil for defaults; ids may be nil
// when no device identity is available.
func New(cfg *Config, creds Credentials, ids IdentityStore) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		cfg:     cfg,
		dialer:  wsDialer{},
		ids:     ids,
		log:     logger.Global().WithPrefix("gateway"),
		creds:   creds,
		pending: make(map[string]*pendingRequest),
	}
}

// SetCredentials replaces the credentials used by future connection attempts.
// An established connection is not affected.
func (c *Client) SetCredentials(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsConnected reports whether the handshake has completed.
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

// OnEvent registers a handler for server-pushed events and returns its
// unregister function. Registration is not retroactive; no event is buffered
// or replayed. Handlers run on the read loop and must not block on the
// client's own requests.
func (c *Client) OnEvent(h EventHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	if c.eventSubs == nil {
		c.eventSubs = make(map[int]EventHandler)
	}
	c.eventSubs[id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.eventSubs, id)
	}
}

// OnStatus registers a handler for status transitions and returns its
// unregister function.
func (c *Client) OnStatus(h StatusHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	if c.statusSubs == nil {
		c.statusSubs = make(map[int]StatusHandler)
	}
	c.statusSubs[id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.statusSubs, id)
	}
}

// Connect opens the socket and arms auto-reconnect. It is a no-op when a
// socket already exists. The handshake completes asynchronously once the
// gateway issues its challenge; completion is observed through OnStatus.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.autoReconnect = true
	c.nonce = ""
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	notify := c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()
	notify()

	return c.openSocket(ctx)
}

// openSocket dials and attaches a new socket. The caller has already moved
// status to connecting.
func (c *Client) openSocket(ctx context.Context) error {
	c.mu.Lock()
	url := c.creds.URL
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, url)

	c.mu.Lock()
	if !c.autoReconnect {
		// Disconnect raced the dial.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return nil
	}
	if err != nil {
		c.log.Warn("dial failed: %v", err)
		notify := c.setStatusLocked(StatusDisconnected)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		notify()
		return err
	}
	if c.conn != nil {
		// A concurrent attempt won; keep the existing socket.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connGen++
	gen := c.connGen
	c.mu.Unlock()

	c.log.Debug("socket open, awaiting challenge")
	go c.readLoop(conn, gen)
	return nil
}

// Disconnect tears the connection down by user intent: auto-reconnect is
// disabled, any scheduled reconnect is cancelled, the attempt counter resets,
// and all pending requests are rejected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.autoReconnect = false
	c.attempts = 0
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.connGen++
	failed := c.takePendingLocked()
	notify := c.setStatusLocked(StatusDisconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	rejectAll(failed, NewError(CodeDisconnected, "client disconnected"))
	notify()
}

// Send issues a request and blocks until the matching response, the request
// timeout, ctx cancellation, or connection teardown. Without an open socket
// it fails immediately with NOT_CONNECTED, before any asynchronous work.
func (c *Client) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	gen := c.connGen
	c.mu.Unlock()

	if conn == nil {
		return nil, NewError(CodeNotConnected, "not connected to gateway")
	}
	return c.request(ctx, conn, gen, method, params)
}

// request runs one correlated exchange over the given socket generation.
// The handshake uses it directly so the connect request can go out while the
// public status is still connecting.
func (c *Client) request(ctx context.Context, conn Conn, gen uint64, method string, params any) (json.RawMessage, error) {
	id := newRequestID()
	data, err := newRequestFrame(id, method, params)
	if err != nil {
		return nil, err
	}

	p := &pendingRequest{ch: make(chan result, 1)}

	c.mu.Lock()
	if c.conn != conn || c.connGen != gen {
		c.mu.Unlock()
		return nil, NewError(CodeNotConnected, "not connected to gateway")
	}
	c.pending[id] = p
	p.timer = time.AfterFunc(c.cfg.RequestTimeout, func() {
		c.failPending(id, NewError(CodeTimeout, "request timed out: "+method))
	})
	c.mu.Unlock()

	if err := conn.WriteMessage(data); err != nil {
		c.failPending(id, NewError(CodeDisconnected, "write failed: "+err.Error()))
	}

	select {
	case r := <-p.ch:
		return r.payload, r.err
	case <-ctx.Done():
		// The matching response may already hold the channel; failPending is a
		// no-op then and the drained result carries the real outcome.
		c.failPending(id, ctx.Err())
		r := <-p.ch
		return r.payload, r.err
	}
}

// failPending removes one pending request and rejects it. Removal under the
// lock guarantees a single resolver per id.
func (c *Client) failPending(id string, err error) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		p.timer.Stop()
	}
	c.mu.Unlock()

	if ok {
		p.ch <- result{err: err}
	}
}

// takePendingLocked detaches the whole pending set, stopping every timer.
// No dangling timers survive a bulk clear.
func (c *Client) takePendingLocked() map[string]*pendingRequest {
	taken := c.pending
	c.pending = make(map[string]*pendingRequest)
	for _, p := range taken {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	return taken
}

func rejectAll(pending map[string]*pendingRequest, err error) {
	for _, p := range pending {
		p.ch <- result{err: err}
	}
}

// readLoop pumps one socket until it dies. gen guards against a stale pump
// acting on a newer socket's state.
func (c *Client) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, gen, err)
			return
		}
		c.handleFrame(conn, gen, data)
	}
}

func (c *Client) handleFrame(conn Conn, gen uint64, data []byte) {
	f, err := ParseFrame(data)
	if err != nil {
		// Malformed frames are dropped, never fatal.
		c.log.Warn("dropping malformed frame: %v", err)
		return
	}

	switch f.Type {
	case frameTypeResponse:
		c.resolve(f)
	case frameTypeEvent:
		if f.Event == challengeEvent {
			c.handleChallenge(conn, gen, f)
			return
		}
		c.dispatchEvent(Event{Name: f.Event, Payload: f.Payload})
	default:
		c.log.Debug("ignoring frame type %q", f.Type)
	}
}

// resolve matches a response to its pending request strictly by id; arrival
// order does not matter.
func (c *Client) resolve(f *Frame) {
	c.mu.Lock()
	p, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
		p.timer.Stop()
	}
	c.mu.Unlock()

	if !ok {
		c.log.Debug("response for unknown id %s", f.ID)
		return
	}
	if f.OK {
		p.ch <- result{payload: f.Payload}
	} else {
		p.ch <- result{err: responseError(f)}
	}
}

// dispatchEvent fans an event out to every currently registered handler, in
// registration order. Handlers run on the read loop, so delivery order
// matches arrival order.
func (c *Client) dispatchEvent(ev Event) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.eventSubs))
	for id := range c.eventSubs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]EventHandler, len(ids))
	for i, id := range ids {
		handlers[i] = c.eventSubs[id]
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// handleClose runs when a socket dies for any reason other than Disconnect:
// status drops, every pending request rejects, and a reconnect is scheduled
// while auto-reconnect holds.
func (c *Client) handleClose(conn Conn, gen uint64, cause error) {
	c.mu.Lock()
	if c.connGen != gen {
		// A newer socket owns the state.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connGen++
	failed := c.takePendingLocked()
	notify := c.setStatusLocked(StatusDisconnected)
	if c.autoReconnect {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	c.log.Info("socket closed: %v", cause)
	conn.Close()
	rejectAll(failed, NewError(CodeDisconnected, "connection lost"))
	notify()
}

// scheduleReconnectLocked arms the backoff timer. The delay doubles from the
// base on every scheduled attempt up to the cap, plus up to ReconnectJitter
// of random jitter; the attempt counter resets only on handshake success.
func (c *Client) scheduleReconnectLocked() {
	delay := c.reconnectDelay(c.attempts)
	c.attempts++
	c.log.Debug("reconnect in %v (attempt %d)", delay, c.attempts)

	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if !c.autoReconnect || c.conn != nil {
			c.mu.Unlock()
			return
		}
		c.reconnectTimer = nil
		c.nonce = ""
		notify := c.setStatusLocked(StatusConnecting)
		c.mu.Unlock()
		notify()

		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		_ = c.openSocket(ctx)
	})
}

func (c *Client) reconnectDelay(attempts int) time.Duration {
	base := c.cfg.ReconnectDelay
	if attempts < 31 {
		base <<= uint(attempts)
	} else {
		base = c.cfg.ReconnectMaxDelay
	}
	if base > c.cfg.ReconnectMaxDelay {
		base = c.cfg.ReconnectMaxDelay
	}
	jitter := time.Duration(rand.Float64() * c.cfg.ReconnectJitter * float64(base))
	return base + jitter
}

// setStatusLocked updates the status and returns the notification to run
// after the lock is released. Handlers never run under the client lock.
func (c *Client) setStatusLocked(s Status) func() {
	if c.status == s {
		return func() {}
	}
	old := c.status
	c.status = s

	ids := make([]int, 0, len(c.statusSubs))
	for id := range c.statusSubs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]StatusHandler, len(ids))
	for i, id := range ids {
		handlers[i] = c.statusSubs[id]
	}

	return func() {
		c.log.Debug("status %s -> %s", old, s)
		for _, h := range handlers {
			h(s)
		}
	}
}
