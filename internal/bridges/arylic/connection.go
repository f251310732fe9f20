package arylic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPort is the speaker's control port.
const DefaultPort = 8899

// Default timeouts for speaker sessions.
const (
	defaultConnectTimeout = 5 * time.Second
	defaultWriteTimeout   = 5 * time.Second

	// readBufferSize bounds a single socket read. Speaker frames are well
	// below this.
	readBufferSize = 2048
)

// Identity is a speaker's network address. Two identities are equal when
// host and port are equal.
type Identity struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// NewIdentity returns an identity, substituting DefaultPort for port 0.
func NewIdentity(host string, port int) Identity {
	if port == 0 {
		port = DefaultPort
	}
	return Identity{Host: host, Port: port}
}

// Address returns the dialable host:port form.
func (id Identity) Address() string {
	return net.JoinHostPort(id.Host, strconv.Itoa(id.Port))
}

func (id Identity) String() string {
	return id.Address()
}

// State is a session lifecycle state. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionConfig configures a speaker session.
type ConnectionConfig struct {
	// ConnectTimeout bounds the TCP dial. Defaults to 5s.
	ConnectTimeout time.Duration

	// WriteTimeout bounds a single frame write when the caller's context
	// has no earlier deadline. Defaults to 5s.
	WriteTimeout time.Duration

	// OnClosed is invoked exactly once when the session terminates, from
	// the read goroutine. err is the read error (io.EOF on a clean close).
	OnClosed func(conn *Connection, err error)

	// Logger is optional.
	Logger Logger
}

// ConnectionStats holds per-session statistics.
type ConnectionStats struct {
	CommandsTx   uint64
	CommandsRx   uint64
	SendErrors   uint64
	Codec        CodecStats
	ConnectedAt  time.Time
	LastActivity time.Time
}

// Connection is one TCP session with a speaker.
//
// A single goroutine reads from the socket and decodes frames. Decoded
// commands go first to the event handler, then to the oldest pending
// expectation of the same kind. Writes are serialised by a mutex.
type Connection struct {
	logHolder

	identity Identity
	conn     net.Conn
	codec    *Codec
	cfg      ConnectionConfig

	state   atomic.Int32
	closing atomic.Bool
	name    atomic.Pointer[string]

	writeMu sync.Mutex

	handler   func(ReceiveCommand)
	handlerMu sync.RWMutex

	pending   []*Expectation
	pendingMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	connectedAt  time.Time
	commandsTx   atomic.Uint64
	commandsRx   atomic.Uint64
	sendErrors   atomic.Uint64
	lastActivity atomic.Int64
}

// Dial connects to the speaker at id and starts the read loop.
//
// Parameters:
//   - ctx: Context for cancellation of the dial
//   - id: Speaker address
//   - cfg: Session configuration
//
// Returns:
//   - *Connection: Active session
//   - error: ErrConnectionFailed wrapping the dial error
func Dial(ctx context.Context, id Identity, cfg ConnectionConfig) (*Connection, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", id.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, id, err)
	}

	return newConnection(conn, id, cfg), nil
}

// newConnection wraps an established socket and starts the read loop.
func newConnection(conn net.Conn, id Identity, cfg ConnectionConfig) *Connection {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	c := &Connection{
		identity:    id,
		conn:        conn,
		codec:       NewCodec(),
		cfg:         cfg,
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
	c.state.Store(int32(StateConnecting))
	if cfg.Logger != nil {
		c.SetLogger(cfg.Logger)
		c.codec.SetLogger(cfg.Logger)
	}

	c.state.Store(int32(StateActive))
	c.touch()
	go c.readLoop()

	c.logDebug("speaker session opened", "device", id.String())
	return c
}

// readLoop reads until EOF or an error, then closes the session.
func (c *Connection) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.touch()
			c.codec.Decode(buf[:n], c.dispatch)
		}
		if err == nil && n == 0 {
			err = io.EOF
		}
		if err != nil {
			switch {
			case c.closing.Load():
				c.logDebug("speaker session closed locally", "device", c.identity.String())
			case errors.Is(err, io.EOF):
				c.logInfo("speaker closed the stream", "device", c.identity.String())
			default:
				c.logWarn("speaker read failed", "device", c.identity.String(), "error", err)
			}
			c.shutdown(err)
			return
		}
	}
}

// dispatch delivers a decoded command to the handler and then resolves at
// most one matching expectation.
func (c *Connection) dispatch(cmd ReceiveCommand) {
	c.commandsRx.Add(1)

	c.handlerMu.RLock()
	handler := c.handler
	c.handlerMu.RUnlock()

	if handler != nil {
		c.invokeHandler(handler, cmd)
	}

	c.pendingMu.Lock()
	var matched *Expectation
	for i, e := range c.pending {
		if e.kind == cmd.Kind() {
			matched = e
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	c.pendingMu.Unlock()

	if matched != nil {
		matched.resolve(cmd, nil)
	}
}

// invokeHandler runs the handler, recovering from panics so that a faulty
// consumer cannot stop the read loop.
func (c *Connection) invokeHandler(handler func(ReceiveCommand), cmd ReceiveCommand) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("event handler panicked", fmt.Errorf("%v", r),
				"device", c.identity.String(), "kind", cmd.Kind().String())
		}
	}()
	handler(cmd)
}

// shutdown runs the terminal transition exactly once.
func (c *Connection) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.pendingMu.Lock()
		c.state.Store(int32(StateClosed))
		c.closeErr = err
		pending := c.pending
		c.pending = nil
		c.pendingMu.Unlock()

		_ = c.conn.Close()

		cause := fmt.Errorf("%w: %s: %w", ErrConnectionClosed, c.identity, err)
		for _, e := range pending {
			e.resolve(nil, cause)
		}

		if c.cfg.OnClosed != nil {
			c.invokeOnClosed(err)
		}
		close(c.done)
	})
}

func (c *Connection) invokeOnClosed(err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("disconnect callback panicked", fmt.Errorf("%v", r), "device", c.identity.String())
		}
	}()
	c.cfg.OnClosed(c, err)
}

// Send encodes cmd and writes it to the speaker.
//
// Concurrent calls are serialised. A failed write is returned to the caller
// and does not close the session; the read loop owns that transition.
//
// Parameters:
//   - ctx: Bounds the write together with the configured write timeout
//   - cmd: Command to transmit
//
// Returns:
//   - error: ErrNotConnected if the session is closed, ErrSendFailed on I/O errors
func (c *Connection) Send(ctx context.Context, cmd SentCommand) error {
	if c.State() != StateActive {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	frame := Encode(cmd)

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		c.sendErrors.Add(1)
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}
	if _, err := c.conn.Write(frame); err != nil {
		c.sendErrors.Add(1)
		return fmt.Errorf("%w: write %s: %w", ErrSendFailed, cmd.Kind(), err)
	}

	c.commandsTx.Add(1)
	c.touch()
	c.logDebug("command sent", "device", c.identity.String(), "kind", cmd.Kind().String())
	return nil
}

// Ping sends a play-status request as a keep-alive.
func (c *Connection) Ping(ctx context.Context) error {
	return c.Send(ctx, PlayStatusRequest{})
}

// Expect registers a one-shot wait for the next command of the given kind.
//
// Register before sending the request that provokes the reply, otherwise
// a fast reply can be missed. If the session is already closed the
// returned expectation has failed.
func (c *Connection) Expect(kind Kind) *Expectation {
	e := &Expectation{
		kind: kind,
		conn: c,
		done: make(chan struct{}),
	}

	c.pendingMu.Lock()
	if c.State() == StateClosed {
		c.pendingMu.Unlock()
		e.resolve(nil, fmt.Errorf("%w: %s", ErrConnectionClosed, c.identity))
		return e
	}
	c.pending = append(c.pending, e)
	c.pendingMu.Unlock()

	return e
}

// Request registers an expectation for reply, sends cmd and waits until the
// reply arrives, the session closes, or ctx ends. An abandoned wait is
// withdrawn so it cannot swallow a later reply.
func (c *Connection) Request(ctx context.Context, cmd SentCommand, reply Kind) (ReceiveCommand, error) {
	e := c.Expect(reply)
	if err := c.Send(ctx, cmd); err != nil {
		e.Cancel()
		return nil, err
	}
	resp, err := e.Wait(ctx)
	if err != nil {
		e.Cancel()
	}
	return resp, err
}

func (c *Connection) removeExpectation(target *Expectation) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for i, e := range c.pending {
		if e == target {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// SetHandler installs the inbound event handler. It runs on the read
// goroutine, before expectations are resolved. nil removes it.
func (c *Connection) SetHandler(handler func(ReceiveCommand)) {
	c.handlerMu.Lock()
	c.handler = handler
	c.handlerMu.Unlock()
}

// Close terminates the session. The read loop observes the closed socket
// and runs the disconnect path. Close does not wait; use Done for that.
func (c *Connection) Close() error {
	if c.State() == StateClosed {
		return nil
	}
	c.closing.Store(true)
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing %s: %w", c.identity, err)
	}
	return nil
}

// Done is closed once the session has terminated and the disconnect
// callback has returned.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that terminated the session, or nil while active.
func (c *Connection) Err() error {
	select {
	case <-c.done:
		return c.closeErr
	default:
		return nil
	}
}

// Identity returns the speaker address.
func (c *Connection) Identity() Identity {
	return c.identity
}

// Name returns the device name learned from the handshake, or "".
func (c *Connection) Name() string {
	if n := c.name.Load(); n != nil {
		return *n
	}
	return ""
}

func (c *Connection) setName(name string) {
	c.name.Store(&name)
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Stats returns current session statistics.
func (c *Connection) Stats() ConnectionStats {
	return ConnectionStats{
		CommandsTx:   c.commandsTx.Load(),
		CommandsRx:   c.commandsRx.Load(),
		SendErrors:   c.sendErrors.Load(),
		Codec:        c.codec.Stats(),
		ConnectedAt:  c.connectedAt,
		LastActivity: time.Unix(0, c.lastActivity.Load()),
	}
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// Expectation is a pending one-shot wait for a command kind.
type Expectation struct {
	kind Kind
	conn *Connection

	once sync.Once
	done chan struct{}
	cmd  ReceiveCommand
	err  error
}

func (e *Expectation) resolve(cmd ReceiveCommand, err error) {
	e.once.Do(func() {
		e.cmd = cmd
		e.err = err
		close(e.done)
	})
}

// Kind returns the awaited command kind.
func (e *Expectation) Kind() Kind {
	return e.kind
}

// Done is closed when the expectation resolves or fails.
func (e *Expectation) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the expectation resolves, the session closes, or ctx
// ends. An expectation whose command never arrives only ends through ctx.
func (e *Expectation) Wait(ctx context.Context) (ReceiveCommand, error) {
	select {
	case <-e.done:
		return e.cmd, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel withdraws the expectation so it no longer consumes a reply.
func (e *Expectation) Cancel() {
	e.conn.removeExpectation(e)
	e.resolve(nil, context.Canceled)
}
