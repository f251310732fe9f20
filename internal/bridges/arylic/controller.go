package arylic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default controller intervals.
const (
	defaultReconnectInterval = 30 * time.Second
	defaultDiscoveryInterval = time.Second
	defaultPingInterval      = 60 * time.Second
	defaultPingDelay         = 10 * time.Second
	defaultHandshakeTimeout  = 5 * time.Second
	defaultStoreTimeout      = 5 * time.Second
)

// ControllerConfig holds controller timing and the static device list.
type ControllerConfig struct {
	// Devices are always part of the reconnect set.
	Devices []Identity

	// ReconnectInterval is how often absent identities are retried.
	ReconnectInterval time.Duration

	// DiscoveryInterval is how often the discovery source is polled.
	DiscoveryInterval time.Duration

	// PingInterval and PingDelay schedule keep-alive pings. A zero
	// PingDelay pings right away; a negative one selects the default.
	PingInterval time.Duration
	PingDelay    time.Duration

	// ConnectTimeout bounds the TCP dial.
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds the device-info exchange after connecting.
	HandshakeTimeout time.Duration
}

func (c *ControllerConfig) applyDefaults() {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = defaultDiscoveryInterval
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PingDelay < 0 {
		c.PingDelay = defaultPingDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	// Config holds timing and static devices.
	Config ControllerConfig

	// Sink receives availability and device events. Defaults to NopSink.
	Sink EventSink

	// Discovery is optional. Without it only static and known devices
	// are connected.
	Discovery DiscoverySource

	// Store is optional. Known devices join the reconnect set at start and
	// every completed handshake is remembered.
	Store KnownDeviceStore

	// Logger is optional.
	Logger Logger
}

// ControllerStats summarises the registry.
type ControllerStats struct {
	Connected   int
	Pending     int
	Discovered  int
	Known       int
	Handshakes  uint64
	Failures    uint64
	Disconnects uint64
}

// Controller owns the set of live speaker connections.
//
// It keeps at most one connection per identity and per device name. Three
// periodic tasks drive it: reconnect (connect every absent identity),
// discovery (poll the discovery source) and ping (keep sessions alive).
// Connections are keyed by lowercase device name once the handshake has
// completed.
type Controller struct {
	logHolder

	cfg       ControllerConfig
	sink      EventSink
	discovery DiscoverySource
	store     KnownDeviceStore

	// Live named connections.
	connections map[string]*Connection
	connMu      sync.RWMutex

	// Identities with a live or in-flight connection, mapped to the
	// attempt that owns the reservation.
	pending     map[Identity]uint64
	nextAttempt uint64
	pendingMu   sync.Mutex

	// Serialises availability transitions so a device's true/false events
	// reach the sink in order.
	availMu sync.Mutex

	discovered map[Identity]DiscoveredDevice
	known      map[Identity]KnownDevice
	discMu     sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	loops    sync.WaitGroup
	attempts sync.WaitGroup
	stopMu   sync.RWMutex
	stopped  bool
	started  atomic.Bool

	handshakes  atomic.Uint64
	failures    atomic.Uint64
	disconnects atomic.Uint64
}

// NewController creates a controller. Call Start to begin connecting.
func NewController(opts ControllerOptions) *Controller {
	cfg := opts.Config
	cfg.applyDefaults()

	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:         cfg,
		sink:        sink,
		discovery:   opts.Discovery,
		store:       opts.Store,
		connections: make(map[string]*Connection),
		pending:     make(map[Identity]uint64),
		discovered:  make(map[Identity]DiscoveredDevice),
		known:       make(map[Identity]KnownDevice),
		ctx:         ctx,
		cancel:      cancel,
	}
	if opts.Logger != nil {
		c.SetLogger(opts.Logger)
	}
	return c
}

// Start loads known devices and launches the periodic tasks.
//
// The reconnect task fires immediately, discovery polls every
// DiscoveryInterval, and pings begin after PingDelay.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	if c.store != nil {
		devices, err := c.store.KnownDevices(ctx)
		if err != nil {
			c.logWarn("loading known devices failed", "error", err)
		}
		c.discMu.Lock()
		for _, d := range devices {
			c.known[d.Identity] = d
		}
		c.discMu.Unlock()
		c.logInfo("known devices loaded", "count", len(devices))
	}

	c.loops.Add(2)
	go c.runPeriodic("reconnect", 0, c.cfg.ReconnectInterval, c.reconnectTick)
	go c.runPeriodic("ping", c.cfg.PingDelay, c.cfg.PingInterval, c.pingTick)

	if c.discovery != nil {
		c.loops.Add(1)
		go c.runPeriodic("discovery", 0, c.cfg.DiscoveryInterval, c.discoveryTick)
	}

	c.logInfo("controller started",
		"static_devices", len(c.cfg.Devices),
		"discovery", c.discovery != nil,
		"reconnect_interval", c.cfg.ReconnectInterval.String(),
	)
	return nil
}

// Stop cancels the periodic tasks and in-flight attempts, then closes every
// live connection and waits for their disconnect paths to finish.
func (c *Controller) Stop() {
	c.stopMu.Lock()
	if c.stopped {
		c.stopMu.Unlock()
		return
	}
	c.stopped = true
	c.stopMu.Unlock()

	c.cancel()
	c.loops.Wait()
	c.attempts.Wait()

	for _, conn := range c.snapshot() {
		_ = conn.Close()
		<-conn.Done()
	}
	c.logInfo("controller stopped")
}

// runPeriodic calls fn after delay and then every interval until stopped.
// Ticks never overlap.
func (c *Controller) runPeriodic(name string, delay, interval time.Duration, fn func(context.Context)) {
	defer c.loops.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-timer.C:
		}

		c.safeTick(name, fn)
		timer.Reset(interval)
	}
}

func (c *Controller) safeTick(name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("periodic task panicked", fmt.Errorf("%v", r), "task", name)
		}
	}()
	fn(c.ctx)
}

// reconnectTick connects every target identity without a live or
// in-flight connection.
func (c *Controller) reconnectTick(_ context.Context) {
	for _, id := range c.targets() {
		c.TryConnect(id)
	}
}

// targets returns static, discovered and known identities, deduplicated.
func (c *Controller) targets() []Identity {
	seen := make(map[Identity]bool)
	var out []Identity
	add := func(id Identity) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, id := range c.cfg.Devices {
		add(id)
	}

	c.discMu.Lock()
	for id := range c.discovered {
		add(id)
	}
	for id := range c.known {
		add(id)
	}
	c.discMu.Unlock()

	return out
}

// discoveryTick polls the discovery source, announces new devices, starts
// connecting to them and forgets devices that left the network.
func (c *Controller) discoveryTick(ctx context.Context) {
	devices, err := c.discovery.Discover(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logWarn("discovery failed", "error", err)
		}
		return
	}

	current := make(map[Identity]bool, len(devices))
	var fresh []DiscoveredDevice

	c.discMu.Lock()
	for _, d := range devices {
		current[d.Identity] = true
		if _, seen := c.discovered[d.Identity]; !seen {
			c.discovered[d.Identity] = d
			fresh = append(fresh, d)
		}
	}
	var lost []DiscoveredDevice
	for id, d := range c.discovered {
		if !current[id] {
			lost = append(lost, d)
			delete(c.discovered, id)
		}
	}
	c.discMu.Unlock()

	for _, d := range lost {
		c.logInfo("device no longer advertised", "device", d.Identity.String(), "service", d.Name)
	}
	for _, d := range fresh {
		c.logInfo("device discovered", "device", d.Identity.String(), "service", d.Name)
		c.sink.DeviceDiscovered(d)
		c.TryConnect(d.Identity)
	}
}

// pingTick sends a keep-alive to every live connection.
func (c *Controller) pingTick(ctx context.Context) {
	for name, conn := range c.Connections() {
		pingCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		err := conn.Ping(pingCtx)
		cancel()
		if err != nil {
			c.logWarn("ping failed", "device", name, "error", err)
		}
	}
}

// TryConnect starts a connection attempt for id unless one is live or in
// flight. It returns immediately; the attempt runs in the background.
func (c *Controller) TryConnect(id Identity) {
	c.stopMu.RLock()
	defer c.stopMu.RUnlock()
	if c.stopped {
		return
	}

	attempt, ok := c.reserve(id)
	if !ok {
		return
	}

	c.attempts.Add(1)
	go func() {
		defer c.attempts.Done()
		if err := c.connect(c.ctx, id, attempt); err != nil {
			c.failures.Add(1)
			c.release(id, attempt)
			c.logWarn("connect attempt failed", "device", id.String(), "error", err)
		}
	}()
}

// reserve claims id for a new attempt. It fails if id is already claimed.
func (c *Controller) reserve(id Identity) (uint64, bool) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if _, busy := c.pending[id]; busy {
		return 0, false
	}
	c.nextAttempt++
	c.pending[id] = c.nextAttempt
	return c.nextAttempt, true
}

// release frees id if the reservation still belongs to attempt.
func (c *Controller) release(id Identity, attempt uint64) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.pending[id] == attempt {
		delete(c.pending, id)
	}
}

// connect dials id, performs the device-info handshake and registers the
// connection under the reported name.
func (c *Controller) connect(ctx context.Context, id Identity, attempt uint64) error {
	conn, err := Dial(ctx, id, ConnectionConfig{
		ConnectTimeout: c.cfg.ConnectTimeout,
		Logger:         c.get(),
		OnClosed: func(conn *Connection, err error) {
			c.handleDisconnect(conn, attempt, err)
		},
	})
	if err != nil {
		return err
	}

	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	reply, err := conn.Request(hctx, DeviceInfoRequest{}, KindDeviceInfo)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %s: %w", ErrHandshakeFailed, id, err)
	}
	info, ok := reply.(DeviceInfo)
	if !ok || strings.TrimSpace(info.Name) == "" {
		_ = conn.Close()
		return fmt.Errorf("%w: %s: device reported no name", ErrHandshakeFailed, id)
	}

	return c.register(conn, info)
}

// register publishes a handshaken connection under its lowercase name.
func (c *Controller) register(conn *Connection, info DeviceInfo) error {
	name := strings.ToLower(strings.TrimSpace(info.Name))

	c.availMu.Lock()
	c.connMu.Lock()
	if conn.State() == StateClosed {
		c.connMu.Unlock()
		c.availMu.Unlock()
		return fmt.Errorf("%w: %s closed during handshake", ErrConnectionClosed, conn.Identity())
	}
	if existing, taken := c.connections[name]; taken && existing != conn {
		c.connMu.Unlock()
		c.availMu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("%w: %q held by %s", ErrDuplicateName, name, existing.Identity())
	}
	conn.setName(name)
	c.connections[name] = conn
	c.connMu.Unlock()

	c.sink.DeviceAvailable(name, true)
	conn.SetHandler(func(cmd ReceiveCommand) {
		c.sink.DeviceEvent(name, cmd)
	})
	c.availMu.Unlock()

	c.handshakes.Add(1)
	c.logInfo("device connected", "device", name, "address", conn.Identity().String(), "type", info.Type)

	c.remember(name, conn.Identity())
	return nil
}

// remember records the device as known, in memory and in the store.
func (c *Controller) remember(name string, id Identity) {
	device := KnownDevice{Name: name, Identity: id, LastSeen: time.Now().UTC()}

	c.discMu.Lock()
	c.known[id] = device
	c.discMu.Unlock()

	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, defaultStoreTimeout)
	defer cancel()
	if err := c.store.RememberDevice(ctx, device); err != nil {
		c.logWarn("persisting known device failed", "device", name, "error", err)
	}
}

// handleDisconnect runs once per connection from its read goroutine.
func (c *Controller) handleDisconnect(conn *Connection, attempt uint64, err error) {
	c.availMu.Lock()
	name := conn.Name()
	removed := false
	c.connMu.Lock()
	if name != "" && c.connections[name] == conn {
		delete(c.connections, name)
		removed = true
	}
	c.connMu.Unlock()

	c.release(conn.Identity(), attempt)

	if removed {
		c.disconnects.Add(1)
		c.sink.DeviceAvailable(name, false)
	}
	c.availMu.Unlock()

	c.discMu.Lock()
	delete(c.discovered, conn.Identity())
	c.discMu.Unlock()

	if removed {
		c.logInfo("device disconnected", "device", name, "address", conn.Identity().String(), "reason", err)
	}
}

// Lookup returns the live connection for a device name, case-insensitively.
func (c *Controller) Lookup(name string) (*Connection, bool) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	conn, ok := c.connections[strings.ToLower(name)]
	return conn, ok
}

// Connections returns a copy of the live connections keyed by name.
func (c *Controller) Connections() map[string]*Connection {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	out := make(map[string]*Connection, len(c.connections))
	for name, conn := range c.connections {
		out[name] = conn
	}
	return out
}

// Names returns the live device names, sorted.
func (c *Controller) Names() []string {
	c.connMu.RLock()
	names := make([]string, 0, len(c.connections))
	for name := range c.connections {
		names = append(names, name)
	}
	c.connMu.RUnlock()
	sort.Strings(names)
	return names
}

func (c *Controller) snapshot() []*Connection {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	out := make([]*Connection, 0, len(c.connections))
	for _, conn := range c.connections {
		out = append(out, conn)
	}
	return out
}

// Discovered returns the devices seen by the last discovery poll.
func (c *Controller) Discovered() []DiscoveredDevice {
	c.discMu.Lock()
	defer c.discMu.Unlock()
	out := make([]DiscoveredDevice, 0, len(c.discovered))
	for _, d := range c.discovered {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity.Address() < out[j].Identity.Address()
	})
	return out
}

// Stats returns registry counters.
func (c *Controller) Stats() ControllerStats {
	c.connMu.RLock()
	connected := len(c.connections)
	c.connMu.RUnlock()

	c.pendingMu.Lock()
	pending := len(c.pending) - connected
	c.pendingMu.Unlock()
	if pending < 0 {
		pending = 0
	}

	c.discMu.Lock()
	discovered := len(c.discovered)
	known := len(c.known)
	c.discMu.Unlock()

	return ControllerStats{
		Connected:   connected,
		Pending:     pending,
		Discovered:  discovered,
		Known:       known,
		Handshakes:  c.handshakes.Load(),
		Failures:    c.failures.Load(),
		Disconnects: c.disconnects.Load(),
	}
}
