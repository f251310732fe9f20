package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/nerrad567/arylic-gateway/internal/bridges/arylic"
	"github.com/nerrad567/arylic-gateway/internal/infrastructure/config"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultService    = "_linkplay._tcp"
	DefaultDomain     = "local."
	DefaultInterval   = time.Second
	DefaultScanWindow = 5 * time.Second
	DefaultLostAfter  = 3
)

// entryBuffer sizes the channel handed to the resolver.
const entryBuffer = 16

// ErrAlreadyStarted is returned by Start on a running Browser.
var ErrAlreadyStarted = errors.New("discovery: browser already started")

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Service is one advertised speaker.
type Service struct {
	// Host is the first advertised IPv4 address, or the host name when the
	// announcement carried none.
	Host string `json:"host"`

	// HostName is the advertised host name, e.g. "up2stream-a1b2.local.".
	HostName string `json:"host_name"`

	// Name is the service instance name.
	Name string `json:"name"`
}

// BrowseFunc browses service in domain, sending entries until ctx is done.
// It may return before browsing finishes; entries is closed or abandoned
// once ctx is done.
type BrowseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Config controls a Browser.
type Config struct {
	Service    string
	Domain     string
	Interval   time.Duration
	ScanWindow time.Duration

	// LostAfter is how many consecutive scans a service may miss before it
	// leaves the snapshot. 1 drops it on the first miss.
	LostAfter int
}

// FromConfig converts the YAML discovery section.
func FromConfig(cfg config.DiscoveryConfig) Config {
	return Config{
		Service:    cfg.Service,
		Domain:     cfg.Domain,
		Interval:   cfg.Interval,
		ScanWindow: cfg.ScanWindow,
		LostAfter:  cfg.LostAfter,
	}
}

func (c *Config) applyDefaults() {
	if c.Service == "" {
		c.Service = DefaultService
	}
	if c.Domain == "" {
		c.Domain = DefaultDomain
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ScanWindow <= 0 {
		c.ScanWindow = DefaultScanWindow
	}
	if c.LostAfter <= 0 {
		c.LostAfter = DefaultLostAfter
	}
}

// sighting is a service and the scan that last saw it.
type sighting struct {
	service Service
	scan    uint64
}

// Browser keeps a snapshot of the speakers currently advertised.
//
// Thread Safety: all methods are safe for concurrent use.
type Browser struct {
	cfg    Config
	browse BrowseFunc

	mu       sync.RWMutex
	seen     map[string]sighting // by Host
	services []Service
	scans    uint64
	logger   Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBrowser creates a Browser using the system mDNS resolver.
func NewBrowser(cfg Config) *Browser {
	return NewBrowserWithFunc(cfg, zeroconfBrowse)
}

// NewBrowserWithFunc creates a Browser with a custom browse function.
func NewBrowserWithFunc(cfg Config, browse BrowseFunc) *Browser {
	cfg.applyDefaults()
	return &Browser{cfg: cfg, browse: browse, seen: make(map[string]sighting)}
}

// SetLogger sets the logger. A nil logger disables logging.
func (b *Browser) SetLogger(logger Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

// Start launches the scan loop. The first scan begins immediately.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(loopCtx, b.done)
	return nil
}

// Stop ends the scan loop and waits for it to exit.
func (b *Browser) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (b *Browser) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := b.Scan(ctx); err != nil && ctx.Err() == nil {
			b.logWarn("mdns scan failed", "service", b.cfg.Service, "error", err)
		}
		timer.Reset(b.cfg.Interval)
	}
}

// Scan browses for one scan window and updates the snapshot. A service
// stays in the snapshot until it has missed LostAfter consecutive scans, so
// one lost mDNS answer does not look like a departed speaker. A failed or
// cancelled browse leaves the snapshot untouched.
func (b *Browser) Scan(ctx context.Context) error {
	scanCtx, cancel := context.WithTimeout(ctx, b.cfg.ScanWindow)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, entryBuffer)
	if err := b.browse(scanCtx, b.cfg.Service, b.cfg.Domain, entries); err != nil {
		return fmt.Errorf("browsing %s: %w", b.cfg.Service, err)
	}

	found := make(map[string]Service)
collect:
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				break collect
			}
			if svc, ok := serviceFromEntry(entry); ok {
				found[svc.Host] = svc
			}
		case <-scanCtx.Done():
			break collect
		}
	}

	// Parent cancellation means the scan was cut short, not that the
	// speakers left.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.mu.Lock()
	b.scans++
	for host, svc := range found {
		b.seen[host] = sighting{service: svc, scan: b.scans}
	}
	var lost []Service
	services := make([]Service, 0, len(b.seen))
	for host, st := range b.seen {
		if b.scans-st.scan >= uint64(b.cfg.LostAfter) {
			delete(b.seen, host)
			lost = append(lost, st.service)
			continue
		}
		services = append(services, st.service)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Host < services[j].Host })
	b.services = services
	b.mu.Unlock()

	for _, svc := range lost {
		b.logDebug("service no longer advertised", "host", svc.Host, "name", svc.Name)
	}
	b.logDebug("mdns scan complete", "service", b.cfg.Service, "found", len(found), "listed", len(services))
	return nil
}

// Services returns the latest snapshot.
func (b *Browser) Services(_ context.Context) []Service {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Service, len(b.services))
	copy(out, b.services)
	return out
}

// Scans returns the number of completed scans.
func (b *Browser) Scans() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scans
}

// Discover implements arylic.DiscoverySource.
func (b *Browser) Discover(ctx context.Context) ([]arylic.DiscoveredDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	services := b.Services(ctx)
	devices := make([]arylic.DiscoveredDevice, 0, len(services))
	for _, svc := range services {
		devices = append(devices, svc.Device())
	}
	return devices, nil
}

// Device converts the service to a controller discovery record.
func (s Service) Device() arylic.DiscoveredDevice {
	return arylic.DiscoveredDevice{
		Identity: arylic.NewIdentity(s.Host, arylic.DefaultPort),
		HostName: s.HostName,
		Name:     s.Name,
	}
}

// serviceFromEntry picks a dialable host from an mDNS entry.
func serviceFromEntry(entry *zeroconf.ServiceEntry) (Service, bool) {
	if entry == nil {
		return Service{}, false
	}

	var host string
	for _, addr := range entry.AddrIPv4 {
		if addr != nil {
			host = addr.String()
			break
		}
	}
	if host == "" {
		host = strings.TrimSuffix(entry.HostName, ".")
	}
	if host == "" {
		return Service{}, false
	}

	return Service{
		Host:     host,
		HostName: entry.HostName,
		Name:     entry.Instance,
	}, true
}

func zeroconfBrowse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("creating mDNS resolver: %w", err)
	}
	return resolver.Browse(ctx, service, domain, entries)
}

func (b *Browser) logDebug(msg string, keysAndValues ...any) {
	b.mu.RLock()
	l := b.logger
	b.mu.RUnlock()
	if l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (b *Browser) logWarn(msg string, keysAndValues ...any) {
	b.mu.RLock()
	l := b.logger
	b.mu.RUnlock()
	if l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
