package discovery

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/dronectl/internal/observability"
)

var (
	ErrStopped  = errors.New("discovery: session stopped")
	ErrTimedOut = errors.New("discovery: wait timed out")
)

const mdnsDomain = "local."

// Config tunes one discovery session.
type Config struct {
	// DeviceIDs filters the search to these products; one browse runs per
	// id, so products outside the set are never even resolved.
	DeviceIDs []string

	// ExpireAfter drops a device whose advertisement was not renewed within
	// the window.
	ExpireAfter time.Duration

	// Backoff shapes browse restarts after resolver failures.
	Backoff BackoffConfig
}

// DefaultConfig searches for all products with a 15s liveness window.
func DefaultConfig() Config {
	return Config{
		DeviceIDs:   AllDeviceIDs(),
		ExpireAfter: 15 * time.Second,
		Backoff:     DefaultBackoff(),
	}
}

type record struct {
	desc     DeviceDescriptor
	lastSeen time.Time
}

// Session is one running network search. It owns a browse goroutine per
// device id and a reaper that expires silent devices. The registry it
// maintains is eventually consistent with the network.
type Session struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	found   map[string]record
	changed chan struct{}
	stopped bool
}

// Start begins searching and returns immediately; the registry fills in as
// advertisements arrive.
func Start(cfg Config) *Session {
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = DefaultConfig().ExpireAfter
	}
	ids := cfg.DeviceIDs

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		found:   make(map[string]record),
		changed: make(chan struct{}),
	}

	for _, id := range ids {
		s.wg.Add(1)
		go s.browse(id)
	}
	s.wg.Add(1)
	go s.reap()

	log.Info().Strs("device_ids", ids).Msg("discovery started")
	return s
}

// Devices returns a snapshot of the registry keyed by instance name.
func (s *Session) Devices() map[string]DeviceDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]DeviceDescriptor, len(s.found))
	for name, rec := range s.found {
		out[name] = rec.desc
	}
	return out
}

// WaitForChange blocks until the registry changes, the timeout elapses
// (ErrTimedOut) or the session stops (ErrStopped).
func (s *Session) WaitForChange(timeout time.Duration) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	ch := s.changed
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return ErrStopped
		}
		return nil
	case <-timer.C:
		return ErrTimedOut
	}
}

// Stop ends the search and unblocks every WaitForChange caller. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.changed)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Info().Msg("discovery stopped")
}

func (s *Session) browse(deviceID string) {
	defer s.wg.Done()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	for {
		err := s.browseOnce(deviceID)
		if s.ctx.Err() != nil {
			return
		}
		attempt++
		delay := nextBackoffDelay(s.cfg.Backoff, attempt, rng)
		if err != nil {
			log.Warn().Err(err).Str("device_id", deviceID).Dur("retry_in", delay).
				Msg("browse failed, restarting")
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// browseOnce runs one resolver until it ends or the session stops.
func (s *Session) browseOnce(deviceID string) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(ctx, serviceType(deviceID), mdnsDomain, entries); err != nil {
		return err
	}
	for entry := range entries {
		s.observe(deviceID, entry)
	}
	return nil
}

// observe folds one advertisement into the registry. Malformed entries are
// skipped, never fatal.
func (s *Session) observe(deviceID string, entry *zeroconf.ServiceEntry) {
	if entry == nil || entry.Instance == "" {
		return
	}
	desc := DeviceDescriptor{
		Name:     entry.Instance,
		DeviceID: deviceID,
		Port:     entry.Port,
		HostName: entry.HostName,
		Txt:      append([]string(nil), entry.Text...),
	}
	switch {
	case len(entry.AddrIPv4) > 0:
		desc.Addr = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		desc.Addr = entry.AddrIPv6[0]
	}
	if desc.Addr == nil || desc.Port <= 0 {
		log.Debug().Str("instance", entry.Instance).Str("device_id", deviceID).
			Msg("skipping advertisement without address")
		return
	}
	s.update(desc, time.Now())
}

func (s *Session) update(desc DeviceDescriptor, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	prev, known := s.found[desc.Name]
	s.found[desc.Name] = record{desc: desc, lastSeen: now}
	if !known {
		observability.RecordDeviceSeen(desc.DeviceID)
		log.Info().Str("device", desc.Name).Str("device_id", desc.DeviceID).
			Str("addr", desc.Addr.String()).Int("port", desc.Port).Msg("device found")
	}
	// Renewals refresh liveness silently; only arrivals and moved devices
	// count as registry changes.
	if !known || !prev.desc.Addr.Equal(desc.Addr) || prev.desc.Port != desc.Port {
		s.signalChangeLocked()
	}
}

func (s *Session) reap() {
	defer s.wg.Done()
	interval := s.cfg.ExpireAfter / 3
	if interval < time.Second {
		interval = time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-tick.C:
			s.expire(now)
		}
	}
}

func (s *Session) expire(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	dropped := false
	for name, rec := range s.found {
		if now.Sub(rec.lastSeen) > s.cfg.ExpireAfter {
			delete(s.found, name)
			dropped = true
			log.Info().Str("device", name).Msg("device expired")
		}
	}
	if dropped {
		s.signalChangeLocked()
	}
}

// signalChangeLocked wakes every current waiter. Callers hold s.mu.
func (s *Session) signalChangeLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
