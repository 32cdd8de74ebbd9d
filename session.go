package debloat

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// SessionConfig wires one Session.
type SessionConfig struct {
	Bridge  Bridge
	Catalog *Catalog
	// MaxConcurrentDevices bounds multi-device action fan-out.
	MaxConcurrentDevices int
	// Recorder optionally persists applied/failed mutations.
	Recorder HistoryRecorder
}

// Session is one live instance of the engine: a catalog handle, an
// exclusively owned device-state cache and an executor over one bridge.
// The REPL keeps a Session alive across commands; one-shot CLI invocations
// build one, use it and drop it. A Session must not be shared by
// concurrent callers issuing actions against the same (device, user); the
// executor serializes its own batches per device but cannot see foreign
// sessions.
type Session struct {
	bridge   Bridge
	cache    *DeviceStateCache
	executor *ActionExecutor

	catalogMu sync.RWMutex
	catalog   *Catalog
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Bridge == nil {
		return nil, errors.New("session: bridge cannot be nil")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("session: catalog cannot be nil")
	}
	s := &Session{
		bridge:  cfg.Bridge,
		cache:   NewDeviceStateCache(),
		catalog: cfg.Catalog,
	}
	executor, err := NewActionExecutor(ExecutorConfig{
		Bridge:               cfg.Bridge,
		Cache:                s.cache,
		Catalog:              s.Catalog,
		MaxConcurrentDevices: cfg.MaxConcurrentDevices,
		Recorder:             cfg.Recorder,
	})
	if err != nil {
		return nil, err
	}
	s.executor = executor
	return s, nil
}

// Catalog returns the current catalog handle. Queries hold on to the
// returned pointer; a concurrent reload never mutates it.
func (s *Session) Catalog() *Catalog {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return s.catalog
}

// ReplaceCatalog atomically swaps in a freshly loaded catalog. In-flight
// queries keep the handle they already grabbed.
func (s *Session) ReplaceCatalog(catalog *Catalog) {
	if catalog == nil {
		return
	}
	s.catalogMu.Lock()
	s.catalog = catalog
	s.catalogMu.Unlock()
}

// Cache exposes the session's device-state cache for reads.
func (s *Session) Cache() *DeviceStateCache { return s.cache }

// Devices enumerates reachable devices with meta filled in.
func (s *Session) Devices(ctx context.Context) ([]Device, error) {
	return DiscoverDevices(ctx, s.bridge)
}

// Resolve picks the target device for a serial (or the single online
// device when serial is empty) and the user profile on it.
func (s *Session) Resolve(ctx context.Context, serial string, userID int) (Device, User, error) {
	device, err := FindDevice(ctx, s.bridge, serial)
	if err != nil {
		return Device{}, User{}, err
	}
	user, ok := device.UserByID(userID)
	if !ok {
		if userID == 0 && !device.MultiUser() {
			return device, User{ID: 0}, nil
		}
		return Device{}, User{}, errors.Errorf("user %d not found on device %s", userID, device.Serial)
	}
	return device, user, nil
}

// Refresh rebuilds the cache snapshot for (serial, user) and returns the
// packages whose state changed.
func (s *Session) Refresh(ctx context.Context, serial string, userID int) ([]string, error) {
	device, user, err := s.Resolve(ctx, serial, userID)
	if err != nil {
		return nil, err
	}
	return s.cache.Refresh(ctx, s.bridge, device, user)
}

// Query answers "packages matching filters" for (serial, user) against the
// current catalog handle and cache snapshot. Cold devices should be
// refreshed first; unrefreshed state reads as Unknown.
func (s *Session) Query(serial string, userID int, filters Filters) []Entry {
	return Query(s.Catalog(), s.cache, serial, userID, filters)
}

// Apply runs one action request through the executor.
func (s *Session) Apply(ctx context.Context, req ActionRequest) ([]ActionResult, error) {
	return s.executor.Execute(ctx, req)
}

// ApplyAll fans action requests out across devices.
func (s *Session) ApplyAll(ctx context.Context, reqs []ActionRequest) ([][]ActionResult, error) {
	return s.executor.ExecuteAll(ctx, reqs)
}
