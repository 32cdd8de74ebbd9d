package debloat

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type cacheKey struct {
	serial string
	user   int
}

// DeviceStateCache holds the observed per-(device, user) package states for
// one session. It is exclusively owned by that session; two concurrent
// actions against the same (device, user) require external serialization,
// which ActionExecutor provides for its own batches.
type DeviceStateCache struct {
	mu        sync.Mutex
	snapshots map[cacheKey]map[string]PackageState
}

func NewDeviceStateCache() *DeviceStateCache {
	return &DeviceStateCache{snapshots: make(map[cacheKey]map[string]PackageState)}
}

// Refresh rebuilds the (device, user) snapshot from three package listings:
// the full one including uninstalled records (-u), the enabled subset (-e)
// and the disabled subset (-d). A package in the full listing but in
// neither subset was uninstalled for that user. The snapshot is replaced
// atomically only when all three listings succeed; otherwise the previous
// snapshot is retained and ErrPartialRefresh is returned.
//
// Refresh returns the names whose state changed against the prior
// snapshot, in ascending order.
func (c *DeviceStateCache) Refresh(ctx context.Context, bridge Bridge, device Device, user User) ([]string, error) {
	next, err := readDeviceStates(ctx, bridge, device, user)
	if err != nil {
		log.Warn().Err(err).
			Str("serial", device.Serial).
			Int("user", user.ID).
			Msg("state refresh aborted, keeping previous snapshot")
		return nil, err
	}

	key := cacheKey{serial: device.Serial, user: user.ID}

	c.mu.Lock()
	prev := c.snapshots[key]
	changed := diffSnapshots(prev, next)
	c.snapshots[key] = next
	c.mu.Unlock()

	log.Info().
		Str("serial", device.Serial).
		Int("user", user.ID).
		Int("packages", len(next)).
		Int("changed", len(changed)).
		Msg("device state refreshed")
	return changed, nil
}

// readDeviceStates issues the three listings and derives a state map without
// touching any cache. Refresh commits the result; the executor's dry-run path
// reads it and throws it away.
func readDeviceStates(ctx context.Context, bridge Bridge, device Device, user User) (map[string]PackageState, error) {
	if device.Status != StatusOnline {
		return nil, errors.Wrapf(ErrDeviceUnreachable, "device %s is %s", device.Serial, device.Status)
	}
	userArg := -1
	if device.MultiUser() {
		userArg = user.ID
	}

	listings := make(map[string]map[string]struct{}, 3)
	for _, flag := range []string{"-u", "-e", "-d"} {
		raw, err := bridge.Shell(ctx, device.Serial, pmListArgs(flag, userArg)...)
		if err != nil {
			return nil, errors.Wrapf(ErrPartialRefresh, "listing %s: %v", flag, err)
		}
		listings[flag] = parsePackageList(raw)
	}

	next := make(map[string]PackageState, len(listings["-u"]))
	for name := range listings["-u"] {
		switch {
		case contains(listings["-e"], name):
			next[name] = StateEnabled
		case contains(listings["-d"], name):
			next[name] = StateDisabled
		default:
			next[name] = StateUninstalled
		}
	}
	return next, nil
}

// Get returns the observed state, StateNotPresent for a package absent from
// a refreshed snapshot, and StateUnknown when this (device, user) was never
// refreshed successfully.
func (c *DeviceStateCache) Get(serial string, user int, name string) PackageState {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot, ok := c.snapshots[cacheKey{serial: serial, user: user}]
	if !ok {
		return StateUnknown
	}
	state, ok := snapshot[name]
	if !ok {
		return StateNotPresent
	}
	return state
}

// Refreshed reports whether a snapshot exists for (serial, user).
func (c *DeviceStateCache) Refreshed(serial string, user int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.snapshots[cacheKey{serial: serial, user: user}]
	return ok
}

// Names returns the packages in the (serial, user) snapshot, ascending.
func (c *DeviceStateCache) Names(serial string, user int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.snapshots[cacheKey{serial: serial, user: user}]
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the (serial, user) state map for comparison
// in tests and dry-run verification.
func (c *DeviceStateCache) Snapshot(serial string, user int) map[string]PackageState {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.snapshots[cacheKey{serial: serial, user: user}]
	if snapshot == nil {
		return nil
	}
	out := make(map[string]PackageState, len(snapshot))
	for name, state := range snapshot {
		out[name] = state
	}
	return out
}

// Invalidate flips every cached entry for a device to StateUnknown, across
// all users. Called when the device disconnects so stale values are never
// served as live state.
func (c *DeviceStateCache) Invalidate(serial string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, snapshot := range c.snapshots {
		if key.serial != serial {
			continue
		}
		for name := range snapshot {
			snapshot[name] = StateUnknown
		}
	}
	log.Warn().Str("serial", serial).Msg("device state invalidated")
}

// applyLocally records a confirmed device-side mutation. Only the executor
// calls this, after the bridge command succeeded.
func (c *DeviceStateCache) applyLocally(serial string, user int, name string, state PackageState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{serial: serial, user: user}
	snapshot, ok := c.snapshots[key]
	if !ok {
		snapshot = make(map[string]PackageState)
		c.snapshots[key] = snapshot
	}
	snapshot[name] = state
}

func contains(set map[string]struct{}, name string) bool {
	_, ok := set[name]
	return ok
}

func diffSnapshots(prev, next map[string]PackageState) []string {
	var changed []string
	for name, state := range next {
		if prevState, ok := prev[name]; !ok || prevState != state {
			changed = append(changed, name)
		}
	}
	for name := range prev {
		if _, ok := next[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}
