package debloat

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func onlineDevice(serial string, sdk int) Device {
	return Device{Serial: serial, Status: StatusOnline, AndroidSDK: sdk, Users: []User{{ID: 0}}}
}

func TestRefreshDerivesStatesFromListings(t *testing.T) {
	bridge := newFakeBridge("SERIAL1", 30)
	bridge.setState("SERIAL1", 0, "com.a.enabled", StateEnabled)
	bridge.setState("SERIAL1", 0, "com.a.disabled", StateDisabled)
	bridge.setState("SERIAL1", 0, "com.a.gone", StateUninstalled)

	cache := NewDeviceStateCache()
	changed, err := cache.Refresh(context.Background(), bridge, onlineDevice("SERIAL1", 30), User{ID: 0})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if len(changed) != 3 {
		t.Fatalf("expected 3 changed packages, got %v", changed)
	}
	for pkg, want := range map[string]PackageState{
		"com.a.enabled":  StateEnabled,
		"com.a.disabled": StateDisabled,
		"com.a.gone":     StateUninstalled,
		"com.a.absent":   StateNotPresent,
	} {
		if got := cache.Get("SERIAL1", 0, pkg); got != want {
			t.Fatalf("%s: expected %s, got %s", pkg, want, got)
		}
	}
}

func TestGetBeforeRefreshIsUnknown(t *testing.T) {
	cache := NewDeviceStateCache()
	if got := cache.Get("SERIAL1", 0, "com.whatever"); got != StateUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
	if cache.Refreshed("SERIAL1", 0) {
		t.Fatal("cache should not claim a snapshot before refresh")
	}
}

func TestPartialRefreshRetainsPriorSnapshot(t *testing.T) {
	bridge := newFakeBridge("SERIAL1", 30)
	bridge.setState("SERIAL1", 0, "com.a.app", StateEnabled)

	cache := NewDeviceStateCache()
	if _, err := cache.Refresh(context.Background(), bridge, onlineDevice("SERIAL1", 30), User{ID: 0}); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}

	// second listing of the next refresh fails mid-flight
	calls := 0
	bridge.failOn = func(serial string, args []string) error {
		if strings.Join(args, " ") == "pm list packages -s -e --user 0" {
			calls++
			return &DeviceError{Kind: DeviceErrDisconnected, Serial: serial}
		}
		return nil
	}

	_, err := cache.Refresh(context.Background(), bridge, onlineDevice("SERIAL1", 30), User{ID: 0})
	if !errors.Is(err, ErrPartialRefresh) {
		t.Fatalf("expected ErrPartialRefresh, got %v", err)
	}
	if calls == 0 {
		t.Fatal("fail hook never fired")
	}
	if got := cache.Get("SERIAL1", 0, "com.a.app"); got != StateEnabled {
		t.Fatalf("prior snapshot lost: got %s", got)
	}
}

func TestRefreshOfflineDeviceFails(t *testing.T) {
	bridge := newFakeBridge("SERIAL1", 30)
	cache := NewDeviceStateCache()
	dev := Device{Serial: "SERIAL1", Status: StatusOffline}
	if _, err := cache.Refresh(context.Background(), bridge, dev, User{ID: 0}); !errors.Is(err, ErrDeviceUnreachable) {
		t.Fatalf("expected ErrDeviceUnreachable, got %v", err)
	}
}

func TestInvalidateFlipsToUnknown(t *testing.T) {
	bridge := newFakeBridge("SERIAL1", 30)
	bridge.setState("SERIAL1", 0, "com.a.app", StateEnabled)

	cache := NewDeviceStateCache()
	if _, err := cache.Refresh(context.Background(), bridge, onlineDevice("SERIAL1", 30), User{ID: 0}); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	cache.Invalidate("SERIAL1")
	if got := cache.Get("SERIAL1", 0, "com.a.app"); got != StateUnknown {
		t.Fatalf("expected unknown after invalidate, got %s", got)
	}
}

func TestRefreshDiffReportsChanges(t *testing.T) {
	bridge := newFakeBridge("SERIAL1", 30)
	bridge.setState("SERIAL1", 0, "com.a.app", StateEnabled)

	cache := NewDeviceStateCache()
	dev := onlineDevice("SERIAL1", 30)
	if _, err := cache.Refresh(context.Background(), bridge, dev, User{ID: 0}); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	bridge.setState("SERIAL1", 0, "com.a.app", StateDisabled)
	changed, err := cache.Refresh(context.Background(), bridge, dev, User{ID: 0})
	if err != nil {
		t.Fatalf("second refresh failed: %v", err)
	}
	if len(changed) != 1 || changed[0] != "com.a.app" {
		t.Fatalf("expected single change for com.a.app, got %v", changed)
	}
}

func TestStatesScopedPerUser(t *testing.T) {
	bridge := newFakeBridge("SERIAL1", 30)
	bridge.setState("SERIAL1", 0, "com.a.app", StateEnabled)
	bridge.setState("SERIAL1", 10, "com.a.app", StateUninstalled)

	cache := NewDeviceStateCache()
	dev := Device{Serial: "SERIAL1", Status: StatusOnline, AndroidSDK: 30,
		Users: []User{{ID: 0}, {ID: 10, Index: 1}}}
	for _, user := range dev.Users {
		if _, err := cache.Refresh(context.Background(), bridge, dev, user); err != nil {
			t.Fatalf("refresh user %d failed: %v", user.ID, err)
		}
	}
	if got := cache.Get("SERIAL1", 0, "com.a.app"); got != StateEnabled {
		t.Fatalf("user 0: expected enabled, got %s", got)
	}
	if got := cache.Get("SERIAL1", 10, "com.a.app"); got != StateUninstalled {
		t.Fatalf("user 10: expected uninstalled, got %s", got)
	}
}
