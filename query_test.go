package debloat

import (
	"context"
	"sort"
	"testing"
)

func queryFixture(t *testing.T) (*Catalog, *DeviceStateCache) {
	t.Helper()
	catalog, err := LoadCatalog([]byte(`{
		"com.a.one":   {"list": "google", "description": "maps helper", "removal": "Recommended"},
		"com.a.two":   {"list": "google", "description": "ads engine", "removal": "Advanced"},
		"com.b.three": {"list": "oem",    "description": "vendor tool", "removal": "Recommended"},
		"com.b.four":  {"list": "aosp",   "description": "core piece", "removal": "Unsafe"}
	}`), "test")
	if err != nil {
		t.Fatalf("load catalog failed: %v", err)
	}

	bridge := newFakeBridge("SERIAL1", 30)
	bridge.setState("SERIAL1", 0, "com.a.one", StateEnabled)
	bridge.setState("SERIAL1", 0, "com.a.two", StateDisabled)
	bridge.setState("SERIAL1", 0, "com.b.three", StateEnabled)
	bridge.setState("SERIAL1", 0, "com.b.four", StateEnabled)
	bridge.setState("SERIAL1", 0, "com.vendor.extra", StateEnabled) // not in catalog

	cache := NewDeviceStateCache()
	if _, err := cache.Refresh(context.Background(), bridge, onlineDevice("SERIAL1", 30), User{ID: 0}); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	return catalog, cache
}

func names(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Descriptor.Name)
	}
	return out
}

func TestQuerySortedAndRestartable(t *testing.T) {
	catalog, cache := queryFixture(t)
	first := Query(catalog, cache, "SERIAL1", 0, Filters{})
	if !sort.StringsAreSorted(names(first)) {
		t.Fatalf("output not sorted: %v", names(first))
	}
	second := Query(catalog, cache, "SERIAL1", 0, Filters{})
	if len(first) != len(second) {
		t.Fatalf("not restartable: %d vs %d entries", len(first), len(second))
	}
}

func TestQueryFilterComposesByIntersection(t *testing.T) {
	catalog, cache := queryFixture(t)
	enabled := StateEnabled
	recommended := TierRecommended

	both := Query(catalog, cache, "SERIAL1", 0, Filters{State: &enabled, Tier: &recommended})
	onlyState := Query(catalog, cache, "SERIAL1", 0, Filters{State: &enabled})
	onlyTier := Query(catalog, cache, "SERIAL1", 0, Filters{Tier: &recommended})

	inState := map[string]bool{}
	for _, n := range names(onlyState) {
		inState[n] = true
	}
	inTier := map[string]bool{}
	for _, n := range names(onlyTier) {
		inTier[n] = true
	}

	want := map[string]bool{}
	for n := range inState {
		if inTier[n] {
			want[n] = true
		}
	}
	if len(both) != len(want) {
		t.Fatalf("intersection mismatch: got %v want %v", names(both), want)
	}
	for _, n := range names(both) {
		if !want[n] {
			t.Fatalf("%s in combined result but not in intersection", n)
		}
	}
}

func TestQueryUnlistedDevicePackagesSurface(t *testing.T) {
	catalog, cache := queryFixture(t)
	unlisted := OriginUnlisted
	entries := Query(catalog, cache, "SERIAL1", 0, Filters{Origin: &unlisted})
	if len(entries) != 1 || entries[0].Descriptor.Name != "com.vendor.extra" {
		t.Fatalf("expected the uncatalogued device package, got %v", names(entries))
	}
	if entries[0].Descriptor.Tier != TierUnlisted {
		t.Fatalf("unlisted package should carry the Unlisted tier, got %s", entries[0].Descriptor.Tier)
	}
}

func TestQueryUnknownNeverMatchesEnabled(t *testing.T) {
	catalog, err := LoadCatalog([]byte(`{"com.a.one": {"list": "google", "removal": "Recommended"}}`), "test")
	if err != nil {
		t.Fatalf("load catalog failed: %v", err)
	}
	cache := NewDeviceStateCache() // never refreshed: everything Unknown

	enabled := StateEnabled
	if entries := Query(catalog, cache, "SERIAL1", 0, Filters{State: &enabled}); len(entries) != 0 {
		t.Fatalf("unknown state leaked into enabled filter: %v", names(entries))
	}
	unknown := StateUnknown
	if entries := Query(catalog, cache, "SERIAL1", 0, Filters{State: &unknown}); len(entries) != 1 {
		t.Fatalf("expected the unknown entry, got %v", names(entries))
	}
}

func TestQueryTextFilterMatchesNameAndDescription(t *testing.T) {
	catalog, cache := queryFixture(t)
	entries := Query(catalog, cache, "SERIAL1", 0, Filters{Text: "VENDOR"})
	got := names(entries)
	if len(got) != 2 || got[0] != "com.b.three" || got[1] != "com.vendor.extra" {
		t.Fatalf("unexpected text matches: %v", got)
	}
}
