package debloat

import (
	"sort"
	"strings"
)

// Filters narrow a query over the joined catalog and cache view. Nil
// pointer fields mean "no constraint"; set fields compose by logical AND.
// Tier and Origin match exactly, not "at most".
type Filters struct {
	State  *PackageState
	Tier   *RemovalTier
	Origin *ListOrigin
	// Text matches package name or description, case-insensitive.
	Text string
}

// Entry is one row of a query result: the catalog view of a package joined
// with its observed state for the queried (device, user).
type Entry struct {
	Descriptor PackageDescriptor
	State      PackageState
}

// Query joins the catalog against the cached device state and applies the
// filters. The working set is the union of catalogued packages and the
// packages observed on the device; device packages missing from the catalog
// surface as Unlisted. Output is sorted by package name ascending and is a
// pure function of its inputs, so re-running against the same snapshots
// yields the same sequence.
//
// StateUnknown entries only ever match an explicit State filter asking for
// StateUnknown; in particular they never satisfy State == StateEnabled.
func Query(catalog *Catalog, cache *DeviceStateCache, serial string, user int, filters Filters) []Entry {
	names := make(map[string]struct{})
	for _, name := range catalog.Names() {
		names[name] = struct{}{}
	}
	for _, name := range cache.Names(serial, user) {
		names[name] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	needle := strings.ToLower(strings.TrimSpace(filters.Text))

	var entries []Entry
	for _, name := range sorted {
		desc := catalog.DescriptorOrUnlisted(name)
		state := cache.Get(serial, user, name)
		if filters.State != nil && state != *filters.State {
			continue
		}
		if filters.Tier != nil && desc.Tier != *filters.Tier {
			continue
		}
		if filters.Origin != nil && desc.Origin != *filters.Origin {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(desc.Name), needle) &&
			!strings.Contains(strings.ToLower(desc.Description), needle) {
			continue
		}
		entries = append(entries, Entry{Descriptor: desc, State: state})
	}
	return entries
}
