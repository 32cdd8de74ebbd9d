package debloat

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// catalogRecord mirrors one entry of the curated JSON document.
type catalogRecord struct {
	Name         string   `json:"id"`
	List         string   `json:"list"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
	NeededBy     []string `json:"neededBy"`
	Labels       []string `json:"labels"`
	Removal      string   `json:"removal"`
}

// Catalog is the immutable, loaded-once index of known packages. Reload
// builds a whole new Catalog and the session swaps the handle, so in-flight
// queries never observe a half-updated index.
type Catalog struct {
	byName     map[string]PackageDescriptor
	sortedName []string
	provenance string
}

// LoadCatalog parses a curated package list document. The document is
// either a JSON object keyed by package name or a JSON array of records
// carrying an "id" field. provenance tags where the blob came from
// (bundled file, cache path, URL) for display only.
func LoadCatalog(data []byte, provenance string) (*Catalog, error) {
	records, err := decodeRecords(data)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]PackageDescriptor, len(records))
	for _, rec := range records {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			return nil, errors.Wrap(ErrMalformedRecord, "record without package name")
		}
		if _, exists := byName[name]; exists {
			return nil, errors.Wrapf(ErrDuplicateName, "package %s", name)
		}
		origin, err := ParseListOrigin(rec.List)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedRecord, "package %s: %v", name, err)
		}
		tier, err := ParseRemovalTier(rec.Removal)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedRecord, "package %s: %v", name, err)
		}
		related := append([]string(nil), rec.Dependencies...)
		related = append(related, rec.NeededBy...)
		byName[name] = PackageDescriptor{
			Name:            name,
			Origin:          origin,
			Tier:            tier,
			Description:     strings.TrimSpace(rec.Description),
			RelatedPackages: related,
		}
	}

	sorted := make([]string, 0, len(byName))
	for name := range byName {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	log.Info().
		Int("packages", len(byName)).
		Str("provenance", provenance).
		Msg("catalog loaded")

	return &Catalog{byName: byName, sortedName: sorted, provenance: provenance}, nil
}

func decodeRecords(data []byte) ([]catalogRecord, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var records []catalogRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, errors.Wrap(ErrMalformedRecord, err.Error())
		}
		return records, nil
	}
	var keyed map[string]catalogRecord
	if err := json.Unmarshal(data, &keyed); err != nil {
		return nil, errors.Wrap(ErrMalformedRecord, err.Error())
	}
	records := make([]catalogRecord, 0, len(keyed))
	for name, rec := range keyed {
		rec.Name = name
		records = append(records, rec)
	}
	return records, nil
}

// Len returns the number of catalogued packages.
func (c *Catalog) Len() int { return len(c.byName) }

// Provenance returns the tag supplied at load time.
func (c *Catalog) Provenance() string { return c.provenance }

// Lookup returns the descriptor for an exact package name.
func (c *Catalog) Lookup(name string) (PackageDescriptor, bool) {
	desc, ok := c.byName[strings.TrimSpace(name)]
	return desc, ok
}

// Search returns all descriptors whose name or description contains the
// substring, case-insensitive, in ascending name order. The result is a
// pure function of the immutable index, so re-running it yields the same
// sequence.
func (c *Catalog) Search(substring string) []PackageDescriptor {
	needle := strings.ToLower(strings.TrimSpace(substring))
	var matches []PackageDescriptor
	for _, name := range c.sortedName {
		desc := c.byName[name]
		if needle == "" ||
			strings.Contains(strings.ToLower(desc.Name), needle) ||
			strings.Contains(strings.ToLower(desc.Description), needle) {
			matches = append(matches, desc)
		}
	}
	return matches
}

// Names returns all catalogued package names in ascending order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.sortedName...)
}

// DescriptorOrUnlisted returns the catalog entry for name, or a synthetic
// Unlisted descriptor when the device carries a package the catalog does
// not know.
func (c *Catalog) DescriptorOrUnlisted(name string) PackageDescriptor {
	if desc, ok := c.Lookup(name); ok {
		return desc
	}
	return PackageDescriptor{
		Name:   strings.TrimSpace(name),
		Origin: OriginUnlisted,
		Tier:   TierUnlisted,
	}
}
