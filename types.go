package debloat

import (
	"strings"

	"github.com/pkg/errors"
)

// ListOrigin is the curation category of a package: who ships it.
type ListOrigin int

const (
	OriginUnlisted ListOrigin = iota
	OriginAosp
	OriginCarrier
	OriginGoogle
	OriginMisc
	OriginOem
	OriginPending
)

var originNames = map[ListOrigin]string{
	OriginUnlisted: "unlisted",
	OriginAosp:     "aosp",
	OriginCarrier:  "carrier",
	OriginGoogle:   "google",
	OriginMisc:     "misc",
	OriginOem:      "oem",
	OriginPending:  "pending",
}

func (o ListOrigin) String() string {
	if s, ok := originNames[o]; ok {
		return s
	}
	return "unlisted"
}

// ParseListOrigin accepts the list tokens used by the curated document
// (case-insensitive).
func ParseListOrigin(s string) (ListOrigin, error) {
	for origin, name := range originNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return origin, nil
		}
	}
	return OriginUnlisted, errors.Errorf("unknown list origin %q", s)
}

// RemovalTier is the risk classification of removing a package. Tiers are
// totally ordered: Recommended < Advanced < Expert < Unsafe. Unlisted sorts
// last so unknown packages never look safer than catalogued ones.
type RemovalTier int

const (
	TierRecommended RemovalTier = iota
	TierAdvanced
	TierExpert
	TierUnsafe
	TierUnlisted
)

var tierNames = map[RemovalTier]string{
	TierRecommended: "Recommended",
	TierAdvanced:    "Advanced",
	TierExpert:      "Expert",
	TierUnsafe:      "Unsafe",
	TierUnlisted:    "Unlisted",
}

func (t RemovalTier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return "Unlisted"
}

func ParseRemovalTier(s string) (RemovalTier, error) {
	for tier, name := range tierNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return tier, nil
		}
	}
	return TierUnlisted, errors.Errorf("unknown removal tier %q", s)
}

// PackageState is the observed state of a package for one (device, user).
// StateUnknown is the value before the first refresh or after a failed one;
// filters must never treat it as StateEnabled.
type PackageState int

const (
	StateUnknown PackageState = iota
	StateEnabled
	StateDisabled
	StateUninstalled
	// StateNotPresent means the package does not exist for that user at all,
	// as opposed to being uninstalled but restorable.
	StateNotPresent
)

func (s PackageState) String() string {
	switch s {
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateUninstalled:
		return "uninstalled"
	case StateNotPresent:
		return "not-present"
	default:
		return "unknown"
	}
}

// Operation is a requested package transition.
type Operation int

const (
	OpDisable Operation = iota
	OpEnable
	OpRestore
	OpUninstall
)

func (op Operation) String() string {
	switch op {
	case OpDisable:
		return "disable"
	case OpEnable:
		return "enable"
	case OpRestore:
		return "restore"
	case OpUninstall:
		return "uninstall"
	default:
		return "unknown"
	}
}

// targetState is the state an operation drives a package into.
func (op Operation) targetState() PackageState {
	switch op {
	case OpDisable:
		return StateDisabled
	case OpUninstall:
		return StateUninstalled
	default:
		return StateEnabled
	}
}

// PackageDescriptor is one record of the curated removal catalog. Immutable
// after load.
type PackageDescriptor struct {
	Name        string
	Origin      ListOrigin
	Tier        RemovalTier
	Description string
	// RelatedPackages lists packages with a functional dependency on this
	// one. Advisory only; the executor never follows them automatically.
	RelatedPackages []string
}

// ConnectionStatus of an enumerated device. Re-evaluated on every
// enumeration call.
type ConnectionStatus int

const (
	StatusOffline ConnectionStatus = iota
	StatusOnline
	StatusUnauthorized
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusUnauthorized:
		return "unauthorized"
	default:
		return "offline"
	}
}

// User is one Android user profile on a device.
type User struct {
	ID    int
	Index int
	// Protected users reject package listings; actions against them are
	// refused instead of failed.
	Protected bool
}

// Device is one enumerated Android device.
type Device struct {
	Serial     string
	Model      string
	AndroidSDK int
	Status     ConnectionStatus
	Users      []User
}

// MultiUser reports whether the device can scope package commands to a
// user. Lollipop (SDK 21) introduced multi-user mode.
func (d Device) MultiUser() bool {
	return d.AndroidSDK >= 21
}

// UserByID returns the profile with the given id.
func (d Device) UserByID(id int) (User, bool) {
	for _, u := range d.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}
