package debloat

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Session-fatal: the adb server/binary cannot be reached at all.
var ErrBridgeUnavailable = errors.New("device bridge unavailable")

// Catalog load failures abort that catalog, never a session.
var (
	ErrDuplicateName   = errors.New("duplicate package name in catalog")
	ErrMalformedRecord = errors.New("malformed catalog record")
)

// ErrPartialRefresh means a cache refresh failed partway; the previous
// snapshot was retained and the refresh may be retried.
var ErrPartialRefresh = errors.New("partial state refresh")

// ErrConfirmationRequired signals that the caller must collect an explicit
// risk acknowledgement before an Unsafe-tier uninstall proceeds. It is a
// required-input signal, not a device failure.
var ErrConfirmationRequired = errors.New("unsafe removal requires confirmation")

// ErrDeviceUnreachable is returned when an action needs a device that is
// not online.
var ErrDeviceUnreachable = errors.New("device unreachable")

// DeviceErrorKind classifies per-command bridge failures.
type DeviceErrorKind int

const (
	DeviceErrTimeout DeviceErrorKind = iota
	DeviceErrDisconnected
	DeviceErrPermissionDenied
	DeviceErrUnauthorized
	// DeviceErrCommandFailed: the device executed the command and rejected
	// it (pm Error/Failure output) for a reason other than permissions.
	DeviceErrCommandFailed
)

func (k DeviceErrorKind) String() string {
	switch k {
	case DeviceErrTimeout:
		return "timeout"
	case DeviceErrDisconnected:
		return "disconnected"
	case DeviceErrPermissionDenied:
		return "permission denied"
	case DeviceErrUnauthorized:
		return "unauthorized"
	default:
		return "command failed"
	}
}

// DeviceError is a typed per-command failure from the bridge. Recoverable
// by retry or user intervention.
type DeviceError struct {
	Kind   DeviceErrorKind
	Serial string
	Output string
	Err    error
}

func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("device %s: %s", e.Serial, e.Kind)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *DeviceError) Unwrap() error { return e.Err }

// AsDeviceError unwraps err into a *DeviceError when one is in the chain.
func AsDeviceError(err error) (*DeviceError, bool) {
	var de *DeviceError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// FriendlyDeviceError translates common OEM-specific package manager
// failures into actionable messages. Raw output is preserved.
func FriendlyDeviceError(output string) string {
	switch {
	case strings.Contains(output, "DELETE_FAILED_USER_RESTRICTED"):
		return "uninstall restricted by the device manufacturer (Knox or similar); try disabling instead: " + output
	case strings.Contains(output, "NOT_INSTALLED_FOR_USER"):
		return "package is not installed for this user profile: " + output
	case strings.Contains(output, "DELETE_FAILED_DEVICE_POLICY_MANAGER"):
		return "package is managed by device policy (MDM): " + output
	case strings.Contains(output, "Shell cannot change component state for null"):
		return "empty package name; refresh the package list and retry: " + output
	case strings.Contains(output, "Permission denied"),
		strings.Contains(output, "INSTALL_FAILED_PERMISSION_MODEL_DOWNGRADE"):
		return "insufficient privileges; the package may be system-protected: " + output
	default:
		return output
	}
}
