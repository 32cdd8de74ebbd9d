// Package adb implements the engine's Bridge over the adb server using
// gadb, so no adb binary needs to be shelled out to.
package adb

import (
	"context"
	"strings"
	"time"

	debloat "github.com/httprunner/DebloatAgent"
	"github.com/httprunner/DebloatAgent/internal/config"
	"github.com/httprunner/httprunner/v5/pkg/gadb"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultCommandTimeout = 30 * time.Second

// Bridge talks to the local adb server.
type Bridge struct {
	client  gadb.Client
	timeout time.Duration
}

// New connects to the adb server. A missing or unreachable server is
// fatal for the whole session: no device operation can work without it.
func New() (*Bridge, error) {
	client, err := gadb.NewClient()
	if err != nil {
		return nil, errors.Wrapf(debloat.ErrBridgeUnavailable, "connect adb server: %v", err)
	}
	return &Bridge{
		client:  client,
		timeout: config.Duration(config.EnvCommandTimeout, defaultCommandTimeout),
	}, nil
}

// Enumerate lists attached devices with their connection status. Meta
// (model, SDK, users) is filled in by the engine through Shell calls, so
// offline devices never get probed.
func (b *Bridge) Enumerate(ctx context.Context) ([]debloat.Device, error) {
	devs, err := b.client.DeviceList()
	if err != nil {
		return nil, errors.Wrapf(debloat.ErrBridgeUnavailable, "list devices: %v", err)
	}
	devices := make([]debloat.Device, 0, len(devs))
	for _, dev := range devs {
		if dev == nil {
			continue
		}
		serial := strings.TrimSpace(dev.Serial())
		if serial == "" {
			continue
		}
		status := debloat.StatusOffline
		if state, stateErr := dev.State(); stateErr == nil {
			status = mapState(state)
		}
		devices = append(devices, debloat.Device{Serial: serial, Status: status})
	}
	return devices, nil
}

func mapState(state gadb.DeviceState) debloat.ConnectionStatus {
	switch strings.ToLower(strings.TrimSpace(string(state))) {
	case string(gadb.StateOnline), "device":
		return debloat.StatusOnline
	case "unauthorized":
		return debloat.StatusUnauthorized
	default:
		return debloat.StatusOffline
	}
}

// Shell runs one command on one device, bounded by the configured
// per-command timeout. Commands are never issued concurrently to the same
// device by the engine; this method adds no queueing of its own.
func (b *Bridge) Shell(ctx context.Context, serial string, args ...string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("adb bridge: empty shell command")
	}
	timeout := b.timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dev, err := b.findDevice(serial)
	if err != nil {
		return "", err
	}

	type shellResult struct {
		output string
		err    error
	}
	done := make(chan shellResult, 1)
	go func() {
		output, runErr := dev.RunShellCommand(args[0], args[1:]...)
		done <- shellResult{output: output, err: runErr}
	}()

	select {
	case <-ctx.Done():
		return "", &debloat.DeviceError{
			Kind:   debloat.DeviceErrTimeout,
			Serial: serial,
			Err:    ctx.Err(),
		}
	case res := <-done:
		return classify(serial, strings.TrimSpace(res.output), res.err, args)
	}
}

// classify folds gadb transport errors and the package manager's
// stdout-reported failures into the engine's typed device errors. adb
// reports some failures on stdout with a zero status, so output is
// inspected too.
func classify(serial, output string, err error, args []string) (string, error) {
	if err != nil {
		lower := strings.ToLower(err.Error())
		kind := debloat.DeviceErrDisconnected
		switch {
		case strings.Contains(lower, "unauthorized"):
			kind = debloat.DeviceErrUnauthorized
		case strings.Contains(lower, "permission denied"):
			kind = debloat.DeviceErrPermissionDenied
		}
		return "", &debloat.DeviceError{Kind: kind, Serial: serial, Output: output, Err: err}
	}
	if isPermissionOutput(output) {
		return "", &debloat.DeviceError{Kind: debloat.DeviceErrPermissionDenied, Serial: serial, Output: output}
	}
	if strings.Contains(output, "Error") || strings.Contains(output, "Failure") {
		return "", &debloat.DeviceError{Kind: debloat.DeviceErrCommandFailed, Serial: serial, Output: output}
	}
	log.Debug().Str("serial", serial).Strs("args", args).Msg("shell command ok")
	return output, nil
}

// isPermissionOutput matches the outputs the package manager emits when the
// shell user lacks the privilege for an operation, including the failure
// codes Knox/MDM firmware reports for restricted packages.
func isPermissionOutput(output string) bool {
	for _, marker := range []string{
		"Permission denied",
		"Security exception",
		"SecurityException",
		"DELETE_FAILED_USER_RESTRICTED",
		"DELETE_FAILED_DEVICE_POLICY_MANAGER",
		"INSTALL_FAILED_PERMISSION_MODEL_DOWNGRADE",
	} {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}

func (b *Bridge) findDevice(serial string) (*gadb.Device, error) {
	devs, err := b.client.DeviceList()
	if err != nil {
		return nil, errors.Wrapf(debloat.ErrBridgeUnavailable, "list devices: %v", err)
	}
	target := strings.TrimSpace(serial)
	for _, d := range devs {
		if d == nil {
			continue
		}
		if strings.TrimSpace(d.Serial()) == target {
			return d, nil
		}
	}
	return nil, &debloat.DeviceError{
		Kind:   debloat.DeviceErrDisconnected,
		Serial: serial,
		Err:    errors.Errorf("device %s not attached", serial),
	}
}
