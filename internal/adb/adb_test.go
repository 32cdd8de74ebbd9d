package adb

import (
	"testing"

	debloat "github.com/httprunner/DebloatAgent"
	"github.com/pkg/errors"
)

func classifyKind(t *testing.T, output string, err error) debloat.DeviceErrorKind {
	t.Helper()
	_, classified := classify("SERIAL1", output, err, []string{"pm", "uninstall"})
	if classified == nil {
		t.Fatalf("output %q: expected a device error", output)
	}
	de, ok := debloat.AsDeviceError(classified)
	if !ok {
		t.Fatalf("output %q: expected DeviceError, got %v", output, classified)
	}
	return de.Kind
}

func TestClassifyTransportErrors(t *testing.T) {
	if kind := classifyKind(t, "", errors.New("device unauthorized")); kind != debloat.DeviceErrUnauthorized {
		t.Fatalf("expected unauthorized, got %s", kind)
	}
	if kind := classifyKind(t, "", errors.New("connection reset by peer")); kind != debloat.DeviceErrDisconnected {
		t.Fatalf("expected disconnected, got %s", kind)
	}
}

func TestClassifyOutputFailures(t *testing.T) {
	for output, want := range map[string]debloat.DeviceErrorKind{
		"Failure [NOT_INSTALLED_FOR_USER]":               debloat.DeviceErrCommandFailed,
		"Error: unknown option: --wat":                   debloat.DeviceErrCommandFailed,
		"Failure [DELETE_FAILED_USER_RESTRICTED]":        debloat.DeviceErrPermissionDenied,
		"Failure [DELETE_FAILED_DEVICE_POLICY_MANAGER]":  debloat.DeviceErrPermissionDenied,
		"java.lang.SecurityException: Permission denied": debloat.DeviceErrPermissionDenied,
	} {
		if kind := classifyKind(t, output, nil); kind != want {
			t.Fatalf("output %q: expected %s, got %s", output, want, kind)
		}
	}
}

func TestClassifyPassesCleanOutputThrough(t *testing.T) {
	output, err := classify("SERIAL1", "Success", nil, []string{"pm", "uninstall"})
	if err != nil || output != "Success" {
		t.Fatalf("unexpected classification: %q %v", output, err)
	}
}
