package debloat

import (
	"context"
	"strconv"
	"strings"
)

// Bridge is the device-transport capability the engine needs: enumerate
// reachable devices and run one shell command against one of them. The adb
// implementation lives in internal/adb; tests substitute scripted fakes.
//
// Shell is synchronous from the caller's point of view and must honor ctx
// cancellation and deadline. Implementations return *DeviceError for
// per-command failures and ErrBridgeUnavailable when the bridge itself is
// gone.
type Bridge interface {
	Enumerate(ctx context.Context) ([]Device, error)
	Shell(ctx context.Context, serial string, args ...string) (string, error)
}

const packagePrefix = "package:"

// parsePackageList strips the "package:" prefix from `pm list packages`
// output. Lines without the prefix (stray warnings) are dropped. Output is
// not assumed sorted or unique.
func parsePackageList(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, packagePrefix) {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(line, packagePrefix))
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// pmListArgs builds a `pm list packages -s` invocation. flag is "", "-e",
// "-d" or "-u"; user < 0 means no user scoping (single-user devices).
func pmListArgs(flag string, user int) []string {
	args := []string{"pm", "list", "packages", "-s"}
	if flag != "" {
		args = append(args, flag)
	}
	if user >= 0 {
		args = append(args, "--user", strconv.Itoa(user))
	}
	return args
}
