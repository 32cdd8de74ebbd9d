package debloat

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// fakeBridge emulates enough of the device side (getprop, pm list users,
// pm list packages, the mutation commands) for engine tests to exercise
// real command round trips without a device.
type fakeBridge struct {
	mu sync.Mutex

	devices []Device
	// truth is the device-side state: serial -> user -> package -> state.
	// Packages absent from a user's map do not exist for that user.
	truth map[string]map[int]map[string]PackageState

	protectedUsers map[int]bool
	// failOn, when set, is consulted before emulation so tests can inject
	// typed failures for specific commands.
	failOn func(serial string, args []string) error

	commands [][]string
}

func newFakeBridge(serial string, sdk int) *fakeBridge {
	return &fakeBridge{
		devices: []Device{{Serial: serial, Status: StatusOnline, AndroidSDK: sdk}},
		truth: map[string]map[int]map[string]PackageState{
			serial: {0: {}},
		},
		protectedUsers: map[int]bool{},
	}
}

func (f *fakeBridge) setState(serial string, user int, pkg string, state PackageState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users, ok := f.truth[serial]
	if !ok {
		users = map[int]map[string]PackageState{}
		f.truth[serial] = users
	}
	packages, ok := users[user]
	if !ok {
		packages = map[string]PackageState{}
		users[user] = packages
	}
	packages[pkg] = state
}

func (f *fakeBridge) state(serial string, user int, pkg string) PackageState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if packages, ok := f.truth[serial][user]; ok {
		if state, ok := packages[pkg]; ok {
			return state
		}
	}
	return StateNotPresent
}

func (f *fakeBridge) commandLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, 0, len(f.commands))
	for _, args := range f.commands {
		lines = append(lines, strings.Join(args, " "))
	}
	return lines
}

func (f *fakeBridge) Enumerate(ctx context.Context) ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Device, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

func (f *fakeBridge) Shell(ctx context.Context, serial string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.commands = append(f.commands, append([]string{serial}, args...))
	hook := f.failOn
	sdk := 0
	for _, d := range f.devices {
		if d.Serial == serial {
			sdk = d.AndroidSDK
		}
	}
	f.mu.Unlock()

	if hook != nil {
		if err := hook(serial, args); err != nil {
			return "", err
		}
	}

	joined := strings.Join(args, " ")
	switch {
	case joined == "getprop ro.product.model":
		return "Fake Phone", nil
	case joined == "getprop ro.build.version.sdk":
		return strconv.Itoa(sdk), nil
	case joined == "pm list users":
		return f.renderUsers(serial), nil
	case strings.HasPrefix(joined, "pm list packages"):
		return f.renderListing(serial, args)
	default:
		return f.applyMutation(serial, args)
	}
}

func (f *fakeBridge) renderUsers(serial string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b strings.Builder
	b.WriteString("Users:\n")
	users := f.truth[serial]
	// deterministic order: user 0 first, then ascending
	ids := make([]int, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	for _, id := range ids {
		b.WriteString("\tUserInfo{" + strconv.Itoa(id) + ":User:c13} running\n")
	}
	return b.String()
}

func (f *fakeBridge) renderListing(serial string, args []string) (string, error) {
	flag, user, filter := "", 0, ""
	rest := args[3:] // after "pm list packages"
	for i := 0; i < len(rest); i++ {
		switch {
		case rest[i] == "--user" && i+1 < len(rest):
			user, _ = strconv.Atoi(rest[i+1])
			i++
		case rest[i] == "-s":
			// system filter, all fake packages are system packages
		case strings.HasPrefix(rest[i], "-"):
			flag = rest[i]
		default:
			filter = rest[i]
		}
	}
	if f.protectedUsers[user] {
		return "", errors.Errorf("Error: couldn't get users for user %d", user)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var b strings.Builder
	for pkg, state := range f.truth[serial][user] {
		if filter != "" && !strings.Contains(pkg, filter) {
			continue
		}
		include := false
		switch flag {
		case "-e":
			include = state == StateEnabled
		case "-d":
			include = state == StateDisabled
		case "-u":
			include = state != StateNotPresent
		default:
			include = state == StateEnabled || state == StateDisabled
		}
		if include {
			b.WriteString("package:" + pkg + "\n")
		}
	}
	return b.String(), nil
}

func (f *fakeBridge) applyMutation(serial string, args []string) (string, error) {
	joined := strings.Join(args, " ")
	user := 0
	for i, a := range args {
		if a == "--user" && i+1 < len(args) {
			user, _ = strconv.Atoi(args[i+1])
		}
	}
	pkg := args[len(args)-1]

	var next PackageState
	switch {
	case strings.HasPrefix(joined, "pm disable-user"):
		next = StateDisabled
	case strings.HasPrefix(joined, "pm enable"):
		next = StateEnabled
	case strings.HasPrefix(joined, "pm uninstall"), strings.HasPrefix(joined, "pm hide"),
		strings.HasPrefix(joined, "pm block"):
		next = StateUninstalled
	case strings.HasPrefix(joined, "cmd package install-existing"),
		strings.HasPrefix(joined, "pm unhide"), strings.HasPrefix(joined, "pm unblock"):
		next = StateEnabled
	case strings.HasPrefix(joined, "am force-stop"), strings.HasPrefix(joined, "pm clear"):
		return "Success", nil
	default:
		return "", errors.Errorf("fake bridge: unhandled command %q", joined)
	}
	if f.state(serial, user, pkg) == StateNotPresent {
		return "", &DeviceError{Kind: DeviceErrCommandFailed, Serial: serial,
			Output: "Failure [NOT_INSTALLED_FOR_USER]"}
	}
	f.setState(serial, user, pkg, next)
	return "Success", nil
}
