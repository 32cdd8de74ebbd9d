package debloat

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ResultKind classifies the outcome of one package within an action.
type ResultKind int

const (
	ResultApplied ResultKind = iota
	ResultSkipped
	ResultFailed
)

func (k ResultKind) String() string {
	switch k {
	case ResultApplied:
		return "applied"
	case ResultSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// SkipReason says why a package was skipped. Skips are informational, never
// failures.
type SkipReason int

const (
	SkipNone SkipReason = iota
	// SkipAlreadyInState: the package is already in the target state.
	// Requesting the same transition twice is idempotent by design.
	SkipAlreadyInState
	// SkipIncompatible: the transition is not valid from the observed
	// state, the user is protected, or the device SDK cannot express it.
	SkipIncompatible
)

func (r SkipReason) String() string {
	switch r {
	case SkipAlreadyInState:
		return "already in state"
	case SkipIncompatible:
		return "incompatible"
	default:
		return ""
	}
}

// ActionResult is the per-package outcome of an ActionRequest. Callers
// always receive exactly one result per requested package.
type ActionResult struct {
	Package string
	Kind    ResultKind
	Skip    SkipReason
	Detail  string
	Err     error
	// Commands holds the shell commands executed, or under dry-run the
	// commands that would have been executed.
	Commands []string
}

// ActionRequest asks for one transition applied to a set of packages on
// one (device, user).
type ActionRequest struct {
	Packages []string
	Serial   string
	UserID   int
	Op       Operation
	// DryRun computes every outcome without touching the device or cache.
	DryRun bool
	// AcknowledgeUnsafe must be set by the caller before an Unsafe-tier
	// package may be uninstalled.
	AcknowledgeUnsafe bool
	// OnResult, when set, receives each result as it is produced, in
	// request order.
	OnResult func(ActionResult)
}

// Failed reports whether any result in the batch failed.
func Failed(results []ActionResult) bool {
	for _, r := range results {
		if r.Kind == ResultFailed {
			return true
		}
	}
	return false
}

// ExecutorConfig wires an ActionExecutor.
type ExecutorConfig struct {
	Bridge Bridge
	Cache  *DeviceStateCache
	// Catalog returns the current catalog handle; reload swaps the handle,
	// in-flight actions keep the one they grabbed.
	Catalog func() *Catalog
	// MaxConcurrentDevices bounds cross-device fan-out in ExecuteAll.
	MaxConcurrentDevices int
	// Recorder, when set, receives one record per applied or failed
	// package. Skips and dry-runs are not recorded.
	Recorder HistoryRecorder
}

// ActionExecutor validates requested transitions and applies them through
// the bridge, one strictly serialized command stream per device. Distinct
// devices proceed in parallel up to MaxConcurrentDevices.
type ActionExecutor struct {
	bridge   Bridge
	cache    *DeviceStateCache
	catalog  func() *Catalog
	maxDev   int
	recorder HistoryRecorder

	lockMu      sync.Mutex
	deviceLocks map[string]*sync.Mutex
}

func NewActionExecutor(cfg ExecutorConfig) (*ActionExecutor, error) {
	if cfg.Bridge == nil {
		return nil, errors.New("executor: bridge cannot be nil")
	}
	if cfg.Cache == nil {
		return nil, errors.New("executor: cache cannot be nil")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("executor: catalog provider cannot be nil")
	}
	maxDev := cfg.MaxConcurrentDevices
	if maxDev <= 0 {
		maxDev = 4
	}
	return &ActionExecutor{
		bridge:      cfg.Bridge,
		cache:       cfg.Cache,
		catalog:     cfg.Catalog,
		maxDev:      maxDev,
		recorder:    cfg.Recorder,
		deviceLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (e *ActionExecutor) deviceLock(serial string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	mu, ok := e.deviceLocks[serial]
	if !ok {
		mu = &sync.Mutex{}
		e.deviceLocks[serial] = mu
	}
	return mu
}

// Execute applies one request. Packages are processed in request order and
// each outcome is final before the next package's commands are issued, so
// the serialized device channel stays consistent. Cancellation is honored
// between package boundaries: a canceled batch leaves every package either
// fully transitioned with its cache update, or untouched.
func (e *ActionExecutor) Execute(ctx context.Context, req ActionRequest) ([]ActionResult, error) {
	if len(req.Packages) == 0 {
		return nil, errors.New("executor: no packages in request")
	}

	device, err := FindDevice(ctx, e.bridge, req.Serial)
	if err != nil {
		if errors.Is(err, ErrDeviceUnreachable) {
			return e.failAll(req, errors.Wrap(ErrDeviceUnreachable, err.Error())), nil
		}
		return nil, err
	}

	user, ok := device.UserByID(req.UserID)
	if !ok {
		if req.UserID == 0 && !device.MultiUser() {
			user = User{ID: 0}
		} else {
			return e.failAll(req, errors.Errorf("user %d not found on device %s", req.UserID, device.Serial)), nil
		}
	}
	if user.Protected {
		return e.skipAll(req, SkipIncompatible, "user profile is protected"), nil
	}

	mu := e.deviceLock(device.Serial)
	mu.Lock()
	defer mu.Unlock()

	// An action against Unknown state triggers one implicit refresh so
	// decisions are made on observed state, not absence of it. Under
	// dry-run the listings land in a scratch snapshot that is thrown
	// away, so the session cache is never mutated by a preview.
	var scratch map[string]PackageState
	if !allKnown(e.cache, device.Serial, user.ID, req.Packages) {
		if req.DryRun {
			states, err := readDeviceStates(ctx, e.bridge, device, user)
			if err != nil {
				return e.failAll(req, err), nil
			}
			scratch = states
		} else if _, err := e.cache.Refresh(ctx, e.bridge, device, user); err != nil {
			return e.failAll(req, err), nil
		}
	}

	catalog := e.catalog()
	results := make([]ActionResult, 0, len(req.Packages))
	var deviceGone bool
	for _, name := range req.Packages {
		name = strings.TrimSpace(name)
		var res ActionResult
		switch {
		case ctx.Err() != nil:
			res = ActionResult{Package: name, Kind: ResultFailed, Err: ctx.Err(), Detail: "canceled"}
		case deviceGone:
			res = ActionResult{Package: name, Kind: ResultFailed, Err: ErrDeviceUnreachable, Detail: "device disconnected"}
		default:
			state := e.stateFor(scratch, device.Serial, user.ID, name)
			res = e.executeOne(ctx, catalog, device, user, req, name, state)
			if de, ok := AsDeviceError(res.Err); ok && de.Kind == DeviceErrDisconnected {
				device.Status = StatusOffline
				e.cache.Invalidate(device.Serial)
				deviceGone = true
			}
		}
		e.record(ctx, device, user, req, res)
		if req.OnResult != nil {
			req.OnResult(res)
		}
		results = append(results, res)
	}
	return results, nil
}

// ExecuteAll fans requests out across devices, bounded by the configured
// maximum, while Execute keeps each device's command stream serialized.
// Results are returned per request, aligned with the input slice.
func (e *ActionExecutor) ExecuteAll(ctx context.Context, reqs []ActionRequest) ([][]ActionResult, error) {
	all := make([][]ActionResult, len(reqs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.maxDev)
	for i := range reqs {
		i := i
		group.Go(func() error {
			results, err := e.Execute(groupCtx, reqs[i])
			if err != nil {
				return err
			}
			all[i] = results
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

// stateFor reads the package state from the dry-run scratch snapshot when
// one was taken, otherwise from the session cache. A scratch snapshot is
// complete for its (device, user), so absence from it means not present.
func (e *ActionExecutor) stateFor(scratch map[string]PackageState, serial string, user int, name string) PackageState {
	if scratch != nil {
		if state, ok := scratch[name]; ok {
			return state
		}
		return StateNotPresent
	}
	return e.cache.Get(serial, user, name)
}

// executeOne runs the shared decision logic and, outside dry-run, the
// device commands plus the cache update. The dry-run path returns before
// dispatch but after every validity check, so its output is a trustworthy
// preview of the real path.
func (e *ActionExecutor) executeOne(ctx context.Context, catalog *Catalog, device Device, user User, req ActionRequest, name string, state PackageState) ActionResult {
	desc := catalog.DescriptorOrUnlisted(name)

	decision := decide(device, user, desc, state, req.Op, req.AcknowledgeUnsafe)
	decision.Package = name

	if decision.Kind != ResultApplied || req.DryRun {
		if req.DryRun {
			log.Debug().
				Str("serial", device.Serial).
				Str("package", name).
				Str("op", req.Op.String()).
				Strs("commands", decision.Commands).
				Msg("dry-run decision")
		}
		return decision
	}

	for _, command := range decision.Commands {
		output, err := e.bridge.Shell(ctx, device.Serial, strings.Fields(command)...)
		if err != nil {
			decision.Kind = ResultFailed
			decision.Err = err
			decision.Detail = FriendlyDeviceError(errorOutput(err, output))
			log.Error().Err(err).
				Str("serial", device.Serial).
				Str("package", name).
				Str("command", command).
				Msg("device command failed")
			return decision
		}
		log.Info().
			Str("serial", device.Serial).
			Str("package", name).
			Str("command", command).
			Msg("device command applied")
	}

	target := req.Op.targetState()
	e.cache.applyLocally(device.Serial, user.ID, name, target)
	e.verify(ctx, device, user, name, target)
	return decision
}

// decide is the single validity check shared bit-for-bit by the real and
// dry-run paths.
func decide(device Device, user User, desc PackageDescriptor, state PackageState, op Operation, ackUnsafe bool) ActionResult {
	switch state {
	case StateNotPresent:
		return ActionResult{Kind: ResultSkipped, Skip: SkipIncompatible, Detail: "package not present for this user"}
	case StateUnknown:
		// Unknown survives only when the implicit refresh could not run.
		return ActionResult{Kind: ResultFailed, Err: ErrDeviceUnreachable, Detail: "package state unknown"}
	}

	target := op.targetState()
	if state == target {
		return ActionResult{Kind: ResultSkipped, Skip: SkipAlreadyInState, Detail: "already " + target.String()}
	}

	switch op {
	case OpDisable:
		if state != StateEnabled {
			return ActionResult{Kind: ResultSkipped, Skip: SkipIncompatible, Detail: "disable requires an enabled package"}
		}
	case OpEnable, OpRestore:
		if state != StateDisabled && state != StateUninstalled {
			return ActionResult{Kind: ResultSkipped, Skip: SkipIncompatible, Detail: "enable requires a disabled or uninstalled package"}
		}
	case OpUninstall:
		if state != StateEnabled && state != StateDisabled {
			return ActionResult{Kind: ResultSkipped, Skip: SkipIncompatible, Detail: "uninstall requires an enabled or disabled package"}
		}
		if desc.Tier == TierUnsafe && !ackUnsafe {
			return ActionResult{Kind: ResultFailed, Err: ErrConfirmationRequired, Detail: "package is marked unsafe to remove"}
		}
	}

	commands := transitionCommands(device, user, desc.Name, state, target)
	if len(commands) == 0 {
		return ActionResult{Kind: ResultSkipped, Skip: SkipIncompatible, Detail: "transition unsupported on SDK " + strconv.Itoa(device.AndroidSDK)}
	}
	return ActionResult{Kind: ResultApplied, Commands: commands}
}

// transitionCommands builds the shell command sequence for one package
// transition. The command that changes the package state always comes
// first; follow-ups stop the app and clear residual state. SDK fallbacks
// follow the package manager's historical surface: hide/unhide on
// Lollipop, block/unblock before that.
func transitionCommands(device Device, user User, pkg string, from, to PackageState) []string {
	sdk := device.AndroidSDK
	var base []string
	switch to {
	case StateDisabled:
		if sdk >= 23 {
			base = []string{"pm disable-user", "am force-stop", "pm clear"}
		}
	case StateUninstalled:
		switch {
		case sdk >= 23:
			base = []string{"pm uninstall"}
		case sdk >= 21:
			base = []string{"pm hide", "pm clear"}
		default:
			base = []string{"pm block", "pm clear"}
		}
	case StateEnabled:
		if from == StateDisabled {
			base = []string{"pm enable"}
		} else {
			switch {
			case sdk >= 23:
				base = []string{"cmd package install-existing"}
			case sdk >= 21:
				base = []string{"pm unhide"}
			case sdk >= 19:
				base = []string{"pm unblock", "pm clear"}
			}
		}
	}
	if len(base) == 0 {
		return nil
	}
	userFlag := ""
	if device.MultiUser() {
		userFlag = " --user " + strconv.Itoa(user.ID)
	}
	commands := make([]string, 0, len(base))
	for _, c := range base {
		commands = append(commands, c+userFlag+" "+pkg)
	}
	return commands
}

// verify re-reads the single package's state after a mutation and warns
// when the device reports something other than what was requested. OEM
// firmware occasionally restores or mirrors operations across users; that
// is surfaced as a warning, never folded into the per-package result.
func (e *ActionExecutor) verify(ctx context.Context, device Device, user User, name string, want PackageState) {
	got, err := probePackageState(ctx, e.bridge, device, user.ID, name)
	if err != nil {
		log.Warn().Err(err).Str("serial", device.Serial).Str("package", name).Msg("post-action verification skipped")
		return
	}
	if got != want {
		log.Warn().
			Str("serial", device.Serial).
			Str("package", name).
			Str("want", want.String()).
			Str("got", got.String()).
			Msg("post-action state mismatch")
		e.cache.applyLocally(device.Serial, user.ID, name, got)
		return
	}
	if len(device.Users) > 1 {
		e.warnCrossUser(ctx, device, user, name, want)
	}
}

func (e *ActionExecutor) warnCrossUser(ctx context.Context, device Device, actedUser User, name string, want PackageState) {
	for _, other := range device.Users {
		if other.ID == actedUser.ID || other.Protected {
			continue
		}
		got, err := probePackageState(ctx, e.bridge, device, other.ID, name)
		if err != nil {
			continue
		}
		if want == StateUninstalled && (got == StateEnabled || got == StateDisabled) {
			continue // untouched on the other user, the normal case
		}
		if want == StateUninstalled && got == StateUninstalled {
			log.Warn().
				Str("serial", device.Serial).
				Str("package", name).
				Int("user", other.ID).
				Msg("package also uninstalled for another user")
		}
	}
}

// probePackageState asks the device for the state of one package by
// filtered listings, cheapest check first.
func probePackageState(ctx context.Context, bridge Bridge, device Device, userID int, name string) (PackageState, error) {
	userArg := -1
	if device.MultiUser() {
		userArg = userID
	}
	for _, probe := range []struct {
		flag  string
		state PackageState
	}{
		{"-e", StateEnabled},
		{"-d", StateDisabled},
		{"-u", StateUninstalled},
	} {
		args := append(pmListArgs(probe.flag, userArg), name)
		raw, err := bridge.Shell(ctx, device.Serial, args...)
		if err != nil {
			return StateUnknown, err
		}
		if contains(parsePackageList(raw), name) {
			return probe.state, nil
		}
	}
	return StateNotPresent, nil
}

func (e *ActionExecutor) failAll(req ActionRequest, err error) []ActionResult {
	results := make([]ActionResult, 0, len(req.Packages))
	for _, name := range req.Packages {
		res := ActionResult{Package: strings.TrimSpace(name), Kind: ResultFailed, Err: err, Detail: err.Error()}
		if req.OnResult != nil {
			req.OnResult(res)
		}
		results = append(results, res)
	}
	return results
}

func (e *ActionExecutor) skipAll(req ActionRequest, reason SkipReason, detail string) []ActionResult {
	results := make([]ActionResult, 0, len(req.Packages))
	for _, name := range req.Packages {
		res := ActionResult{Package: strings.TrimSpace(name), Kind: ResultSkipped, Skip: reason, Detail: detail}
		if req.OnResult != nil {
			req.OnResult(res)
		}
		results = append(results, res)
	}
	return results
}

func (e *ActionExecutor) record(ctx context.Context, device Device, user User, req ActionRequest, res ActionResult) {
	if e.recorder == nil || req.DryRun || res.Kind == ResultSkipped {
		return
	}
	rec := ActionRecord{
		Serial:    device.Serial,
		UserID:    user.ID,
		Package:   res.Package,
		Operation: req.Op.String(),
		Outcome:   res.Kind.String(),
		Detail:    res.Detail,
		At:        time.Now(),
	}
	if err := e.recorder.RecordAction(ctx, rec); err != nil {
		log.Error().Err(err).Str("package", res.Package).Msg("action history write failed")
	}
}

func allKnown(cache *DeviceStateCache, serial string, user int, packages []string) bool {
	for _, name := range packages {
		if cache.Get(serial, user, strings.TrimSpace(name)) == StateUnknown {
			return false
		}
	}
	return true
}

func errorOutput(err error, output string) string {
	if de, ok := AsDeviceError(err); ok && de.Output != "" {
		return de.Output
	}
	if output != "" {
		return output
	}
	return err.Error()
}
