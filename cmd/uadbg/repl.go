package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	debloat "github.com/httprunner/DebloatAgent"
	"github.com/httprunner/DebloatAgent/internal/config"
	"github.com/spf13/cobra"
)

func newReplCmd() *cobra.Command {
	var (
		flagDevice string
		flagUser   int
	)

	cmd := &cobra.Command{
		Use:     "repl",
		Aliases: []string{"shell"},
		Short:   "Interactive session keeping device state in memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := newSession()
			if err != nil {
				return err
			}
			r := &repl{
				session: session,
				serial:  flagDevice,
				user:    flagUser,
			}
			return r.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&flagDevice, "device", "d", "", "device serial")
	cmd.Flags().IntVarP(&flagUser, "user", "u", 0, "user id")
	return cmd
}

// repl is one long-lived session: the cache warms up across commands
// instead of being rebuilt per invocation. Any command failure keeps the
// loop alive.
type repl struct {
	session *debloat.Session
	serial  string
	user    int
}

func (r *repl) run(cmd *cobra.Command) error {
	fmt.Println(`uadbg interactive shell - "help" lists commands, "exit" quits`)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("uadbg [%s/user %d]> ", r.target(), r.user)
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}
		if err := r.dispatch(cmd, fields[0], fields[1:]); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func (r *repl) target() string {
	if r.serial == "" {
		return "auto"
	}
	return r.serial
}

func (r *repl) dispatch(cmd *cobra.Command, verb string, args []string) error {
	ctx := cmd.Context()
	switch verb {
	case "help":
		fmt.Println(`devices                 list connected devices
use <serial>            select target device
user <id>               select target user
refresh                 re-read package state from the device
list [substring]        list packages, optionally filtered by text
info <pkg>              show catalog + state details
disable <pkg>...        disable packages
enable <pkg>...         enable/restore packages
restore <pkg>...        alias of enable
uninstall <pkg>...      uninstall packages (--dry-run, --yes-i-know)
update                  download the latest curated list
exit                    quit`)
		return nil
	case "devices":
		devices, err := r.session.Devices(ctx)
		if err != nil {
			return err
		}
		for _, dev := range devices {
			fmt.Printf("%s\t%s\t%s\n", dev.Serial, dev.Status, dev.Model)
		}
		return nil
	case "use":
		if len(args) != 1 {
			return fmt.Errorf("usage: use <serial>")
		}
		r.serial = args[0]
		return nil
	case "user":
		if len(args) != 1 {
			return fmt.Errorf("usage: user <id>")
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		r.user = id
		return nil
	case "refresh":
		device, user, err := r.session.Resolve(ctx, r.serial, r.user)
		if err != nil {
			return err
		}
		changed, err := r.session.Refresh(ctx, device.Serial, user.ID)
		if err != nil {
			return err
		}
		fmt.Printf("refreshed, %d package(s) changed state\n", len(changed))
		return nil
	case "list":
		device, user, err := r.session.Resolve(ctx, r.serial, r.user)
		if err != nil {
			return err
		}
		if !r.session.Cache().Refreshed(device.Serial, user.ID) {
			if _, err := r.session.Refresh(ctx, device.Serial, user.ID); err != nil {
				return err
			}
		}
		filters := debloat.Filters{}
		if len(args) > 0 {
			filters.Text = strings.Join(args, " ")
		}
		entries := r.session.Query(device.Serial, user.ID, filters)
		for _, entry := range entries {
			fmt.Printf("[%-11s %-11s] %s\n", entry.State, entry.Descriptor.Tier, entry.Descriptor.Name)
		}
		fmt.Printf("%d package(s)\n", len(entries))
		return nil
	case "info":
		if len(args) != 1 {
			return fmt.Errorf("usage: info <pkg>")
		}
		desc := r.session.Catalog().DescriptorOrUnlisted(args[0])
		fmt.Printf("%s\n  list: %s  removal: %s\n", desc.Name, desc.Origin, desc.Tier)
		if desc.Description != "" {
			fmt.Printf("  %s\n", desc.Description)
		}
		device, user, err := r.session.Resolve(ctx, r.serial, r.user)
		if err == nil {
			fmt.Printf("  state: %s\n", r.session.Cache().Get(device.Serial, user.ID, desc.Name))
		}
		return nil
	case "disable", "enable", "restore", "uninstall":
		return r.action(cmd, verb, args)
	case "update":
		url := config.String(config.EnvListURL, debloat.DefaultListURL)
		catalog, err := debloat.UpdateCatalog(ctx, url)
		if err != nil {
			return err
		}
		r.session.ReplaceCatalog(catalog)
		fmt.Printf("updated: %d packages\n", catalog.Len())
		return nil
	default:
		return fmt.Errorf("unknown command %q, try help", verb)
	}
}

func (r *repl) action(cmd *cobra.Command, verb string, args []string) error {
	var (
		packages []string
		dryRun   bool
		ack      bool
	)
	for _, arg := range args {
		switch arg {
		case "--dry-run":
			dryRun = true
		case "--yes-i-know":
			ack = true
		default:
			packages = append(packages, arg)
		}
	}
	if len(packages) == 0 {
		return fmt.Errorf("usage: %s <pkg>... [--dry-run] [--yes-i-know]", verb)
	}

	var op debloat.Operation
	switch verb {
	case "disable":
		op = debloat.OpDisable
	case "uninstall":
		op = debloat.OpUninstall
	case "restore":
		op = debloat.OpRestore
	default:
		op = debloat.OpEnable
	}

	results, err := r.session.Apply(cmd.Context(), debloat.ActionRequest{
		Packages:          packages,
		Serial:            r.serial,
		UserID:            r.user,
		Op:                op,
		DryRun:            dryRun,
		AcknowledgeUnsafe: ack,
		OnResult:          printResult,
	})
	if err != nil {
		return err
	}
	if debloat.Failed(results) {
		fmt.Println("one or more packages failed")
	}
	return nil
}
