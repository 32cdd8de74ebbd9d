package main

import (
	"fmt"

	debloat "github.com/httprunner/DebloatAgent"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type actionDef struct {
	use     string
	aliases []string
	short   string
	op      debloat.Operation
}

var (
	actionUninstall = actionDef{
		use:     "uninstall <package>...",
		aliases: []string{"rm"},
		short:   "Uninstall packages for a user (reversible via restore)",
		op:      debloat.OpUninstall,
	}
	actionEnable = actionDef{
		use:     "enable <package>...",
		aliases: []string{"restore"},
		short:   "Enable or reinstall packages for a user",
		op:      debloat.OpEnable,
	}
	actionDisable = actionDef{
		use:     "disable <package>...",
		short:   "Disable packages, retaining their data",
		op:      debloat.OpDisable,
	}
)

func newActionCmd(def actionDef) *cobra.Command {
	var (
		flagDevice string
		flagUser   int
		flagDryRun bool
		flagYes    bool
	)

	cmd := &cobra.Command{
		Use:     def.use,
		Aliases: def.aliases,
		Short:   def.short,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := newSession()
			if err != nil {
				return err
			}
			if flagDryRun {
				fmt.Println("DRY RUN - no changes will be made")
			}
			results, err := session.Apply(cmd.Context(), debloat.ActionRequest{
				Packages:          args,
				Serial:            flagDevice,
				UserID:            flagUser,
				Op:                def.op,
				DryRun:            flagDryRun,
				AcknowledgeUnsafe: flagYes,
				OnResult:          printResult,
			})
			if err != nil {
				return err
			}
			if debloat.Failed(results) {
				return errors.New("one or more packages failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagDevice, "device", "d", "", "device serial (defaults to the single online device)")
	cmd.Flags().IntVarP(&flagUser, "user", "u", 0, "user id")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "compute outcomes without touching the device")
	if def.op == debloat.OpUninstall {
		cmd.Flags().BoolVar(&flagYes, "yes-i-know", false, "acknowledge removal of Unsafe-tier packages")
	}
	return cmd
}

func printResult(res debloat.ActionResult) {
	switch res.Kind {
	case debloat.ResultApplied:
		fmt.Printf("  ✓ %s\n", res.Package)
		for _, command := range res.Commands {
			fmt.Printf("      %s\n", command)
		}
	case debloat.ResultSkipped:
		fmt.Printf("  - %s: skipped (%s)\n", res.Package, res.Detail)
	default:
		fmt.Printf("  ✗ %s: %s\n", res.Package, res.Detail)
	}
}
