package main

import (
	"fmt"
	"strings"

	debloat "github.com/httprunner/DebloatAgent"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var (
		flagDevice  string
		flagUser    int
		flagState   string
		flagRemoval string
		flagList    string
		flagSearch  string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List packages on a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := buildFilters(flagState, flagRemoval, flagList, flagSearch)
			if err != nil {
				return err
			}
			session, err := newSession()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			device, user, err := session.Resolve(ctx, flagDevice, flagUser)
			if err != nil {
				return err
			}
			if _, err := session.Refresh(ctx, device.Serial, user.ID); err != nil {
				return err
			}
			entries := session.Query(device.Serial, user.ID, filters)
			for _, entry := range entries {
				fmt.Printf("[%-11s %-11s %-8s] %s\n",
					entry.State, entry.Descriptor.Tier, entry.Descriptor.Origin, entry.Descriptor.Name)
			}
			fmt.Printf("\n%d package(s)\n", len(entries))
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagDevice, "device", "d", "", "device serial (defaults to the single online device)")
	cmd.Flags().IntVarP(&flagUser, "user", "u", 0, "user id")
	cmd.Flags().StringVarP(&flagState, "state", "s", "", "filter by state (enabled|disabled|uninstalled|unknown)")
	cmd.Flags().StringVarP(&flagRemoval, "removal", "r", "", "filter by removal tier (recommended|advanced|expert|unsafe|unlisted)")
	cmd.Flags().StringVarP(&flagList, "list", "l", "", "filter by list origin (aosp|carrier|google|misc|oem|pending|unlisted)")
	cmd.Flags().StringVarP(&flagSearch, "search", "q", "", "substring match against name or description")
	return cmd
}

func buildFilters(state, removal, list, search string) (debloat.Filters, error) {
	var filters debloat.Filters
	if s := strings.TrimSpace(state); s != "" {
		parsed, err := parseStateFilter(s)
		if err != nil {
			return filters, err
		}
		filters.State = &parsed
	}
	if r := strings.TrimSpace(removal); r != "" {
		tier, err := debloat.ParseRemovalTier(r)
		if err != nil {
			return filters, err
		}
		filters.Tier = &tier
	}
	if l := strings.TrimSpace(list); l != "" {
		origin, err := debloat.ParseListOrigin(l)
		if err != nil {
			return filters, err
		}
		filters.Origin = &origin
	}
	filters.Text = strings.TrimSpace(search)
	return filters, nil
}

func parseStateFilter(s string) (debloat.PackageState, error) {
	switch strings.ToLower(s) {
	case "enabled":
		return debloat.StateEnabled, nil
	case "disabled":
		return debloat.StateDisabled, nil
	case "uninstalled":
		return debloat.StateUninstalled, nil
	case "unknown":
		return debloat.StateUnknown, nil
	default:
		return debloat.StateUnknown, errors.Errorf("unknown state filter %q", s)
	}
}
