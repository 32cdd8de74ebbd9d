package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	var (
		flagDevice string
		flagUser   int
	)

	cmd := &cobra.Command{
		Use:   "info <package>",
		Short: "Show catalog and device state details for a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			session, err := newSession()
			if err != nil {
				return err
			}
			desc := session.Catalog().DescriptorOrUnlisted(name)
			fmt.Printf("Package:     %s\n", desc.Name)
			fmt.Printf("List:        %s\n", desc.Origin)
			fmt.Printf("Removal:     %s\n", desc.Tier)
			if desc.Description != "" {
				fmt.Printf("Description: %s\n", desc.Description)
			}
			if len(desc.RelatedPackages) > 0 {
				fmt.Printf("Related:     %s\n", strings.Join(desc.RelatedPackages, ", "))
			}

			ctx := cmd.Context()
			device, user, err := session.Resolve(ctx, flagDevice, flagUser)
			if err != nil {
				// catalog info is still useful without a device
				fmt.Printf("State:       unavailable (%v)\n", err)
				return nil
			}
			if _, err := session.Refresh(ctx, device.Serial, user.ID); err != nil {
				fmt.Printf("State:       unavailable (%v)\n", err)
				return nil
			}
			state := session.Cache().Get(device.Serial, user.ID, name)
			fmt.Printf("State:       %s (device %s, user %d)\n", state, device.Serial, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagDevice, "device", "d", "", "device serial")
	cmd.Flags().IntVarP(&flagUser, "user", "u", 0, "user id")
	return cmd
}
