package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List connected Android devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := newSession()
			if err != nil {
				return err
			}
			devices, err := session.Devices(cmd.Context())
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("no devices attached")
				return nil
			}
			for _, dev := range devices {
				line := dev.Serial + "\t" + dev.Status.String()
				if dev.Model != "" {
					line += "\t" + dev.Model
				}
				if dev.AndroidSDK > 0 {
					line += "\tsdk " + strconv.Itoa(dev.AndroidSDK)
				}
				if len(dev.Users) > 0 {
					line += "\tusers:"
					for _, u := range dev.Users {
						line += " " + strconv.Itoa(u.ID)
						if u.Protected {
							line += "(protected)"
						}
					}
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
