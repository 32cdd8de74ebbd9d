package main

import (
	"fmt"

	debloat "github.com/httprunner/DebloatAgent"
	"github.com/httprunner/DebloatAgent/internal/adb"
	"github.com/httprunner/DebloatAgent/internal/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		flagDevice string
		flagLimit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent recorded actions for a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.String(config.EnvHistoryDBPath, "")
			if path == "" {
				return errors.Errorf("action history is disabled, set %s to a database path", config.EnvHistoryDBPath)
			}
			history, err := debloat.OpenSQLiteHistory(path)
			if err != nil {
				return err
			}
			defer history.Close()

			serial := flagDevice
			if serial == "" {
				// the database can be read with no device attached, so only
				// ask adb when the caller did not name one
				device, err := resolveDeviceSerial(cmd)
				if err != nil {
					return err
				}
				serial = device
			}

			records, err := history.Recent(cmd.Context(), serial, flagLimit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Printf("no recorded actions for %s\n", serial)
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%s  %-9s %-9s user %d  %s", rec.At.Local().Format("2006-01-02 15:04:05"), rec.Outcome, rec.Operation, rec.UserID, rec.Package)
				if rec.Detail != "" {
					fmt.Printf("  (%s)", rec.Detail)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagDevice, "device", "d", "", "device serial (defaults to the single online device)")
	cmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "maximum number of records to show")
	return cmd
}

func resolveDeviceSerial(cmd *cobra.Command) (string, error) {
	bridge, err := adb.New()
	if err != nil {
		return "", errors.Wrap(err, "specify --device to read history without a connected device")
	}
	device, err := debloat.FindDevice(cmd.Context(), bridge, "")
	if err != nil {
		return "", errors.Wrap(err, "specify --device to read history without a connected device")
	}
	return device.Serial, nil
}
