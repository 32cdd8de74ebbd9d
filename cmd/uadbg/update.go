package main

import (
	"fmt"

	debloat "github.com/httprunner/DebloatAgent"
	"github.com/httprunner/DebloatAgent/internal/config"
	"github.com/spf13/cobra"
)

func newUpdateCmd() *cobra.Command {
	var flagURL string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download the latest curated package list",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := flagURL
			if url == "" {
				url = config.String(config.EnvListURL, debloat.DefaultListURL)
			}
			catalog, err := debloat.UpdateCatalog(cmd.Context(), url)
			if err != nil {
				return err
			}
			fmt.Printf("updated: %d packages from %s\n", catalog.Len(), catalog.Provenance())
			return nil
		},
	}

	cmd.Flags().StringVar(&flagURL, "url", "", "override the list download URL")
	return cmd
}
