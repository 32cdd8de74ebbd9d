package main

import (
	"os"

	debloat "github.com/httprunner/DebloatAgent"
	envload "github.com/httprunner/DebloatAgent/internal"
	"github.com/httprunner/DebloatAgent/internal/adb"
	"github.com/httprunner/DebloatAgent/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "uadbg",
	Short: "Manage Android system packages across connected devices",
	Long: `uadbg classifies system packages against the curated removal-risk
catalog, tracks their per-device/per-user state over adb and applies
reversible disable/enable/uninstall actions, with dry-run previews.`,
	SilenceUsage: true,
}

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.AddCommand(
		newDevicesCmd(),
		newListCmd(),
		newInfoCmd(),
		newActionCmd(actionUninstall),
		newActionCmd(actionEnable),
		newActionCmd(actionDisable),
		newUpdateCmd(),
		newHistoryCmd(),
		newReplCmd(),
	)
	_ = envload.Ensure()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("uadbg command failed")
		os.Exit(1)
	}
}

// newSession builds a one-shot session: adb bridge, cached catalog (empty
// when none was ever downloaded) and the optional sqlite history recorder.
func newSession() (*debloat.Session, error) {
	bridge, err := adb.New()
	if err != nil {
		return nil, err
	}

	catalog, modTime, err := debloat.LoadCachedCatalog()
	if err != nil {
		log.Warn().Err(err).Msg("no usable package list cache, packages will show as unlisted")
		catalog, err = debloat.LoadCatalog([]byte("{}"), "empty")
		if err != nil {
			return nil, err
		}
	} else {
		log.Debug().Time("modified", modTime).Int("packages", catalog.Len()).Msg("catalog loaded from cache")
	}

	var recorder debloat.HistoryRecorder
	if path := config.String(config.EnvHistoryDBPath, ""); path != "" {
		history, err := debloat.OpenSQLiteHistory(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("action history disabled")
		} else {
			recorder = history
		}
	}

	return debloat.NewSession(debloat.SessionConfig{
		Bridge:               bridge,
		Catalog:              catalog,
		MaxConcurrentDevices: config.Int(config.EnvMaxDevices, 4),
		Recorder:             recorder,
	})
}
