package commands

import (
	"github.com/spf13/cobra"

	"github.com/wrenlabs/go-wren/internal/config"
	"github.com/wrenlabs/go-wren/internal/log"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "wren",
	Short: "Drive the Wren desk robot",
	Long: `wren - command line control for the Wren desk robot.

Two long-running processes share the hardware through lease files:

  wren run     the local loop (idle animation, display, stdin console)
  wren serve   the remote command server

One-shot commands (expr, play, say, snap) build what they need briefly
and contend for the hardware like any other holder, so they are safe to
use while a loop is running. 'wren remote' talks to a serve process
over HTTP instead of touching the hardware at all.

The profile is read from $WREN_CONFIG, falling back to
~/.config/wren/wren.yaml. A missing file means the stock profile, which
drives a mock controller bus.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() {
		log.Init(logLevel)
	})

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "profile path (default $WREN_CONFIG, then ~/.config/wren/wren.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

// loadProfile reads the profile the --config flag points at, or the
// default location.
func loadProfile() (*config.Profile, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}
