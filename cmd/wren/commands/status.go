package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wrenlabs/go-wren/internal/log"
	"github.com/wrenlabs/go-wren/pkg/arbiter"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who holds which hardware lease",
	Long: `Show who holds which hardware lease: holder id, pid, priority, hold
age, and how long until the heartbeat goes stale. Reads the shared
state dir only; it never touches the hardware.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := loadProfile()
		if err != nil {
			return err
		}

		acfg := arbiter.DefaultConfig()
		acfg.StateDir = profile.Arbiter.StateDir
		arb, err := arbiter.New(acfg, log.L())
		if err != nil {
			return err
		}

		out, err := renderLeases(arb)
		if err != nil {
			return err
		}
		fmt.Println(dimStyle.Render("leases in " + profile.Arbiter.StateDir))
		fmt.Println(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
