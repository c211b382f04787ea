package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wrenlabs/go-wren/pkg/actions"
	"github.com/wrenlabs/go-wren/pkg/arbiter"
)

var playCmd = &cobra.Command{
	Use:   "play <token> [token...]",
	Short: "Run one action sequence and exit",
	Long: `Run one action sequence and exit. Tokens are gestures (wink, nod,
sigh, blink), sound cues from the sounds directory, visual:<expression>
for an LED pattern, and pause:<ms>. Failures skip the token and the
sequence carries on; the summary says what ran.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, err := buildRig("oneshot", arbiter.PriorityLocal)
		if err != nil {
			return err
		}
		defer r.Close()

		sum := r.seq.Execute(ctx, actions.Parse(args))
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d executed, %d skipped", sum.Executed, sum.Skipped)))
		for _, reason := range sum.Reasons {
			fmt.Println(alertStyle.Render("  " + reason.Action + ": " + reason.Reason))
		}
		if sum.Executed == 0 && sum.Skipped > 0 {
			return fmt.Errorf("no action in the sequence ran")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
}
