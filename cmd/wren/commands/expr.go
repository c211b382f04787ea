package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wrenlabs/go-wren/pkg/arbiter"
)

var exprCmd = &cobra.Command{
	Use:   "expr <name>",
	Short: "Apply one expression and exit",
	Long: `Apply one expression and exit. The claim carries local priority and a
holder id of its own, so it lines up fairly behind a running loop.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, err := buildRig("oneshot", arbiter.PriorityLocal)
		if err != nil {
			return err
		}
		defer r.Close()

		if err := r.engine.SetExpression(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println(dimStyle.Render("now " + r.engine.Current()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exprCmd)
}
