package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wrenlabs/go-wren/pkg/arbiter"
)

var sayEmotion string

var sayCmd = &cobra.Command{
	Use:   "say <clip>",
	Short: "Speak one clip and exit",
	Long: `Speak one clip and exit. The clip is a cue name from the sounds
directory or a path to a WAV file. The emotion tag picks the voice
profile the pipeline colors the clip with.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, err := buildRig("oneshot", arbiter.PriorityLocal)
		if err != nil {
			return err
		}
		defer r.Close()

		return r.seq.Say(ctx, args[0], sayEmotion)
	},
}

func init() {
	sayCmd.Flags().StringVarP(&sayEmotion, "emotion", "e", "", "voice profile tag (e.g. excited, sad)")
	rootCmd.AddCommand(sayCmd)
}
