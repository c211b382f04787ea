package commands

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wrenlabs/go-wren/internal/config"
	"github.com/wrenlabs/go-wren/internal/httpc"
	"github.com/wrenlabs/go-wren/pkg/audioio"
	"github.com/wrenlabs/go-wren/pkg/remote"
)

var (
	remoteAddr  string
	remoteToken string
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Drive a robot over its remote API",
	Long: `Drive a robot over its remote API instead of the local hardware.
Commands land with remote priority, so they preempt whatever the local
loop is doing. The address and token come from the profile's remote
section; $WREN_ADDR and $WREN_TOKEN override it, flags override both.`,
}

func init() {
	remoteCmd.PersistentFlags().StringVarP(&remoteAddr, "addr", "a", "", "server address (default $WREN_ADDR, then profile)")
	remoteCmd.PersistentFlags().StringVarP(&remoteToken, "token", "t", "", "bearer token (default $WREN_TOKEN, then profile)")
	remoteSayCmd.Flags().StringVarP(&remoteEmotion, "emotion", "e", "", "voice profile tag")
	remoteSayCmd.Flags().BoolVar(&remotePush, "push", false, "treat the clip as a local WAV and ship its samples")
	remoteCmd.AddCommand(remoteExprCmd, remoteActionsCmd, remoteSayCmd, remoteStatusCmd, remoteWatchCmd)
	rootCmd.AddCommand(remoteCmd)
}

// remoteAPI resolves the server address and token and builds the client.
func remoteAPI() (*httpc.API, error) {
	profile, err := loadProfile()
	if err != nil {
		return nil, err
	}
	addr := config.ServerAddr(profile.Remote.Addr)
	if remoteAddr != "" {
		addr = remoteAddr
	}
	// A profile bind address like ":8090" means this machine.
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	token := config.Token(profile.Remote.Token)
	if remoteToken != "" {
		token = remoteToken
	}
	if token == "" {
		return nil, fmt.Errorf("no bearer token: set --token, $WREN_TOKEN or the profile")
	}
	return httpc.NewAPI(addr, token), nil
}

var remoteExprCmd = &cobra.Command{
	Use:   "expr <name>",
	Short: "Apply an expression on the robot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := remoteAPI()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		got, err := api.Expression(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(dimStyle.Render("robot now " + got))
		return nil
	},
}

var remoteActionsCmd = &cobra.Command{
	Use:     "actions <token> [token...]",
	Aliases: []string{"play"},
	Short:   "Run an action sequence on the robot",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := remoteAPI()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sum, err := api.Actions(ctx, args)
		if err != nil {
			return err
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d executed, %d skipped", sum.Executed, sum.Skipped)))
		for _, reason := range sum.Reasons {
			fmt.Println(alertStyle.Render("  " + reason.Action + ": " + reason.Reason))
		}
		return nil
	},
}

var (
	remoteEmotion string
	remotePush    bool
)

var remoteSayCmd = &cobra.Command{
	Use:   "say <clip>",
	Short: "Speak a clip on the robot",
	Long: `Speak a clip on the robot. By default the clip names a cue or WAV
path on the robot's side. With --push the clip is a local WAV file,
read here and shipped to the robot as raw samples.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := remoteAPI()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Speak replies only after the utterance finishes.
		api.WithTimeout(2 * time.Minute)

		if remotePush {
			chunk, err := audioio.ReadWAVFile(args[0])
			if err != nil {
				return err
			}
			mono := chunk.Mono()
			return api.SpeakPCM(ctx, mono.Samples, mono.SampleRate, remoteEmotion)
		}
		return api.Say(ctx, args[0], remoteEmotion)
	},
}

var remoteStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the robot's state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := remoteAPI()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		snap, err := api.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Println(renderSnapshot(snap))
		return nil
	},
}

var remoteWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream the robot's state feed",
	Long: `Stream the robot's state feed: one line per update until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := remoteAPI()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stream, err := api.WatchState(ctx)
		if err != nil {
			return err
		}
		defer stream.Close()
		go func() {
			<-ctx.Done()
			stream.Close()
		}()

		for {
			snap, err := stream.Next()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
					return err
				}
			}
			fmt.Println(renderSnapshot(snap))
		}
	},
}

// renderSnapshot formats one state line: time, expression, speech, and
// every reported resource.
func renderSnapshot(snap *remote.StateSnapshot) string {
	at := time.UnixMilli(snap.Time).Format("15:04:05")

	parts := []string{dimStyle.Render(at)}
	if snap.Expression != "" {
		parts = append(parts, labelStyle.Render(snap.Expression))
	}
	if len(snap.Mood) > 1 {
		parts = append(parts, dimStyle.Render("after "+strings.Join(snap.Mood[:len(snap.Mood)-1], ",")))
	}
	if snap.Speaking {
		parts = append(parts, labelStyle.Render("speaking"))
	}

	names := make([]string, 0, len(snap.Resources))
	for name := range snap.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := snap.Resources[name]
		if !st.Held {
			parts = append(parts, dimStyle.Render(name+"=free"))
			continue
		}
		held := fmt.Sprintf("%s=%s(%s)", name, st.Holder, st.Priority)
		if st.Revoked {
			parts = append(parts, alertStyle.Render(held+" revoked"))
		} else {
			parts = append(parts, held)
		}
	}
	parts = append(parts, dimStyle.Render(fmt.Sprintf("watchers=%d", snap.Watchers)))
	return strings.Join(parts, "  ")
}
