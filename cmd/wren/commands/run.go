package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wrenlabs/go-wren/pkg/actions"
	"github.com/wrenlabs/go-wren/pkg/arbiter"
	"github.com/wrenlabs/go-wren/pkg/display"
	"github.com/wrenlabs/go-wren/pkg/expression"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the local loop",
	Long: `Run the local loop: build the full stack from the profile, start the
autonomous idle behavior and the display greeter, and read commands
from stdin.

Console grammar:

  expr <name>              adopt an expression
  play <token> [token...]  run an action sequence (wink, pause:300, chime)
  say <clip> [emotion]     speak a clip from the sound bank or a wav path
  idle                     return to idle, maybe drifting on the way
  status                   show who holds which lease
  quit                     settle and exit

Every claim this process makes carries local priority, so a running
serve process can preempt it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLocal(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runLocal(parent context.Context) error {
	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	r, err := buildRig("local", arbiter.PriorityLocal)
	if err != nil {
		return err
	}
	defer r.Close()

	// Wake up: settle into idle and greet on the panel.
	if err := r.engine.SetExpression(ctx, "idle"); err != nil {
		r.logger.Warn("wake pose failed", "error", err)
	}
	if r.display != nil {
		_ = r.display.Send(ctx, display.NewStatus("wren online"))
		go greeter(ctx, r)
	}

	idleDone := make(chan error, 1)
	go func() { idleDone <- r.engine.RunIdle(ctx) }()

	go console(ctx, cancel, r)

	<-ctx.Done()

	// Shutdown choreography: cut any utterance, let the idle loop
	// drain, then settle under a lease of our own.
	r.pipe.Stop()
	<-idleDone

	shCtx, shCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shCancel()
	if r.display != nil {
		_ = r.display.Send(shCtx, display.NewStatus("sleeping"))
	}
	lease, err := r.arb.Acquire(shCtx, arbiter.Actuators, "local/shutdown", arbiter.PriorityLocal, 500*time.Millisecond)
	if err != nil {
		r.logger.Warn("skipping settle pose, actuators busy", "error", err)
	} else {
		if err := r.bank.Neutral(); err != nil {
			r.logger.Warn("settle pose failed", "error", err)
		}
		if err := r.strip.Darken(); err != nil {
			r.logger.Warn("led darken failed", "error", err)
		}
		lease.Release()
	}
	fmt.Println(dimStyle.Render("wren asleep"))
	return nil
}

// greeter reacts to panel touches: a wink for the belly, a nod for
// anywhere else, and a chirp back on the panel.
func greeter(ctx context.Context, r *rig) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.display.Touches():
			if !ok {
				return
			}
			g := expression.GestureNod
			if ev.Region == "belly" {
				g = expression.GestureWink
			}
			if err := r.engine.Gesture(ctx, g); err != nil {
				r.logger.Debug("touch gesture skipped", "gesture", g, "error", err)
				continue
			}
			_ = r.display.Send(ctx, display.NewStatus("*chirp*"))
		}
	}
}

// console reads command lines from stdin until quit, EOF or ctx end.
func console(ctx context.Context, quit context.CancelFunc, r *rig) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Println(labelStyle.Render("wren awake") + dimStyle.Render("  (type help for the console grammar)"))
	for {
		fmt.Print(labelStyle.Render("wren> "))
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				quit()
				return
			}
			if dispatch(ctx, r, line) {
				quit()
				return
			}
		}
	}
}

// dispatch runs one console line. It returns true when the loop should
// end.
func dispatch(ctx context.Context, r *rig, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "expr":
		if len(rest) != 1 {
			fmt.Println(alertStyle.Render("usage: expr <name>"))
			return false
		}
		if err := r.engine.SetExpression(ctx, rest[0]); err != nil {
			fmt.Println(alertStyle.Render(err.Error()))
			return false
		}
		if r.display != nil {
			_ = r.display.Send(ctx, display.NewExpression(rest[0]))
		}
		fmt.Println(dimStyle.Render("now " + r.engine.Current()))

	case "play":
		if len(rest) == 0 {
			fmt.Println(alertStyle.Render("usage: play <token> [token...]"))
			return false
		}
		sum := r.seq.Execute(ctx, actions.Parse(rest))
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d executed, %d skipped", sum.Executed, sum.Skipped)))
		for _, reason := range sum.Reasons {
			fmt.Println(alertStyle.Render("  " + reason.Action + ": " + reason.Reason))
		}

	case "say":
		if len(rest) == 0 {
			fmt.Println(alertStyle.Render("usage: say <clip> [emotion]"))
			return false
		}
		emotion := ""
		if len(rest) > 1 {
			emotion = rest[1]
		}
		if r.display != nil {
			_ = r.display.Send(ctx, display.NewSay(rest[0], r.engine.Current()))
		}
		err := r.seq.Say(ctx, rest[0], emotion)
		if r.display != nil {
			_ = r.display.Send(ctx, display.NewClear())
		}
		if err != nil {
			fmt.Println(alertStyle.Render(err.Error()))
		}

	case "idle":
		name, err := r.engine.ReturnToIdle(ctx)
		if err != nil {
			fmt.Println(alertStyle.Render(err.Error()))
			return false
		}
		fmt.Println(dimStyle.Render("settled on " + name))
		if r.display != nil {
			_ = r.display.Send(ctx, display.NewExpression(name))
		}

	case "status":
		out, err := renderLeases(r.arb)
		if err != nil {
			fmt.Println(alertStyle.Render(err.Error()))
			return false
		}
		fmt.Println(out)

	case "help":
		fmt.Println(dimStyle.Render(`expr <name> | play <tokens> | say <clip> [emotion] | idle | status | quit
gestures: ` + strings.Join(expression.GestureNames(), ", ") +
			`  sounds: ` + strings.Join(r.sounds.Names(), ", ")))

	case "quit", "exit":
		return true

	default:
		fmt.Println(alertStyle.Render("unknown command " + cmd + " (try help)"))
	}
	return false
}
