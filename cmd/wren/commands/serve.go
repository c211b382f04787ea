package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wrenlabs/go-wren/internal/config"
	"github.com/wrenlabs/go-wren/pkg/arbiter"
	"github.com/wrenlabs/go-wren/pkg/remote"
)

var (
	serveAddr  string
	serveToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the remote command server",
	Long: `Run the remote command server: an authenticated HTTP and websocket
surface whose commands land on the hardware with remote priority, so
they preempt a running local loop. Run it as its own OS process; the
two processes coordinate through the arbiter state dir in the profile.

The bearer token comes from --token, then $WREN_TOKEN, then the
profile. The server refuses to start without one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "bind address (default from profile)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "bearer token (default $WREN_TOKEN, then profile)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := buildRig("remote", arbiter.PriorityRemote)
	if err != nil {
		return err
	}
	defer r.Close()

	cfg := remote.DefaultConfig()
	cfg.Addr = config.ServerAddr(r.profile.Remote.Addr)
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	cfg.Token = config.Token(r.profile.Remote.Token)
	if serveToken != "" {
		cfg.Token = serveToken
	}
	cfg.Commands = r.profile.Remote.Commands

	srv, err := remote.NewServer(cfg, r.arb, r.engine, r.pipe, r.seq, r.logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-ctx.Done():
		if err := srv.Shutdown(); err != nil {
			r.logger.Warn("server shutdown failed", "error", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
