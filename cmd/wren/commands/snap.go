package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wrenlabs/go-wren/internal/log"
	"github.com/wrenlabs/go-wren/pkg/arbiter"
	"github.com/wrenlabs/go-wren/pkg/camera"
)

var (
	snapPreset string
	snapOut    string
)

var snapCmd = &cobra.Command{
	Use:   "snap",
	Short: "Grab one frame from the eye camera",
	Long: `Grab one JPEG frame from the eye camera and write it under the
profile's snap directory (or --out). The camera opens under its own
lease, so a process already holding it reports busy instead of sharing
the sensor.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSnap(ctx)
	},
}

func init() {
	snapCmd.Flags().StringVar(&snapPreset, "preset", camera.PresetDefault, "capture preset: default, 720p or 1080p")
	snapCmd.Flags().StringVarP(&snapOut, "out", "o", "", "output file (default: timestamped name in the snap dir)")
	rootCmd.AddCommand(snapCmd)
}

func runSnap(ctx context.Context) error {
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

	ccfg := camera.GetPreset(snapPreset)
	if ccfg == nil {
		return fmt.Errorf("unknown preset %q, have %v", snapPreset, camera.PresetNames())
	}
	ccfg.Device = profile.Camera.DeviceID
	ccfg.HolderID = "oneshot/camera"

	cam, err := camera.Open(ctx, *ccfg, arb, log.L())
	if err != nil {
		return err
	}
	defer cam.Close()

	jpg, err := cam.GrabJPEG()
	if err != nil {
		return err
	}

	out := snapOut
	if out == "" {
		if err := os.MkdirAll(profile.Camera.SnapDir, 0o755); err != nil {
			return fmt.Errorf("snap dir: %w", err)
		}
		out = filepath.Join(profile.Camera.SnapDir, time.Now().Format("20060102-150405")+".jpg")
	}
	if err := os.WriteFile(out, jpg, 0o644); err != nil {
		return err
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("%s (%d bytes)", out, len(jpg))))
	return nil
}
