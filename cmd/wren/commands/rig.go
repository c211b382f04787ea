package commands

import (
	"fmt"
	"log/slog"

	"github.com/wrenlabs/go-wren/internal/config"
	"github.com/wrenlabs/go-wren/internal/log"
	"github.com/wrenlabs/go-wren/pkg/actions"
	"github.com/wrenlabs/go-wren/pkg/arbiter"
	"github.com/wrenlabs/go-wren/pkg/audioio"
	"github.com/wrenlabs/go-wren/pkg/display"
	"github.com/wrenlabs/go-wren/pkg/expression"
	"github.com/wrenlabs/go-wren/pkg/leds"
	"github.com/wrenlabs/go-wren/pkg/servo"
	"github.com/wrenlabs/go-wren/pkg/speech"
)

// controllerBus is the shared board link: angle commands for the servo
// bank, raw frames for the LED strip.
type controllerBus interface {
	servo.Bus
	leds.FrameWriter
}

// rig is one process's assembled hardware stack. Every command that
// touches the robot builds one; run and serve keep theirs for the life
// of the process, one-shots tear theirs down after a single call.
type rig struct {
	profile *config.Profile
	logger  *slog.Logger

	bank   *servo.Bank
	strip  *leds.Strip
	arb    *arbiter.Arbiter
	engine *expression.Engine
	sink   audioio.Sink
	pipe   *speech.Pipeline
	sounds *actions.SoundBank
	seq    *actions.Sequencer

	// display is nil when the profile names no panel port.
	display *display.Link
}

// buildRig assembles the stack from the profile. prefix names this
// process in lease claims ("local" or "remote"); pri is the priority
// every layer claims with. Both processes must agree on the arbiter
// state dir, which is why it comes from the shared profile.
func buildRig(prefix string, pri arbiter.Priority) (*rig, error) {
	profile, err := loadProfile()
	if err != nil {
		return nil, err
	}
	logger := log.L()

	var bus controllerBus
	if profile.Controller.Port != "" {
		sb, err := servo.OpenSerialBus(profile.Controller.Port, profile.Controller.Baud, logger)
		if err != nil {
			return nil, err
		}
		bus = sb
	} else {
		logger.Warn("no controller port in profile, driving a mock bus")
		bus = servo.NewMockBus()
	}

	bank, err := servo.NewBank(bus, profile.Servos, logger)
	if err != nil {
		bus.Close()
		return nil, err
	}
	strip := leds.NewStrip(bus, logger)

	acfg := arbiter.DefaultConfig()
	acfg.StateDir = profile.Arbiter.StateDir
	arb, err := arbiter.New(acfg, logger)
	if err != nil {
		bank.Close()
		return nil, err
	}

	cals := servo.CalibrationMap(profile.Servos)
	table, err := loadExpressionTable(profile, cals)
	if err != nil {
		bank.Close()
		return nil, err
	}

	ecfg := expression.DefaultEngineConfig()
	ecfg.HolderID = prefix + "/expression"
	ecfg.Priority = pri
	engine, err := expression.NewEngine(table, bank, strip, arb, ecfg, logger)
	if err != nil {
		bank.Close()
		return nil, err
	}

	audioCfg := audioio.DefaultConfig()
	audioCfg.Device = profile.Audio.Device
	audioCfg.SampleRate = profile.Audio.SampleRate
	audioCfg.PlayerCommand = profile.Audio.PlayCommand
	sink, err := audioio.NewSink(audioCfg, logger)
	if err != nil {
		bank.Close()
		return nil, err
	}

	voices, err := loadVoiceTable(profile)
	if err != nil {
		sink.Close()
		bank.Close()
		return nil, err
	}

	pcfg := speech.DefaultPipelineConfig()
	pcfg.HolderID = prefix + "/speech"
	pcfg.Priority = pri
	pipe, err := speech.NewPipeline(bank, sink, arb, voices, pcfg, logger)
	if err != nil {
		sink.Close()
		bank.Close()
		return nil, err
	}

	sounds, err := actions.ScanSounds(profile.SoundsDir, logger)
	if err != nil {
		sink.Close()
		bank.Close()
		return nil, err
	}
	seq := actions.NewSequencer(engine, pipe, sink, sounds, logger)

	r := &rig{
		profile: profile,
		logger:  logger,
		bank:    bank,
		strip:   strip,
		arb:     arb,
		engine:  engine,
		sink:    sink,
		pipe:    pipe,
		sounds:  sounds,
		seq:     seq,
	}

	if profile.Display.Port != "" {
		dcfg := display.DefaultLinkConfig()
		dcfg.HolderID = prefix + "/display"
		dcfg.Priority = pri
		link, err := display.OpenSerialLink(profile.Display.Port, profile.Display.Baud, arb, dcfg, logger)
		if err != nil {
			// A dead panel should not ground the whole bird.
			logger.Warn("display link unavailable", "port", profile.Display.Port, "error", err)
		} else {
			r.display = link
		}
	}

	return r, nil
}

// loadExpressionTable resolves the profile's expression table, falling
// back to the compiled-in one.
func loadExpressionTable(p *config.Profile, cals map[string]servo.Calibration) (*expression.Table, error) {
	if p.Tables.Expressions == "" {
		return expression.LoadBuiltin(cals)
	}
	t, err := expression.LoadFile(p.Tables.Expressions, cals)
	if err != nil {
		return nil, fmt.Errorf("expression table: %w", err)
	}
	return t, nil
}

func loadVoiceTable(p *config.Profile) (*speech.VoiceTable, error) {
	if p.Tables.Voices == "" {
		return speech.LoadBuiltinVoices()
	}
	v, err := speech.LoadVoiceFile(p.Tables.Voices)
	if err != nil {
		return nil, fmt.Errorf("voice table: %w", err)
	}
	return v, nil
}

// Close tears the stack down: stop any utterance, then release the
// transports. The bank close also closes the controller bus.
func (r *rig) Close() {
	r.pipe.Stop()
	if r.display != nil {
		if err := r.display.Close(); err != nil {
			r.logger.Warn("display close failed", "error", err)
		}
	}
	if err := r.sink.Close(); err != nil {
		r.logger.Warn("audio sink close failed", "error", err)
	}
	if err := r.bank.Close(); err != nil {
		r.logger.Warn("servo bank close failed", "error", err)
	}
}
