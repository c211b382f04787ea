package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/wrenlabs/go-wren/pkg/servo"
)

// Profile is the full hardware and service configuration for one Wren.
// Fields left out of the YAML file keep their defaults, so a minimal
// profile only names the ports that differ from a stock build.
type Profile struct {
	Controller ControllerConfig    `yaml:"controller"`
	Servos     []servo.Calibration `yaml:"servos"`
	Display    DisplayConfig       `yaml:"display"`
	Audio      AudioConfig         `yaml:"audio"`
	Camera     CameraConfig        `yaml:"camera"`
	Arbiter    ArbiterConfig       `yaml:"arbiter"`
	Tables     TablesConfig        `yaml:"tables"`
	SoundsDir  string              `yaml:"sounds_dir"`
	Remote     RemoteConfig        `yaml:"remote"`
}

// ControllerConfig is the serial link to the servo and LED board.
// An empty port means no hardware; commands fall back to a mock bus.
type ControllerConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// DisplayConfig is the serial link to the chest display.
type DisplayConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// AudioConfig selects the playback device.
type AudioConfig struct {
	Device     string `yaml:"device"`
	SampleRate int    `yaml:"sample_rate"`
	// PlayCommand overrides the player binary, mostly for dev machines
	// without aplay.
	PlayCommand string `yaml:"play_command"`
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	DeviceID int    `yaml:"device_id"`
	SnapDir  string `yaml:"snap_dir"`
}

// ArbiterConfig points both processes at the shared lease directory.
// Timing windows are fixed in code; only the location is per-machine.
type ArbiterConfig struct {
	StateDir string `yaml:"state_dir"`
}

// TablesConfig points at the expression and voice tables. Empty paths use
// the tables compiled into the binary.
type TablesConfig struct {
	Expressions string `yaml:"expressions"`
	Voices      string `yaml:"voices"`
}

// RemoteConfig configures the remote command server.
type RemoteConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
	// Commands whitelists what the remote surface may invoke. An empty
	// list allows everything, which is only sane on a trusted LAN.
	Commands []string `yaml:"commands"`
}

// Default returns the stock Wren profile.
func Default() *Profile {
	return &Profile{
		Controller: ControllerConfig{Port: "", Baud: 115200},
		Servos: []servo.Calibration{
			{ID: servo.NeckPan, MinDeg: -80, MaxDeg: 80, NeutralDeg: 0},
			{ID: servo.NeckTilt, MinDeg: -35, MaxDeg: 40, NeutralDeg: 0},
			{ID: servo.EyelidLeft, MinDeg: 0, MaxDeg: 70, NeutralDeg: 60},
			{ID: servo.EyelidRight, MinDeg: 0, MaxDeg: 70, NeutralDeg: 60, Inverted: true},
			{ID: servo.Mouth, MinDeg: 0, MaxDeg: 35, NeutralDeg: 0},
			{ID: servo.WingLeft, MinDeg: -10, MaxDeg: 90, NeutralDeg: 5},
			{ID: servo.WingRight, MinDeg: -10, MaxDeg: 90, NeutralDeg: 5, Inverted: true},
		},
		Display: DisplayConfig{Port: "", Baud: 115200},
		Audio:   AudioConfig{Device: "default", SampleRate: 22050},
		Camera:  CameraConfig{DeviceID: 0, SnapDir: "/tmp/wren-snaps"},
		Arbiter: ArbiterConfig{StateDir: "/run/wren/leases"},
		Remote:  RemoteConfig{Addr: ":8090"},
	}
}

// Path resolves the profile location: WREN_CONFIG wins, otherwise the
// per-user config file.
func Path() string {
	if p := os.Getenv("WREN_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "wren.yaml"
	}
	return filepath.Join(home, ".config", "wren", "wren.yaml")
}

// Load reads the profile at Path. A missing file is not an error; the
// stock profile applies.
func Load() (*Profile, error) {
	return LoadFile(Path())
}

// LoadFile reads a profile from an explicit path, layering it over the
// stock defaults.
func LoadFile(path string) (*Profile, error) {
	p := Default()

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return p, nil
}

// Validate rejects profiles that cannot drive a robot.
func (p *Profile) Validate() error {
	if len(p.Servos) == 0 {
		return fmt.Errorf("no servo calibrations")
	}
	seen := make(map[string]bool, len(p.Servos))
	for _, cal := range p.Servos {
		if err := cal.Validate(); err != nil {
			return err
		}
		if seen[cal.ID] {
			return fmt.Errorf("duplicate servo calibration %s", cal.ID)
		}
		seen[cal.ID] = true
	}
	if p.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio sample rate must be positive, got %d", p.Audio.SampleRate)
	}
	if p.Controller.Baud <= 0 || p.Display.Baud <= 0 {
		return fmt.Errorf("serial baud rates must be positive")
	}
	if p.Arbiter.StateDir == "" {
		return fmt.Errorf("empty arbiter state dir")
	}
	if p.Remote.Addr == "" {
		return fmt.Errorf("empty remote addr")
	}
	return nil
}

// Calibration returns the record for one servo, if the profile has it.
func (p *Profile) Calibration(id string) (servo.Calibration, bool) {
	for _, cal := range p.Servos {
		if cal.ID == id {
			return cal, true
		}
	}
	return servo.Calibration{}, false
}
