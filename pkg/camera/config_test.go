package camera

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"negative device", func(c *Config) { c.Device = -1 }, true},
		{"width too small", func(c *Config) { c.Width = 100 }, true},
		{"width over sensor", func(c *Config) { c.Width = SensorMaxWidth + 1 }, true},
		{"height too small", func(c *Config) { c.Height = 50 }, true},
		{"zero fps", func(c *Config) { c.FPS = 0 }, true},
		{"fps over sensor", func(c *Config) { c.FPS = 200 }, true},
		{"quality zero", func(c *Config) { c.Quality = 0 }, true},
		{"quality over 100", func(c *Config) { c.Quality = 101 }, true},
		{"empty holder", func(c *Config) { c.HolderID = "" }, true},
		{"negative timeout", func(c *Config) { c.AcquireTimeout = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPresetsAllValidate(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		if cfg == nil {
			t.Fatalf("GetPreset(%q) = nil", name)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %q invalid: %v", name, err)
		}
	}
	if len(PresetNames()) != len(Presets()) {
		t.Errorf("PresetNames() lists %d presets, map has %d", len(PresetNames()), len(Presets()))
	}
}

func TestGetPresetUnknown(t *testing.T) {
	if cfg := GetPreset("nightvision"); cfg != nil {
		t.Errorf("GetPreset(nightvision) = %+v, want nil", cfg)
	}
}

func TestPresetResolutions(t *testing.T) {
	if cfg := GetPreset(Preset720p); cfg.Width != 1280 || cfg.Height != 720 {
		t.Errorf("720p preset = %dx%d", cfg.Width, cfg.Height)
	}
	if cfg := GetPreset(Preset1080p); cfg.Width != 1920 || cfg.Height != 1080 || cfg.FPS != 15 {
		t.Errorf("1080p preset = %dx%d@%d", cfg.Width, cfg.Height, cfg.FPS)
	}
}
