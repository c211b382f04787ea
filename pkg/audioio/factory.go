package audioio

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// NewSink creates a new audio sink with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == "" || backend == BackendAuto {
		backend = detectBestBackend(cfg)
	}

	logger.Info("creating audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendExec:
		return NewExecSink(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns exec when the player binary exists, otherwise
// mock so a speakerless dev machine still runs.
func detectBestBackend(cfg Config) Backend {
	binary := "aplay"
	if cfg.PlayerCommand != "" {
		binary = strings.Fields(cfg.PlayerCommand)[0]
	}
	if _, err := exec.LookPath(binary); err == nil {
		return BackendExec
	}
	return BackendMock
}

// AvailableBackends returns the list of usable backends on this machine.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if _, err := exec.LookPath("aplay"); err == nil {
		backends = append(backends, BackendExec)
	}
	return backends
}
