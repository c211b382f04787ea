package actions

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// SoundBank maps cue names to WAV files found in one directory. The cue
// name is the file name without its extension.
type SoundBank struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	files map[string]string
}

// ScanSounds builds a bank from dir. A missing directory yields an empty
// bank with a warning; the bird just has nothing to play.
func ScanSounds(dir string, logger *slog.Logger) (*SoundBank, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &SoundBank{dir: dir, logger: logger, files: map[string]string{}}
	if err := b.Rescan(); err != nil {
		return nil, err
	}
	return b, nil
}

// Rescan re-reads the directory, replacing the cue set.
func (b *SoundBank) Rescan() error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			b.logger.Warn("sounds directory missing", "dir", b.dir)
			b.mu.Lock()
			b.files = map[string]string{}
			b.mu.Unlock()
			return nil
		}
		return fmt.Errorf("scan sounds: %w", err)
	}

	files := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if !strings.EqualFold(ext, ".wav") {
			continue
		}
		files[strings.TrimSuffix(name, ext)] = filepath.Join(b.dir, name)
	}

	b.mu.Lock()
	b.files = files
	b.mu.Unlock()
	b.logger.Info("sound bank loaded", "dir", b.dir, "cues", len(files))
	return nil
}

// Path returns the file behind a cue name. Safe on a nil bank.
func (b *SoundBank) Path(name string) (string, bool) {
	if b == nil {
		return "", false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	path, ok := b.files[name]
	return path, ok
}

// Names lists the cues in sorted order.
func (b *SoundBank) Names() []string {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.files))
	for name := range b.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len reports how many cues the bank holds.
func (b *SoundBank) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.files)
}
