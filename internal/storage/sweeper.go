package storage

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper deletes abandoned scratch directories. Live requests clean up
// after themselves; the sweeper only catches directories orphaned by a
// crash or kill, so it ignores anything younger than the retention window.
type Sweeper struct {
	baseDir   string
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewSweeper creates a sweeper over baseDir (the system temp directory when
// empty) that removes scratch directories older than retention.
func NewSweeper(baseDir string, retention time.Duration, log zerolog.Logger) *Sweeper {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Sweeper{
		baseDir:   baseDir,
		retention: retention,
		interval:  15 * time.Minute,
		log:       log.With().Str("component", "scratch-sweeper").Logger(),
		stop:      make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.loop()
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Sweeper) loop() {
	// Run once on startup to clear leftovers from a previous run
	s.Sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

// Sweep removes stale scratch directories and returns how many were deleted.
func (s *Sweeper) Sweep() int {
	if s.retention <= 0 {
		return 0
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", s.baseDir).Msg("scratch sweep failed")
		return 0
	}

	cutoff := time.Now().Add(-s.retention)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), ScratchPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.log.Warn().Err(err).Str("dir", path).Msg("stale scratch remove failed")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("stale scratch directories removed")
	}
	return removed
}
