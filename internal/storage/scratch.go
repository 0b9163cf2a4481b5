// Package storage manages the temporary on-disk files a transcription
// request produces: the upload copy, the normalized audio, and per-chunk
// exports. Every file lives inside a per-request scratch directory so one
// deferred Cleanup releases everything on every exit path.
package storage

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ScratchPrefix names scratch directories so the sweeper can recognize
// abandoned ones left behind by a crash.
const ScratchPrefix = "srt-engine-"

// Scratch is a per-request temporary directory. It is owned by exactly one
// request and must not be shared.
type Scratch struct {
	dir string
	log zerolog.Logger
}

// NewScratch creates a fresh scratch directory under baseDir (the system
// temp directory when baseDir is empty).
func NewScratch(baseDir string, log zerolog.Logger) (*Scratch, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	dir, err := os.MkdirTemp(baseDir, ScratchPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{dir: dir, log: log}, nil
}

// Dir returns the scratch directory path.
func (s *Scratch) Dir() string { return s.dir }

// File creates an empty file inside the scratch directory and returns its
// path. pattern follows os.CreateTemp naming rules.
func (s *Scratch) File(pattern string) (string, error) {
	f, err := os.CreateTemp(s.dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close scratch file: %w", err)
	}
	return path, nil
}

// Save streams r into a new scratch file and returns its path and size.
func (s *Scratch) Save(pattern string, r io.Reader) (string, int64, error) {
	f, err := os.CreateTemp(s.dir, pattern)
	if err != nil {
		return "", 0, fmt.Errorf("create scratch file: %w", err)
	}
	path := f.Name()
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write scratch file: %w", err)
	}
	return path, n, nil
}

// Remove deletes one scratch file early. Chunk exports are removed as soon
// as their transcription call returns rather than waiting for Cleanup, so
// peak disk usage stays at one chunk.
func (s *Scratch) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("path", path).Msg("scratch file remove failed")
	}
}

// Cleanup deletes the scratch directory and everything still in it.
// Safe to call multiple times.
func (s *Scratch) Cleanup() {
	if err := os.RemoveAll(s.dir); err != nil {
		s.log.Warn().Err(err).Str("dir", s.dir).Msg("scratch cleanup failed")
	}
}
