package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScratchLifecycle(t *testing.T) {
	base := t.TempDir()
	s, err := NewScratch(base, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}

	if !strings.HasPrefix(filepath.Base(s.Dir()), ScratchPrefix) {
		t.Errorf("scratch dir %q should carry prefix %q", s.Dir(), ScratchPrefix)
	}

	path, err := s.File("chunk-*.mp3")
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("scratch file should exist: %v", err)
	}

	saved, n, err := s.Save("upload-*.mp3", strings.NewReader("audio bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != int64(len("audio bytes")) {
		t.Errorf("Save size = %d, want %d", n, len("audio bytes"))
	}
	data, err := os.ReadFile(saved)
	if err != nil || string(data) != "audio bytes" {
		t.Errorf("saved content = %q, %v", data, err)
	}

	s.Remove(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Remove should delete the file")
	}
	// Removing twice is harmless
	s.Remove(path)

	s.Cleanup()
	if _, err := os.Stat(s.Dir()); !os.IsNotExist(err) {
		t.Error("Cleanup should delete the whole scratch directory")
	}
	// Cleanup is idempotent
	s.Cleanup()
}

func TestSweeperRemovesStaleDirs(t *testing.T) {
	base := t.TempDir()

	stale := filepath.Join(base, ScratchPrefix+"stale")
	if err := os.Mkdir(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stale, "chunk.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	fresh := filepath.Join(base, ScratchPrefix+"fresh")
	if err := os.Mkdir(fresh, 0o755); err != nil {
		t.Fatal(err)
	}

	unrelated := filepath.Join(base, "keepme")
	if err := os.Mkdir(unrelated, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(unrelated, old, old); err != nil {
		t.Fatal(err)
	}

	sw := NewSweeper(base, time.Hour, zerolog.Nop())
	if removed := sw.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d dirs, want 1", removed)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale scratch dir should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh scratch dir should survive")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("unrelated dir should survive")
	}
}

func TestSweeperZeroRetentionDisabled(t *testing.T) {
	base := t.TempDir()
	stale := filepath.Join(base, ScratchPrefix+"stale")
	if err := os.Mkdir(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	sw := NewSweeper(base, 0, zerolog.Nop())
	if removed := sw.Sweep(); removed != 0 {
		t.Errorf("Sweep with zero retention removed %d dirs, want 0", removed)
	}
}
