// Package media wraps the ffmpeg and ffprobe command-line tools for audio
// normalization, duration probing, slicing, and trimming.
package media

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// SampleRate is the normalization target in Hz.
	SampleRate = 16000

	// Bitrate is the export bitrate for normalized audio and chunk slices.
	Bitrate = "128k"
)

// ProbeError marks a failure to probe user-supplied audio, as opposed to a
// failure of the tool itself while re-encoding.
type ProbeError struct {
	Err error
}

func (e *ProbeError) Error() string { return fmt.Sprintf("probe audio: %v", e.Err) }

func (e *ProbeError) Unwrap() error { return e.Err }

// Tool invokes ffmpeg and ffprobe. Every method takes a context so an
// aborted request kills the child process.
type Tool struct {
	ffmpeg  string
	ffprobe string
	log     zerolog.Logger
}

// Find locates ffmpeg and ffprobe in PATH. Call once at startup.
func Find(log zerolog.Logger) (*Tool, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &Tool{ffmpeg: ffmpeg, ffprobe: ffprobe, log: log}, nil
}

// Normalize converts src into mono 16 kHz mp3 at the fixed bitrate,
// dropping any video stream. On failure the partial output is removed and
// the error carries the tool's diagnostic output.
func (t *Tool) Normalize(ctx context.Context, src, dst string) error {
	if _, err := t.run(ctx, t.ffmpeg, normalizeArgs(src, dst)); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

// Duration reports the decoded duration of path in milliseconds.
func (t *Tool) Duration(ctx context.Context, path string) (int64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	out, err := t.run(ctx, t.ffprobe, args)
	if err != nil {
		return 0, err
	}
	return parseDurationMS(out)
}

// ExportSlice re-encodes [startMS, startMS+lengthMS) of src into dst at the
// fixed chunk bitrate.
func (t *Tool) ExportSlice(ctx context.Context, src string, startMS, lengthMS int64, dst string) error {
	if _, err := t.run(ctx, t.ffmpeg, sliceArgs(src, startMS, lengthMS, dst)); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

// Trim bounds src to limitMS and returns the path to transcribe. A source
// already within the limit is returned untouched without re-encoding.
// An unprobeable source surfaces as *ProbeError; re-encode failures do not.
func (t *Tool) Trim(ctx context.Context, src, dst string, limitMS int64) (string, error) {
	if limitMS <= 0 {
		return "", fmt.Errorf("duration limit must be greater than zero")
	}
	durationMS, err := t.Duration(ctx, src)
	if err != nil {
		return "", &ProbeError{Err: err}
	}
	if durationMS <= limitMS {
		return src, nil
	}

	args := []string{
		"-y",
		"-i", src,
		"-t", formatMS(limitMS),
		"-c:a", "libmp3lame",
		"-b:a", Bitrate,
		dst,
	}
	if _, err := t.run(ctx, t.ffmpeg, args); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func (t *Tool) run(ctx context.Context, name string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, diagnostic(stderr.String(), stdout.String()))
	}
	return stdout.String(), nil
}

func normalizeArgs(src, dst string) []string {
	return []string{
		"-y",
		"-i", src,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(SampleRate),
		"-c:a", "libmp3lame",
		"-b:a", Bitrate,
		dst,
	}
}

func sliceArgs(src string, startMS, lengthMS int64, dst string) []string {
	return []string{
		"-y",
		"-ss", formatMS(startMS),
		"-t", formatMS(lengthMS),
		"-i", src,
		"-vn",
		"-ac", "1",
		"-c:a", "libmp3lame",
		"-b:a", Bitrate,
		dst,
	}
}

// formatMS renders milliseconds as fractional seconds for ffmpeg flags.
func formatMS(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000.0, 'f', 3, 64)
}

func parseDurationMS(out string) (int64, error) {
	s := strings.TrimSpace(out)
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return int64(math.Round(secs * 1000)), nil
}

// diagnostic picks the most useful tail of the tool's output for error
// messages. ffmpeg writes everything to stderr; keep the last few lines so
// client-visible errors stay readable.
func diagnostic(stderr, stdout string) string {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = strings.TrimSpace(stdout)
	}
	if msg == "" {
		return "unknown error"
	}
	lines := strings.Split(msg, "\n")
	if len(lines) > 6 {
		lines = lines[len(lines)-6:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
