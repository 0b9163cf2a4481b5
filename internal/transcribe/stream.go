// Package transcribe turns a normalized audio file into an ordered stream
// of subtitle segments. Files above the remote service's size ceiling are
// split into chunks sized from the file's observed bytes-per-millisecond
// ratio, with a halving retry when an exported chunk still comes out too
// large.
package transcribe

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/srt-engine/internal/metrics"
	"github.com/snarg/srt-engine/internal/srt"
	"github.com/snarg/srt-engine/internal/storage"
)

const (
	// MaxAudioBytes is the service-side ceiling per uploaded audio unit.
	MaxAudioBytes = 25 * 1024 * 1024

	// MinChunkMS is the lower bound on chunk duration when splitting.
	MinChunkMS = 1000

	// bytesPerMSEpsilon keeps the ratio positive for pathological inputs.
	bytesPerMSEpsilon = 1e-6
)

// Exporter is the local audio probing and slicing capability.
type Exporter interface {
	// Duration reports the decoded duration of path in milliseconds.
	Duration(ctx context.Context, path string) (int64, error)
	// ExportSlice re-encodes [startMS, startMS+lengthMS) of src into dst.
	ExportSlice(ctx context.Context, src string, startMS, lengthMS int64, dst string) error
}

// Options configures a Stream. Client, Exporter, Scratch, and Path are
// required; zero MaxBytes and MinChunk fall back to the service defaults.
type Options struct {
	Client   Translator
	Exporter Exporter
	Scratch  *storage.Scratch
	Path     string // normalized (and possibly trimmed) audio file

	MaxBytes int64 // size ceiling override, for tests
	MinChunk int64 // chunk floor override in ms, for tests

	Log zerolog.Logger
}

// Stream lazily produces globally-offset subtitle segments in source
// chronological order. Chunk export, the remote call, and normalization for
// one chunk all finish before the next chunk starts, so no reordering step
// is needed. A Stream belongs to a single request and is consumed once.
//
// Next returns false once the stream ends, normally or not; Err reports
// the terminating failure, if any. Segments already returned stay valid
// even when the stream later fails.
type Stream struct {
	ctx      context.Context
	client   Translator
	exporter Exporter
	scratch  *storage.Scratch
	path     string
	maxBytes int64
	minChunk int64
	log      zerolog.Logger

	started bool
	chunked bool
	done    bool
	err     error

	pending   []srt.Segment
	emitted   bool
	collected []string // per-chunk flat transcripts for the final fallback

	durationMS int64
	cursorMS   int64
	maxChunkMS int64
}

// NewStream creates a segment stream over the audio file in opts.Path.
// No work happens until the first Next call.
func NewStream(ctx context.Context, opts Options) *Stream {
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = MaxAudioBytes
	}
	minChunk := opts.MinChunk
	if minChunk <= 0 {
		minChunk = MinChunkMS
	}
	return &Stream{
		ctx:      ctx,
		client:   opts.Client,
		exporter: opts.Exporter,
		scratch:  opts.Scratch,
		path:     opts.Path,
		maxBytes: maxBytes,
		minChunk: minChunk,
		log:      opts.Log,
	}
}

// Next returns the next segment, or false when the stream is exhausted.
func (s *Stream) Next() (srt.Segment, bool) {
	for {
		if len(s.pending) > 0 {
			seg := s.pending[0]
			s.pending = s.pending[1:]
			s.emitted = true
			metrics.SegmentsEmittedTotal.Inc()
			return seg, true
		}
		if s.done || s.err != nil {
			return srt.Segment{}, false
		}
		s.advance()
	}
}

// Err reports why the stream terminated early. It is nil after a normal
// end of stream and meaningless before Next has returned false.
func (s *Stream) Err() error { return s.err }

// Collect drains the stream for whole-output callers.
func Collect(s *Stream) ([]srt.Segment, error) {
	var segs []srt.Segment
	for {
		seg, ok := s.Next()
		if !ok {
			break
		}
		segs = append(segs, seg)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return segs, nil
}

func (s *Stream) fail(err error) {
	s.err = err
	s.done = true
}

// advance performs one unit of work: mode selection, one chunk round trip,
// or end-of-stream fallback synthesis. It refills pending or terminates.
func (s *Stream) advance() {
	if err := s.ctx.Err(); err != nil {
		s.fail(err)
		return
	}

	if !s.started {
		s.started = true
		s.plan()
		return
	}

	if s.cursorMS >= s.durationMS {
		s.finishChunked()
		return
	}
	s.nextChunk()
}

// plan decides single-shot vs chunked and, for chunked mode, derives the
// candidate chunk duration from the file's bytes-per-millisecond ratio.
func (s *Stream) plan() {
	info, err := os.Stat(s.path)
	if err != nil {
		s.fail(fmt.Errorf("stat audio file: %w", err))
		return
	}

	if info.Size() <= s.maxBytes {
		metrics.TranscribeRequestsTotal.WithLabelValues("single").Inc()
		s.singleShot()
		return
	}

	durationMS, err := s.exporter.Duration(s.ctx, s.path)
	if err != nil {
		s.fail(&DecodeError{Err: err})
		return
	}
	if durationMS <= 0 {
		s.fail(&DecodeError{Reason: "audio has zero duration"})
		return
	}

	s.chunked = true
	s.durationMS = durationMS

	bytesPerMS := math.Max(float64(info.Size())/float64(durationMS), bytesPerMSEpsilon)
	s.maxChunkMS = int64(float64(s.maxBytes) / bytesPerMS)
	if s.maxChunkMS < s.minChunk {
		s.maxChunkMS = s.minChunk
	}

	metrics.TranscribeRequestsTotal.WithLabelValues("chunked").Inc()
	s.log.Debug().
		Int64("size_bytes", info.Size()).
		Int64("duration_ms", durationMS).
		Int64("max_chunk_ms", s.maxChunkMS).
		Msg("chunked transcription planned")
}

func (s *Stream) singleShot() {
	s.done = true

	res, err := s.translate(s.path)
	if err != nil {
		s.fail(err)
		return
	}

	segs := normalizeSegments(res.Segments, 0)
	if len(segs) == 0 {
		if fb, ok := fallbackSegment(res.Text); ok {
			segs = []srt.Segment{fb}
		}
	}
	if len(segs) == 0 {
		s.fail(ErrNoOutput)
		return
	}
	s.pending = segs
}

// nextChunk exports one compliant chunk, transcribes it, and queues its
// offset-adjusted segments. The chunk file is deleted whether or not the
// remote call succeeded.
func (s *Stream) nextChunk() {
	chunkPath, endMS, err := s.exportChunk()
	if err != nil {
		s.fail(err)
		return
	}
	if chunkPath == "" {
		// Nothing exportable at this cursor; treat the source as consumed.
		s.cursorMS = s.durationMS
		return
	}

	offset := float64(s.cursorMS) / 1000.0
	result, err := s.translate(chunkPath)
	s.scratch.Remove(chunkPath)
	if err != nil {
		s.fail(err)
		return
	}

	s.pending = normalizeSegments(result.Segments, offset)
	if text := strings.TrimSpace(result.Text); text != "" {
		s.collected = append(s.collected, text)
	}

	s.log.Debug().
		Int64("start_ms", s.cursorMS).
		Int64("end_ms", endMS).
		Int("segments", len(s.pending)).
		Msg("chunk transcribed")

	s.cursorMS = endMS
}

// exportChunk slices the next chunk starting at the cursor, halving the
// candidate duration until the exported file fits under the ceiling. It
// returns the chunk path and its end offset; an empty path means the
// source is exhausted. ErrUnsplittable is returned when even a floor-length
// chunk exceeds the ceiling.
func (s *Stream) exportChunk() (string, int64, error) {
	length := s.durationMS - s.cursorMS
	if length > s.maxChunkMS {
		length = s.maxChunkMS
	}
	if length < s.minChunk {
		length = s.minChunk
	}

	for {
		endMS := s.cursorMS + length
		if endMS > s.durationMS {
			endMS = s.durationMS
		}
		if endMS <= s.cursorMS {
			return "", 0, nil
		}

		dst, err := s.scratch.File("chunk-*.mp3")
		if err != nil {
			return "", 0, err
		}
		if err := s.exporter.ExportSlice(s.ctx, s.path, s.cursorMS, endMS-s.cursorMS, dst); err != nil {
			s.scratch.Remove(dst)
			return "", 0, fmt.Errorf("export chunk at %dms: %w", s.cursorMS, err)
		}

		info, err := os.Stat(dst)
		if err != nil {
			s.scratch.Remove(dst)
			return "", 0, fmt.Errorf("stat chunk: %w", err)
		}
		if info.Size() <= s.maxBytes {
			metrics.ChunksExportedTotal.Inc()
			return dst, endMS, nil
		}

		// Oversized: discard and halve.
		s.scratch.Remove(dst)
		metrics.ChunkExportRetriesTotal.Inc()
		if length <= s.minChunk {
			return "", 0, ErrUnsplittable
		}
		length /= 2
		if length < s.minChunk {
			length = s.minChunk
		}
	}
}

// finishChunked ends the stream, synthesizing one fallback segment from
// the concatenated per-chunk transcripts when no segment was ever emitted.
func (s *Stream) finishChunked() {
	s.done = true
	if s.emitted {
		return
	}
	if fb, ok := fallbackSegment(strings.Join(s.collected, " ")); ok {
		s.pending = []srt.Segment{fb}
		return
	}
	s.fail(ErrNoOutput)
}

func (s *Stream) translate(path string) (*Result, error) {
	start := time.Now()
	res, err := s.client.Translate(s.ctx, path)
	metrics.RemoteCallDuration.Observe(time.Since(start).Seconds())
	return res, err
}
