// Package srt renders timed transcription segments as SubRip subtitle text.
package srt

import (
	"fmt"
	"math"
	"strings"
)

// MinDuration is the floor applied to a segment whose end does not lie
// strictly after its start.
const MinDuration = 0.5

// Segment is a timed span of recognized speech.
type Segment struct {
	Start float64 // seconds from the beginning of the source
	End   float64 // seconds, > Start after rendering repair
	Text  string
}

// Source yields segments in output order until exhausted.
type Source interface {
	Next() (Segment, bool)
}

type sliceSource struct {
	segs []Segment
	pos  int
}

func (s *sliceSource) Next() (Segment, bool) {
	if s.pos >= len(s.segs) {
		return Segment{}, false
	}
	seg := s.segs[s.pos]
	s.pos++
	return seg, true
}

// FromSlice wraps an in-memory segment list as a Source.
func FromSlice(segs []Segment) Source {
	return &sliceSource{segs: segs}
}

// FormatTimestamp converts seconds to the SRT timestamp form HH:MM:SS,mmm.
// Negative input clamps to zero; values are rounded to the nearest
// millisecond, halves to even. Hours grow without bound; there is no day
// rollover.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMS := int64(math.RoundToEven(seconds * 1000))
	hours := totalMS / 3_600_000
	remainder := totalMS % 3_600_000
	minutes := remainder / 60_000
	remainder %= 60_000
	secs := remainder / 1_000
	millis := remainder % 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// Writer streams an SRT document one block at a time. Each chunk after the
// first carries its blank-line separator, so a consumer can append chunks
// verbatim and reconstruct the exact document Render would produce. The
// final chunk is the document's single trailing newline. A Writer is
// consumed once and is not restartable.
type Writer struct {
	src   Source
	index int
	wrote bool
	done  bool
}

// NewWriter creates a Writer over src.
func NewWriter(src Source) *Writer {
	return &Writer{src: src}
}

// Next returns the next text chunk of the document. It returns false once
// the source is exhausted and the trailing newline has been delivered.
// An empty source produces no chunks at all.
func (w *Writer) Next() (string, bool) {
	if w.done {
		return "", false
	}
	for {
		seg, ok := w.src.Next()
		if !ok {
			w.done = true
			if w.wrote {
				return "\n", true
			}
			return "", false
		}

		// Index assignment is positional over the incoming sequence.
		w.index++

		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		start := seg.Start
		end := seg.End
		if end <= start {
			end = start + MinDuration
		}

		block := fmt.Sprintf("%d\n%s --> %s\n%s",
			w.index, FormatTimestamp(start), FormatTimestamp(end), text)

		if w.wrote {
			block = "\n\n" + block
		}
		w.wrote = true
		return block, true
	}
}

// Render drains src into a complete SRT document. The result is either
// empty (no renderable segments) or ends with exactly one newline.
func Render(src Source) string {
	var b strings.Builder
	w := NewWriter(src)
	for {
		chunk, ok := w.Next()
		if !ok {
			return b.String()
		}
		b.WriteString(chunk)
	}
}
