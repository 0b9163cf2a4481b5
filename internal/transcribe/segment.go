package transcribe

import (
	"math"
	"strings"

	"github.com/snarg/srt-engine/internal/srt"
)

// fallbackWordSeconds is the per-word duration heuristic used when the
// service returns text without timing data. Kept as-is from long-standing
// tuning; no better policy is known.
const fallbackWordSeconds = 0.4

// normalizeSegments converts raw service segments into output segments,
// shifting both timestamps by offsetSeconds. Segments whose text is empty
// after trimming are dropped. Input order is preserved.
func normalizeSegments(raw []RawSegment, offsetSeconds float64) []srt.Segment {
	var segs []srt.Segment
	for _, r := range raw {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		start := r.Start + offsetSeconds
		end := r.End + offsetSeconds
		segs = append(segs, srt.Segment{Start: start, End: end, Text: text})
	}
	return segs
}

// fallbackSegment synthesizes a single segment from flat transcript text.
// The duration is a word-count heuristic with a half-second floor. Returns
// false when the trimmed text is empty.
func fallbackSegment(text string) (srt.Segment, bool) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return srt.Segment{}, false
	}
	words := len(strings.Fields(cleaned))
	duration := math.Max(srt.MinDuration, float64(words)*fallbackWordSeconds)
	return srt.Segment{Start: 0, End: duration, Text: cleaned}, true
}
