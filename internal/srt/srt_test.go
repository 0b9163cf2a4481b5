package srt

import (
	"strings"
	"testing"
)

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{3661.2005, "01:01:01,200"}, // 3661200.5 ms, half rounds to even
		{-5, "00:00:00,000"},
		{0.0004, "00:00:00,000"},
		{0.0006, "00:00:00,001"},
		{0.0015, "00:00:00,002"}, // exact 1.5 ms, even is up
		{0.0025, "00:00:00,002"}, // exact 2.5 ms, even is down
		{59.9996, "00:01:00,000"},
		{86399.999, "23:59:59,999"},
		{90000, "25:00:00,000"}, // no day rollover
	}
	for _, c := range cases {
		if got := FormatTimestamp(c.seconds); got != c.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestRender(t *testing.T) {
	segs := []Segment{
		{Start: 0, End: 1.5, Text: "hello"},
		{Start: 1.5, End: 3, Text: "world"},
	}
	want := "1\n00:00:00,000 --> 00:00:01,500\nhello\n\n2\n00:00:01,500 --> 00:00:03,000\nworld\n"
	if got := Render(FromSlice(segs)); got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderEmpty(t *testing.T) {
	if got := Render(FromSlice(nil)); got != "" {
		t.Errorf("Render(empty) = %q, want empty string", got)
	}
}

func TestRenderSkipsBlankText(t *testing.T) {
	segs := []Segment{
		{Start: 0, End: 1, Text: "first"},
		{Start: 1, End: 2, Text: "   "},
		{Start: 2, End: 3, Text: "third"},
	}
	got := Render(FromSlice(segs))
	if strings.Contains(got, "00:00:01,000 --> 00:00:02,000") {
		t.Error("blank segment should not be rendered")
	}
	// Blank segments still consume an index position.
	if !strings.Contains(got, "\n\n3\n") {
		t.Errorf("third segment should keep index 3, got %q", got)
	}
}

func TestRenderRepairsDegenerateTiming(t *testing.T) {
	segs := []Segment{{Start: 10, End: 10, Text: "stuck"}}
	want := "1\n00:00:10,000 --> 00:00:10,500\nstuck\n"
	if got := Render(FromSlice(segs)); got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}

	segs = []Segment{{Start: 10, End: 4, Text: "backwards"}}
	got := Render(FromSlice(segs))
	if !strings.Contains(got, "00:00:10,000 --> 00:00:10,500") {
		t.Errorf("end before start should become start+0.5, got %q", got)
	}
}

func TestRenderDeterministic(t *testing.T) {
	segs := []Segment{
		{Start: 0.25, End: 2, Text: "a"},
		{Start: 2, End: 4.75, Text: "b"},
		{Start: 4.75, End: 5, Text: "c"},
	}
	first := Render(FromSlice(segs))
	second := Render(FromSlice(segs))
	if first != second {
		t.Error("rendering the same segments twice should yield identical output")
	}
}

func TestWriterChunksConcatenateToRender(t *testing.T) {
	segs := []Segment{
		{Start: 0, End: 2, Text: "one"},
		{Start: 2, End: 4, Text: "two"},
		{Start: 4, End: 6, Text: "three"},
	}

	w := NewWriter(FromSlice(segs))
	var b strings.Builder
	var chunks []string
	for {
		chunk, ok := w.Next()
		if !ok {
			break
		}
		chunks = append(chunks, chunk)
		b.WriteString(chunk)
	}

	if got, want := b.String(), Render(FromSlice(segs)); got != want {
		t.Errorf("streamed concatenation = %q, want %q", got, want)
	}

	// Three blocks plus the trailing newline chunk.
	if len(chunks) != 4 {
		t.Fatalf("chunk count = %d, want 4", len(chunks))
	}
	if strings.HasPrefix(chunks[0], "\n") {
		t.Error("first chunk must not carry a separator")
	}
	for i, chunk := range chunks[1:3] {
		if !strings.HasPrefix(chunk, "\n\n") {
			t.Errorf("chunk %d should carry its blank-line separator, got %q", i+2, chunk)
		}
	}
	if chunks[3] != "\n" {
		t.Errorf("final chunk = %q, want single newline", chunks[3])
	}
}

func TestWriterEmptySource(t *testing.T) {
	w := NewWriter(FromSlice(nil))
	if chunk, ok := w.Next(); ok {
		t.Errorf("empty source yielded %q, want nothing", chunk)
	}
	// Exhausted writers stay exhausted.
	if _, ok := w.Next(); ok {
		t.Error("writer restarted after exhaustion")
	}
}
