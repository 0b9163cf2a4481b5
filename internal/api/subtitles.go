package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/srt-engine/internal/media"
	"github.com/snarg/srt-engine/internal/srt"
	"github.com/snarg/srt-engine/internal/storage"
	"github.com/snarg/srt-engine/internal/transcribe"
)

// MediaTool is the local audio toolchain the subtitle pipeline needs.
// *media.Tool satisfies it; tests substitute fakes. It is a superset of
// transcribe.Exporter so the same value drives chunk export.
type MediaTool interface {
	Normalize(ctx context.Context, src, dst string) error
	Trim(ctx context.Context, src, dst string, limitMS int64) (string, error)
	Duration(ctx context.Context, path string) (int64, error)
	ExportSlice(ctx context.Context, src string, startMS, lengthMS int64, dst string) error
}

// SubtitleHandler turns uploaded audio or video into SRT subtitles.
type SubtitleHandler struct {
	media      MediaTool // nil when ffmpeg was not found at startup
	client     transcribe.Translator
	scratchDir string
	maxUpload  int64
	log        zerolog.Logger
}

func NewSubtitleHandler(media MediaTool, client transcribe.Translator, scratchDir string, maxUpload int64, log zerolog.Logger) *SubtitleHandler {
	return &SubtitleHandler{
		media:      media,
		client:     client,
		scratchDir: scratchDir,
		maxUpload:  maxUpload,
		log:        log.With().Str("handler", "subtitles").Logger(),
	}
}

// Routes registers the subtitle endpoint.
func (h *SubtitleHandler) Routes(r chi.Router) {
	r.Post("/generate-subtitles", h.Generate)
}

// Generate handles POST /generate-subtitles.
//
// The uploaded file is normalized to mono 16 kHz mp3, optionally trimmed to
// max_duration_minutes, transcribed (chunked when over the service size
// ceiling), and returned as an SRT document. With stream=true the document
// is flushed block by block as segments arrive.
func (h *SubtitleHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := hlog.FromRequest(r)

	if h.media == nil {
		WriteError(w, http.StatusInternalServerError,
			"ffmpeg is required for audio normalization but was not found on PATH")
		return
	}

	limitMS, ok := parseDurationLimit(w, r)
	if !ok {
		return
	}
	streamOut, _ := QueryBool(r, "stream")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "uploaded file is too large")
			return
		}
		WriteError(w, http.StatusBadRequest, "upload must include a file field")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		WriteError(w, http.StatusBadRequest, "upload must include a filename")
		return
	}
	if !allowedContentType(header.Header.Get("Content-Type")) {
		WriteError(w, http.StatusBadRequest, "only audio or video uploads are supported")
		return
	}

	scratch, err := storage.NewScratch(h.scratchDir, h.log)
	if err != nil {
		log.Error().Err(err).Msg("scratch dir create failed")
		WriteError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	defer scratch.Cleanup()

	ext := filepath.Ext(header.Filename)
	if ext == "" {
		ext = ".mp3"
	}
	uploadPath, size, err := scratch.Save("upload-*"+ext, file)
	if err != nil {
		log.Error().Err(err).Msg("upload save failed")
		WriteError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	if size == 0 {
		WriteError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	normalizedPath, err := scratch.File("normalized-*.mp3")
	if err != nil {
		log.Error().Err(err).Msg("scratch file create failed")
		WriteError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	if err := h.media.Normalize(ctx, uploadPath, normalizedPath); err != nil {
		log.Error().Err(err).Msg("audio normalization failed")
		WriteErrorDetail(w, http.StatusInternalServerError, "unable to normalize audio", err.Error())
		return
	}

	audioPath := normalizedPath
	if limitMS > 0 {
		trimPath, err := scratch.File("trimmed-*.mp3")
		if err != nil {
			log.Error().Err(err).Msg("scratch file create failed")
			WriteError(w, http.StatusInternalServerError, "could not store upload")
			return
		}
		audioPath, err = h.media.Trim(ctx, normalizedPath, trimPath, limitMS)
		if err != nil {
			log.Error().Err(err).Msg("audio trim failed")
			// Unprobeable source is the caller's fault; a failed re-encode
			// is ours.
			status := http.StatusInternalServerError
			var probeErr *media.ProbeError
			if errors.As(err, &probeErr) {
				status = http.StatusBadRequest
			}
			WriteErrorDetail(w, status, "unable to trim audio", err.Error())
			return
		}
	}

	stream := transcribe.NewStream(ctx, transcribe.Options{
		Client:   h.client,
		Exporter: h.media,
		Scratch:  scratch,
		Path:     audioPath,
		Log:      h.log,
	})

	baseName := attachmentName(header.Filename)
	if streamOut {
		h.streamResponse(w, log, stream, baseName)
		return
	}

	segments, err := transcribe.Collect(stream)
	if err != nil {
		writeTranscribeError(w, log, err)
		return
	}
	payload := srt.Render(srt.FromSlice(segments))
	if payload == "" {
		WriteError(w, http.StatusBadGateway, "unable to create SRT output")
		return
	}

	setSubtitleHeaders(w, baseName)
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(payload))
}

// streamResponse writes the SRT document incrementally. The first segment
// is pulled before any header goes out so remote failures can still map to
// an error status; after that, failures can only be logged.
func (h *SubtitleHandler) streamResponse(w http.ResponseWriter, log *zerolog.Logger, stream *transcribe.Stream, baseName string) {
	first, ok := stream.Next()
	if !ok {
		err := stream.Err()
		if err == nil {
			err = transcribe.ErrNoOutput
		}
		writeTranscribeError(w, log, err)
		return
	}

	setSubtitleHeaders(w, baseName)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	writer := srt.NewWriter(&peekedSource{first: first, rest: stream})
	for {
		chunk, ok := writer.Next()
		if !ok {
			break
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			log.Debug().Err(err).Msg("client went away mid-stream")
			return
		}
		rc.Flush()
	}
	if err := stream.Err(); err != nil {
		// Headers are already on the wire; the truncated document is the
		// only signal the client gets.
		log.Error().Err(err).Msg("subtitle stream terminated early")
	}
}

// peekedSource re-queues a segment consumed ahead of the writer.
type peekedSource struct {
	first srt.Segment
	used  bool
	rest  srt.Source
}

func (p *peekedSource) Next() (srt.Segment, bool) {
	if !p.used {
		p.used = true
		return p.first, true
	}
	return p.rest.Next()
}

func writeTranscribeError(w http.ResponseWriter, log *zerolog.Logger, err error) {
	var decodeErr *transcribe.DecodeError
	var svcErr *transcribe.ServiceError
	switch {
	case errors.Is(err, transcribe.ErrUnsplittable):
		WriteError(w, http.StatusRequestEntityTooLarge,
			"audio cannot be split into chunks small enough for the transcription service")
	case errors.Is(err, transcribe.ErrNoOutput):
		WriteError(w, http.StatusBadGateway, "no transcription segments returned")
	case errors.As(err, &decodeErr):
		WriteErrorDetail(w, http.StatusBadRequest, "unable to decode audio", decodeErr.Error())
	case errors.As(err, &svcErr):
		log.Error().Err(err).Msg("transcription service call failed")
		WriteErrorDetail(w, http.StatusBadGateway, "transcription service request failed", svcErr.Error())
	case errors.Is(err, context.Canceled):
		// Client gone; nothing useful to write.
	default:
		log.Error().Err(err).Msg("subtitle generation failed")
		WriteError(w, http.StatusInternalServerError, "subtitle generation failed")
	}
}

func setSubtitleHeaders(w http.ResponseWriter, baseName string) {
	w.Header().Set("Content-Type", "application/x-subrip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+baseName+`.srt"`)
}

// parseDurationLimit validates max_duration_minutes and converts it to
// milliseconds. Zero means no limit was requested.
func parseDurationLimit(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("max_duration_minutes")
	if raw == "" {
		return 0, true
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes < 1 || minutes > 240 {
		WriteError(w, http.StatusBadRequest, "max_duration_minutes must be an integer between 1 and 240")
		return 0, false
	}
	return int64(minutes) * 60_000, true
}

func allowedContentType(ct string) bool {
	if ct == "" || ct == "application/octet-stream" {
		return true
	}
	return strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/")
}

// attachmentName derives the download base name from the upload filename.
func attachmentName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." {
		return "transcription"
	}
	return base
}
