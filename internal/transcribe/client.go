package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Translator is the remote speech-to-text-and-translation capability.
// Implementations receive a size-bounded audio file and return English text
// plus, when the service provides them, timed segments.
type Translator interface {
	Translate(ctx context.Context, audioPath string) (*Result, error)
	Model() string
}

// RawSegment is one timed segment as decoded from the service response.
// This is the single shape the normalizer accepts; any provider quirks are
// resolved here at the client boundary.
type RawSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the outcome of one remote translation call.
type Result struct {
	Text     string       // flat transcript, fallback when Segments is empty
	Language string
	Duration float64      // seconds, as reported by the service
	Segments []RawSegment // nil when the service returns no timing data
}

// OpenAIClient calls the OpenAI /audio/translations endpoint (or any
// compatible server) with multipart form data, requesting verbose_json so
// segment timestamps come back alongside the transcript.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIClient creates a translation client. baseURL is the API root,
// e.g. https://api.openai.com/v1.
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string { return c.model }

type verboseResponse struct {
	Text     string       `json:"text"`
	Language string       `json:"language"`
	Duration float64      `json:"duration"`
	Segments []RawSegment `json:"segments"`
}

// Translate sends the audio file for translation to English. Network
// failures, non-2xx statuses, and malformed bodies all surface as
// *ServiceError so callers can distinguish them from empty output.
func (c *OpenAIClient) Translate(ctx context.Context, audioPath string) (*Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	w.WriteField("model", c.model)
	w.WriteField("response_format", "verbose_json")
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/translations", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded verboseResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &ServiceError{Err: fmt.Errorf("decode response: %w", err)}
	}

	return &Result{
		Text:     decoded.Text,
		Language: decoded.Language,
		Duration: decoded.Duration,
		Segments: decoded.Segments,
	}, nil
}
