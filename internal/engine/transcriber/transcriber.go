// Package transcriber turns segmented audio files into a single ordered
// transcript via an OpenAI-compatible speech-to-text endpoint.
package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kewiro/bunge-digest/internal/engine"
)

const maxAttempts = 5

// Transcriber calls a Whisper-compatible transcription endpoint.
type Transcriber struct {
	httpClient *http.Client
	apiBase    string
	apiKey     string
	model      string
}

// New builds a Transcriber from the process configuration.
func New() *Transcriber {
	return &Transcriber{
		httpClient: engine.Cfg.HTTPClient,
		apiBase:    strings.TrimSuffix(engine.Cfg.LLMAPIBase, "/"),
		apiKey:     engine.Cfg.TranscriptionAPIKey,
		model:      engine.Cfg.TranscriptionModel,
	}
}

// Transcribe transcribes each segment path, in the given order, and joins
// the results with a single newline. Segment order is the caller's
// responsibility — the audio segmenter already returns them lexicographic,
// which is chronological by construction.
func (t *Transcriber) Transcribe(ctx context.Context, segmentPaths []string) (string, error) {
	parts := make([]string, 0, len(segmentPaths))
	for _, path := range segmentPaths {
		text, err := t.transcribeOne(ctx, path)
		if err != nil {
			return "", fmt.Errorf("transcribe %s: %w", filepath.Base(path), err)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n"), nil
}

// transcribeOne retries transient failures and malformed JSON-shaped
// responses (a known failure mode where the API returns a JSON error body
// with a 200 status instead of plain text), mirroring the original
// segment-transcription retry loop.
func (t *Transcriber) transcribeOne(ctx context.Context, path string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		engine.IncrTranscriptionCalls()
		text, err := t.call(ctx, path)
		switch {
		case err == nil && strings.HasPrefix(strings.TrimSpace(text), "{"):
			lastErr = fmt.Errorf("received JSON-shaped error instead of transcription: %s", text)
		case err == nil:
			return text, nil
		default:
			lastErr = err
			if msg := err.Error(); strings.Contains(msg, "(status 4") && !strings.Contains(msg, "(status 429)") {
				engine.IncrTranscriptionErrors()
				return "", err
			}
		}

		engine.IncrTranscriptionErrors()
		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(1<<uint(attempt)) * time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

func (t *Transcriber) call(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open segment: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy audio into request: %w", err)
	}
	if err := w.WriteField("model", t.model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := w.WriteField("response_format", "text"); err != nil {
		return "", fmt.Errorf("write response_format field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiBase+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("transcription failed (status %d): %s", resp.StatusCode, string(respBody))
	}
	return string(respBody), nil
}
