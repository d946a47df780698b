package transcriber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kewiro/bunge-digest/internal/engine"
)

func writeTempSegment(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("fake audio bytes"), 0o644); err != nil {
		t.Fatalf("write temp segment: %v", err)
	}
	return path
}

func TestTranscribe_JoinsInOrder(t *testing.T) {
	responses := []string{"first segment text", "second segment text"}
	call := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(responses[call]))
		call++
	}))
	defer server.Close()

	engine.Init(engine.Config{
		HTTPClient: server.Client(),
		LLMAPIBase: server.URL,
	})

	tr := New()
	dir := t.TempDir()
	seg1 := writeTempSegment(t, dir, "000.mp3")
	seg2 := writeTempSegment(t, dir, "001.mp3")

	got, err := tr.Transcribe(context.Background(), []string{seg1, seg2})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	want := "first segment text\nsecond segment text"
	if got != want {
		t.Errorf("Transcribe() = %q, want %q", got, want)
	}
}

func TestTranscribe_RetriesOnJSONDisguisedError(t *testing.T) {
	call := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		w.WriteHeader(http.StatusOK)
		if call == 1 {
			w.Write([]byte(`{"error": "internal"}`))
			return
		}
		w.Write([]byte("recovered transcription"))
	}))
	defer server.Close()

	engine.Init(engine.Config{
		HTTPClient: server.Client(),
		LLMAPIBase: server.URL,
	})

	tr := New()
	dir := t.TempDir()
	seg := writeTempSegment(t, dir, "000.mp3")

	got, err := tr.Transcribe(context.Background(), []string{seg})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "recovered transcription" {
		t.Errorf("Transcribe() = %q, want recovered transcription", got)
	}
	if call != 2 {
		t.Errorf("expected 2 calls, got %d", call)
	}
}
