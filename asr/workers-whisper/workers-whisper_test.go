package workerswhisper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, []byte("RIFFdata"), 0o600); err != nil {
		t.Fatalf("writing audio: %v", err)
	}
	return path
}

func TestRecognize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acct/ai/run/@cf/openai/whisper" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "RIFFdata" {
			t.Errorf("body = %q", body)
		}
		w.Write([]byte(`{"success": true, "result": {"text": "turn it up", "word_count": 3}}`))
	}))
	defer server.Close()

	c := NewWorkersWhisperClient(WorkersWhisperClientOptions{
		Account:   "acct",
		Token:     "secret",
		ModelName: "@cf/openai/whisper",
		BaseURL:   server.URL,
	})

	out, err := c.Recognize(context.Background(), writeAudio(t), t.TempDir())
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if out.Output != "turn it up" {
		t.Errorf("Output = %q", out.Output)
	}
	if out.ModelName != "workers_whisper-@cf/openai/whisper" {
		t.Errorf("ModelName = %q", out.ModelName)
	}
}

func TestRecognizeUnsuccessful(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "errors": [{"message": "bad audio"}]}`))
	}))
	defer server.Close()

	c := NewWorkersWhisperClient(WorkersWhisperClientOptions{BaseURL: server.URL})
	if _, err := c.Recognize(context.Background(), writeAudio(t), t.TempDir()); err == nil {
		t.Error("Recognize() expected error")
	}
}

func TestRecognizeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewWorkersWhisperClient(WorkersWhisperClientOptions{BaseURL: server.URL})
	if _, err := c.Recognize(context.Background(), writeAudio(t), t.TempDir()); err == nil {
		t.Error("Recognize() expected error")
	}
}

func TestRecognizeMissingFile(t *testing.T) {
	c := NewWorkersWhisperClient(WorkersWhisperClientOptions{})
	if _, err := c.Recognize(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), t.TempDir()); err == nil {
		t.Error("Recognize() expected error")
	}
}
