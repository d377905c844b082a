package whispercli

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/K3das/qin-bridge/asr"
	"github.com/K3das/qin-bridge/media"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}

	path := filepath.Join(t.TempDir(), "whisper")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestArtifactPath(t *testing.T) {
	got := ArtifactPath("/tmp/qin-1/audio-1.wav", "/tmp/qin-1")
	if got != filepath.Join("/tmp/qin-1", "audio-1.txt") {
		t.Errorf("ArtifactPath() = %q", got)
	}
}

func TestRecognizeReadsArtifact(t *testing.T) {
	// $1 = audio, $3 = model, $7 = output dir
	script := writeScript(t, `name=$(basename "$1")
name="${name%.*}"
echo "hello from $3" > "$7/$name.txt"
echo "[00:00.000 --> 00:01.000] hello"
`)
	dir := t.TempDir()
	audio := filepath.Join(dir, "audio-1.wav")

	r := NewRecognizer(zaptest.NewLogger(t), Options{Binary: script, Model: "base"})
	out, err := r.Recognize(context.Background(), audio, dir)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	if strings.TrimSpace(out.Artifact) != "hello from base" {
		t.Errorf("Artifact = %q", out.Artifact)
	}
	if !strings.Contains(out.Output, "hello") {
		t.Errorf("Output = %q", out.Output)
	}
	if out.ModelName != "whisper_cli-base" {
		t.Errorf("ModelName = %q", out.ModelName)
	}
}

func TestRecognizePassesLanguage(t *testing.T) {
	script := writeScript(t, `echo "$@"
`)
	r := NewRecognizer(zaptest.NewLogger(t), Options{Binary: script, Language: "en"})
	out, err := r.Recognize(context.Background(), "a.wav", t.TempDir())
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if !strings.Contains(out.Output, "--language en") || !strings.Contains(out.Output, "--model tiny") {
		t.Errorf("args = %q", out.Output)
	}
}

func TestRecognizeFailureKeepsOutput(t *testing.T) {
	script := writeScript(t, `echo "partial words"
echo "model crashed" >&2
exit 3
`)
	r := NewRecognizer(zaptest.NewLogger(t), Options{Binary: script})
	out, err := r.Recognize(context.Background(), "a.wav", t.TempDir())
	if err == nil {
		t.Fatal("Recognize() expected error")
	}
	if !strings.Contains(err.Error(), "model crashed") {
		t.Errorf("error = %v, want stderr included", err)
	}
	if out == nil || strings.TrimSpace(out.Output) != "partial words" {
		t.Errorf("output = %+v", out)
	}
}

func TestRecognizeMissingBinary(t *testing.T) {
	r := NewRecognizer(zaptest.NewLogger(t), Options{Binary: filepath.Join(t.TempDir(), "nope")})
	out, err := r.Recognize(context.Background(), "a.wav", t.TempDir())
	if err == nil {
		t.Fatal("Recognize() expected error")
	}
	if out == nil || out.Artifact != "" || out.Output != "" {
		t.Errorf("output = %+v, want empty", out)
	}
}

func TestAdapterWithMissingTools(t *testing.T) {
	missing := t.TempDir()
	staging := t.TempDir()

	adapter := asr.NewAdapter(asr.AdapterOptions{
		ParentLogger: zaptest.NewLogger(t),
		Recognizer:   NewRecognizer(zaptest.NewLogger(t), Options{Binary: filepath.Join(missing, "whisper")}),
		Tools: media.NewFFmpeg(
			media.WithFFmpegBinary(filepath.Join(missing, "ffmpeg")),
			media.WithFFprobeBinary(filepath.Join(missing, "ffprobe")),
		),
		StagingDir:    staging,
		ProbeDuration: true,
	})

	got, err := adapter.Transcribe(context.Background(), []byte("not really audio"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Text != "(Could not transcribe)" {
		t.Errorf("Text = %q, want placeholder", got.Text)
	}

	entries, _ := os.ReadDir(staging)
	if len(entries) != 0 {
		t.Errorf("staging dir has %d leftover entries", len(entries))
	}
}

func TestRecognizeLogsTruncatedOutput(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	script := writeScript(t, `head -c 70000 /dev/zero | tr '\0' a
`)

	r := NewRecognizer(zap.New(core), Options{Binary: script})
	out, err := r.Recognize(context.Background(), "a.wav", t.TempDir())
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if len(out.Output) != maxStdoutSize {
		t.Errorf("len(Output) = %d, want %d", len(out.Output), maxStdoutSize)
	}
	if logs.FilterMessage("whisper stdout truncated").Len() != 1 {
		t.Errorf("truncation not logged, got %v", logs.All())
	}
}
