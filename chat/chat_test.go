package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/K3das/qin-bridge/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type countingStrategy struct {
	reply string
	err   error

	calls int
	got   string
}

func (c *countingStrategy) Complete(ctx context.Context, text string) (string, error) {
	c.calls++
	c.got = text
	return c.reply, c.err
}

type panicStrategy struct{}

func (panicStrategy) Complete(ctx context.Context, text string) (string, error) {
	panic("kaboom")
}

func newGateway(t *testing.T, primary, fallback Strategy) *Gateway {
	return NewGateway(GatewayOptions{
		ParentLogger: zaptest.NewLogger(t),
		Primary:      primary,
		Fallback:     fallback,
	})
}

func TestForwardRemote(t *testing.T) {
	primary := &countingStrategy{reply: "**hi**"}
	fallback := &countingStrategy{}

	ex := newGateway(t, primary, fallback).Forward(context.Background(), "Check calendar")

	if ex.Raw != "**hi**" || ex.Route != RouteRemote {
		t.Errorf("Forward() = %+v", ex)
	}
	if ex.Input != "Check calendar" {
		t.Errorf("Input = %q", ex.Input)
	}
	if primary.got != "Check calendar"+InstructionSuffix {
		t.Errorf("primary got %q", primary.got)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times", fallback.calls)
	}
}

func TestForwardFallsBackOnce(t *testing.T) {
	primary := &countingStrategy{err: ErrUnreachable}
	fallback := &countingStrategy{reply: "from cli"}

	ex := newGateway(t, primary, fallback).Forward(context.Background(), "ping")

	if ex.Raw != "from cli" || ex.Route != RouteFallback {
		t.Errorf("Forward() = %+v", ex)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback called %d times, want 1", fallback.calls)
	}
	if fallback.got != "ping" {
		t.Errorf("fallback got %q, want the plain command", fallback.got)
	}
}

func TestForwardFallbackError(t *testing.T) {
	primary := &countingStrategy{err: ErrUnreachable}
	fallback := &countingStrategy{err: errors.New("exec: \"clawdbot\": executable file not found in $PATH")}

	ex := newGateway(t, primary, fallback).Forward(context.Background(), "ping")

	if !strings.HasPrefix(ex.Raw, "CLI error: ") || ex.Route != RouteError {
		t.Errorf("Forward() = %+v", ex)
	}
}

func TestForwardOtherErrorSkipsFallback(t *testing.T) {
	primary := &countingStrategy{err: errors.New("decoding response: invalid json")}
	fallback := &countingStrategy{reply: "nope"}

	ex := newGateway(t, primary, fallback).Forward(context.Background(), "ping")

	if ex.Raw != "Error: decoding response: invalid json" {
		t.Errorf("Raw = %q", ex.Raw)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times", fallback.calls)
	}
}

func TestForwardWithoutFallback(t *testing.T) {
	ex := newGateway(t, &countingStrategy{err: ErrUnreachable}, nil).Forward(context.Background(), "ping")
	if !strings.HasPrefix(ex.Raw, "Error: ") {
		t.Errorf("Raw = %q", ex.Raw)
	}
}

func TestForwardRecoversPanic(t *testing.T) {
	ex := newGateway(t, panicStrategy{}, nil).Forward(context.Background(), "ping")
	if ex.Raw != "Error: kaboom" || ex.Route != RouteError {
		t.Errorf("Forward() = %+v", ex)
	}
}

func TestRemoteRequest(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("x-clawdbot-agent-id") != "main" {
			t.Errorf("agent header = %q", r.Header.Get("x-clawdbot-agent-id"))
		}
		if r.Header.Get("X-Request-ID") != "req-7" {
			t.Errorf("X-Request-ID = %q", r.Header.Get("X-Request-ID"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"Hello"}}]}`))
	}))
	defer srv.Close()

	r := newRemote(t, RemoteOptions{
		URL:     srv.URL,
		Token:   "secret",
		Model:   "clawdbot:main",
		User:    "qin",
		AgentID: "main",
		Timeout: 5 * time.Second,
	})

	ctx := utils.WithRequestID(context.Background(), "req-7")
	reply, err := r.Complete(ctx, "hi")
	if err != nil || reply != "Hello" {
		t.Fatalf("Complete() = %q, %v", reply, err)
	}
	if got.Model != "clawdbot:main" || got.User != "qin" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestRemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	r := newRemote(t, RemoteOptions{URL: url, Timeout: 2 * time.Second})

	_, err := r.Complete(context.Background(), "hi")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("Complete() error = %v, want ErrUnreachable", err)
	}
}

func TestRemoteHTTPErrorIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	r := newRemote(t, RemoteOptions{URL: srv.URL})

	_, err := r.Complete(context.Background(), "hi")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("Complete() error = %v, want ErrUnreachable", err)
	}
}

func TestRemoteInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	r := newRemote(t, RemoteOptions{URL: srv.URL})

	_, err := r.Complete(context.Background(), "hi")
	if err == nil || errors.Is(err, ErrUnreachable) {
		t.Errorf("Complete() error = %v, want decode error", err)
	}
}

func TestRemoteBreakerOpens(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := newRemote(t, RemoteOptions{
		URL:             srv.URL,
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	})

	for i := 0; i < 4; i++ {
		if _, err := r.Complete(context.Background(), "hi"); !errors.Is(err, ErrUnreachable) {
			t.Fatalf("attempt %d: error = %v", i, err)
		}
	}
	if hits != 2 {
		t.Errorf("server hit %d times, want 2 before the breaker opened", hits)
	}
}

func TestGatewayFallbackWithClosedServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	fallback := &countingStrategy{reply: "offline answer"}
	g := newGateway(t, newRemote(t, RemoteOptions{URL: url}), fallback)

	ex := g.Forward(context.Background(), "Check weather")
	if ex.Raw != "offline answer" || ex.Route != RouteFallback {
		t.Errorf("Forward() = %+v", ex)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback called %d times, want 1", fallback.calls)
	}
}

func TestExtractReply(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"choices", `{"choices":[{"message":{"content":"A"}}],"response":"B"}`, "A", false},
		{"response", `{"response":"B","message":"C"}`, "B", false},
		{"message", `{"message":"C"}`, "C", false},
		{"raw", `{"other":1}`, `{"other":1}`, false},
		{"empty choices", `{"choices":[],"response":"B"}`, "B", false},
		{"invalid", `not json`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractReply([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractReply() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractReply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func newRemote(t *testing.T, options RemoteOptions) *Remote {
	t.Helper()
	r, err := NewRemote(zaptest.NewLogger(t), options)
	if err != nil {
		t.Fatalf("NewRemote() error = %v", err)
	}
	return r
}

func TestRemoteThroughUnreachableProxy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request bypassed the proxy")
	}))
	defer srv.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	proxyAddr := closed.Listener.Addr().String()
	closed.Close()

	r := newRemote(t, RemoteOptions{URL: srv.URL, SocksProxy: proxyAddr, Timeout: 2 * time.Second})

	_, err := r.Complete(context.Background(), "hi")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("Complete() error = %v, want ErrUnreachable", err)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clawdbot")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLocalCLI(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"stdout", `echo "  $1 $3 $4 $5  "`, "agent hello --session-id qin"},
		{"stderr", `echo "only stderr" >&2; exit 3`, "only stderr"},
		{"silent", `exit 0`, NoResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli := NewLocalCLI(zaptest.NewLogger(t), LocalCLIOptions{Binary: writeScript(t, tt.script)})
			got, err := cli.Complete(context.Background(), "hello")
			if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Complete() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLocalCLIMissingBinary(t *testing.T) {
	cli := NewLocalCLI(zaptest.NewLogger(t), LocalCLIOptions{Binary: filepath.Join(t.TempDir(), "missing")})
	if _, err := cli.Complete(context.Background(), "hello"); err == nil {
		t.Error("Complete() expected error for missing binary")
	}
}

func TestLocalCLITimeout(t *testing.T) {
	cli := NewLocalCLI(zaptest.NewLogger(t), LocalCLIOptions{
		Binary:  writeScript(t, "sleep 5"),
		Timeout: 100 * time.Millisecond,
	})
	_, err := cli.Complete(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Complete() error = %v, want timeout", err)
	}
}

func TestLocalCLITruncatedOutput(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	// 300000 bytes of "x" on stdout, more than the CLI output limit
	script := writeScript(t, `head -c 300000 /dev/zero | tr '\0' x`)
	cli := NewLocalCLI(zap.New(core), LocalCLIOptions{Binary: script})

	got, err := cli.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(got) != maxCLIOutput {
		t.Errorf("len(Complete()) = %d, want %d", len(got), maxCLIOutput)
	}
	if logs.FilterMessage("cli output truncated").Len() != 1 {
		t.Errorf("truncation not logged, got %v", logs.All())
	}
}
