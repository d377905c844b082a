package ntfy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/K3das/qin-bridge/feedback"
	"go.uber.org/zap/zaptest"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []feedback.Event
	got    chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{got: make(chan struct{}, 16)}
}

func (r *recordingHandler) Handle(ctx context.Context, e feedback.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.got <- struct{}{}:
	default:
	}
}

func (r *recordingHandler) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.got:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}
}

func TestListenerHandlesMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/qin-feedback/json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"event":"open","topic":"qin-feedback"}` + "\n"))
		w.Write([]byte("not json\n"))
		w.Write([]byte(`{"event":"keepalive"}` + "\n"))
		w.Write([]byte(`{"event":"message","message":"thumbs_up"}` + "\n"))
		w.Write([]byte(`{"event":"message"}` + "\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	handler := newRecordingHandler()
	l, err := NewListener(zaptest.NewLogger(t), Options{Server: srv.URL + "/", Topic: "qin-feedback"}, handler)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	handler.wait(t, 2)
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.events) != 2 {
		t.Fatalf("got %d events", len(handler.events))
	}
	if handler.events[0].Action != "thumbs_up" || handler.events[0].Source != feedback.SourceRelay {
		t.Errorf("events[0] = %+v", handler.events[0])
	}
	if handler.events[1].Action != feedback.UnknownAction {
		t.Errorf("events[1] = %+v", handler.events[1])
	}
}

func TestListenerReconnects(t *testing.T) {
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := connections.Add(1)
		if n == 1 {
			http.Error(w, "nope", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"event":"message","message":"star"}` + "\n"))
	}))
	defer srv.Close()

	handler := newRecordingHandler()
	l, err := NewListener(zaptest.NewLogger(t), Options{
		Server:         srv.URL,
		Topic:          "t",
		ReconnectDelay: 10 * time.Millisecond,
	}, handler)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	// one after the failed attempt, one more after the stream closed
	handler.wait(t, 2)
	cancel()
	<-done

	if connections.Load() < 3 {
		t.Errorf("connections = %d, want at least 3", connections.Load())
	}
}

func TestListenerIdleTimeout(t *testing.T) {
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connections.Add(1)
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	l, err := NewListener(zaptest.NewLogger(t), Options{
		Server:         srv.URL,
		Topic:          "t",
		IdleTimeout:    50 * time.Millisecond,
		ReconnectDelay: 10 * time.Millisecond,
	}, newRecordingHandler())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for connections.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if connections.Load() < 2 {
		t.Errorf("idle stream was not dropped, connections = %d", connections.Load())
	}
}

func TestNewListenerRequiresTopic(t *testing.T) {
	if _, err := NewListener(zaptest.NewLogger(t), Options{}, newRecordingHandler()); err == nil {
		t.Error("NewListener() expected error")
	}
}
