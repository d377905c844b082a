package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/K3das/qin-bridge/utils"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
)

type RemoteOptions struct {
	URL     string        `env:"API" envDefault:"http://127.0.0.1:18789/v1/chat/completions"`
	Token   string        `env:"TOKEN"`
	Model   string        `env:"MODEL" envDefault:"clawdbot:main"`
	User    string        `env:"USER" envDefault:"qin"`
	AgentID string        `env:"AGENT_ID" envDefault:"main"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"120s"`
	// host:port of a SOCKS5 proxy to reach the backend through, direct if empty
	SocksProxy string `env:"SOCKS_PROXY"`

	MaxResponseSize int `env:"MAX_RESPONSE_SIZE" envDefault:"1048576"`

	// consecutive unreachable errors before the breaker opens, and how long
	// it stays open
	BreakerFailures uint32        `env:"BREAKER_FAILURES" envDefault:"3"`
	BreakerCooldown time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`
}

// Remote talks to an OpenAI compatible chat completion endpoint.
type Remote struct {
	log *zap.Logger

	url     string
	token   string
	model   string
	user    string
	agentID string

	maxResponseSize int

	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	User     string    `json:"user,omitempty"`
}

func newHTTPClient(timeout time.Duration, socksAddr string) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	if socksAddr == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("creating socks dialer: %w", err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		},
	}
	if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = contextDialer.DialContext
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

func NewRemote(parentLogger *zap.Logger, options RemoteOptions) (*Remote, error) {
	client, err := newHTTPClient(options.Timeout, options.SocksProxy)
	if err != nil {
		return nil, err
	}

	r := &Remote{
		log:             parentLogger.Named("remote"),
		url:             options.URL,
		token:           options.Token,
		model:           options.Model,
		user:            options.User,
		agentID:         options.AgentID,
		maxResponseSize: options.MaxResponseSize,
		http:            client,
	}
	if r.maxResponseSize <= 0 {
		r.maxResponseSize = 1024 * 1024
	}

	failures := options.BreakerFailures
	if failures == 0 {
		failures = 3
	}

	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "clawdbot-remote",
		MaxRequests: 1,
		Timeout:     options.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return r, nil
}

func (r *Remote) Complete(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Model:    r.model,
		Messages: []message{{Role: "user", Content: text}},
		User:     r.user,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.agentID != "" {
		req.Header.Set("x-clawdbot-agent-id", r.agentID)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if id := utils.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	// only transport level failures go through the breaker's error path, a
	// reachable backend sending junk must not open the circuit
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.send(req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %w", ErrUnreachable, err)
	} else if err != nil {
		return "", err
	}

	resp := result.(*http.Response)
	defer resp.Body.Close()

	body, err := utils.ReadAllLimit(resp.Body, r.maxResponseSize)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	return ExtractReply(body)
}

func (r *Remote) send(req *http.Request) (*http.Response, error) {
	resp, err := r.http.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			// the caller gave up, nobody is waiting for a fallback
			return nil, fmt.Errorf("sending request: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := utils.ReadAllLimit(resp.Body, 256)
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: http %d: %s", ErrUnreachable, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	return resp, nil
}

// ExtractReply picks the reply text out of a backend response, tolerating
// schema drift: choices[0].message.content, then response, then message, then
// the whole payload.
func ExtractReply(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("decoding response: invalid json")
	}

	for _, path := range []string{"choices.0.message.content", "response", "message"} {
		if value := gjson.GetBytes(body, path); value.Exists() {
			return value.String(), nil
		}
	}

	return string(bytes.TrimSpace(body)), nil
}
