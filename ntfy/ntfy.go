package ntfy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/K3das/qin-bridge/feedback"
	"github.com/K3das/qin-bridge/metrics"
	"github.com/K3das/qin-bridge/utils"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const maxLineSize = 64 * 1024

var errStreamClosed = errors.New("stream closed by server")

type Options struct {
	Server         string        `env:"SERVER" envDefault:"https://ntfy.sh"`
	Topic          string        `env:"TOPIC"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"90s"`
	ReconnectDelay time.Duration `env:"RECONNECT_DELAY" envDefault:"2s"`
}

type Handler interface {
	Handle(ctx context.Context, e feedback.Event)
}

// Listener subscribes to an ntfy topic and turns every published message into
// a relay feedback event.
type Listener struct {
	log *zap.Logger

	url            string
	idleTimeout    time.Duration
	reconnectDelay time.Duration

	handler Handler
	http    *http.Client
}

func NewListener(parentLogger *zap.Logger, options Options, handler Handler) (*Listener, error) {
	if options.Topic == "" {
		return nil, fmt.Errorf("ntfy topic is empty")
	}

	server := options.Server
	if server == "" {
		server = "https://ntfy.sh"
	}

	l := &Listener{
		log:            parentLogger.Named("ntfy"),
		url:            strings.TrimRight(server, "/") + "/" + url.PathEscape(options.Topic) + "/json",
		idleTimeout:    options.IdleTimeout,
		reconnectDelay: options.ReconnectDelay,
		handler:        handler,
		// the stream is long lived, idle detection is done per line
		http: &http.Client{},
	}
	if l.idleTimeout <= 0 {
		l.idleTimeout = time.Second * 90
	}
	if l.reconnectDelay <= 0 {
		l.reconnectDelay = time.Second * 2
	}

	return l, nil
}

// Run keeps the subscription alive until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	l.log.Info("listening", zap.String("url", l.url))

	for {
		err := l.subscribe(ctx)
		if ctx.Err() != nil {
			return nil
		}

		l.log.Warn("connection lost, reconnecting", zap.Error(err), zap.Duration("delay", l.reconnectDelay))
		metrics.RelayReconnects.Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.reconnectDelay):
		}
	}
}

func (l *Listener) subscribe(ctx context.Context) (err error) {
	defer utils.PanicToError(l.log, &err)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	// the first line can take up to the idle timeout as well
	idle := time.AfterFunc(l.idleTimeout, cancel)
	defer idle.Stop()

	resp, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("non-ok http response: [%d] %s", resp.StatusCode, resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	for scanner.Scan() {
		idle.Reset(l.idleTimeout)
		l.handleLine(ctx, scanner.Bytes())
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return errStreamClosed
}

func (l *Listener) handleLine(ctx context.Context, line []byte) {
	if !gjson.ValidBytes(line) {
		l.log.Debug("skipping non-json line", zap.ByteString("line", line))
		return
	}

	if gjson.GetBytes(line, "event").String() != "message" {
		return
	}

	action := feedback.UnknownAction
	if message := gjson.GetBytes(line, "message"); message.Exists() {
		action = message.String()
	}

	l.handler.Handle(ctx, feedback.NewEvent(action, feedback.SourceRelay))
}
