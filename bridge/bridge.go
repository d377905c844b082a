package bridge

import (
	"context"
	"time"

	"github.com/K3das/qin-bridge/asr"
	"github.com/K3das/qin-bridge/chat"
	"github.com/K3das/qin-bridge/markdown"
	"github.com/K3das/qin-bridge/menu"
	"github.com/K3das/qin-bridge/metrics"
	"github.com/K3das/qin-bridge/utils"
	"go.uber.org/zap"
)

type Forwarder interface {
	Forward(ctx context.Context, command string) *chat.Exchange
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (*asr.Transcript, error)
}

type Options struct {
	ParentLogger *zap.Logger
	Menu         *menu.Menu
	Gateway      Forwarder
	Transcriber  Transcriber
}

// Bridge ties the handset operations together: menu actions, free text and
// recordings all end up as a normalized chat reply.
type Bridge struct {
	log *zap.Logger

	menu        *menu.Menu
	gateway     Forwarder
	transcriber Transcriber
}

func New(options Options) *Bridge {
	return &Bridge{
		log:         options.ParentLogger.Named("bridge"),
		menu:        options.Menu,
		gateway:     options.Gateway,
		transcriber: options.Transcriber,
	}
}

func (b *Bridge) Menu() *menu.Menu {
	return b.menu
}

// Action resolves a menu selection and forwards the resulting command. The
// only error is *menu.UnknownActionError.
func (b *Bridge) Action(ctx context.Context, req menu.ActionRequest) (*chat.Exchange, error) {
	log := utils.GetLogFromContext(ctx, b.log)

	command, err := menu.Resolve(b.menu, req)
	if err != nil {
		return nil, err
	}

	log.Info("resolved action", zap.String("action", req.Action), zap.String("command", command))

	return b.forward(ctx, command), nil
}

func (b *Bridge) Chat(ctx context.Context, text string) *chat.Exchange {
	return b.forward(ctx, text)
}

func (b *Bridge) Transcribe(ctx context.Context, audio []byte) (*asr.Transcript, error) {
	started := time.Now()

	transcript, err := b.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return nil, err
	}

	metrics.TranscriptionLatency.Observe(time.Since(started).Seconds())
	metrics.Transcriptions.WithLabelValues(string(transcript.Source)).Inc()
	if transcript.Duration > 0 {
		metrics.AudioSeconds.Observe(transcript.Duration)
	}

	return transcript, nil
}

type AudioResult struct {
	Transcript *asr.Transcript
	Exchange   *chat.Exchange
}

// Audio transcribes a recording and forwards the transcript, placeholder
// included, as a chat command.
func (b *Bridge) Audio(ctx context.Context, audio []byte) (*AudioResult, error) {
	transcript, err := b.Transcribe(ctx, audio)
	if err != nil {
		return nil, err
	}

	return &AudioResult{
		Transcript: transcript,
		Exchange:   b.forward(ctx, transcript.Text),
	}, nil
}

func (b *Bridge) forward(ctx context.Context, command string) *chat.Exchange {
	log := utils.GetLogFromContext(ctx, b.log)

	started := time.Now()
	exchange := b.gateway.Forward(ctx, command)
	exchange.Normalized = markdown.Normalize(exchange.Raw)

	metrics.ForwardLatency.Observe(time.Since(started).Seconds())
	metrics.Forwards.WithLabelValues(string(exchange.Route)).Inc()

	log.Info("forwarded",
		zap.String("route", string(exchange.Route)),
		zap.Int("reply_chars", len(exchange.Normalized)),
		zap.Duration("took", time.Since(started)),
	)

	return exchange
}
