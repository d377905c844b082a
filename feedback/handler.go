package feedback

import (
	"context"
	"time"

	"github.com/K3das/qin-bridge/messages"
	"github.com/K3das/qin-bridge/metrics"
	"github.com/K3das/qin-bridge/notify"
	"github.com/K3das/qin-bridge/utils"
	"go.uber.org/zap"
)

const notifyTimeout = time.Second * 10

type HandlerOptions struct {
	ParentLogger *zap.Logger
	Recorder     Recorder
	Notifier     notify.Notifier
	Messages     *messages.Provider
}

type Handler struct {
	log *zap.Logger

	recorder Recorder
	notifier notify.Notifier
	messages *messages.Provider
}

func NewHandler(options HandlerOptions) *Handler {
	h := &Handler{
		log:      options.ParentLogger.Named("feedback"),
		recorder: options.Recorder,
		notifier: options.Notifier,
		messages: options.Messages,
	}
	if h.recorder == nil {
		h.recorder = Recorders{}
	}
	if h.notifier == nil {
		h.notifier = notify.Nop{}
	}
	return h
}

// Handle records and announces one feedback event. Nothing here is allowed
// to fail the caller, problems are only logged.
func (h *Handler) Handle(ctx context.Context, e Event) {
	ctx = utils.LogContext(ctx,
		zap.String("action", e.Action),
		zap.String("source", string(e.Source)),
	)
	log := utils.GetLogFromContext(ctx, h.log)

	label := e.Action
	if !KnownActions[label] {
		label = "other"
	}
	metrics.Feedback.WithLabelValues(label, string(e.Source)).Inc()

	if line, err := h.messages.String(messages.FeedbackConsole, e.templateData()); err != nil {
		log.Warn("failed to render console message", zap.Error(err))
	} else {
		log.Info(line)
	}

	if err := h.recorder.Record(ctx, e); err != nil {
		log.Error("failed to record feedback", zap.Error(err))
	}

	n, err := h.messages.Notification(messages.FeedbackNotification, e.templateData())
	if err != nil {
		log.Error("failed to render notification", zap.Error(err))
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if err := h.notifier.Notify(notifyCtx, n); err != nil {
		log.Warn("failed to send notification", zap.Error(err))
	}
}

func (e Event) templateData() map[string]string {
	return map[string]string{
		"action": e.Action,
		"source": string(e.Source),
	}
}
