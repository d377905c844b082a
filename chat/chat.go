package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/K3das/qin-bridge/utils"
	"go.uber.org/zap"
)

// InstructionSuffix is appended to every command sent to the remote backend so
// replies end with short numbered options the handset can answer by keypress.
const InstructionSuffix = `

[IMPORTANT - QIN INTERFACE RULES:
User can ONLY respond by: pressing a number (1-9, 0) OR voice recording.
Your job: Be so preemptive that numbers handle 90% of interactions.

End EVERY response with 2-5 numbered options:
[1] Most likely next action
[2] Second most likely
[3] Alternative
[0] ← Back/Menu

Options should be COMPLETE ACTIONS, not questions.
Instead of "[1] Yes [2] No" → "[1] Send it [2] Edit first [3] Cancel"
Keep options SHORT (≤25 chars). Be specific, not generic.]`

// ErrUnreachable marks network level failures talking to a backend. Only
// these move the gateway on to its fallback.
var ErrUnreachable = errors.New("chat backend unreachable")

// Strategy is one way of getting a reply for a piece of text.
type Strategy interface {
	Complete(ctx context.Context, text string) (string, error)
}

type Route string

const (
	RouteRemote   Route = "remote"
	RouteFallback Route = "fallback"
	RouteError    Route = "error"
)

// Exchange is one forwarded command and its reply. Normalized is filled in
// by the caller.
type Exchange struct {
	Input      string
	Raw        string
	Normalized string
	Route      Route
}

func Augment(command string) string {
	return command + InstructionSuffix
}

type GatewayOptions struct {
	ParentLogger *zap.Logger
	Primary      Strategy
	// Fallback may be nil, then an unreachable primary is reported as an error
	// string.
	Fallback Strategy
}

type Gateway struct {
	log *zap.Logger

	primary  Strategy
	fallback Strategy
}

func NewGateway(options GatewayOptions) *Gateway {
	return &Gateway{
		log:      options.ParentLogger.Named("gateway"),
		primary:  options.Primary,
		fallback: options.Fallback,
	}
}

// Forward sends command to the primary strategy and, if that cannot be
// reached, to the fallback with the plain command. It always returns an
// exchange with a displayable Raw reply.
func (g *Gateway) Forward(ctx context.Context, command string) (exchange *Exchange) {
	log := utils.GetLogFromContext(ctx, g.log)

	exchange = &Exchange{Input: command}

	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered panic while forwarding", zap.Any("panic", r))
			exchange.Raw = fmt.Sprintf("Error: %v", r)
			exchange.Route = RouteError
		}
	}()

	raw, err := g.primary.Complete(ctx, Augment(command))
	switch {
	case err == nil:
		exchange.Raw = raw
		exchange.Route = RouteRemote
		return exchange

	case errors.Is(err, ErrUnreachable) && g.fallback != nil:
		log.Warn("remote backend unreachable, using fallback", zap.Error(err))

	default:
		log.Error("remote backend failed", zap.Error(err))
		exchange.Raw = "Error: " + err.Error()
		exchange.Route = RouteError
		return exchange
	}

	raw, err = g.fallback.Complete(ctx, command)
	if err != nil {
		log.Error("fallback failed", zap.Error(err))
		exchange.Raw = "CLI error: " + err.Error()
		exchange.Route = RouteError
		return exchange
	}

	exchange.Raw = raw
	exchange.Route = RouteFallback
	return exchange
}
