package feedback

import (
	"context"
	"errors"
	"strings"
	"time"
)

type Source string

const (
	// SourcePanel is the feedback panel served by the bridge itself.
	SourcePanel Source = "panel"
	// SourceRelay is feedback that arrived through the ntfy relay.
	SourceRelay Source = "online"
)

const UnknownAction = "unknown"

// KnownActions are the buttons of the feedback panel.
var KnownActions = map[string]bool{
	"thumbs_up":   true,
	"thumbs_down": true,
	"star":        true,
	"note":        true,
	"play":        true,
}

type Event struct {
	Action string    `json:"action"`
	Source Source    `json:"source"`
	At     time.Time `json:"at"`
}

func NewEvent(action string, source Source) Event {
	action = strings.TrimSpace(action)
	if action == "" {
		action = UnknownAction
	}
	return Event{
		Action: action,
		Source: source,
		At:     time.Now(),
	}
}

type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// History lists recorded events, newest first.
type History interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Recorders records to every recorder and joins their errors.
type Recorders []Recorder

func (r Recorders) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, recorder := range r {
		if err := recorder.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
