package notify

import (
	"context"
	"errors"

	"github.com/K3das/qin-bridge/messages"
)

type Notifier interface {
	Notify(ctx context.Context, n *messages.Notification) error
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n *messages.Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Notify(ctx context.Context, n *messages.Notification) error {
	return nil
}
