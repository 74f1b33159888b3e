package notifier

import (
	"context"
	"errors"
	"time"
)

// Kind classifies a notification.
type Kind string

const (
	KindAlert  Kind = "alert"
	KindDigest Kind = "digest"
	KindAuth   Kind = "auth"
)

// Event is a message destined for the chat sink.
type Event struct {
	Kind     Kind      `json:"kind"`
	DeviceID string    `json:"device_id,omitempty"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Notifier delivers events to downstream channels.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Nop is a no-op notifier useful in tests.
type Nop struct{}

// Notify discards evt.
func (Nop) Notify(_ context.Context, _ Event) error { return nil }

// Multi delivers every event to all of its notifiers, even if some fail.
type Multi []Notifier

// Notify returns the joined errors of the notifiers that failed.
func (m Multi) Notify(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
