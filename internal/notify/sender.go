// Package notify delivers phase-boundary pushes. A Poller finds due work in the
// scheduler store and hands it to a Sender; delivery never runs on the command path.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Sender pushes one message to a user. Implementations classify failures with
// Transient or Permanent; unclassified errors count as transient.
type Sender interface {
	Send(ctx context.Context, userID, title, body string) error
}

var (
	// ErrNoChannel reports a user with no delivery channel yet. The push stays
	// pending and is retried on later polls.
	ErrNoChannel = errors.New("recipient has no delivery channel")
	// ErrChannelInvalid reports a channel the provider rejected as invalid or
	// unregistered. It is permanent even when returned unwrapped.
	ErrChannelInvalid = errors.New("delivery channel invalid or unregistered")
)

type DeliveryError struct {
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s delivery failure: %v", kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func Transient(err error) error {
	return &DeliveryError{Err: err}
}

func Permanent(err error) error {
	return &DeliveryError{Permanent: true, Err: err}
}

func IsPermanent(err error) bool {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Permanent
	}
	return errors.Is(err, ErrChannelInvalid)
}

// LogSender writes pushes to the log. It stands in when no push provider is wired.
type LogSender struct{}

var _ Sender = LogSender{}

func (LogSender) Send(_ context.Context, userID, title, body string) error {
	log.Info().Str("userId", userID).Str("title", title).Str("body", body).Msg("push notification")
	return nil
}
