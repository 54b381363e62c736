// Package notifier pushes operator-facing events to Telegram. Delivery is
// best effort: a dead notifier must never stall or fail the trading loop,
// so every method swallows transport errors after logging them.
package notifier

import (
	"context"
	"time"
)

// Notifier is the operator messaging port.
type Notifier interface {
	// Notify sends a plain message.
	Notify(text string)

	// NotifyEphemeral sends a message and deletes it after deleteAfter.
	NotifyEphemeral(text string, deleteAfter time.Duration)

	// AskConfirmation sends a YES/NO prompt and blocks until the operator
	// answers or ctx expires. The error is non-nil only when no answer
	// arrived.
	AskConfirmation(ctx context.Context, text string) (approved bool, err error)
}

// Noop discards everything. Used when Telegram is not configured; asking it
// for confirmation always declines.
type Noop struct{}

func (Noop) Notify(string) {}

func (Noop) NotifyEphemeral(string, time.Duration) {}

func (Noop) AskConfirmation(ctx context.Context, _ string) (bool, error) {
	return false, context.Canceled
}
