package ack

import (
	"log/slog"

	"github.com/ValerySidorin/ackd/model"
)

type Option func(a *Acknowledger)

// WithOutcomeHandler registers h to receive the terminal outcome of every
// token. h is called from dispatch workers and must not block.
func WithOutcomeHandler(h func(o model.Outcome)) Option {
	return func(a *Acknowledger) {
		a.onOutcome = h
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Acknowledger) {
		a.l = l
	}
}
