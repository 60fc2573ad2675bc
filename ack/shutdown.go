package ack

import (
	"context"
	"fmt"

	"github.com/ValerySidorin/ackd/model"
)

// Shutdown stops accepting acknowledgements, seals every open batch and
// dispatches what is left within ShutdownDrainTimeout. Tokens that could not
// be delivered in time are reported as StatusShutdownIncomplete and the
// returned error wraps model.ErrShutdownIncomplete. Transient failures seen
// while draining are not retried.
func (a *Acknowledger) Shutdown(ctx context.Context) error {
	a.gate.Lock()
	if a.closed.Load() {
		a.gate.Unlock()
		return model.ErrClosed
	}
	before := a.stats.incomplete.Load()
	a.closed.Store(true)
	a.draining.Store(true)
	sealed := a.acc.ForceSealAll()
	a.gate.Unlock()

	retries := a.sched.Stop()

	a.l.Info("draining acknowledgements", "sealed", len(sealed), "retries", len(retries))

	for _, b := range sealed {
		a.submit(b)
	}
	for _, b := range retries {
		a.submit(b)
	}

	ctx, cancel := context.WithTimeout(ctx, a.conf.ShutdownDrainTimeout)
	defer cancel()

	if !a.waitIdle(ctx) {
		cause := ctx.Err()
		a.abandon(cause)
		a.cancel()
		a.waitLanded()
		a.abandon(cause)
	}

	a.cancel()
	a.pool.Release()
	<-a.feederDone

	if incomplete := a.stats.incomplete.Load() - before; incomplete > 0 {
		a.l.Error("acknowledgements left undelivered", "count", incomplete)
		return fmt.Errorf("%w: %d tokens", model.ErrShutdownIncomplete, incomplete)
	}

	a.l.Info("acknowledgements drained")
	return nil
}

func (a *Acknowledger) waitIdle(ctx context.Context) bool {
	for {
		a.mu.Lock()
		idle := len(a.queue) == 0 && len(a.flights) == 0
		a.mu.Unlock()

		if idle {
			return true
		}

		select {
		case <-a.changed:
		case <-ctx.Done():
			return false
		}
	}
}

// waitLanded waits for batches whose results are already being settled.
func (a *Acknowledger) waitLanded() {
	for {
		a.mu.Lock()
		n := len(a.flights)
		a.mu.Unlock()

		if n == 0 {
			return
		}
		<-a.changed
	}
}

// abandon claims every queued batch and every in-flight batch that has not
// landed yet and reports their tokens as incomplete.
func (a *Acknowledger) abandon(cause error) {
	a.mu.Lock()
	claimed := a.queue
	a.queue = nil
	for b, f := range a.flights {
		if !f.landing {
			claimed = append(claimed, b)
			delete(a.flights, b)
		}
	}
	a.mu.Unlock()

	for _, b := range claimed {
		a.giveUp(b, cause)
	}
}

// drop gives up on a batch that could not be handed to a worker.
func (a *Acknowledger) drop(b *model.Batch, cause error) {
	a.mu.Lock()
	f, ok := a.flights[b]
	if ok && !f.landing {
		delete(a.flights, b)
	}
	a.mu.Unlock()

	if ok && !f.landing {
		a.giveUp(b, cause)
		a.signal()
	}
}

func (a *Acknowledger) giveUp(b *model.Batch, cause error) {
	a.l.Warn("abandoning batch",
		"subscription", b.Subscription,
		"attempt", b.Attempt,
		"size", b.Len(),
		"err", cause,
	)

	err := fmt.Errorf("%w: %w", model.ErrShutdownIncomplete, cause)
	for _, id := range b.AckIDs {
		a.resolve(b.Subscription, id, model.KindAck, model.StatusShutdownIncomplete, err)
	}
	for _, id := range b.NackIDs {
		a.resolve(b.Subscription, id, model.KindNack, model.StatusShutdownIncomplete, err)
	}
}
