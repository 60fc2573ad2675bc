package ack

import (
	"context"
	"fmt"
	"time"

	obs "github.com/ValerySidorin/ackd/internal/observability"
	"github.com/ValerySidorin/ackd/model"
)

func (a *Acknowledger) dispatch(b *model.Batch) {
	a.stats.batches.Add(1)

	start := time.Now()
	succeeded, failed := a.send(b)
	obs.ObserveDispatchLatency(b.Subscription, time.Since(start))

	if !a.land(b) {
		a.l.Debug("result of abandoned batch dropped", "subscription", b.Subscription, "size", b.Len())
		return
	}
	defer a.done(b)

	a.settle(b, succeeded, failed)
}

func (a *Acknowledger) send(b *model.Batch) ([]string, map[string]error) {
	var succeeded []string
	failed := make(map[string]error)

	if len(b.AckIDs) > 0 {
		res, err := a.call(func(ctx context.Context) (model.Result, error) {
			return a.tr.Acknowledge(ctx, b.Subscription, b.AckIDs)
		})
		succeeded = normalize(b.AckIDs, res, err, succeeded, failed)
	}

	if len(b.NackIDs) > 0 {
		res, err := a.call(func(ctx context.Context) (model.Result, error) {
			return a.tr.ModifyAckDeadline(ctx, b.Subscription, b.NackIDs, 0)
		})
		succeeded = normalize(b.NackIDs, res, err, succeeded, failed)
	}

	return succeeded, failed
}

type callResult struct {
	res model.Result
	err error
}

// call runs f bounded by DispatchTimeout. A transport that ignores ctx is
// abandoned when the timeout fires and its late answer is dropped.
func (a *Acknowledger) call(f func(ctx context.Context) (model.Result, error)) (model.Result, error) {
	ctx, cancel := context.WithTimeout(a.ctx, a.conf.DispatchTimeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		var r callResult
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("transport panic: %v", p)
			}
			done <- r
		}()
		r.res, r.err = f(ctx)
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		return model.Result{}, model.Transient(fmt.Errorf("dispatch: %w", ctx.Err()))
	}
}

// normalize folds a transport answer for ids into succeeded and failed.
// Ids the transport did not mention are transient failures; ids it was not
// asked about are ignored.
func normalize(ids []string, res model.Result, err error, succeeded []string, failed map[string]error) []string {
	if err != nil {
		for _, id := range ids {
			failed[id] = err
		}
		return succeeded
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	for _, id := range res.Succeeded {
		if _, ok := want[id]; ok {
			succeeded = append(succeeded, id)
			delete(want, id)
		}
	}
	for id, kind := range res.Failed {
		if _, ok := want[id]; ok {
			failed[id] = kind.Err()
			delete(want, id)
		}
	}
	for _, id := range ids {
		if _, ok := want[id]; ok {
			failed[id] = model.Transient(errMissingFromResult)
		}
	}

	return succeeded
}

func (a *Acknowledger) settle(b *model.Batch, succeeded []string, failed map[string]error) {
	nacks := make(map[string]struct{}, len(b.NackIDs))
	for _, id := range b.NackIDs {
		nacks[id] = struct{}{}
	}
	kindOf := func(id string) model.Kind {
		if _, ok := nacks[id]; ok {
			return model.KindNack
		}
		return model.KindAck
	}

	for _, id := range succeeded {
		a.resolve(b.Subscription, id, kindOf(id), model.StatusCompleted, nil)
	}

	var acks, nackRetries []string
	for id, err := range failed {
		kind := kindOf(id)

		if !model.KindOf(err).Retryable() {
			a.resolve(b.Subscription, id, kind, model.StatusPermanentlyFailed, err)
			continue
		}

		if a.draining.Load() {
			a.resolve(b.Subscription, id, kind, model.StatusShutdownIncomplete,
				fmt.Errorf("%w: %w", model.ErrShutdownIncomplete, err))
			continue
		}

		attempt, ierr := a.store.IncAttempt(id, b.Subscription)
		if ierr != nil {
			a.l.Debug("retry of resolved token skipped", "subscription", b.Subscription, "id", id)
			continue
		}
		if attempt >= a.conf.MaxRetryAttempts {
			a.resolve(b.Subscription, id, kind, model.StatusPermanentlyFailed,
				fmt.Errorf("%w after %d attempts: %w", model.ErrPermanentlyFailed, attempt, err))
			continue
		}

		if kind == model.KindNack {
			nackRetries = append(nackRetries, id)
		} else {
			acks = append(acks, id)
		}
	}

	if len(acks)+len(nackRetries) > 0 {
		a.retry(b, acks, nackRetries)
	}
}

func (a *Acknowledger) retry(b *model.Batch, acks, nacks []string) {
	now := time.Now()
	attempt := b.Attempt + 1
	delay := a.conf.retryDelay(attempt)

	r := &model.Batch{
		Subscription: b.Subscription,
		AckIDs:       acks,
		NackIDs:      nacks,
		CreatedAt:    now,
		Deadline:     now.Add(delay),
		Attempt:      attempt,
		Reason:       model.SealRetry,
	}

	a.stats.retries.Add(1)
	obs.IncRetry(b.Subscription)
	a.l.Debug("scheduling retry",
		"subscription", r.Subscription,
		"attempt", r.Attempt,
		"size", r.Len(),
		"delay", delay,
	)

	if !a.sched.ScheduleRetry(r, r.Deadline) {
		a.submit(r)
	}
}

func (a *Acknowledger) resolve(subscription, id string, kind model.Kind, status model.Status, err error) {
	tok, rerr := a.store.Resolve(id, subscription)
	if rerr != nil {
		a.l.Debug("token already resolved", "subscription", subscription, "id", id, "status", status.String())
		return
	}
	obs.AddPending(-1)

	tok.Kind = kind
	a.report(model.Outcome{Token: tok, Status: status, Err: err})
}
