package ack

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValerySidorin/ackd/internal/batch"
	obs "github.com/ValerySidorin/ackd/internal/observability"
	"github.com/ValerySidorin/ackd/internal/scheduler"
	"github.com/ValerySidorin/ackd/internal/store"
	"github.com/ValerySidorin/ackd/model"
	"github.com/panjf2000/ants/v2"
)

var errMissingFromResult = errors.New("id missing from transport result")

type Stats struct {
	Enqueued   int64
	Batches    int64
	Retries    int64
	Completed  int64
	Failed     int64
	Incomplete int64
}

type counters struct {
	enqueued   atomic.Int64
	batches    atomic.Int64
	retries    atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
	incomplete atomic.Int64
}

type flight struct {
	landing bool
}

// Acknowledger batches acks and nacks per subscription and dispatches them
// through a Transport, retrying transient failures.
type Acknowledger struct {
	conf Config
	tr   Transport

	store *store.Store
	acc   *batch.Accumulator
	sched *scheduler.Scheduler
	pool  *ants.Pool

	// gate orders Ack/Nack against the final seal in Shutdown.
	gate     sync.RWMutex
	closed   atomic.Bool
	draining atomic.Bool

	queue   []*model.Batch
	flights map[*model.Batch]*flight
	mu      sync.Mutex
	notify  chan struct{}
	changed chan struct{}

	ctx        context.Context
	cancel     context.CancelFunc
	feederDone chan struct{}

	onOutcome func(o model.Outcome)
	stats     counters

	l *slog.Logger
}

func New(conf Config, tr Transport, opts ...Option) (*Acknowledger, error) {
	conf.SetDefaults()
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	a := &Acknowledger{
		conf:  conf,
		tr:    tr,
		store: store.New(),
		acc: batch.NewAccumulator(batch.Config{
			MaxSize:  conf.MaxBatchSize,
			MaxDelay: conf.MaxBatchDelay,
		}),
		flights:    make(map[*model.Batch]*flight),
		notify:     make(chan struct{}, 1),
		changed:    make(chan struct{}, 1),
		feederDone: make(chan struct{}),
		l:          slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.onOutcome == nil {
		a.onOutcome = a.logOutcome
	}

	pool, err := ants.NewPool(conf.Workers, ants.WithPanicHandler(func(p any) {
		a.l.Error("dispatch worker panic", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("new dispatch pool: %w", err)
	}
	a.pool = pool

	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.sched = scheduler.New(conf.TickInterval, a.acc, a.submit, a.l)
	a.sched.Start()
	go a.feed()

	return a, nil
}

func (a *Acknowledger) Ack(subscription string, ids ...string) {
	a.enqueue(subscription, model.KindAck, ids)
}

func (a *Acknowledger) Nack(subscription string, ids ...string) {
	a.enqueue(subscription, model.KindNack, ids)
}

// Pending returns the tokens that have been enqueued and not resolved yet.
func (a *Acknowledger) Pending() iter.Seq[model.Token] {
	return a.store.Snapshot()
}

func (a *Acknowledger) Stats() Stats {
	return Stats{
		Enqueued:   a.stats.enqueued.Load(),
		Batches:    a.stats.batches.Load(),
		Retries:    a.stats.retries.Load(),
		Completed:  a.stats.completed.Load(),
		Failed:     a.stats.failed.Load(),
		Incomplete: a.stats.incomplete.Load(),
	}
}

func (a *Acknowledger) enqueue(subscription string, kind model.Kind, ids []string) {
	a.gate.RLock()
	defer a.gate.RUnlock()

	now := time.Now()

	if a.closed.Load() {
		for _, id := range ids {
			a.report(model.Outcome{
				Token: model.Token{
					ID:           id,
					Subscription: subscription,
					Kind:         kind,
					EnqueuedAt:   now,
				},
				Status: model.StatusShutdownIncomplete,
				Err:    model.ErrClosed,
			})
		}
		return
	}

	for _, id := range ids {
		err := a.store.Register(model.Token{
			ID:           id,
			Subscription: subscription,
			Kind:         kind,
			EnqueuedAt:   now,
		})
		if err != nil {
			a.l.Debug("token already pending", "subscription", subscription, "id", id, "kind", kind.String())
		} else {
			obs.AddPending(1)
		}

		a.stats.enqueued.Add(1)
		obs.IncEnqueued(kind.String(), subscription)

		if b := a.acc.Add(id, kind, subscription, now); b != nil {
			a.submit(b)
		}
	}
}

func (a *Acknowledger) submit(b *model.Batch) {
	obs.IncSealed(b.Reason.String(), b.Subscription)

	a.mu.Lock()
	a.queue = append(a.queue, b)
	a.mu.Unlock()

	select {
	case a.notify <- struct{}{}:
	default:
	}
}

func (a *Acknowledger) feed() {
	defer close(a.feederDone)

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.notify:
		}

		for b := a.next(); b != nil; b = a.next() {
			if err := a.pool.Submit(func() { a.dispatch(b) }); err != nil {
				a.l.Error("submit batch to dispatch pool", "subscription", b.Subscription, "err", err)
				a.drop(b, err)
			}
		}
	}
}

func (a *Acknowledger) next() *model.Batch {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.queue) == 0 {
		return nil
	}

	b := a.queue[0]
	a.queue[0] = nil
	a.queue = a.queue[1:]
	a.flights[b] = &flight{}

	return b
}

// land marks b as settling. It returns false if shutdown has already given
// up on b.
func (a *Acknowledger) land(b *model.Batch) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, ok := a.flights[b]
	if !ok {
		return false
	}
	f.landing = true

	return true
}

func (a *Acknowledger) done(b *model.Batch) {
	a.mu.Lock()
	delete(a.flights, b)
	a.mu.Unlock()

	a.signal()
}

func (a *Acknowledger) signal() {
	select {
	case a.changed <- struct{}{}:
	default:
	}
}

func (a *Acknowledger) report(o model.Outcome) {
	switch o.Status {
	case model.StatusCompleted:
		a.stats.completed.Add(1)
	case model.StatusPermanentlyFailed:
		a.stats.failed.Add(1)
	case model.StatusShutdownIncomplete:
		a.stats.incomplete.Add(1)
	}
	obs.IncOutcome(o.Status.String(), o.Token.Subscription)

	a.onOutcome(o)
}

func (a *Acknowledger) logOutcome(o model.Outcome) {
	if o.Status == model.StatusCompleted {
		return
	}

	a.l.Warn("acknowledgement not delivered",
		"subscription", o.Token.Subscription,
		"id", o.Token.ID,
		"kind", o.Token.Kind.String(),
		"status", o.Status.String(),
		"attempt", o.Token.Attempt,
		"err", o.Err,
	)
}
