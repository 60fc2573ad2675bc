package scheduler

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/ValerySidorin/ackd/model"
)

type Sealer interface {
	SealExpired(now time.Time) []*model.Batch
}

// Scheduler seals expired batches on a fixed tick and re-submits retry
// batches once their backoff has elapsed.
type Scheduler struct {
	interval time.Duration
	sealer   Sealer
	submit   func(b *model.Batch)

	retries retryQueue
	seq     uint64
	stopped bool
	mu      sync.Mutex

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	l *slog.Logger
}

func New(interval time.Duration, sealer Sealer, submit func(b *model.Batch), l *slog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		sealer:   sealer,
		submit:   submit,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		l:        l,
	}
}

func (s *Scheduler) Start() {
	go s.run()
}

// ScheduleRetry queues b to be submitted at the given time. It returns false
// once the scheduler has been stopped.
func (s *Scheduler) ScheduleRetry(b *model.Batch, at time.Time) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.seq++
	heap.Push(&s.retries, &retry{at: at, seq: s.seq, b: b})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// PendingRetries returns the number of retry batches waiting for their time.
func (s *Scheduler) PendingRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retries.Len()
}

// Stop halts ticks and retry timers and returns the retry batches that were
// not due yet, earliest first. Stop is safe to call more than once.
func (s *Scheduler) Stop() []*model.Batch {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()

	batches := make([]*model.Batch, 0, s.retries.Len())
	for s.retries.Len() > 0 {
		batches = append(batches, heap.Pop(&s.retries).(*retry).b)
	}
	return batches
}

func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		s.arm(timer)

		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			for _, b := range s.sealer.SealExpired(now) {
				s.submit(b)
			}
			s.fire(now)
		case <-timer.C:
			s.fire(time.Now())
		case <-s.wake:
		}
	}
}

func (s *Scheduler) arm(timer *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retries.Len() == 0 {
		timer.Stop()
		return
	}

	timer.Reset(max(time.Until(s.retries[0].at), 0))
}

func (s *Scheduler) fire(now time.Time) {
	var due []*model.Batch

	s.mu.Lock()
	for s.retries.Len() > 0 && !s.retries[0].at.After(now) {
		due = append(due, heap.Pop(&s.retries).(*retry).b)
	}
	s.mu.Unlock()

	for _, b := range due {
		s.l.Debug("retry due",
			"subscription", b.Subscription,
			"attempt", b.Attempt,
			"size", b.Len(),
		)
		s.submit(b)
	}
}

type retry struct {
	at  time.Time
	seq uint64
	b   *model.Batch
}

type retryQueue []*retry

func (q retryQueue) Len() int { return len(q) }

func (q retryQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q retryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *retryQueue) Push(x any) { *q = append(*q, x.(*retry)) }

func (q *retryQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
