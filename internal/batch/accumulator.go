package batch

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ValerySidorin/ackd/model"
)

type Config struct {
	MaxSize  int
	MaxDelay time.Duration
}

type open struct {
	acks      map[string]struct{}
	nacks     map[string]struct{}
	createdAt time.Time
	deadline  time.Time
}

func (o *open) len() int {
	return len(o.acks) + len(o.nacks)
}

type slot struct {
	sub string
	cur *open
	// dead is set when the slot is dropped from the accumulator. An Add that
	// raced with the drop retries on a fresh slot.
	dead bool
	mu   sync.Mutex
}

// Accumulator buffers ids per subscription until a batch is sealed by size or
// by deadline.
type Accumulator struct {
	conf Config

	slots map[string]*slot
	mu    sync.RWMutex
}

func NewAccumulator(conf Config) *Accumulator {
	return &Accumulator{
		conf:  conf,
		slots: make(map[string]*slot),
	}
}

// Add puts id into the open batch of subscription. When the add fills the
// batch, the sealed batch is returned and the next add starts a fresh one.
func (a *Accumulator) Add(id string, kind model.Kind, subscription string, now time.Time) *model.Batch {
	s := a.slot(subscription)

	s.mu.Lock()
	for s.dead {
		s.mu.Unlock()
		s = a.slot(subscription)
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	if s.cur == nil {
		s.cur = &open{
			acks:      make(map[string]struct{}),
			nacks:     make(map[string]struct{}),
			createdAt: now,
			deadline:  now.Add(a.conf.MaxDelay),
		}
	}

	switch kind {
	case model.KindNack:
		delete(s.cur.acks, id)
		s.cur.nacks[id] = struct{}{}
	default:
		delete(s.cur.nacks, id)
		s.cur.acks[id] = struct{}{}
	}

	if s.cur.len() >= a.conf.MaxSize {
		return s.seal(model.SealSize)
	}

	return nil
}

// SealIfExpired seals the open batch of subscription if its deadline has
// passed.
func (a *Accumulator) SealIfExpired(subscription string, now time.Time) *model.Batch {
	a.mu.RLock()
	s, ok := a.slots[subscription]
	a.mu.RUnlock()
	if !ok {
		return nil
	}

	return s.sealIfExpired(now)
}

// SealExpired seals every open batch whose deadline has passed.
func (a *Accumulator) SealExpired(now time.Time) []*model.Batch {
	var batches []*model.Batch
	for _, s := range a.snapshot() {
		if b := s.sealIfExpired(now); b != nil {
			batches = append(batches, b)
		}
	}
	a.prune()
	return batches
}

// ForceSealAll seals every non-empty open batch regardless of deadlines.
func (a *Accumulator) ForceSealAll() []*model.Batch {
	var batches []*model.Batch
	for _, s := range a.snapshot() {
		s.mu.Lock()
		if s.cur != nil && s.cur.len() > 0 {
			batches = append(batches, s.seal(model.SealShutdown))
		}
		s.mu.Unlock()
	}
	a.prune()
	return batches
}

// Open returns the subscriptions that currently have an open batch.
func (a *Accumulator) Open() []string {
	var subs []string
	for _, s := range a.snapshot() {
		s.mu.Lock()
		if s.cur != nil {
			subs = append(subs, s.sub)
		}
		s.mu.Unlock()
	}
	slices.Sort(subs)
	return subs
}

func (a *Accumulator) slot(subscription string) *slot {
	a.mu.RLock()
	s, ok := a.slots[subscription]
	a.mu.RUnlock()
	if ok {
		return s
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok = a.slots[subscription]
	if ok {
		return s
	}

	s = &slot{sub: subscription}
	a.slots[subscription] = s
	return s
}

// prune drops slots without an open batch.
func (a *Accumulator) prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for sub, s := range a.slots {
		s.mu.Lock()
		if s.cur == nil {
			s.dead = true
			delete(a.slots, sub)
		}
		s.mu.Unlock()
	}
}

func (a *Accumulator) snapshot() []*slot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	slots := make([]*slot, 0, len(a.slots))
	for _, s := range a.slots {
		slots = append(slots, s)
	}
	return slots
}

func (s *slot) sealIfExpired(now time.Time) *model.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil || now.Before(s.cur.deadline) {
		return nil
	}

	return s.seal(model.SealDeadline)
}

// seal must be called with s.mu held.
func (s *slot) seal(reason model.SealReason) *model.Batch {
	b := &model.Batch{
		Subscription: s.sub,
		AckIDs:       keys(s.cur.acks),
		NackIDs:      keys(s.cur.nacks),
		CreatedAt:    s.cur.createdAt,
		Deadline:     s.cur.deadline,
		Reason:       reason,
	}
	s.cur = nil
	return b
}

func keys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(m))
}
