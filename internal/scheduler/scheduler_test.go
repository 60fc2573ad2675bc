package scheduler_test

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ValerySidorin/ackd/internal/batch"
	"github.com/ValerySidorin/ackd/internal/scheduler"
	"github.com/ValerySidorin/ackd/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	batches []*model.Batch
	mu      sync.Mutex
}

func (c *collector) submit(b *model.Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
}

func (c *collector) get() []*model.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*model.Batch(nil), c.batches...)
}

func TestTickSealsExpiredBatch(t *testing.T) {
	acc := batch.NewAccumulator(batch.Config{MaxSize: 1000, MaxDelay: 20 * time.Millisecond})
	c := &collector{}

	s := scheduler.New(5*time.Millisecond, acc, c.submit, slog.New(slog.DiscardHandler))
	s.Start()
	defer s.Stop()

	now := time.Now()
	acc.Add("id1", model.KindAck, "sub-A", now)
	acc.Add("id2", model.KindAck, "sub-A", now)
	acc.Add("id3", model.KindNack, "sub-A", now)

	require.Eventually(t, func() bool {
		return len(c.get()) == 1
	}, time.Second, time.Millisecond)

	b := c.get()[0]
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, model.SealDeadline, b.Reason)
	assert.GreaterOrEqual(t, time.Since(now), 20*time.Millisecond)
}

func TestRetryFiresWhenDue(t *testing.T) {
	acc := batch.NewAccumulator(batch.Config{MaxSize: 1000, MaxDelay: time.Hour})
	c := &collector{}

	s := scheduler.New(time.Hour, acc, c.submit, slog.New(slog.DiscardHandler))
	s.Start()
	defer s.Stop()

	start := time.Now()
	late := &model.Batch{Subscription: "sub-A", AckIDs: []string{"late"}, Attempt: 1}
	early := &model.Batch{Subscription: "sub-A", AckIDs: []string{"early"}, Attempt: 1}

	require.True(t, s.ScheduleRetry(late, start.Add(40*time.Millisecond)))
	require.True(t, s.ScheduleRetry(early, start.Add(10*time.Millisecond)))
	assert.Equal(t, 2, s.PendingRetries())

	require.Eventually(t, func() bool {
		return len(c.get()) == 2
	}, time.Second, time.Millisecond)

	got := c.get()
	assert.Same(t, early, got[0])
	assert.Same(t, late, got[1])
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 0, s.PendingRetries())
}

func TestStopReturnsPendingRetries(t *testing.T) {
	acc := batch.NewAccumulator(batch.Config{MaxSize: 1000, MaxDelay: time.Hour})
	c := &collector{}

	s := scheduler.New(time.Hour, acc, c.submit, slog.New(slog.DiscardHandler))
	s.Start()

	b1 := &model.Batch{Subscription: "sub-A", AckIDs: []string{"1"}}
	b2 := &model.Batch{Subscription: "sub-B", AckIDs: []string{"2"}}
	now := time.Now()
	require.True(t, s.ScheduleRetry(b2, now.Add(2*time.Hour)))
	require.True(t, s.ScheduleRetry(b1, now.Add(time.Hour)))

	pending := s.Stop()
	require.Len(t, pending, 2)
	assert.Same(t, b1, pending[0])
	assert.Same(t, b2, pending[1])
	assert.Empty(t, c.get())

	assert.False(t, s.ScheduleRetry(b1, now))
	assert.Nil(t, s.Stop())
}
