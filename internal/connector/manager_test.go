package connector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValerySidorin/ackd/ack"
	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/connector/impl/memory"
	"github.com/ValerySidorin/ackd/connector/protocol"
	"github.com/ValerySidorin/ackd/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConf(queue string, seed ...string) connector.SubscriptionConfig {
	s := make([]any, 0, len(seed))
	for _, v := range seed {
		s = append(s, v)
	}
	return connector.SubscriptionConfig{
		Protocol: protocol.Memory,
		Memory:   map[string]any{"queue": queue, "seed": s},
	}
}

func newAcknowledger(t *testing.T, tr ack.Transport) *ack.Acknowledger {
	t.Helper()

	a, err := ack.New(ack.Config{
		MaxBatchSize:    100,
		MaxBatchDelay:   10 * time.Millisecond,
		RetryBaseDelay:  10 * time.Millisecond,
		RetryBackoffCap: 50 * time.Millisecond,
	}, tr, ack.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Shutdown(context.Background())
	})

	return a
}

func TestManagerRunAcksEndToEnd(t *testing.T) {
	m := NewManager(connector.Config{
		Subscriptions: map[string]connector.SubscriptionConfig{
			"orders":   memoryConf("manager-e2e-orders", "o1", "o2", "o3"),
			"payments": memoryConf("manager-e2e-payments", "p1", "p2"),
		},
	}, slog.New(slog.DiscardHandler))
	defer m.Close()

	a := newAcknowledger(t, m)

	var (
		seen = make(map[string][]string)
		mu   sync.Mutex
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(ctx, a, func(msg *ack.Message) {
			mu.Lock()
			seen[msg.Subscription()] = append(seen[msg.Subscription()], string(msg.Message().Data))
			mu.Unlock()
			msg.Ack()
		})
	}()

	require.Eventually(t, func() bool {
		return a.Stats().Completed == 5
	}, 2*time.Second, 5*time.Millisecond)

	for _, q := range []string{"manager-e2e-orders", "manager-e2e-payments"} {
		ready, inflight := memory.Default.Queue(q).Len()
		assert.Zero(t, ready, q)
		assert.Zero(t, inflight, q)
	}

	cancel()
	require.NoError(t, <-errCh)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"o1", "o2", "o3"}, seen["orders"])
	assert.Equal(t, []string{"p1", "p2"}, seen["payments"])
}

func TestManagerNackRedelivers(t *testing.T) {
	m := NewManager(connector.Config{
		Subscriptions: map[string]connector.SubscriptionConfig{
			"jobs": memoryConf("manager-nack-jobs", "j1"),
		},
	}, slog.New(slog.DiscardHandler))
	defer m.Close()

	a := newAcknowledger(t, m)

	var (
		deliveries int
		mu         sync.Mutex
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = m.Run(ctx, a, func(msg *ack.Message) {
			mu.Lock()
			deliveries++
			first := deliveries == 1
			mu.Unlock()

			if first {
				msg.Nack()
				return
			}
			msg.Ack()
		})
	}()

	require.Eventually(t, func() bool {
		return a.Stats().Completed == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 2, deliveries)
	mu.Unlock()

	ready, inflight := memory.Default.Queue("manager-nack-jobs").Len()
	assert.Zero(t, ready)
	assert.Zero(t, inflight)
}

func TestManagerRouting(t *testing.T) {
	m := NewManager(connector.Config{
		Subscriptions: map[string]connector.SubscriptionConfig{
			"known":  memoryConf("manager-routing"),
			"broken": {Protocol: protocol.Memory, Memory: map[string]any{}},
		},
	}, slog.New(slog.DiscardHandler))
	defer m.Close()

	_, err := m.Acknowledge(context.Background(), "unknown", []string{"x"})
	assert.ErrorIs(t, err, ErrConnectorNotFound)
	assert.Equal(t, model.ErrorKindPermanent, model.KindOf(err))

	_, err = m.ModifyAckDeadline(context.Background(), "broken", []string{"x"}, 0)
	require.Error(t, err)
	assert.Equal(t, model.ErrorKindTransient, model.KindOf(err))

	res, err := m.Acknowledge(context.Background(), "known", []string{"manager-routing-404"})
	require.NoError(t, err)
	assert.Equal(t, model.ErrorKindExpired, res.Failed["manager-routing-404"])

	c1, err := m.Get("known")
	require.NoError(t, err)
	c2, err := m.Get("known")
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}

func TestManagerRunFailsOnBadSubscription(t *testing.T) {
	m := NewManager(connector.Config{
		Subscriptions: map[string]connector.SubscriptionConfig{
			"broken": {Protocol: protocol.Memory, Memory: map[string]any{}},
		},
	}, slog.New(slog.DiscardHandler))
	defer m.Close()

	err := m.Run(context.Background(), nil, func(*ack.Message) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscription broken")
}

func TestManagerRunStartsNothingWhenAnySubscriptionIsBroken(t *testing.T) {
	m := NewManager(connector.Config{
		Subscriptions: map[string]connector.SubscriptionConfig{
			"a-good":   memoryConf("manager-partial-good", "g1"),
			"z-broken": {Protocol: protocol.Memory, Memory: map[string]any{}},
		},
	}, slog.New(slog.DiscardHandler))
	defer m.Close()

	var handled atomic.Int32
	err := m.Run(context.Background(), nil, func(*ack.Message) {
		handled.Add(1)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscription z-broken")

	assert.Never(t, func() bool {
		ready, inflight := memory.Default.Queue("manager-partial-good").Len()
		return handled.Load() > 0 || ready != 1 || inflight != 0
	}, 100*time.Millisecond, 5*time.Millisecond)
}
