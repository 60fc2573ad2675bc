package store_test

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ValerySidorin/ackd/internal/store"
	"github.com/ValerySidorin/ackd/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func token(id, sub string) model.Token {
	return model.Token{
		ID:           id,
		Subscription: sub,
		Kind:         model.KindAck,
		EnqueuedAt:   time.Now(),
	}
}

func TestRegister(t *testing.T) {
	s := store.New()

	require.NoError(t, s.Register(token("id1", "sub-A")))
	assert.ErrorIs(t, s.Register(token("id1", "sub-A")), model.ErrDuplicateToken)

	// the same id in another subscription is a different token
	require.NoError(t, s.Register(token("id1", "sub-B")))
	assert.Equal(t, 2, s.Len())
}

func TestResolveTwice(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Register(token("id1", "sub-A")))

	tok, err := s.Resolve("id1", "sub-A")
	require.NoError(t, err)
	assert.Equal(t, "id1", tok.ID)
	assert.Equal(t, "sub-A", tok.Subscription)

	_, err = s.Resolve("id1", "sub-A")
	assert.ErrorIs(t, err, model.ErrUnknownToken)

	_, err = s.Resolve("id1", "sub-unknown")
	assert.ErrorIs(t, err, model.ErrUnknownToken)

	assert.Equal(t, 0, s.Len())
}

func TestIncAttempt(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Register(token("id1", "sub-A")))

	n, err := s.IncAttempt("id1", "sub-A")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.IncAttempt("id1", "sub-A")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tok, ok := s.Get("id1", "sub-A")
	require.True(t, ok)
	assert.Equal(t, 2, tok.Attempt)

	_, err = s.IncAttempt("missing", "sub-A")
	assert.ErrorIs(t, err, model.ErrUnknownToken)
}

func TestSnapshotRestartable(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Register(token("id1", "sub-A")))
	require.NoError(t, s.Register(token("id2", "sub-B")))

	snap := s.Snapshot()

	ids := func() []string {
		var out []string
		for tok := range snap {
			out = append(out, tok.Subscription+"/"+tok.ID)
		}
		slices.Sort(out)
		return out
	}

	assert.Equal(t, []string{"sub-A/id1", "sub-B/id2"}, ids())

	_, err := s.Resolve("id1", "sub-A")
	require.NoError(t, err)

	// the same sequence reflects the current state on the next range
	assert.Equal(t, []string{"sub-B/id2"}, ids())

	var n int
	for range snap {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestSnapshotIsCopy(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Register(token("id1", "sub-A")))

	tokens := slices.Collect(s.Snapshot())
	require.Len(t, tokens, 1)
	tokens[0].Attempt = 42

	tok, ok := s.Get("id1", "sub-A")
	require.True(t, ok)
	assert.Equal(t, 0, tok.Attempt)
}

func TestConcurrentRegisterResolve(t *testing.T) {
	s := store.New()
	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	for g := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := fmt.Sprintf("sub-%d", g%5)
			for i := range perGoroutine {
				id := fmt.Sprintf("%d-%d", g, i)
				assert.NoError(t, s.Register(token(id, sub)))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, goroutines*perGoroutine, s.Len())

	var resolved sync.Map
	for g := range goroutines {
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sub := fmt.Sprintf("sub-%d", g%5)
				for i := range perGoroutine {
					id := fmt.Sprintf("%d-%d", g, i)
					if _, err := s.Resolve(id, sub); err == nil {
						_, loaded := resolved.LoadOrStore(id, struct{}{})
						assert.False(t, loaded, "token %s resolved twice", id)
					} else {
						assert.ErrorIs(t, err, model.ErrUnknownToken)
					}
				}
			}()
		}
	}
	wg.Wait()

	assert.Equal(t, 0, s.Len())
}
