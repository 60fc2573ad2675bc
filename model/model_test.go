package model_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ValerySidorin/ackd/model"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		kind model.ErrorKind
	}{
		{"plain", cause, model.ErrorKindTransient},
		{"deadline", context.DeadlineExceeded, model.ErrorKindTransient},
		{"transient", model.Transient(cause), model.ErrorKindTransient},
		{"permanent", model.Permanent(cause), model.ErrorKindPermanent},
		{"expired", model.Expired(cause), model.ErrorKindExpired},
		{"wrapped permanent", fmt.Errorf("ack: %w", model.Permanent(cause)), model.ErrorKindPermanent},
		{"sentinel expired", model.ErrTokenExpired, model.ErrorKindExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, model.KindOf(tt.err))
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("subscription not found")

	err := model.Permanent(cause)
	assert.ErrorIs(t, err, model.ErrPermanentTransport)
	assert.ErrorIs(t, err, cause)

	assert.Same(t, err, model.Permanent(err))
	assert.Equal(t, model.ErrTokenExpired, model.Expired(nil))
}

func TestErrorKindErr(t *testing.T) {
	assert.ErrorIs(t, model.ErrorKindTransient.Err(), model.ErrTransientTransport)
	assert.ErrorIs(t, model.ErrorKindPermanent.Err(), model.ErrPermanentTransport)
	assert.ErrorIs(t, model.ErrorKindExpired.Err(), model.ErrTokenExpired)

	assert.True(t, model.ErrorKindTransient.Retryable())
	assert.False(t, model.ErrorKindPermanent.Retryable())
	assert.False(t, model.ErrorKindExpired.Retryable())
}

func TestResultHelpers(t *testing.T) {
	ids := []string{"a", "b"}

	res := model.SucceededAll(ids)
	ids[0] = "z"
	assert.Equal(t, []string{"a", "b"}, res.Succeeded)
	assert.Empty(t, res.Failed)

	res = model.FailedAll([]string{"a", "b"}, model.ErrorKindExpired)
	assert.Equal(t, map[string]model.ErrorKind{"a": model.ErrorKindExpired, "b": model.ErrorKindExpired}, res.Failed)

	var r model.Result
	r.Fail("c", model.ErrorKindPermanent)
	assert.Equal(t, model.ErrorKindPermanent, r.Failed["c"])
}

func TestBatchIDs(t *testing.T) {
	b := &model.Batch{AckIDs: []string{"a1", "a2"}, NackIDs: []string{"n1"}}
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []string{"a1", "a2", "n1"}, b.IDs())
}
