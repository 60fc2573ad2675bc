package ack_test

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValerySidorin/ackd/ack"
	"github.com/ValerySidorin/ackd/model"
	"github.com/stretchr/testify/require"
)

type nopTransport struct{}

func (nopTransport) Acknowledge(_ context.Context, _ string, ids []string) (model.Result, error) {
	return model.SucceededAll(ids), nil
}

func (nopTransport) ModifyAckDeadline(_ context.Context, _ string, ids []string, _ int) (model.Result, error) {
	return model.SucceededAll(ids), nil
}

func benchmarkAck(b *testing.B, subs int) {
	a, err := ack.New(ack.Config{
		MaxBatchSize:  1000,
		MaxBatchDelay: 5 * time.Millisecond,
	}, nopTransport{}, ack.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(b, err)

	names := make([]string, subs)
	for i := range names {
		names[i] = "sub-" + strconv.Itoa(i)
	}

	var n int
	for b.Loop() {
		a.Ack(names[n%subs], strconv.Itoa(n))
		n++
	}

	b.StopTimer()
	require.NoError(b, a.Shutdown(context.Background()))
	require.Equal(b, int64(n), a.Stats().Completed)
}

func BenchmarkAckSingleSubscription(b *testing.B) {
	benchmarkAck(b, 1)
}

func BenchmarkAckManySubscriptions(b *testing.B) {
	benchmarkAck(b, 16)
}

func BenchmarkAckParallel(b *testing.B) {
	a, err := ack.New(ack.Config{
		MaxBatchSize:  1000,
		MaxBatchDelay: 5 * time.Millisecond,
	}, nopTransport{}, ack.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(b, err)

	var seq atomic.Int64
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			a.Ack("sub", strconv.FormatInt(seq.Add(1), 10))
		}
	})

	b.StopTimer()
	require.NoError(b, a.Shutdown(context.Background()))
}
