package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValerySidorin/ackd/ack"
	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/connector/impl/memory"
	"github.com/ValerySidorin/ackd/internal/config"
	"github.com/ValerySidorin/ackd/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAcker struct {
	acks []string
	mu   sync.Mutex
}

func (r *recordingAcker) Ack(_ string, ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, ids...)
}

func (r *recordingAcker) Nack(string, ...string) {}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ackd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ack:
  max_batch_delay: 20ms
connectors:
  subscriptions:
    demo:
      protocol: memory
      memory:
        queue: demo
`), 0o600))

	var conf config.Config
	require.NoError(t, loadConfig(path, &conf))
	assert.Equal(t, 20*time.Millisecond, conf.Ack.MaxBatchDelay)
	assert.Equal(t, "text", conf.Log.Type)

	err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), &conf)
	assert.ErrorContains(t, err, "failed to find config")
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ackd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ack:\n  workers: -1\n"), 0o600))

	var conf config.Config
	assert.ErrorContains(t, loadConfig(path, &conf), "validate config")
}

func TestHandlerDumpsAndAcks(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	r := &recordingAcker{}

	msg := ack.NewMessage(model.Message{ID: "m1", Data: []byte("hello")}, "a1", "demo", r)
	handler(true, l)(msg)

	assert.Equal(t, []string{"a1"}, r.acks)
	assert.Contains(t, buf.String(), "received message")
	assert.Contains(t, buf.String(), `\"ack_id\":\"a1\"`)
}

func TestRunWithMemoryBroker(t *testing.T) {
	var conf config.Config
	conf.Ack.MaxBatchDelay = 10 * time.Millisecond
	conf.Connectors.Subscriptions = map[string]connector.SubscriptionConfig{
		"demo": {Protocol: "memory", Memory: map[string]any{"queue": "cmd-run-demo", "seed": []any{"x", "y"}}},
	}
	conf.SetDefaults()
	require.NoError(t, conf.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, run(ctx, conf, slog.New(slog.DiscardHandler)))

	ready, inflight := memory.Default.Queue("cmd-run-demo").Len()
	assert.Zero(t, ready)
	assert.Zero(t, inflight)
}
