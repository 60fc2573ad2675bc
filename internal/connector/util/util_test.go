package util_test

import (
	"testing"
	"time"

	"github.com/ValerySidorin/ackd/internal/connector/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertConfig(t *testing.T) {
	type conf struct {
		Brokers []string      `yaml:"brokers"`
		Topic   string        `yaml:"topic"`
		Linger  time.Duration `yaml:"linger"`
	}

	raw := map[string]any{
		"brokers": []any{"localhost:9092", "localhost:9093"},
		"topic":   "orders",
		"linger":  "5ms",
	}

	var c conf
	require.NoError(t, util.ConvertConfig(raw, &c))
	assert.Equal(t, conf{
		Brokers: []string{"localhost:9092", "localhost:9093"},
		Topic:   "orders",
		Linger:  5 * time.Millisecond,
	}, c)

	var empty conf
	require.NoError(t, util.ConvertConfig(nil, &empty))
	assert.Zero(t, empty)

	assert.Error(t, util.ConvertConfig(map[string]any{"brokers": "not-a-list"}, &c))
}

func TestSeqID(t *testing.T) {
	assert.Equal(t, "0", util.SeqID(0))
	assert.Equal(t, "18446744073709551615", util.SeqID(^uint64(0)))
}
