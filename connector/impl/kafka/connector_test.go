package kafka

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ValerySidorin/ackd/connector/cerr"
	"github.com/ValerySidorin/ackd/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestAckIDRoundTrip(t *testing.T) {
	r := &kgo.Record{Partition: 3, LeaderEpoch: 7, Offset: 12345}

	id := encodeAckID(r)
	assert.Equal(t, "3:7:12345", id)

	p, eo, err := parseAckID(id)
	require.NoError(t, err)
	assert.Equal(t, int32(3), p)
	assert.Equal(t, kgo.EpochOffset{Epoch: 7, Offset: 12345}, eo)
}

func TestParseAckIDRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "1:2", "a:1:2", "1:b:2", "1:2:c", "-1:0:5", "1:2:3:4"} {
		_, _, err := parseAckID(id)
		assert.Error(t, err, id)
	}
}

func deliverRange(t *offsetTracker, partition int32, from, to int64) {
	for o := from; o <= to; o++ {
		t.deliver(partition, kgo.EpochOffset{Epoch: 1, Offset: o})
	}
}

func TestCommitStopsBeforeUnackedOffset(t *testing.T) {
	tr := newOffsetTracker()
	deliverRange(tr, 0, 2, 9)

	assert.Equal(t, ackRecorded, tr.ack(0, 2))
	assert.Equal(t, ackRecorded, tr.ack(0, 9))
	assert.Equal(t, map[int32]kgo.EpochOffset{0: {Epoch: 1, Offset: 3}}, tr.committable([]int32{0}))
	tr.commit(0, 3)

	for o := int64(3); o <= 7; o++ {
		tr.ack(0, o)
	}
	assert.Equal(t, map[int32]kgo.EpochOffset{0: {Epoch: 1, Offset: 8}}, tr.committable([]int32{0}))

	tr.ack(0, 8)
	assert.Equal(t, map[int32]kgo.EpochOffset{0: {Epoch: 1, Offset: 10}}, tr.committable([]int32{0}))
}

func TestCommitNeverMovesBackwards(t *testing.T) {
	tr := newOffsetTracker()
	deliverRange(tr, 0, 0, 10)

	for o := int64(0); o <= 10; o++ {
		tr.ack(0, o)
	}
	offsets := tr.committable([]int32{0})
	require.Equal(t, int64(11), offsets[0].Offset)
	tr.commit(0, 11)

	assert.Equal(t, ackCommitted, tr.ack(0, 5))
	assert.Empty(t, tr.committable([]int32{0}))

	tr.commit(0, 6)
	assert.Equal(t, int64(11), tr.committedOffset(0))

	tr.deliver(0, kgo.EpochOffset{Epoch: 1, Offset: 4})
	assert.Empty(t, tr.committable([]int32{0}))
}

func TestCommitSkipsCompactedOffsets(t *testing.T) {
	tr := newOffsetTracker()
	for _, o := range []int64{0, 2, 5} {
		tr.deliver(1, kgo.EpochOffset{Epoch: 3, Offset: o})
	}
	for _, o := range []int64{5, 0, 2} {
		tr.ack(1, o)
	}

	assert.Equal(t, map[int32]kgo.EpochOffset{1: {Epoch: 3, Offset: 6}}, tr.committable([]int32{1}))
}

func TestRevokedPartitionIsForgotten(t *testing.T) {
	tr := newOffsetTracker()
	deliverRange(tr, 0, 0, 3)
	deliverRange(tr, 1, 0, 3)

	tr.revoke([]int32{0})

	assert.Equal(t, ackUnknown, tr.ack(0, 1))
	assert.Equal(t, ackRecorded, tr.ack(1, 0))
	assert.Equal(t, ackUnknown, tr.ack(1, 42))
}

func TestAcknowledgeWithoutCommit(t *testing.T) {
	c := &Connector{
		conf:    Config{Topic: "orders"},
		offsets: newOffsetTracker(),
		l:       slog.New(slog.DiscardHandler),
	}
	deliverRange(c.offsets, 0, 0, 4)
	c.offsets.commit(0, 3)

	res, err := c.Acknowledge(t.Context(), []string{"0:1:1", "junk", "7:1:2"})
	require.NoError(t, err)

	assert.Equal(t, []string{"0:1:1"}, res.Succeeded)
	assert.Equal(t, model.ErrorKindPermanent, res.Failed["junk"])
	assert.Equal(t, model.ErrorKindExpired, res.Failed["7:1:2"])
}

func TestClassify(t *testing.T) {
	assert.Equal(t, model.ErrorKindExpired, classify(kerr.IllegalGeneration))
	assert.Equal(t, model.ErrorKindExpired, classify(kerr.UnknownMemberID))
	assert.Equal(t, model.ErrorKindTransient, classify(kerr.RequestTimedOut))
	assert.Equal(t, model.ErrorKindPermanent, classify(kerr.TopicAuthorizationFailed))
	assert.Equal(t, model.ErrorKindTransient, classify(errors.New("connection reset")))
}

func TestToMessage(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	m := toMessage(&kgo.Record{
		Topic:     "orders",
		Partition: 2,
		Offset:    9,
		Key:       []byte("k1"),
		Value:     []byte("payload"),
		Headers:   []kgo.RecordHeader{{Key: "trace", Value: []byte("abc")}},
		Timestamp: ts,
	})

	assert.Equal(t, "orders/2/9", m.ID)
	assert.Equal(t, []byte("payload"), m.Data)
	assert.Equal(t, map[string]string{"trace": "abc", "kafka.key": "k1"}, m.Attributes)
	assert.Equal(t, ts, m.PublishTime)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Brokers: []string{"localhost:9092"}, Topic: "orders", Group: "ackd"}
	require.NoError(t, valid.Validate())

	tests := map[string]func(c *Config){
		"no brokers":    func(c *Config) { c.Brokers = nil },
		"no topic":      func(c *Config) { c.Topic = "" },
		"no group":      func(c *Config) { c.Group = "" },
		"negative poll": func(c *Config) { c.MaxPollRecords = -1 },
		"bad isolation": func(c *Config) { c.FetchIsolationLevel = "serializable" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), cerr.ErrValidation)
		})
	}
}
