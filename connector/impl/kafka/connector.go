package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/model"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

type Connector struct {
	conf    Config
	cl      *kgo.Client
	offsets *offsetTracker

	// cmu serializes commits so a lower offset computed earlier can not be
	// sent after a higher one.
	cmu sync.Mutex

	l *slog.Logger
}

func NewConnector(conf Config, l *slog.Logger) (*Connector, error) {
	offsets := newOffsetTracker()
	forget := func(_ context.Context, _ *kgo.Client, lost map[string][]int32) {
		offsets.revoke(lost[conf.Topic])
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(conf.Brokers...),
		kgo.ConsumeTopics(conf.Topic),
		kgo.ConsumerGroup(conf.Group),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsRevoked(forget),
		kgo.OnPartitionsLost(forget),
	}

	if conf.AllowAutoTopicCreation {
		opts = append(opts, kgo.AllowAutoTopicCreation())
	}

	if conf.FetchIsolationLevel == IsolationLevelReadCommited {
		opts = append(opts, kgo.FetchIsolationLevel(kgo.ReadCommitted()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: new client: %w", err)
	}

	return &Connector{
		conf:    conf,
		cl:      client,
		offsets: offsets,
		l:       l.With("topic", conf.Topic, "group", conf.Group),
	}, nil
}

func (c *Connector) Subscribe(ctx context.Context, h connector.Handler) error {
	if err := c.cl.Ping(ctx); err != nil {
		return fmt.Errorf("kafka: ping: %w", err)
	}

	for {
		fetches := c.cl.PollRecords(ctx, c.conf.MaxPollRecords)
		if ctx.Err() != nil {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			return fmt.Errorf("kafka: poll fetches: %v", fmt.Sprint(errs))
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			r := iter.Next()
			c.offsets.deliver(r.Partition, kgo.EpochOffset{Epoch: r.LeaderEpoch, Offset: r.Offset})
			h(toMessage(r), encodeAckID(r))
		}
	}
}

// Acknowledge records the acked offsets and commits, per partition, the
// offset after the longest run of acked records. An acked record behind an
// unacked one is reported as succeeded and committed once the gap closes.
// Ids of records this member no longer owns are reported as expired.
func (c *Connector) Acknowledge(ctx context.Context, ids []string) (model.Result, error) {
	var res model.Result

	byPartition := make(map[int32][]string)
	for _, id := range ids {
		p, eo, err := parseAckID(id)
		if err != nil {
			c.l.Warn("malformed ack id", "id", id, "err", err)
			res.Fail(id, model.ErrorKindPermanent)
			continue
		}

		switch c.offsets.ack(p, eo.Offset) {
		case ackCommitted:
			res.Succeeded = append(res.Succeeded, id)
		case ackUnknown:
			res.Fail(id, model.ErrorKindExpired)
		default:
			byPartition[p] = append(byPartition[p], id)
		}
	}
	if len(byPartition) == 0 {
		return res, nil
	}

	c.cmu.Lock()
	defer c.cmu.Unlock()

	partitionErrs := make(map[int32]error)
	offsets := c.offsets.committable(slices.Collect(maps.Keys(byPartition)))
	if len(offsets) > 0 {
		var rerr error
		c.cl.CommitOffsetsSync(ctx, map[string]map[int32]kgo.EpochOffset{c.conf.Topic: offsets},
			func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
				if err != nil {
					rerr = err
					return
				}

				for _, topic := range resp.Topics {
					for _, partition := range topic.Partitions {
						if err := kerr.ErrorForCode(partition.ErrorCode); err != nil {
							partitionErrs[partition.Partition] = err
						}
					}
				}
			},
		)

		if rerr != nil {
			c.l.Error("commit offsets", "err", rerr)
			for p := range offsets {
				partitionErrs[p] = rerr
			}
		}

		for p, eo := range offsets {
			if _, failed := partitionErrs[p]; !failed {
				c.offsets.commit(p, eo.Offset)
			}
		}
	}

	for p, pids := range byPartition {
		err, failed := partitionErrs[p]
		if !failed {
			res.Succeeded = append(res.Succeeded, pids...)
			continue
		}

		c.l.Error("commit offset", "partition", p, "err", err)
		for _, id := range pids {
			res.Fail(id, classify(err))
		}
	}

	return res, nil
}

// ModifyAckDeadline reports success without contacting the broker. Kafka has
// no per-record lease. A record that is never acked holds back the commit of
// its partition and is redelivered after a rebalance or restart.
func (c *Connector) ModifyAckDeadline(_ context.Context, ids []string, seconds int) (model.Result, error) {
	c.l.Debug("modify ack deadline is a no-op", "ids", len(ids), "seconds", seconds)
	return model.SucceededAll(ids), nil
}

func (c *Connector) Close() {
	c.cl.Close()
}

func classify(err error) model.ErrorKind {
	if errors.Is(err, kerr.UnknownMemberID) ||
		errors.Is(err, kerr.IllegalGeneration) ||
		errors.Is(err, kerr.FencedInstanceID) ||
		errors.Is(err, kerr.RebalanceInProgress) {
		return model.ErrorKindExpired
	}

	var ke *kerr.Error
	if errors.As(err, &ke) && !ke.Retriable {
		return model.ErrorKindPermanent
	}

	return model.ErrorKindTransient
}

func toMessage(r *kgo.Record) model.Message {
	var attrs map[string]string
	if len(r.Headers) > 0 || len(r.Key) > 0 {
		attrs = make(map[string]string, len(r.Headers)+1)
		for _, h := range r.Headers {
			attrs[h.Key] = string(h.Value)
		}
		if len(r.Key) > 0 {
			attrs["kafka.key"] = string(r.Key)
		}
	}

	return model.Message{
		ID:          fmt.Sprintf("%s/%d/%d", r.Topic, r.Partition, r.Offset),
		Data:        r.Value,
		Attributes:  attrs,
		PublishTime: r.Timestamp,
	}
}
