package streams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/model"
	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
)

// nackIdle is the idle time set on nacked entries so that the next
// reclaim pass picks them up.
const nackIdle = 365 * 24 * time.Hour

// Connector reads a stream through a consumer group. Ack ids are stream
// entry ids.
type Connector struct {
	conf    Config
	client  rueidis.Client
	marshal func(fv map[string]string) ([]byte, error)

	l *slog.Logger
}

func NewConnector(conf Config, l *slog.Logger) (*Connector, error) {
	conf.SetDefaults()

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  conf.InitAddress,
		Username:     conf.Username,
		Password:     conf.Password,
		DisableCache: conf.DisableCache,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: new client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().XgroupCreate().Key(conf.Stream).Group(conf.Group.Name).Id(conf.Group.CreateID).Mkstream().Build()).Error(); err != nil {
		if !rueidis.IsRedisBusyGroup(err) {
			client.Close()
			return nil, fmt.Errorf("redis: xgroup create: %w", err)
		}
	}

	return &Connector{
		conf:    conf,
		client:  client,
		marshal: marshalFunc(conf.ParseMsgProtocol),
		l:       l.With("stream", conf.Stream, "group", conf.Group.Name),
	}, nil
}

func (c *Connector) Subscribe(ctx context.Context, h connector.Handler) error {
	var lastClaim time.Time

	for {
		if ctx.Err() != nil {
			return nil
		}

		if c.conf.ClaimMinIdle > 0 && time.Since(lastClaim) >= c.conf.ClaimMinIdle/2 {
			if err := c.claim(ctx, h); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			lastClaim = time.Now()
		}

		resp, err := c.client.Do(ctx, c.readCmd()).AsXRead()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("redis: xreadgroup: %w", err)
		}

		for _, entries := range resp {
			for _, e := range entries {
				c.deliver(e, h)
			}
		}
	}
}

func (c *Connector) claim(ctx context.Context, h connector.Handler) error {
	start := "0-0"
	for {
		arr, err := c.client.Do(ctx, c.client.B().
			Xautoclaim().Key(c.conf.Stream).Group(c.conf.Group.Name).Consumer(c.conf.Group.Consumer).
			MinIdleTime(strconv.FormatInt(c.conf.ClaimMinIdle.Milliseconds(), 10)).
			Start(start).Count(c.conf.Count).
			Build(),
		).ToArray()
		if err != nil {
			return fmt.Errorf("redis: xautoclaim: %w", err)
		}
		if len(arr) < 2 {
			return nil
		}

		next, err := arr[0].ToString()
		if err != nil {
			return fmt.Errorf("redis: xautoclaim cursor: %w", err)
		}
		entries, err := arr[1].AsXRange()
		if err != nil {
			return fmt.Errorf("redis: xautoclaim entries: %w", err)
		}

		if len(entries) > 0 {
			c.l.Debug("reclaimed pending entries", "count", len(entries))
		}
		for _, e := range entries {
			c.deliver(e, h)
		}

		if next == "0-0" {
			return nil
		}
		start = next
	}
}

func (c *Connector) deliver(e rueidis.XRangeEntry, h connector.Handler) {
	if e.FieldValues == nil {
		// Entry was deleted while pending.
		return
	}

	data, err := c.marshal(e.FieldValues)
	if err != nil {
		c.l.Error("redis: failed to marshal message", "id", e.ID, "err", err)
		return
	}

	h(model.Message{
		ID:          e.ID,
		Data:        data,
		PublishTime: entryTime(e.ID),
	}, e.ID)
}

// Acknowledge acks all ids with one XACK. Ids that were no longer pending
// count as acknowledged.
func (c *Connector) Acknowledge(ctx context.Context, ids []string) (model.Result, error) {
	n, err := c.client.Do(ctx, c.client.B().
		Xack().Key(c.conf.Stream).Group(c.conf.Group.Name).Id(ids...).
		Build(),
	).AsInt64()
	if err != nil {
		return model.Result{}, wrap("xack", err)
	}

	if int(n) != len(ids) {
		c.l.Debug("some entries were not pending", "acked", n, "ids", len(ids))
	}

	return model.SucceededAll(ids), nil
}

// ModifyAckDeadline resets the idle time of the entries. With seconds == 0
// the entries are marked long idle so the reclaim pass redelivers them.
func (c *Connector) ModifyAckDeadline(ctx context.Context, ids []string, seconds int) (model.Result, error) {
	var idle time.Duration
	if seconds == 0 {
		idle = nackIdle
	}

	claimed, err := c.client.Do(ctx, c.client.B().
		Xclaim().Key(c.conf.Stream).Group(c.conf.Group.Name).Consumer(c.conf.Group.Consumer).
		MinIdleTime("0").Id(ids...).Idle(idle.Milliseconds()).Justid().
		Build(),
	).AsStrSlice()
	if err != nil {
		return model.Result{}, wrap("xclaim", err)
	}

	pending := make(map[string]struct{}, len(claimed))
	for _, id := range claimed {
		pending[id] = struct{}{}
	}

	var res model.Result
	for _, id := range ids {
		if _, ok := pending[id]; ok {
			res.Succeeded = append(res.Succeeded, id)
		} else {
			res.Fail(id, model.ErrorKindExpired)
		}
	}

	return res, nil
}

func (c *Connector) Close() {
	c.client.Close()
}

func (c *Connector) readCmd() rueidis.Completed {
	return c.client.B().
		Xreadgroup().Group(c.conf.Group.Name, c.conf.Group.Consumer).
		Count(c.conf.Count).Block(c.conf.Block.Milliseconds()).
		Streams().Key(c.conf.Stream).Id(">").
		Build()
}

// wrap treats error replies from redis (NOGROUP, WRONGTYPE and the like) as
// permanent and everything else as transient.
func wrap(cmd string, err error) error {
	if _, ok := rueidis.IsRedisErr(err); ok {
		return model.Permanent(fmt.Errorf("redis: %s: %w", cmd, err))
	}
	return model.Transient(fmt.Errorf("redis: %s: %w", cmd, err))
}

func entryTime(id string) time.Time {
	ms, _, ok := strings.Cut(id, "-")
	if !ok {
		return time.Time{}
	}
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func marshalFunc(proto ParseMsgProtocol) func(fv map[string]string) ([]byte, error) {
	switch proto {
	case ParseMsgProtocolRaw:
		return func(fv map[string]string) ([]byte, error) {
			val, ok := fv["msg"]
			if !ok {
				return nil, errors.New("msg not found in map")
			}
			return []byte(val), nil
		}
	default:
		return func(fv map[string]string) ([]byte, error) {
			return sonic.Marshal(fv)
		}
	}
}
