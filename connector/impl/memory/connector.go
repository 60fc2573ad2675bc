package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/model"
)

type Connector struct {
	conf Config
	q    *Queue

	l *slog.Logger
}

func NewConnector(conf Config, b *Broker, l *slog.Logger) (*Connector, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	q := b.Queue(conf.Queue)
	for _, s := range conf.Seed {
		q.Publish([]byte(s), nil)
	}

	return &Connector{
		conf: conf,
		q:    q,
		l:    l.With("queue", conf.Queue),
	}, nil
}

func (c *Connector) Subscribe(ctx context.Context, h connector.Handler) error {
	var tick <-chan time.Time
	if c.conf.AckDeadline > 0 {
		ticker := time.NewTicker(max(c.conf.AckDeadline/4, time.Millisecond))
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		for {
			msg, ackID, ok := c.q.pop(time.Now(), c.conf.AckDeadline)
			if !ok {
				break
			}
			h(msg, ackID)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.q.notify:
		case now := <-tick:
			if n := c.q.expire(now); n > 0 {
				c.l.Debug("ack deadline expired, redelivering", "count", n)
			}
		}
	}
}

func (c *Connector) Acknowledge(_ context.Context, ids []string) (model.Result, error) {
	var res model.Result
	for _, id := range ids {
		if c.q.ack(id) {
			res.Succeeded = append(res.Succeeded, id)
		} else {
			res.Fail(id, model.ErrorKindExpired)
		}
	}

	return res, nil
}

func (c *Connector) ModifyAckDeadline(_ context.Context, ids []string, seconds int) (model.Result, error) {
	var res model.Result
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)

	for _, id := range ids {
		var ok bool
		if seconds == 0 {
			ok = c.q.requeue(id)
		} else {
			ok = c.q.extend(id, deadline)
		}

		if ok {
			res.Succeeded = append(res.Succeeded, id)
		} else {
			res.Fail(id, model.ErrorKindExpired)
		}
	}

	return res, nil
}

func (c *Connector) Close() {}
