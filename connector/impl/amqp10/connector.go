package amqp10

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Azure/go-amqp"
	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/internal/connector/inflight"
	"github.com/ValerySidorin/ackd/model"
)

// Connector receives from an AMQP 1.0 source. Messages must be settled
// through the *amqp.Message they were received as, so unsettled messages
// are kept in a registry keyed by the ack id.
type Connector struct {
	conf Config

	conn     *amqp.Conn
	session  *amqp.Session
	receiver *amqp.Receiver

	unsettled *inflight.Registry[*amqp.Message]

	l *slog.Logger
}

func NewConnector(conf Config, l *slog.Logger) (*Connector, error) {
	conn, err := amqp.Dial(context.Background(), conf.Conn.Addr, &amqp.ConnOptions{
		ContainerID:  conf.Conn.ContainerID,
		HostName:     conf.Conn.HostName,
		IdleTimeout:  conf.Conn.IdleTimeout,
		MaxFrameSize: conf.Conn.MaxFrameSize,
	})
	if err != nil {
		return nil, fmt.Errorf("amqp10: dial: %w", err)
	}

	session, err := conn.NewSession(context.Background(), nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp10: new session: %w", err)
	}

	receiver, err := session.NewReceiver(context.Background(), conf.Receiver.Source, &amqp.ReceiverOptions{
		Credit: conf.Receiver.Credit,
		Name:   conf.Receiver.Name,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp10: new receiver: %w", err)
	}

	return &Connector{
		conf:      conf,
		conn:      conn,
		session:   session,
		receiver:  receiver,
		unsettled: inflight.New[*amqp.Message]("amqp10-"),
		l:         l.With("source", conf.Receiver.Source),
	}, nil
}

func (c *Connector) Subscribe(ctx context.Context, h connector.Handler) error {
	for {
		msg, err := c.receiver.Receive(ctx, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("amqp10: receive: %w", err)
		}

		h(toMessage(msg), c.unsettled.Put(msg))
	}
}

func (c *Connector) Acknowledge(ctx context.Context, ids []string) (model.Result, error) {
	return c.settle(ctx, ids, c.receiver.AcceptMessage)
}

// ModifyAckDeadline releases the messages for redelivery when seconds is 0.
// AMQP 1.0 deliveries have no lease, so extending is a no-op.
func (c *Connector) ModifyAckDeadline(ctx context.Context, ids []string, seconds int) (model.Result, error) {
	if seconds > 0 {
		return c.touch(ids), nil
	}
	return c.settle(ctx, ids, c.receiver.ReleaseMessage)
}

func (c *Connector) settle(ctx context.Context, ids []string, f func(ctx context.Context, msg *amqp.Message) error) (model.Result, error) {
	var res model.Result

	for _, id := range ids {
		msg, ok := c.unsettled.Take(id)
		if !ok {
			res.Fail(id, model.ErrorKindExpired)
			continue
		}

		if err := f(ctx, msg); err != nil {
			kind := classify(err)
			c.l.Error("settle message", "id", id, "kind", kind.String(), "err", err)
			if kind == model.ErrorKindTransient {
				c.unsettled.Restore(id, msg)
			}
			res.Fail(id, kind)
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}

	return res, nil
}

func (c *Connector) touch(ids []string) model.Result {
	var res model.Result
	for _, id := range ids {
		if _, ok := c.unsettled.Get(id); ok {
			res.Succeeded = append(res.Succeeded, id)
		} else {
			res.Fail(id, model.ErrorKindExpired)
		}
	}
	return res
}

func (c *Connector) Close() {
	if n := c.unsettled.Clear(); n > 0 {
		c.l.Warn("closing with unsettled messages", "count", n)
	}
	if err := c.receiver.Close(context.Background()); err != nil {
		c.l.Error("amqp10: close receiver", "err", err)
	}
	if err := c.session.Close(context.Background()); err != nil {
		c.l.Error("amqp10: close session", "err", err)
	}
	_ = c.conn.Close()
}

// classify treats a detached link, ended session or closed connection as an
// expired token: the broker redelivers what was not settled.
func classify(err error) model.ErrorKind {
	var (
		linkErr    *amqp.LinkError
		sessionErr *amqp.SessionError
		connErr    *amqp.ConnError
	)
	switch {
	case errors.As(err, &linkErr), errors.As(err, &sessionErr), errors.As(err, &connErr):
		return model.ErrorKindExpired
	}
	return model.ErrorKindTransient
}

func toMessage(msg *amqp.Message) model.Message {
	m := model.Message{Data: msg.GetData()}

	if len(msg.ApplicationProperties) > 0 {
		m.Attributes = make(map[string]string, len(msg.ApplicationProperties))
		for k, v := range msg.ApplicationProperties {
			m.Attributes[k] = fmt.Sprint(v)
		}
	}

	if p := msg.Properties; p != nil {
		if p.MessageID != nil {
			m.ID = fmt.Sprint(p.MessageID)
		}
		if p.CreationTime != nil {
			m.PublishTime = *p.CreationTime
		}
	}

	return m
}
