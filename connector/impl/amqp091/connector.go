package amqp091

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/model"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Connector consumes a queue with manual acknowledgements. Ack ids are
// delivery tags of the connector's channel.
type Connector struct {
	conf Config

	conn *amqp.Connection
	ch   *amqp.Channel

	l *slog.Logger
}

func NewConnector(conf Config, l *slog.Logger) (*Connector, error) {
	conn, err := amqp.Dial(conf.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp091: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp091: open channel: %w", err)
	}

	if conf.Prefetch > 0 {
		if err := ch.Qos(conf.Prefetch, 0, false); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("amqp091: qos: %w", err)
		}
	}

	return &Connector{
		conf: conf,
		conn: conn,
		ch:   ch,
		l:    l.With("queue", conf.Queue),
	}, nil
}

func (c *Connector) Subscribe(ctx context.Context, h connector.Handler) error {
	deliveries, err := c.ch.Consume(c.conf.Queue, c.conf.ConsumerTag, false, c.conf.Exclusive, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp091: consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp091: deliveries channel closed")
			}
			h(toMessage(d), strconv.FormatUint(d.DeliveryTag, 10))
		}
	}
}

func (c *Connector) Acknowledge(_ context.Context, ids []string) (model.Result, error) {
	return c.settle(ids, func(tag uint64) error {
		return c.ch.Ack(tag, false)
	})
}

// ModifyAckDeadline requeues the deliveries when seconds is 0. AMQP 0-9-1 has
// no delivery lease, so extending is a no-op: an unacked delivery stays with
// the consumer until its channel closes.
func (c *Connector) ModifyAckDeadline(_ context.Context, ids []string, seconds int) (model.Result, error) {
	if seconds > 0 {
		c.l.Debug("modify ack deadline is a no-op", "ids", len(ids), "seconds", seconds)
		return model.SucceededAll(ids), nil
	}

	return c.settle(ids, func(tag uint64) error {
		return c.ch.Nack(tag, false, true)
	})
}

func (c *Connector) settle(ids []string, f func(tag uint64) error) (model.Result, error) {
	var res model.Result

	for _, id := range ids {
		tag, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			c.l.Warn("malformed delivery tag", "id", id)
			res.Fail(id, model.ErrorKindPermanent)
			continue
		}

		if err := f(tag); err != nil {
			c.l.Error("settle delivery", "tag", tag, "err", err)
			res.Fail(id, classify(err))
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}

	return res, nil
}

func (c *Connector) Close() {
	if err := c.ch.Close(); err != nil {
		c.l.Error("close channel", "err", err)
	}
	if err := c.conn.Close(); err != nil {
		c.l.Error("close connection", "err", err)
	}
}

// classify maps settlement errors. Delivery tags die with their channel, so
// a closed channel or an unknown tag means the token has expired.
func classify(err error) model.ErrorKind {
	if errors.Is(err, amqp.ErrClosed) {
		return model.ErrorKindExpired
	}

	var aerr *amqp.Error
	if errors.As(err, &aerr) {
		switch {
		case aerr.Code == amqp.PreconditionFailed || aerr.Code == amqp.ChannelError:
			return model.ErrorKindExpired
		case aerr.Recover:
			return model.ErrorKindTransient
		default:
			return model.ErrorKindPermanent
		}
	}

	return model.ErrorKindTransient
}

func toMessage(d amqp.Delivery) model.Message {
	var attrs map[string]string
	if len(d.Headers) > 0 || d.RoutingKey != "" {
		attrs = make(map[string]string, len(d.Headers)+1)
		for k, v := range d.Headers {
			attrs[k] = fmt.Sprint(v)
		}
		if d.RoutingKey != "" {
			attrs["amqp.routing_key"] = d.RoutingKey
		}
	}

	return model.Message{
		ID:          d.MessageId,
		Data:        d.Body,
		Attributes:  attrs,
		PublishTime: d.Timestamp,
	}
}
