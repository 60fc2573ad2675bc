package nsq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/internal/connector/inflight"
	"github.com/ValerySidorin/ackd/model"
	"github.com/nsqio/go-nsq"
)

// Connector consumes an nsq channel with auto response disabled. Messages
// are settled through their *nsq.Message, kept in a registry keyed by the
// ack id.
type Connector struct {
	conf     Config
	consumer *nsq.Consumer

	unsettled *inflight.Registry[*nsq.Message]

	l *slog.Logger
}

func NewConnector(conf Config, l *slog.Logger) (*Connector, error) {
	nsqConf := nsq.NewConfig()
	if conf.MaxInFlight > 0 {
		nsqConf.MaxInFlight = conf.MaxInFlight
	}
	if conf.MsgTimeout > 0 {
		nsqConf.MsgTimeout = conf.MsgTimeout
	}

	consumer, err := nsq.NewConsumer(conf.Topic, conf.Channel, nsqConf)
	if err != nil {
		return nil, fmt.Errorf("nsq: new consumer: %w", err)
	}

	l = l.With("topic", conf.Topic, "channel", conf.Channel)
	consumer.SetLogger(slog.NewLogLogger(l.Handler(), slog.LevelDebug), nsq.LogLevelInfo)

	return &Connector{
		conf:      conf,
		consumer:  consumer,
		unsettled: inflight.New[*nsq.Message]("nsq-"),
		l:         l,
	}, nil
}

func (c *Connector) Subscribe(ctx context.Context, h connector.Handler) error {
	c.consumer.AddHandler(nsq.HandlerFunc(func(msg *nsq.Message) error {
		msg.DisableAutoResponse()
		h(toMessage(msg), c.unsettled.Put(msg))
		return nil
	}))

	if len(c.conf.LookupAddresses) > 0 {
		if err := c.consumer.ConnectToNSQLookupds(c.conf.LookupAddresses); err != nil {
			return fmt.Errorf("nsq: connect to lookupds: %w", err)
		}
	} else {
		if err := c.consumer.ConnectToNSQDs(c.conf.Addresses); err != nil {
			return fmt.Errorf("nsq: connect to nsqds: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		return nil
	case <-c.consumer.StopChan:
		return errors.New("nsq: consumer stopped")
	}
}

func (c *Connector) Acknowledge(_ context.Context, ids []string) (model.Result, error) {
	return c.settle(ids, (*nsq.Message).Finish), nil
}

// ModifyAckDeadline requeues the messages without delay when seconds is 0
// and touches them otherwise. nsqd resets a touched message to the full
// msg_timeout, so seconds only selects between the two.
func (c *Connector) ModifyAckDeadline(_ context.Context, ids []string, seconds int) (model.Result, error) {
	if seconds == 0 {
		return c.settle(ids, func(msg *nsq.Message) {
			msg.Requeue(0)
		}), nil
	}

	var res model.Result
	for _, id := range ids {
		msg, ok := c.unsettled.Get(id)
		if !ok || msg.HasResponded() {
			res.Fail(id, model.ErrorKindExpired)
			continue
		}
		msg.Touch()
		res.Succeeded = append(res.Succeeded, id)
	}
	return res, nil
}

func (c *Connector) settle(ids []string, f func(msg *nsq.Message)) model.Result {
	var res model.Result
	for _, id := range ids {
		msg, ok := c.unsettled.Take(id)
		if !ok || msg.HasResponded() {
			res.Fail(id, model.ErrorKindExpired)
			continue
		}
		f(msg)
		res.Succeeded = append(res.Succeeded, id)
	}
	return res
}

func (c *Connector) Close() {
	c.consumer.Stop()
	select {
	case <-c.consumer.StopChan:
	case <-time.After(10 * time.Second):
		c.l.Error("nsq: consumer did not stop in time")
	}
	if n := c.unsettled.Clear(); n > 0 {
		c.l.Warn("closing with unsettled messages", "count", n)
	}
}

func toMessage(msg *nsq.Message) model.Message {
	return model.Message{
		ID:          string(msg.ID[:]),
		Data:        msg.Body,
		PublishTime: time.Unix(0, msg.Timestamp),
		Attributes: map[string]string{
			"nsq.attempts": fmt.Sprint(msg.Attempts),
			"nsq.address":  msg.NSQDAddress,
		},
	}
}
