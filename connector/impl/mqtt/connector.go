package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/internal/connector/inflight"
	"github.com/ValerySidorin/ackd/model"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connector subscribes to an MQTT topic with automatic acks disabled.
// Messages are acked through their mqtt.Message, kept in a registry keyed by
// the ack id.
type Connector struct {
	conf   Config
	client mqtt.Client

	unacked *inflight.Registry[mqtt.Message]

	l *slog.Logger
}

func NewConnector(conf Config, l *slog.Logger) (*Connector, error) {
	conf.SetDefaults()
	l = l.With("topic", conf.Topic)

	opts := mqtt.NewClientOptions().
		AddBroker(conf.BrokerURL).
		SetClientID(conf.ClientID).
		SetUsername(conf.Username).
		SetPassword(conf.Password).
		SetCleanSession(conf.CleanSession).
		SetKeepAlive(conf.KeepAlive).
		SetConnectTimeout(conf.ConnectTimeout).
		SetAutoAckDisabled(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			l.Error("mqtt: connection lost", "err", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(conf.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect: timeout after %s", conf.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect: %w", err)
	}

	return &Connector{
		conf:    conf,
		client:  client,
		unacked: inflight.New[mqtt.Message]("mqtt-"),
		l:       l,
	}, nil
}

func (c *Connector) Subscribe(ctx context.Context, h connector.Handler) error {
	token := c.client.Subscribe(c.conf.Topic, c.conf.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		h(toMessage(msg), c.unacked.Put(msg))
	})
	if !token.WaitTimeout(c.conf.ConnectTimeout) {
		return fmt.Errorf("mqtt: subscribe: timeout after %s", c.conf.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe: %w", err)
	}

	<-ctx.Done()

	token = c.client.Unsubscribe(c.conf.Topic)
	if token.WaitTimeout(c.conf.DisconnectTime) && token.Error() != nil {
		c.l.Error("mqtt: unsubscribe", "err", token.Error())
	}

	return nil
}

func (c *Connector) Acknowledge(_ context.Context, ids []string) (model.Result, error) {
	var res model.Result
	for _, id := range ids {
		msg, ok := c.unacked.Take(id)
		if !ok {
			res.Fail(id, model.ErrorKindExpired)
			continue
		}
		msg.Ack()
		res.Succeeded = append(res.Succeeded, id)
	}
	return res, nil
}

// ModifyAckDeadline has no MQTT counterpart. A nack leaves the message
// unacknowledged so the broker redelivers it with the session; extending is
// a no-op.
func (c *Connector) ModifyAckDeadline(_ context.Context, ids []string, seconds int) (model.Result, error) {
	var res model.Result
	for _, id := range ids {
		var ok bool
		if seconds == 0 {
			_, ok = c.unacked.Take(id)
		} else {
			_, ok = c.unacked.Get(id)
		}
		if !ok {
			res.Fail(id, model.ErrorKindExpired)
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	if seconds == 0 && len(res.Succeeded) > 0 {
		c.l.Debug("left messages unacked for redelivery", "count", len(res.Succeeded))
	}
	return res, nil
}

func (c *Connector) Close() {
	if n := c.unacked.Clear(); n > 0 {
		c.l.Warn("closing with unacked messages", "count", n)
	}
	c.client.Disconnect(uint(c.conf.DisconnectTime.Milliseconds()))
}

func toMessage(msg mqtt.Message) model.Message {
	return model.Message{
		ID:   strconv.FormatUint(uint64(msg.MessageID()), 10),
		Data: msg.Payload(),
		Attributes: map[string]string{
			"mqtt.topic":     msg.Topic(),
			"mqtt.qos":       strconv.Itoa(int(msg.Qos())),
			"mqtt.duplicate": strconv.FormatBool(msg.Duplicate()),
		},
	}
}
