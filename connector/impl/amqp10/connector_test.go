package amqp10

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/ValerySidorin/ackd/connector/cerr"
	"github.com/ValerySidorin/ackd/internal/connector/inflight"
	"github.com/ValerySidorin/ackd/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnector() *Connector {
	return &Connector{
		unsettled: inflight.New[*amqp.Message]("amqp10-"),
		l:         slog.New(slog.DiscardHandler),
	}
}

func TestSettle(t *testing.T) {
	c := newTestConnector()

	ok := c.unsettled.Put(amqp.NewMessage([]byte("ok")))
	flaky := c.unsettled.Put(amqp.NewMessage([]byte("flaky")))
	gone := c.unsettled.Put(amqp.NewMessage([]byte("gone")))

	res, err := c.settle(context.Background(), []string{ok, flaky, gone, "amqp10-404"},
		func(_ context.Context, msg *amqp.Message) error {
			switch string(msg.GetData()) {
			case "flaky":
				return errors.New("timeout")
			case "gone":
				return &amqp.LinkError{}
			}
			return nil
		},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{ok}, res.Succeeded)
	assert.Equal(t, map[string]model.ErrorKind{
		flaky:        model.ErrorKindTransient,
		gone:         model.ErrorKindExpired,
		"amqp10-404": model.ErrorKindExpired,
	}, res.Failed)

	_, kept := c.unsettled.Get(flaky)
	assert.True(t, kept)
	assert.Equal(t, 1, c.unsettled.Len())
}

func TestModifyAckDeadlineExtend(t *testing.T) {
	c := newTestConnector()
	id := c.unsettled.Put(amqp.NewMessage([]byte("x")))

	res, err := c.ModifyAckDeadline(context.Background(), []string{id, "amqp10-404"}, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, res.Succeeded)
	assert.Equal(t, model.ErrorKindExpired, res.Failed["amqp10-404"])
	assert.Equal(t, 1, c.unsettled.Len())
}

func TestToMessage(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	msg := amqp.NewMessage([]byte("payload"))
	msg.ApplicationProperties = map[string]any{"tenant": "t1", "n": int64(3)}
	msg.Properties = &amqp.MessageProperties{MessageID: "m-1", CreationTime: &ts}

	assert.Equal(t, model.Message{
		ID:          "m-1",
		Data:        []byte("payload"),
		Attributes:  map[string]string{"tenant": "t1", "n": "3"},
		PublishTime: ts,
	}, toMessage(msg))
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Conn:     ConnConfig{Addr: "amqp://localhost:5672"},
		Receiver: ReceiverConfig{Source: "orders", Credit: 100},
	}
	require.NoError(t, valid.Validate())

	c := valid
	c.Receiver.Source = ""
	assert.ErrorIs(t, c.Validate(), cerr.ErrValidation)

	c = valid
	c.Conn.Addr = ""
	assert.ErrorIs(t, c.Validate(), cerr.ErrValidation)
}
