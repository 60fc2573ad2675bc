package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/model"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const ackSubjectPrefix = "$JS.ACK."

var (
	ackBody        = []byte("+ACK")
	nakBody        = []byte("-NAK")
	inProgressBody = []byte("+WPI")
)

// Connector consumes a JetStream consumer. Ack ids are the reply subjects of
// the delivered messages, so acknowledgements can be published for any
// message of the consumer, not only the ones still held in memory.
type Connector struct {
	conf Config
	nc   *nats.Conn
	js   jetstream.JetStream

	// closed is closed once the connection is closed for good.
	closed chan struct{}

	l *slog.Logger
}

func NewConnector(conf Config, l *slog.Logger) (*Connector, error) {
	closed := make(chan struct{})
	nc, err := nats.Connect(conf.URL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			l.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			close(closed)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: new jetstream: %w", err)
	}

	return &Connector{
		conf:   conf,
		nc:     nc,
		js:     js,
		closed: closed,
		l:      l.With("stream", conf.Stream, "consumer", conf.Consumer),
	}, nil
}

func (c *Connector) Subscribe(ctx context.Context, h connector.Handler) error {
	cons, err := c.consumer(ctx)
	if err != nil {
		return err
	}

	fatal := make(chan error, 1)
	opts := []jetstream.PullConsumeOpt{jetstream.ConsumeErrHandler(c.onConsumeErr(fatal))}
	if c.conf.PullMaxMessages > 0 {
		opts = append(opts, jetstream.PullMaxMessages(c.conf.PullMaxMessages))
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		h(toMessage(msg), msg.Reply())
	}, opts...)
	if err != nil {
		return fmt.Errorf("nats: consume: %w", err)
	}
	defer cc.Stop()

	return c.await(ctx, fatal, cc.Closed())
}

// onConsumeErr forwards errors after which the consumer can not recover.
// Missed heartbeats and similar errors are retried by the client.
func (c *Connector) onConsumeErr(fatal chan<- error) jetstream.ConsumeErrHandlerFunc {
	return func(_ jetstream.ConsumeContext, err error) {
		if !errors.Is(err, jetstream.ErrConsumerDeleted) &&
			!errors.Is(err, jetstream.ErrConsumerNotFound) &&
			!errors.Is(err, nats.ErrConnectionClosed) {
			c.l.Warn("consume", "err", err)
			return
		}

		select {
		case fatal <- err:
		default:
		}
	}
}

// await blocks until ctx is done or the subscription can no longer deliver.
func (c *Connector) await(ctx context.Context, fatal <-chan error, stopped <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-fatal:
		return fmt.Errorf("nats: consume: %w", err)
	case <-c.closed:
		return fmt.Errorf("nats: consume: %w", nats.ErrConnectionClosed)
	case <-stopped:
		return errors.New("nats: consume: consumer stopped")
	}
}

func (c *Connector) consumer(ctx context.Context) (jetstream.Consumer, error) {
	if !c.conf.CreateConsumer {
		cons, err := c.js.Consumer(ctx, c.conf.Stream, c.conf.Consumer)
		if err != nil {
			return nil, fmt.Errorf("nats: get consumer: %w", err)
		}
		return cons, nil
	}

	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.conf.Stream, jetstream.ConsumerConfig{
		Durable:       c.conf.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: c.conf.FilterSubject,
	})
	if err != nil {
		return nil, fmt.Errorf("nats: create consumer: %w", err)
	}
	return cons, nil
}

func (c *Connector) Acknowledge(ctx context.Context, ids []string) (model.Result, error) {
	return c.respond(ctx, ids, ackBody)
}

// ModifyAckDeadline naks for immediate redelivery when seconds is 0 and
// otherwise marks the messages in progress, which restarts their ack wait.
func (c *Connector) ModifyAckDeadline(ctx context.Context, ids []string, seconds int) (model.Result, error) {
	if seconds == 0 {
		return c.respond(ctx, ids, nakBody)
	}
	return c.respond(ctx, ids, inProgressBody)
}

func (c *Connector) respond(ctx context.Context, ids []string, body []byte) (model.Result, error) {
	var (
		res  model.Result
		sent []string
	)

	for _, id := range ids {
		if !isAckSubject(id) {
			c.l.Warn("not a jetstream ack subject", "id", id)
			res.Fail(id, model.ErrorKindPermanent)
			continue
		}

		if err := c.nc.Publish(id, body); err != nil {
			c.l.Error("publish ack", "id", id, "err", err)
			res.Fail(id, model.ErrorKindTransient)
			continue
		}
		sent = append(sent, id)
	}

	if len(sent) == 0 {
		return res, nil
	}

	if err := c.nc.FlushWithContext(ctx); err != nil {
		return model.Result{}, model.Transient(fmt.Errorf("nats: flush: %w", err))
	}
	res.Succeeded = append(res.Succeeded, sent...)

	return res, nil
}

func (c *Connector) Close() {
	c.nc.Close()
}

func isAckSubject(s string) bool {
	return strings.HasPrefix(s, ackSubjectPrefix) && len(s) > len(ackSubjectPrefix)
}

func toMessage(msg jetstream.Msg) model.Message {
	m := model.Message{
		Data:       msg.Data(),
		Attributes: headersToAttributes(msg.Headers()),
	}

	if m.Attributes == nil {
		m.Attributes = make(map[string]string, 1)
	}
	m.Attributes["nats.subject"] = msg.Subject()

	if meta, err := msg.Metadata(); err == nil {
		m.ID = strconv.FormatUint(meta.Sequence.Stream, 10)
		m.PublishTime = meta.Timestamp
	}

	return m
}

func headersToAttributes(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}

	attrs := make(map[string]string, len(h))
	for k := range h {
		attrs[k] = h.Get(k)
	}
	return attrs
}
