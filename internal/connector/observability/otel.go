package observability

import (
	"context"

	"github.com/ValerySidorin/ackd/connector"
	obs "github.com/ValerySidorin/ackd/internal/observability"
	"github.com/ValerySidorin/ackd/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func WrapOtelConnectorIfEnabled(c connector.Connector, connectorName string) connector.Connector {
	if !obs.TracingEnabled() {
		return c
	}
	return &otelConnectorDecorator{c: c, connectorName: connectorName}
}

type otelConnectorDecorator struct {
	c             connector.Connector
	connectorName string
}

func (d *otelConnectorDecorator) Subscribe(ctx context.Context, h connector.Handler) error {
	return d.c.Subscribe(ctx, func(msg model.Message, ackID string) {
		_, span := obs.Tracer().Start(ctx, "connector.subscribe.handle")
		span.SetAttributes(
			attribute.String("connector", d.connectorName),
			attribute.String("message_id", msg.ID),
		)
		h(msg, ackID)
		span.End()
	})
}

func (d *otelConnectorDecorator) Acknowledge(ctx context.Context, ids []string) (model.Result, error) {
	var span trace.Span
	ctx, span = obs.Tracer().Start(ctx, "connector.acknowledge")
	span.SetAttributes(attribute.String("connector", d.connectorName), attribute.Int("ids", len(ids)))
	defer span.End()

	res, err := d.c.Acknowledge(ctx, ids)
	record(span, res, err)
	return res, err
}

func (d *otelConnectorDecorator) ModifyAckDeadline(ctx context.Context, ids []string, seconds int) (model.Result, error) {
	var span trace.Span
	ctx, span = obs.Tracer().Start(ctx, "connector.modify_ack_deadline")
	span.SetAttributes(
		attribute.String("connector", d.connectorName),
		attribute.Int("ids", len(ids)),
		attribute.Int("seconds", seconds),
	)
	defer span.End()

	res, err := d.c.ModifyAckDeadline(ctx, ids, seconds)
	record(span, res, err)
	return res, err
}

func (d *otelConnectorDecorator) Close() {
	d.c.Close()
}

func record(span trace.Span, res model.Result, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.Int("succeeded", len(res.Succeeded)), attribute.Int("failed", len(res.Failed)))
	if len(res.Failed) > 0 {
		span.SetStatus(codes.Error, "partial failure")
	}
}
