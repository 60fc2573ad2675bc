package observability

import (
	"context"
	"time"

	"github.com/ValerySidorin/ackd/connector"
	obs "github.com/ValerySidorin/ackd/internal/observability"
	"github.com/ValerySidorin/ackd/model"
)

func WrapMetricsConnectorIfEnabled(c connector.Connector, connectorName string) connector.Connector {
	if !obs.MetricsEnabled() {
		return c
	}
	return &metricsConnectorDecorator{c: c, connectorName: connectorName}
}

type metricsConnectorDecorator struct {
	c             connector.Connector
	connectorName string
}

func (d *metricsConnectorDecorator) Subscribe(ctx context.Context, h connector.Handler) error {
	obs.IncOp("SUBSCRIBE", d.connectorName)
	obs.IncSubscriptions(1)
	defer obs.IncSubscriptions(-1)

	err := d.c.Subscribe(ctx, func(msg model.Message, ackID string) {
		obs.IncDelivered(d.connectorName)
		h(msg, ackID)
	})
	if err != nil {
		obs.IncError("subscribe", d.connectorName)
	}
	return err
}

func (d *metricsConnectorDecorator) Acknowledge(ctx context.Context, ids []string) (model.Result, error) {
	start := time.Now()
	obs.IncOp("ACK", d.connectorName)
	res, err := d.c.Acknowledge(ctx, ids)
	obs.ObserveTransportLatency("ack", d.connectorName, time.Since(start))
	if err != nil || len(res.Failed) > 0 {
		obs.IncError("ack", d.connectorName)
	}
	return res, err
}

func (d *metricsConnectorDecorator) ModifyAckDeadline(ctx context.Context, ids []string, seconds int) (model.Result, error) {
	op, stage := "EXTEND", "extend"
	if seconds == 0 {
		op, stage = "NACK", "nack"
	}

	start := time.Now()
	obs.IncOp(op, d.connectorName)
	res, err := d.c.ModifyAckDeadline(ctx, ids, seconds)
	obs.ObserveTransportLatency(stage, d.connectorName, time.Since(start))
	if err != nil || len(res.Failed) > 0 {
		obs.IncError(stage, d.connectorName)
	}
	return res, err
}

func (d *metricsConnectorDecorator) Close() {
	d.c.Close()
}
