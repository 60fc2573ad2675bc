package ack

import (
	"context"

	"github.com/ValerySidorin/ackd/model"
)

// Transport delivers acknowledgements to the broker that owns a subscription.
// An error return applies to every id of the call; per-id failures are
// reported in the result.
type Transport interface {
	Acknowledge(ctx context.Context, subscription string, ids []string) (model.Result, error)
	// ModifyAckDeadline with seconds == 0 requests immediate redelivery.
	ModifyAckDeadline(ctx context.Context, subscription string, ids []string, seconds int) (model.Result, error)
}
