package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ValerySidorin/ackd/connector/protocol"
	"github.com/ValerySidorin/ackd/model"
)

// Handler receives a message and the id used to acknowledge it.
type Handler func(msg model.Message, ackID string)

// Connector consumes one subscription of a broker and settles its messages.
type Connector interface {
	// Subscribe delivers messages to h until ctx is done or the broker
	// connection fails.
	Subscribe(ctx context.Context, h Handler) error
	Acknowledge(ctx context.Context, ids []string) (model.Result, error)
	ModifyAckDeadline(ctx context.Context, ids []string, seconds int) (model.Result, error)
	Close()
}

type FactoryFunc func(brokerSpecificConfig any, l *slog.Logger) (Connector, error)

var (
	factories = make(map[protocol.Protocol]FactoryFunc)
	fmu       sync.RWMutex
)

func RegisterFactory(p protocol.Protocol, factory FactoryFunc) {
	fmu.Lock()
	defer fmu.Unlock()

	factories[p] = factory
}

func Registered(p protocol.Protocol) bool {
	fmu.RLock()
	defer fmu.RUnlock()

	_, ok := factories[p]
	return ok
}

func New(conf SubscriptionConfig, l *slog.Logger) (Connector, error) {
	fmu.RLock()
	factory, ok := factories[conf.Protocol]
	fmu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported connector protocol: %s (is it compiled in?)", conf.Protocol)
	}

	brokerConf, err := conf.brokerConfig()
	if err != nil {
		return nil, err
	}

	return factory(brokerConf, l.With("connector_type", string(conf.Protocol)))
}
