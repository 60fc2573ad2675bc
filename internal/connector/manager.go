package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/ValerySidorin/ackd/ack"
	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/internal/connector/observability"
	"github.com/ValerySidorin/ackd/model"
	"golang.org/x/sync/errgroup"
)

var ErrConnectorNotFound = errors.New("connector not found")

// Manager owns one connector per configured subscription and routes
// acknowledgements to it. It implements ack.Transport.
type Manager struct {
	conf connector.Config

	connectors map[string]connector.Connector

	cmu sync.RWMutex

	l *slog.Logger
}

func NewManager(conf connector.Config, l *slog.Logger) *Manager {
	return &Manager{
		conf:       conf,
		connectors: make(map[string]connector.Connector, len(conf.Subscriptions)),
		l:          l,
	}
}

// Get returns the connector of subscription, creating it on first use.
func (m *Manager) Get(subscription string) (connector.Connector, error) {
	m.cmu.RLock()
	c, ok := m.connectors[subscription]
	if ok {
		m.cmu.RUnlock()
		return c, nil
	}
	m.cmu.RUnlock()

	m.cmu.Lock()
	defer m.cmu.Unlock()
	c, ok = m.connectors[subscription]
	if ok {
		return c, nil
	}

	conf, ok := m.conf.Subscriptions[subscription]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectorNotFound, subscription)
	}

	c, err := connector.New(conf, m.l.With("subscription", subscription))
	if err != nil {
		return nil, fmt.Errorf("new connector: %w", err)
	}

	c = observability.WrapMetricsConnectorIfEnabled(c, subscription)
	c = observability.WrapOtelConnectorIfEnabled(c, subscription)
	m.connectors[subscription] = c

	return c, nil
}

func (m *Manager) Acknowledge(ctx context.Context, subscription string, ids []string) (model.Result, error) {
	c, err := m.connector(subscription)
	if err != nil {
		return model.Result{}, err
	}
	return c.Acknowledge(ctx, ids)
}

func (m *Manager) ModifyAckDeadline(ctx context.Context, subscription string, ids []string, seconds int) (model.Result, error) {
	c, err := m.connector(subscription)
	if err != nil {
		return model.Result{}, err
	}
	return c.ModifyAckDeadline(ctx, ids, seconds)
}

// connector classifies lookup failures: an unknown subscription never
// resolves, a connector that failed to start may on the next attempt.
func (m *Manager) connector(subscription string) (connector.Connector, error) {
	c, err := m.Get(subscription)
	if err != nil {
		if errors.Is(err, ErrConnectorNotFound) {
			return nil, model.Permanent(err)
		}
		return nil, model.Transient(err)
	}
	return c, nil
}

// Run subscribes to every configured subscription and hands each message to
// h bound to acker. It returns when ctx is done or any subscription fails.
func (m *Manager) Run(ctx context.Context, acker ack.Acker, h func(msg *ack.Message)) error {
	names := slices.Sorted(maps.Keys(m.conf.Subscriptions))
	conns := make([]connector.Connector, 0, len(names))
	for _, name := range names {
		c, err := m.Get(name)
		if err != nil {
			return fmt.Errorf("subscription %s: %w", name, err)
		}
		conns = append(conns, c)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		c := conns[i]
		g.Go(func() error {
			m.l.Info("subscribing", "subscription", name)
			err := c.Subscribe(gctx, func(msg model.Message, ackID string) {
				h(ack.NewMessage(msg, ackID, name, acker))
			})
			if err != nil {
				return fmt.Errorf("subscription %s: %w", name, err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (m *Manager) Close() {
	m.cmu.Lock()
	defer m.cmu.Unlock()

	for name, c := range m.connectors {
		c.Close()
		delete(m.connectors, name)
	}
}
