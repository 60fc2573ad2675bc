package amqp10

import (
	"fmt"
	"log/slog"

	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/connector/protocol"
	"github.com/ValerySidorin/ackd/internal/connector/util"
)

func init() {
	connector.RegisterFactory(protocol.AMQP10, func(rawBrokerConfig any, l *slog.Logger) (connector.Connector, error) {
		var typedConfig Config
		if err := util.ConvertConfig(rawBrokerConfig, &typedConfig); err != nil {
			return nil, fmt.Errorf("amqp10 connector factory: failed to convert config: %w", err)
		}
		if err := typedConfig.Validate(); err != nil {
			return nil, fmt.Errorf("amqp10 connector factory: invalid config: %w", err)
		}
		return NewConnector(typedConfig, l)
	})
}
