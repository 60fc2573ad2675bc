package connector

import (
	"errors"
	"fmt"

	"github.com/ValerySidorin/ackd/connector/protocol"
)

type Config struct {
	Subscriptions map[string]SubscriptionConfig `yaml:"subscriptions"`
}

// SubscriptionConfig describes one subscription. Only the section matching
// Protocol is read; it is decoded by the connector's factory.
type SubscriptionConfig struct {
	Protocol     protocol.Protocol `yaml:"protocol"`
	Kafka        any               `yaml:"kafka"`
	Nats         any               `yaml:"nats"`
	AMQP091      any               `yaml:"amqp091"`
	AMQP10       any               `yaml:"amqp10"`
	RedisStreams any               `yaml:"redis_streams"`
	NSQ          any               `yaml:"nsq"`
	MQTT         any               `yaml:"mqtt"`
	Memory       any               `yaml:"memory"`
}

func (c *Config) Validate() error {
	if len(c.Subscriptions) == 0 {
		return errors.New("no subscriptions defined")
	}

	for name, s := range c.Subscriptions {
		if name == "" {
			return errors.New("subscription name is empty")
		}
		if _, err := s.brokerConfig(); err != nil {
			return fmt.Errorf("validate subscription %q: %w", name, err)
		}
	}

	return nil
}

func (c SubscriptionConfig) brokerConfig() (any, error) {
	switch c.Protocol {
	case protocol.Kafka:
		return c.Kafka, nil
	case protocol.Nats:
		return c.Nats, nil
	case protocol.AMQP091:
		return c.AMQP091, nil
	case protocol.AMQP10:
		return c.AMQP10, nil
	case protocol.RedisStreams:
		return c.RedisStreams, nil
	case protocol.NSQ:
		return c.NSQ, nil
	case protocol.MQTT:
		return c.MQTT, nil
	case protocol.Memory:
		return c.Memory, nil
	case "":
		return nil, errors.New("protocol not defined")
	}

	return nil, fmt.Errorf("unknown protocol: %s", c.Protocol)
}
