package nats

import (
	"github.com/ValerySidorin/ackd/connector/cerr"
)

type Config struct {
	URL      string `yaml:"url"`
	Stream   string `yaml:"stream"`
	Consumer string `yaml:"consumer"`
	// CreateConsumer creates or updates a durable explicit-ack consumer
	// instead of binding to an existing one.
	CreateConsumer  bool   `yaml:"create_consumer"`
	FilterSubject   string `yaml:"filter_subject"`
	PullMaxMessages int    `yaml:"pull_max_messages"`
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return cerr.ValidationErr("url not defined")
	}
	if c.Stream == "" {
		return cerr.ValidationErr("stream not defined")
	}
	if c.Consumer == "" {
		return cerr.ValidationErr("consumer not defined")
	}
	if c.PullMaxMessages < 0 {
		return cerr.ValidationErr("negative pull_max_messages: %d", c.PullMaxMessages)
	}

	return nil
}
