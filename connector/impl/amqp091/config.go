package amqp091

import (
	"github.com/ValerySidorin/ackd/connector/cerr"
)

type Config struct {
	URL         string `yaml:"url"`
	Queue       string `yaml:"queue"`
	ConsumerTag string `yaml:"consumer_tag"`
	Prefetch    int    `yaml:"prefetch"`
	Exclusive   bool   `yaml:"exclusive"`
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return cerr.ValidationErr("url not defined")
	}
	if c.Queue == "" {
		return cerr.ValidationErr("queue not defined")
	}
	if c.Prefetch < 0 {
		return cerr.ValidationErr("negative prefetch: %d", c.Prefetch)
	}

	return nil
}
