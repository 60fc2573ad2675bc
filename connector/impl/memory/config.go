package memory

import (
	"time"

	"github.com/ValerySidorin/ackd/connector/cerr"
)

type Config struct {
	Queue string `yaml:"queue"`
	// Seed payloads are published when the connector is created.
	Seed []string `yaml:"seed"`
	// AckDeadline redelivers messages that were not settled in time. Zero
	// disables redelivery.
	AckDeadline time.Duration `yaml:"ack_deadline"`
}

func (c *Config) Validate() error {
	if c.Queue == "" {
		return cerr.ValidationErr("queue not defined")
	}
	if c.AckDeadline < 0 {
		return cerr.ValidationErr("negative ack_deadline: %s", c.AckDeadline)
	}

	return nil
}
