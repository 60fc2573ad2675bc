package config

import (
	"errors"
	"fmt"

	"github.com/ValerySidorin/ackd/ack"
	"github.com/ValerySidorin/ackd/connector"
	"github.com/ValerySidorin/ackd/internal/observability"
)

type Config struct {
	Log           LogConfig            `yaml:"log"`
	Ack           ack.Config           `yaml:"ack"`
	Connectors    connector.Config     `yaml:"connectors"`
	Observability observability.Config `yaml:"observability"`
}

type LogConfig struct {
	Type  string `yaml:"type"`
	Level string `yaml:"level"`
	// DumpMessages logs every received message as JSON before it is acked.
	DumpMessages bool `yaml:"dump_messages"`
}

func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "INFO"
	}
	if c.Log.Type != "json" && c.Log.Type != "text" {
		c.Log.Type = "text"
	}

	c.Ack.SetDefaults()
	c.Observability.SetDefaults()
}

func (c *Config) Validate() error {
	var errs []error

	if err := c.Ack.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ack: %w", err))
	}
	if err := c.Connectors.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("connectors: %w", err))
	}
	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	return errors.Join(errs...)
}
