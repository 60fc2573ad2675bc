package nsq

import (
	"time"

	"github.com/ValerySidorin/ackd/connector/cerr"
)

type Config struct {
	Addresses       []string      `yaml:"addresses"`
	LookupAddresses []string      `yaml:"lookup_addresses"`
	Topic           string        `yaml:"topic"`
	Channel         string        `yaml:"channel"`
	MaxInFlight     int           `yaml:"max_in_flight"`
	MsgTimeout      time.Duration `yaml:"msg_timeout"`
}

func (c *Config) Validate() error {
	if len(c.Addresses) <= 0 && len(c.LookupAddresses) <= 0 {
		return cerr.ValidationErr("addresses or lookup_addresses must be defined")
	}
	if c.Topic == "" {
		return cerr.ValidationErr("topic not defined")
	}
	if c.Channel == "" {
		return cerr.ValidationErr("channel not defined")
	}
	if c.MaxInFlight < 0 {
		return cerr.ValidationErr("negative max_in_flight: %d", c.MaxInFlight)
	}
	if c.MsgTimeout < 0 {
		return cerr.ValidationErr("negative msg_timeout: %s", c.MsgTimeout)
	}

	return nil
}
