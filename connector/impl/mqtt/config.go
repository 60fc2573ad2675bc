package mqtt

import (
	"time"

	"github.com/ValerySidorin/ackd/connector/cerr"
)

type Config struct {
	BrokerURL      string        `yaml:"broker_url"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Topic          string        `yaml:"topic"`
	QoS            byte          `yaml:"qos"`
	CleanSession   bool          `yaml:"clean_session"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	DisconnectTime time.Duration `yaml:"disconnect_time"`
}

func (c *Config) SetDefaults() {
	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.DisconnectTime == 0 {
		c.DisconnectTime = time.Second
	}
}

func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return cerr.ValidationErr("broker_url not defined")
	}
	if c.ClientID == "" {
		return cerr.ValidationErr("client_id not defined")
	}
	if c.Topic == "" {
		return cerr.ValidationErr("topic not defined")
	}
	if c.QoS > 2 {
		return cerr.ValidationErr("invalid qos: %d", c.QoS)
	}

	return nil
}
