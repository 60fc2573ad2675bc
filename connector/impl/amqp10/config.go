package amqp10

import (
	"time"

	"github.com/ValerySidorin/ackd/connector/cerr"
)

type ConnConfig struct {
	Addr         string        `yaml:"addr"`
	ContainerID  string        `yaml:"container_id"`
	HostName     string        `yaml:"host_name"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxFrameSize uint32        `yaml:"max_frame_size"`
}

type ReceiverConfig struct {
	Source string `yaml:"source"`
	Name   string `yaml:"name"`
	Credit int32  `yaml:"credit"`
}

type Config struct {
	Conn     ConnConfig     `yaml:"conn"`
	Receiver ReceiverConfig `yaml:"receiver"`
}

func (c *Config) Validate() error {
	if c.Conn.Addr == "" {
		return cerr.ValidationErr("conn addr not defined")
	}
	if c.Receiver.Source == "" {
		return cerr.ValidationErr("receiver source not defined")
	}
	if c.Receiver.Credit < 0 {
		return cerr.ValidationErr("negative receiver credit: %d", c.Receiver.Credit)
	}

	return nil
}
