package kafka

import (
	"github.com/ValerySidorin/ackd/connector/cerr"
)

type IsolationLevel string

const (
	IsolationLevelDefault        = ""
	IsolationLevelReadUncommited = "read_uncommited"
	IsolationLevelReadCommited   = "read_commited"
)

type Config struct {
	Brokers                []string       `yaml:"brokers"`
	Topic                  string         `yaml:"topic"`
	Group                  string         `yaml:"group"`
	AllowAutoTopicCreation bool           `yaml:"allow_auto_topic_creation"`
	MaxPollRecords         int            `yaml:"max_poll_records"`
	FetchIsolationLevel    IsolationLevel `yaml:"fetch_isolation_level"`
}

func (c *Config) Validate() error {
	if len(c.Brokers) <= 0 {
		return cerr.ValidationErr("brokers not defined")
	}
	if c.Topic == "" {
		return cerr.ValidationErr("topic not defined")
	}
	if c.Group == "" {
		return cerr.ValidationErr("group not defined")
	}
	if c.MaxPollRecords < 0 {
		return cerr.ValidationErr("negative max_poll_records: %d", c.MaxPollRecords)
	}
	switch c.FetchIsolationLevel {
	case IsolationLevelDefault, IsolationLevelReadUncommited, IsolationLevelReadCommited:
	default:
		return cerr.ValidationErr("unknown fetch_isolation_level: %s", c.FetchIsolationLevel)
	}

	return nil
}
