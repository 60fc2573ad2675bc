package streams

import (
	"time"

	"github.com/ValerySidorin/ackd/connector/cerr"
)

type ParseMsgProtocol string

const (
	// ParseMsgProtocolJSON encodes all field values of an entry as a JSON object.
	ParseMsgProtocolJSON ParseMsgProtocol = "json"
	// ParseMsgProtocolRaw uses the value of the "msg" field as the payload.
	ParseMsgProtocolRaw ParseMsgProtocol = "raw"
)

type GroupConfig struct {
	Name     string `yaml:"name"`
	Consumer string `yaml:"consumer"`
	CreateID string `yaml:"create_id"`
}

type Config struct {
	InitAddress  []string      `yaml:"init_address"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DisableCache bool          `yaml:"disable_cache"`
	Stream       string        `yaml:"stream"`
	Group        GroupConfig   `yaml:"group"`
	Block        time.Duration `yaml:"block"`
	Count        int64         `yaml:"count"`
	// ClaimMinIdle enables reclaiming entries that stayed pending longer than
	// this, including entries that were nacked.
	ClaimMinIdle     time.Duration    `yaml:"claim_min_idle"`
	ParseMsgProtocol ParseMsgProtocol `yaml:"parse_msg_protocol"`
}

func (c *Config) SetDefaults() {
	if c.Block == 0 {
		c.Block = time.Second
	}
	if c.Count == 0 {
		c.Count = 100
	}
	if c.Group.CreateID == "" {
		c.Group.CreateID = "$"
	}
	if c.ParseMsgProtocol == "" {
		c.ParseMsgProtocol = ParseMsgProtocolJSON
	}
}

func (c *Config) Validate() error {
	if len(c.InitAddress) <= 0 {
		return cerr.ValidationErr("init_address not defined")
	}
	if c.Stream == "" {
		return cerr.ValidationErr("stream not defined")
	}
	if c.Group.Name == "" {
		return cerr.ValidationErr("group name not defined")
	}
	if c.Group.Consumer == "" {
		return cerr.ValidationErr("group consumer not defined")
	}
	if c.Block < 0 || c.Count < 0 || c.ClaimMinIdle < 0 {
		return cerr.ValidationErr("block, count and claim_min_idle must not be negative")
	}
	switch c.ParseMsgProtocol {
	case "", ParseMsgProtocolJSON, ParseMsgProtocolRaw:
	default:
		return cerr.ValidationErr("unknown parse_msg_protocol: %s", c.ParseMsgProtocol)
	}

	return nil
}
