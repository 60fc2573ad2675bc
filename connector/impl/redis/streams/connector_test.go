package streams

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ValerySidorin/ackd/connector/cerr"
	"github.com/ValerySidorin/ackd/model"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalFunc(t *testing.T) {
	fv := map[string]string{"msg": "hello", "tenant": "t1"}

	data, err := marshalFunc(ParseMsgProtocolJSON)(fv)
	require.NoError(t, err)
	var decoded map[string]string
	require.NoError(t, sonic.Unmarshal(data, &decoded))
	assert.Equal(t, fv, decoded)

	data, err = marshalFunc(ParseMsgProtocolRaw)(fv)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = marshalFunc(ParseMsgProtocolRaw)(map[string]string{"other": "x"})
	assert.Error(t, err)
}

func TestEntryTime(t *testing.T) {
	assert.Equal(t, time.UnixMilli(1700000000123), entryTime("1700000000123-4"))
	assert.True(t, entryTime("garbage").IsZero())
	assert.True(t, entryTime("x-1").IsZero())
}

func TestWrap(t *testing.T) {
	err := wrap("xack", errors.New("connection refused"))
	assert.ErrorIs(t, err, model.ErrTransientTransport)
	assert.ErrorContains(t, err, "redis: xack: connection refused")

	err = wrap("xclaim", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, model.ErrorKindTransient, model.KindOf(err))
}

func TestConfig(t *testing.T) {
	c := Config{
		InitAddress: []string{"localhost:6379"},
		Stream:      "orders",
		Group:       GroupConfig{Name: "ackd", Consumer: "c1"},
	}
	c.SetDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, time.Second, c.Block)
	assert.Equal(t, int64(100), c.Count)
	assert.Equal(t, "$", c.Group.CreateID)
	assert.Equal(t, ParseMsgProtocolJSON, c.ParseMsgProtocol)

	bad := c
	bad.Group.Consumer = ""
	assert.ErrorIs(t, bad.Validate(), cerr.ErrValidation)

	bad = c
	bad.ParseMsgProtocol = "xml"
	assert.ErrorIs(t, bad.Validate(), cerr.ErrValidation)
}
