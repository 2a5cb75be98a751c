package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEnv() Env {
	return Env{
		APIBase: "https://gw.example.com",
		Client:  NewClient(0, zap.NewNop()),
	}
}

func TestEnvNotifyURLs(t *testing.T) {
	env := testEnv()
	assert.Equal(t, "https://gw.example.com/notify/charges/ch_1", env.ChargeNotifyURL("ch_1"))
	assert.Equal(t, "https://gw.example.com/notify/charges/ch_1/refunds/re_2", env.RefundNotifyURL("ch_1", "re_2"))
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(testEnv())

	t.Run("registers the four channels", func(t *testing.T) {
		assert.ElementsMatch(t,
			[]string{ChannelAlipayPcDirect, ChannelAlipayWap, ChannelWxPub, ChannelWxLite},
			r.Channels())
	})

	t.Run("builds a handler from params", func(t *testing.T) {
		params := []byte(`{"wx_pub_app_id":"wx8888","wx_pub_mch_id":"1900000109","wx_pub_key":"k"}`)
		h, err := r.Handler(ChannelWxPub, params)
		require.NoError(t, err)
		assert.IsType(t, &WxPub{}, h)
	})

	t.Run("rejects unknown channel", func(t *testing.T) {
		_, err := r.Handler("apple_pay", nil)
		assert.ErrorIs(t, err, ErrUnknownChannel)
	})

	t.Run("surfaces factory config errors", func(t *testing.T) {
		_, err := r.Handler(ChannelWxPub, []byte(`{}`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestNotifyAck(t *testing.T) {
	assert.Equal(t, AlipayNotifyAck, NotifyAck(ChannelAlipayPcDirect))
	assert.Equal(t, AlipayNotifyAck, NotifyAck(ChannelAlipayWap))
	assert.Equal(t, WeChatNotifyAck, NotifyAck(ChannelWxPub))
	assert.Equal(t, WeChatNotifyAck, NotifyAck(ChannelWxLite))
}
