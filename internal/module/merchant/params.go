package merchant

import (
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/quanpay/server/internal/module/payment/provider"
)

// Alipay API families selected by the alipay_version param.
const (
	alipayVersionMAPI    = 1
	alipayVersionOpenAPI = 2
)

// wechatKeyLength is the fixed size of a WeChat V2 API key.
const wechatKeyLength = 32

// ValidateChannelParams checks a params bag against the channel's schema
// before it is stored. The bag stays opaque JSON in the database; only
// the keys a handler cannot run without are enforced here, so a bad
// upsert fails at the console instead of at the first charge.
func ValidateChannelParams(channel string, params json.RawMessage) error {
	switch channel {
	case provider.ChannelAlipayPcDirect, provider.ChannelAlipayWap:
		return validateAlipayParams(channel, params)
	case provider.ChannelWxPub, provider.ChannelWxLite:
		return validateWeChatParams(channel, params)
	}
	return fmt.Errorf("%w: unknown channel %s", ErrInvalidParams, channel)
}

func validateAlipayParams(channel string, params json.RawMessage) error {
	var bag struct {
		PID         string `json:"alipay_pid"`
		SecurityKey string `json:"alipay_security_key"`
		Account     string `json:"alipay_account"`
		Version     int    `json:"alipay_version"`

		PrivateKey     string `json:"alipay_private_key"`
		PublicKey      string `json:"alipay_public_key"`
		PrivateKeyRSA2 string `json:"alipay_private_key_rsa2"`
		PublicKeyRSA2  string `json:"alipay_public_key_rsa2"`

		MerWapPrivateKey     string `json:"alipay_mer_wap_private_key"`
		WapPublicKey         string `json:"alipay_wap_public_key"`
		MerWapPrivateKeyRSA2 string `json:"alipay_mer_wap_private_key_rsa2"`
		WapPublicKeyRSA2     string `json:"alipay_wap_public_key_rsa2"`
	}
	if err := json.Unmarshal(params, &bag); err != nil {
		return fmt.Errorf("%w: decode %s params: %v", ErrInvalidParams, channel, err)
	}

	if bag.PID == "" {
		return fmt.Errorf("%w: missing alipay_pid in %s params", ErrInvalidParams, channel)
	}
	if bag.SecurityKey == "" {
		return fmt.Errorf("%w: missing alipay_security_key in %s params", ErrInvalidParams, channel)
	}
	if bag.Account == "" {
		return fmt.Errorf("%w: missing alipay_account in %s params", ErrInvalidParams, channel)
	}

	// The PC and WAP bags name their key pairs differently.
	privateKey, publicKey := bag.PrivateKey, bag.PublicKey
	privateKeyRSA2, publicKeyRSA2 := bag.PrivateKeyRSA2, bag.PublicKeyRSA2
	if channel == provider.ChannelAlipayWap {
		privateKey, publicKey = bag.MerWapPrivateKey, bag.WapPublicKey
		privateKeyRSA2, publicKeyRSA2 = bag.MerWapPrivateKeyRSA2, bag.WapPublicKeyRSA2
	}

	switch bag.Version {
	case alipayVersionMAPI:
		if privateKey == "" || publicKey == "" {
			return fmt.Errorf("%w: alipay_version 1 requires the rsa key pair in %s params", ErrInvalidParams, channel)
		}
	case alipayVersionOpenAPI:
		if privateKeyRSA2 == "" || publicKeyRSA2 == "" {
			return fmt.Errorf("%w: alipay_version 2 requires the rsa2 key pair in %s params", ErrInvalidParams, channel)
		}
	default:
		return fmt.Errorf("%w: alipay_version must be 1 or 2, got %d", ErrInvalidParams, bag.Version)
	}
	return nil
}

// validateWeChatParams reads the bag as a generic map because the wx_pub
// and wx_lite bags carry the same fields under the channel tag as prefix.
func validateWeChatParams(channel string, params json.RawMessage) error {
	var bag map[string]any
	if err := json.Unmarshal(params, &bag); err != nil {
		return fmt.Errorf("%w: decode %s params: %v", ErrInvalidParams, channel, err)
	}

	field := func(name string) string {
		v, _ := bag[channel+"_"+name].(string)
		return v
	}

	if field("app_id") == "" {
		return fmt.Errorf("%w: missing %s_app_id in %s params", ErrInvalidParams, channel, channel)
	}
	if field("mch_id") == "" {
		return fmt.Errorf("%w: missing %s_mch_id in %s params", ErrInvalidParams, channel, channel)
	}
	if len(field("key")) != wechatKeyLength {
		return fmt.Errorf("%w: %s_key must be %d bytes", ErrInvalidParams, channel, wechatKeyLength)
	}

	// The mTLS pair only matters for refunds, so it may be absent. When
	// present it has to at least parse as PEM.
	for _, name := range []string{"client_cert", "client_key"} {
		if v := field(name); v != "" {
			if block, _ := pem.Decode([]byte(v)); block == nil {
				return fmt.Errorf("%w: %s_%s is not PEM encoded", ErrInvalidParams, channel, name)
			}
		}
	}
	return nil
}
