package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// wechatConfig is the normalized view of a WeChat ChannelParams bag. The
// wx_pub and wx_lite bags carry the same shape under different key prefixes.
type wechatConfig struct {
	appID      string
	mchID      string
	key        string // V2 API key, signs every request
	clientCert []byte // mTLS pair for the refund API
	clientKey  []byte
}

func (c *wechatConfig) validate(channel string) error {
	if c.appID == "" {
		return fmt.Errorf("%w: missing app_id in %s params", ErrInvalidConfig, channel)
	}
	if c.mchID == "" {
		return fmt.Errorf("%w: missing mch_id in %s params", ErrInvalidConfig, channel)
	}
	if c.key == "" {
		return fmt.Errorf("%w: missing api key in %s params", ErrInvalidConfig, channel)
	}
	return nil
}

// WxPub serves WeChat official-account payments (wx_pub).
type WxPub struct {
	cfg wechatConfig
	env Env
}

type wxPubParams struct {
	WxPubAppID      string `json:"wx_pub_app_id"`
	WxPubAppSecret  string `json:"wx_pub_app_secret"`
	WxPubMchID      string `json:"wx_pub_mch_id"`
	WxPubKey        string `json:"wx_pub_key"`
	WxPubClientCert string `json:"wx_pub_client_cert"`
	WxPubClientKey  string `json:"wx_pub_client_key"`
}

// NewWxPub builds the wx_pub handler from its ChannelParams bag.
func NewWxPub(params []byte, env Env) (ChannelHandler, error) {
	var p wxPubParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("%w: decode wx_pub params: %v", ErrInvalidConfig, err)
	}
	cfg := wechatConfig{
		appID:      p.WxPubAppID,
		mchID:      p.WxPubMchID,
		key:        p.WxPubKey,
		clientCert: []byte(p.WxPubClientCert),
		clientKey:  []byte(p.WxPubClientKey),
	}
	if err := cfg.validate(ChannelWxPub); err != nil {
		return nil, err
	}
	return &WxPub{cfg: cfg, env: env}, nil
}

func (h *WxPub) CreateCredential(ctx context.Context, req *ChargeRequest) (json.RawMessage, error) {
	return wechatCreateCredential(ctx, &h.cfg, h.env, req)
}

func (h *WxPub) ProcessChargeNotify(ctx context.Context, body []byte) (*NotifyResult, error) {
	return wechatProcessChargeNotify(&h.cfg, body)
}

func (h *WxPub) CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	return wechatCreateRefund(ctx, &h.cfg, h.env, req)
}

func (h *WxPub) ProcessRefundNotify(ctx context.Context, body []byte) (*RefundNotifyResult, error) {
	return wechatProcessRefundNotify(&h.cfg, body)
}

// WxLite serves WeChat mini-program payments (wx_lite). The wire protocol
// is identical to wx_pub; only the ChannelParams key names differ.
type WxLite struct {
	cfg wechatConfig
	env Env
}

type wxLiteParams struct {
	WxLiteAppID      string `json:"wx_lite_app_id"`
	WxLiteAppSecret  string `json:"wx_lite_app_secret"`
	WxLiteMchID      string `json:"wx_lite_mch_id"`
	WxLiteKey        string `json:"wx_lite_key"`
	WxLiteClientCert string `json:"wx_lite_client_cert"`
	WxLiteClientKey  string `json:"wx_lite_client_key"`
}

// NewWxLite builds the wx_lite handler from its ChannelParams bag.
func NewWxLite(params []byte, env Env) (ChannelHandler, error) {
	var p wxLiteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("%w: decode wx_lite params: %v", ErrInvalidConfig, err)
	}
	cfg := wechatConfig{
		appID:      p.WxLiteAppID,
		mchID:      p.WxLiteMchID,
		key:        p.WxLiteKey,
		clientCert: []byte(p.WxLiteClientCert),
		clientKey:  []byte(p.WxLiteClientKey),
	}
	if err := cfg.validate(ChannelWxLite); err != nil {
		return nil, err
	}
	return &WxLite{cfg: cfg, env: env}, nil
}

func (h *WxLite) CreateCredential(ctx context.Context, req *ChargeRequest) (json.RawMessage, error) {
	return wechatCreateCredential(ctx, &h.cfg, h.env, req)
}

func (h *WxLite) ProcessChargeNotify(ctx context.Context, body []byte) (*NotifyResult, error) {
	return wechatProcessChargeNotify(&h.cfg, body)
}

func (h *WxLite) CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	return wechatCreateRefund(ctx, &h.cfg, h.env, req)
}

func (h *WxLite) ProcessRefundNotify(ctx context.Context, body []byte) (*RefundNotifyResult, error) {
	return wechatProcessRefundNotify(&h.cfg, body)
}
