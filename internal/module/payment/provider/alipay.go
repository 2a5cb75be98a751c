package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-pay/gopay"
)

// mapiGateway fronts both the MAPI payment form and the refund console URL.
const mapiGateway = "https://mapi.alipay.com/gateway.do"

// openAPIGateway is a var so tests can point refund calls at a stub.
var openAPIGateway = "https://openapi.alipay.com/gateway.do"

// alipayTimeLayout is the datetime format Alipay expects in refund_date and
// OpenAPI timestamps.
const alipayTimeLayout = "2006-01-02 15:04:05"

// AlipayNotifyAck is the body Alipay expects once a notification has been
// accepted. Anything else makes the gateway redeliver.
const AlipayNotifyAck = "success"

// Alipay API families, selected per merchant by the numeric alipay_version
// channel param: 1 is the legacy MAPI form protocol, 2 the OpenAPI
// biz_content protocol.
const (
	alipayVersionMAPI    = 1
	alipayVersionOpenAPI = 2
)

// alipayConfig is the normalized view of an Alipay ChannelParams bag. The
// PC and WAP bags name their key fields differently, so each handler maps
// its own bag here. All four keys ride along so a merchant can switch
// signing families by flipping alipay_version without re-keying.
type alipayConfig struct {
	pid            string
	appID          string
	version        int
	privateKey     string // RSA, signs MAPI payloads
	publicKey      string // RSA, verifies MAPI notifications
	privateKeyRSA2 string // RSA2, signs OpenAPI payloads
	publicKeyRSA2  string // RSA2, verifies OpenAPI notifications
}

func (c *alipayConfig) validate(channel string) error {
	if c.pid == "" {
		return fmt.Errorf("%w: missing alipay_pid in %s params", ErrInvalidConfig, channel)
	}
	if c.version != alipayVersionMAPI && c.version != alipayVersionOpenAPI {
		return fmt.Errorf("%w: alipay_version must be 1 or 2, got %d", ErrInvalidConfig, c.version)
	}
	return nil
}

// expireMinutes renders a charge expiry as the relative "Nm" minutes window
// MAPI's it_b_pay and OpenAPI's timeout_express expect. Already-expired
// charges are rejected.
func expireMinutes(timeExpire int64) (int64, error) {
	seconds := timeExpire - time.Now().Unix()
	if seconds <= 0 {
		return 0, fmt.Errorf("%w: time_expire is in the past", ErrMalformedRequest)
	}
	if seconds < 60 {
		return 1, nil
	}
	return seconds / 60, nil
}

// AlipayPcDirect serves PC-browser Alipay payments (alipay_pc_direct).
type AlipayPcDirect struct {
	cfg alipayConfig
	env Env
}

type alipayPcDirectParams struct {
	AlipayPID            string `json:"alipay_pid"`
	AlipaySecurityKey    string `json:"alipay_security_key"`
	AlipayAccount        string `json:"alipay_account"`
	AlipayVersion        int    `json:"alipay_version"`
	AlipayAppID          string `json:"alipay_app_id"`
	AlipaySignType       string `json:"alipay_sign_type"`
	AlipayPrivateKey     string `json:"alipay_private_key"`
	AlipayPublicKey      string `json:"alipay_public_key"`
	AlipayPrivateKeyRSA2 string `json:"alipay_private_key_rsa2"`
	AlipayPublicKeyRSA2  string `json:"alipay_public_key_rsa2"`
}

// NewAlipayPcDirect builds the alipay_pc_direct handler from its
// ChannelParams bag.
func NewAlipayPcDirect(params []byte, env Env) (ChannelHandler, error) {
	var p alipayPcDirectParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("%w: decode alipay_pc_direct params: %v", ErrInvalidConfig, err)
	}
	cfg := alipayConfig{
		pid:            p.AlipayPID,
		appID:          p.AlipayAppID,
		version:        p.AlipayVersion,
		privateKey:     p.AlipayPrivateKey,
		publicKey:      p.AlipayPublicKey,
		privateKeyRSA2: p.AlipayPrivateKeyRSA2,
		publicKeyRSA2:  p.AlipayPublicKeyRSA2,
	}
	if err := cfg.validate(ChannelAlipayPcDirect); err != nil {
		return nil, err
	}
	return &AlipayPcDirect{cfg: cfg, env: env}, nil
}

func (h *AlipayPcDirect) CreateCredential(ctx context.Context, req *ChargeRequest) (json.RawMessage, error) {
	return alipayCreateCredential(&h.cfg, h.env, req, mapiServicePcPay, openAPIMethodPagePay)
}

func (h *AlipayPcDirect) ProcessChargeNotify(ctx context.Context, body []byte) (*NotifyResult, error) {
	return alipayProcessChargeNotify(&h.cfg, body)
}

func (h *AlipayPcDirect) CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	return alipayCreateRefund(ctx, &h.cfg, h.env, req)
}

func (h *AlipayPcDirect) ProcessRefundNotify(ctx context.Context, body []byte) (*RefundNotifyResult, error) {
	return alipayProcessRefundNotify(body)
}

// AlipayWap serves mobile-browser Alipay payments (alipay_wap).
type AlipayWap struct {
	cfg alipayConfig
	env Env
}

type alipayWapParams struct {
	AlipayPID                  string `json:"alipay_pid"`
	AlipaySecurityKey          string `json:"alipay_security_key"`
	AlipayAccount              string `json:"alipay_account"`
	AlipayVersion              int    `json:"alipay_version"`
	AlipayAppID                string `json:"alipay_app_id"`
	AlipaySignType             string `json:"alipay_sign_type"`
	AlipayMerWapPrivateKey     string `json:"alipay_mer_wap_private_key"`
	AlipayWapPublicKey         string `json:"alipay_wap_public_key"`
	AlipayMerWapPrivateKeyRSA2 string `json:"alipay_mer_wap_private_key_rsa2"`
	AlipayWapPublicKeyRSA2     string `json:"alipay_wap_public_key_rsa2"`
}

// NewAlipayWap builds the alipay_wap handler from its ChannelParams bag.
func NewAlipayWap(params []byte, env Env) (ChannelHandler, error) {
	var p alipayWapParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("%w: decode alipay_wap params: %v", ErrInvalidConfig, err)
	}
	cfg := alipayConfig{
		pid:            p.AlipayPID,
		appID:          p.AlipayAppID,
		version:        p.AlipayVersion,
		privateKey:     p.AlipayMerWapPrivateKey,
		publicKey:      p.AlipayWapPublicKey,
		privateKeyRSA2: p.AlipayMerWapPrivateKeyRSA2,
		publicKeyRSA2:  p.AlipayWapPublicKeyRSA2,
	}
	if err := cfg.validate(ChannelAlipayWap); err != nil {
		return nil, err
	}
	return &AlipayWap{cfg: cfg, env: env}, nil
}

func (h *AlipayWap) CreateCredential(ctx context.Context, req *ChargeRequest) (json.RawMessage, error) {
	return alipayCreateCredential(&h.cfg, h.env, req, mapiServiceWapPay, openAPIMethodWapPay)
}

func (h *AlipayWap) ProcessChargeNotify(ctx context.Context, body []byte) (*NotifyResult, error) {
	return alipayProcessChargeNotify(&h.cfg, body)
}

func (h *AlipayWap) CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	return alipayCreateRefund(ctx, &h.cfg, h.env, req)
}

func (h *AlipayWap) ProcessRefundNotify(ctx context.Context, body []byte) (*RefundNotifyResult, error) {
	return alipayProcessRefundNotify(body)
}

// alipayCreateCredential builds the signed payment payload for either API
// family. The credential handed back to the client is the full signed form
// map including the transport-only channel_url.
func alipayCreateCredential(cfg *alipayConfig, env Env, req *ChargeRequest, mapiService, openAPIMethod string) (json.RawMessage, error) {
	if req.Extra.SuccessURL == "" {
		return nil, fmt.Errorf("%w: missing success_url in charge extra", ErrMalformedRequest)
	}
	notifyURL := env.ChargeNotifyURL(req.ChargeID)

	switch cfg.version {
	case alipayVersionMAPI:
		if cfg.privateKey == "" {
			return nil, fmt.Errorf("%w: missing mapi private key", ErrInvalidConfig)
		}
		bm, err := mapiChargePayload(cfg, req, mapiService, req.Extra.SuccessURL, notifyURL)
		if err != nil {
			return nil, err
		}
		return marshalCredential(bm)
	case alipayVersionOpenAPI:
		if cfg.appID == "" {
			return nil, fmt.Errorf("%w: missing alipay_app_id", ErrInvalidConfig)
		}
		if cfg.privateKeyRSA2 == "" {
			return nil, fmt.Errorf("%w: missing openapi private key", ErrInvalidConfig)
		}
		bm, err := openAPIChargePayload(cfg, req, openAPIMethod, req.Extra.SuccessURL, notifyURL)
		if err != nil {
			return nil, err
		}
		return marshalCredential(bm)
	}
	return nil, fmt.Errorf("%w: alipay_version %d", ErrInvalidConfig, cfg.version)
}

func alipayProcessChargeNotify(cfg *alipayConfig, body []byte) (*NotifyResult, error) {
	switch cfg.version {
	case alipayVersionMAPI:
		if cfg.publicKey == "" {
			return nil, fmt.Errorf("%w: missing mapi public key", ErrInvalidConfig)
		}
		n, err := parseMapiNotify(body)
		if err != nil {
			return nil, err
		}
		if err := n.verify(cfg.publicKey); err != nil {
			return nil, err
		}
		return n.result(), nil
	case alipayVersionOpenAPI:
		if cfg.publicKeyRSA2 == "" {
			return nil, fmt.Errorf("%w: missing openapi public key", ErrInvalidConfig)
		}
		n, err := parseOpenAPINotify(body)
		if err != nil {
			return nil, err
		}
		if err := n.verify(cfg.publicKeyRSA2); err != nil {
			return nil, err
		}
		return n.result(), nil
	}
	return nil, fmt.Errorf("%w: alipay_version %d", ErrInvalidConfig, cfg.version)
}

func alipayCreateRefund(ctx context.Context, cfg *alipayConfig, env Env, req *RefundRequest) (*RefundResult, error) {
	switch cfg.version {
	case alipayVersionMAPI:
		if cfg.privateKey == "" {
			return nil, fmt.Errorf("%w: missing mapi private key", ErrInvalidConfig)
		}
		return mapiCreateRefund(cfg, env, req)
	case alipayVersionOpenAPI:
		if cfg.appID == "" {
			return nil, fmt.Errorf("%w: missing alipay_app_id", ErrInvalidConfig)
		}
		if cfg.privateKeyRSA2 == "" {
			return nil, fmt.Errorf("%w: missing openapi private key", ErrInvalidConfig)
		}
		return openAPICreateRefund(ctx, cfg, env, req)
	}
	return nil, fmt.Errorf("%w: alipay_version %d", ErrInvalidConfig, cfg.version)
}

// Alipay refund completion never arrives on the refund notify endpoint:
// OpenAPI refunds settle synchronously and MAPI refunds finish in the
// merchant's browser session.
func alipayProcessRefundNotify([]byte) (*RefundNotifyResult, error) {
	return nil, fmt.Errorf("%w: alipay refund notify not implemented", ErrUnexpected)
}

func marshalCredential(bm gopay.BodyMap) (json.RawMessage, error) {
	data, err := json.Marshal(bm)
	if err != nil {
		return nil, fmt.Errorf("%w: serialize credential: %v", ErrUnexpected, err)
	}
	return data, nil
}
