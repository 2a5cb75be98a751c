package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Channel tags. Each tag maps to one concrete ChannelHandler implementation
// and to the ChannelParams row scoped to the app or sub-app being charged.
const (
	ChannelAlipayPcDirect = "alipay_pc_direct"
	ChannelAlipayWap      = "alipay_wap"
	ChannelWxPub          = "wx_pub"
	ChannelWxLite         = "wx_lite"
)

// Error kinds. Handlers wrap these with context via fmt.Errorf("%w: ...")
// so callers can classify with errors.Is while keeping the message.
var (
	// ErrMalformedRequest marks missing or invalid caller input.
	ErrMalformedRequest = errors.New("malformed channel request")
	// ErrInvalidConfig marks an unusable ChannelParams bag or key material.
	ErrInvalidConfig = errors.New("invalid channel config")
	// ErrChannelAPI marks an upstream refusal, non-SUCCESS response, or a
	// failed signature verification on an inbound notification.
	ErrChannelAPI = errors.New("channel api error")
	// ErrUnexpected marks serialization, I/O, or crypto library failures.
	ErrUnexpected = errors.New("unexpected channel failure")
	// ErrUnknownChannel marks a channel tag with no registered factory.
	ErrUnknownChannel = errors.New("unknown payment channel")
)

// ChargeExtra carries the channel-scoped options a caller attaches to a
// charge. Each channel requires only the fields it consumes: the Alipay
// handlers require success_url, the WeChat handlers require open_id.
type ChargeExtra struct {
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
	OpenID     string `json:"open_id,omitempty"`
}

// ChargeRequest is the channel-facing view of a charge being created.
// Amounts are integer fen; TimeExpire is epoch seconds.
type ChargeRequest struct {
	ChargeID        string
	Amount          int64
	MerchantOrderNo string
	ClientIP        string
	TimeExpire      int64
	Subject         string
	Body            string
	Extra           ChargeExtra
}

// RefundExtra carries channel-scoped refund options. FundingSource is
// WeChat-only: unsettled_funds | recharge_funds.
type RefundExtra struct {
	FundingSource string `json:"funding_source,omitempty"`
}

// RefundRequest is the channel-facing view of a refund being created.
type RefundRequest struct {
	ChargeID              string
	ChargeAmount          int64
	ChargeMerchantOrderNo string
	RefundID              string
	RefundAmount          int64
	RefundMerchantOrderNo string
	Description           string
	Extra                 RefundExtra
}

// NotifyResult is the outcome of verifying a charge notification. The parsed
// merchant order number and amount are surfaced so the notify pipeline can
// cross-check them against the stored charge.
type NotifyResult struct {
	Succeeded       bool
	MerchantOrderNo string
	Amount          int64 // fen
}

// RefundStatus is a refund's lifecycle state as reported by a channel.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

// RefundResult is the synchronous outcome of a channel refund call.
// Alipay OpenAPI reports a terminal status inline; WeChat and Alipay MAPI
// stay pending until the asynchronous notify (or a manual confirmation for
// the MAPI refund URL in Extra).
type RefundResult struct {
	Status      RefundStatus
	Amount      int64
	Description string
	Extra       map[string]any
	FailureCode string
	FailureMsg  string
}

// RefundNotifyResult is the outcome of verifying a refund notification.
type RefundNotifyResult struct {
	Status          RefundStatus
	MerchantOrderNo string // charge-side out_trade_no
	RefundNo        string // out_refund_no
	Amount          int64  // refunded fen
	FailureMsg      string
}

// ChannelHandler adapts one payment channel to the uniform charge/refund
// lifecycle. Implementations are cheap to construct; one is built per
// request from the resolved ChannelParams bag.
type ChannelHandler interface {
	// CreateCredential builds the channel-specific payment credential the
	// client SDK completes payment with. May perform outbound I/O.
	CreateCredential(ctx context.Context, req *ChargeRequest) (json.RawMessage, error)

	// ProcessChargeNotify parses and verifies a raw charge callback body.
	ProcessChargeNotify(ctx context.Context, body []byte) (*NotifyResult, error)

	// CreateRefund submits a refund to the channel.
	CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error)

	// ProcessRefundNotify parses and verifies a raw refund callback body.
	ProcessRefundNotify(ctx context.Context, body []byte) (*RefundNotifyResult, error)
}

// Env is the per-deployment environment shared by all handlers: the public
// base URL notify callbacks are built from, and the outbound HTTP client.
type Env struct {
	APIBase string
	Client  *Client
}

// ChargeNotifyURL builds the callback URL a channel posts charge results to.
func (e Env) ChargeNotifyURL(chargeID string) string {
	return fmt.Sprintf("%s/notify/charges/%s", e.APIBase, chargeID)
}

// RefundNotifyURL builds the callback URL a channel posts refund results to.
func (e Env) RefundNotifyURL(chargeID, refundID string) string {
	return fmt.Sprintf("%s/notify/charges/%s/refunds/%s", e.APIBase, chargeID, refundID)
}

// Factory builds a ChannelHandler from a raw ChannelParams bag.
type Factory func(params []byte, env Env) (ChannelHandler, error)

// Registry maps channel tags to handler factories.
type Registry struct {
	mu        sync.RWMutex
	env       Env
	factories map[string]Factory
}

// NewRegistry creates an empty registry bound to env.
func NewRegistry(env Env) *Registry {
	return &Registry{
		env:       env,
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry creates a registry with all four built-in channels.
func DefaultRegistry(env Env) *Registry {
	r := NewRegistry(env)
	r.Register(ChannelAlipayPcDirect, NewAlipayPcDirect)
	r.Register(ChannelAlipayWap, NewAlipayWap)
	r.Register(ChannelWxPub, NewWxPub)
	r.Register(ChannelWxLite, NewWxLite)
	return r
}

// Register binds a factory to a channel tag.
func (r *Registry) Register(channel string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[channel] = factory
}

// Handler constructs the handler for channel from a raw ChannelParams bag.
func (r *Registry) Handler(channel string, params []byte) (ChannelHandler, error) {
	r.mu.RLock()
	factory, ok := r.factories[channel]
	env := r.env
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return factory(params, env)
}

// Channels returns the registered channel tags.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channels := make([]string, 0, len(r.factories))
	for channel := range r.factories {
		channels = append(channels, channel)
	}
	return channels
}
