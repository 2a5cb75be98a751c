package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quanpay/server/internal/module/payment/provider"
	"github.com/quanpay/server/internal/utils/identifier"
	"go.uber.org/zap"
)

const (
	defaultChargeTimeout = 30 * time.Second
	defaultRefundTimeout = 30 * time.Second
)

// Service implements the order, charge and refund engines.
type Service struct {
	repo          Repository
	merchants     MerchantReader
	registry      *provider.Registry
	webhooks      *WebhookEmitter
	guard         ReplayGuard
	chargeTimeout time.Duration
	refundTimeout time.Duration
	logger        *zap.Logger
}

// NewService creates a new payment service. webhooks and guard may be
// nil; the notify pipeline then skips fan-out and replay dedup.
func NewService(
	repo Repository,
	merchants MerchantReader,
	registry *provider.Registry,
	webhooks *WebhookEmitter,
	guard ReplayGuard,
	chargeTimeout time.Duration,
	refundTimeout time.Duration,
	logger *zap.Logger,
) *Service {
	if chargeTimeout <= 0 {
		chargeTimeout = defaultChargeTimeout
	}
	if refundTimeout <= 0 {
		refundTimeout = defaultRefundTimeout
	}
	return &Service{
		repo:          repo,
		merchants:     merchants,
		registry:      registry,
		webhooks:      webhooks,
		guard:         guard,
		chargeTimeout: chargeTimeout,
		refundTimeout: refundTimeout,
		logger:        logger,
	}
}

// CreateOrder creates an Order in the created state.
func (s *Service) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	if _, err := s.merchants.GetSubApp(ctx, req.App, req.ServiceApp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	metadata := "{}"
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal order metadata: %v", ErrBadRequest, err)
		}
		metadata = string(raw)
	}

	order := &Order{
		ID:              identifier.NewOrder(),
		AppID:           req.App,
		SubAppID:        req.ServiceApp,
		UID:             req.UID,
		MerchantOrderNo: req.MerchantOrderNo,
		Status:          OrderStatusCreated,
		Amount:          req.Amount,
		ClientIP:        req.ClientIP,
		Subject:         req.Subject,
		Body:            req.Body,
		Currency:        req.Currency,
		TimeExpire:      req.TimeExpire,
		Metadata:        metadata,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("app", order.AppID),
		zap.Int64("amount", order.Amount))

	return OrderToResponse(order, nil, nil), nil
}

// GetOrder returns the order with its charge list and the newest
// charge's essentials.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*OrderResponse, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	charges, err := s.repo.ListOrderCharges(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var essentials *Charge
	if len(charges) > 0 {
		essentials = charges[0]
	}
	return OrderToResponse(order, charges, essentials), nil
}

// CreateOrderCharge creates a Charge under an order and returns the
// refreshed order response with the new charge's credential inlined.
func (s *Service) CreateOrderCharge(ctx context.Context, orderID string, req *CreateChargeRequest) (*OrderResponse, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	charge, err := s.createCharge(ctx, &chargeIntent{
		appID:           order.AppID,
		subAppID:        order.SubAppID,
		orderID:         &order.ID,
		channel:         req.Channel,
		amount:          req.ChargeAmount,
		merchantOrderNo: order.MerchantOrderNo,
		clientIP:        order.ClientIP,
		subject:         order.Subject,
		body:            order.Body,
		currency:        order.Currency,
		timeExpire:      order.TimeExpire,
		extra:           req.Extra,
	})
	if err != nil {
		return nil, err
	}

	charges, err := s.repo.ListOrderCharges(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return OrderToResponse(order, charges, charge), nil
}

// CreateCharge creates a Charge directly under an App (basic API).
func (s *Service) CreateCharge(ctx context.Context, req *CreateBasicChargeRequest) (*ChargeResponse, error) {
	app, err := s.merchants.GetApp(ctx, req.App.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	charge, err := s.createCharge(ctx, &chargeIntent{
		appID:           app.ID,
		channel:         req.Channel,
		amount:          req.Amount,
		merchantOrderNo: req.MerchantOrderNo,
		clientIP:        req.ClientIP,
		subject:         req.Subject,
		body:            req.Body,
		currency:        req.Currency,
		timeExpire:      req.TimeExpire,
		extra:           req.Extra,
	})
	if err != nil {
		return nil, err
	}
	return ChargeToResponse(charge), nil
}

// GetCharge returns the stored charge.
func (s *Service) GetCharge(ctx context.Context, chargeID string) (*ChargeResponse, error) {
	charge, err := s.repo.GetCharge(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	return ChargeToResponse(charge), nil
}

// chargeIntent carries the resolved inputs of one payment attempt.
type chargeIntent struct {
	appID           string
	subAppID        string
	orderID         *string
	channel         string
	amount          int64
	merchantOrderNo string
	clientIP        string
	subject         string
	body            string
	currency        string
	timeExpire      int64
	extra           provider.ChargeExtra
}

func (s *Service) createCharge(ctx context.Context, intent *chargeIntent) (*Charge, error) {
	handler, err := s.handlerFor(ctx, intent.appID, intent.subAppID, intent.channel)
	if err != nil {
		return nil, err
	}

	chargeID := identifier.NewCharge()

	cctx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()
	credentialObject, err := handler.CreateCredential(cctx, &provider.ChargeRequest{
		ChargeID:        chargeID,
		Amount:          intent.amount,
		MerchantOrderNo: intent.merchantOrderNo,
		ClientIP:        intent.clientIP,
		TimeExpire:      intent.timeExpire,
		Subject:         intent.subject,
		Body:            intent.body,
		Extra:           intent.extra,
	})
	if err != nil {
		return nil, err
	}

	credential, err := chargeCredential(intent.channel, credentialObject)
	if err != nil {
		return nil, err
	}
	extra, err := json.Marshal(intent.extra)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal charge extra: %v", ErrBadRequest, err)
	}

	charge := &Charge{
		ID:              chargeID,
		AppID:           intent.appID,
		OrderID:         intent.orderID,
		Channel:         intent.channel,
		MerchantOrderNo: intent.merchantOrderNo,
		Amount:          intent.amount,
		ClientIP:        intent.clientIP,
		Subject:         intent.subject,
		Body:            intent.body,
		Currency:        intent.currency,
		Extra:           string(extra),
		Credential:      credential,
		TimeExpire:      intent.timeExpire,
	}
	if err := s.repo.CreateCharge(ctx, charge); err != nil {
		return nil, err
	}

	s.logger.Info("charge created",
		zap.String("charge_id", charge.ID),
		zap.String("channel", charge.Channel),
		zap.Int64("amount", charge.Amount))

	return charge, nil
}

// chargeCredential wraps the handler's opaque object in the credential
// envelope keyed by channel tag.
func chargeCredential(channel string, object json.RawMessage) (string, error) {
	credential := map[string]json.RawMessage{
		"object": json.RawMessage(`"credential"`),
		channel:  object,
	}
	raw, err := json.Marshal(credential)
	if err != nil {
		return "", fmt.Errorf("marshal credential: %w", err)
	}
	return string(raw), nil
}

// CreateOrderRefund creates a Refund via the order surface and returns
// it wrapped in the one-element list the upstream API uses.
func (s *Service) CreateOrderRefund(ctx context.Context, orderID string, req *CreateOrderRefundRequest) (*ListResponse[*RefundResponse], error) {
	charge, err := s.repo.GetCharge(ctx, req.ChargeID)
	if err != nil {
		return nil, err
	}
	if charge.OrderID == nil || *charge.OrderID != orderID {
		return nil, fmt.Errorf("%w: charge %s doesn't belong to order %s", ErrBadRequest, charge.ID, orderID)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	refund, err := s.createRefund(ctx, charge, order, req.RefundAmount, req.Description, req.FundingSource)
	if err != nil {
		return nil, err
	}

	return &ListResponse[*RefundResponse]{
		Object:  "list",
		URL:     fmt.Sprintf("/v1/orders/%s/order_refunds", orderID),
		HasMore: false,
		Data:    []*RefundResponse{RefundToResponse(refund, charge)},
	}, nil
}

// GetOrderRefund returns a refund under the order surface, wrapped in
// the same one-element list as the create call.
func (s *Service) GetOrderRefund(ctx context.Context, orderID, refundID string) (*ListResponse[*RefundResponse], error) {
	refund, err := s.repo.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.OrderID == nil || *refund.OrderID != orderID {
		return nil, fmt.Errorf("%w: refund %s doesn't belong to order %s", ErrBadRequest, refundID, orderID)
	}
	charge, err := s.repo.GetCharge(ctx, refund.ChargeID)
	if err != nil {
		return nil, err
	}
	return &ListResponse[*RefundResponse]{
		Object:  "list",
		URL:     fmt.Sprintf("/v1/orders/%s/order_refunds", orderID),
		HasMore: false,
		Data:    []*RefundResponse{RefundToResponse(refund, charge)},
	}, nil
}

// CreateChargeRefund creates a Refund via the charge surface.
func (s *Service) CreateChargeRefund(ctx context.Context, chargeID string, req *CreateRefundRequest) (*RefundResponse, error) {
	charge, err := s.repo.GetCharge(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	var order *Order
	if charge.OrderID != nil {
		order, err = s.repo.GetOrder(ctx, *charge.OrderID)
		if err != nil {
			return nil, err
		}
	}
	refund, err := s.createRefund(ctx, charge, order, req.Amount, req.Description, req.FundingSource)
	if err != nil {
		return nil, err
	}
	return RefundToResponse(refund, charge), nil
}

// GetChargeRefund returns a refund under the charge surface.
func (s *Service) GetChargeRefund(ctx context.Context, chargeID, refundID string) (*RefundResponse, error) {
	refund, err := s.repo.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.ChargeID != chargeID {
		return nil, fmt.Errorf("%w: refund %s doesn't belong to charge %s", ErrBadRequest, refundID, chargeID)
	}
	charge, err := s.repo.GetCharge(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	return RefundToResponse(refund, charge), nil
}

func (s *Service) createRefund(ctx context.Context, charge *Charge, order *Order, amount int64, description, fundingSource string) (*Refund, error) {
	if amount > charge.Amount {
		return nil, fmt.Errorf("%w: refund amount %d exceeds charge amount %d", ErrBadRequest, amount, charge.Amount)
	}

	var subAppID string
	if order != nil {
		subAppID = order.SubAppID
	}
	handler, err := s.handlerFor(ctx, charge.AppID, subAppID, charge.Channel)
	if err != nil {
		return nil, err
	}

	refundID := identifier.NewRefund()
	merchantOrderNo := strings.TrimPrefix(refundID, identifier.PrefixRefund)

	rctx, cancel := context.WithTimeout(ctx, s.refundTimeout)
	defer cancel()
	result, err := handler.CreateRefund(rctx, &provider.RefundRequest{
		ChargeID:              charge.ID,
		ChargeAmount:          charge.Amount,
		ChargeMerchantOrderNo: charge.MerchantOrderNo,
		RefundID:              refundID,
		RefundAmount:          amount,
		RefundMerchantOrderNo: merchantOrderNo,
		Description:           description,
		Extra:                 provider.RefundExtra{FundingSource: fundingSource},
	})
	if err != nil {
		return nil, err
	}

	extra := "{}"
	if len(result.Extra) > 0 {
		raw, err := json.Marshal(result.Extra)
		if err != nil {
			return nil, fmt.Errorf("marshal refund extra: %w", err)
		}
		extra = string(raw)
	}

	refund := &Refund{
		ID:              refundID,
		AppID:           charge.AppID,
		ChargeID:        charge.ID,
		OrderID:         charge.OrderID,
		MerchantOrderNo: merchantOrderNo,
		Status:          string(result.Status),
		Amount:          result.Amount,
		Description:     result.Description,
		Extra:           extra,
	}
	if result.FailureCode != "" {
		refund.FailureCode = &result.FailureCode
	}
	if result.FailureMsg != "" {
		refund.FailureMsg = &result.FailureMsg
	}
	if result.Status == provider.RefundStatusSucceeded {
		now := time.Now().Unix()
		refund.TimeSucceed = &now
	}
	if err := s.repo.CreateRefund(ctx, refund); err != nil {
		return nil, err
	}

	// The Alipay OpenAPI refund settles synchronously; apply the order
	// transition right away.
	if result.Status == provider.RefundStatusSucceeded && order != nil {
		if err := s.repo.ApplyOrderRefund(ctx, order.ID, result.Amount); err != nil {
			return nil, err
		}
	}

	s.logger.Info("refund created",
		zap.String("refund_id", refund.ID),
		zap.String("charge_id", charge.ID),
		zap.String("status", refund.Status),
		zap.Int64("amount", refund.Amount))

	return refund, nil
}

// handlerFor resolves the channel params in scope and instantiates the
// channel handler.
func (s *Service) handlerFor(ctx context.Context, appID, subAppID, channel string) (provider.ChannelHandler, error) {
	params, err := s.merchants.ResolveChannelParams(ctx, appID, subAppID, channel)
	if err != nil {
		return nil, fmt.Errorf("%w: channel %s not configured for app %s: %v", ErrBadRequest, channel, appID, err)
	}
	return s.registry.Handler(channel, params)
}
