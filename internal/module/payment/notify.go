package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/quanpay/server/internal/module/payment/provider"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// notifyDedupTTL bounds how long a processed notify key is remembered.
// Channels stop retrying well within a day.
const notifyDedupTTL = 24 * time.Hour

// RedisReplayGuard implements ReplayGuard on a shared Redis instance.
type RedisReplayGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisReplayGuard(client redis.UniversalClient) *RedisReplayGuard {
	return &RedisReplayGuard{client: client, ttl: notifyDedupTTL}
}

func (g *RedisReplayGuard) MarkProcessed(ctx context.Context, key string) (bool, error) {
	return g.client.SetNX(ctx, key, 1, g.ttl).Result()
}

// HandleChargeNotify records the raw notification and runs the charge
// notify pipeline. It returns the acknowledgement body the channel
// expects on success.
func (s *Service) HandleChargeNotify(ctx context.Context, chargeID string, payload []byte) (string, error) {
	history := &ChargeNotifyHistory{
		ChargeID: chargeID,
		Data:     string(payload),
	}
	if err := s.repo.CreateNotifyHistory(ctx, history); err != nil {
		return "", err
	}
	return s.processChargeNotify(ctx, chargeID, string(payload))
}

// HandleRefundNotify records the raw notification and runs the refund
// notify pipeline.
func (s *Service) HandleRefundNotify(ctx context.Context, chargeID, refundID string, payload []byte) (string, error) {
	history := &ChargeNotifyHistory{
		ChargeID: chargeID,
		RefundID: &refundID,
		Data:     string(payload),
	}
	if err := s.repo.CreateNotifyHistory(ctx, history); err != nil {
		return "", err
	}
	return s.processRefundNotify(ctx, chargeID, refundID, string(payload))
}

// RetryNotify re-runs a recorded notification through the pipeline it
// originally targeted. The stored payload goes through the same
// verification as a live delivery.
func (s *Service) RetryNotify(ctx context.Context, historyID int64) (string, error) {
	history, err := s.repo.GetNotifyHistory(ctx, historyID)
	if err != nil {
		return "", err
	}
	if history.RefundID != nil {
		return s.processRefundNotify(ctx, history.ChargeID, *history.RefundID, history.Data)
	}
	return s.processChargeNotify(ctx, history.ChargeID, history.Data)
}

func (s *Service) processChargeNotify(ctx context.Context, chargeID, payload string) (string, error) {
	charge, err := s.repo.GetCharge(ctx, chargeID)
	if err != nil {
		return "", err
	}
	var order *Order
	if charge.OrderID != nil {
		order, err = s.repo.GetOrder(ctx, *charge.OrderID)
		if err != nil {
			return "", err
		}
	}

	var subAppID string
	if order != nil {
		subAppID = order.SubAppID
	}
	handler, err := s.handlerFor(ctx, charge.AppID, subAppID, charge.Channel)
	if err != nil {
		return "", err
	}

	result, err := handler.ProcessChargeNotify(ctx, []byte(payload))
	if err != nil {
		return "", err
	}
	ack := provider.NotifyAck(charge.Channel)

	if !result.Succeeded {
		s.logger.Warn("charge notify reports failure",
			zap.String("charge_id", charge.ID),
			zap.String("channel", charge.Channel))
		return ack, nil
	}

	// The notification is signed but its identity fields still have to
	// match the charge the URL names.
	if result.MerchantOrderNo != "" && result.MerchantOrderNo != charge.MerchantOrderNo {
		s.logger.Warn("charge notify order number mismatch",
			zap.String("charge_id", charge.ID),
			zap.String("got", result.MerchantOrderNo),
			zap.String("want", charge.MerchantOrderNo))
		return "", fmt.Errorf("%w: notify order number %s doesn't match charge %s", ErrBadRequest, result.MerchantOrderNo, charge.ID)
	}
	if result.Amount != charge.Amount {
		s.logger.Warn("charge notify amount mismatch",
			zap.String("charge_id", charge.ID),
			zap.Int64("got", result.Amount),
			zap.Int64("want", charge.Amount))
		return "", fmt.Errorf("%w: notify amount %d doesn't match charge %s", ErrBadRequest, result.Amount, charge.ID)
	}

	if charge.Paid {
		return ack, nil
	}
	if s.guard != nil {
		first, err := s.guard.MarkProcessed(ctx, "notify:charge:"+charge.ID)
		if err != nil {
			s.logger.Warn("replay guard unavailable", zap.Error(err))
		} else if !first {
			return ack, nil
		}
	}

	now := time.Now().Unix()
	if err := s.repo.MarkChargePaid(ctx, charge.ID, now); err != nil {
		return "", err
	}
	charge.Paid = true
	charge.TimePaid = &now

	if order != nil {
		if err := s.repo.MarkOrderPaid(ctx, order.ID, charge.Amount, now); err != nil {
			return "", err
		}
		order.Paid = true
		order.TimePaid = &now
		order.AmountPaid = charge.Amount
		order.Status = OrderStatusPaid
	}

	s.logger.Info("charge paid",
		zap.String("charge_id", charge.ID),
		zap.String("channel", charge.Channel),
		zap.Int64("amount", charge.Amount))

	s.emitChargeSucceeded(ctx, charge, order)
	return ack, nil
}

func (s *Service) emitChargeSucceeded(ctx context.Context, charge *Charge, order *Order) {
	if s.webhooks == nil {
		return
	}
	if order == nil {
		s.webhooks.Emit(ctx, charge.AppID, EventChargeSucceeded, ChargeToResponse(charge))
		return
	}
	charges, err := s.repo.ListOrderCharges(ctx, order.ID)
	if err != nil {
		s.logger.Warn("list order charges for webhook", zap.Error(err))
		charges = []*Charge{charge}
	}
	s.webhooks.Emit(ctx, order.AppID, EventOrderSucceeded, OrderToResponse(order, charges, charge))
}

func (s *Service) processRefundNotify(ctx context.Context, chargeID, refundID, payload string) (string, error) {
	charge, err := s.repo.GetCharge(ctx, chargeID)
	if err != nil {
		return "", err
	}
	refund, err := s.repo.GetRefund(ctx, refundID)
	if err != nil {
		return "", err
	}
	if refund.ChargeID != charge.ID {
		return "", fmt.Errorf("%w: refund %s doesn't belong to charge %s", ErrBadRequest, refund.ID, charge.ID)
	}
	var order *Order
	if refund.OrderID != nil {
		order, err = s.repo.GetOrder(ctx, *refund.OrderID)
		if err != nil {
			return "", err
		}
	}

	var subAppID string
	if order != nil {
		subAppID = order.SubAppID
	}
	handler, err := s.handlerFor(ctx, charge.AppID, subAppID, charge.Channel)
	if err != nil {
		return "", err
	}

	result, err := handler.ProcessRefundNotify(ctx, []byte(payload))
	if err != nil {
		return "", err
	}
	ack := provider.NotifyAck(charge.Channel)

	if result.RefundNo != "" && result.RefundNo != refund.MerchantOrderNo {
		s.logger.Warn("refund notify refund number mismatch",
			zap.String("refund_id", refund.ID),
			zap.String("got", result.RefundNo),
			zap.String("want", refund.MerchantOrderNo))
		return "", fmt.Errorf("%w: notify refund number %s doesn't match refund %s", ErrBadRequest, result.RefundNo, refund.ID)
	}
	if result.MerchantOrderNo != "" && result.MerchantOrderNo != charge.MerchantOrderNo {
		s.logger.Warn("refund notify order number mismatch",
			zap.String("refund_id", refund.ID),
			zap.String("got", result.MerchantOrderNo),
			zap.String("want", charge.MerchantOrderNo))
		return "", fmt.Errorf("%w: notify order number %s doesn't match charge %s", ErrBadRequest, result.MerchantOrderNo, charge.ID)
	}

	switch result.Status {
	case provider.RefundStatusSucceeded:
		if refund.Status == RefundStatusSucceeded {
			return ack, nil
		}
		if s.guard != nil {
			first, err := s.guard.MarkProcessed(ctx, "notify:refund:"+refund.ID)
			if err != nil {
				s.logger.Warn("replay guard unavailable", zap.Error(err))
			} else if !first {
				return ack, nil
			}
		}
		now := time.Now().Unix()
		if err := s.repo.MarkRefundSucceeded(ctx, refund.ID, now); err != nil {
			return "", err
		}
		if order != nil {
			if err := s.repo.ApplyOrderRefund(ctx, order.ID, refund.Amount); err != nil {
				return "", err
			}
		}
		s.logger.Info("refund succeeded",
			zap.String("refund_id", refund.ID),
			zap.String("charge_id", charge.ID),
			zap.Int64("amount", refund.Amount))
	case provider.RefundStatusFailed:
		// A failed notification only records the message; the refund row
		// keeps its prior status.
		if result.FailureMsg != "" {
			if err := s.repo.SetRefundFailureMsg(ctx, refund.ID, result.FailureMsg); err != nil {
				return "", err
			}
		}
		s.logger.Warn("refund failed",
			zap.String("refund_id", refund.ID),
			zap.String("failure_msg", result.FailureMsg))
	}
	return ack, nil
}
