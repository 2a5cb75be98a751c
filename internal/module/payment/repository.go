package payment

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Repository defines the interface for payment data access.
type Repository interface {
	// Order operations
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	MarkOrderPaid(ctx context.Context, id string, amountPaid int64, paidAt int64) error
	ApplyOrderRefund(ctx context.Context, id string, amount int64) error
	ListOrderCharges(ctx context.Context, orderID string) ([]*Charge, error)

	// Charge operations
	CreateCharge(ctx context.Context, charge *Charge) error
	GetCharge(ctx context.Context, id string) (*Charge, error)
	MarkChargePaid(ctx context.Context, id string, paidAt int64) error

	// Refund operations
	CreateRefund(ctx context.Context, refund *Refund) error
	GetRefund(ctx context.Context, id string) (*Refund, error)
	MarkRefundSucceeded(ctx context.Context, id string, succeedAt int64) error
	SetRefundFailureMsg(ctx context.Context, id string, msg string) error

	// Notify and webhook history
	CreateNotifyHistory(ctx context.Context, history *ChargeNotifyHistory) error
	GetNotifyHistory(ctx context.Context, id int64) (*ChargeNotifyHistory, error)
	CreateWebhookHistory(ctx context.Context, history *AppWebhookHistory) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// --- Order Operations ---

func (r *repository) CreateOrder(ctx context.Context, order *Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *repository) GetOrder(ctx context.Context, id string) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &order, nil
}

func (r *repository) MarkOrderPaid(ctx context.Context, id string, amountPaid int64, paidAt int64) error {
	updates := map[string]interface{}{
		"paid":        true,
		"time_paid":   paidAt,
		"amount_paid": amountPaid,
		"status":      OrderStatusPaid,
	}
	err := r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	return nil
}

func (r *repository) ApplyOrderRefund(ctx context.Context, id string, amount int64) error {
	// amount_refunded is incremented in the database so that two
	// concurrent refund notifies cannot lose an update.
	updates := map[string]interface{}{
		"refunded":        true,
		"amount_refunded": gorm.Expr("amount_refunded + ?", amount),
		"status":          OrderStatusRefunded,
	}
	err := r.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("apply order refund: %w", err)
	}
	return nil
}

func (r *repository) ListOrderCharges(ctx context.Context, orderID string) ([]*Charge, error) {
	var charges []*Charge
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&charges).Error
	if err != nil {
		return nil, fmt.Errorf("list order charges: %w", err)
	}
	return charges, nil
}

// --- Charge Operations ---

func (r *repository) CreateCharge(ctx context.Context, charge *Charge) error {
	if err := r.db.WithContext(ctx).Create(charge).Error; err != nil {
		return fmt.Errorf("create charge: %w", err)
	}
	return nil
}

func (r *repository) GetCharge(ctx context.Context, id string) (*Charge, error) {
	var charge Charge
	err := r.db.WithContext(ctx).First(&charge, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChargeNotFound
		}
		return nil, fmt.Errorf("get charge: %w", err)
	}
	return &charge, nil
}

func (r *repository) MarkChargePaid(ctx context.Context, id string, paidAt int64) error {
	updates := map[string]interface{}{
		"paid":      true,
		"time_paid": paidAt,
	}
	err := r.db.WithContext(ctx).
		Model(&Charge{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("mark charge paid: %w", err)
	}
	return nil
}

// --- Refund Operations ---

func (r *repository) CreateRefund(ctx context.Context, refund *Refund) error {
	if err := r.db.WithContext(ctx).Create(refund).Error; err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

func (r *repository) GetRefund(ctx context.Context, id string) (*Refund, error) {
	var refund Refund
	err := r.db.WithContext(ctx).First(&refund, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, fmt.Errorf("get refund: %w", err)
	}
	return &refund, nil
}

func (r *repository) MarkRefundSucceeded(ctx context.Context, id string, succeedAt int64) error {
	updates := map[string]interface{}{
		"status":       RefundStatusSucceeded,
		"time_succeed": succeedAt,
	}
	err := r.db.WithContext(ctx).
		Model(&Refund{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("mark refund succeeded: %w", err)
	}
	return nil
}

func (r *repository) SetRefundFailureMsg(ctx context.Context, id string, msg string) error {
	err := r.db.WithContext(ctx).
		Model(&Refund{}).
		Where("id = ?", id).
		Update("failure_msg", msg).Error
	if err != nil {
		return fmt.Errorf("set refund failure msg: %w", err)
	}
	return nil
}

// --- Notify and Webhook History ---

func (r *repository) CreateNotifyHistory(ctx context.Context, history *ChargeNotifyHistory) error {
	if err := r.db.WithContext(ctx).Create(history).Error; err != nil {
		return fmt.Errorf("create notify history: %w", err)
	}
	return nil
}

func (r *repository) GetNotifyHistory(ctx context.Context, id int64) (*ChargeNotifyHistory, error) {
	var history ChargeNotifyHistory
	err := r.db.WithContext(ctx).First(&history, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHistoryNotFound
		}
		return nil, fmt.Errorf("get notify history: %w", err)
	}
	return &history, nil
}

func (r *repository) CreateWebhookHistory(ctx context.Context, history *AppWebhookHistory) error {
	if err := r.db.WithContext(ctx).Create(history).Error; err != nil {
		return fmt.Errorf("create webhook history: %w", err)
	}
	return nil
}
