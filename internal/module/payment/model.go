package payment

import "time"

// Order status values. Transitions only move forward:
// created -> paid -> refunded.
const (
	OrderStatusCreated  = "created"
	OrderStatusPaid     = "paid"
	OrderStatusRefunded = "refunded"
)

// Refund status values, mirroring what the channel handlers report.
const (
	RefundStatusPending   = "pending"
	RefundStatusSucceeded = "succeeded"
	RefundStatusFailed    = "failed"
)

// Order is a merchant-initiated intent to be paid. Amounts are integer
// fen. An order accumulates charges; the most recently created one is
// the active payment attempt.
type Order struct {
	ID              string `gorm:"primaryKey"`
	AppID           string `gorm:"index;not null"`
	SubAppID        string `gorm:"index;not null"`
	UID             string
	MerchantOrderNo string `gorm:"index"`
	Status          string `gorm:"not null;default:created"`
	Paid            bool
	Refunded        bool
	Amount          int64
	AmountPaid      int64
	AmountRefunded  int64
	ClientIP        string
	Subject         string
	Body            string
	Currency        string
	TimePaid        *int64
	TimeExpire      int64
	Metadata        string `gorm:"type:jsonb;default:'{}'"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "orders"
}

// Charge is a single payment attempt, either under an order or directly
// under an app (basic API). Credential holds the opaque object the
// client SDK consumes, keyed by channel tag.
type Charge struct {
	ID              string  `gorm:"primaryKey"`
	AppID           string  `gorm:"index;not null"`
	OrderID         *string `gorm:"index"`
	Channel         string  `gorm:"not null"`
	MerchantOrderNo string  `gorm:"index"`
	Paid            bool
	Amount          int64
	ClientIP        string
	Subject         string
	Body            string
	Currency        string
	Extra           string `gorm:"type:jsonb;default:'{}'"`
	Credential      string `gorm:"type:jsonb;default:'{}'"`
	TimeExpire      int64
	TimePaid        *int64
	FailureCode     *string
	FailureMsg      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the database table name.
func (Charge) TableName() string {
	return "charges"
}

// Refund is a refund attempt against a charge. Terminal status arrives
// either synchronously from the channel response or via a refund notify.
type Refund struct {
	ID              string  `gorm:"primaryKey"`
	AppID           string  `gorm:"index;not null"`
	ChargeID        string  `gorm:"index;not null"`
	OrderID         *string `gorm:"index"`
	MerchantOrderNo string  `gorm:"index"`
	Status          string  `gorm:"not null;default:pending"`
	Amount          int64
	Description     string
	Extra           string `gorm:"type:jsonb;default:'{}'"`
	TimeSucceed     *int64
	FailureCode     *string
	FailureMsg      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the database table name.
func (Refund) TableName() string {
	return "refunds"
}

// ChargeNotifyHistory stores every inbound channel callback verbatim,
// before any signature check. Unverified bodies are kept on purpose:
// they are the evidence trail and the source of the manual replay
// endpoint. Rows are never updated.
type ChargeNotifyHistory struct {
	ID        int64   `gorm:"primaryKey;autoIncrement"`
	ChargeID  string  `gorm:"index;not null"`
	RefundID  *string `gorm:"index"`
	Data      string
	CreatedAt time.Time
}

// TableName returns the database table name.
func (ChargeNotifyHistory) TableName() string {
	return "charge_notify_histories"
}

// AppWebhookHistory records one outbound webhook attempt per row. The
// primary key is the event id sent to the merchant.
type AppWebhookHistory struct {
	ID         string `gorm:"primaryKey"`
	AppID      string `gorm:"index;not null"`
	Endpoint   string
	EventType  string
	Payload    string `gorm:"type:jsonb;default:'{}'"`
	StatusCode int
	Response   string
	CreatedAt  time.Time
}

// TableName returns the database table name.
func (AppWebhookHistory) TableName() string {
	return "app_webhook_histories"
}
