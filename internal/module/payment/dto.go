package payment

import (
	"encoding/json"

	"github.com/quanpay/server/internal/module/payment/provider"
)

// CreateOrderRequest creates an Order. receipt_app and service_app both
// name sub-apps of the app; the upstream API keeps them separate fields
// even though deployments use the same sub-app for both.
type CreateOrderRequest struct {
	App             string                 `json:"app" binding:"required"`
	ReceiptApp      string                 `json:"receipt_app" binding:"required"`
	ServiceApp      string                 `json:"service_app" binding:"required"`
	UID             string                 `json:"uid" binding:"required"`
	MerchantOrderNo string                 `json:"merchant_order_no" binding:"required"`
	Amount          int64                  `json:"amount" binding:"required,gt=0"`
	ClientIP        string                 `json:"client_ip" binding:"required"`
	Subject         string                 `json:"subject" binding:"required"`
	Body            string                 `json:"body" binding:"required"`
	Currency        string                 `json:"currency" binding:"required"`
	TimeExpire      int64                  `json:"time_expire" binding:"required"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// CreateChargeRequest creates a Charge under an Order.
type CreateChargeRequest struct {
	ChargeAmount int64                `json:"charge_amount" binding:"required,gt=0"`
	Channel      string               `json:"channel" binding:"required"`
	Extra        provider.ChargeExtra `json:"extra"`
}

// AppRef nests the app id the way the upstream basic API does.
type AppRef struct {
	ID string `json:"id" binding:"required"`
}

// CreateBasicChargeRequest creates a Charge directly under an App.
type CreateBasicChargeRequest struct {
	App             AppRef               `json:"app" binding:"required"`
	MerchantOrderNo string               `json:"order_no" binding:"required"`
	Channel         string               `json:"channel" binding:"required"`
	Amount          int64                `json:"amount" binding:"required,gt=0"`
	ClientIP        string               `json:"client_ip" binding:"required"`
	Currency        string               `json:"currency" binding:"required"`
	Subject         string               `json:"subject" binding:"required"`
	Body            string               `json:"body" binding:"required"`
	TimeExpire      int64                `json:"time_expire" binding:"required"`
	Extra           provider.ChargeExtra `json:"extra"`
}

// CreateOrderRefundRequest creates a Refund via the order surface. The
// upstream API names the charge id "charge" and the refund amount
// "charge_amount".
type CreateOrderRefundRequest struct {
	ChargeID      string `json:"charge" binding:"required"`
	RefundAmount  int64  `json:"charge_amount" binding:"required,gt=0"`
	Description   string `json:"description" binding:"required"`
	FundingSource string `json:"funding_source"`
}

// CreateRefundRequest creates a Refund via the charge surface.
type CreateRefundRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	Description   string `json:"description" binding:"required"`
	FundingSource string `json:"funding_source"`
}

// ListResponse is the uniform list envelope.
type ListResponse[T any] struct {
	Object  string `json:"object"`
	URL     string `json:"url"`
	HasMore bool   `json:"has_more"`
	Data    []T    `json:"data"`
}

// ChargeEssentials is the slim charge view embedded in order responses.
type ChargeEssentials struct {
	ID         string          `json:"id"`
	Object     string          `json:"object"`
	Channel    string          `json:"channel"`
	Amount     int64           `json:"amount"`
	Extra      json.RawMessage `json:"extra"`
	Credential json.RawMessage `json:"credential"`
}

// OrderResponse is the public order object.
type OrderResponse struct {
	ID               string                          `json:"id"`
	Object           string                          `json:"object"`
	Created          int64                           `json:"created"`
	App              string                          `json:"app"`
	ReceiptApp       string                          `json:"receipt_app"`
	ServiceApp       string                          `json:"service_app"`
	UID              string                          `json:"uid"`
	MerchantOrderNo  string                          `json:"merchant_order_no"`
	Status           string                          `json:"status"`
	Paid             bool                            `json:"paid"`
	Refunded         bool                            `json:"refunded"`
	Amount           int64                           `json:"amount"`
	AmountPaid       int64                           `json:"amount_paid"`
	AmountRefunded   int64                           `json:"amount_refunded"`
	ClientIP         string                          `json:"client_ip"`
	Subject          string                          `json:"subject"`
	Body             string                          `json:"body"`
	Currency         string                          `json:"currency"`
	TimePaid         *int64                          `json:"time_paid"`
	TimeExpire       int64                           `json:"time_expire"`
	Metadata         json.RawMessage                 `json:"metadata"`
	Charges          ListResponse[*ChargeEssentials] `json:"charges"`
	ChargeEssentials *ChargeEssentials               `json:"charge_essentials,omitempty"`
}

// ChargeResponse is the public charge object used by the basic API.
// order_no mirrors merchant_order_no; the upstream API exposes both.
type ChargeResponse struct {
	ID              string          `json:"id"`
	Object          string          `json:"object"`
	Created         int64           `json:"created"`
	App             string          `json:"app"`
	Channel         string          `json:"channel"`
	OrderNo         string          `json:"order_no"`
	MerchantOrderNo string          `json:"merchant_order_no"`
	Paid            bool            `json:"paid"`
	Amount          int64           `json:"amount"`
	ClientIP        string          `json:"client_ip"`
	Subject         string          `json:"subject"`
	Body            string          `json:"body"`
	Currency        string          `json:"currency"`
	Extra           json.RawMessage `json:"extra"`
	Credential      json.RawMessage `json:"credential"`
	TimeExpire      int64           `json:"time_expire"`
	TimePaid        *int64          `json:"time_paid"`
	FailureCode     *string         `json:"failure_code"`
	FailureMsg      *string         `json:"failure_msg"`
}

// RefundResponse is the public refund object. order_no carries the
// refund's own merchant number, charge_order_no the charge's.
type RefundResponse struct {
	ID            string          `json:"id"`
	Object        string          `json:"object"`
	Created       int64           `json:"created"`
	App           string          `json:"app"`
	OrderNo       string          `json:"order_no"`
	Amount        int64           `json:"amount"`
	Succeed       bool            `json:"succeed"`
	Status        string          `json:"status"`
	Description   string          `json:"description"`
	Charge        string          `json:"charge"`
	ChargeOrderNo string          `json:"charge_order_no"`
	TimeSucceed   *int64          `json:"time_succeed"`
	FailureCode   *string         `json:"failure_code"`
	FailureMsg    *string         `json:"failure_msg"`
	Extra         json.RawMessage `json:"extra"`
}

// OrderToResponse builds the order object. essentials, when non-nil,
// is inlined as charge_essentials; pass the newest charge.
func OrderToResponse(order *Order, charges []*Charge, essentials *Charge) *OrderResponse {
	data := make([]*ChargeEssentials, 0, len(charges))
	for _, c := range charges {
		data = append(data, ChargeToEssentials(c))
	}
	resp := &OrderResponse{
		ID:              order.ID,
		Object:          "order",
		Created:         order.CreatedAt.Unix(),
		App:             order.AppID,
		ReceiptApp:      order.SubAppID,
		ServiceApp:      order.SubAppID,
		UID:             order.UID,
		MerchantOrderNo: order.MerchantOrderNo,
		Status:          order.Status,
		Paid:            order.Paid,
		Refunded:        order.Refunded,
		Amount:          order.Amount,
		AmountPaid:      order.AmountPaid,
		AmountRefunded:  order.AmountRefunded,
		ClientIP:        order.ClientIP,
		Subject:         order.Subject,
		Body:            order.Body,
		Currency:        order.Currency,
		TimePaid:        order.TimePaid,
		TimeExpire:      order.TimeExpire,
		Metadata:        rawJSON(order.Metadata),
		Charges: ListResponse[*ChargeEssentials]{
			Object:  "list",
			URL:     "/v1/charges",
			HasMore: false,
			Data:    data,
		},
	}
	if essentials != nil {
		resp.ChargeEssentials = ChargeToEssentials(essentials)
	}
	return resp
}

// ChargeToEssentials builds the slim charge view.
func ChargeToEssentials(c *Charge) *ChargeEssentials {
	return &ChargeEssentials{
		ID:         c.ID,
		Object:     "charge",
		Channel:    c.Channel,
		Amount:     c.Amount,
		Extra:      rawJSON(c.Extra),
		Credential: rawJSON(c.Credential),
	}
}

// ChargeToResponse builds the full charge object.
func ChargeToResponse(c *Charge) *ChargeResponse {
	return &ChargeResponse{
		ID:              c.ID,
		Object:          "charge",
		Created:         c.CreatedAt.Unix(),
		App:             c.AppID,
		Channel:         c.Channel,
		OrderNo:         c.MerchantOrderNo,
		MerchantOrderNo: c.MerchantOrderNo,
		Paid:            c.Paid,
		Amount:          c.Amount,
		ClientIP:        c.ClientIP,
		Subject:         c.Subject,
		Body:            c.Body,
		Currency:        c.Currency,
		Extra:           rawJSON(c.Extra),
		Credential:      rawJSON(c.Credential),
		TimeExpire:      c.TimeExpire,
		TimePaid:        c.TimePaid,
		FailureCode:     c.FailureCode,
		FailureMsg:      c.FailureMsg,
	}
}

// RefundToResponse builds the refund object.
func RefundToResponse(refund *Refund, charge *Charge) *RefundResponse {
	return &RefundResponse{
		ID:            refund.ID,
		Object:        "refund",
		Created:       refund.CreatedAt.Unix(),
		App:           refund.AppID,
		OrderNo:       refund.MerchantOrderNo,
		Amount:        refund.Amount,
		Succeed:       refund.Status == RefundStatusSucceeded,
		Status:        refund.Status,
		Description:   refund.Description,
		Charge:        charge.ID,
		ChargeOrderNo: charge.MerchantOrderNo,
		TimeSucceed:   refund.TimeSucceed,
		FailureCode:   refund.FailureCode,
		FailureMsg:    refund.FailureMsg,
		Extra:         rawJSON(refund.Extra),
	}
}

func rawJSON(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(s)
}
