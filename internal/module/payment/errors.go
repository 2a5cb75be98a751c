package payment

import "errors"

// Module errors.
var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrChargeNotFound  = errors.New("charge not found")
	ErrRefundNotFound  = errors.New("refund not found")
	ErrHistoryNotFound = errors.New("notify history not found")

	// ErrBadRequest marks caller mistakes beyond binding failures, such
	// as a refund looked up under an order it does not belong to.
	ErrBadRequest = errors.New("bad request")
)
