package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quanpay/server/internal/module/payment/provider"
)

// Handler handles the /v1 order and charge API.
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("/:order_id", h.GetOrder)
		orders.POST("/:order_id/pay", h.PayOrder)
		orders.POST("/:order_id/order_refunds", h.CreateOrderRefund)
		orders.GET("/:order_id/order_refunds/:refund_id", h.GetOrderRefund)
	}
	charges := r.Group("/charges")
	{
		charges.POST("", h.CreateCharge)
		charges.GET("/:charge_id", h.GetCharge)
		charges.POST("/:charge_id/refunds", h.CreateRefund)
		charges.GET("/:charge_id/refunds/:refund_id", h.GetRefund)
	}
}

// CreateOrder creates an order under a sub-app.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		handlePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetOrder returns an order with its charges.
func (h *Handler) GetOrder(c *gin.Context) {
	resp, err := h.service.GetOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		handlePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// PayOrder creates a charge for the order on the requested channel and
// returns the order with the payment credential inlined.
func (h *Handler) PayOrder(c *gin.Context) {
	var req CreateChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.CreateOrderCharge(c.Request.Context(), c.Param("order_id"), &req)
	if err != nil {
		handlePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateOrderRefund refunds a charge of the order.
func (h *Handler) CreateOrderRefund(c *gin.Context) {
	var req CreateOrderRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.CreateOrderRefund(c.Request.Context(), c.Param("order_id"), &req)
	if err != nil {
		handlePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetOrderRefund returns a refund scoped to the order.
func (h *Handler) GetOrderRefund(c *gin.Context) {
	resp, err := h.service.GetOrderRefund(c.Request.Context(), c.Param("order_id"), c.Param("refund_id"))
	if err != nil {
		handlePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateCharge creates a standalone charge under an app.
func (h *Handler) CreateCharge(c *gin.Context) {
	var req CreateBasicChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.CreateCharge(c.Request.Context(), &req)
	if err != nil {
		handlePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetCharge returns a charge by ID.
func (h *Handler) GetCharge(c *gin.Context) {
	resp, err := h.service.GetCharge(c.Request.Context(), c.Param("charge_id"))
	if err != nil {
		handlePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateRefund refunds a charge.
func (h *Handler) CreateRefund(c *gin.Context) {
	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.CreateChargeRefund(c.Request.Context(), c.Param("charge_id"), &req)
	if err != nil {
		handlePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetRefund returns a refund scoped to the charge.
func (h *Handler) GetRefund(c *gin.Context) {
	resp, err := h.service.GetChargeRefund(c.Request.Context(), c.Param("charge_id"), c.Param("refund_id"))
	if err != nil {
		handlePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func handlePaymentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrChargeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrRefundNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, provider.ErrMalformedRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, provider.ErrUnknownChannel):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, provider.ErrInvalidConfig):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case errors.Is(err, provider.ErrChannelAPI):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
