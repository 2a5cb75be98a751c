package payment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quanpay/server/internal/module/payment/provider"
)

// NotifyHandler handles asynchronous channel notifications. Responses
// are plain text: the channel only looks at the acknowledgement body.
type NotifyHandler struct {
	service *Service
	logger  *zap.Logger
}

// NewNotifyHandler creates a new notify handler.
func NewNotifyHandler(service *Service, logger *zap.Logger) *NotifyHandler {
	return &NotifyHandler{service: service, logger: logger}
}

// RegisterRoutes registers the inbound notify routes. These stay open;
// the channel gateways authenticate by signature, not by header.
func (h *NotifyHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/charges/:charge_id", h.ChargeNotify)
	r.POST("/charges/:charge_id/refunds/:refund_id", h.RefundNotify)
}

// RegisterRetryRoute registers the operator retry route. The caller
// mounts it behind API-key auth.
func (h *NotifyHandler) RegisterRetryRoute(r *gin.RouterGroup) {
	r.POST("/:history_id/retry", h.RetryNotify)
}

// ChargeNotify receives a payment notification from a channel gateway.
func (h *NotifyHandler) ChargeNotify(c *gin.Context) {
	chargeID := c.Param("charge_id")
	body, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, "read body: %v", err)
		return
	}
	h.logger.Info("charge notify received",
		zap.String("charge_id", chargeID),
		zap.Int("bytes", len(body)))

	ack, err := h.service.HandleChargeNotify(c.Request.Context(), chargeID, body)
	if err != nil {
		handleNotifyError(c, err)
		return
	}
	c.String(http.StatusOK, ack)
}

// RefundNotify receives a refund notification from a channel gateway.
func (h *NotifyHandler) RefundNotify(c *gin.Context) {
	chargeID := c.Param("charge_id")
	refundID := c.Param("refund_id")
	body, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, "read body: %v", err)
		return
	}
	h.logger.Info("refund notify received",
		zap.String("charge_id", chargeID),
		zap.String("refund_id", refundID),
		zap.Int("bytes", len(body)))

	ack, err := h.service.HandleRefundNotify(c.Request.Context(), chargeID, refundID, body)
	if err != nil {
		handleNotifyError(c, err)
		return
	}
	c.String(http.StatusOK, ack)
}

// RetryNotify re-runs a stored notification by history row ID.
func (h *NotifyHandler) RetryNotify(c *gin.Context) {
	historyID, err := strconv.ParseInt(c.Param("history_id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid history id")
		return
	}

	ack, err := h.service.RetryNotify(c.Request.Context(), historyID)
	if err != nil {
		handleNotifyError(c, err)
		return
	}
	c.String(http.StatusOK, ack)
}

// handleNotifyError writes the plain-text error the channel gateways
// expect. A failed signature check is the caller's fault here, so
// ErrChannelAPI maps to 400 on this surface.
func handleNotifyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrChargeNotFound):
		c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRefundNotFound):
		c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrOrderNotFound):
		c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrHistoryNotFound):
		c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBadRequest):
		c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, provider.ErrChannelAPI):
		c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, provider.ErrMalformedRequest):
		c.String(http.StatusBadRequest, err.Error())
	default:
		c.String(http.StatusInternalServerError, "internal server error")
	}
}
