package merchant

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler handles the /v1/apps administration API.
type Handler struct {
	service *Service
}

// NewHandler creates a new merchant handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the merchant routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	apps := r.Group("/apps")
	{
		apps.GET("/:app_id/sub_apps/:sub_app_id", h.GetSubApp)
		apps.PUT("/:app_id/sub_apps/:sub_app_id/channels/:channel", h.UpdateChannel)
		apps.POST("/:app_id/sub_apps/:sub_app_id/channels", h.UpsertChannel)

		apps.GET("/:app_id/webhook_endpoints", h.ListWebhookEndpoints)
		apps.POST("/:app_id/webhook_endpoints", h.CreateWebhookEndpoint)
		apps.GET("/:app_id/webhook_endpoints/:endpoint_id", h.GetWebhookEndpoint)
		apps.DELETE("/:app_id/webhook_endpoints/:endpoint_id", h.DeleteWebhookEndpoint)
	}
}

// GetSubApp returns a sub-app with its available payment methods.
func (h *Handler) GetSubApp(c *gin.Context) {
	resp, err := h.service.RetrieveSubApp(c.Request.Context(), c.Param("app_id"), c.Param("sub_app_id"))
	if err != nil {
		handleMerchantError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateChannel upserts the params bag for the channel named in the URL.
func (h *Handler) UpdateChannel(c *gin.Context) {
	var req UpdateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.UpsertChannelParams(c.Request.Context(),
		c.Param("app_id"), c.Param("sub_app_id"), c.Param("channel"), req.Params)
	if err != nil {
		handleMerchantError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpsertChannel upserts the params bag for the channel named in the body.
func (h *Handler) UpsertChannel(c *gin.Context) {
	var req UpsertChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.UpsertChannelParams(c.Request.Context(),
		c.Param("app_id"), c.Param("sub_app_id"), req.Channel, req.Params)
	if err != nil {
		handleMerchantError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListWebhookEndpoints returns the app's registered webhook endpoints.
func (h *Handler) ListWebhookEndpoints(c *gin.Context) {
	resp, err := h.service.ListWebhookEndpointResponses(c.Request.Context(), c.Param("app_id"))
	if err != nil {
		handleMerchantError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateWebhookEndpoint registers a webhook endpoint for the app.
func (h *Handler) CreateWebhookEndpoint(c *gin.Context) {
	var req CreateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.CreateWebhookEndpoint(c.Request.Context(),
		c.Param("app_id"), req.URL, req.EnabledEvents)
	if err != nil {
		handleMerchantError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetWebhookEndpoint returns one webhook endpoint of the app.
func (h *Handler) GetWebhookEndpoint(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("endpoint_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endpoint id"})
		return
	}

	resp, err := h.service.GetWebhookEndpoint(c.Request.Context(), c.Param("app_id"), id)
	if err != nil {
		handleMerchantError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteWebhookEndpoint removes one webhook endpoint of the app.
func (h *Handler) DeleteWebhookEndpoint(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("endpoint_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endpoint id"})
		return
	}

	if err := h.service.DeleteWebhookEndpoint(c.Request.Context(), c.Param("app_id"), id); err != nil {
		handleMerchantError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": id})
}

func handleMerchantError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAppNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrSubAppNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrEndpointNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrChannelParamsNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidParams):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidEndpoint):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
