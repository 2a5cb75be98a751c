package payment

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-pay/crypto/xpem"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/quanpay/server/internal/utils/identifier"
)

// Webhook event types.
const (
	EventChargeSucceeded = "charge.succeeded"
	EventOrderSucceeded  = "order.succeeded"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	webhookSignatureKey   = "X-PingPlusPlus-Signature"
	maxWebhookResponse    = 4096
)

// WebhookEmitter signs event envelopes and delivers them to every
// endpoint the app registered, recording one history row per attempt.
type WebhookEmitter struct {
	merchants MerchantReader
	repo      Repository
	key       *rsa.PrivateKey
	client    *http.Client
	logger    *zap.Logger

	// delivered counts deliveries by event type and outcome. nil skips
	// the metric.
	delivered *prometheus.CounterVec
}

// NewWebhookEmitter builds an emitter around the platform signing key.
func NewWebhookEmitter(
	merchants MerchantReader,
	repo Repository,
	privateKeyPEM string,
	timeout time.Duration,
	logger *zap.Logger,
	delivered *prometheus.CounterVec,
) (*WebhookEmitter, error) {
	if privateKeyPEM == "" {
		return nil, fmt.Errorf("webhook signing key not configured")
	}
	key, err := xpem.DecodePrivateKey([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("decode webhook signing key: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookEmitter{
		merchants: merchants,
		repo:      repo,
		key:       key,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
		delivered: delivered,
	}, nil
}

// Emit delivers eventType carrying object to every endpoint of the app
// that subscribes to it. Each endpoint gets its own event envelope so
// every history row has a distinct event ID.
func (w *WebhookEmitter) Emit(ctx context.Context, appID, eventType string, object any) {
	endpoints, err := w.merchants.ListWebhookEndpoints(ctx, appID)
	if err != nil {
		w.logger.Error("list webhook endpoints",
			zap.String("app", appID),
			zap.Error(err))
		return
	}
	for _, endpoint := range endpoints {
		if !endpointWants(endpoint, eventType) {
			continue
		}
		w.deliver(ctx, appID, endpoint.URL, eventType, object)
	}
}

// endpointWants reports whether the endpoint subscribes to eventType.
// An empty enabled list means every event.
func endpointWants(endpoint *WebhookEndpointInfo, eventType string) bool {
	if len(endpoint.EnabledEvents) == 0 {
		return true
	}
	for _, enabled := range endpoint.EnabledEvents {
		if enabled == eventType || enabled == "*" {
			return true
		}
	}
	return false
}

func (w *WebhookEmitter) deliver(ctx context.Context, appID, url, eventType string, object any) {
	eventID := identifier.NewEvent()
	envelope := map[string]any{
		"id":      eventID,
		"object":  "event",
		"created": time.Now().Unix(),
		"type":    eventType,
		"data":    map[string]any{"object": object},
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		w.logger.Error("marshal webhook event",
			zap.String("event_id", eventID),
			zap.Error(err))
		return
	}

	// The signature covers the exact bytes on the wire; receivers verify
	// against the body before parsing it.
	digest := sha256.Sum256(payload)
	signature, err := rsa.SignPKCS1v15(rand.Reader, w.key, crypto.SHA256, digest[:])
	if err != nil {
		w.logger.Error("sign webhook event",
			zap.String("event_id", eventID),
			zap.Error(err))
		return
	}

	history := &AppWebhookHistory{
		ID:        eventID,
		AppID:     appID,
		Endpoint:  url,
		EventType: eventType,
		Payload:   string(payload),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		history.StatusCode = http.StatusInternalServerError
		history.Response = err.Error()
		w.finish(ctx, history, "error")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhookSignatureKey, base64.StdEncoding.EncodeToString(signature))

	resp, err := w.client.Do(req)
	if err != nil {
		history.StatusCode = http.StatusInternalServerError
		history.Response = err.Error()
		w.finish(ctx, history, "error")
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
	history.StatusCode = resp.StatusCode
	history.Response = string(body)

	outcome := "delivered"
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "rejected"
	}
	w.finish(ctx, history, outcome)
}

func (w *WebhookEmitter) finish(ctx context.Context, history *AppWebhookHistory, outcome string) {
	if err := w.repo.CreateWebhookHistory(ctx, history); err != nil {
		w.logger.Error("record webhook history",
			zap.String("event_id", history.ID),
			zap.Error(err))
	}
	if w.delivered != nil {
		w.delivered.WithLabelValues(history.EventType, outcome).Inc()
	}
	if outcome == "delivered" {
		w.logger.Info("webhook delivered",
			zap.String("event_id", history.ID),
			zap.String("endpoint", history.Endpoint),
			zap.String("event_type", history.EventType),
			zap.Int("status", history.StatusCode))
		return
	}
	w.logger.Warn("webhook delivery failed",
		zap.String("event_id", history.ID),
		zap.String("endpoint", history.Endpoint),
		zap.String("event_type", history.EventType),
		zap.Int("status", history.StatusCode))
}
