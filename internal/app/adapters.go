package app

import (
	"context"
	"encoding/json"

	"github.com/quanpay/server/internal/module/merchant"
	"github.com/quanpay/server/internal/module/payment"
)

// merchantReaderAdapter adapts the merchant Service to the payment.MerchantReader
// interface. The adapter is defined in the app package to avoid cyclic imports
// between modules.
type merchantReaderAdapter struct {
	service *merchant.Service
}

// newMerchantReaderAdapter creates a new adapter for the payment module.
func newMerchantReaderAdapter(service *merchant.Service) *merchantReaderAdapter {
	return &merchantReaderAdapter{service: service}
}

// GetApp returns a slim view of the merchant app.
func (a *merchantReaderAdapter) GetApp(ctx context.Context, appID string) (*payment.AppInfo, error) {
	app, err := a.service.GetApp(ctx, appID)
	if err != nil {
		return nil, err
	}
	return &payment.AppInfo{
		ID:   app.ID,
		Name: app.Name,
	}, nil
}

// GetSubApp returns a slim view of a sub-app under the given app.
func (a *merchantReaderAdapter) GetSubApp(ctx context.Context, appID, subAppID string) (*payment.SubAppInfo, error) {
	subApp, err := a.service.GetSubApp(ctx, appID, subAppID)
	if err != nil {
		return nil, err
	}
	return &payment.SubAppInfo{
		ID:    subApp.ID,
		AppID: subApp.AppID,
		Name:  subApp.Name,
	}, nil
}

// ResolveChannelParams returns the params bag for the channel, preferring a
// sub-app scoped row over an app scoped one.
func (a *merchantReaderAdapter) ResolveChannelParams(ctx context.Context, appID, subAppID, channel string) (json.RawMessage, error) {
	return a.service.ResolveChannelParams(ctx, appID, subAppID, channel)
}

// ListWebhookEndpoints returns the app's registered webhook destinations.
func (a *merchantReaderAdapter) ListWebhookEndpoints(ctx context.Context, appID string) ([]*payment.WebhookEndpointInfo, error) {
	endpoints, err := a.service.ListWebhookEndpoints(ctx, appID)
	if err != nil {
		return nil, err
	}

	infos := make([]*payment.WebhookEndpointInfo, 0, len(endpoints))
	for _, endpoint := range endpoints {
		infos = append(infos, &payment.WebhookEndpointInfo{
			URL:           endpoint.URL,
			EnabledEvents: endpoint.EnabledEvents,
		})
	}
	return infos, nil
}

// Compile-time check
var _ payment.MerchantReader = (*merchantReaderAdapter)(nil)
