package payment

import (
	"context"
	"encoding/json"
)

// MerchantReader defines the slice of the merchant module that payment
// processing needs. The interface is declared in the payment module
// (consumer) following the Dependency Inversion Principle.
type MerchantReader interface {
	// GetApp returns the merchant app by id.
	GetApp(ctx context.Context, appID string) (*AppInfo, error)

	// GetSubApp returns a sub-app under the given app.
	GetSubApp(ctx context.Context, appID, subAppID string) (*SubAppInfo, error)

	// ResolveChannelParams returns the params bag for the channel within
	// the (app, sub-app) scope. A sub-app scoped row wins over an
	// app-scoped one. subAppID may be empty for the basic API.
	ResolveChannelParams(ctx context.Context, appID, subAppID, channel string) (json.RawMessage, error)

	// ListWebhookEndpoints returns the app's registered webhook
	// destinations.
	ListWebhookEndpoints(ctx context.Context, appID string) ([]*WebhookEndpointInfo, error)
}

// AppInfo is a slim view of the merchant App.
type AppInfo struct {
	ID   string
	Name string
}

// SubAppInfo is a slim view of a SubApp.
type SubAppInfo struct {
	ID    string
	AppID string
	Name  string
}

// WebhookEndpointInfo describes one registered webhook destination. An
// empty EnabledEvents list delivers every event type.
type WebhookEndpointInfo struct {
	URL           string
	EnabledEvents []string
}

// ReplayGuard deduplicates successful notify transitions. The guard is
// advisory: database state stays authoritative and the pipeline
// re-checks it before acting on a callback.
type ReplayGuard interface {
	// MarkProcessed records the key and reports whether this call was
	// the first to do so.
	MarkProcessed(ctx context.Context, key string) (bool, error)
}
