package merchant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/quanpay/server/internal/utils/identifier"
)

// Service implements merchant account management: apps, sub-apps, the
// per-channel params console and webhook endpoint registration.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new merchant service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateApp provisions a merchant app.
func (s *Service) CreateApp(ctx context.Context, name string) (*App, error) {
	app := &App{
		ID:   identifier.NewApp(),
		Name: name,
	}
	if err := s.repo.CreateApp(ctx, app); err != nil {
		return nil, err
	}
	s.logger.Info("app created",
		zap.String("app_id", app.ID),
		zap.String("name", app.Name))
	return app, nil
}

// CreateSubApp provisions a sub-app under an existing app.
func (s *Service) CreateSubApp(ctx context.Context, appID, name string) (*SubApp, error) {
	if _, err := s.repo.GetApp(ctx, appID); err != nil {
		return nil, err
	}
	subApp := &SubApp{
		ID:    identifier.NewSubApp(),
		AppID: appID,
		Name:  name,
	}
	if err := s.repo.CreateSubApp(ctx, subApp); err != nil {
		return nil, err
	}
	s.logger.Info("sub-app created",
		zap.String("app_id", appID),
		zap.String("sub_app_id", subApp.ID),
		zap.String("name", subApp.Name))
	return subApp, nil
}

// GetApp returns an app by id.
func (s *Service) GetApp(ctx context.Context, appID string) (*App, error) {
	return s.repo.GetApp(ctx, appID)
}

// GetSubApp returns a sub-app under the given app.
func (s *Service) GetSubApp(ctx context.Context, appID, subAppID string) (*SubApp, error) {
	return s.repo.GetSubApp(ctx, appID, subAppID)
}

// RetrieveSubApp returns the API view of a sub-app, with the channels
// configured in its scope as available_methods.
func (s *Service) RetrieveSubApp(ctx context.Context, appID, subAppID string) (*SubAppResponse, error) {
	subApp, err := s.repo.GetSubApp(ctx, appID, subAppID)
	if err != nil {
		return nil, err
	}
	channels, err := s.repo.ListChannelParams(ctx, appID, subAppID)
	if err != nil {
		return nil, err
	}
	return SubAppToResponse(subApp, channels), nil
}

// UpsertChannelParams validates a params bag against the channel schema
// and stores it in the (app, sub-app) scope. An empty subAppID stores
// the bag at app level.
func (s *Service) UpsertChannelParams(ctx context.Context, appID, subAppID, channel string, params json.RawMessage) (*ChannelParamsResponse, error) {
	if subAppID != "" {
		if _, err := s.repo.GetSubApp(ctx, appID, subAppID); err != nil {
			return nil, err
		}
	} else if _, err := s.repo.GetApp(ctx, appID); err != nil {
		return nil, err
	}
	if err := ValidateChannelParams(channel, params); err != nil {
		return nil, err
	}

	row := &ChannelParams{
		AppID:    appID,
		SubAppID: subAppID,
		Channel:  channel,
		Params:   string(params),
	}
	if err := s.repo.UpsertChannelParams(ctx, row); err != nil {
		return nil, err
	}
	s.logger.Info("channel params upserted",
		zap.String("app_id", appID),
		zap.String("sub_app_id", subAppID),
		zap.String("channel", channel))
	return ChannelParamsToResponse(row), nil
}

// ResolveChannelParams returns the params bag for a channel within the
// (app, sub-app) scope. A sub-app scoped row wins over an app-scoped
// one; subAppID may be empty for app-level lookups.
func (s *Service) ResolveChannelParams(ctx context.Context, appID, subAppID, channel string) (json.RawMessage, error) {
	if subAppID != "" {
		row, err := s.repo.GetChannelParams(ctx, appID, subAppID, channel)
		if err == nil {
			return json.RawMessage(row.Params), nil
		}
		if !errors.Is(err, ErrChannelParamsNotFound) {
			return nil, err
		}
	}
	row, err := s.repo.GetChannelParams(ctx, appID, "", channel)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(row.Params), nil
}

// CreateWebhookEndpoint registers a webhook receiver for the app. An
// empty enabledEvents subscribes it to every event type.
func (s *Service) CreateWebhookEndpoint(ctx context.Context, appID, rawURL string, enabledEvents []string) (*WebhookEndpointResponse, error) {
	if _, err := s.repo.GetApp(ctx, appID); err != nil {
		return nil, err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: url must be absolute http(s)", ErrInvalidEndpoint)
	}

	endpoint := &WebhookEndpoint{
		AppID:         appID,
		URL:           rawURL,
		EnabledEvents: enabledEvents,
	}
	if err := s.repo.CreateWebhookEndpoint(ctx, endpoint); err != nil {
		return nil, err
	}
	s.logger.Info("webhook endpoint created",
		zap.String("app_id", appID),
		zap.Int64("endpoint_id", endpoint.ID),
		zap.String("url", endpoint.URL))
	return EndpointToResponse(endpoint), nil
}

// ListWebhookEndpointResponses returns the app's endpoints in the list
// envelope.
func (s *Service) ListWebhookEndpointResponses(ctx context.Context, appID string) (*ListResponse[*WebhookEndpointResponse], error) {
	if _, err := s.repo.GetApp(ctx, appID); err != nil {
		return nil, err
	}
	endpoints, err := s.repo.ListWebhookEndpoints(ctx, appID)
	if err != nil {
		return nil, err
	}
	data := make([]*WebhookEndpointResponse, 0, len(endpoints))
	for _, endpoint := range endpoints {
		data = append(data, EndpointToResponse(endpoint))
	}
	return &ListResponse[*WebhookEndpointResponse]{
		Object:  "list",
		URL:     fmt.Sprintf("/v1/apps/%s/webhook_endpoints", appID),
		HasMore: false,
		Data:    data,
	}, nil
}

// ListWebhookEndpoints returns the app's raw endpoint rows.
func (s *Service) ListWebhookEndpoints(ctx context.Context, appID string) ([]*WebhookEndpoint, error) {
	return s.repo.ListWebhookEndpoints(ctx, appID)
}

// GetWebhookEndpoint returns one endpoint of the app.
func (s *Service) GetWebhookEndpoint(ctx context.Context, appID string, id int64) (*WebhookEndpointResponse, error) {
	endpoint, err := s.repo.GetWebhookEndpoint(ctx, appID, id)
	if err != nil {
		return nil, err
	}
	return EndpointToResponse(endpoint), nil
}

// DeleteWebhookEndpoint removes one endpoint of the app.
func (s *Service) DeleteWebhookEndpoint(ctx context.Context, appID string, id int64) error {
	if err := s.repo.DeleteWebhookEndpoint(ctx, appID, id); err != nil {
		return err
	}
	s.logger.Info("webhook endpoint deleted",
		zap.String("app_id", appID),
		zap.Int64("endpoint_id", id))
	return nil
}
