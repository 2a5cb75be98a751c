package merchant

import "encoding/json"

// UpdateChannelRequest carries the params bag for the channel named in
// the URL.
type UpdateChannelRequest struct {
	Params json.RawMessage `json:"params" binding:"required"`
}

// UpsertChannelRequest carries both the channel tag and its params bag.
type UpsertChannelRequest struct {
	Channel string          `json:"channel" binding:"required"`
	Params  json.RawMessage `json:"params" binding:"required"`
}

// CreateEndpointRequest registers a webhook endpoint. An absent
// enabled_events subscribes the endpoint to every event type.
type CreateEndpointRequest struct {
	URL           string   `json:"url" binding:"required"`
	EnabledEvents []string `json:"enabled_events"`
}

// ListResponse is the uniform list envelope.
type ListResponse[T any] struct {
	Object  string `json:"object"`
	URL     string `json:"url"`
	HasMore bool   `json:"has_more"`
	Data    []T    `json:"data"`
}

// SubAppResponse is the API view of a sub-app. AvailableMethods lists
// the channel tags with params configured in the sub-app's scope.
type SubAppResponse struct {
	ID               string         `json:"id"`
	Object           string         `json:"object"`
	Created          int64          `json:"created"`
	DisplayName      string         `json:"display_name"`
	ParentApp        string         `json:"parent_app"`
	AvailableMethods []string       `json:"available_methods"`
	Metadata         map[string]any `json:"metadata"`
}

// ChannelParamsResponse echoes an upserted params bag.
type ChannelParamsResponse struct {
	Object  string          `json:"object"`
	Channel string          `json:"channel"`
	Params  json.RawMessage `json:"params"`
}

// WebhookEndpointResponse is the API view of a webhook endpoint.
type WebhookEndpointResponse struct {
	ID            int64    `json:"id"`
	Object        string   `json:"object"`
	Created       int64    `json:"created"`
	URL           string   `json:"url"`
	EnabledEvents []string `json:"enabled_events"`
}

// SubAppToResponse converts a sub-app and its configured channels to the
// API shape.
func SubAppToResponse(subApp *SubApp, channels []*ChannelParams) *SubAppResponse {
	methods := make([]string, 0, len(channels))
	for _, row := range channels {
		methods = append(methods, row.Channel)
	}
	return &SubAppResponse{
		ID:               subApp.ID,
		Object:           "sub_app",
		Created:          subApp.CreatedAt.Unix(),
		DisplayName:      subApp.Name,
		ParentApp:        subApp.AppID,
		AvailableMethods: methods,
		Metadata:         map[string]any{},
	}
}

// ChannelParamsToResponse converts a stored params row to the API shape.
func ChannelParamsToResponse(row *ChannelParams) *ChannelParamsResponse {
	return &ChannelParamsResponse{
		Object:  "channel_params",
		Channel: row.Channel,
		Params:  json.RawMessage(row.Params),
	}
}

// EndpointToResponse converts a webhook endpoint to the API shape.
func EndpointToResponse(endpoint *WebhookEndpoint) *WebhookEndpointResponse {
	events := endpoint.EnabledEvents
	if events == nil {
		events = []string{}
	}
	return &WebhookEndpointResponse{
		ID:            endpoint.ID,
		Object:        "webhook_endpoint",
		Created:       endpoint.CreatedAt.Unix(),
		URL:           endpoint.URL,
		EnabledEvents: events,
	}
}
