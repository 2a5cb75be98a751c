package merchant

import "errors"

// Module errors.
var (
	ErrAppNotFound           = errors.New("app not found")
	ErrSubAppNotFound        = errors.New("sub-app not found")
	ErrChannelParamsNotFound = errors.New("channel params not found")
	ErrEndpointNotFound      = errors.New("webhook endpoint not found")

	// ErrInvalidParams marks a channel params bag that fails the
	// channel's schema on upsert.
	ErrInvalidParams = errors.New("invalid channel params")

	// ErrInvalidEndpoint marks a webhook endpoint registration with an
	// unusable URL.
	ErrInvalidEndpoint = errors.New("invalid webhook endpoint")
)
