package merchant

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the interface for merchant data access.
type Repository interface {
	// App operations
	CreateApp(ctx context.Context, app *App) error
	GetApp(ctx context.Context, id string) (*App, error)

	// SubApp operations
	CreateSubApp(ctx context.Context, subApp *SubApp) error
	GetSubApp(ctx context.Context, appID, subAppID string) (*SubApp, error)

	// ChannelParams operations
	UpsertChannelParams(ctx context.Context, params *ChannelParams) error
	GetChannelParams(ctx context.Context, appID, subAppID, channel string) (*ChannelParams, error)
	ListChannelParams(ctx context.Context, appID, subAppID string) ([]*ChannelParams, error)

	// WebhookEndpoint operations
	CreateWebhookEndpoint(ctx context.Context, endpoint *WebhookEndpoint) error
	GetWebhookEndpoint(ctx context.Context, appID string, id int64) (*WebhookEndpoint, error)
	ListWebhookEndpoints(ctx context.Context, appID string) ([]*WebhookEndpoint, error)
	DeleteWebhookEndpoint(ctx context.Context, appID string, id int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new merchant repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// --- App Operations ---

func (r *repository) CreateApp(ctx context.Context, app *App) error {
	if err := r.db.WithContext(ctx).Create(app).Error; err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	return nil
}

func (r *repository) GetApp(ctx context.Context, id string) (*App, error) {
	var app App
	err := r.db.WithContext(ctx).First(&app, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, fmt.Errorf("get app: %w", err)
	}
	return &app, nil
}

// --- SubApp Operations ---

func (r *repository) CreateSubApp(ctx context.Context, subApp *SubApp) error {
	if err := r.db.WithContext(ctx).Create(subApp).Error; err != nil {
		return fmt.Errorf("create sub-app: %w", err)
	}
	return nil
}

func (r *repository) GetSubApp(ctx context.Context, appID, subAppID string) (*SubApp, error) {
	var subApp SubApp
	err := r.db.WithContext(ctx).
		First(&subApp, "id = ? AND app_id = ?", subAppID, appID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubAppNotFound
		}
		return nil, fmt.Errorf("get sub-app: %w", err)
	}
	return &subApp, nil
}

// --- ChannelParams Operations ---

func (r *repository) UpsertChannelParams(ctx context.Context, params *ChannelParams) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "app_id"}, {Name: "sub_app_id"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns([]string{"params", "updated_at"}),
		}).
		Create(params).Error
	if err != nil {
		return fmt.Errorf("upsert channel params: %w", err)
	}
	return nil
}

func (r *repository) GetChannelParams(ctx context.Context, appID, subAppID, channel string) (*ChannelParams, error) {
	var params ChannelParams
	err := r.db.WithContext(ctx).
		Where("app_id = ? AND sub_app_id = ? AND channel = ?", appID, subAppID, channel).
		First(&params).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChannelParamsNotFound
		}
		return nil, fmt.Errorf("get channel params: %w", err)
	}
	return &params, nil
}

func (r *repository) ListChannelParams(ctx context.Context, appID, subAppID string) ([]*ChannelParams, error) {
	var rows []*ChannelParams
	err := r.db.WithContext(ctx).
		Where("app_id = ? AND sub_app_id = ?", appID, subAppID).
		Order("channel ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list channel params: %w", err)
	}
	return rows, nil
}

// --- WebhookEndpoint Operations ---

func (r *repository) CreateWebhookEndpoint(ctx context.Context, endpoint *WebhookEndpoint) error {
	if err := r.db.WithContext(ctx).Create(endpoint).Error; err != nil {
		return fmt.Errorf("create webhook endpoint: %w", err)
	}
	return nil
}

func (r *repository) GetWebhookEndpoint(ctx context.Context, appID string, id int64) (*WebhookEndpoint, error) {
	var endpoint WebhookEndpoint
	err := r.db.WithContext(ctx).
		Where("id = ? AND app_id = ?", id, appID).
		First(&endpoint).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEndpointNotFound
		}
		return nil, fmt.Errorf("get webhook endpoint: %w", err)
	}
	return &endpoint, nil
}

func (r *repository) ListWebhookEndpoints(ctx context.Context, appID string) ([]*WebhookEndpoint, error) {
	var endpoints []*WebhookEndpoint
	err := r.db.WithContext(ctx).
		Where("app_id = ?", appID).
		Order("id ASC").
		Find(&endpoints).Error
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	return endpoints, nil
}

func (r *repository) DeleteWebhookEndpoint(ctx context.Context, appID string, id int64) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND app_id = ?", id, appID).
		Delete(&WebhookEndpoint{})
	if result.Error != nil {
		return fmt.Errorf("delete webhook endpoint: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEndpointNotFound
	}
	return nil
}
