package merchant

import (
	"time"

	"github.com/lib/pq"
)

// App is a merchant account. Every order, charge and webhook endpoint
// hangs off one app.
type App struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (App) TableName() string {
	return "apps"
}

// SubApp is a receipt entity under an app. Orders reference a sub-app
// and channel params may be scoped to one.
type SubApp struct {
	ID        string `gorm:"primaryKey"`
	AppID     string `gorm:"index;not null"`
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (SubApp) TableName() string {
	return "sub_apps"
}

// ChannelParams holds one channel's opaque credential bag within an
// (app, sub-app) scope. An empty SubAppID scopes the row to the app
// itself; empty rather than NULL so the scope index stays unique.
type ChannelParams struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	AppID     string `gorm:"uniqueIndex:idx_channel_params_scope;not null"`
	SubAppID  string `gorm:"uniqueIndex:idx_channel_params_scope"`
	Channel   string `gorm:"uniqueIndex:idx_channel_params_scope;not null"`
	Params    string `gorm:"type:jsonb;default:'{}'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the database table name.
func (ChannelParams) TableName() string {
	return "channel_params"
}

// WebhookEndpoint is a registered receiver for the app's event webhooks.
// An empty EnabledEvents list subscribes the endpoint to every event.
type WebhookEndpoint struct {
	ID            int64          `gorm:"primaryKey;autoIncrement"`
	AppID         string         `gorm:"index;not null"`
	URL           string         `gorm:"not null"`
	EnabledEvents pq.StringArray `gorm:"type:text[]"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName returns the database table name.
func (WebhookEndpoint) TableName() string {
	return "app_webhook_endpoints"
}
