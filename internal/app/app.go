package app

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quanpay/server/internal/module/merchant"
	"github.com/quanpay/server/internal/module/payment"
	"github.com/quanpay/server/internal/module/payment/provider"
	sharedcache "github.com/quanpay/server/internal/shared/cache"
	"github.com/quanpay/server/internal/shared/config"
	"github.com/quanpay/server/internal/shared/database"
	"github.com/quanpay/server/internal/shared/logger"
	"github.com/quanpay/server/internal/utils/metrics"
	"github.com/quanpay/server/internal/utils/middleware"
)

// App represents the application.
type App struct {
	config  *config.Config
	db      *gorm.DB
	redis   redis.UniversalClient
	router  *gin.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics

	// Modules
	merchantHandler *merchant.Handler
	paymentHandler  *payment.Handler
	notifyHandler   *payment.NotifyHandler

	// Services (for cross-module dependencies)
	merchantService *merchant.Service
	paymentService  *payment.Service
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	// Initialize logger
	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	app := &App{
		config: cfg,
		logger: log,
	}

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := database.Migrate(db,
		&merchant.App{},
		&merchant.SubApp{},
		&merchant.ChannelParams{},
		&merchant.WebhookEndpoint{},
		&payment.Order{},
		&payment.Charge{},
		&payment.Refund{},
		&payment.ChargeNotifyHistory{},
		&payment.AppWebhookHistory{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	// Initialize Redis (optional)
	if cfg.Redis.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
		if err != nil {
			// Redis is optional, log warning but continue
			log.Warn("redis connection failed, notify dedup and rate limiting disabled",
				zap.Error(err))
		} else {
			app.redis = redisClient
		}
	}

	// Initialize metrics
	app.metrics = metrics.New("quanpay")

	// Initialize router
	app.router = app.setupRouter()

	// Initialize modules
	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}

	// Register module routes
	app.registerRoutes()

	return app, nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	// Set Gin mode based on environment
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Apply global middleware
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Metrics(a.metrics))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// initModules initializes all application modules.
func (a *App) initModules() error {
	if err := a.initMerchantModule(); err != nil {
		return fmt.Errorf("init merchant module: %w", err)
	}
	if err := a.initPaymentModule(); err != nil {
		return fmt.Errorf("init payment module: %w", err)
	}
	return nil
}

// initMerchantModule initializes the merchant module.
func (a *App) initMerchantModule() error {
	repo := merchant.NewRepository(a.db)
	a.merchantService = merchant.NewService(repo, a.logger)
	a.merchantHandler = merchant.NewHandler(a.merchantService)
	return nil
}

// initPaymentModule initializes the payment module.
func (a *App) initPaymentModule() error {
	repo := payment.NewRepository(a.db)

	// Adapter for cross-module dependencies (Dependency Inversion Principle)
	merchantReader := newMerchantReaderAdapter(a.merchantService)

	// Channel environment shared by all handlers. The client timeout caps
	// every outbound call; the per-operation deadlines come from the
	// service contexts.
	clientTimeout := a.config.Gateway.ChargeTimeout
	if a.config.Gateway.RefundTimeout > clientTimeout {
		clientTimeout = a.config.Gateway.RefundTimeout
	}
	registry := provider.DefaultRegistry(provider.Env{
		APIBase: a.config.Gateway.APIBase,
		Client:  provider.NewClient(clientTimeout, a.logger),
	})

	// Webhook emitter; without a signing key outbound events are disabled
	var emitter *payment.WebhookEmitter
	if a.config.Gateway.WebhookPrivateKey != "" {
		var err error
		emitter, err = payment.NewWebhookEmitter(
			merchantReader,
			repo,
			a.config.Gateway.WebhookPrivateKey,
			a.config.Gateway.WebhookTimeout,
			a.logger,
			a.metrics.WebhookDeliveriesTotal,
		)
		if err != nil {
			return fmt.Errorf("create webhook emitter: %w", err)
		}
	} else {
		a.logger.Warn("webhook signing key not configured, outbound events disabled")
	}

	// Replay guard needs Redis; without it dedup relies on the database
	// state checks alone
	var guard payment.ReplayGuard
	if a.redis != nil {
		guard = payment.NewRedisReplayGuard(a.redis)
	}

	a.paymentService = payment.NewService(
		repo,
		merchantReader,
		registry,
		emitter,
		guard,
		a.config.Gateway.ChargeTimeout,
		a.config.Gateway.RefundTimeout,
		a.logger,
	)
	a.paymentHandler = payment.NewHandler(a.paymentService)
	a.notifyHandler = payment.NewNotifyHandler(a.paymentService, a.logger)
	return nil
}

// registerRoutes registers routes for all modules.
func (a *App) registerRoutes() {
	// API v1 group, guarded by the live key
	v1 := a.router.Group("/v1")
	v1.Use(middleware.APIKeyAuth(a.config.Gateway.LiveKey))

	if a.redis != nil {
		if a.config.Server.RateLimit.Enabled {
			limiter := sharedcache.NewRateLimiter(a.redis)
			v1.Use(middleware.RateLimitByIP(limiter,
				a.config.Server.RateLimit.Limit,
				a.config.Server.RateLimit.Window))
		}
		v1.Use(middleware.Idempotency(a.redis, middleware.DefaultIdempotencyConfig()))
	}

	a.merchantHandler.RegisterRoutes(v1)
	a.paymentHandler.RegisterRoutes(v1)

	// Channel callbacks authenticate by signature, not by API key
	notify := a.router.Group("/notify")
	a.notifyHandler.RegisterRoutes(notify)

	// The operator replay route stays behind the live key
	retry := a.router.Group("/notify")
	retry.Use(middleware.APIKeyAuth(a.config.Gateway.LiveKey))
	a.notifyHandler.RegisterRetryRoute(retry)
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop stops the application and releases resources.
func (a *App) Stop() {
	// Sync logger
	if a.logger != nil {
		_ = a.logger.Sync()
	}

	// Close Redis connection
	if a.redis != nil {
		_ = a.redis.Close()
	}

	// Close database connection
	if a.db != nil {
		_ = database.Close(a.db)
	}
}
