package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/cognito-gateway/cognito"
	"github.com/upb/cognito-gateway/config"
	"github.com/upb/cognito-gateway/handlers"
	"github.com/upb/cognito-gateway/middleware"
	"github.com/upb/cognito-gateway/repositories"
	"github.com/upb/cognito-gateway/repositories/logsink"
	"github.com/upb/cognito-gateway/repositories/postgres"
	"github.com/upb/cognito-gateway/services"
	"github.com/upb/cognito-gateway/services/audit"
	"go.uber.org/zap"
)

const (
	defaultAuditStopTimeout = 5 * time.Second
	// minAuditStopTimeout is the drain budget left once the shutdown deadline is spent
	minAuditStopTimeout = 1 * time.Second
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Audit trail; AuditDB is nil when entries go to the log
	AuditDB      *postgres.DB
	AuditLogs    repositories.AuditRepository
	AuditService *audit.AuditService

	// Cognito
	SecretHasher     *cognito.SecretHasher
	Validator        *cognito.CognitoValidator
	IdentityProvider cognito.IdentityProviderAPI

	// Services
	IdentityService *services.IdentityService

	// HTTP
	AuthMiddleware  *middleware.AuthMiddleware
	IdentityHandler *handlers.IdentityHandler
	HealthHandler   *handlers.HealthHandler
}

// Option customizes dependency construction
type Option func(*Dependencies)

// WithIdentityProvider uses the given client instead of building an SDK client
func WithIdentityProvider(client cognito.IdentityProviderAPI) Option {
	return func(d *Dependencies) {
		d.IdentityProvider = client
	}
}

// NewDependencies creates and wires up all application dependencies.
// Missing Cognito configuration is fatal: no component is built without it.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(deps)
	}

	if err := deps.initCognito(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize cognito: %w", err)
	}

	if err := deps.initAudit(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize audit: %w", err)
	}

	deps.IdentityService = services.NewIdentityService(
		deps.IdentityProvider,
		deps.SecretHasher,
		deps.Validator,
		deps.AuditService,
		cfg.Cognito.UserPoolID,
		logger.Named("identity"),
	)

	deps.AuthMiddleware = middleware.NewAuthMiddleware(deps.Validator, logger)
	deps.IdentityHandler = handlers.NewIdentityHandler(deps.IdentityService, logger)

	// Only repositories backed by a remote store report health
	auditStore, _ := deps.AuditLogs.(repositories.HealthChecker)
	deps.HealthHandler = handlers.NewHealthHandler(auditStore, deps.Validator, deps.AuditService, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initCognito builds the secret hasher, token validator and SDK client
func (d *Dependencies) initCognito(ctx context.Context, cfg *config.Config) error {
	hasher, err := cognito.NewSecretHasher(cfg.Cognito.ClientID, cfg.Cognito.ClientSecret)
	if err != nil {
		return err
	}
	d.SecretHasher = hasher

	validator, err := cognito.NewCognitoValidator(cognito.Config{
		Region:      cfg.Cognito.Region,
		UserPoolID:  cfg.Cognito.UserPoolID,
		ClientID:    cfg.Cognito.ClientID,
		TokenUse:    cfg.Cognito.TokenUse,
		ClockSkew:   cfg.Cognito.ClockSkew,
		CacheTTL:    cfg.Cognito.JWKSCacheTTL,
		HTTPTimeout: cfg.Cognito.JWKSTimeout,
		JWKSURL:     cfg.Cognito.JWKSURL,
	})
	if err != nil {
		return err
	}
	d.Validator = validator

	if d.IdentityProvider == nil {
		client, err := cognito.NewIdentityProviderClient(ctx, cognito.ClientConfig{
			Region:   cfg.Cognito.Region,
			Endpoint: cfg.Cognito.Endpoint,
		})
		if err != nil {
			return err
		}
		d.IdentityProvider = client
	}

	d.Logger.Info("cognito initialized",
		zap.String("issuer", validator.Issuer()),
		zap.String("token_use", cfg.Cognito.TokenUse))
	return nil
}

// initAudit selects the audit repository and starts the audit workers
func (d *Dependencies) initAudit(ctx context.Context, cfg *config.Config) error {
	if cfg.Audit.Database != nil {
		db, err := postgres.NewDB(ctx, *cfg.Audit.Database, d.Logger)
		if err != nil {
			return err
		}
		if err := db.InitAuditSchema(ctx); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to initialize audit schema: %w", err)
		}
		d.AuditDB = db
		d.AuditLogs = postgres.NewAuditRepository(db, d.Logger)
	} else {
		d.Logger.Info("no audit database configured, audit entries go to the log")
		d.AuditLogs = logsink.NewAuditRepository(d.Logger)
	}

	auditCfg := audit.DefaultConfig()
	if cfg.Audit.BufferSize > 0 {
		auditCfg.BufferSize = cfg.Audit.BufferSize
	}
	if cfg.Audit.Workers > 0 {
		auditCfg.WorkerCount = cfg.Audit.Workers
	}

	d.AuditService = audit.NewAuditService(d.AuditLogs, d.Logger.Named("audit"), auditCfg)
	return d.AuditService.Start()
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.AuditService != nil {
		if err := d.AuditService.Stop(auditStopTimeout(ctx)); err != nil && !errors.Is(err, audit.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.AuditDB != nil {
		if err := d.AuditDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit database: %w", err))
		} else {
			d.Logger.Info("audit database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}

// auditStopTimeout is the time left before ctx's deadline, never less than
// minAuditStopTimeout
func auditStopTimeout(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultAuditStopTimeout
	}
	return max(time.Until(deadline), minAuditStopTimeout)
}
