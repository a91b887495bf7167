package repositories

import (
	"context"

	"github.com/upb/cognito-gateway/models"
)

// AuditRepository persists audit log entries
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error
}

// HealthChecker is implemented by repositories backed by a remote store
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
