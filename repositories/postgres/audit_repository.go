package postgres

import (
	"context"
	"fmt"

	"github.com/upb/cognito-gateway/models"
	"github.com/upb/cognito-gateway/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

var _ repositories.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, action, username, outcome, error_code,
			request_id, ip_address, user_agent, latency_ms, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.Action,
		log.Username,
		log.Outcome,
		log.ErrorCode,
		log.RequestID,
		log.IPAddress,
		log.UserAgent,
		log.LatencyMs,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// HealthCheck reports whether the audit database is reachable
func (r *AuditRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
