package logsink

import (
	"context"

	"github.com/upb/cognito-gateway/models"
	"github.com/upb/cognito-gateway/repositories"
	"go.uber.org/zap"
)

// AuditRepository writes audit entries as structured log lines. It is used
// when no audit database is configured.
type AuditRepository struct {
	logger *zap.Logger
}

var _ repositories.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository creates a log-backed audit repository
func NewAuditRepository(logger *zap.Logger) *AuditRepository {
	return &AuditRepository{logger: logger.Named("audit")}
}

// Insert logs the entry at info level
func (r *AuditRepository) Insert(_ context.Context, log *models.AuditLog) error {
	fields := []zap.Field{
		zap.String("id", log.ID.String()),
		zap.String("action", string(log.Action)),
		zap.String("username", log.Username),
		zap.String("outcome", string(log.Outcome)),
		zap.String("request_id", log.RequestID),
		zap.String("ip_address", log.IPAddress),
		zap.String("user_agent", log.UserAgent),
		zap.Int("latency_ms", log.LatencyMs),
		zap.Time("timestamp", log.Timestamp),
	}
	if log.ErrorCode != nil {
		fields = append(fields, zap.String("error_code", *log.ErrorCode))
	}
	r.logger.Info("audit event", fields...)
	return nil
}
