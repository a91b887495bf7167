package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/cognito-gateway/cognito"
	"github.com/upb/cognito-gateway/repositories"
	"github.com/upb/cognito-gateway/services/audit"
	"github.com/upb/cognito-gateway/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string              `json:"status"`
	Timestamp string              `json:"timestamp"`
	Checks    map[string]string   `json:"checks,omitempty"`
	JWKS      *cognito.CacheStats `json:"jwks,omitempty"`
	Audit     *audit.Stats        `json:"audit,omitempty"`
}

// KeyCacheReporter reports the state of the signing key cache
type KeyCacheReporter interface {
	CacheStats() cognito.CacheStats
}

// AuditReporter reports the state of the audit pipeline
type AuditReporter interface {
	GetStats() audit.Stats
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	auditStore repositories.HealthChecker
	keys       KeyCacheReporter
	audit      AuditReporter
	logger     *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. auditStore is nil when audit
// entries go to the log instead of a database.
func NewHealthHandler(auditStore repositories.HealthChecker, keys KeyCacheReporter, auditReporter AuditReporter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		auditStore: auditStore,
		keys:       keys,
		audit:      auditReporter,
		logger:     logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteJSON(w, http.StatusOK, response)
}

// HandleReadiness handles GET /readyz
// The JWKS cache is filled lazily, so it is reported but does not gate readiness.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.auditStore == nil {
		checks["audit_database"] = "not_configured"
	} else if err := h.auditStore.HealthCheck(ctx); err != nil {
		h.logger.Warn("audit database health check failed", zap.Error(err))
		checks["audit_database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["audit_database"] = "healthy"
	}

	response := HealthResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if h.audit != nil {
		stats := h.audit.GetStats()
		response.Audit = &stats
		if stats.Started {
			checks["audit_pipeline"] = "healthy"
		} else {
			checks["audit_pipeline"] = "stopped"
			allHealthy = false
		}
	}

	if h.keys != nil {
		stats := h.keys.CacheStats()
		response.JWKS = &stats
		if stats.Cached {
			checks["jwks"] = "cached"
		} else {
			checks["jwks"] = "not_cached"
		}
	}

	response.Status = "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		response.Status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
