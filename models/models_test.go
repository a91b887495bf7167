package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuditLog(t *testing.T) {
	log := NewAuditLog(AuditActionSignIn, "fahim")

	assert.NotEqual(t, uuid.Nil, log.ID)
	assert.Equal(t, AuditActionSignIn, log.Action)
	assert.Equal(t, "fahim", log.Username)
	assert.Equal(t, AuditOutcomeSuccess, log.Outcome)
	assert.Nil(t, log.ErrorCode)
	assert.False(t, log.Timestamp.IsZero())
}

func TestAuditLog_BuilderMethods(t *testing.T) {
	log := NewAuditLog(AuditActionAdminSignIn, "fahim").
		WithRequest("req-1", "10.0.0.1", "curl/8.0").
		WithOutcome(AuditOutcomeFailure, "NotAuthorizedException").
		WithLatency(125 * time.Millisecond)

	assert.Equal(t, "req-1", log.RequestID)
	assert.Equal(t, "10.0.0.1", log.IPAddress)
	assert.Equal(t, "curl/8.0", log.UserAgent)
	assert.Equal(t, AuditOutcomeFailure, log.Outcome)
	require.NotNil(t, log.ErrorCode)
	assert.Equal(t, "NotAuthorizedException", *log.ErrorCode)
	assert.Equal(t, 125, log.LatencyMs)

	log.WithOutcome(AuditOutcomeSuccess, "")
	assert.Nil(t, log.ErrorCode)
}

func TestAuditLog_TableName(t *testing.T) {
	assert.Equal(t, "audit_logs", AuditLog{}.TableName())
}

func TestAuditLog_JSONMarshaling(t *testing.T) {
	log := NewAuditLog(AuditActionVerifyToken, "").
		WithOutcome(AuditOutcomeRejected, "InvalidToken")

	data, err := json.Marshal(log)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "verify_token", decoded["action"])
	assert.Equal(t, "rejected", decoded["outcome"])
	assert.Equal(t, "InvalidToken", decoded["error_code"])
	assert.NotContains(t, decoded, "username")
}
