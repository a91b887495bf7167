package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the gateway operation being audited
type AuditAction string

const (
	AuditActionSignUp        AuditAction = "sign_up"
	AuditActionConfirmSignUp AuditAction = "confirm_sign_up"
	AuditActionSignIn        AuditAction = "sign_in"
	AuditActionSignInMobile  AuditAction = "sign_in_mobile"
	AuditActionRespondToOTP  AuditAction = "respond_to_otp"
	AuditActionAdminSignIn   AuditAction = "admin_sign_in"
	AuditActionGetUser       AuditAction = "get_user"
	AuditActionVerifyToken   AuditAction = "verify_token"
)

// AuditOutcome is the result of an audited operation
type AuditOutcome string

const (
	// AuditOutcomeSuccess means the identity provider accepted the request
	AuditOutcomeSuccess AuditOutcome = "success"
	// AuditOutcomeFailure means the identity provider returned an error
	AuditOutcomeFailure AuditOutcome = "failure"
	// AuditOutcomeRejected means the gateway refused the request itself
	AuditOutcomeRejected AuditOutcome = "rejected"
)

// AuditLog represents an audit trail entry. It never carries passwords,
// confirmation codes, sessions, tokens or secret hashes.
type AuditLog struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	Action    AuditAction  `json:"action" db:"action"`
	Username  string       `json:"username,omitempty" db:"username"`
	Outcome   AuditOutcome `json:"outcome" db:"outcome"`
	ErrorCode *string      `json:"error_code,omitempty" db:"error_code"`
	RequestID string       `json:"request_id,omitempty" db:"request_id"`
	IPAddress string       `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string       `json:"user_agent,omitempty" db:"user_agent"`
	LatencyMs int          `json:"latency_ms" db:"latency_ms"`
	Timestamp time.Time    `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, username string) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Username:  username,
		Outcome:   AuditOutcomeSuccess,
		Timestamp: time.Now().UTC(),
	}
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}

// WithOutcome sets the outcome and, for failures, the error code
func (a *AuditLog) WithOutcome(outcome AuditOutcome, errorCode string) *AuditLog {
	a.Outcome = outcome
	if errorCode != "" {
		a.ErrorCode = &errorCode
	} else {
		a.ErrorCode = nil
	}
	return a
}

// WithLatency records how long the operation took
func (a *AuditLog) WithLatency(d time.Duration) *AuditLog {
	a.LatencyMs = int(d.Milliseconds())
	return a
}
