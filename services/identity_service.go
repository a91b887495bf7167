package services

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/upb/cognito-gateway/cognito"
	"github.com/upb/cognito-gateway/models"
	"github.com/upb/cognito-gateway/services/audit"
	"go.uber.org/zap"
)

// Cognito auth parameter and challenge response keys
const (
	paramUsername           = "USERNAME"
	paramPassword           = "PASSWORD"
	paramSecretHash         = "SECRET_HASH"
	paramPreferredChallenge = "PREFERRED_CHALLENGE"
	paramSMSOTPCode         = "SMS_OTP_CODE"
)

// errorCodeInvalidToken is the audit error code of a rejected bearer token
const errorCodeInvalidToken = "InvalidToken"

// TokenVerifier verifies Cognito-issued JWTs
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (cognito.Claims, error)
}

// AuditLogger queues audit entries
type AuditLogger interface {
	LogEvent(log *models.AuditLog) error
}

// SignUpInput is a new user registration
type SignUpInput struct {
	Username    string
	Password    string
	Email       string
	PhoneNumber string
	Name        string
}

// ConfirmSignUpInput confirms a registration with the code sent to the user
type ConfirmSignUpInput struct {
	Username         string
	ConfirmationCode string
}

// SignInInput is a username/password sign-in
type SignInInput struct {
	Username string
	Password string
}

// SignInMobileInput starts a passwordless SMS OTP sign-in
type SignInMobileInput struct {
	Username string
}

// RespondToOTPInput answers an SMS OTP challenge
type RespondToOTPInput struct {
	Username string
	Code     string
	Session  string
}

// IdentityService forwards gateway operations to the Cognito user pool. Every
// operation that Cognito authenticates with the app client secret carries the
// username's secret hash.
type IdentityService struct {
	client     cognito.IdentityProviderAPI
	hasher     *cognito.SecretHasher
	verifier   TokenVerifier
	audit      AuditLogger
	userPoolID string
	logger     *zap.Logger
	now        func() time.Time
}

// NewIdentityService creates a new IdentityService. auditLogger may be nil.
func NewIdentityService(
	client cognito.IdentityProviderAPI,
	hasher *cognito.SecretHasher,
	verifier TokenVerifier,
	auditLogger AuditLogger,
	userPoolID string,
	logger *zap.Logger,
) *IdentityService {
	return &IdentityService{
		client:     client,
		hasher:     hasher,
		verifier:   verifier,
		audit:      auditLogger,
		userPoolID: userPoolID,
		logger:     logger,
		now:        time.Now,
	}
}

// SignUp registers a new user. Empty optional attributes are not sent.
func (s *IdentityService) SignUp(ctx context.Context, in SignUpInput) (*cip.SignUpOutput, error) {
	start := s.now()
	hash, err := s.prepare(in.Username, required{"password", in.Password})
	if err != nil {
		s.record(ctx, models.AuditActionSignUp, in.Username, start, err)
		return nil, err
	}

	var attrs []types.AttributeType
	for _, attr := range []struct{ name, value string }{
		{"email", in.Email},
		{"phone_number", in.PhoneNumber},
		{"name", in.Name},
	} {
		if attr.value == "" {
			continue
		}
		attrs = append(attrs, types.AttributeType{Name: aws.String(attr.name), Value: aws.String(attr.value)})
	}

	return send(ctx, s, models.AuditActionSignUp, in.Username, start, "SignUp",
		func(ctx context.Context) (*cip.SignUpOutput, error) {
			return s.client.SignUp(ctx, &cip.SignUpInput{
				ClientId:       aws.String(s.hasher.ClientID()),
				SecretHash:     aws.String(hash),
				Username:       aws.String(in.Username),
				Password:       aws.String(in.Password),
				UserAttributes: attrs,
			})
		})
}

// ConfirmSignUp confirms a registration
func (s *IdentityService) ConfirmSignUp(ctx context.Context, in ConfirmSignUpInput) (*cip.ConfirmSignUpOutput, error) {
	start := s.now()
	hash, err := s.prepare(in.Username, required{"confirmationCode", in.ConfirmationCode})
	if err != nil {
		s.record(ctx, models.AuditActionConfirmSignUp, in.Username, start, err)
		return nil, err
	}

	return send(ctx, s, models.AuditActionConfirmSignUp, in.Username, start, "ConfirmSignUp",
		func(ctx context.Context) (*cip.ConfirmSignUpOutput, error) {
			return s.client.ConfirmSignUp(ctx, &cip.ConfirmSignUpInput{
				ClientId:         aws.String(s.hasher.ClientID()),
				SecretHash:       aws.String(hash),
				Username:         aws.String(in.Username),
				ConfirmationCode: aws.String(in.ConfirmationCode),
			})
		})
}

// SignIn runs the USER_PASSWORD_AUTH flow
func (s *IdentityService) SignIn(ctx context.Context, in SignInInput) (*cip.InitiateAuthOutput, error) {
	start := s.now()
	hash, err := s.prepare(in.Username, required{"password", in.Password})
	if err != nil {
		s.record(ctx, models.AuditActionSignIn, in.Username, start, err)
		return nil, err
	}

	return send(ctx, s, models.AuditActionSignIn, in.Username, start, "InitiateAuth",
		func(ctx context.Context) (*cip.InitiateAuthOutput, error) {
			return s.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
				AuthFlow: types.AuthFlowTypeUserPasswordAuth,
				ClientId: aws.String(s.hasher.ClientID()),
				AuthParameters: map[string]string{
					paramUsername:   in.Username,
					paramPassword:   in.Password,
					paramSecretHash: hash,
				},
			})
		})
}

// SignInMobile starts a USER_AUTH flow with SMS OTP as the preferred challenge.
// The returned session is needed to answer the challenge with RespondToOTP.
func (s *IdentityService) SignInMobile(ctx context.Context, in SignInMobileInput) (*cip.InitiateAuthOutput, error) {
	start := s.now()
	hash, err := s.prepare(in.Username)
	if err != nil {
		s.record(ctx, models.AuditActionSignInMobile, in.Username, start, err)
		return nil, err
	}

	return send(ctx, s, models.AuditActionSignInMobile, in.Username, start, "InitiateAuth",
		func(ctx context.Context) (*cip.InitiateAuthOutput, error) {
			return s.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
				AuthFlow: types.AuthFlowTypeUserAuth,
				ClientId: aws.String(s.hasher.ClientID()),
				AuthParameters: map[string]string{
					paramUsername:           in.Username,
					paramPreferredChallenge: string(types.ChallengeNameTypeSmsOtp),
					paramSecretHash:         hash,
				},
			})
		})
}

// RespondToOTP answers an SMS_OTP challenge
func (s *IdentityService) RespondToOTP(ctx context.Context, in RespondToOTPInput) (*cip.RespondToAuthChallengeOutput, error) {
	start := s.now()
	hash, err := s.prepare(in.Username, required{"code", in.Code}, required{"session", in.Session})
	if err != nil {
		s.record(ctx, models.AuditActionRespondToOTP, in.Username, start, err)
		return nil, err
	}

	return send(ctx, s, models.AuditActionRespondToOTP, in.Username, start, "RespondToAuthChallenge",
		func(ctx context.Context) (*cip.RespondToAuthChallengeOutput, error) {
			return s.client.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
				ClientId:      aws.String(s.hasher.ClientID()),
				ChallengeName: types.ChallengeNameTypeSmsOtp,
				Session:       aws.String(in.Session),
				ChallengeResponses: map[string]string{
					paramUsername:   in.Username,
					paramSMSOTPCode: in.Code,
					paramSecretHash: hash,
				},
			})
		})
}

// AdminSignIn runs the ADMIN_USER_PASSWORD_AUTH flow against the configured pool
func (s *IdentityService) AdminSignIn(ctx context.Context, in SignInInput) (*cip.AdminInitiateAuthOutput, error) {
	start := s.now()
	hash, err := s.prepare(in.Username, required{"password", in.Password})
	if err != nil {
		s.record(ctx, models.AuditActionAdminSignIn, in.Username, start, err)
		return nil, err
	}

	return send(ctx, s, models.AuditActionAdminSignIn, in.Username, start, "AdminInitiateAuth",
		func(ctx context.Context) (*cip.AdminInitiateAuthOutput, error) {
			return s.client.AdminInitiateAuth(ctx, &cip.AdminInitiateAuthInput{
				AuthFlow:   types.AuthFlowTypeAdminUserPasswordAuth,
				ClientId:   aws.String(s.hasher.ClientID()),
				UserPoolId: aws.String(s.userPoolID),
				AuthParameters: map[string]string{
					paramUsername:   in.Username,
					paramPassword:   in.Password,
					paramSecretHash: hash,
				},
			})
		})
}

// GetUser returns the user owning an access token. Cognito authenticates the
// call with the token itself, so no secret hash is sent.
func (s *IdentityService) GetUser(ctx context.Context, accessToken string) (*cip.GetUserOutput, error) {
	start := s.now()
	if accessToken == "" {
		err := NewValidationError("token", "token is required")
		s.record(ctx, models.AuditActionGetUser, "", start, err)
		return nil, err
	}

	out, err := s.client.GetUser(ctx, &cip.GetUserInput{AccessToken: aws.String(accessToken)})
	if err != nil {
		perr := WrapProviderError("GetUser", err)
		s.record(ctx, models.AuditActionGetUser, "", start, perr)
		return nil, perr
	}

	s.record(ctx, models.AuditActionGetUser, aws.ToString(out.Username), start, nil)
	return out, nil
}

// VerifyToken verifies a Cognito token and returns its claims unchanged
func (s *IdentityService) VerifyToken(ctx context.Context, token string) (cognito.Claims, error) {
	start := s.now()
	claims, err := s.verifier.Verify(ctx, token)
	if err != nil {
		uerr := NewUnauthorizedError(err)
		s.logger.Debug("token rejected", zap.Error(err))
		s.record(ctx, models.AuditActionVerifyToken, "", start, uerr)
		return nil, uerr
	}

	s.record(ctx, models.AuditActionVerifyToken, claims.Username(), start, nil)
	return claims, nil
}

type required struct {
	field string
	value string
}

// prepare checks the username and other required fields and returns the
// username's secret hash.
func (s *IdentityService) prepare(username string, fields ...required) (string, error) {
	if username == "" {
		return "", NewValidationError("username", "username is required")
	}
	for _, f := range fields {
		if f.value == "" {
			return "", NewValidationError(f.field, f.field+" is required")
		}
	}

	hash, err := s.hasher.Hash(username)
	if err != nil {
		if errors.Is(err, cognito.ErrEmptyUsername) {
			return "", NewValidationError("username", "username is required")
		}
		return "", WrapInternal("failed to compute secret hash", err)
	}
	return hash, nil
}

// send performs one provider call, classifying its error and auditing the outcome
func send[T any](
	ctx context.Context,
	s *IdentityService,
	action models.AuditAction,
	username string,
	start time.Time,
	operation string,
	call func(ctx context.Context) (T, error),
) (T, error) {
	out, err := call(ctx)
	if err != nil {
		var zero T
		perr := WrapProviderError(operation, err)
		s.logger.Info("identity provider call failed",
			zap.String("operation", operation),
			zap.String("code", GetErrorCode(perr)),
			zap.String("username", username))
		s.record(ctx, action, username, start, perr)
		return zero, perr
	}

	s.record(ctx, action, username, start, nil)
	return out, nil
}

// record queues an audit entry for the operation. Audit failures never fail
// the request.
func (s *IdentityService) record(ctx context.Context, action models.AuditAction, username string, start time.Time, err error) {
	if s.audit == nil {
		return
	}

	meta := audit.RequestMetaFromContext(ctx)
	entry := models.NewAuditLog(action, username).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent).
		WithLatency(s.now().Sub(start))

	switch {
	case err == nil:
	case IsValidationError(err):
		entry.WithOutcome(models.AuditOutcomeRejected, "InvalidParameter")
	case IsUnauthorizedError(err):
		entry.WithOutcome(models.AuditOutcomeRejected, errorCodeInvalidToken)
	case IsExternalError(err):
		entry.WithOutcome(models.AuditOutcomeFailure, GetErrorCode(err))
	default:
		entry.WithOutcome(models.AuditOutcomeFailure, "InternalError")
	}

	if aerr := s.audit.LogEvent(entry); aerr != nil {
		s.logger.Warn("failed to queue audit event", zap.String("action", string(action)), zap.Error(aerr))
	}
}
