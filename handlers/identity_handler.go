package handlers

import (
	"context"
	"net/http"

	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/upb/cognito-gateway/cognito"
	"github.com/upb/cognito-gateway/internal/observability"
	"github.com/upb/cognito-gateway/middleware"
	"github.com/upb/cognito-gateway/services"
	"github.com/upb/cognito-gateway/utils"
	"go.uber.org/zap"
)

// SignUpRequest is the body of POST /signup
type SignUpRequest struct {
	Username    string `json:"username" validate:"required"`
	Password    string `json:"password" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
	Name        string `json:"name"`
}

// ConfirmSignUpRequest is the body of POST /confirm
type ConfirmSignUpRequest struct {
	Username         string `json:"username" validate:"required"`
	ConfirmationCode string `json:"confirmationCode" validate:"required"`
}

// SignInRequest is the body of POST /signin and POST /admin/signin
type SignInRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SignInMobileRequest is the body of POST /signin-mobile
type SignInMobileRequest struct {
	Username string `json:"username" validate:"required"`
}

// RespondToOTPRequest is the body of POST /otp
type RespondToOTPRequest struct {
	Username string `json:"username" validate:"required"`
	Code     string `json:"code" validate:"required"`
	Session  string `json:"session" validate:"required"`
}

// TokenRequest is the body of POST /verify and POST /user.
// An empty token on /verify is a rejection, not a validation error.
type TokenRequest struct {
	Token string `json:"token"`
}

// IdentityService defines the identity operations exposed over HTTP
type IdentityService interface {
	SignUp(ctx context.Context, in services.SignUpInput) (*cip.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in services.ConfirmSignUpInput) (*cip.ConfirmSignUpOutput, error)
	SignIn(ctx context.Context, in services.SignInInput) (*cip.InitiateAuthOutput, error)
	SignInMobile(ctx context.Context, in services.SignInMobileInput) (*cip.InitiateAuthOutput, error)
	RespondToOTP(ctx context.Context, in services.RespondToOTPInput) (*cip.RespondToAuthChallengeOutput, error)
	AdminSignIn(ctx context.Context, in services.SignInInput) (*cip.AdminInitiateAuthOutput, error)
	GetUser(ctx context.Context, accessToken string) (*cip.GetUserOutput, error)
	VerifyToken(ctx context.Context, token string) (cognito.Claims, error)
}

// IdentityHandler handles identity HTTP requests. Successful provider
// responses are relayed as returned by the SDK.
type IdentityHandler struct {
	service IdentityService
	logger  *zap.Logger
}

// NewIdentityHandler creates a new IdentityHandler
func NewIdentityHandler(service IdentityService, logger *zap.Logger) *IdentityHandler {
	return &IdentityHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSignUp handles POST /signup
func (h *IdentityHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.SignUp(r.Context(), services.SignUpInput{
		Username:    req.Username,
		Password:    req.Password,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Name:        req.Name,
	})
	h.respond(w, r, "sign up", out, err)
}

// HandleConfirmSignUp handles POST /confirm
func (h *IdentityHandler) HandleConfirmSignUp(w http.ResponseWriter, r *http.Request) {
	var req ConfirmSignUpRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.ConfirmSignUp(r.Context(), services.ConfirmSignUpInput{
		Username:         req.Username,
		ConfirmationCode: req.ConfirmationCode,
	})
	h.respond(w, r, "confirm sign up", out, err)
}

// HandleSignIn handles POST /signin
func (h *IdentityHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.SignIn(r.Context(), services.SignInInput{
		Username: req.Username,
		Password: req.Password,
	})
	h.respond(w, r, "sign in", out, err)
}

// HandleSignInMobile handles POST /signin-mobile
func (h *IdentityHandler) HandleSignInMobile(w http.ResponseWriter, r *http.Request) {
	var req SignInMobileRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.SignInMobile(r.Context(), services.SignInMobileInput{Username: req.Username})
	h.respond(w, r, "sign in mobile", out, err)
}

// HandleRespondToOTP handles POST /otp
func (h *IdentityHandler) HandleRespondToOTP(w http.ResponseWriter, r *http.Request) {
	var req RespondToOTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.RespondToOTP(r.Context(), services.RespondToOTPInput{
		Username: req.Username,
		Code:     req.Code,
		Session:  req.Session,
	})
	h.respond(w, r, "respond to otp", out, err)
}

// HandleAdminSignIn handles POST /admin/signin
func (h *IdentityHandler) HandleAdminSignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.AdminSignIn(r.Context(), services.SignInInput{
		Username: req.Username,
		Password: req.Password,
	})
	h.respond(w, r, "admin sign in", out, err)
}

// HandleGetUser handles POST /user
func (h *IdentityHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.GetUser(r.Context(), req.Token)
	h.respond(w, r, "get user", out, err)
}

// HandleVerify handles POST /verify. Any rejection is a 401.
func (h *IdentityHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		observability.WithRequest(r.Context(), h.logger).Debug("unreadable verify body", zap.Error(err))
	}

	claims, err := h.service.VerifyToken(r.Context(), req.Token)
	h.respond(w, r, "verify token", claims, err)
}

// HandleMe handles GET /me. RequireAuth has already verified the bearer token.
func (h *IdentityHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		_ = utils.WriteUnauthorized(w, services.ErrInvalidToken.Message)
		return
	}
	if err := utils.WriteJSON(w, http.StatusOK, claims); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// decode reads and validates a request body, writing a 400 on failure
func (h *IdentityHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	logger := observability.WithRequest(r.Context(), h.logger)

	if err := utils.DecodeJSON(r, dst); err != nil {
		logger.Warn("failed to parse request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}

	if err := utils.ValidateStruct(dst); err != nil {
		logger.Warn("request validation failed", zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return false
	}
	return true
}

func (h *IdentityHandler) respond(w http.ResponseWriter, r *http.Request, operation string, out interface{}, err error) {
	if err != nil {
		observability.WithRequest(r.Context(), h.logger).Info("identity operation failed",
			zap.String("operation", operation),
			zap.String("error_type", string(services.GetErrorType(err))))
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, out); err != nil {
		h.logger.Error("failed to write response",
			zap.String("operation", operation),
			zap.Error(err))
	}
}
