package routes

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/cognito-gateway/app"
	"github.com/upb/cognito-gateway/cognito"
	"github.com/upb/cognito-gateway/config"
	"go.uber.org/zap"
)

const (
	testRegion     = "eu-north-1"
	testUserPoolID = "eu-north-1_l98JHU8zj"
	testClientID   = "146cabl46h8eueupc5ff5h60i1"
	testSecret     = "S3cr3t"
	testKid        = "gateway-test-key"
)

// MockIdentityProvider is a mock implementation of cognito.IdentityProviderAPI
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) SignUp(ctx context.Context, in *cip.SignUpInput, _ ...func(*cip.Options)) (*cip.SignUpOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cip.SignUpOutput), args.Error(1)
}

func (m *MockIdentityProvider) ConfirmSignUp(ctx context.Context, in *cip.ConfirmSignUpInput, _ ...func(*cip.Options)) (*cip.ConfirmSignUpOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cip.ConfirmSignUpOutput), args.Error(1)
}

func (m *MockIdentityProvider) InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, _ ...func(*cip.Options)) (*cip.InitiateAuthOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cip.InitiateAuthOutput), args.Error(1)
}

func (m *MockIdentityProvider) RespondToAuthChallenge(ctx context.Context, in *cip.RespondToAuthChallengeInput, _ ...func(*cip.Options)) (*cip.RespondToAuthChallengeOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cip.RespondToAuthChallengeOutput), args.Error(1)
}

func (m *MockIdentityProvider) AdminInitiateAuth(ctx context.Context, in *cip.AdminInitiateAuthInput, _ ...func(*cip.Options)) (*cip.AdminInitiateAuthOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cip.AdminInitiateAuthOutput), args.Error(1)
}

func (m *MockIdentityProvider) GetUser(ctx context.Context, in *cip.GetUserInput, _ ...func(*cip.Options)) (*cip.GetUserOutput, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cip.GetUserOutput), args.Error(1)
}

type gateway struct {
	handler  http.Handler
	provider *MockIdentityProvider
	key      *rsa.PrivateKey
}

func newGateway(t *testing.T) *gateway {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cognito.JWKS{Keys: []cognito.JWK{{
			Kid: testKid,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	t.Cleanup(jwks.Close)

	cfg := &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			RequestTimeout: 5 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Cognito: config.CognitoConfig{
			Region:       testRegion,
			UserPoolID:   testUserPoolID,
			ClientID:     testClientID,
			ClientSecret: testSecret,
			TokenUse:     cognito.TokenUseAccess,
			AdminGroup:   "admin",
			JWKSURL:      jwks.URL,
			JWKSCacheTTL: time.Hour,
			JWKSTimeout:  5 * time.Second,
		},
		Audit: config.AuditConfig{BufferSize: 100, Workers: 1},
	}

	provider := new(MockIdentityProvider)
	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop(), app.WithIdentityProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	return &gateway{handler: SetupRoutes(deps), provider: provider, key: key}
}

func (g *gateway) accessToken(t *testing.T) string {
	return g.accessTokenWithGroups(t, "admin")
}

func (g *gateway) accessTokenWithGroups(t *testing.T, groups ...string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":            "504c892c-d0e1-707b-1826-07faa5d0c474",
		"cognito:groups": groups,
		"iss":            cognito.IssuerURL(testRegion, testUserPoolID),
		"client_id":      testClientID,
		"token_use":      "access",
		"scope":          "aws.cognito.signin.user.admin",
		"exp":            now.Add(time.Hour).Unix(),
		"iat":            now.Unix(),
		"username":       "fahim",
	})
	token.Header["kid"] = testKid
	signed, err := token.SignedString(g.key)
	require.NoError(t, err)
	return signed
}

func (g *gateway) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	g.handler.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	g := newGateway(t)

	w := g.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = g.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"audit_database":"not_configured"`)
}

func TestSignInRoute(t *testing.T) {
	g := newGateway(t)

	g.provider.On("InitiateAuth", mock.Anything, mock.MatchedBy(func(in *cip.InitiateAuthInput) bool {
		return in.AuthFlow == types.AuthFlowTypeUserPasswordAuth &&
			in.AuthParameters["SECRET_HASH"] == "GRuV45/kC46u1w3rpD/d3rVOCEi0k9wG9yiAt1GFLAM="
	})).Return(&cip.InitiateAuthOutput{
		AuthenticationResult: &types.AuthenticationResultType{AccessToken: aws.String("access")},
	}, nil).Once()

	w := g.do(http.MethodPost, "/signin", `{"username":"fahim","password":"Passw0rd!"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"AccessToken":"access"`)
	g.provider.AssertExpectations(t)
}

func TestProviderErrorRoute(t *testing.T) {
	g := newGateway(t)

	g.provider.On("InitiateAuth", mock.Anything, mock.Anything).Return(nil, &smithy.GenericAPIError{
		Code:    "UserNotConfirmedException",
		Message: "User is not confirmed.",
	})

	w := g.do(http.MethodPost, "/signin", `{"username":"fahim","password":"Passw0rd!"}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UserNotConfirmedException")
}

func TestVerifyRoute(t *testing.T) {
	g := newGateway(t)

	t.Run("valid token", func(t *testing.T) {
		w := g.do(http.MethodPost, "/verify", `{"token":"`+g.accessToken(t)+`"}`, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var claims map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &claims))
		assert.Equal(t, "fahim", claims["username"])
		assert.Equal(t, testClientID, claims["client_id"])
	})

	for name, body := range map[string]string{
		"malformed": `{"token":"not-a-jwt"}`,
		"empty":     `{"token":""}`,
		"no body":   ``,
		"tampered":  `{"token":"` + g.accessToken(t) + `x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := g.do(http.MethodPost, "/verify", body, nil)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"unauthorized","message":"Token not valid!"}`, w.Body.String())
		})
	}
}

func TestMeRoute(t *testing.T) {
	g := newGateway(t)

	w := g.do(http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = g.do(http.MethodGet, "/me", "", map[string]string{"Authorization": "Bearer " + g.accessToken(t)})
	assert.Equal(t, http.StatusOK, w.Code)

	var claims cognito.ParsedClaims
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &claims))
	assert.Equal(t, "fahim", claims.Username)
	assert.True(t, claims.HasGroup("admin"))
}

func TestAdminMeRoute(t *testing.T) {
	g := newGateway(t)

	w := g.do(http.MethodGet, "/admin/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = g.do(http.MethodGet, "/admin/me", "", map[string]string{
		"Authorization": "Bearer " + g.accessTokenWithGroups(t, "user"),
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"forbidden","message":"Insufficient permissions"}`, w.Body.String())

	w = g.do(http.MethodGet, "/admin/me", "", map[string]string{
		"Authorization": "Bearer " + g.accessTokenWithGroups(t, "user", "admin"),
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var claims cognito.ParsedClaims
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &claims))
	assert.Equal(t, "fahim", claims.Username)
}

func TestCORSPreflight(t *testing.T) {
	g := newGateway(t)

	w := g.do(http.MethodOptions, "/signin", "", map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	})

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	g := newGateway(t)

	w := g.do(http.MethodGet, "/signin", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.JSONEq(t, `{"error":"method_not_allowed","message":"method not allowed"}`, w.Body.String())

	w = g.do(http.MethodPost, "/nope", "{}", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not_found","message":"route not found"}`, w.Body.String())
}
