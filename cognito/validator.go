package cognito

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenUseAccess is the token_use value of Cognito access tokens
	TokenUseAccess = "access"
	// TokenUseID is the token_use value of Cognito ID tokens
	TokenUseID = "id"

	// MaxClockSkew bounds the leeway applied to exp and iat
	MaxClockSkew = 5 * time.Minute
)

var (
	// ErrInvalidToken is wrapped by every verification rejection
	ErrInvalidToken = errors.New("invalid token")

	// ErrMalformedToken is returned when the token is empty or not a compact JWS
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature is returned when the signature cannot be verified against the pool's keys
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenNotYetValid is returned when iat lies in the future
	ErrTokenNotYetValid = errors.New("token used before issued")

	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when the token audience is invalid
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrInvalidTokenUse is returned when token_use does not match the expected use
	ErrInvalidTokenUse = errors.New("invalid token_use")

	// ErrMissingUserPoolID is returned when the validator has no user pool to trust
	ErrMissingUserPoolID = errors.New("cognito user pool ID is required")
)

// Config holds configuration for CognitoValidator
type Config struct {
	Region     string // derived from UserPoolID when empty
	UserPoolID string
	ClientID   string
	TokenUse   string // "access" (default) or "id"
	ClockSkew  time.Duration

	CacheTTL           time.Duration
	MinRefreshInterval time.Duration
	HTTPTimeout        time.Duration
	JWKSURL            string // overrides the pool's well-known JWKS endpoint
	HTTPClient         *http.Client
}

// CognitoValidator verifies JWTs issued by one Cognito user pool for one app client.
// It is safe for concurrent use.
type CognitoValidator struct {
	region     string
	userPoolID string
	clientID   string
	tokenUse   string
	issuer     string
	clockSkew  time.Duration

	keys   *keySet
	parser *jwt.Parser
	now    func() time.Time
}

// NewCognitoValidator creates a new Cognito JWT validator
func NewCognitoValidator(config Config) (*CognitoValidator, error) {
	if config.UserPoolID == "" {
		return nil, ErrMissingUserPoolID
	}
	if config.ClientID == "" {
		return nil, ErrMissingClientID
	}

	region := config.Region
	if region == "" {
		region = RegionFromUserPoolID(config.UserPoolID)
		if region == "" {
			return nil, fmt.Errorf("cannot derive region from user pool ID %q", config.UserPoolID)
		}
	}

	tokenUse := config.TokenUse
	if tokenUse == "" {
		tokenUse = TokenUseAccess
	}
	if tokenUse != TokenUseAccess && tokenUse != TokenUseID {
		return nil, fmt.Errorf("unsupported token use %q", tokenUse)
	}

	if config.ClockSkew < 0 || config.ClockSkew > MaxClockSkew {
		return nil, fmt.Errorf("clock skew %s outside [0, %s]", config.ClockSkew, MaxClockSkew)
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 1 * time.Hour
	}
	if config.MinRefreshInterval == 0 {
		config.MinRefreshInterval = 1 * time.Minute
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 10 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.HTTPTimeout}
	}

	issuer := IssuerURL(region, config.UserPoolID)
	jwksURL := config.JWKSURL
	if jwksURL == "" {
		jwksURL = issuer + "/.well-known/jwks.json"
	}

	v := &CognitoValidator{
		region:     region,
		userPoolID: config.UserPoolID,
		clientID:   config.ClientID,
		tokenUse:   tokenUse,
		issuer:     issuer,
		clockSkew:  config.ClockSkew,
		now:        time.Now,
	}
	clock := func() time.Time { return v.now() }
	v.keys = newKeySet(jwksURL, httpClient, config.CacheTTL, config.MinRefreshInterval, config.HTTPTimeout, clock)
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(config.ClockSkew),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithJSONNumber(),
		jwt.WithTimeFunc(clock),
	)

	return v, nil
}

// IssuerURL returns the iss value Cognito writes into tokens of a user pool
func IssuerURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

// RegionFromUserPoolID extracts the region prefix of a user pool ID ("eu-north-1_abc" -> "eu-north-1")
func RegionFromUserPoolID(userPoolID string) string {
	region, _, ok := strings.Cut(userPoolID, "_")
	if !ok {
		return ""
	}
	return region
}

// Issuer returns the issuer tokens must carry
func (v *CognitoValidator) Issuer() string {
	return v.issuer
}

// Verify checks signature, issuer, audience, token use and lifetime of a token and
// returns its claims verbatim. Any failure returns an error wrapping ErrInvalidToken
// and nil claims.
func (v *CognitoValidator) Verify(ctx context.Context, tokenString string) (Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, reject(ErrMalformedToken, errors.New("empty token"))
	}

	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(tokenString, claims, v.keyFunc(ctx)); err != nil {
		return nil, classify(err)
	}

	if err := v.checkAudience(claims); err != nil {
		return nil, err
	}

	if use, _ := claims["token_use"].(string); use != v.tokenUse {
		return nil, reject(ErrInvalidTokenUse, fmt.Errorf("expected %s, got %q", v.tokenUse, use))
	}

	return Claims(claims), nil
}

// ValidateToken verifies a token and returns its typed claims
func (v *CognitoValidator) ValidateToken(ctx context.Context, tokenString string) (*ParsedClaims, error) {
	claims, err := v.Verify(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	return claims.Parse(), nil
}

// CacheStats returns signing key cache statistics
func (v *CognitoValidator) CacheStats() CacheStats {
	return v.keys.stats()
}

func (v *CognitoValidator) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("kid header not found")
		}

		return v.keys.publicKey(ctx, kid)
	}
}

// checkAudience matches aud for ID tokens and client_id for access tokens,
// which carry no aud claim.
func (v *CognitoValidator) checkAudience(claims jwt.MapClaims) error {
	aud, err := claims.GetAudience()
	if err != nil {
		return reject(ErrInvalidAudience, err)
	}
	if len(aud) > 0 && !slices.Contains(aud, v.clientID) {
		return reject(ErrInvalidAudience, fmt.Errorf("aud %v", []string(aud)))
	}

	switch v.tokenUse {
	case TokenUseID:
		if len(aud) == 0 {
			return reject(ErrInvalidAudience, errors.New("aud claim missing"))
		}
	case TokenUseAccess:
		if clientID, _ := claims["client_id"].(string); clientID != v.clientID {
			return reject(ErrInvalidAudience, fmt.Errorf("client_id %q", clientID))
		}
	}
	return nil
}

func reject(reason, err error) error {
	return fmt.Errorf("%w: %w: %v", ErrInvalidToken, reason, err)
}

// classify maps jwt parser errors onto the package's rejection reasons
func classify(err error) error {
	switch {
	case errors.Is(err, ErrJWKSFetchFailed):
		return reject(ErrJWKSFetchFailed, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return reject(ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return reject(ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return reject(ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued), errors.Is(err, jwt.ErrTokenNotValidYet):
		return reject(ErrTokenNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return reject(ErrInvalidIssuer, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return reject(ErrMissingClaim, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}
