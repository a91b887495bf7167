package cognito

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingClaim is returned when a required claim is missing
var ErrMissingClaim = errors.New("missing required claim")

// Claims is the verified payload of a Cognito token, exactly as the token carried it.
// Numeric claims are json.Number so they serialize back unchanged.
type Claims map[string]interface{}

// ParsedClaims is a typed view over the Cognito claims the gateway cares about
type ParsedClaims struct {
	Sub       string    `json:"sub"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Groups    []string  `json:"groups"`
	ClientID  string    `json:"client_id,omitempty"`
	TokenUse  string    `json:"token_use"`
	Scope     string    `json:"scope,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Subject returns the sub claim
func (c Claims) Subject() string {
	return c.str("sub")
}

// Username returns cognito:username (ID tokens) or username (access tokens)
func (c Claims) Username() string {
	if u := c.str("cognito:username"); u != "" {
		return u
	}
	return c.str("username")
}

// TokenUse returns the token_use claim
func (c Claims) TokenUse() string {
	return c.str("token_use")
}

// Groups returns the cognito:groups claim
func (c Claims) Groups() []string {
	raw, ok := c["cognito:groups"].([]interface{})
	if !ok {
		return []string{}
	}
	groups := make([]string, 0, len(raw))
	for _, g := range raw {
		if s, ok := g.(string); ok {
			groups = append(groups, s)
		}
	}
	return groups
}

// Time returns a NumericDate claim such as exp or iat
func (c Claims) Time(name string) (time.Time, error) {
	raw, ok := c[name]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrMissingClaim, name)
	}
	var seconds float64
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("claim %s: %w", name, err)
		}
		seconds = f
	case float64:
		seconds = v
	default:
		return time.Time{}, fmt.Errorf("claim %s has type %T", name, raw)
	}
	return time.Unix(int64(seconds), 0), nil
}

// Parse converts the claim set into ParsedClaims
func (c Claims) Parse() *ParsedClaims {
	parsed := &ParsedClaims{
		Sub:      c.Subject(),
		Username: c.Username(),
		Email:    c.str("email"),
		Groups:   c.Groups(),
		ClientID: c.str("client_id"),
		TokenUse: c.TokenUse(),
		Scope:    c.str("scope"),
	}
	if iat, err := c.Time("iat"); err == nil {
		parsed.IssuedAt = iat
	}
	if exp, err := c.Time("exp"); err == nil {
		parsed.ExpiresAt = exp
	}
	return parsed
}

func (c Claims) str(name string) string {
	s, _ := c[name].(string)
	return s
}

// HasGroup checks if the user belongs to a Cognito group
func (p *ParsedClaims) HasGroup(group string) bool {
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}
