package cognito

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

var (
	// ErrMissingClientID is returned when the app client ID is not configured
	ErrMissingClientID = errors.New("cognito client ID is required")

	// ErrMissingClientSecret is returned when the app client secret is not configured
	ErrMissingClientSecret = errors.New("cognito client secret is required")

	// ErrEmptyUsername is returned when a secret hash is requested for an empty username
	ErrEmptyUsername = errors.New("username is required")
)

// SecretHasher computes the SECRET_HASH Cognito expects from app clients that have a
// client secret. The secret itself never leaves the process.
type SecretHasher struct {
	clientID     string
	clientSecret []byte
}

// NewSecretHasher creates a hasher bound to one app client.
// It fails when either the client ID or the client secret is empty.
func NewSecretHasher(clientID, clientSecret string) (*SecretHasher, error) {
	if clientID == "" {
		return nil, ErrMissingClientID
	}
	if clientSecret == "" {
		return nil, ErrMissingClientSecret
	}
	return &SecretHasher{
		clientID:     clientID,
		clientSecret: []byte(clientSecret),
	}, nil
}

// ClientID returns the app client ID the hasher is bound to
func (h *SecretHasher) ClientID() string {
	return h.clientID
}

// Hash returns base64(HMAC-SHA256(clientSecret, username + clientID))
func (h *SecretHasher) Hash(username string) (string, error) {
	if username == "" {
		return "", ErrEmptyUsername
	}
	return secretHash(username, h.clientID, h.clientSecret), nil
}

// ComputeSecretHash is the stateless form of SecretHasher.Hash.
func ComputeSecretHash(username, clientID, clientSecret string) (string, error) {
	h, err := NewSecretHasher(clientID, clientSecret)
	if err != nil {
		return "", err
	}
	return h.Hash(username)
}

func secretHash(username, clientID string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	// hash.Hash.Write never returns an error
	_, _ = mac.Write([]byte(username + clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
