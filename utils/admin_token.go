package utils

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrInvalidToken     = errors.New("invalid token format")
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidIssuer    = errors.New("invalid issuer")
)

// Scopes of an admin token.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// DefaultIssuer is the issuer of tokens minted by this program.
const DefaultIssuer = "safemigrator"

// AdminClaims are the claims of an admin API token.
type AdminClaims struct {
	Issuer    string   `json:"iss,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
}

// Can reports whether the token carries scope. Write implies read.
func (c *AdminClaims) Can(scope string) bool {
	if slices.Contains(c.Scopes, scope) {
		return true
	}
	return scope == ScopeRead && slices.Contains(c.Scopes, ScopeWrite)
}

// VerifyConfig holds verification configuration
type VerifyConfig struct {
	SecretKey      []byte        // HMAC (HS256) key
	ExpectedIssuer string        // Optional: validate issuer
	ClockSkew      time.Duration // Optional: allow clock skew (default 0)
}

// VerifyAdminToken verifies and decodes an admin token.
func VerifyAdminToken(tokenString string, config VerifyConfig) (*AdminClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	if len(config.SecretKey) == 0 {
		return nil, errors.New("no verification key provided")
	}

	tok, err := jwt.ParseSigned(tokenString, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &AdminClaims{}
	if err := tok.Claims(config.SecretKey, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	now := time.Now().Unix()
	clockSkew := int64(config.ClockSkew.Seconds())

	if claims.ExpiresAt > 0 && claims.ExpiresAt < (now-clockSkew) {
		return nil, ErrTokenExpired
	}
	if claims.IssuedAt > 0 && claims.IssuedAt > (now+clockSkew) {
		return nil, ErrTokenNotYetValid
	}
	if config.ExpectedIssuer != "" && claims.Issuer != config.ExpectedIssuer {
		return nil, fmt.Errorf("%w: expected '%s', got '%s'",
			ErrInvalidIssuer, config.ExpectedIssuer, claims.Issuer)
	}
	return claims, nil
}

// SignAdminToken mints an HS256 token for subject. A zero ttl never
// expires.
func SignAdminToken(secret []byte, subject string, ttl time.Duration, scopes ...string) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("signing key cannot be empty")
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	now := time.Now()
	claims := AdminClaims{Issuer: DefaultIssuer, Subject: subject, IssuedAt: now.Unix(), Scopes: scopes}
	if ttl > 0 {
		claims.ExpiresAt = now.Add(ttl).Unix()
	}
	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT: %w", err)
	}
	return token, nil
}
