package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scopes carried in tokens
const (
	ScopeRead  = "pdpm:read"
	ScopeWrite = "pdpm:write"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the JWT claims accepted by the service
type Claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

// Principal is the authenticated caller attached to a request context
type Principal struct {
	Subject string
	TokenID string
	Scopes  []string
}

// HasScope reports whether p was granted scope
func (p *Principal) HasScope(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// TokenManager signs and validates HS256 tokens
type TokenManager struct {
	signingKey []byte
	issuer     string
}

func NewTokenManager(signingKey, issuer string) *TokenManager {
	return &TokenManager{signingKey: []byte(signingKey), issuer: issuer}
}

// Issue signs a token for subject valid for ttl
func (m *TokenManager) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Scopes: scopes,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token
func (m *TokenManager) Validate(token string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return m.signingKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &Principal{Subject: claims.Subject, TokenID: claims.ID, Scopes: claims.Scopes}, nil
}
