package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/campuslink/campus-iam/internal/core/domain"
)

var (
	// ErrInvalidSessionToken indicates the token is malformed or its
	// signature validation failed.
	ErrInvalidSessionToken = errors.New("invalid session token")
	// ErrExpiredSessionToken indicates the token has expired.
	ErrExpiredSessionToken = errors.New("session token expired")
)

// SessionClaims augments registered claims with the account context minted
// after a successful challenge verification.
type SessionClaims struct {
	UserID   string      `json:"uid"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates RS256 session tokens.
type TokenIssuer struct {
	keys     KeyProvider
	issuer   string
	tokenTTL time.Duration
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(keys KeyProvider, issuer string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{keys: keys, issuer: issuer, tokenTTL: ttl}
}

// Issue mints a signed session token for the provided account.
func (t *TokenIssuer) Issue(account domain.Account) (string, error) {
	if account.ID == "" {
		return "", fmt.Errorf("account id is required")
	}

	now := time.Now().UTC()

	claims := SessionClaims{
		UserID:   account.ID,
		Username: account.Username,
		Role:     account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.tokenTTL)),
			ID:        uuid.NewString(),
		},
	}

	signingKey, kid, err := t.keys.SigningKey()
	if err != nil {
		return "", fmt.Errorf("get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Parse validates a session token and returns its claims.
func (t *TokenIssuer) Parse(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("session token is required")
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}

		kid, ok := tok.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid header not found")
		}

		return t.keys.VerificationKey(kid)
	}, jwt.WithIssuer(t.issuer), jwt.WithAudience(t.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredSessionToken
		}
		return nil, ErrInvalidSessionToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidSessionToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrInvalidSessionToken
	}

	return claims, nil
}

// TTL exposes the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.tokenTTL
}
