package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTTL      = 12 * time.Hour
	defaultIssuer   = "pharmasure"
	defaultAudience = "pharmasure-api"
	defaultLeeway   = 30 * time.Second
	minSecretBytes  = 32
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identify a live session. ID is the session id, Subject the user email.
type Claims struct {
	SessionID string
	Email     string
	ExpiresAt time.Time
}

// Manager issues and validates HS256 session tokens.
type Manager struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if len(strings.TrimSpace(secret)) < minSecretBytes {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretBytes)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		secret:   []byte(secret),
		ttl:      ttl,
		issuer:   defaultIssuer,
		audience: defaultAudience,
		now:      time.Now,
	}, nil
}

// Issue signs a token naming sessionID.
func (m *Manager) Issue(sessionID, email string) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.ttl)
	claims := jwt.RegisteredClaims{
		ID:        sessionID,
		Subject:   email,
		Issuer:    m.issuer,
		Audience:  jwt.ClaimStrings{m.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse validates signature, issuer, audience and expiry.
func (m *Manager) Parse(raw string) (Claims, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return Claims{}, fmt.Errorf("%w: missing session id", ErrInvalidToken)
	}
	return Claims{SessionID: claims.ID, Email: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}
