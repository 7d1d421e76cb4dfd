package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "bookkeeper"

// Session is the explicit per-request login state.
type Session struct {
	Authenticated bool
	User          string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// SessionManager issues and validates signed session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates a SessionManager signing with secret.
func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns the session lifetime.
func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Issue creates a signed token for user.
func (m *SessionManager) Issue(user string) (string, Session, error) {
	now := m.now().Truncate(time.Second)
	s := Session{Authenticated: true, User: user, IssuedAt: now, ExpiresAt: now.Add(m.ttl)}

	claims := jwt.RegisteredClaims{
		Subject:   user,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("sign session: %w", err)
	}
	return token, s, nil
}

// Parse validates token and returns its session.
func (m *SessionManager) Parse(token string) (Session, error) {
	if token == "" {
		return Session{}, errors.New("session token is empty")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("parse session: %w", err)
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return Session{}, errors.New("session claims incomplete")
	}

	return Session{
		Authenticated: true,
		User:          claims.Subject,
		IssuedAt:      claims.IssuedAt.Time,
		ExpiresAt:     claims.ExpiresAt.Time,
	}, nil
}

// NeedsRenewal reports whether s is in the second half of its lifetime.
func (m *SessionManager) NeedsRenewal(s Session) bool {
	return s.ExpiresAt.Sub(m.now()) < m.ttl/2
}

// GenerateSecret returns a random signing key.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
