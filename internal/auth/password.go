// Package auth implements the shared-secret login and cookie sessions.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Credentials verifies the single shared login.
type Credentials struct {
	username string
	hash     string
}

// NewCredentials builds the verifier from either a plain password or a
// bcrypt hash. A plain password is hashed once at startup.
func NewCredentials(username, password, passwordHash string) (*Credentials, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	hash := passwordHash
	if hash == "" {
		if password == "" {
			return nil, errors.New("password or password hash is required")
		}
		var err error
		if hash, err = HashPassword(password); err != nil {
			return nil, err
		}
	} else if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid password hash: %w", err)
	}
	return &Credentials{username: username, hash: hash}, nil
}

// Verify reports whether username and password match.
func (c *Credentials) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password.
	passOK := CheckPassword(password, c.hash)
	return userOK && passOK
}
