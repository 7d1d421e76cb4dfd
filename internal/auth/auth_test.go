package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, CheckPassword("s3cret", hash))
	assert.False(t, CheckPassword("wrong", hash))
	assert.False(t, CheckPassword("s3cret", "not-a-hash"))
}

func TestCredentials(t *testing.T) {
	plain, err := NewCredentials("admin", "pw", "")
	require.NoError(t, err)
	assert.True(t, plain.Verify("admin", "pw"))
	assert.False(t, plain.Verify("Admin", "pw"))
	assert.False(t, plain.Verify("admin", "PW"))
	assert.False(t, plain.Verify("", ""))

	hash, err := HashPassword("hashed-pw")
	require.NoError(t, err)
	hashed, err := NewCredentials("admin", "ignored", hash)
	require.NoError(t, err)
	assert.True(t, hashed.Verify("admin", "hashed-pw"))
	assert.False(t, hashed.Verify("admin", "ignored"))
}

func TestNewCredentialsErrors(t *testing.T) {
	_, err := NewCredentials("", "pw", "")
	assert.Error(t, err)
	_, err = NewCredentials("admin", "", "")
	assert.Error(t, err)
	_, err = NewCredentials("admin", "", "plaintext-not-bcrypt")
	assert.Error(t, err)
}

func TestSessionIssueAndParse(t *testing.T) {
	m := NewSessionManager("0123456789abcdef0123456789abcdef", time.Hour)
	now := time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	token, issued, err := m.Issue("admin")
	require.NoError(t, err)
	assert.True(t, issued.Authenticated)

	s, err := m.Parse(token)
	require.NoError(t, err)
	assert.True(t, s.Authenticated)
	assert.Equal(t, "admin", s.User)
	assert.True(t, now.Equal(s.IssuedAt))
	assert.True(t, now.Add(time.Hour).Equal(s.ExpiresAt))
	assert.False(t, m.NeedsRenewal(s))

	now = now.Add(31 * time.Minute)
	assert.True(t, m.NeedsRenewal(s))

	now = now.Add(30 * time.Minute)
	_, err = m.Parse(token)
	assert.Error(t, err, "expired")
}

func TestSessionRejectsForeignTokens(t *testing.T) {
	m := NewSessionManager("0123456789abcdef0123456789abcdef", time.Hour)
	other := NewSessionManager("fedcba9876543210fedcba9876543210", time.Hour)

	token, _, err := other.Issue("admin")
	require.NoError(t, err)

	for _, tok := range []string{token, "", "garbage", token + "x"} {
		_, err := m.Parse(tok)
		assert.Error(t, err)
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestSessionContext(t *testing.T) {
	assert.False(t, SessionFromContext(context.Background()).Authenticated)

	ctx := WithSession(context.Background(), Session{Authenticated: true, User: "admin"})
	s := SessionFromContext(ctx)
	assert.True(t, s.Authenticated)
	assert.Equal(t, "admin", s.User)
}
