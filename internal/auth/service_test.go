package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAttemptTokenRoundTrip(t *testing.T) {
	svc := NewService("onboarding", []byte("secret"), time.Hour)

	attemptID, token, err := svc.NewAttempt()
	require.NoError(t, err)

	got, err := svc.ParseAttempt(token)
	require.NoError(t, err)
	assert.Equal(t, attemptID, got)
}

func TestParseAttemptRejects(t *testing.T) {
	svc := NewService("onboarding", []byte("secret"), time.Hour)
	_, token, err := svc.NewAttempt()
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService("onboarding", []byte("other"), time.Hour)
		_, err := other.ParseAttempt(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewService("someone-else", []byte("secret"), time.Hour)
		_, err := other.ParseAttempt(token)
		assert.EqualError(t, err, "invalid issuer")
	})

	t.Run("expired", func(t *testing.T) {
		later := NewService("onboarding", []byte("secret"), time.Hour)
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.ParseAttempt(token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ParseAttempt("not-a-token")
		assert.Error(t, err)
	})

	t.Run("non uuid subject", func(t *testing.T) {
		token, err := svc.SignAttempt("attempt-1")
		require.NoError(t, err)
		_, err = svc.ParseAttempt(token)
		assert.EqualError(t, err, "invalid subject")
	})
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")))
}
