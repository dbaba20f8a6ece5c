package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_IssueAndValidate(t *testing.T) {
	tm := NewTokenManager([]byte("test-secret"), "taskhub", time.Hour)
	user := &User{ID: "65a1f0c2e4b0a1b2c3d4e5f6", Email: "alice@example.com"}

	token, expiresAt, err := tm.Issue(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := tm.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, "taskhub", claims.Issuer)
}

func TestTokenManager_Validate(t *testing.T) {
	tm := NewTokenManager([]byte("test-secret"), "taskhub", time.Hour)
	user := &User{ID: "65a1f0c2e4b0a1b2c3d4e5f6"}

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager([]byte("other-secret"), "taskhub", time.Hour)
		token, _, err := other.Issue(user)
		require.NoError(t, err)

		_, err = tm.Validate(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenManager([]byte("test-secret"), "someone-else", time.Hour)
		token, _, err := other.Issue(user)
		require.NoError(t, err)

		_, err = tm.Validate(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewTokenManager([]byte("test-secret"), "taskhub", time.Minute)
		expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, err := expired.Issue(user)
		require.NoError(t, err)

		_, err = tm.Validate(token)
		assert.ErrorContains(t, err, "expired")
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tm.Validate("not-a-jwt")
		assert.Error(t, err)
	})
}

func TestTokenManager_IssueRequiresUser(t *testing.T) {
	tm := NewTokenManager([]byte("s"), "", 0)
	_, _, err := tm.Issue(&User{})
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "correct horse battery"))
	assert.False(t, CheckPassword(hash, "wrong password"))
	assert.False(t, CheckPassword("", "anything"))

	_, err = HashPassword("short")
	assert.Error(t, err)
}

func TestUser_RecordLoginBoundsHistory(t *testing.T) {
	u := &User{}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxLoginHistory+5; i++ {
		u.RecordLogin(MethodPassword, "10.0.0.1", start.Add(time.Duration(i)*time.Minute))
	}

	assert.Equal(t, MaxLoginHistory+5, u.LoginCount)
	assert.Len(t, u.LoginHistory, MaxLoginHistory)
	require.NotNil(t, u.LastLoginAt)
	assert.Equal(t, start.Add(time.Duration(MaxLoginHistory+4)*time.Minute), *u.LastLoginAt)
	assert.Equal(t, start.Add(5*time.Minute), u.LoginHistory[0].At)
}
