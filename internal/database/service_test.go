package database

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestAuthService_Login(t *testing.T) {
	tests := []struct {
		name     string
		password string
		attempt  string
		wantErr  bool
	}{
		{name: "correct password", password: "hunter22", attempt: "hunter22"},
		{name: "wrong password", password: "hunter22", attempt: "hunter2", wantErr: true},
		{name: "login disabled", password: "", attempt: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAuthService(testSecret, tt.password, time.Hour)
			token, err := svc.Login(tt.attempt)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
				return
			}
			require.NoError(t, err)

			subject, err := svc.ValidateAdminToken(token)
			require.NoError(t, err)
			assert.Equal(t, AdminSubject, subject)
		})
	}
}

func TestAuthService_ValidateAdminToken(t *testing.T) {
	svc := NewAuthService(testSecret, "", time.Hour)

	t.Run("round trip", func(t *testing.T) {
		token, err := svc.GenerateAdminToken("ops")
		require.NoError(t, err)
		subject, err := svc.ValidateAdminToken(token)
		require.NoError(t, err)
		assert.Equal(t, "ops", subject)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := svc.GenerateAdminToken("ops")
		require.NoError(t, err)

		later := *svc
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err = later.ValidateAdminToken(token)
		assert.Error(t, err)
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewAuthService("another-secret-of-length", "", time.Hour)
		token, err := other.GenerateAdminToken("ops")
		require.NoError(t, err)
		_, err = svc.ValidateAdminToken(token)
		assert.Error(t, err)
	})

	t.Run("missing role", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "ops",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = svc.ValidateAdminToken(token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateAdminToken("not.a.token")
		assert.Error(t, err)
	})
}
