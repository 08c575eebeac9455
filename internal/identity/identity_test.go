package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayTokenRoundTrip(t *testing.T) {
	secret := "test-secret"
	want := Identity{DisplayName: "Ada", AvatarURL: "https://example.com/ada.png"}

	token, err := MakeDisplayToken(want, secret, time.Hour)
	require.NoError(t, err)

	got, err := VerifyDisplayToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestVerifyDisplayToken(t *testing.T) {
	secret := "test-secret"

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		secret  string
		wantErr bool
	}{
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				tok, err := MakeDisplayToken(Identity{DisplayName: "Ada"}, secret, time.Hour)
				require.NoError(t, err)
				return tok
			},
			secret:  "other-secret",
			wantErr: true,
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				tok, err := MakeDisplayToken(Identity{DisplayName: "Ada"}, secret, -time.Minute)
				require.NoError(t, err)
				return tok
			},
			secret:  secret,
			wantErr: true,
		},
		{
			name: "missing name claim",
			token: func(t *testing.T) string {
				tok, err := MakeDisplayToken(Identity{}, secret, time.Hour)
				require.NoError(t, err)
				return tok
			},
			secret:  secret,
			wantErr: true,
		},
		{
			name: "garbage",
			token: func(t *testing.T) string {
				return "not.a.token"
			},
			secret:  secret,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyDisplayToken(tt.token(t), tt.secret)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
