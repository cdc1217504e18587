package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestStatic(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "opaque token", token: "  opaque-token\n"},
		{name: "valid jwt", token: signed(t, now.Add(time.Hour))},
		{name: "expired jwt", token: signed(t, now.Add(-time.Minute)), wantErr: true},
		{name: "empty", token: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewStatic(tt.token)
			p.now = func() time.Time { return now }

			got, err := p.Token(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.IsNotAuthenticated(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, got)
			assert.NotContains(t, got, "\n")
		})
	}
}

func TestFile_RereadsOnEveryCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o600))

	p := NewFile(path)
	got, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	require.NoError(t, os.WriteFile(path, []byte("second\n"), 0o600))
	got, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestFile_Missing(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "absent")).Token(context.Background())
	assert.True(t, errs.IsNotAuthenticated(err))
}

func TestEnv(t *testing.T) {
	t.Setenv("BUCKETVIS_TEST_TOKEN", "from-env")

	got, err := NewEnv("BUCKETVIS_TEST_TOKEN").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}

func TestExpiresAt(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	got, ok := ExpiresAt(signed(t, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = ExpiresAt("not-a-jwt")
	assert.False(t, ok)
}
