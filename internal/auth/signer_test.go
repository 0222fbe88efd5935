// AngelaMos | 2026
// signer_test.go

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TatyOko28/refresh-system/internal/config"
	"github.com/TatyOko28/refresh-system/internal/core"
)

func testTokenConfig(t *testing.T) config.TokenConfig {
	t.Helper()

	dir := t.TempDir()
	cfg := config.TokenConfig{
		SigningKeyPath: filepath.Join(dir, "private.pem"),
		PublicKeyPath:  filepath.Join(dir, "public.pem"),
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     24 * time.Hour,
		Issuer:         "referral-service",
		Audience:       "referral-clients",
	}
	require.NoError(t, WriteKeyPair(cfg.SigningKeyPath, cfg.PublicKeyPath))
	return cfg
}

func newTestSigner(t *testing.T) *Signer {
	t.Helper()

	s, err := LoadSigner(testTokenConfig(t))
	require.NoError(t, err)
	return s
}

func TestSignAndVerify(t *testing.T) {
	s := newTestSigner(t)

	raw, expires, err := s.Sign(&Account{ID: "u-1", Role: "user"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expires, 5*time.Second)

	p, err := s.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.UserID)
	assert.Equal(t, "user", p.Role)
	assert.NotEmpty(t, p.TokenID)
	assert.WithinDuration(t, expires, p.ExpiresAt, time.Second)
}

func TestVerifyRejects(t *testing.T) {
	s := newTestSigner(t)
	other := newTestSigner(t)

	foreign, _, err := other.Sign(&Account{ID: "u-1", Role: "user"})
	require.NoError(t, err)

	t.Run("foreign key", func(t *testing.T) {
		_, err := s.Verify(foreign)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Verify("not.a.jwt")
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		raw, _, err := s.Sign(&Account{ID: "u-1", Role: "user"})
		require.NoError(t, err)

		s.now = func() time.Time { return time.Now().Add(time.Hour) }
		t.Cleanup(func() { s.now = time.Now })

		_, err = s.Verify(raw)
		assert.ErrorIs(t, err, core.ErrTokenExpired)
	})
}

func TestKeyIDStableAcrossLoads(t *testing.T) {
	cfg := testTokenConfig(t)
	pem, err := os.ReadFile(cfg.SigningKeyPath)
	require.NoError(t, err)

	a, err := NewSigner(pem, cfg)
	require.NoError(t, err)
	b, err := NewSigner(pem, cfg)
	require.NoError(t, err)

	assert.Len(t, a.KeyID(), 16)
	assert.Equal(t, a.KeyID(), b.KeyID())

	raw, _, err := a.Sign(&Account{ID: "u-1", Role: "admin"})
	require.NoError(t, err)
	p, err := b.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "admin", p.Role)
}

func TestJWKS(t *testing.T) {
	s := newTestSigner(t)

	rec := httptest.NewRecorder()
	s.JWKS(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var set struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, s.KeyID(), set.Keys[0]["kid"])
	assert.Equal(t, "sig", set.Keys[0]["use"])
	assert.NotContains(t, set.Keys[0], "d")
}

func TestWriteKeyPairModes(t *testing.T) {
	cfg := testTokenConfig(t)

	private, err := os.Stat(cfg.SigningKeyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), private.Mode().Perm())

	public, err := os.Stat(cfg.PublicKeyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), public.Mode().Perm())
}
