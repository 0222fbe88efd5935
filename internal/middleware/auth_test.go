// AngelaMos | 2026
// auth_test.go

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TatyOko28/refresh-system/internal/core"
)

type stubVerifier struct {
	principal *Principal
	err       error
	gotToken  string
}

func (s *stubVerifier) VerifyToken(_ context.Context, raw string) (*Principal, error) {
	s.gotToken = raw
	return s.principal, s.err
}

func serve(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("valid token", func(t *testing.T) {
		v := &stubVerifier{principal: &Principal{UserID: "u-1", Role: "user"}}
		rec := serve(Authenticate(v)(next), "Bearer good")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-1", seen)
		assert.Equal(t, "good", v.gotToken)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := serve(Authenticate(&stubVerifier{})(next), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("revoked token", func(t *testing.T) {
		rec := serve(Authenticate(&stubVerifier{err: core.ErrTokenRevoked})(next), "Bearer old")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "TOKEN_REVOKED")
	})

	t.Run("expired token", func(t *testing.T) {
		rec := serve(Authenticate(&stubVerifier{err: core.ErrTokenExpired})(next), "Bearer old")
		assert.Contains(t, rec.Body.String(), "TOKEN_EXPIRED")
	})
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	user := &stubVerifier{principal: &Principal{UserID: "u-1", Role: "user"}}
	rec := serve(Authenticate(user)(RequireAdmin(next)), "Bearer t")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := &stubVerifier{principal: &Principal{UserID: "u-2", Role: RoleAdmin}}
	rec = serve(Authenticate(admin)(RequireAdmin(next)), "Bearer t")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(RequireAdmin(next), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Bearer ":      "",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for header, want := range tests {
		got, ok := bearerToken(header)
		assert.Equal(t, want, got, header)
		assert.Equal(t, want != "", ok, header)
	}
}

func TestPrincipalContext(t *testing.T) {
	assert.Nil(t, PrincipalFrom(context.Background()))
	assert.Empty(t, UserIDFrom(context.Background()))

	ctx := WithUserID(context.Background(), "u-9")
	assert.Equal(t, "u-9", UserIDFrom(ctx))
	assert.Equal(t, "user", PrincipalFrom(ctx).Role)
}
