// AngelaMos | 2026
// handler_test.go

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TatyOko28/refresh-system/internal/middleware"
)

func newAuthRouter(t *testing.T) (*chi.Mux, *serviceFixture) {
	t.Helper()

	f := newServiceFixture(t)
	r := chi.NewRouter()
	NewHandler(f.svc).RegisterRoutes(r, middleware.Authenticate(f.svc))
	return r, f
}

func doJSON(r http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthRoutes(t *testing.T) {
	r, _ := newAuthRouter(t)

	rec := doJSON(r, http.MethodPost, "/auth/register",
		`{"email":"alice@example.com","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.Tokens.AccessToken)

	tests := []struct {
		name   string
		path   string
		body   string
		bearer string
		status int
	}{
		{"duplicate email", "/auth/register", `{"email":"alice@example.com","password":"correct-horse"}`, "", http.StatusConflict},
		{"short password", "/auth/register", `{"email":"bob@example.com","password":"short"}`, "", http.StatusBadRequest},
		{"malformed body", "/auth/login", `{"email":`, "", http.StatusBadRequest},
		{"wrong password", "/auth/login", `{"email":"alice@example.com","password":"wrong-horse"}`, "", http.StatusUnauthorized},
		{"login", "/auth/login", `{"email":"alice@example.com","password":"correct-horse"}`, "", http.StatusOK},
		{"unknown refresh token", "/auth/refresh", `{"refresh_token":"nope"}`, "", http.StatusUnauthorized},
		{"google disabled", "/auth/google", `{"id_token":"t"}`, "", http.StatusServiceUnavailable},
		{"logout without token", "/auth/logout", ``, "", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(r, http.MethodPost, tc.path, tc.body, tc.bearer)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	t.Run("logout then reuse", func(t *testing.T) {
		access := created.Data.Tokens.AccessToken
		body := `{"refresh_token":"` + created.Data.Tokens.RefreshToken + `"}`

		rec := doJSON(r, http.MethodPost, "/auth/logout", body, access)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = doJSON(r, http.MethodPost, "/auth/logout", "", access)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = doJSON(r, http.MethodPost, "/auth/refresh", body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
