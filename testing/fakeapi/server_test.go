package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnvelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
	Data    map[string]any      `json:"data"`
}

func serve(t *testing.T, s *Server, method, target, body, token string) (int, testEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func loginTokens(t *testing.T, s *Server) (string, string) {
	t.Helper()
	code, env := serve(t, s, http.MethodPost, "/api/v1/auth/login",
		`{"email":"`+DemoEmail+`","password":"`+DemoPassword+`"}`, "")
	require.Equal(t, http.StatusOK, code)
	return env.Data["access_token"].(string), env.Data["refresh_token"].(string)
}

func TestRefreshRotatesPair(t *testing.T) {
	s := New(nil)
	_, refreshToken := loginTokens(t, s)

	code, env := serve(t, s, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+refreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Bearer", env.Data["token_type"])
	assert.NotEqual(t, refreshToken, env.Data["refresh_token"])
	assert.True(t, s.IsAccessTokenValid(env.Data["access_token"].(string)))

	code, env = serve(t, s, http.MethodPost, "/api/v1/auth/refresh", "", refreshToken)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid refresh token", env.Message)
	assert.EqualValues(t, 2, s.RefreshCount())
}

func TestRequireAuth(t *testing.T) {
	s := New(nil)
	accessToken, _ := loginTokens(t, s)

	code, _ := serve(t, s, http.MethodGet, "/api/v1/auth/me", "", accessToken)
	assert.Equal(t, http.StatusOK, code)

	s.ExpireAccessTokens()
	code, env := serve(t, s, http.MethodGet, "/api/v1/auth/me", "", accessToken)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "AuthenticationError", env.Error)
	assert.EqualValues(t, 1, s.UnauthorizedCount())
}

func TestValidationEnvelope(t *testing.T) {
	s := New(nil)

	code, env := serve(t, s, http.MethodPost, "/api/v1/auth/login", `{"email":"bad"}`, "")

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Validation failed", env.Message)
	assert.Equal(t, "ValidationError", env.Error)
	assert.Equal(t, []string{"Invalid email format"}, env.Errors["email"])
	assert.Contains(t, env.Errors, "password")
}

func TestFailRefreshes(t *testing.T) {
	s := New(nil)
	_, refreshToken := loginTokens(t, s)
	s.FailRefreshes(true)

	code, _ := serve(t, s, http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"`+refreshToken+`"}`, "")
	assert.Equal(t, http.StatusInternalServerError, code)
}
