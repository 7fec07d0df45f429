package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowguard/internal/models"
)

func setupAuthRouter(t *testing.T) http.Handler {
	t.Helper()
	router, _ := setupTestRouter(t, func(cfg *models.Config) {
		cfg.Security.EnableAuth = true
		cfg.Security.AdminToken = "fg_test-admin-token"
	})
	return router
}

func authedRequest(t *testing.T, method, path, token string, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAdminAuth_MissingHeader(t *testing.T) {
	router := setupAuthRouter(t)

	req := authedRequest(t, "POST", "/api/v1/limiters", "", models.CreateLimiterRequest{
		Identifier:     "pool-eth",
		MinRetainedBps: 7000,
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, models.ErrorCodeUnauthorized, errResp.Code)
}

func TestAdminAuth_InvalidFormat(t *testing.T) {
	router := setupAuthRouter(t)

	req := authedRequest(t, "POST", "/api/v1/limiters", "", models.CreateLimiterRequest{
		Identifier:     "pool-eth",
		MinRetainedBps: 7000,
	})
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminAuth_WrongToken(t *testing.T) {
	router := setupAuthRouter(t)

	req := authedRequest(t, "POST", "/api/v1/limiters", "fg_wrong-token", models.CreateLimiterRequest{
		Identifier:     "pool-eth",
		MinRetainedBps: 7000,
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminAuth_ValidToken(t *testing.T) {
	router := setupAuthRouter(t)

	req := authedRequest(t, "POST", "/api/v1/limiters", "fg_test-admin-token", models.CreateLimiterRequest{
		Identifier:          "pool-eth",
		MinRetainedBps:      7000,
		LimitBeginThreshold: 1000,
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestAdminAuth_ReadEndpointsStayPublic(t *testing.T) {
	router := setupAuthRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/limiters", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORSMiddleware(t *testing.T) {
	router, _ := setupTestRouter(t, func(cfg *models.Config) {
		cfg.Server.CORS.Enabled = true
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	})

	req := httptest.NewRequest("GET", "/api/v1/limiters", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}
