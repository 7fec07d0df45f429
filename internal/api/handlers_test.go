package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowguard/internal/breaker"
	"flowguard/internal/clock"
	"flowguard/internal/guard"
	"flowguard/internal/models"
	"flowguard/internal/settlement"
	"flowguard/internal/storage"
	"flowguard/internal/version"
)

func setupTestRouter(t *testing.T, mutate func(cfg *models.Config)) (http.Handler, *clock.VirtualClock) {
	t.Helper()

	clk := clock.NewVirtualClock(time.Unix(1_700_000_000, 0))
	engine := breaker.NewEngine(breaker.Config{
		Window: 24 * time.Hour,
		Tick:   time.Hour,
	}, clk)

	store, err := storage.NewMemoryStorage(storage.Config{Type: "memory"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	service := guard.NewService(guard.Options{
		Engine:     engine,
		Storage:    store,
		Settlement: settlement.NewDelayedModule(time.Hour, clk, nil),
		Clock:      clk,
	})

	cfg := models.NewDefaultConfig()
	cfg.Security.EnableAuth = false
	if mutate != nil {
		mutate(cfg)
	}

	handlers := NewHandlers(service, store, version.Info{Version: "test"})
	return SetupRoutes(handlers, cfg), clk
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func createTestLimiter(t *testing.T, router http.Handler, identifier string) {
	t.Helper()
	rr := doJSON(t, router, "POST", "/api/v1/limiters", models.CreateLimiterRequest{
		Identifier:          identifier,
		MinRetainedBps:      7000,
		LimitBeginThreshold: 1000,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestCreateLimiter(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rr := doJSON(t, router, "POST", "/api/v1/limiters", models.CreateLimiterRequest{
		Identifier:          "pool-eth",
		MinRetainedBps:      7000,
		LimitBeginThreshold: 1000,
	})
	assert.Equal(t, http.StatusCreated, rr.Code)

	var resp models.CreateLimiterResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "pool-eth", resp.Identifier)
}

func TestCreateLimiter_Duplicate(t *testing.T) {
	router, _ := setupTestRouter(t, nil)
	createTestLimiter(t, router, "pool-eth")

	rr := doJSON(t, router, "POST", "/api/v1/limiters", models.CreateLimiterRequest{
		Identifier:          "pool-eth",
		MinRetainedBps:      7000,
		LimitBeginThreshold: 1000,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, models.ErrorCodeConflict, errResp.Code)
}

func TestCreateLimiter_InvalidJSON(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	req := httptest.NewRequest("POST", "/api/v1/limiters", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateLimiter_InvalidThresholds(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	for _, bps := range []int64{0, -100, 10001} {
		rr := doJSON(t, router, "POST", "/api/v1/limiters", models.CreateLimiterRequest{
			Identifier:     fmt.Sprintf("pool-%d", bps),
			MinRetainedBps: bps,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, "bps=%d", bps)
	}
}

func TestReconfigureLimiter(t *testing.T) {
	router, _ := setupTestRouter(t, nil)
	createTestLimiter(t, router, "pool-eth")

	rr := doJSON(t, router, "PUT", "/api/v1/limiters/pool-eth", models.ReconfigureLimiterRequest{
		MinRetainedBps:      8000,
		LimitBeginThreshold: 2000,
	})
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.LimiterConfig
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, int64(8000), resp.MinRetainedBps)
}

func TestReconfigureLimiter_NotFound(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rr := doJSON(t, router, "PUT", "/api/v1/limiters/missing", models.ReconfigureLimiterRequest{
		MinRetainedBps:      8000,
		LimitBeginThreshold: 2000,
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecordFlow(t *testing.T) {
	router, _ := setupTestRouter(t, nil)
	createTestLimiter(t, router, "pool-eth")

	rr := doJSON(t, router, "POST", "/api/v1/limiters/pool-eth/flows", models.RecordFlowRequest{Amount: 500})
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.FlowResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Tracked)
	assert.Equal(t, "inactive", resp.Status)
	assert.Equal(t, int64(500), resp.InWindowTotal)
}

func TestRecordFlow_UntrackedIdentifier(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rr := doJSON(t, router, "POST", "/api/v1/limiters/unknown/flows", models.RecordFlowRequest{Amount: 500})
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.FlowResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.False(t, resp.Tracked)
}

func TestRecordFlow_ZeroAmount(t *testing.T) {
	router, _ := setupTestRouter(t, nil)
	createTestLimiter(t, router, "pool-eth")

	rr := doJSON(t, router, "POST", "/api/v1/limiters/pool-eth/flows", models.RecordFlowRequest{Amount: 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestRecordFlow_TriggeredCarriesSettlementHandle(t *testing.T) {
	router, clk := setupTestRouter(t, nil)
	createTestLimiter(t, router, "pool-eth")

	rr := doJSON(t, router, "POST", "/api/v1/limiters/pool-eth/flows", models.RecordFlowRequest{Amount: 5000})
	require.Equal(t, http.StatusOK, rr.Code)

	// Age the inflow past the window so it settles, then sync.
	clk.Advance(24*time.Hour + time.Second)
	rr = doJSON(t, router, "POST", "/api/v1/limiters/pool-eth/sync", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// Outflow drops the projected total below the retained fraction.
	rr = doJSON(t, router, "POST", "/api/v1/limiters/pool-eth/flows", models.RecordFlowRequest{
		Amount:    -2000,
		Reference: "tx-42",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.FlowResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "triggered", resp.Status)
	assert.NotEmpty(t, resp.SettlementHandle)

	// The deferred action is visible through the settlements API.
	rr = doJSON(t, router, "GET", "/api/v1/settlements/"+resp.SettlementHandle, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var action models.SettlementResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&action))
	assert.Equal(t, "tx-42", action.Reference)
	assert.False(t, action.Executed)
}

func TestGetStatus(t *testing.T) {
	router, _ := setupTestRouter(t, nil)
	createTestLimiter(t, router, "pool-eth")

	rr := doJSON(t, router, "GET", "/api/v1/limiters/pool-eth/status", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.StatusResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "inactive", resp.Status)
	assert.True(t, resp.Initialized)
}

func TestGetStatus_Uninitialized(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rr := doJSON(t, router, "GET", "/api/v1/limiters/unknown/status", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.StatusResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "uninitialized", resp.Status)
	assert.False(t, resp.Initialized)
}

func TestSetOverride(t *testing.T) {
	router, _ := setupTestRouter(t, nil)
	createTestLimiter(t, router, "pool-eth")

	rr := doJSON(t, router, "POST", "/api/v1/limiters/pool-eth/override", models.OverrideRequest{Overridden: true})
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.StatusResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestSetOverride_NotFound(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rr := doJSON(t, router, "POST", "/api/v1/limiters/missing/override", models.OverrideRequest{Overridden: true})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInspectLimiter(t *testing.T) {
	router, _ := setupTestRouter(t, nil)
	createTestLimiter(t, router, "pool-eth")

	doJSON(t, router, "POST", "/api/v1/limiters/pool-eth/flows", models.RecordFlowRequest{Amount: 500})

	rr := doJSON(t, router, "GET", "/api/v1/limiters/pool-eth", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.LimiterResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "pool-eth", resp.Config.Identifier)
	assert.Equal(t, int64(500), resp.InWindowTotal)
	assert.Len(t, resp.Buckets, 1)
}

func TestInspectLimiter_NotFound(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rr := doJSON(t, router, "GET", "/api/v1/limiters/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListLimiters(t *testing.T) {
	router, _ := setupTestRouter(t, nil)
	createTestLimiter(t, router, "pool-btc")
	createTestLimiter(t, router, "pool-eth")

	rr := doJSON(t, router, "GET", "/api/v1/limiters", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.ListLimitersResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 2, resp.TotalCount)
}

func TestSyncLimiter(t *testing.T) {
	router, clk := setupTestRouter(t, nil)
	createTestLimiter(t, router, "pool-eth")

	doJSON(t, router, "POST", "/api/v1/limiters/pool-eth/flows", models.RecordFlowRequest{Amount: 500})
	clk.Advance(24*time.Hour + time.Second)

	rr := doJSON(t, router, "POST", "/api/v1/limiters/pool-eth/sync", models.SyncRequest{MaxIterations: 10})
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.SyncResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Evicted)
}

func TestSyncLimiter_EmptyBody(t *testing.T) {
	router, _ := setupTestRouter(t, nil)
	createTestLimiter(t, router, "pool-eth")

	rr := doJSON(t, router, "POST", "/api/v1/limiters/pool-eth/sync", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGetBreaches_NotFound(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rr := doJSON(t, router, "GET", "/api/v1/limiters/missing/breaches", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListSettlements_Empty(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rr := doJSON(t, router, "GET", "/api/v1/settlements", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp []models.SettlementResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Empty(t, resp)
}

func TestExecuteSettlement_UnknownHandle(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rr := doJSON(t, router, "POST", "/api/v1/settlements/no-such-handle/execute", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rr := doJSON(t, router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.HealthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, models.StatusHealthy, resp.Status)
	assert.Equal(t, models.StatusHealthy, resp.Checks["storage"])
	assert.Equal(t, "test", resp.Version)
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rr := doJSON(t, router, "DELETE", "/api/v1/limiters", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
