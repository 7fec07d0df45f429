package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"flowguard/internal/guard"
	"flowguard/internal/models"
	"flowguard/internal/storage"
	"flowguard/internal/version"
)

// Handlers contains HTTP handlers for the flowguard API
type Handlers struct {
	service guard.ServiceInterface
	store   storage.Storage
	version version.Info
}

// NewHandlers creates a new handlers instance
func NewHandlers(service guard.ServiceInterface, store storage.Storage, ver version.Info) *Handlers {
	return &Handlers{
		service: service,
		store:   store,
		version: ver,
	}
}

// CreateLimiter handles limiter registration requests
// POST /api/v1/limiters
func (h *Handlers) CreateLimiter(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLimiterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	response, err := h.service.CreateLimiter(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, response)
}

// ReconfigureLimiter handles threshold updates for an existing limiter
// PUT /api/v1/limiters/{identifier}
func (h *Handlers) ReconfigureLimiter(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]

	var req models.ReconfigureLimiterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	response, err := h.service.ReconfigureLimiter(r.Context(), identifier, &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// SetOverride handles manual bypass toggling
// POST /api/v1/limiters/{identifier}/override
func (h *Handlers) SetOverride(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]

	var req models.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	if err := h.service.SetOverride(r.Context(), identifier, req.Overridden); err != nil {
		h.writeServiceError(w, err)
		return
	}

	status, err := h.service.LimiterStatus(r.Context(), identifier)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, status)
}

// RecordFlow handles flow event ingestion
// POST /api/v1/limiters/{identifier}/flows
func (h *Handlers) RecordFlow(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]

	var req models.RecordFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	response, err := h.service.RecordFlow(r.Context(), identifier, &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// GetStatus handles non-mutating status queries
// GET /api/v1/limiters/{identifier}/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]

	response, err := h.service.LimiterStatus(r.Context(), identifier)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// InspectLimiter handles diagnostic inspection requests
// GET /api/v1/limiters/{identifier}
func (h *Handlers) InspectLimiter(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]

	response, err := h.service.InspectLimiter(r.Context(), identifier)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// ListLimiters handles limiter listing requests
// GET /api/v1/limiters
func (h *Handlers) ListLimiters(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.ListLimiters(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// SyncLimiter handles explicit backlog eviction requests. The body is
// optional; an empty body uses the service-wide eviction budget.
// POST /api/v1/limiters/{identifier}/sync
func (h *Handlers) SyncLimiter(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]

	req := &models.SyncRequest{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
			return
		}
	}

	response, err := h.service.ClearBacklog(r.Context(), identifier, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// GetBreaches handles breach audit trail requests
// GET /api/v1/limiters/{identifier}/breaches
func (h *Handlers) GetBreaches(w http.ResponseWriter, r *http.Request) {
	identifier := mux.Vars(r)["identifier"]

	response, err := h.service.Breaches(r.Context(), identifier)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// ListSettlements handles pending settlement listing requests
// GET /api/v1/settlements
func (h *Handlers) ListSettlements(w http.ResponseWriter, r *http.Request) {
	actions, err := h.service.PendingSettlements(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	responses := make([]models.SettlementResponse, 0, len(actions))
	for _, action := range actions {
		responses = append(responses, guard.SettlementToResponse(action))
	}

	h.writeJSONResponse(w, http.StatusOK, responses)
}

// GetSettlement handles settlement lookup by handle
// GET /api/v1/settlements/{handle}
func (h *Handlers) GetSettlement(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]

	action, err := h.service.GetSettlement(r.Context(), handle)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, guard.SettlementToResponse(action))
}

// ExecuteSettlement releases a deferred action once its delay has elapsed
// POST /api/v1/settlements/{handle}/execute
func (h *Handlers) ExecuteSettlement(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]

	action, err := h.service.ExecuteSettlement(r.Context(), handle)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, guard.SettlementToResponse(action))
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := &models.HealthResponse{
		Status:    models.StatusHealthy,
		Version:   h.version.Version,
		Timestamp: time.Now().UTC(),
		Checks:    map[string]string{"api": models.StatusHealthy},
	}

	statusCode := http.StatusOK
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			response.Status = models.StatusDegraded
			response.Checks["storage"] = models.StatusUnhealthy
			statusCode = http.StatusServiceUnavailable
		} else {
			response.Checks["storage"] = models.StatusHealthy
		}
	}

	h.writeJSONResponse(w, statusCode, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing to send to the client.
		fmt.Printf("Error encoding JSON response: %v\n", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	h.writeJSONResponse(w, statusCode, errorResp)
}

// writeServiceError maps guard service errors onto HTTP responses, falling
// back to a 500 for anything unclassified.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *guard.ServiceError
	if errors.As(err, &svcErr) {
		h.writeErrorResponse(w, svcErr.StatusCode, svcErr.Code, svcErr.Message)
		return
	}
	h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
}
