package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("limiter 'pool-eth' not found", ErrorCodeLimiterNotFound)

	assert.Equal(t, "error", resp.Error)
	assert.Equal(t, "limiter 'pool-eth' not found", resp.Message)
	assert.Equal(t, ErrorCodeLimiterNotFound, resp.Code)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestFlowResult_JSONOmitsEmptyHandle(t *testing.T) {
	result := FlowResult{
		Identifier:    "pool-eth",
		Tracked:       true,
		Status:        "ok",
		SettledTotal:  5000,
		InWindowTotal: -500,
		Projected:     4500,
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "settlement_handle")

	result.SettlementHandle = "handle-1"
	data, err = json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"settlement_handle":"handle-1"`)
}

func TestFlowResult_JSONRoundTrip(t *testing.T) {
	result := FlowResult{
		Identifier:       "pool-eth",
		Tracked:          true,
		Status:           "triggered",
		SettledTotal:     5000,
		InWindowTotal:    -2000,
		Projected:        3000,
		SettlementHandle: "handle-1",
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded FlowResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, result, decoded)
}

func TestErrorCodes_AreDistinct(t *testing.T) {
	codes := []string{
		ErrorCodeNotFound,
		ErrorCodeLimiterNotFound,
		ErrorCodeBadRequest,
		ErrorCodeInvalidRequest,
		ErrorCodeValidation,
		ErrorCodeInternalError,
		ErrorCodeUnauthorized,
		ErrorCodeConflict,
		ErrorCodeSettlementNotReady,
		ErrorCodeServiceUnavailable,
	}

	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate error code %s", code)
		seen[code] = true
	}
}
