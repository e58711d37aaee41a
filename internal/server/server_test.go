package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stygian-io/styx/internal/config"
	"github.com/stygian-io/styx/internal/database"
)

func testConfig() config.Config {
	return config.Config{
		Environment:       "test",
		HTTPPort:          "0",
		Zone:              "zone-a",
		Colo:              "TST",
		HitWindow:         time.Second,
		ActorTTL:          300 * time.Second,
		CapacityRPS:       500,
		AggWindow:         time.Minute,
		TarpitDuration:    50 * time.Millisecond,
		TarpitInterval:    10 * time.Millisecond,
		IngestWorkers:     1,
		IngestQueueSize:   64,
		IngestMaxAttempts: 2,
		ClearanceSecret:   "test-secret",
		ClearanceTTL:      10 * time.Minute,
	}
}

func setupServer(t *testing.T) *Server {
	db, err := database.Open(":memory:")
	require.NoError(t, err)

	srv, err := New(db, testConfig())
	require.NoError(t, err)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := setupServer(t)

	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Styx")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupServer(t)

	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEvaluateEndpoint(t *testing.T) {
	srv := setupServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"ip":         "203.0.113.7",
		"asn":        64512,
		"path":       "/index.html",
		"method":     "GET",
		"user_agent": "mozilla",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var verdict struct {
		Action string  `json:"action"`
		Hits   int     `json:"hits"`
		Score  float64 `json:"score"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verdict))
	assert.Equal(t, "allow", verdict.Action)
	assert.Equal(t, 1, verdict.Hits)
}

func TestEvaluateRejectsMissingFields(t *testing.T) {
	srv := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewReader([]byte(`{"ip":"203.0.113.7"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCasesEndpoints(t *testing.T) {
	srv := setupServer(t)

	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cases/no-such-uuid", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChallengeVerifyUnconfiguredIsInconclusive(t *testing.T) {
	srv := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/challenge/verify", bytes.NewReader([]byte(`{"token":"abc"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"retry":true`)
	assert.Contains(t, w.Body.String(), `"challenge":true`)
}

func TestGateRouteDefaultsToNoContent(t *testing.T) {
	srv := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/gate/anything", nil)
	req.RemoteAddr = "198.51.100.9:40000"
	req.Header.Set("User-Agent", "mozilla")
	w := httptest.NewRecorder()
	srv.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}
