package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/counsel/internal/models"
	"github.com/jordanhubbard/counsel/internal/orchestrator"
)

func newTestServer(t *testing.T, jwtSecret string) (*Server, http.Handler) {
	t.Helper()
	engine := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.Deps{})
	server := NewServer(engine, jwtSecret)
	return server, server.SetupRoutes()
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestSubmitTask(t *testing.T) {
	_, handler := newTestServer(t, "")

	rec := postJSON(t, handler, "/api/v1/tasks", &models.Task{
		Description: "Get campaign list from the API",
		Complexity:  2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var outcome models.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.True(t, outcome.Success)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, models.TierDirect, outcome.Result.Tier)
}

func TestSubmitTaskRejectsEmptyDescription(t *testing.T) {
	_, handler := newTestServer(t, "")

	rec := postJSON(t, handler, "/api/v1/tasks", &models.Task{Description: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTaskRejectsMalformedBody(t *testing.T) {
	_, handler := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskMethodNotAllowed(t *testing.T) {
	_, handler := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFeedbackRoundTrip(t *testing.T) {
	_, handler := newTestServer(t, "")

	rec := postJSON(t, handler, "/api/v1/tasks", &models.Task{
		Description: "Get campaign list from the API",
		Complexity:  2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var outcome models.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))

	rec = postJSON(t, handler, "/api/v1/tasks/"+outcome.TaskID+"/feedback", &models.Feedback{
		Satisfaction: 0.9,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFeedbackUnknownTask(t *testing.T) {
	_, handler := newTestServer(t, "")

	rec := postJSON(t, handler, "/api/v1/tasks/no-such-task/feedback", &models.Feedback{
		Satisfaction: 0.5,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedbackRejectsOutOfRangeSatisfaction(t *testing.T) {
	_, handler := newTestServer(t, "")

	rec := postJSON(t, handler, "/api/v1/tasks/some-task/feedback", &models.Feedback{
		Satisfaction: 1.5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	_, handler := newTestServer(t, "")

	rec := postJSON(t, handler, "/api/v1/tasks", &models.Task{
		Description: "Get campaign list from the API",
		Complexity:  2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	statusRec := httptest.NewRecorder()
	handler.ServeHTTP(statusRec, req)
	require.Equal(t, http.StatusOK, statusRec.Code)

	var status orchestrator.SystemStatus
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
	assert.Equal(t, 1, status.WindowSize)
	assert.InDelta(t, 1.0, status.SuccessRate, 1e-9)
}

func TestMetricsEndpoint(t *testing.T) {
	_, handler := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequiredWhenSecretConfigured(t *testing.T) {
	_, handler := newTestServer(t, "test-secret")

	rec := postJSON(t, handler, "/api/v1/tasks", &models.Task{Description: "List users"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays reachable for probes.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	healthRec := httptest.NewRecorder()
	handler.ServeHTTP(healthRec, req)
	assert.Equal(t, http.StatusOK, healthRec.Code)
}

func TestAuthAcceptsValidToken(t *testing.T) {
	_, handler := newTestServer(t, "test-secret")

	token, err := NewToken("test-secret", "tester", time.Hour)
	require.NoError(t, err)

	data, err := json.Marshal(&models.Task{Description: "Get campaign list", Complexity: 2})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(data))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRejectsTokenSignedWithWrongSecret(t *testing.T) {
	_, handler := newTestServer(t, "test-secret")

	token, err := NewToken("other-secret", "tester", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
