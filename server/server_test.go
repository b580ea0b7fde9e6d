package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automagick_post_producer/pipeline"
	"automagick_post_producer/producer"
	"automagick_post_producer/store"
)

type mockProducer struct {
	settings    producer.SettingsView
	saved       *producer.SettingsInput
	saveErr     error
	validKey    string
	validated   string
	runErr      error
	outcome     producer.RunOutcome
	runs        []store.Run
	limit       int
	sched       producer.ScheduleView
	cleared     bool
	internalErr error
}

func (m *mockProducer) Settings(context.Context) (producer.SettingsView, error) {
	return m.settings, m.internalErr
}

func (m *mockProducer) SaveSettings(_ context.Context, in producer.SettingsInput) (producer.SettingsView, error) {
	if m.saveErr != nil {
		return producer.SettingsView{}, m.saveErr
	}
	m.saved = &in
	v := producer.SettingsView{HasAPIKey: in.APIKey != ""}
	v.TopicPrompt = in.TopicPrompt
	return v, nil
}

func (m *mockProducer) ValidateCredential(_ context.Context, key string) (bool, error) {
	m.validated = key
	return key == m.validKey, nil
}

func (m *mockProducer) RunNow(context.Context, producer.Trigger) (producer.RunOutcome, error) {
	return m.outcome, m.runErr
}

func (m *mockProducer) Runs(_ context.Context, limit int) ([]store.Run, error) {
	m.limit = limit
	return m.runs, nil
}

func (m *mockProducer) Schedule(context.Context) (producer.ScheduleView, error) {
	return m.sched, nil
}

func (m *mockProducer) ClearSchedule(context.Context) error {
	m.cleared = true
	return nil
}

func setupTestRouter(t *testing.T, p Producer) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv, err := New(p, prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	return srv.Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthzAndMetrics(t *testing.T) {
	h := setupTestRouter(t, &mockProducer{})
	w := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSettings_GetHidesKey(t *testing.T) {
	m := &mockProducer{}
	m.settings.APIKey = "encrypted-secret"
	m.settings.TopicPrompt = "Suggest a topic"
	m.settings.HasAPIKey = true
	h := setupTestRouter(t, m)

	w := do(t, h, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "encrypted-secret")

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, true, got["has_api_key"])
	assert.Equal(t, "Suggest a topic", got["topic_prompt"])
}

func TestSettings_Save(t *testing.T) {
	m := &mockProducer{}
	h := setupTestRouter(t, m)

	w := do(t, h, http.MethodPut, "/api/settings", `{"api_key":"sk-1","topic_prompt":"x","frequency":"hourly","time_of_day":"10:00","post_type":"page"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, m.saved)
	assert.Equal(t, producer.SettingsInput{APIKey: "sk-1", TopicPrompt: "x", Frequency: "hourly", TimeOfDay: "10:00", ContentType: "page"}, *m.saved)

	w = do(t, h, http.MethodPut, "/api/settings", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	m.saveErr = &producer.InvalidSettingsError{Field: "time_of_day", Reason: "bad hour"}
	w = do(t, h, http.MethodPut, "/api/settings", `{"time_of_day":"99:00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid time_of_day")
}

func TestValidate(t *testing.T) {
	m := &mockProducer{validKey: "sk-good"}
	h := setupTestRouter(t, m)

	w := do(t, h, http.MethodPost, "/api/credential/validate", `{"api_key":"sk-good"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":true}`, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/credential/validate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":false}`, w.Body.String())
	assert.Empty(t, m.validated)
}

func TestRuns_Create(t *testing.T) {
	m := &mockProducer{outcome: producer.RunOutcome{
		ID:      "run-1",
		Trigger: producer.TriggerManual,
		Result:  pipeline.Result{ItemID: "5", Stage: pipeline.StageDone},
		Report:  "Test generation results:\n",
	}}
	h := setupTestRouter(t, m)

	w := do(t, h, http.MethodPost, "/api/runs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got producer.RunOutcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "5", got.Result.ItemID)
}

func TestRuns_CreateErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{producer.ErrRunInProgress, http.StatusConflict},
		{producer.ErrNotConfigured, http.StatusPreconditionFailed},
		{errors.New("database is locked"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := setupTestRouter(t, &mockProducer{runErr: tt.err})
		w := do(t, h, http.MethodPost, "/api/runs", "")
		assert.Equal(t, tt.code, w.Code, tt.err.Error())
		assert.Contains(t, w.Body.String(), tt.err.Error())
	}
}

func TestRuns_List(t *testing.T) {
	m := &mockProducer{runs: []store.Run{{ID: "a", Outcome: "published"}}}
	h := setupTestRouter(t, m)

	w := do(t, h, http.MethodGet, "/api/runs?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, m.limit)
	assert.Contains(t, w.Body.String(), `"id":"a"`)

	w = do(t, h, http.MethodGet, "/api/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSchedule(t *testing.T) {
	next := time.Date(2026, 4, 11, 7, 5, 0, 0, time.UTC)
	m := &mockProducer{sched: producer.ScheduleView{Scheduled: true, Frequency: "daily", TimeOfDay: "07:05", Interval: "24h0m0s", NextRun: &next}}
	h := setupTestRouter(t, m)

	w := do(t, h, http.MethodGet, "/api/schedule", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"next_run":"2026-04-11T07:05:00Z"`)

	w = do(t, h, http.MethodDelete, "/api/schedule", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, m.cleared)
}

func TestInternalErrorsAre500(t *testing.T) {
	h := setupTestRouter(t, &mockProducer{internalErr: errors.New("boom")})
	w := do(t, h, http.MethodGet, "/api/settings", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNew_RequiresProducer(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
}
