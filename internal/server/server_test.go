package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubh-37/social-autoreply/internal/agents"
	"github.com/shubh-37/social-autoreply/internal/models"
	"github.com/shubh-37/social-autoreply/internal/pipeline"
)

const (
	adminToken = "admin-token"
	cronSecret = "cron-secret"
)

type runnerStub struct {
	result *models.RunResult
	err    error
	calls  []string
}

func (r *runnerStub) Run(ctx context.Context, id string) (*models.RunResult, error) {
	r.calls = append(r.calls, "run:"+id)
	return r.result, r.err
}

func (r *runnerStub) Preview(ctx context.Context, id string) (*models.RunResult, error) {
	r.calls = append(r.calls, "preview:"+id)
	return r.result, r.err
}

type accountsStub struct {
	enabled map[string]bool
	err     error
}

func (a *accountsStub) SetAutomation(ctx context.Context, id string, enabled bool) error {
	if a.err != nil {
		return a.err
	}
	a.enabled[id] = enabled
	return nil
}

type logsStub struct {
	entries     []*models.LogEntry
	lastLimit   int
	deleteCalls []time.Time
}

func (l *logsStub) Recent(ctx context.Context, accountID string, limit int) ([]*models.LogEntry, error) {
	l.lastLimit = limit
	return l.entries, nil
}

func (l *logsStub) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	l.deleteCalls = append(l.deleteCalls, cutoff)
	return 7, nil
}

type interactionsStub struct {
	rows          []*models.Interaction
	limit, offset int
	staleAccount  string
	staleCutoff   time.Time
}

func (i *interactionsStub) RecentReplied(ctx context.Context, accountID string, limit, offset int) ([]*models.Interaction, error) {
	i.limit, i.offset = limit, offset
	return i.rows, nil
}

func (i *interactionsStub) DeleteStaleUnreplied(ctx context.Context, accountID string, cutoff time.Time) (int64, error) {
	i.staleAccount = accountID
	i.staleCutoff = cutoff
	return 3, nil
}

type fleetStub struct {
	summary *agents.Summary
	calls   int
}

func (f *fleetStub) RunAll(ctx context.Context) (*agents.Summary, error) {
	f.calls++
	return f.summary, nil
}

type harness struct {
	router       *gin.Engine
	runner       *runnerStub
	accounts     *accountsStub
	logs         *logsStub
	interactions *interactionsStub
	fleet        *fleetStub
	now          time.Time
}

func setup(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()

	h := &harness{
		runner:       &runnerStub{result: &models.RunResult{Replied: true, RepliedTo: "https://x.com/a/status/1", PostedText: "hi", ReplyID: "99"}},
		accounts:     &accountsStub{enabled: map[string]bool{}},
		logs:         &logsStub{},
		interactions: &interactionsStub{},
		fleet:        &fleetStub{summary: &agents.Summary{Total: 3, Replied: 2, Skipped: 1}},
		now:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	srv := New(Deps{
		Runner:       h.runner,
		Accounts:     h.accounts,
		Logs:         h.logs,
		Interactions: h.interactions,
		Fleet:        h.fleet,
		Logger:       logger,
	}, Config{
		AdminToken: adminToken,
		CronSecret: cronSecret,
		Now:        func() time.Time { return h.now },
	})
	h.router = srv.router
	return h
}

func (h *harness) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

var asAdmin = map[string]string{"Authorization": "Bearer " + adminToken}
var asCron = map[string]string{cronSecretHeader: cronSecret}

func TestRunRequiresAuthorization(t *testing.T) {
	h := setup(t)

	resp := h.do(http.MethodPost, "/api/accounts/acc-1/run", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = h.do(http.MethodPost, "/api/accounts/acc-1/run", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = h.do(http.MethodPost, "/api/accounts/acc-1/run", nil, map[string]string{"Authorization": adminToken})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	assert.Empty(t, h.runner.calls)
}

func TestRunAcceptsAdminOrCron(t *testing.T) {
	h := setup(t)

	resp := h.do(http.MethodPost, "/api/accounts/acc-1/run", nil, asAdmin)
	require.Equal(t, http.StatusOK, resp.Code)
	var result models.RunResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.True(t, result.Replied)
	assert.Equal(t, "99", result.ReplyID)

	resp = h.do(http.MethodPost, "/api/accounts/acc-2/run", nil, asCron)
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, []string{"run:acc-1", "run:acc-2"}, h.runner.calls)
}

func TestEmptySecretsNeverMatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	runner := &runnerStub{result: &models.RunResult{}}
	srv := New(Deps{Runner: runner, Logger: logger}, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/accounts/acc-1/run", nil)
	req.Header.Set("Authorization", "Bearer ")
	req.Header.Set(cronSecretHeader, "")
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Empty(t, runner.calls)
}

func TestRunErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		key    string
		value  string
	}{
		{"not found", pipeline.ErrAccountNotFound, http.StatusNotFound, "", ""},
		{"config", &pipeline.ConfigError{Field: "keywords"}, http.StatusBadRequest, "field", "keywords"},
		{"auth", &pipeline.AuthError{Platform: models.PlatformReddit}, http.StatusUnauthorized, "platform", "reddit"},
		{"stage", &pipeline.StageError{Stage: pipeline.StagePost, Err: errors.New("403 forbidden")}, http.StatusBadGateway, "stage", "post"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := setup(t)
			h.runner.err = tc.err
			h.runner.result = nil

			resp := h.do(http.MethodPost, "/api/accounts/acc-1/run", nil, asAdmin)

			assert.Equal(t, tc.status, resp.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			assert.Equal(t, tc.err.Error(), body["error"])
			if tc.key != "" {
				assert.Equal(t, tc.value, body[tc.key])
			}
		})
	}
}

func TestPreview(t *testing.T) {
	h := setup(t)
	h.runner.result = &models.RunResult{PostedText: "draft", Message: "Preview generated"}

	resp := h.do(http.MethodPost, "/api/accounts/acc-1/preview", nil, asAdmin)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"postedText":"draft"`)
	assert.Equal(t, []string{"preview:acc-1"}, h.runner.calls)
}

func TestSetAutomation(t *testing.T) {
	h := setup(t)

	resp := h.do(http.MethodPost, "/api/accounts/acc-1/automation", []byte(`{"enabled":false}`), asAdmin)
	require.Equal(t, http.StatusOK, resp.Code)
	enabled, ok := h.accounts.enabled["acc-1"]
	require.True(t, ok)
	assert.False(t, enabled)

	resp = h.do(http.MethodPost, "/api/accounts/acc-1/automation", []byte(`{}`), asAdmin)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	h.accounts.err = pipeline.ErrAccountNotFound
	resp = h.do(http.MethodPost, "/api/accounts/missing/automation", []byte(`{"enabled":true}`), asAdmin)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

const accountUUID = "3f1c2a8e-9b4d-4c6a-8f0e-2d7b5a1c9e44"

func TestAccountLogsAndInteractionsPaging(t *testing.T) {
	h := setup(t)
	h.logs.entries = []*models.LogEntry{{AccountID: accountUUID, Level: models.LogInfo, Message: "Fetching content"}}

	resp := h.do(http.MethodGet, "/api/accounts/"+accountUUID+"/logs?limit=5000", nil, asAdmin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, maxLogLimit, h.logs.lastLimit)
	assert.Contains(t, resp.Body.String(), "Fetching content")

	resp = h.do(http.MethodGet, "/api/accounts/"+accountUUID+"/logs?limit=abc", nil, asAdmin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, defaultLogLimit, h.logs.lastLimit)

	resp = h.do(http.MethodGet, "/api/accounts/"+accountUUID+"/interactions?limit=10&offset=30", nil, asAdmin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 10, h.interactions.limit)
	assert.Equal(t, 30, h.interactions.offset)
}

func TestZeroLimitIsClamped(t *testing.T) {
	h := setup(t)

	resp := h.do(http.MethodGet, "/api/accounts/"+accountUUID+"/interactions?limit=0", nil, asAdmin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, h.interactions.limit)

	resp = h.do(http.MethodGet, "/api/accounts/"+accountUUID+"/logs?limit=0", nil, asAdmin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, h.logs.lastLimit)
}

func TestMalformedAccountIDIsNotFound(t *testing.T) {
	h := setup(t)

	for _, path := range []string{"/api/accounts/acc-1/logs", "/api/accounts/acc-1/interactions"} {
		resp := h.do(http.MethodGet, path, nil, asAdmin)
		assert.Equal(t, http.StatusNotFound, resp.Code, path)
	}
	assert.Zero(t, h.logs.lastLimit)
	assert.Zero(t, h.interactions.limit)
}

func TestCronRoutesRejectAdminToken(t *testing.T) {
	h := setup(t)

	resp := h.do(http.MethodPost, "/api/cron/run-all", nil, asAdmin)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Zero(t, h.fleet.calls)
}

func TestCronRunAll(t *testing.T) {
	h := setup(t)

	resp := h.do(http.MethodPost, "/api/cron/run-all", nil, asCron)

	require.Equal(t, http.StatusOK, resp.Code)
	var summary agents.Summary
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Replied)
	assert.Equal(t, 1, h.fleet.calls)
}

func TestCronCleanup(t *testing.T) {
	h := setup(t)

	resp := h.do(http.MethodPost, "/api/cron/cleanup", nil, asCron)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"deletedInteractions":3,"deletedLogs":7}`, resp.Body.String())
	assert.Equal(t, "", h.interactions.staleAccount)
	assert.Equal(t, h.now.Add(-24*time.Hour), h.interactions.staleCutoff)
	require.Len(t, h.logs.deleteCalls, 1)
	assert.Equal(t, h.now.Add(-DefaultLogRetention), h.logs.deleteCalls[0])
}

func TestHealthAndMetrics(t *testing.T) {
	h := setup(t)

	resp := h.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = h.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "autoreply_http_requests_total")
}

func TestHealthReportsDatabaseFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	srv := New(Deps{
		Health: func(ctx context.Context) error { return errors.New("connection refused") },
		Logger: logger,
	}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := httptest.NewRecorder()
	srv.Handler().ServeHTTP(resp, req)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), "connection refused")
}
