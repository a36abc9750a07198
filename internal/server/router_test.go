package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fms/internal/execution"
	"fms/internal/ledger"
	"fms/internal/sandbox/observer"
	"fms/internal/sandbox/result"
	"fms/internal/sandbox/spec"
	"fms/internal/server/controller"
	"fms/internal/server/service"
	"fms/pkg/errors"
)

type fakeEngine struct {
	mu     sync.Mutex
	res    result.RunResult
	calls  []spec.RunSpec
	killed []string
}

func (f *fakeEngine) Run(_ context.Context, rs spec.RunSpec) (result.RunResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rs)
	f.mu.Unlock()
	if rs.Stdout != nil {
		_, _ = rs.Stdout.Write([]byte("hello\n"))
	}
	res := f.res
	res.JobID = rs.JobID
	return res, nil
}

func (f *fakeEngine) KillJob(_ context.Context, jobID string) error {
	if jobID != "running" {
		return errors.NotFoundError("job")
	}
	f.killed = append(f.killed, jobID)
	return nil
}

type passResolver struct{}

func (passResolver) Resolve(path string) (string, error) { return path, nil }

type envelope struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
}

type testServer struct {
	router *gin.Engine
	eng    *fakeEngine
	auth   *service.AuthService
	// token is sent as the bearer token; empty sends none.
	token string
}

const testSecret = "test-secret"

func newTestServer(t *testing.T, cpu float64, jobs controller.JobOptions) *testServer {
	t.Helper()
	return newTestServerWith(t, cpu, jobs, func(d *Deps) {})
}

// newTestServerWith builds a server whose requests carry an admin token
// until the test swaps it.
func newTestServerWith(t *testing.T, cpu float64, jobs controller.JobOptions, tweak func(*Deps)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng := &fakeEngine{res: result.RunResult{
		Outcome: result.Success,
		Normal:  true,
		Sample:  result.Sample{CPUSeconds: cpu, WallSeconds: 1, CPUSource: "proctable"},
	}}
	metrics := observer.NewPrometheus(false)
	accounts := ledger.NewAccounts(ledger.NewFileStore(t.TempDir()), ledger.Options{Recorder: metrics})
	orch := execution.New(eng, execution.Options{Resolver: passResolver{}, Recorder: metrics})
	auth := service.NewAuthService(testSecret, "fms")
	deps := Deps{
		Orchestrator: orch,
		Accounts:     accounts,
		Jobs:         jobs,
		Gatherer:     metrics.Gatherer(),
		Auth:         auth,
	}
	tweak(&deps)
	s := &testServer{router: NewRouter(deps), eng: eng, auth: auth}
	s.token = s.issue(t, "ops", service.RoleAdmin)
	return s
}

func (s *testServer) issue(t *testing.T, user, role string) string {
	t.Helper()
	token, err := s.auth.Issue(user, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

type jobData struct {
	JobID     string   `json:"job_id"`
	Outcome   string   `json:"outcome"`
	Cost      float64  `json:"cost"`
	Balance   *float64 `json:"balance"`
	Remaining *float64 `json:"remaining_quota"`
	Stdout    string   `json:"stdout"`
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, 1, controller.JobOptions{})
	w, _ := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestPrepaidJobOverBalance(t *testing.T) {
	s := newTestServer(t, 12, controller.JobOptions{Defaults: spec.Quota{CPUSeconds: 60}})

	w, env := s.do(t, http.MethodPost, "/api/v1/accounts/alice/credits", map[string]float64{"amount": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, errors.Success, env.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"user": "alice", "mode": "prepaid", "path": "/bin/work", "job_id": "j1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data jobData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "j1", data.JobID)
	assert.Equal(t, "NO_CREDITS", data.Outcome)
	assert.InDelta(t, 12.0, data.Cost, 1e-9)
	require.NotNil(t, data.Balance)
	assert.Equal(t, 10.0, *data.Balance)
	assert.Equal(t, "hello\n", data.Stdout)

	require.Len(t, s.eng.calls, 1)
	assert.Equal(t, 60.0, s.eng.calls[0].Quota.CPUSeconds)

	w, env = s.do(t, http.MethodGet, "/api/v1/accounts/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"alice","credits":10}`, string(env.Data))
}

func TestPostpaidUsageLifecycle(t *testing.T) {
	s := newTestServer(t, 3.5, controller.JobOptions{})

	w, _ := s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"user": "bob", "mode": "postpaid", "path": "/bin/work", "cpu_seconds": 5, "label": "nightly",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env := s.do(t, http.MethodGet, "/api/v1/accounts/bob/usage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var usage controller.UsageResponse
	require.NoError(t, json.Unmarshal(env.Data, &usage))
	require.Len(t, usage.Records, 1)
	assert.Equal(t, "nightly", usage.Records[0].Binary)
	assert.InDelta(t, 3.5, usage.Total, 1e-9)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/accounts/bob/usage", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, env = s.do(t, http.MethodGet, "/api/v1/accounts/bob/usage", nil)
	require.NoError(t, json.Unmarshal(env.Data, &usage))
	assert.Empty(t, usage.Records)
	assert.Zero(t, usage.Total)
}

func TestQuotaExhaustedJob(t *testing.T) {
	s := newTestServer(t, 1, controller.JobOptions{Quota: execution.NewQuotaAccount(20)})

	w, env := s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"path": "/bin/work", "cpu_seconds": 25,
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, errors.QuotaExhausted, env.Code)
	var data jobData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "LAUNCH_ERROR", data.Outcome)
	require.NotNil(t, data.Remaining)
	assert.Equal(t, 20.0, *data.Remaining)
	assert.Empty(t, s.eng.calls)
}

func TestJobValidation(t *testing.T) {
	s := newTestServer(t, 1, controller.JobOptions{})

	w, env := s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"args": []string{"x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.InvalidParams, env.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"path": "/bin/work", "mode": "barter"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errors.InvalidPaymentMode, env.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/accounts/bad%20user", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/accounts/alice/credits", map[string]float64{"amount": -3})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKillJob(t *testing.T) {
	s := newTestServer(t, 1, controller.JobOptions{})

	w, _ := s.do(t, http.MethodDelete, "/api/v1/jobs/running", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"running"}, s.eng.killed)

	w, env := s.do(t, http.MethodDelete, "/api/v1/jobs/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errors.NotFound, env.Code)
}

func TestSlotsFullRejectsJob(t *testing.T) {
	slots := service.NewSlots(1, 10*time.Millisecond)
	require.NoError(t, slots.Acquire(context.Background()))
	s := newTestServer(t, 1, controller.JobOptions{Slots: slots})

	w, env := s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"path": "/bin/work"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, errors.JobQueueFull, env.Code)
	assert.Empty(t, s.eng.calls)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, 2, controller.JobOptions{})
	w, _ := s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"path": "/bin/work"})
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fms_jobs_total{outcome="SUCCESS"} 1`)
}

func TestAPIRejectsAnonymousCallers(t *testing.T) {
	s := newTestServer(t, 1, controller.JobOptions{})
	admin := s.token

	w, _ := s.do(t, http.MethodPost, "/api/v1/accounts/alice/credits", map[string]float64{"amount": 200})
	require.Equal(t, http.StatusOK, w.Code)

	s.token = ""
	w, env := s.do(t, http.MethodPost, "/api/v1/accounts/alice/credits", map[string]float64{"amount": 1e9})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, errors.Unauthorized, env.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/accounts/bob/usage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/accounts/alice", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"path": "/bin/work"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, s.eng.calls)

	s.token = "garbage"
	w, env = s.do(t, http.MethodGet, "/api/v1/accounts/alice", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, errors.TokenInvalid, env.Code)

	s.token = admin
	_, env = s.do(t, http.MethodGet, "/api/v1/accounts/alice", nil)
	assert.JSONEq(t, `{"user":"alice","credits":200}`, string(env.Data))

	w, _ = s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUserTokenIsScopedToItsAccount(t *testing.T) {
	s := newTestServer(t, 2, controller.JobOptions{})
	s.token = s.issue(t, "alice", service.RoleUser)

	w, env := s.do(t, http.MethodPost, "/api/v1/accounts/alice/credits", map[string]float64{"amount": 50})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, errors.Forbidden, env.Code)
	w, _ = s.do(t, http.MethodDelete, "/api/v1/accounts/alice/usage", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/accounts/bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/accounts/bob/usage", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"user": "bob", "mode": "postpaid", "path": "/bin/work",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, s.eng.calls)

	// Without a user the job is billed to the token's account.
	w, _ = s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"mode": "postpaid", "path": "/bin/work"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, env = s.do(t, http.MethodGet, "/api/v1/accounts/alice/usage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var usage controller.UsageResponse
	require.NoError(t, json.Unmarshal(env.Data, &usage))
	assert.Equal(t, "alice", usage.User)
	require.Len(t, usage.Records, 1)
	assert.InDelta(t, 2.0, usage.Total, 1e-9)

	// Jobs of other users cannot be killed.
	w, _ = s.do(t, http.MethodDelete, "/api/v1/jobs/running", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, s.eng.killed)
}

func TestAuthMisconfigured(t *testing.T) {
	s := newTestServerWith(t, 1, controller.JobOptions{}, func(d *Deps) { d.Auth = nil })
	w, env := s.do(t, http.MethodGet, "/api/v1/accounts/alice", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, errors.ServiceUnavailable, env.Code)
}

func TestAuthDisabled(t *testing.T) {
	s := newTestServerWith(t, 1, controller.JobOptions{}, func(d *Deps) {
		d.Auth = nil
		d.AuthDisabled = true
	})
	s.token = ""
	w, _ := s.do(t, http.MethodPost, "/api/v1/accounts/alice/credits", map[string]float64{"amount": 5})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"path": "/bin/work"})
	assert.Equal(t, http.StatusOK, w.Code)
}
