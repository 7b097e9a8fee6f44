package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-etrv/internal/audit"
	"github.com/nerrad567/gray-logic-etrv/internal/etrv"
	"github.com/nerrad567/gray-logic-etrv/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-etrv/internal/infrastructure/logging"
)

// fakeSession implements Session for testing.
type fakeSession struct {
	mu       sync.Mutex
	snap     etrv.Snapshot
	snapErr  error
	err      error
	calls    []string
	panicked bool
}

func (f *fakeSession) Snapshot(context.Context) (etrv.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicked {
		panic("snapshot exploded")
	}
	return f.snap, f.snapErr
}

func (f *fakeSession) Refresh(context.Context) error {
	return f.call("refresh")
}

func (f *fakeSession) SetSetpoint(_ context.Context, value float64, source string) error {
	return f.call(fmt.Sprintf("setpoint %g %s", value, source))
}

func (f *fakeSession) SetProfileLevel(_ context.Context, level float64, source string) error {
	return f.call(fmt.Sprintf("profile %g %s", level, source))
}

func (f *fakeSession) call(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return f.err
}

// fakeAuditRepo implements audit.Repository for testing.
type fakeAuditRepo struct {
	filter audit.Filter
	err    error
}

func (f *fakeAuditRepo) Create(context.Context, *audit.AuditLog) error { return nil }

func (f *fakeAuditRepo) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return &audit.ListResult{
		Logs:   []audit.AuditLog{{ID: "aud-1", Action: etrv.ActionWriteConfirmed, DeviceID: "1541", Source: "system"}},
		Total:  1,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

type checkFunc func(context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "json"}, "test", io.Discard)
}

func newTestServer(t *testing.T, session *fakeSession, deps Deps) http.Handler {
	t.Helper()
	deps.Logger = testLogger()
	deps.Session = session
	deps.Version = "test"
	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Deps{Session: &fakeSession{}}); err == nil {
		t.Error("New() without logger succeeded")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without session succeeded")
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		session    *fakeSession
		checks     map[string]HealthChecker
		wantCode   int
		wantStatus string
		wantComp   map[string]string
	}{
		{
			name:       "ok",
			session:    &fakeSession{snap: etrv.Snapshot{DeviceID: "1541", Connection: "idle"}},
			checks:     map[string]HealthChecker{"mqtt": checkFunc(func(context.Context) error { return nil })},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantComp:   map[string]string{"session": "idle", "mqtt": "ok"},
		},
		{
			name:       "component down",
			session:    &fakeSession{snap: etrv.Snapshot{DeviceID: "1541", Connection: "awaiting"}},
			checks:     map[string]HealthChecker{"influxdb": checkFunc(func(context.Context) error { return errors.New("ping failed") })},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantComp:   map[string]string{"session": "awaiting", "influxdb": "ping failed"},
		},
		{
			name:       "session stopped",
			session:    &fakeSession{snapErr: etrv.ErrSessionStopped},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantComp:   map[string]string{"session": etrv.ErrSessionStopped.Error()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, tt.session, Deps{Checks: tt.checks})
			rec := do(t, h, http.MethodGet, "/api/v1/health", "")

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			body := decode[struct {
				Status     string            `json:"status"`
				Version    string            `json:"version"`
				Components map[string]string `json:"components"`
			}](t, rec)
			if body.Status != tt.wantStatus || body.Version != "test" {
				t.Errorf("body = %+v", body)
			}
			if fmt.Sprint(body.Components) != fmt.Sprint(tt.wantComp) {
				t.Errorf("components = %v, want %v", body.Components, tt.wantComp)
			}
		})
	}
}

func TestGetState(t *testing.T) {
	session := &fakeSession{snap: etrv.Snapshot{
		DeviceID:   "1541",
		State:      etrv.DeviceState{Setpoint: 21.5, Temperature: 20.25, ValveLevel: 37, ActiveProfile: 1},
		Battery:    "ok",
		Connection: "idle",
		Task:       "idle",
		Display: map[string]etrv.DisplayUpdate{
			"valve": {Role: etrv.RoleValveLevel, SValue: "37", Value: 37},
		},
	}}
	h := newTestServer(t, session, Deps{})

	rec := do(t, h, http.MethodGet, "/api/v1/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["device_id"] != "1541" || got["battery"] != "ok" || got["connection"] != "idle" {
		t.Errorf("snapshot = %v", got)
	}
	display, _ := got["display"].(map[string]any)
	valve, _ := display["valve"].(map[string]any)
	if valve["role"] != "valve" || valve["s_value"] != "37" {
		t.Errorf("display.valve = %v", valve)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		sessionErr error
		wantCode   int
		wantCall   string
		wantTask   string
		wantErr    string
	}{
		{"setpoint", "/api/v1/setpoint", `{"value":21.5}`, nil, http.StatusAccepted, "setpoint 21.5 api", "write_setpoint(21.5)", ""},
		{"profile", "/api/v1/profile", `{"level":20}`, nil, http.StatusAccepted, "profile 20 api", "write_profile(2)", ""},
		{"busy", "/api/v1/setpoint", `{"value":19}`, fmt.Errorf("x: %w", etrv.ErrBusy), http.StatusConflict, "setpoint 19 api", "", ErrCodeConflict},
		{"invalid level", "/api/v1/profile", `{"level":-5}`, etrv.ErrInvalidProfileLevel, http.StatusUnprocessableEntity, "profile -5 api", "", ErrCodeValidation},
		{"level beyond profile 3", "/api/v1/profile", `{"level":45}`, fmt.Errorf("x: %w", etrv.ErrInvalidProfileLevel), http.StatusUnprocessableEntity, "profile 45 api", "", ErrCodeValidation},
		{"stopped", "/api/v1/setpoint", `{"value":20}`, etrv.ErrSessionStopped, http.StatusServiceUnavailable, "setpoint 20 api", "", ErrCodeUnavailable},
		{"missing value", "/api/v1/setpoint", `{}`, nil, http.StatusBadRequest, "", "", ErrCodeBadRequest},
		{"missing level", "/api/v1/profile", `{"value":3}`, nil, http.StatusBadRequest, "", "", ErrCodeBadRequest},
		{"bad json", "/api/v1/setpoint", `{"value":`, nil, http.StatusBadRequest, "", "", ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{err: tt.sessionErr}
			h := newTestServer(t, session, Deps{})

			rec := do(t, h, http.MethodPut, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body)
			}

			switch {
			case tt.wantCall == "" && len(session.calls) != 0:
				t.Errorf("session calls = %v, want none", session.calls)
			case tt.wantCall != "" && (len(session.calls) != 1 || session.calls[0] != tt.wantCall):
				t.Errorf("session calls = %v, want [%s]", session.calls, tt.wantCall)
			}

			if tt.wantErr != "" {
				if e := decode[Error](t, rec); e.Code != tt.wantErr || e.Status != tt.wantCode {
					t.Errorf("error body = %+v", e)
				}
				return
			}
			if resp := decode[commandResponse](t, rec); resp.Status != "accepted" || resp.Task != tt.wantTask {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	session := &fakeSession{}
	h := newTestServer(t, session, Deps{})

	rec := do(t, h, http.MethodPost, "/api/v1/refresh", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decode[commandResponse](t, rec); resp.Task != "fetch_all" {
		t.Errorf("task = %q", resp.Task)
	}

	session.err = etrv.ErrBusy
	if rec := do(t, h, http.MethodPost, "/api/v1/refresh", ""); rec.Code != http.StatusConflict {
		t.Errorf("busy refresh status = %d, want 409", rec.Code)
	}
}

func TestAudit(t *testing.T) {
	repo := &fakeAuditRepo{}
	h := newTestServer(t, &fakeSession{}, Deps{AuditRepo: repo})

	rec := do(t, h, http.MethodGet, "/api/v1/audit?action=write_confirmed&role=setpoint&limit=10&offset=20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := audit.Filter{Action: "write_confirmed", Role: "setpoint", Limit: 10, Offset: 20}
	if repo.filter != want {
		t.Errorf("filter = %+v, want %+v", repo.filter, want)
	}
	if res := decode[audit.ListResult](t, rec); res.Total != 1 || len(res.Logs) != 1 {
		t.Errorf("result = %+v", res)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/audit?limit=ten", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}

	repo.err = errors.New("disk I/O error")
	if rec := do(t, h, http.MethodGet, "/api/v1/audit", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("repo failure status = %d, want 500", rec.Code)
	}
}

func TestAudit_NotConfigured(t *testing.T) {
	h := newTestServer(t, &fakeSession{}, Deps{})
	if rec := do(t, h, http.MethodGet, "/api/v1/audit", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestMiddleware(t *testing.T) {
	session := &fakeSession{panicked: true}
	h := newTestServer(t, session, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("panic status = %d, want 500", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/setpoint", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method status = %d, want 405", rec.Code)
	}

	big := `{"value":` + strings.Repeat(" ", maxRequestBodySize) + `1}`
	req = httptest.NewRequest(http.MethodPut, "/api/v1/setpoint", bytes.NewBufferString(big))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized body status = %d, want 400", rec.Code)
	}
}

func TestStartAndClose(t *testing.T) {
	s, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		Logger:  testLogger(),
		Session: &fakeSession{snap: etrv.Snapshot{DeviceID: "1541"}},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
