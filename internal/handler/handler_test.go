package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/probeline/probeline/internal/metrics"
	"github.com/probeline/probeline/internal/plugin"
	"github.com/probeline/probeline/internal/probe"
	"github.com/probeline/probeline/internal/storage"
	"github.com/probeline/probeline/internal/testutil"
)

func TestNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, httptest.NewRequest(http.MethodGet, "/nonexistent", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var body ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Error.Code != "NOT_FOUND" {
		t.Errorf("unexpected error code: %s", body.Error.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	MethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/v1/probes", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rec.Code)
	}
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler(&mockHealthChecker{err: errors.New("down")}, nil)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("liveness must not depend on storage, got %d", rec.Code)
	}
}

func TestHealthHandler_Readyz(t *testing.T) {
	tests := []struct {
		name       string
		storage    HealthChecker
		redis      HealthChecker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "all healthy",
			storage:    &mockHealthChecker{},
			redis:      &mockHealthChecker{},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"storage": "ok", "redis": "ok"},
		},
		{
			name:       "redis not configured",
			storage:    &mockHealthChecker{},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"storage": "ok", "redis": "not configured"},
		},
		{
			name:       "storage unhealthy",
			storage:    &mockHealthChecker{err: errors.New("connection refused")},
			redis:      &mockHealthChecker{},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"storage": "error: connection refused", "redis": "ok"},
		},
		{
			name:       "redis unhealthy",
			storage:    &mockHealthChecker{},
			redis:      &mockHealthChecker{err: errors.New("timeout")},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"storage": "ok", "redis": "error: timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.storage, tt.redis)
			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, resp.Checks[name], want)
				}
			}
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	recorder := metrics.NewInMemory()
	recorder.IncEventReceived("http")
	recorder.IncFlush("failed")
	recorder.SetStreamQueueDepth(7)

	rec := httptest.NewRecorder()
	NewMetricsHandler(recorder).Metrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`probeline_events_received_total{source="http"} 1`,
		`probeline_flushes_total{status="failed"} 1`,
		`probeline_stream_queue_depth 7`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q:\n%s", want, body)
		}
	}

	rec = httptest.NewRecorder()
	NewMetricsHandler(nil).Metrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without snapshotter, got %d", rec.Code)
	}
}

type engineFixture struct {
	plugin   *plugin.Plugin
	store    *storage.Memory
	recorder *metrics.InMemoryRecorder
	router   http.Handler
}

func newEngineFixture(t *testing.T, dummy bool) *engineFixture {
	t.Helper()

	f := &engineFixture{store: storage.NewMemory(), recorder: metrics.NewInMemory()}
	raw := map[string]any{
		probe.KeyDatabases:    []any{"memory"},
		probe.KeyStorageIndex: "probes",
		probe.KeyProbes: map[string]any{
			"created": map[string]any{
				"type":  "monitor",
				"hooks": []any{"data:afterCreate"},
			},
			"users": map[string]any{
				"type":       "counter",
				"increasers": []any{"data:afterCreate"},
				"decreasers": []any{"data:afterDelete"},
				"interval":   "10m",
			},
			"broken": map[string]any{
				"type": "nonsense",
			},
		},
	}

	p, err := plugin.Initialize(context.Background(), raw, plugin.Options{
		Dummy: dummy,
		OpenStore: func(ctx context.Context, url string) (storage.Store, error) {
			return f.store, nil
		},
		Logger:  testutil.DiscardLogger(),
		Metrics: f.recorder,
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	f.plugin = p

	logger := testutil.DiscardLogger()
	events := NewEventsHandler(p, logger, f.recorder)
	probes := NewProbesHandler(p, logger)

	r := chi.NewRouter()
	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)
	r.Post("/v1/events/{hook}", events.Ingest)
	r.Get("/v1/probes", probes.List)
	r.Get("/v1/probes/{id}", probes.Get)
	r.Post("/v1/probes/{id}/flush", probes.Flush)
	f.router = r
	return f
}

func (f *engineFixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestEventsHandler_Ingest(t *testing.T) {
	f := newEngineFixture(t, false)

	rec := f.do(http.MethodPost, "/v1/events/data:afterCreate", `{"index":"app","collection":"users","id":"u1","body":{"name":"ada"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp IngestResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Event != "data:afterCreate" || len(resp.RoutedTo) != 2 {
		t.Errorf("unexpected response %+v", resp)
	}

	snap, ok := f.plugin.Measure("created")
	if !ok || snap.Hooks["data:afterCreate"] != 1 {
		t.Errorf("monitor measure = %+v", snap)
	}
	counter, _ := f.plugin.Measure("users")
	if counter.Value != 1 {
		t.Errorf("counter value = %d, want 1", counter.Value)
	}
	if f.recorder.Snapshot().EventsReceivedHTTP != 1 {
		t.Error("expected http event metric")
	}
}

func TestEventsHandler_IngestWithoutBody(t *testing.T) {
	f := newEngineFixture(t, false)

	rec := f.do(http.MethodPost, "/v1/events/data:afterDelete", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	counter, _ := f.plugin.Measure("users")
	if counter.Value != -1 {
		t.Errorf("counter value = %d, want -1", counter.Value)
	}
}

func TestEventsHandler_IgnoredHook(t *testing.T) {
	f := newEngineFixture(t, false)

	rec := f.do(http.MethodPost, "/v1/events/core:kuzzleStart", `{}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp IngestResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.RoutedTo == nil || len(resp.RoutedTo) != 0 {
		t.Errorf("routed_to = %#v, want empty list", resp.RoutedTo)
	}
}

func TestEventsHandler_Rejects(t *testing.T) {
	f := newEngineFixture(t, false)

	tests := []struct {
		name string
		hook string
		body string
		want string
	}{
		{"malformed hook", "afterCreate", `{}`, "VALIDATION_ERROR"},
		{"malformed json", "data:afterCreate", `{"index":`, "INVALID_JSON"},
		{"array body", "data:afterCreate", `{"body":[1,2,3]}`, "VALIDATION_ERROR"},
		{"wrong field type", "data:afterCreate", `{"index":42}`, "INVALID_JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/v1/events/"+tt.hook, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var body ErrorBody
			_ = json.NewDecoder(rec.Body).Decode(&body)
			if body.Error.Code != tt.want {
				t.Errorf("code = %s, want %s", body.Error.Code, tt.want)
			}
		})
	}

	if f.recorder.Snapshot().EventsReceivedHTTP != 0 {
		t.Error("rejected events must not be counted")
	}
}

func TestProbesHandler_List(t *testing.T) {
	f := newEngineFixture(t, false)

	rec := f.do(http.MethodGet, "/v1/probes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Dummy {
		t.Error("expected active engine")
	}
	if len(resp.Probes) != 2 {
		t.Fatalf("probes = %+v, want 2", resp.Probes)
	}
	if len(resp.Rejected) != 1 || resp.Rejected[0].ProbeID != "broken" {
		t.Errorf("rejected = %+v", resp.Rejected)
	}

	byID := map[string]ProbeView{}
	for _, v := range resp.Probes {
		byID[v.ID] = v
	}
	if byID["created"].Interval != "1h0m0s" || !byID["created"].Scheduled {
		t.Errorf("monitor view = %+v", byID["created"])
	}
	if byID["users"].Interval != "10m0s" {
		t.Errorf("counter view = %+v", byID["users"])
	}
}

func TestProbesHandler_Get(t *testing.T) {
	f := newEngineFixture(t, false)
	f.do(http.MethodPost, "/v1/events/data:afterCreate", `{}`)

	rec := f.do(http.MethodGet, "/v1/probes/created", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var view ProbeView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Measure == nil || view.Measure.Hooks["data:afterCreate"] != 1 {
		t.Errorf("measure = %+v", view.Measure)
	}

	if rec := f.do(http.MethodGet, "/v1/probes/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown probe status = %d, want 404", rec.Code)
	}
}

func TestProbesHandler_Flush(t *testing.T) {
	f := newEngineFixture(t, false)
	f.do(http.MethodPost, "/v1/events/data:afterCreate", `{}`)

	rec := f.do(http.MethodPost, "/v1/probes/users/flush", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	created := f.store.Created()
	if len(created) != 1 || created[0].Type != "users" || created[0].Index != "probes" {
		t.Fatalf("created = %+v", created)
	}
	counter, _ := f.plugin.Measure("users")
	if counter.Value != 0 {
		t.Errorf("counter should be settled after flush, got %d", counter.Value)
	}

	if rec := f.do(http.MethodPost, "/v1/probes/missing/flush", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown probe status = %d, want 404", rec.Code)
	}
}

func TestProbesHandler_FlushStorageError(t *testing.T) {
	f := newEngineFixture(t, false)
	f.store.FailOn(storage.OpCreate, errors.New("disk full"))

	rec := f.do(http.MethodPost, "/v1/probes/users/flush", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestProbesHandler_FlushDummy(t *testing.T) {
	f := newEngineFixture(t, true)

	rec := f.do(http.MethodPost, "/v1/probes/users/flush", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}

	list := f.do(http.MethodGet, "/v1/probes", "")
	var resp ListResponse
	_ = json.NewDecoder(list.Body).Decode(&resp)
	if !resp.Dummy || len(resp.Probes) != 2 {
		t.Errorf("dummy listing = %+v", resp)
	}
}
