package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/runlet/runlet/internal/engine"
	"github.com/runlet/runlet/internal/events"
	"github.com/runlet/runlet/internal/log"
	"github.com/runlet/runlet/internal/script"
)

// testServer wires a full server over a temp script store with /bin/sh as
// the interpreter, so handler tests exercise real runs.
type testServer struct {
	server   *Server
	router   http.Handler
	store    *script.Store
	registry *script.Registry
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()

	store, err := script.NewStore(t.TempDir(), ".sh")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	registry := script.NewRegistry(store)
	cache := engine.NewCache(time.Minute)
	gate := engine.NewGate(4)
	hub := events.NewHub(64)

	runner := engine.NewRunner(engine.Options{
		Store:       store,
		Registry:    registry,
		Cache:       cache,
		Gate:        gate,
		Events:      hub,
		Interpreter: "/bin/sh",
		RunTimeout:  5 * time.Second,
	})

	srv := New(Config{Listen: "127.0.0.1:0", APIKey: apiKey},
		store, registry, runner, cache, gate, nil, hub, log.WithComponent("api-test"))

	return &testServer{
		server:   srv,
		router:   srv.setupRoutes(),
		store:    store,
		registry: registry,
	}
}

func (ts *testServer) save(t *testing.T, name, body string) {
	t.Helper()
	if err := ts.store.Save(name, []byte(body)); err != nil {
		t.Fatalf("Save %s: %v", name, err)
	}
	ts.registry.Refresh()
}

func (ts *testServer) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, "")
	ts.save(t, "a.sh", "printf a")

	rec := ts.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthzResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.ScriptsLoaded != 1 || resp.ActiveRuns != 0 {
		t.Fatalf("unexpected healthz: %+v", resp)
	}
}

func TestScriptCRUD(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, "")

	// Create.
	rec := ts.do(t, http.MethodPost, "/scripts", `{"name":"hello.sh","code":"printf hi"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	// Created script is listed and runnable immediately, before any rescan.
	rec = ts.do(t, http.MethodGet, "/scripts", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "hello.sh") {
		t.Fatalf("list = %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/run/hello.sh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d: %s", rec.Code, rec.Body.String())
	}
	var res engine.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if res.Stdout != "hi" {
		t.Fatalf("Stdout = %q, want hi", res.Stdout)
	}

	// Update.
	rec = ts.do(t, http.MethodPut, "/scripts/hello.sh", `{"code":"printf bye"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	// Update of a missing script is 404.
	rec = ts.do(t, http.MethodPut, "/scripts/nope.sh", `{"code":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("update missing status = %d, want 404", rec.Code)
	}

	// Delete.
	rec = ts.do(t, http.MethodDelete, "/scripts/hello.sh", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	rec = ts.do(t, http.MethodDelete, "/scripts/hello.sh", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing status = %d, want 404", rec.Code)
	}
}

func TestCreateScriptRejectsBadNames(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, "")

	bad := []string{
		`{"name":"../escape.sh","code":"x"}`,
		`{"name":"dir/esc.sh","code":"x"}`,
		`{"name":"noext","code":"x"}`,
		`{"name":"","code":"x"}`,
	}
	for _, body := range bad {
		rec := ts.do(t, http.MethodPost, "/scripts", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("create %s status = %d, want 400", body, rec.Code)
		}
	}
}

func TestRunOneUnknownScript(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/run/missing.sh", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestRunOneDeliversData(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, "")
	ts.save(t, "echo.sh", "cat")

	rec := ts.do(t, http.MethodPost, "/run/echo.sh", `{"data":{"k":1}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var res engine.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Stdout != `{"k":1}` {
		t.Fatalf("Stdout = %q, want data echoed to stdin", res.Stdout)
	}
}

func TestRunOneMissingDataIsNull(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, "")
	ts.save(t, "echo.sh", "cat")

	rec := ts.do(t, http.MethodPost, "/run/echo.sh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var res engine.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Stdout != "null" {
		t.Fatalf("Stdout = %q, want null stdin for empty body", res.Stdout)
	}
}

func TestRunManyPartialFailureIsStill200(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, "")
	ts.save(t, "ok.sh", "printf ok")

	rec := ts.do(t, http.MethodPost, "/run?names=ok.sh,missing.sh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	if resp.Results["ok.sh"].Stdout != "ok" {
		t.Fatalf("ok.sh = %+v", resp.Results["ok.sh"])
	}
	missing := resp.Results["missing.sh"]
	if missing.ExitCode != -1 || !strings.HasPrefix(missing.Stderr, "Error: ") {
		t.Fatalf("missing.sh = %+v, want synthetic failure", missing)
	}
}

func TestRunManyEmptyNamesParamRunsNothing(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, "")
	ts.save(t, "a.sh", "printf a")
	ts.save(t, "b.sh", "printf b")

	// A supplied names parameter with no usable targets runs nothing; only
	// an absent parameter means "all registered".
	for _, target := range []string{"/run?names=", "/run?names=,,"} {
		rec := ts.do(t, http.MethodPost, target, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d: %s", target, rec.Code, rec.Body.String())
		}
		var resp RunResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Results) != 0 {
			t.Fatalf("%s got %d results, want 0", target, len(resp.Results))
		}
	}
}

func TestRunManyNoNamesRunsAll(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, "")
	ts.save(t, "a.sh", "printf a")
	ts.save(t, "b.sh", "printf b")

	rec := ts.do(t, http.MethodPost, "/run", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
}

func TestAuthRequiredWhenConfigured(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, "sekrit")

	// No token.
	rec := ts.do(t, http.MethodGet, "/scripts", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", rec.Code)
	}

	// Wrong token.
	req := httptest.NewRequest(http.MethodGet, "/scripts", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", rr.Code)
	}

	// Correct token.
	req = httptest.NewRequest(http.MethodGet, "/scripts", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rr = httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("good token status = %d, want 200", rr.Code)
	}

	// Healthz stays open.
	rec = ts.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
}

func TestHistoryEmptyWithoutStore(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Runs) != 0 {
		t.Fatalf("Runs = %+v, want empty", resp.Runs)
	}
}
