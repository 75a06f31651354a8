package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/agent-mail/mailserver/internal/core"
	"github.com/agent-mail/mailserver/internal/events"
	"github.com/agent-mail/mailserver/internal/jsonrpc"
)

// =============================================================================
// REST transport over a real (temp-dir) SQLite database, exercising the
// same Dispatcher.Call path internal/jsonrpc's own tests exercise via
// Dispatcher.Handle.
// =============================================================================

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	db, err := core.OpenDB(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	mm := core.NewModelManager(db, filepath.Join(dir, "archive"))
	d := jsonrpc.NewDispatcher(mm, core.ModeDirectoryOnly)
	d.Events = events.NewEventEmitter(events.NewEventBus(8), 64)

	return New(d, d.Events.Bus())
}

func postJSON(t *testing.T, srv *Server, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response body: %v (body=%s)", err, rec.Body.String())
	}
	return m
}

func TestServer_HealthCheck(t *testing.T) {
	t.Parallel()
	srv := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("body[success] = %v, want true", body["success"])
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("expected a request ID header on the response")
	}
}

func TestServer_EnsureProjectAndRegisterAgent(t *testing.T) {
	t.Parallel()
	srv := setupTestServer(t)
	projectKey := "/tmp/fixture-httpapi-alpha"

	rec := postJSON(t, srv, "/api/v1/projects/ensure", map[string]any{"project_key": projectKey})
	if rec.Code != http.StatusOK {
		t.Fatalf("ensure project status = %d, body=%s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, srv, "/api/v1/agents/register", map[string]any{
		"project_key": projectKey, "name": "SilverHollow", "program": "claude-code",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register agent status = %d, body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	result, ok := body["result"].(map[string]any)
	if !ok || result["name"] != "SilverHollow" {
		t.Fatalf("register agent result = %#v, want name SilverHollow", body["result"])
	}
}

func TestServer_UnknownAgentReturns404(t *testing.T) {
	t.Parallel()
	srv := setupTestServer(t)
	projectKey := "/tmp/fixture-httpapi-beta"

	postJSON(t, srv, "/api/v1/projects/ensure", map[string]any{"project_key": projectKey})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/Nobody?project_key="+projectKey, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error_code"] != "not_found" {
		t.Errorf("error_code = %v, want not_found", body["error_code"])
	}
}

func TestServer_SendMessageEndToEnd(t *testing.T) {
	t.Parallel()
	srv := setupTestServer(t)
	projectKey := "/tmp/fixture-httpapi-gamma"

	postJSON(t, srv, "/api/v1/projects/ensure", map[string]any{"project_key": projectKey})
	postJSON(t, srv, "/api/v1/agents/register", map[string]any{"project_key": projectKey, "name": "OakRidge"})
	postJSON(t, srv, "/api/v1/agents/register", map[string]any{"project_key": projectKey, "name": "MossHaven"})

	rec := postJSON(t, srv, "/api/v1/messages/send", map[string]any{
		"project_key": projectKey, "sender_name": "OakRidge",
		"to": []any{"MossHaven"}, "subject": "hello", "body_md": "hi there",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("send message status = %d, body=%s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/inbox/MossHaven?project_key="+projectKey, nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch inbox status = %d, body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	msgs, ok := body["result"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("inbox result = %#v, want one message", body["result"])
	}
}
