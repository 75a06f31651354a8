package agentmailclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPBaseURL_StripsMCPSuffix(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:8765/mcp/": "http://127.0.0.1:8765",
		"http://127.0.0.1:8765/mcp":  "http://127.0.0.1:8765",
		"http://127.0.0.1:8765/":     "http://127.0.0.1:8765",
		"http://127.0.0.1:8765":      "http://127.0.0.1:8765",
	}
	for in, want := range cases {
		c := NewClient(WithBaseURL(in))
		if got := c.httpBaseURL(); got != want {
			t.Errorf("httpBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProjectSlugFromPath(t *testing.T) {
	cases := map[string]string{
		"/Users/jemanuel/projects/ntm": "ntm",
		"/home/user/My Project":        "my_project",
		"":                             "",
		"/":                            "root",
	}
	for in, want := range cases {
		if got := ProjectSlugFromPath(in); got != want {
			t.Errorf("ProjectSlugFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewClient_DefaultsAndOptions(t *testing.T) {
	c := NewClient()
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", c.BaseURL(), DefaultBaseURL)
	}

	c = NewClient(WithBaseURL("http://example.test/mcp"), WithProjectKey("/tmp/proj"))
	if c.BaseURL() != "http://example.test/mcp/" {
		t.Errorf("BaseURL() = %q, want trailing slash appended", c.BaseURL())
	}
	if c.ProjectKey() != "/tmp/proj" {
		t.Errorf("ProjectKey() = %q", c.ProjectKey())
	}
}

func TestClient_CallTool_RoundTripsThroughJSONRPC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "tools/call" {
			t.Fatalf("method = %q, want tools/call", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JSONRPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Result: json.RawMessage(`{"ok":true}`),
		})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/mcp/"))
	result, err := c.callTool(context.Background(), "ensure_project", map[string]interface{}{"path": "/tmp/x"})
	if err != nil {
		t.Fatalf("callTool: %v", err)
	}
	var decoded map[string]bool
	if err := json.Unmarshal(result, &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !decoded["ok"] {
		t.Fatalf("result = %s, want ok:true", result)
	}
}

func TestClient_CallTool_SurfacesJSONRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JSONRPCResponse{
			JSONRPC: "2.0", ID: 1,
			Error: &JSONRPCError{Code: 1404, Message: "agent not found"},
		})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/mcp/"))
	_, err := c.callTool(context.Background(), "get_agent", nil)
	if err == nil {
		t.Fatal("expected an error for a JSON-RPC error response")
	}
}

func TestClient_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("path = %q, want /health", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(HealthStatus{Status: "ok"})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/"))
	status, err := c.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if status.Status != "ok" {
		t.Fatalf("status = %+v", status)
	}
}
