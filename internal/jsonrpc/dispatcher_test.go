package jsonrpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agent-mail/mailserver/internal/core"
)

// =============================================================================
// Dispatcher.Handle: routing and error-code mapping, independent of any BMC
// =============================================================================

func rawID(n int) json.RawMessage {
	b, _ := json.Marshal(n)
	return b
}

func TestHandle_RejectsNonToolsCallMethod(t *testing.T) {
	t.Parallel()
	d := &Dispatcher{handlers: map[string]handlerFunc{}}

	resp := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: rawID(1), Method: "tools/list"})

	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected -32601 for unsupported method, got %+v", resp.Error)
	}
}

func TestHandle_RejectsMalformedParams(t *testing.T) {
	t.Parallel()
	d := &Dispatcher{handlers: map[string]handlerFunc{}}

	resp := d.Handle(context.Background(), Request{
		JSONRPC: "2.0", ID: rawID(1), Method: "tools/call", Params: json.RawMessage(`not json`),
	})

	if resp.Error == nil || resp.Error.Code != -32600 {
		t.Fatalf("expected -32600 for malformed params, got %+v", resp.Error)
	}
}

func TestHandle_RejectsUnknownTool(t *testing.T) {
	t.Parallel()
	d := &Dispatcher{handlers: map[string]handlerFunc{}}

	params, _ := json.Marshal(toolCallParams{Name: "does_not_exist", Arguments: map[string]any{}})
	resp := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: rawID(1), Method: "tools/call", Params: params})

	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected -32601 for unknown tool, got %+v", resp.Error)
	}
}

func TestHandle_MapsCoreErrorToJSONRPCCode(t *testing.T) {
	t.Parallel()
	d := &Dispatcher{handlers: map[string]handlerFunc{
		"boom": func(ctx context.Context, d *Dispatcher, args Args) (any, error) {
			return nil, core.NotFound("agent", "Ghost")
		},
	}}

	params, _ := json.Marshal(toolCallParams{Name: "boom", Arguments: map[string]any{}})
	resp := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: rawID(7), Method: "tools/call", Params: params})

	if resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.Error.Code != 1404 {
		t.Errorf("Code = %d, want 1404 (not_found)", resp.Error.Code)
	}
	if resp.Error.Data["entity_type"] != "agent" {
		t.Errorf("Data[entity_type] = %v, want agent", resp.Error.Data["entity_type"])
	}
	if string(resp.ID) != string(rawID(7)) {
		t.Errorf("ID not echoed back: got %s", resp.ID)
	}
}

func TestHandle_PassesArgumentsThrough(t *testing.T) {
	t.Parallel()
	var seen Args
	d := &Dispatcher{handlers: map[string]handlerFunc{
		"echo": func(ctx context.Context, d *Dispatcher, args Args) (any, error) {
			seen = args
			return map[string]any{"ok": true}, nil
		},
	}}

	params, _ := json.Marshal(toolCallParams{Name: "echo", Arguments: map[string]any{"agent_name": "GreenCastle"}})
	resp := d.Handle(context.Background(), Request{JSONRPC: "2.0", ID: rawID(1), Method: "tools/call", Params: params})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if seen.str("agent_name") != "GreenCastle" {
		t.Errorf("handler did not see forwarded arguments: %v", seen)
	}
}
