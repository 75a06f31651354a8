// Package jsonrpc implements the "tools/call" JSON-RPC 2.0 dispatch loop
// the pkg/agentmailclient SDK speaks, grounded on the wire shape in
// theirongolddev-nzm's agentmail client.
package jsonrpc

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agent-mail/mailserver/internal/core"
	"github.com/agent-mail/mailserver/internal/events"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope. Exactly one of Result/Error
// is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the JSON-RPC error object.
type ResponseError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type handlerFunc func(ctx context.Context, d *Dispatcher, args Args) (any, error)

// Dispatcher routes "tools/call" requests to the handler registered for
// params.name, mapping core.Error to the JSON-RPC codes SPEC_FULL.md §6
// defines.
type Dispatcher struct {
	MM           *core.ModelManager
	IdentityMode core.IdentityMode

	Project      *core.ProjectBMC
	Agent        *core.AgentBMC
	Message      *core.MessageBMC
	Reservation  *core.FileReservationBMC
	AgentLink    *core.AgentLinkBMC
	Capability   *core.CapabilityBMC
	MacroDef     *core.MacroDefBMC
	PrecommitGuard *core.PrecommitGuardBMC
	TimeTravel   *core.TimeTravelReader
	Exporter     *core.Exporter
	ToolMetric   *core.ToolMetricBMC

	// SigningKey, if set, is used to sign export_mailbox output when the
	// caller passes sign=true. Left nil means the deployment hasn't
	// configured one, and export_mailbox rejects sign=true accordingly.
	SigningKey ed25519.PrivateKey

	// Events, if set, receives a MailEvent for the state changes
	// internal/httpapi's live-inbox stream cares about. Left nil in tests
	// that don't need the bus; tool handlers check for nil before emitting.
	Events *events.EventEmitter

	handlers map[string]handlerFunc
}

// emit publishes ev on d.Events if one is configured, a no-op otherwise.
func (d *Dispatcher) emit(ev events.MailEvent) {
	if d.Events != nil {
		d.Events.Emit(ev)
	}
}

// NewDispatcher wires every BMC from mm and registers the full tool
// inventory.
func NewDispatcher(mm *core.ModelManager, identityMode core.IdentityMode) *Dispatcher {
	d := &Dispatcher{
		MM:             mm,
		IdentityMode:   identityMode,
		Project:        core.NewProjectBMC(mm),
		Agent:          core.NewAgentBMC(mm),
		Message:        core.NewMessageBMC(mm),
		Reservation:    core.NewFileReservationBMC(mm),
		AgentLink:      core.NewAgentLinkBMC(mm),
		Capability:     core.NewCapabilityBMC(mm),
		MacroDef:       core.NewMacroDefBMC(mm),
		PrecommitGuard: core.NewPrecommitGuardBMC(mm),
		TimeTravel:     core.NewTimeTravelReader(mm),
		Exporter:       core.NewExporter(mm),
		ToolMetric:     core.NewToolMetricBMC(mm),
	}
	d.handlers = toolRegistry(d)
	return d
}

// Handle decodes req as a tools/call request and dispatches it, never
// panicking: any handler panic is expected to be caught by
// internal/panichook at the transport boundary, not here.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	if req.Method != "tools/call" {
		resp.Error = &ResponseError{Code: -32601, Message: "method not found: " + req.Method}
		return resp
	}

	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp.Error = &ResponseError{Code: -32600, Message: "invalid request: " + err.Error()}
		return resp
	}

	handler, ok := d.handlers[params.Name]
	if !ok {
		resp.Error = &ResponseError{Code: -32601, Message: "unknown tool: " + params.Name}
		return resp
	}

	result, ce := d.run(ctx, handler, params.Name, params.Arguments)
	if ce != nil {
		resp.Error = &ResponseError{Code: ce.JSONRPCCode(), Message: ce.Error(), Data: ce.Context()}
		return resp
	}

	resp.Result = result
	return resp
}

// Call invokes a registered tool directly, bypassing the JSON-RPC envelope.
// internal/httpapi uses this to expose the same tool inventory over REST
// without round-tripping through Request/Response.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) (any, *core.Error) {
	handler, ok := d.handlers[name]
	if !ok {
		return nil, core.Validation("tool", name, "unknown tool", "")
	}
	return d.run(ctx, handler, name, args)
}

// run executes handler, timing the call for ToolMetricBMC regardless of
// which transport (JSON-RPC or REST) made it.
func (d *Dispatcher) run(ctx context.Context, handler handlerFunc, name string, args map[string]any) (any, *core.Error) {
	start := time.Now()
	result, err := handler(ctx, d, Args(args))
	d.recordMetric(ctx, name, args, time.Since(start), err == nil)

	if err != nil {
		ce := core.AsError(err)
		slog.Debug("tool call failed", "tool", name, "kind", ce.Kind.String(), "error", ce.Error())
		return nil, ce
	}
	return result, nil
}

// recordMetric best-effort resolves the calling project from a project_key
// argument (already a cheap idempotent lookup via EnsureProject) and records
// the call's timing, feeding the REST transport's /api/v1/metrics endpoint.
func (d *Dispatcher) recordMetric(ctx context.Context, name string, args map[string]any, dur time.Duration, success bool) {
	if d.ToolMetric == nil {
		return
	}
	projectID := 0
	if key, _ := args["project_key"].(string); key != "" {
		if proj, err := d.resolveProject(ctx, key); err == nil {
			projectID = proj.ID
		}
	}
	if err := d.ToolMetric.Record(ctx, projectID, 0, name, dur, success); err != nil {
		slog.Debug("tool metric record failed", "tool", name, "error", err)
	}
}

// resolveProject maps a project_key (an absolute path or an opaque human
// key) to its Project, creating it if it doesn't exist yet, mirroring the
// ensure_project tool's own semantics so every other tool can resolve a
// project transparently.
func (d *Dispatcher) resolveProject(ctx context.Context, projectKey string) (*core.Project, error) {
	return d.Project.EnsureProject(ctx, projectKey, d.IdentityMode)
}
