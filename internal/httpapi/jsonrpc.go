package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/agent-mail/mailserver/internal/jsonrpc"
)

// handleJSONRPC is the transport pkg/agentmailclient actually speaks: a
// single POST endpoint carrying a tools/call envelope, handled by the same
// Dispatcher the REST routes call into via toolHandler.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, jsonrpc.Response{
			JSONRPC: "2.0",
			Error:   &jsonrpc.ResponseError{Code: -32700, Message: "parse error: " + err.Error()},
		})
		return
	}

	resp := s.dispatcher.Handle(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}
