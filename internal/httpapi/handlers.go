package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// toolHandler adapts one jsonrpc tool into a REST endpoint: the JSON body
// (if any), the listed chi path parameters, and any query parameters not
// already present are merged into a single arguments map and handed to
// Dispatcher.Call, the same way every tools/call request is handled.
//
// pathKeys names the chi route parameters (e.g. "agent_name") that should
// be copied into the arguments map under the same key.
func (s *Server) toolHandler(tool string, pathKeys ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := requestIDFromContext(r.Context())

		args, err := decodeArgs(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body: "+err.Error(), nil, reqID)
			return
		}

		for _, key := range pathKeys {
			if v := chi.URLParam(r, key); v != "" {
				args[key] = v
			}
		}
		for key, vals := range r.URL.Query() {
			if _, exists := args[key]; !exists && len(vals) > 0 {
				args[key] = vals[0]
			}
		}

		result, cerr := s.dispatcher.Call(r.Context(), tool, args)
		if cerr != nil {
			writeCoreError(w, cerr, reqID)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"result": result}, reqID)
	}
}

func decodeArgs(r *http.Request) (map[string]any, error) {
	args := map[string]any{}
	if r.Body == nil || r.ContentLength == 0 {
		return args, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && err != io.EOF {
		return nil, err
	}
	return args, nil
}
