package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/agent-mail/mailserver/internal/core"
	"github.com/agent-mail/mailserver/internal/panichook"
)

type requestIDKeyType struct{}

var requestIDKey requestIDKeyType

const requestIDHeader = "X-Request-ID"

func generateRequestID() string {
	return uuid.NewString()
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestIDMiddleware echoes a caller-supplied X-Request-ID or mints one,
// grounded on terraphim-ntm/internal/serve.Server's own
// requestIDMiddlewareFunc.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set(requestIDHeader, reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recovererMiddleware recovers an HTTP handler panic itself, logs the panic
// value and request ID (no stack trace), writes a 500 error envelope, and
// then re-panics with the same value.
func recovererMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				reqID := requestIDFromContext(r.Context())
				slog.Error("http handler panic", "request_id", reqID, "value", rec)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil, reqID)
				panic(rec)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start), "request_id", requestIDFromContext(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("http response encode failed", "error", err)
	}
}

// writeSuccess writes a success envelope, the REST analogue of the
// JSON-RPC transport's bare result field.
func writeSuccess(w http.ResponseWriter, status int, data map[string]any, requestID string) {
	if data == nil {
		data = map[string]any{}
	}
	data["success"] = true
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	if requestID != "" {
		data["request_id"] = requestID
	}
	writeJSON(w, status, data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any, requestID string) {
	writeJSON(w, status, map[string]any{
		"success":    false,
		"error":      message,
		"error_code": code,
		"details":    details,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}

// writeCoreError maps a *core.Error to its HTTPStatus and renders it in the
// same envelope shape writeError uses.
func writeCoreError(w http.ResponseWriter, ce *core.Error, requestID string) {
	writeError(w, ce.HTTPStatus(), ce.Kind.String(), ce.Error(), ce.Context(), requestID)
}

// wrapPanicking is a convenience for goroutines spawned off the request
// path (the websocket read/write pumps) that should crash loudly rather
// than die silently on a panic.
func wrapPanicking(fn func()) {
	panichook.Wrap(fn)
}
