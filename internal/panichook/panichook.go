// Package panichook provides recover() wrappers (Wrap for a function,
// Middleware for an http.Handler) that log the panic and its stack before
// letting the process die. internal/httpapi uses Wrap for its websocket
// write pump; the HTTP handler chain and the JSON-RPC dispatcher do not go
// through this package. Grounded on the teacher's serve.recovererMiddleware — adapted to
// re-raise instead of swallowing, per the no-recovery-for-corruption-class-
// failures policy: an agent-mail server that keeps serving requests after
// a domain invariant panic could silently corrupt its dual stores.
package panichook

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Wrap runs fn and, if it panics, logs the panic value and stack before
// re-panicking so the process crashes and gets restarted by its supervisor.
func Wrap(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic", "value", r, "stack", string(debug.Stack()))
			panic(r)
		}
	}()
	fn()
}

// Middleware is the HTTP equivalent of Wrap for use in a chi router chain.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic", "value", rec, "stack", string(debug.Stack()), "path", r.URL.Path)
				panic(rec)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
