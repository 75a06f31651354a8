// Package httpapi exposes the same tool inventory internal/jsonrpc serves
// over JSON-RPC as a REST API, grounded on terraphim-ntm's
// internal/serve.Server: a chi router, a thin request-ID/recover/logging
// middleware chain, and JSON envelopes shaped the same way
// (success/timestamp/request_id, or error/error_code/details).
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/agent-mail/mailserver/internal/core"
	"github.com/agent-mail/mailserver/internal/events"
	"github.com/agent-mail/mailserver/internal/jsonrpc"
)

// Server wires a Dispatcher into an http.Handler.
type Server struct {
	dispatcher *jsonrpc.Dispatcher
	router     chi.Router
	hub        *wsHub
}

// New builds the REST router. bus may be nil, in which case /ws upgrades
// succeed but never receive anything (there's nothing to subscribe to).
func New(d *jsonrpc.Dispatcher, bus *events.EventBus) *Server {
	s := &Server{dispatcher: d, hub: newWSHub(bus)}
	s.router = s.buildRouter()
	s.hub.run()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on addr until ctx is cancelled, then shuts down gracefully,
// grounded on terraphim-ntm/internal/serve.Server.Start's
// listen-in-goroutine/select-on-ctx-or-error pattern. WriteTimeout is left
// at zero to support the long-lived /api/v1/ws stream.
func (s *Server) Start(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("http server shutting down", "addr", addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(recovererMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/health", s.handleHealth)
	r.Post("/mcp", s.handleJSONRPC)
	r.Post("/mcp/", s.handleJSONRPC)
	r.Post("/api/project/ensure", s.toolHandler("ensure_project"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Get("/ws", s.handleWS)

		r.Route("/projects", func(r chi.Router) {
			r.Post("/ensure", s.toolHandler("ensure_project"))
		})

		r.Route("/agents", func(r chi.Router) {
			r.Post("/register", s.toolHandler("register_agent"))
			r.Get("/{agent_name}", s.toolHandler("whois", "agent_name"))
			r.Post("/{agent_name}/contact-policy", s.toolHandler("set_contact_policy", "agent_name"))
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/send", s.toolHandler("send_message"))
			r.Post("/send-overseer", s.toolHandler("send_overseer_message"))
			r.Post("/reply", s.toolHandler("reply_message"))
			r.Get("/search", s.toolHandler("search_messages"))
			r.Get("/{message_id}", s.toolHandler("get_message", "message_id"))
			r.Post("/{message_id}/read", s.toolHandler("mark_message_read", "message_id"))
			r.Post("/{message_id}/ack", s.toolHandler("acknowledge_message", "message_id"))
		})

		r.Route("/inbox", func(r chi.Router) {
			r.Get("/{agent_name}", s.toolHandler("fetch_inbox", "agent_name"))
			r.Get("/{agent_name}/at", s.toolHandler("inbox_at", "agent_name"))
		})

		r.Route("/contacts", func(r chi.Router) {
			r.Post("/request", s.toolHandler("request_contact"))
			r.Post("/respond", s.toolHandler("respond_contact"))
			r.Get("/{agent_name}", s.toolHandler("list_contacts", "agent_name"))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", s.toolHandler("list_file_reservations"))
			r.Post("/", s.toolHandler("file_reservation_paths"))
			r.Post("/release", s.toolHandler("release_file_reservations"))
			r.Post("/renew", s.toolHandler("renew_file_reservations"))
			r.Post("/{reservation_id}/force-release", s.toolHandler("force_release_file_reservation", "reservation_id"))
		})

		r.Route("/macros", func(r chi.Router) {
			r.Post("/start-session", s.toolHandler("macro_start_session"))
			r.Post("/prepare-thread", s.toolHandler("macro_prepare_thread"))
			r.Post("/contact-handshake", s.toolHandler("macro_contact_handshake"))
		})

		r.Route("/threads", func(r chi.Router) {
			r.Get("/{thread_id}/summary", s.toolHandler("summarize_thread", "thread_id"))
		})

		r.Route("/precommit-guard", func(r chi.Router) {
			r.Post("/install", s.toolHandler("install_precommit_guard"))
			r.Post("/uninstall", s.toolHandler("uninstall_precommit_guard"))
			r.Post("/check", s.toolHandler("check_precommit_guard"))
		})

		r.Post("/export", s.toolHandler("export_mailbox"))

		r.Get("/metrics", s.handleMetrics)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"status": "ok"}, requestIDFromContext(r.Context()))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"api_version": "v1"}, requestIDFromContext(r.Context()))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())
	key := r.URL.Query().Get("project_key")
	if key == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION", "project_key query parameter is required", nil, reqID)
		return
	}
	proj, cerr := s.dispatcher.Project.EnsureProject(r.Context(), key, s.dispatcher.IdentityMode)
	if cerr != nil {
		writeCoreError(w, core.AsError(cerr), reqID)
		return
	}
	summary, err := s.dispatcher.ToolMetric.SummaryForProject(r.Context(), proj.ID)
	if err != nil {
		writeCoreError(w, core.AsError(err), reqID)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"metrics": summary}, reqID)
}
