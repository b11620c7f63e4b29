package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BrandonDHaskell/datavault/server/internal/vault/service"
)

type Dependencies struct {
	Logger *slog.Logger
	Addr   string
	Ledger *service.Ledger
	Auth   *Authenticator

	// Stream serves GET /v1/events/stream when set.
	Stream http.Handler
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	ledger     *service.Ledger
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Auth == nil {
		d.Auth = NewAuthenticator("")
	}

	s := &Server{logger: d.Logger, ledger: d.Ledger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(d.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(d.Auth.Middleware)

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", s.handleCreateRequest)
			r.Get("/pending/count", s.handlePendingCount)
			r.Get("/{id}", s.handleRequestDetails)
			r.Post("/{id}/process", s.handleProcessRequest)
		})
		r.Get("/principals/{principal}/requests", s.handleUserRequests)

		r.Route("/data/{dataID}", func(r chi.Router) {
			r.Get("/", s.handleDataRecord)
			r.Put("/", s.handleRecordUpload)
			r.Patch("/", s.handleModifyRecord)
			r.Delete("/", s.handleDeleteRecord)
			r.Post("/access", s.handleLogAccess)
			r.Get("/logs", s.handleDataLogs)
		})
		r.Get("/logs/{id}", s.handleAccessLog)

		r.Get("/events", s.handleEvents)
		if d.Stream != nil {
			r.Method(http.MethodGet, "/events/stream", d.Stream)
		}
		r.Get("/chain/verify", s.handleVerifyChain)
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
