// Package api is the HTTP surface: the lookup endpoints, the admin budget
// view, health, and secret-guarded Prometheus metrics.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/odvcencio/etymon/pkg/budget"
	"github.com/odvcencio/etymon/pkg/config"
	"github.com/odvcencio/etymon/pkg/etym"
	"github.com/odvcencio/etymon/pkg/logging"
)

// lookupService is the pipeline surface the server depends on.
type lookupService interface {
	Lookup(ctx context.Context, rawWord string) (*etym.EtymologyResult, error)
}

// budgetService is the ledger surface for the admin endpoint.
type budgetService interface {
	Snapshot(ctx context.Context) budget.Snapshot
}

// Server is the etymology HTTP server.
type Server struct {
	cfg        config.ServerConfig
	pipe       lookupService
	ledger     budgetService
	log        *logging.Logger
	httpServer *http.Server
}

// New creates the server and its router.
func New(cfg config.ServerConfig, pipe lookupService, ledger budgetService, log *logging.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		pipe:   pipe,
		ledger: ledger,
		log:    log,
	}

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(s.withRequestID)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", s.handleHealthz)
	router.Get("/metrics", s.adminOnly(s.handleMetrics))

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/etymology/{word}", s.handleGetEtymology)
		r.Post("/etymology", s.handlePostEtymology)
		r.Get("/admin/budget", s.adminOnly(s.handleBudget))
	})

	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestDeadline + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info(logging.CategoryAPI, "server_start", "", map[string]any{"listen": s.cfg.Listen})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// withRequestID tags every request with an ID, honoring one supplied by an
// upstream proxy.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// adminOnly guards an endpoint with the shared admin secret. An empty
// configured secret disables the endpoint rather than opening it up.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminSecret == "" {
			writeError(w, http.StatusForbidden, "admin endpoints are not configured")
			return
		}
		provided := r.Header.Get("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.AdminSecret)) != 1 {
			s.log.Warn(logging.CategoryAPI, "admin_auth_failed", "",
				map[string]any{"path": r.URL.Path, "request_id": requestID(r.Context())})
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.ledger.Snapshot(r.Context()))
}
