// Package api exposes the marketplace over JSON HTTP and pushes hire
// outcome events over websockets.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gigflow/internal/common/auth"
	"gigflow/internal/common/logger"
	"gigflow/internal/common/observability"
	"gigflow/internal/marketplace"
	"gigflow/internal/notify"
)

const maxBodyBytes = 1 << 20

// ReadyFunc reports whether the dependencies needed to serve traffic are up.
type ReadyFunc func(ctx context.Context) error

type Deps struct {
	Service        *marketplace.Service
	Auth           auth.Resolver
	Registry       *notify.Registry
	Observability  *observability.Observability
	Logger         logger.Logger
	Ready          ReadyFunc
	AllowedOrigins []string
}

type Server struct {
	service  *marketplace.Service
	auth     auth.Resolver
	registry *notify.Registry
	obs      *observability.Observability
	logger   logger.Logger
	ready    ReadyFunc
	origins  map[string]struct{}
}

func NewServer(deps Deps) *Server {
	origins := make(map[string]struct{}, len(deps.AllowedOrigins))
	for _, o := range deps.AllowedOrigins {
		origins[o] = struct{}{}
	}
	return &Server{
		service:  deps.Service,
		auth:     deps.Auth,
		registry: deps.Registry,
		obs:      deps.Observability,
		logger:   deps.Logger,
		ready:    deps.Ready,
		origins:  origins,
	}
}

// Routes builds the full router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/gigs", func(r chi.Router) {
		r.Get("/", s.handleListOpenTasks)
		r.Get("/{id}", s.handleGetTask)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Post("/", s.handleCreateTask)
			r.Get("/my-gigs", s.handleListMyTasks)
		})
	})

	r.Route("/api/bids", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/", s.handleSubmitProposal)
		r.Get("/my-bids", s.handleListMyProposals)
		r.Get("/{gigId}", s.handleListProposalsForTask)
		r.Patch("/{bidId}/hire", s.handleHire)
	})

	r.Get("/ws", s.handleSubscribe)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("Readiness check failed", map[string]interface{}{"error": err})
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
