// Package server provides the HTTP server and routing for the trading engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/events"
	"github.com/aristath/tradeguard/internal/scheduler"
)

// RouteRegistrar is implemented by every module handler
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Config carries everything the server mounts
type Config struct {
	Log       zerolog.Logger
	Databases map[string]*database.DB
	EventBus  *events.Bus
	Scheduler *scheduler.Scheduler
	Jobs      []scheduler.Job // Jobs that may be triggered manually
	Handlers  []RouteRegistrar
	DataDir   string
	LogFile   string
	Port      int
	DevMode   bool
}

// Server serves the REST API, the event stream and system endpoints
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	eventBus       *events.Bus
	handlers       []RouteRegistrar
	systemHandlers *SystemHandlers
	logHandlers    *LogHandlers
}

// New builds the router. Nothing listens until Start.
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		port:           cfg.Port,
		eventBus:       cfg.EventBus,
		handlers:       cfg.Handlers,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.DataDir, cfg.Databases, cfg.Scheduler, cfg.Jobs),
		logHandlers:    NewLogHandlers(cfg.Log, cfg.LogFile),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // The event stream holds connections open
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router exposes the handler for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer, middleware.RequestID, middleware.RealIP)
	s.router.Use(s.requestLogger)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         600,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json", "text/plain"))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived websocket, no request timeout
		if s.eventBus != nil {
			r.Get("/events/stream", NewEventsStreamHandler(s.eventBus, s.log).ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
				r.Post("/jobs/{name}/run", s.systemHandlers.HandleTriggerJob)
				r.Get("/logs", s.logHandlers.HandleGetLogs)
			})

			for _, h := range s.handlers {
				h.RegisterRoutes(r)
			}
		})
	})
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("HTTP server listening")
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server draining")
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request with the matched route pattern.
// 5xx logs at error, 4xx at warn and health probes at debug.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		rec := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(rec, r)

		status := rec.Status()
		if status == 0 {
			status = http.StatusOK
		}

		var event *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			event = s.log.Error()
		case status >= http.StatusBadRequest:
			event = s.log.Warn()
		case r.URL.Path == "/health":
			event = s.log.Debug()
		default:
			event = s.log.Info()
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		event.
			Str("method", r.Method).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", rec.BytesWritten()).
			Dur("elapsed", time.Since(began)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
