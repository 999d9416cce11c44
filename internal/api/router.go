package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/core"
	launchermcp "github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/mcp"
	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/notify"
	"github.com/Code4neverCompany/Code4never-AutoLauncher-AlphaVersion/internal/store"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	store      *store.Store
	engine     *core.Engine
	hub        *notify.Hub
	mcpServer  *launchermcp.MCPServer
	logger     *slog.Logger
	location   *time.Location
	authToken  string
}

// NewServer constructs the HTTP API server.
func NewServer(addr string, authToken string, store *store.Store, engine *core.Engine, hub *notify.Hub, mcpServer *launchermcp.MCPServer, logger *slog.Logger, location *time.Location) (*Server, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		store:     store,
		engine:    engine,
		hub:       hub,
		mcpServer: mcpServer,
		logger:    logger,
		location:  location,
		authToken: authToken,
	}
	s.registerRoutes()

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	s.httpServer = httpServer
	return s, nil
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	// Mount MCP endpoint with optional authentication
	if s.mcpServer != nil {
		var mcpHandler http.Handler = s.mcpServer
		if s.authToken != "" {
			mcpHandler = AuthMiddleware(s.authToken)(mcpHandler)
		}
		s.router.Handle("/mcp", mcpHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		// Apply authentication to all API endpoints
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Post("/triggers/preview", s.handleTriggerPreview)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Patch("/", s.handleUpdateTask)
				r.Delete("/", s.handleDeleteTask)
				r.Post("/pause", s.handlePauseTask)
				r.Post("/resume", s.handleResumeTask)
				r.Post("/run", s.handleRunTask)
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", s.handleListEvents)
			r.Delete("/", s.handleClearEvents)
		})

		r.Get("/icons", s.handleListIcons)
		r.Get("/changes", s.handleChangeStream)
	})
}
