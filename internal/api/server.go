package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/botaniq/admind/internal/api/handler"
	mw "github.com/botaniq/admind/internal/api/middleware"
	"github.com/botaniq/admind/internal/auditlog"
	"github.com/botaniq/admind/internal/config"
	"github.com/botaniq/admind/internal/gitops"
	"github.com/botaniq/admind/internal/maintenance"
	"github.com/botaniq/admind/internal/runner"
	"github.com/botaniq/admind/internal/schemasync"
	"github.com/botaniq/admind/internal/sysops"
)

type Server struct {
	router chi.Router
	logger zerolog.Logger
	cfg    *config.Config
}

func NewServer(logger zerolog.Logger, cfg *config.Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		cfg:    cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	run := runner.New(s.logger)
	gits := gitops.New(s.logger, s.cfg.RepoDir, s.cfg.GitUser)
	auditor := auditlog.NewForwarder(s.logger, s.cfg.NodeAppURL, s.cfg.StaticToken)
	coord := maintenance.NewCoordinator(s.logger, s.cfg.MaintenanceFile)
	pipeline := schemasync.NewPipeline(s.logger, s.cfg.RepoDir, s.cfg.Database)

	var manager sysops.ServiceManager
	if s.cfg.DevMode {
		manager = sysops.NewDirectManager(s.logger)
	} else {
		manager = sysops.NewSystemdManager(s.logger)
	}

	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(mw.Auth(s.cfg.ButtonSecret, s.cfg.StaticToken))

		// Git operations
		git := handler.NewGit(gits, run, auditor)
		r.Get("/branches", git.Branches)
		r.Get("/git-pull", git.Pull)
		r.Post("/git-pull", git.Pull)
		r.Get("/git-pull/stream", git.PullStream)

		// Code refresh (pull + rebuild via refresh script)
		refresh := handler.NewRefresh(s.cfg, run, auditor)
		r.Get("/pull-code", refresh.Start)
		r.Post("/pull-code", refresh.Start)
		r.Get("/pull-code/stream", refresh.Stream)

		// Deployment scripts
		scripts := handler.NewScripts(s.cfg, run, auditor)
		r.Get("/deploy-edge-functions", scripts.DeployEdgeFunctions)
		r.Post("/deploy-edge-functions", scripts.DeployEdgeFunctions)
		r.Get("/regenerate-sitemap", scripts.RegenerateSitemap)
		r.Post("/regenerate-sitemap", scripts.RegenerateSitemap)

		// Database schema sync
		schema := handler.NewSchema(pipeline, auditor)
		r.Get("/sync-schema", schema.Sync)
		r.Post("/sync-schema", schema.Sync)

		// Service control
		services := handler.NewServices(s.cfg, manager, auditor)
		r.Post("/restart-app", services.RestartApp)
		r.Post("/reload-nginx", services.ReloadNginx)
		r.Post("/reboot", services.Reboot)
		r.Post("/clear-memory", services.ClearMemory)

		// Privileged setup flows (password over stdin)
		setup := handler.NewSetup(s.cfg, run, auditor)
		r.Post("/run-setup", setup.Run)
		r.Post("/restart-server", setup.RestartServer)

		// Maintenance mode
		maint := handler.NewMaintenance(coord, auditor)
		r.Get("/maintenance-mode", maint.Status)
		r.Post("/maintenance-mode", maint.Status)
		r.Post("/maintenance-mode/enable", maint.Enable)
		r.Post("/maintenance-mode/disable", maint.Disable)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
