package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for minimal hosts

	"github.com/botaniq/admind/internal/api"
	"github.com/botaniq/admind/internal/config"
	"github.com/botaniq/admind/internal/gitops"
	"github.com/botaniq/admind/internal/logging"
)

func main() {
	repoRoot := gitops.ResolveRepoRoot(os.Getenv(config.EnvRepoDir))

	// The web app's env files carry the database and Supabase settings;
	// merge them in before reading config. Real environment wins.
	if err := config.LoadEnvFiles(repoRoot); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := config.Load(repoRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	srv := api.NewServer(logger, cfg)

	// No WriteTimeout: SSE endpoints stream for the full run of
	// multi-minute deploys and restarts.
	httpServer := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.HTTPListenAddr).
			Str("repo", cfg.RepoDir).
			Bool("dev_mode", cfg.DevMode).
			Msg("starting admin daemon")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
