package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/datalog-plotter/backend/internal/api"
	"github.com/datalog-plotter/backend/internal/config"
	"github.com/datalog-plotter/backend/internal/logger"
	"github.com/datalog-plotter/backend/internal/parser"
	"github.com/datalog-plotter/backend/internal/session"
	"github.com/datalog-plotter/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, appConfig)
	},
}

// newEcho builds the echo instance with middleware and every API route.
func newEcho(cfg *config.AppConfig, deps *api.Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Server.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" ||
				(c.Request().Method == http.MethodGet && strings.HasPrefix(path, "/api/sessions/") && strings.Count(path, "/") == 3)
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Processing.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return strings.HasPrefix(c.Request().URL.Path, "/api/ws/")
			},
		}))
	}

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 1 && origins[0] == "" {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(deps))
	return e
}

func runServer(ctx context.Context, cfg *config.AppConfig) error {
	log := logger.Get(ctx)

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	deps := &api.Dependencies{
		Store:             fileStore,
		Defaults:          cfg.Segmentation.Defaults,
		Bounds:            cfg.Segmentation.Bounds,
		AllowFileDeletion: cfg.Security.AllowFileDeletion,
		Version:           Version,
	}

	var parsed *session.ParsedStore
	if cfg.Storage.EnablePersistence {
		parsed, err = session.NewParsedStore(cfg.Storage.ParsedDataDirectory)
		if err != nil {
			return err
		}
		deps.Parsed = parsed

		files, err := fileStore.List(0)
		if err != nil {
			return err
		}
		ids := make([]string, len(files))
		for i, f := range files {
			ids[i] = f.ID
		}
		if n := parsed.CleanupOrphaned(ids); n > 0 {
			log.Infof("[Server] Removed %d parsed datalogs without an upload", n)
		}
	}

	sessionMgr := session.NewManager(parser.GetGlobalRegistry(), parsed)
	deps.SessionMgr = sessionMgr

	go cleanupLoop(ctx, sessionMgr, cfg.Processing)

	e := newEcho(cfg, deps)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	log.Infof("[Server] Datalog pull plotter %s (built %s)", Version, BuildTime)
	if loadedConfigPath != "" {
		log.Infof("[Server] Config: %s", loadedConfigPath)
	}
	log.Infof("[Server] Listening on http://%s, data in %s", cfg.GetServerAddr(), cfg.Storage.DataDirectory)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("[Server] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// cleanupLoop drops idle sessions until ctx is done.
func cleanupLoop(ctx context.Context, mgr *session.Manager, cfg config.ProcessingConfig) {
	interval := time.Duration(cfg.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		return
	}
	maxAge := time.Duration(cfg.SessionTimeoutMinutes) * time.Minute
	if maxAge <= 0 {
		maxAge = session.SessionMaxAge
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := mgr.CleanupOldSessions(maxAge); n > 0 {
				logger.Get(ctx).Infof("[Server] Cleaned up %d idle sessions", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
