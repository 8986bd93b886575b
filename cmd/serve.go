package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pdfmaster/internal/api"
	"pdfmaster/internal/artifact"
	"pdfmaster/internal/backend"
	"pdfmaster/internal/config"
	fileutil "pdfmaster/internal/file"
	"pdfmaster/internal/session"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	reapInterval      = time.Minute
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP front-end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root.cfg)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := fileutil.EnsureDir(cfg.DataDir); err != nil {
		return fmt.Errorf("ensure data dir %s: %w", cfg.DataDir, err)
	}

	store, err := buildArtifactStore(ctx, cfg)
	if err != nil {
		return err
	}
	sessions := buildSessionManager(cfg, store)

	router := setupRouter()
	wireAPI(router, sessions, cfg)

	baseCtx, baseCancel := context.WithCancel(ctx)
	sessions.SetBaseContext(baseCtx)
	go sessions.RunReaper(baseCtx, reapInterval)

	srv := newHTTPServer(cfg.Port, router, readHeaderTimeout)
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("backend_url", cfg.BackendURL).Str("artifacts", cfg.Artifacts.Kind).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigCtx, stopSignals := shutdownSignalContext(ctx)
	defer stopSignals()

	select {
	case err := <-serveErr:
		baseCancel()
		sessions.CloseAll()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigCtx.Done():
		log.Info().Msg("shutdown signal received")
	}

	gracefulShutdown(srv, baseCancel, sessions, shutdownTimeout)
	return nil
}

func setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger())
	return r
}

func buildArtifactStore(ctx context.Context, cfg config.Config) (artifact.Store, error) {
	switch cfg.Artifacts.Kind {
	case config.ArtifactsS3:
		store, err := artifact.NewS3Store(ctx, artifact.S3Config{
			Bucket:     cfg.Artifacts.Bucket,
			Prefix:     cfg.Artifacts.Prefix,
			Region:     cfg.Artifacts.Region,
			Endpoint:   cfg.Artifacts.Endpoint,
			PresignTTL: cfg.Artifacts.PresignTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 artifact store: %w", err)
		}
		return store, nil
	default:
		store, err := artifact.NewDiskStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("disk artifact store: %w", err)
		}
		removed, err := store.Sweep(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("artifact sweep failed")
		} else if removed > 0 {
			log.Info().Int("removed", removed).Msg("orphaned artifacts removed")
		}
		return store, nil
	}
}

func buildSessionManager(cfg config.Config, store artifact.Store) *session.Manager {
	return session.NewManager(backend.New(cfg.BackendURL), store, session.Options{
		MaxConcurrentSubmissions: cfg.MaxConcurrentSubmissions,
		IdleTTL:                  cfg.SessionTTL,
		RequestTimeout:           cfg.RequestTimeout,
	})
}

func wireAPI(router *gin.Engine, sessions *session.Manager, cfg config.Config) {
	apiHandler := api.NewAPI(sessions, cfg.MaxUploadBytes())
	apiHandler.RegisterRoutes(router)
	apiHandler.RegisterUIRoutes(router)
}

func newHTTPServer(port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// shutdownSignalContext is done on SIGINT, SIGTERM or when ctx ends.
func shutdownSignalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, sessions *session.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	done := sessions.WaitAll(ctx)
	if !done {
		log.Warn().Msg("in-flight submissions did not finish before timeout")
	}
	sessions.CloseAll()
	log.Info().Msg("server exited cleanly")
}
