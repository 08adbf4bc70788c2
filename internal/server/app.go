// Package server wires the transcoder together: metadata backend, object
// store, encoder and the HTTP and gRPC servers, with graceful shutdown on
// SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/transcoder/internal/clock"
	"github.com/dmitrijs2005/transcoder/internal/filex"
	"github.com/dmitrijs2005/transcoder/internal/logging"
	"github.com/dmitrijs2005/transcoder/internal/server/auth"
	"github.com/dmitrijs2005/transcoder/internal/server/catalog"
	"github.com/dmitrijs2005/transcoder/internal/server/config"
	"github.com/dmitrijs2005/transcoder/internal/server/encoder"
	"github.com/dmitrijs2005/transcoder/internal/server/httpapi"
	"github.com/dmitrijs2005/transcoder/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/transcoder/internal/server/services"
	"github.com/dmitrijs2005/transcoder/internal/server/storage"

	gs "github.com/dmitrijs2005/transcoder/internal/server/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	repos  repomanager.RepositoryManager
	media  *services.MediaService
	verify *auth.Verifier
}

// NewApp opens the metadata backend, runs its migrations and builds the
// media service. Close releases what NewApp opened.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {

	verifier, err := auth.NewVerifier(c.Secrets(), c.JWTIssuer, c.JWTAudience)
	if err != nil {
		return nil, err
	}

	workDir, err := filex.EnsureDir(c.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}

	rm, err := repomanager.Open(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx); err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	awsCfg, err := storage.LoadAWSConfig(ctx, storage.AWSConfig{
		Region:    c.S3Region,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
	})
	if err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	store := storage.NewS3Store(awsCfg, c.S3Bucket, c.S3Endpoint, c.S3PathStyle)

	clk := clock.Real()
	exec := encoder.NewExecutor(c.FFmpegPath, logger, encoder.WithMaxConcurrent(c.MaxConcurrentEncodes))
	reconciler := catalog.NewReconciler(rm.Assets(), clk, logger, c.RecordFailures)

	media := services.NewMediaService(store, rm.Assets(), reconciler, exec, clk, logger, services.MediaConfig{
		WorkDir:        workDir,
		MaxUploadBytes: c.MaxUploadSize.Int64(),
		PresignTTL:     c.PresignTTL,
		CacheTTL:       c.CacheTTL,
		CacheCoalesce:  c.CacheCoalesce,
	})

	return &App{config: c, logger: logger, repos: rm, media: media, verify: verifier}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case s := <-sigs:
			app.logger.Info(ctx, "Received signal", "signal", s.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run serves HTTP and gRPC until ctx is cancelled, a signal arrives or
// either server fails. The first server error is returned.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "backend", app.config.MetadataBackend)

	app.initSignalHandler(ctx, cancelFunc)

	httpSrv := httpapi.NewServer(app.config.HTTPAddr, app.media, app.verify, app.logger, app.config.MaxUploadSize.Int64())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				app.logger.Error(ctx, name+" server failed", "error", err.Error())
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cancelFunc()
			}
		}()
	}

	run("HTTP", httpSrv.Run)
	if app.config.GRPCAddr != "" {
		grpcSrv := gs.NewHealthServer(app.config.GRPCAddr, app.logger, app.verify)
		grpcSrv.SetServing(true)
		run("gRPC", grpcSrv.Run)
	}

	wg.Wait()
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
	return firstErr
}

func (app *App) Close() error {
	var errs []error
	if app.repos != nil {
		errs = append(errs, app.repos.Close())
	}
	return errors.Join(errs...)
}
