package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hardyscc/storage-svc/internal/api"
	"github.com/hardyscc/storage-svc/internal/auth"
	"github.com/hardyscc/storage-svc/internal/config"
	"github.com/hardyscc/storage-svc/internal/logging"
	"github.com/hardyscc/storage-svc/internal/obs/metrics"
	"github.com/hardyscc/storage-svc/internal/runtime"
	"github.com/hardyscc/storage-svc/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to service config file")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Printf("startup failed: %v", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Server.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	creds := make([]auth.Credential, 0, len(cfg.Auth.Credentials))
	for _, cred := range cfg.Auth.Credentials {
		creds = append(creds, auth.Credential{Name: cred.Name, AccessKey: cred.AccessKey, SecretKey: cred.SecretKey})
	}
	store := auth.NewStore(creds)

	if err := runtime.EnsureStorageAvailable(cfg.Storage.DataDir); err != nil {
		logger.Error("startup failed: storage readiness", "error", err)
		os.Exit(1)
	}

	backend, err := storage.NewFSBackend(cfg.Storage.DataDir, cfg.Storage.MaxObjectBytes)
	if err != nil {
		logger.Error("startup failed: storage backend", "error", err)
		os.Exit(1)
	}

	obs := metrics.New()

	readyCheck := func() error {
		return runtime.EnsureStorageAvailable(cfg.Storage.DataDir)
	}

	svc := &api.Service{
		Backend: backend,
		Auth: &auth.Authenticator{
			Store:          store,
			ClockTolerance: time.Duration(cfg.Auth.ClockSkewToleranceSeconds) * time.Second,
		},
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		PathLive:     cfg.Health.PathLive,
		PathReady:    cfg.Health.PathReady,
		MetricsPath:  metricsPath(cfg),
		ReadyCheck:   readyCheck,
		Metrics:      obs,
		Logger:       logger,
		Now:          time.Now,
	}

	srv, err := runtime.New(cfg, withServerHeader(svc.Handler()), logger)
	if err != nil {
		logger.Error("startup failed: server init", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("server starting", "addr", cfg.Server.ListenAddress, "tls_enabled", cfg.TLS.Enabled, "tls_mode", cfg.TLS.Mode)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		runMultipartMaintenance(ctx, logger, backend, cfg)
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func metricsPath(cfg config.Config) string {
	if !cfg.Metrics.Enabled {
		return ""
	}
	return cfg.Metrics.Path
}

func withServerHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "storagesvc")
		next.ServeHTTP(w, r)
	})
}

func runMultipartMaintenance(ctx context.Context, logger *slog.Logger, backend *storage.FSBackend, cfg config.Config) {
	mcfg := cfg.Storage.MultipartMaintenance
	if !mcfg.Enabled {
		return
	}

	sweepOpts := storage.MultipartSweepOptions{
		StaleAfter:  time.Duration(mcfg.StaleAfterSeconds) * time.Second,
		MaxRemovals: mcfg.MaxRemovalsPerSweep,
	}
	if mcfg.StartupSweep {
		res, err := backend.SweepStaleMultipartUploads(ctx, time.Now().UTC(), sweepOpts)
		logMultipartSweep(logger, "multipart startup sweep", res, err)
	}

	ticker := time.NewTicker(time.Duration(mcfg.SweepIntervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			res, err := backend.SweepStaleMultipartUploads(ctx, t.UTC(), sweepOpts)
			logMultipartSweep(logger, "multipart periodic sweep", res, err)
		}
	}
}

func logMultipartSweep(logger *slog.Logger, msg string, res storage.MultipartSweepResult, err error) {
	fields := []any{
		"buckets_scanned", res.BucketsScanned,
		"uploads_scanned", res.UploadsScanned,
		"uploads_removed", res.UploadsRemoved,
		"temp_files_removed", res.TempFilesRemoved,
		"skipped_by_limit", res.SkippedByLimit,
	}
	if err != nil {
		logger.Warn(msg+" completed with errors", append(fields, "error", err)...)
		return
	}
	logger.Info(msg+" completed", fields...)
}
