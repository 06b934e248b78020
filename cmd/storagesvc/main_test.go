package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/hardyscc/storage-svc/internal/config"
	"github.com/hardyscc/storage-svc/internal/storage"
)

func TestRunMultipartMaintenanceStartupSweepRemovesStaleUpload(t *testing.T) {
	t.Parallel()
	backend, err := storage.NewFSBackend(t.TempDir(), 1024*1024)
	if err != nil {
		t.Fatalf("NewFSBackend error: %v", err)
	}
	if err := backend.CreateBucket(context.Background(), "maint-bucket"); err != nil {
		t.Fatalf("CreateBucket error: %v", err)
	}

	uploadID, err := backend.CreateMultipartUpload(context.Background(), "maint-bucket", "obj.txt")
	if err != nil {
		t.Fatalf("CreateMultipartUpload error: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)

	cfg := config.Default()
	cfg.Storage.MultipartMaintenance.Enabled = true
	cfg.Storage.MultipartMaintenance.StartupSweep = true
	cfg.Storage.MultipartMaintenance.SweepIntervalSeconds = 3600
	cfg.Storage.MultipartMaintenance.StaleAfterSeconds = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		runMultipartMaintenance(ctx, slog.New(slog.NewTextHandler(os.Stdout, nil)), backend, cfg)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err = backend.ListParts(context.Background(), "maint-bucket", uploadID, storage.ListPartsOptions{})
		if errors.Is(err, storage.ErrNoSuchUpload) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected stale upload removed by startup sweep, got %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("maintenance worker did not stop on context cancel")
	}
}

func TestRunMultipartMaintenanceDisabledReturns(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Storage.MultipartMaintenance.Enabled = false

	// Must return immediately without touching the backend.
	runMultipartMaintenance(context.Background(), slog.New(slog.NewTextHandler(os.Stdout, nil)), nil, cfg)
}

func TestMetricsPath(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if got := metricsPath(cfg); got != config.DefaultMetricsPath {
		t.Fatalf("unexpected metrics path: %q", got)
	}
	cfg.Metrics.Enabled = false
	if got := metricsPath(cfg); got != "" {
		t.Fatalf("expected empty path when metrics disabled, got %q", got)
	}
}

func TestWithServerHeader(t *testing.T) {
	t.Parallel()
	h := withServerHeader(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	if res.Header().Get("Server") != "storagesvc" {
		t.Fatalf("unexpected Server header: %q", res.Header().Get("Server"))
	}
}
