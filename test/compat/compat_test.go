// Package compat runs real S3 client SDKs against an in-process server
// to verify wire-level compatibility.
package compat

import (
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hardyscc/storage-svc/internal/api"
	"github.com/hardyscc/storage-svc/internal/auth"
	"github.com/hardyscc/storage-svc/internal/storage"
)

const (
	compatAccessKey = "AKIACOMPAT"
	compatSecretKey = "compat-secret-key"
)

func newCompatServer(t *testing.T) *httptest.Server {
	t.Helper()
	backend, err := storage.NewFSBackend(filepath.Join(t.TempDir(), "data"), 256*1024*1024)
	if err != nil {
		t.Fatalf("NewFSBackend error: %v", err)
	}
	store := auth.NewStore([]auth.Credential{
		{Name: "compat", AccessKey: compatAccessKey, SecretKey: compatSecretKey},
	})
	svc := &api.Service{
		Backend: backend,
		Auth: &auth.Authenticator{
			Store:          store,
			ClockTolerance: 15 * time.Minute,
		},
		MaxBodyBytes: 256 * 1024 * 1024,
	}
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv
}
