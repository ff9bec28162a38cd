package internal

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/iksnae/codetask-session/testutil"
)

func TestDetectPaths(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only applies on linux")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-cache")

	paths, err := DetectPaths()
	if err != nil {
		t.Fatalf("DetectPaths() error = %v", err)
	}
	if paths.ConfigDir != "/tmp/xdg-config/codetask" {
		t.Errorf("ConfigDir = %v, want /tmp/xdg-config/codetask", paths.ConfigDir)
	}
	if paths.CacheDir != "/tmp/xdg-cache/codetask" {
		t.Errorf("CacheDir = %v, want /tmp/xdg-cache/codetask", paths.CacheDir)
	}
	if paths.ConfigFile() != "/tmp/xdg-config/codetask/config.yaml" {
		t.Errorf("ConfigFile() = %v", paths.ConfigFile())
	}
}

func TestAppPaths_CachePath(t *testing.T) {
	paths := AppPaths{CacheDir: "/cache"}

	tests := []struct {
		backend string
		want    string
	}{
		{CacheBackendSQLite, filepath.Join("/cache", "sessions.db")},
		{CacheBackendFile, filepath.Join("/cache", "sessions")},
	}
	for _, tt := range tests {
		if got := paths.CachePath(tt.backend); got != tt.want {
			t.Errorf("CachePath(%q) = %v, want %v", tt.backend, got, tt.want)
		}
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	paths := AppPaths{CacheDir: testutil.CreateTempDir(t)}

	for _, backend := range []string{CacheBackendMemory, CacheBackendFile, CacheBackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			store, err := OpenStore(CacheConfig{Backend: backend, QuotaBytes: 16}, paths)
			if err != nil {
				t.Fatalf("OpenStore() error = %v", err)
			}
			defer store.Close()

			if err := store.Put(ctx, "k", []byte("small")); err != nil {
				t.Errorf("Put() error = %v", err)
			}
			if err := store.Put(ctx, "k", []byte("this value is over quota")); !errors.Is(err, ErrQuotaExceeded) {
				t.Errorf("Put() over quota error = %v, want ErrQuotaExceeded", err)
			}
		})
	}

	if _, err := OpenStore(CacheConfig{Backend: "redis"}, paths); err == nil {
		t.Error("OpenStore(redis) error = nil, want failure")
	}
}
