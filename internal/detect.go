package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// AppPaths holds the local directories used by the client
type AppPaths struct {
	ConfigDir string // directory holding config.yaml
	CacheDir  string // directory holding the session cache
}

// DetectPaths resolves the config and cache directories for the operating system
func DetectPaths() (AppPaths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return AppPaths{}, fmt.Errorf("failed to get home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		base := filepath.Join(home, "Library/Application Support/codetask")
		return AppPaths{ConfigDir: base, CacheDir: filepath.Join(home, "Library/Caches/codetask")}, nil
	case "linux":
		configBase := os.Getenv("XDG_CONFIG_HOME")
		if configBase == "" {
			configBase = filepath.Join(home, ".config")
		}
		cacheBase := os.Getenv("XDG_CACHE_HOME")
		if cacheBase == "" {
			cacheBase = filepath.Join(home, ".cache")
		}
		return AppPaths{
			ConfigDir: filepath.Join(configBase, "codetask"),
			CacheDir:  filepath.Join(cacheBase, "codetask"),
		}, nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		base := filepath.Join(appData, "codetask")
		return AppPaths{ConfigDir: base, CacheDir: filepath.Join(base, "cache")}, nil
	default:
		return AppPaths{}, fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}

// ConfigFile returns the default config file path
func (p AppPaths) ConfigFile() string {
	return filepath.Join(p.ConfigDir, "config.yaml")
}

// CachePath returns the cache location for a backend: a database file for
// sqlite, a directory for file
func (p AppPaths) CachePath(backend string) string {
	if backend == CacheBackendFile {
		return filepath.Join(p.CacheDir, "sessions")
	}
	return filepath.Join(p.CacheDir, "sessions.db")
}

// OpenStore opens the configured cache backend wrapped with its quota
func OpenStore(cfg CacheConfig, paths AppPaths) (Store, error) {
	path := cfg.Path
	if path == "" {
		path = paths.CachePath(cfg.Backend)
	}

	var store Store
	switch cfg.Backend {
	case CacheBackendMemory:
		store = NewMemoryStore()
	case CacheBackendFile:
		store = NewFileStore(path)
	case CacheBackendSQLite, "":
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
	LogDebug("Using %s cache at %s", cfg.Backend, path)
	return WithQuota(store, cfg.QuotaBytes), nil
}
