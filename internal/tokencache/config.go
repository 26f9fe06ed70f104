package tokencache

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileSuffix is appended to the executable path to form the default cache path.
const FileSuffix = ".msalcache.bin"

// CacheConfig identifies the cache file and the lock guarding it.
// Construct once at startup and pass to New.
type CacheConfig struct {
	Path string
	Lock Locker
}

// NewCacheConfig returns a CacheConfig for path guarded by a file lock.
func NewCacheConfig(path string) (CacheConfig, error) {
	if path == "" {
		return CacheConfig{}, fmt.Errorf("cache path cannot be empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return CacheConfig{}, fmt.Errorf("resolving cache path: %w", err)
	}

	return CacheConfig{
		Path: abs,
		Lock: NewFileLock(abs),
	}, nil
}

// DefaultPath derives the cache path from the running executable's location.
func DefaultPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe + FileSuffix, nil
}
