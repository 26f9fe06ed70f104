package tokencache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// lockPollInterval bounds how often a contended OS lock is retried.
const lockPollInterval = 10 * time.Millisecond

// Locker provides exclusive access to the cache file.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done. The returned
	// function releases the lock.
	Lock(ctx context.Context) (unlock func(), err error)
}

// semaphores holds one process-wide semaphore per cache path.
var (
	semaphoresMu sync.Mutex
	semaphores   = map[string]chan struct{}{}
)

func semaphoreFor(key string) chan struct{} {
	semaphoresMu.Lock()
	defer semaphoresMu.Unlock()

	sem, ok := semaphores[key]
	if !ok {
		sem = make(chan struct{}, 1)
		semaphores[key] = sem
	}
	return sem
}

// MutexLock serializes goroutines within this process only.
type MutexLock struct {
	sem chan struct{}
}

// Compile-time check to ensure MutexLock implements Locker
var _ Locker = (*MutexLock)(nil)

// NewMutexLock returns an in-process lock not shared with any other Locker.
func NewMutexLock() *MutexLock {
	return &MutexLock{sem: make(chan struct{}, 1)}
}

func (m *MutexLock) Lock(ctx context.Context) (func(), error) {
	if err := acquire(ctx, m.sem); err != nil {
		return nil, err
	}
	return func() { <-m.sem }, nil
}

// FileLock serializes goroutines through a process-wide semaphore keyed by the
// cache path, and processes through an OS advisory lock on path + ".lock".
type FileLock struct {
	lockPath string
	sem      chan struct{}
}

// Compile-time check to ensure FileLock implements Locker
var _ Locker = (*FileLock)(nil)

// NewFileLock returns the lock for the cache file at path. Every FileLock for
// the same cleaned path shares one in-process semaphore.
func NewFileLock(path string) *FileLock {
	key := filepath.Clean(path)
	return &FileLock{
		lockPath: key + ".lock",
		sem:      semaphoreFor(key),
	}
}

func (l *FileLock) Lock(ctx context.Context) (func(), error) {
	if err := acquire(ctx, l.sem); err != nil {
		return nil, err
	}

	f, err := l.lockFile(ctx)
	if err != nil {
		<-l.sem
		return nil, err
	}

	return func() {
		_ = unlockFile(f)
		_ = f.Close()
		<-l.sem
	}, nil
}

// lockFile opens the sidecar lock file and polls for the OS lock until ctx is done.
func (l *FileLock) lockFile(ctx context.Context) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(l.lockPath), 0700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := tryLockFile(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("locking %s: %w", l.lockPath, err)
		}
		if ok {
			return f, nil
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func acquire(ctx context.Context, sem chan struct{}) error {
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
