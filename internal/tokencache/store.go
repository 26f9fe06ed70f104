package tokencache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/spf13/afero"

	"github.com/florianilch/b2clogin/internal/secretcodec"
)

// filePerm restricts the cache file to its owner.
const filePerm = 0600

// Op is the kind of cache access.
type Op string

const (
	OpLoad Op = "load"
	OpSave Op = "save"
)

// Result describes how a cache access ended.
type Result string

const (
	ResultLoaded      Result = "loaded"
	ResultAbsent      Result = "absent"
	ResultUnreadable  Result = "unreadable"
	ResultSkipped     Result = "skipped"
	ResultWritten     Result = "written"
	ResultWriteFailed Result = "write_failed"
	ResultLockFailed  Result = "lock_failed"
)

// Event records a single cache access. Err is set for the failure results;
// it is informational only, as failures never propagate to the identity client.
type Event struct {
	Op      Op
	Changed bool
	Result  Result
	Err     error
}

// Status describes the cache file on disk.
type Status struct {
	Path      string
	Exists    bool
	Size      int64
	ModTime   time.Time
	Mode      secretcodec.Mode
	Protected bool
}

// Store persists the serialized token cache through a secretcodec.Codec.
type Store struct {
	cfg        CacheConfig
	codec      secretcodec.Codec
	fs         afero.Fs
	emptyCache []byte

	// digest of the blob last loaded from or written to disk
	mu        sync.Mutex
	digest    [sha256.Size]byte
	hasDigest bool
}

// Compile-time check to ensure Store implements cache.ExportReplace
var _ cache.ExportReplace = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithFs replaces the OS filesystem, e.g. with afero.NewMemMapFs in tests.
func WithFs(fs afero.Fs) Option {
	return func(s *Store) {
		s.fs = fs
	}
}

// WithEmptyCache sets the serialized form supplied to the identity client when
// no usable cache exists. Defaults to nil.
func WithEmptyCache(blob []byte) Option {
	return func(s *Store) {
		s.emptyCache = blob
	}
}

// New creates a Store. No I/O is performed until the first access.
func New(cfg CacheConfig, codec secretcodec.Codec, opts ...Option) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("cache path cannot be empty")
	}
	if cfg.Lock == nil {
		return nil, fmt.Errorf("missing cache lock")
	}
	if codec == nil {
		return nil, fmt.Errorf("missing secret codec")
	}

	s := &Store{
		cfg:   cfg,
		codec: codec,
		fs:    afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the cache file location.
func (s *Store) Path() string {
	return s.cfg.Path
}

// Codec returns the codec protecting the cache.
func (s *Store) Codec() secretcodec.Codec {
	return s.codec
}

// BeforeAccess loads the cache file into dst. A missing, unreadable or foreign
// cache supplies the empty cache instead, forcing re-authentication.
func (s *Store) BeforeAccess(ctx context.Context, dst cache.Unmarshaler) Event {
	unlock, err := s.cfg.Lock.Lock(ctx)
	if err != nil {
		slog.WarnContext(ctx, "token cache lock unavailable, continuing without cache", "path", s.cfg.Path, "error", err)
		return Event{Op: OpLoad, Result: ResultLockFailed, Err: err}
	}
	defer unlock()

	ev := s.load(ctx, dst)
	if ev.Result != ResultLoaded {
		s.resetDigest()
		if err := dst.Unmarshal(s.emptyCache); err != nil {
			slog.DebugContext(ctx, "identity client rejected empty cache", "error", err)
		}
	}

	slog.DebugContext(ctx, "token cache access", "op", ev.Op, "result", ev.Result)
	return ev
}

func (s *Store) load(ctx context.Context, dst cache.Unmarshaler) Event {
	ciphertext, err := afero.ReadFile(s.fs, s.cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Event{Op: OpLoad, Result: ResultAbsent}
	}
	if err != nil {
		slog.WarnContext(ctx, "token cache unreadable, ignoring", "path", s.cfg.Path, "error", err)
		return Event{Op: OpLoad, Result: ResultUnreadable, Err: err}
	}

	s.warnInsecurePermissions(ctx)

	blob, err := s.codec.Decrypt(ciphertext)
	if err != nil {
		slog.WarnContext(ctx, "token cache cannot be decrypted, ignoring", "path", s.cfg.Path, "mode", s.codec.Mode(), "error", err)
		return Event{Op: OpLoad, Result: ResultUnreadable, Err: err}
	}

	if err := dst.Unmarshal(blob); err != nil {
		slog.WarnContext(ctx, "token cache content rejected, ignoring", "path", s.cfg.Path, "error", err)
		return Event{Op: OpLoad, Result: ResultUnreadable, Err: err}
	}

	s.setDigest(sha256.Sum256(blob))
	return Event{Op: OpLoad, Result: ResultLoaded}
}

// AfterAccess writes src to disk when changed is true. When changed is false
// no filesystem I/O happens at all.
func (s *Store) AfterAccess(ctx context.Context, src cache.Marshaler, changed bool) Event {
	if !changed {
		return Event{Op: OpSave, Result: ResultSkipped}
	}

	blob, err := src.Marshal()
	if err != nil {
		slog.ErrorContext(ctx, "failed to serialize token cache", "error", err)
		return Event{Op: OpSave, Changed: true, Result: ResultWriteFailed, Err: err}
	}
	return s.save(ctx, blob)
}

func (s *Store) save(ctx context.Context, blob []byte) Event {
	ev := Event{Op: OpSave, Changed: true, Result: ResultWritten}

	unlock, err := s.cfg.Lock.Lock(ctx)
	if err != nil {
		slog.WarnContext(ctx, "token cache lock unavailable, tokens will not be cached", "path", s.cfg.Path, "error", err)
		ev.Result, ev.Err = ResultLockFailed, err
		return ev
	}
	defer unlock()

	ciphertext, err := s.codec.Encrypt(blob)
	if err == nil {
		err = writeFileAtomic(s.fs, s.cfg.Path, ciphertext, filePerm)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to persist token cache, tokens will not be cached", "path", s.cfg.Path, "error", err)
		ev.Result, ev.Err = ResultWriteFailed, err
		return ev
	}

	s.setDigest(sha256.Sum256(blob))
	slog.DebugContext(ctx, "token cache access", "op", ev.Op, "result", ev.Result)
	return ev
}

// Replace implements cache.ExportReplace. Errors are absorbed so that a broken
// cache never blocks authentication.
func (s *Store) Replace(ctx context.Context, c cache.Unmarshaler, _ cache.ReplaceHints) error {
	s.BeforeAccess(ctx, c)
	return nil
}

// Export implements cache.ExportReplace. The identity client calls it after
// operations that may have modified the cache; the blob is written only if it
// differs from what was last loaded or saved.
func (s *Store) Export(ctx context.Context, c cache.Marshaler, _ cache.ExportHints) error {
	blob, err := c.Marshal()
	if err != nil {
		slog.ErrorContext(ctx, "failed to serialize token cache", "error", err)
		return nil
	}

	if !s.changed(sha256.Sum256(blob)) {
		slog.DebugContext(ctx, "token cache access", "op", OpSave, "result", ResultSkipped)
		return nil
	}
	s.save(ctx, blob)
	return nil
}

// Stat reports the state of the cache file.
func (s *Store) Stat(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}

	status := Status{
		Path:      s.cfg.Path,
		Mode:      s.codec.Mode(),
		Protected: s.codec.Protected(),
	}

	info, err := s.fs.Stat(s.cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return status, nil
	}
	if err != nil {
		return status, err
	}

	status.Exists = true
	status.Size = info.Size()
	status.ModTime = info.ModTime()
	return status, nil
}

// Clear deletes the cache file. Deleting a missing cache is not an error.
func (s *Store) Clear(ctx context.Context) error {
	unlock, err := s.cfg.Lock.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.fs.Remove(s.cfg.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing token cache: %w", err)
	}
	s.resetDigest()
	return nil
}

func (s *Store) warnInsecurePermissions(ctx context.Context) {
	if runtime.GOOS == "windows" {
		return
	}
	info, err := s.fs.Stat(s.cfg.Path)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		slog.WarnContext(ctx, "token cache readable by other users", "path", s.cfg.Path, "perm", fmt.Sprintf("%04o", perm))
	}
}

func (s *Store) changed(digest [sha256.Size]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.hasDigest || s.digest != digest
}

func (s *Store) setDigest(digest [sha256.Size]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digest, s.hasDigest = digest, true
}

func (s *Store) resetDigest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasDigest = false
}
