// Package filecache implements the filesystem-backed cache used by the
// NWP, geocode, and impact-context clients (spec.md §4.9): JSON blobs
// written atomically under a base directory, with advisory locking so
// two processes (or two goroutines racing a TTL expiry) never observe
// a half-written file, and TTL-based freshness checks on read.
package filecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/tehoro/ibfcore/internal/observability"
)

// Store is a filesystem cache rooted at Dir. Every key is resolved to a
// path under Dir via Path; callers outside this package must never
// write to that path directly (Store.safePath rejects escapes).
type Store struct {
	Dir string
	// Kind labels this store's hits/misses in observability.CacheHitsTotal
	// / CacheMissesTotal, e.g. "nwp", "geocode", "impact".
	Kind string
	// DryRun, when true, makes every deletion path (Delete, Sweep, and
	// the corruption/validator cleanup in Get) log what it would remove
	// instead of unlinking anything (spec.md §4.9's "safe unlink ...
	// support a dry-run mode").
	DryRun bool
	Logger *zap.Logger
}

// New returns a Store rooted at dir, creating dir (and its parents) if
// necessary.
func New(dir, kind string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filecache: create base dir: %w", err)
	}
	return &Store{Dir: dir, Kind: kind, Logger: zap.NewNop()}, nil
}

func (s *Store) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

// entry is the on-disk envelope wrapping every cached payload, so TTL
// freshness and schema validation are independent of what's cached.
type entry struct {
	StoredAt time.Time       `json:"stored_at"`
	Payload  json.RawMessage `json:"payload"`
}

// ErrMiss is returned by Get when the key is absent, expired, or its
// payload fails the caller-supplied validator (and has been deleted).
var ErrMiss = errors.New("filecache: miss")

// Get reads the cached value for key into dest (a pointer) if present
// and younger than ttl. validate, if non-nil, is called on the decoded
// payload; a non-nil return is treated as corruption, the file is
// deleted, and Get returns ErrMiss exactly like any other miss
// (spec.md §4.1's "delete and miss" cache-corruption handling).
func (s *Store) Get(ctx context.Context, key string, ttl time.Duration, dest any, validate func() error) error {
	path, err := s.safePath(key)
	if err != nil {
		return err
	}
	lock := s.lockFor(path)
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("filecache: lock %s: %w", path, err)
	}
	defer lock.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			observability.CacheMissesTotal.WithLabelValues(s.Kind).Inc()
			return ErrMiss
		}
		return fmt.Errorf("filecache: read %s: %w", path, err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		s.deleteUnlocked(path)
		observability.CacheMissesTotal.WithLabelValues(s.Kind).Inc()
		return ErrMiss
	}
	if ttl > 0 && time.Since(e.StoredAt) > ttl {
		observability.CacheMissesTotal.WithLabelValues(s.Kind).Inc()
		return ErrMiss
	}
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		s.deleteUnlocked(path)
		observability.CacheMissesTotal.WithLabelValues(s.Kind).Inc()
		return ErrMiss
	}
	if validate != nil {
		if err := validate(); err != nil {
			s.deleteUnlocked(path)
			observability.CacheMissesTotal.WithLabelValues(s.Kind).Inc()
			return ErrMiss
		}
	}

	observability.CacheHitsTotal.WithLabelValues(s.Kind).Inc()
	return nil
}

// Set atomically stores value under key: the payload is written to a
// temp file in the same directory, fsynced, then renamed over the
// final path, so a crash mid-write never leaves a torn file behind.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	path, err := s.safePath(key)
	if err != nil {
		return err
	}
	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("filecache: lock %s: %w", path, err)
	}
	defer lock.Unlock()

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("filecache: marshal: %w", err)
	}
	e := entry{StoredAt: time.Now().UTC(), Payload: payload}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("filecache: marshal entry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("filecache: mkdir: %w", err)
	}
	return atomicWrite(path, raw)
}

// Delete removes the cached entry for key, if any. Missing keys are
// not an error.
func (s *Store) Delete(key string) error {
	path, err := s.safePath(key)
	if err != nil {
		return err
	}
	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("filecache: lock %s: %w", path, err)
	}
	defer lock.Unlock()
	s.deleteUnlocked(path)
	return nil
}

func (s *Store) deleteUnlocked(path string) {
	if s.DryRun {
		s.logger().Info("filecache: dry-run would delete", zap.String("path", path), zap.String("kind", s.Kind))
		return
	}
	os.Remove(path)
	os.Remove(path + ".lock")
}

// atomicWrite writes data to a temp file beside path, fsyncs it, then
// renames it over path. Rename is atomic on a POSIX filesystem as long
// as the temp file lives in the same directory as the destination.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filecache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed away

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("filecache: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("filecache: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filecache: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("filecache: rename: %w", err)
	}
	return nil
}

// lockFor returns the advisory file lock sidecar for path. Readers take
// an RLock, writers a Lock, so concurrent Get calls never block each
// other but always see either the old or the new complete file.
func (s *Store) lockFor(path string) *flock.Flock {
	return flock.New(path + ".lock")
}

// Path returns the on-disk path for key without performing any I/O.
func (s *Store) Path(key string) (string, error) {
	return s.safePath(key)
}

// safePath joins key onto Dir and rejects any result that escapes Dir
// (e.g. via ".." segments), since cache keys are frequently derived
// from user-configured location/area names.
func (s *Store) safePath(key string) (string, error) {
	joined := filepath.Join(s.Dir, key)
	rel, err := filepath.Rel(s.Dir, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("filecache: key %q escapes base dir", key)
	}
	return joined, nil
}

// Sweep deletes cache files under dir whose modification time is older
// than maxAge, matching the 48-hour best-effort cleanup sweep spec.md
// §4.1 asks the NWP cache to run periodically. Lock sidecars (.lock)
// are swept alongside their data file. Errors removing individual
// files are collected but do not stop the sweep.
func (s *Store) Sweep(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	var errs []error
	err := filepath.WalkDir(s.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || filepath.Ext(path) == ".lock" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if s.DryRun {
				s.logger().Info("filecache: dry-run would sweep", zap.String("path", path), zap.String("kind", s.Kind))
				return nil
			}
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				errs = append(errs, rmErr)
			}
			os.Remove(path + ".lock")
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
