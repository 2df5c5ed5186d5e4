// Package filestore is an ephemeral artifact store on local disk.
//
// Every object is written once under a fresh reference and lives until its
// expiry. The bytes go to <ref>.bin and the metadata to a <ref>.meta.json
// sidecar, both written temp file -> fsync -> atomic rename. An in-memory
// index answers lookups and is rebuilt from the sidecars on Open, so
// artifacts survive a restart. Small objects are kept in an expirable LRU.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	// ErrNotFound is returned for references the store has never issued or
	// has already removed.
	ErrNotFound = errors.New("artifact not found")

	// ErrExpired is returned for references past their expiry, whether or
	// not the sweep has removed them yet.
	ErrExpired = errors.New("artifact expired")
)

const (
	dataSuffix = ".bin"
	metaSuffix = ".meta.json"
	tmpSuffix  = ".tmp"
)

// Kind says what an object is for. Readers check it before serving an
// object for a purpose; Name is caller-supplied and proves nothing.
type Kind string

const (
	KindUpload      Kind = "upload"
	KindErrorReport Kind = "error-report"
	KindExport      Kind = "export"
)

// Meta describes a stored object.
type Meta struct {
	Ref         string    `json:"ref"`
	Kind        Kind      `json:"kind,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the object is past its expiry at now. A zero
// ExpiresAt never expires.
func (m Meta) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

// Object is a stored artifact and its bytes.
type Object struct {
	Meta Meta
	Data []byte
}

// Options tunes the hot cache. Zero values disable caching.
type Options struct {
	CacheSize           int
	CacheTTL            time.Duration
	CacheMaxObjectBytes int64

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store is a disk-backed artifact store. It is safe for concurrent use.
type Store struct {
	dir   string
	opts  Options
	now   func() time.Time
	cache *expirable.LRU[string, *Object]

	mu    sync.RWMutex
	index map[string]Meta
}

// Open prepares dir and rebuilds the index from the sidecar files found
// there. Leftover temp files from interrupted writes are removed, as are
// sidecars whose data file is gone.
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}

	s := &Store{
		dir:   dir,
		opts:  opts,
		now:   opts.Now,
		index: make(map[string]Meta),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.CacheSize > 0 && opts.CacheTTL > 0 {
		s.cache = expirable.NewLRU[string, *Object](opts.CacheSize, nil, opts.CacheTTL)
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	objectsStored.Set(float64(len(s.index)))
	return s, nil
}

func (s *Store) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scan storage dir: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, tmpSuffix):
			_ = os.Remove(filepath.Join(s.dir, name))

		case strings.HasSuffix(name, metaSuffix):
			ref := strings.TrimSuffix(name, metaSuffix)
			meta, err := readMeta(filepath.Join(s.dir, name))
			if err != nil {
				slog.Warn("skipping unreadable artifact metadata", "ref", ref, "error", err)
				continue
			}
			if _, err := os.Stat(s.dataPath(ref)); err != nil {
				_ = os.Remove(s.metaPath(ref))
				continue
			}
			s.index[ref] = *meta
		}
	}
	return nil
}

// Put stores data under a new reference. A ttl of zero or less means the
// object never expires.
func (s *Store) Put(ctx context.Context, data []byte, meta Meta, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := s.now().UTC()
	meta.Ref = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Checksum = strconv.FormatUint(xxhash.Sum64(data), 16)
	meta.CreatedAt = now
	meta.ExpiresAt = time.Time{}
	if ttl > 0 {
		meta.ExpiresAt = now.Add(ttl)
	}

	if err := writeAtomic(s.dataPath(meta.Ref), data); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(s.dataPath(meta.Ref))
		return "", fmt.Errorf("encode artifact metadata: %w", err)
	}
	if err := writeAtomic(s.metaPath(meta.Ref), encoded); err != nil {
		_ = os.Remove(s.dataPath(meta.Ref))
		return "", fmt.Errorf("write artifact metadata: %w", err)
	}

	s.mu.Lock()
	s.index[meta.Ref] = meta
	count := len(s.index)
	s.mu.Unlock()

	s.cacheAdd(&Object{Meta: meta, Data: data})

	putsTotal.Inc()
	bytesWrittenTotal.Add(float64(meta.Size))
	objectsStored.Set(float64(count))
	return meta.Ref, nil
}

// Stat returns the metadata for ref without reading the bytes.
func (s *Store) Stat(ctx context.Context, ref string) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	s.mu.RLock()
	meta, ok := s.index[ref]
	s.mu.RUnlock()

	if !ok {
		return Meta{}, ErrNotFound
	}
	if meta.Expired(s.now()) {
		return Meta{}, ErrExpired
	}
	return meta, nil
}

// Get returns the object stored under ref. Expired objects are never
// returned, even from the cache.
func (s *Store) Get(ctx context.Context, ref string) (*Object, error) {
	meta, err := s.Stat(ctx, ref)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if obj, ok := s.cache.Get(ref); ok {
			cacheHitsTotal.Inc()
			return obj, nil
		}
		cacheMissesTotal.Inc()
	}

	data, err := os.ReadFile(s.dataPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read artifact %s: %w", ref, err)
	}
	if sum := strconv.FormatUint(xxhash.Sum64(data), 16); sum != meta.Checksum {
		return nil, fmt.Errorf("artifact %s checksum mismatch: got %s, want %s", ref, sum, meta.Checksum)
	}

	obj := &Object{Meta: meta, Data: data}
	s.cacheAdd(obj)
	return obj, nil
}

// Delete removes ref. Deleting an unknown reference is not an error.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.index, ref)
	count := len(s.index)
	s.mu.Unlock()

	objectsStored.Set(float64(count))
	return s.remove(ref)
}

// SweepExpired deletes every expired object and returns how many were
// removed. It may run concurrently with Put: new references are never
// expired at creation, so a sweep cannot race a write for the same ref.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	var expired []string
	for ref, meta := range s.index {
		if meta.Expired(now) {
			expired = append(expired, ref)
			delete(s.index, ref)
		}
	}
	count := len(s.index)
	s.mu.Unlock()
	objectsStored.Set(float64(count))

	var errs []error
	removed := 0
	for _, ref := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.remove(ref); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	sweptObjectsTotal.Add(float64(removed))
	return removed, errors.Join(errs...)
}

// Len returns the number of indexed objects, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

func (s *Store) remove(ref string) error {
	if s.cache != nil {
		s.cache.Remove(ref)
	}
	var errs []error
	for _, p := range []string{s.metaPath(ref), s.dataPath(ref)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove %s: %w", filepath.Base(p), err))
		}
	}
	return errors.Join(errs...)
}

// cacheAdd keeps small objects in memory. Objects that would expire before
// the cache entry are left out.
func (s *Store) cacheAdd(obj *Object) {
	if s.cache == nil || obj.Meta.Size > s.opts.CacheMaxObjectBytes {
		return
	}
	if !obj.Meta.ExpiresAt.IsZero() && obj.Meta.ExpiresAt.Before(s.now().Add(s.opts.CacheTTL)) {
		return
	}
	s.cache.Add(obj.Meta.Ref, obj)
}

// dataPath and metaPath only accept refs this store could have issued, so a
// caller-supplied ref can never escape the storage dir.
func (s *Store) dataPath(ref string) string {
	return filepath.Join(s.dir, safeRef(ref)+dataSuffix)
}

func (s *Store) metaPath(ref string) string {
	return filepath.Join(s.dir, safeRef(ref)+metaSuffix)
}

func safeRef(ref string) string {
	if _, err := uuid.Parse(ref); err != nil {
		return "invalid"
	}
	return ref
}

func readMeta(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// writeAtomic writes data to path via temp file, fsync and rename.
func writeAtomic(path string, data []byte) error {
	tmp := path + tmpSuffix

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
