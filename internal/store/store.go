// Package store persists activity records in a remote version-controlled
// content store using optimistic concurrency.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/nycsbus/sitetrack/internal/domain"
	"github.com/nycsbus/sitetrack/internal/observability"
)

var (
	// ErrConflict indicates the supplied version token no longer matches the
	// remote record. The caller must discard its copy, re-read, and retry the
	// whole operation; the store never merges or retries on its own.
	ErrConflict = errors.New("version token conflict")
	// ErrTransport wraps network or authorization failures talking to the
	// remote store. No partial write is assumed to have occurred.
	ErrTransport = errors.New("remote store unavailable")
)

// RemoteClient is the injected content-store capability. Get returns
// found=false for a missing object; Put with an empty token creates the
// object and otherwise requires the token from the most recent read or write.
type RemoteClient interface {
	Get(ctx context.Context, path string) (content []byte, token string, found bool, err error)
	Put(ctx context.Context, path string, content []byte, token string) (newToken string, err error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Record pairs an activity with the version token of the revision it was
// read from.
type Record struct {
	Path     string
	Activity domain.Activity
	Token    string
}

// Store reads and writes activity records with a bounded-lifetime read cache
// in front of the remote. The cache is invalidated for every path written
// through this store, so readers within the TTL window never observe content
// older than the store's own last write.
type Store struct {
	remote RemoteClient
	cache  *ristretto.Cache
	ttl    time.Duration
}

// Option configures optional Store behaviour.
type Option func(*Store)

// WithCacheTTL overrides the read-cache lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New constructs a Store around the remote capability.
func New(remote RemoteClient, opts ...Option) (*Store, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}

	s := &Store{
		remote: remote,
		cache:  cache,
		ttl:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Read fetches the record at path. A missing remote object is not an error:
// it returns (nil, nil) and the caller decides what a miss means.
func (s *Store) Read(ctx context.Context, path string) (*Record, error) {
	if cached, ok := s.cache.Get(path); ok {
		observability.RecordCacheLookup(true)
		rec := cached.(Record)
		return &rec, nil
	}
	observability.RecordCacheLookup(false)

	content, token, found, err := s.remote.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrTransport, path, err)
	}
	if !found {
		return nil, nil
	}

	act, err := DecodeActivity(content)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	rec := Record{Path: path, Activity: act, Token: token}
	s.put(path, rec)
	return &rec, nil
}

// Write persists the activity at path. An empty token means creation; callers
// creating records must use a collision-resistant path. On success the cache
// entry for the path is replaced with the just-written revision and the new
// token is returned.
func (s *Store) Write(ctx context.Context, path string, act domain.Activity, token string) (string, error) {
	content, err := EncodeActivity(act)
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	newToken, err := s.remote.Put(ctx, path, content, token)
	if err != nil {
		// A stale write must never leave the stale revision cached.
		s.cache.Del(path)
		s.cache.Wait()
		if errors.Is(err, ErrConflict) {
			observability.RecordStoreConflict()
			return "", fmt.Errorf("%w: %s", ErrConflict, path)
		}
		return "", fmt.Errorf("%w: put %s: %v", ErrTransport, path, err)
	}

	s.put(path, Record{Path: path, Activity: act, Token: newToken})
	return newToken, nil
}

// ReadAll returns every record under prefix, newest first by creation time.
func (s *Store) ReadAll(ctx context.Context, prefix string) ([]Record, error) {
	paths, err := s.remote.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrTransport, prefix, err)
	}

	records := make([]Record, 0, len(paths))
	for _, path := range paths {
		rec, err := s.Read(ctx, path)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			// Deleted between list and read; skip.
			continue
		}
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Activity.CreatedAt.After(records[j].Activity.CreatedAt)
	})
	return records, nil
}

// put stores a cache entry and waits for it to be applied, so a read issued
// immediately after a write observes the written revision.
func (s *Store) put(path string, rec Record) {
	s.cache.Del(path)
	s.cache.SetWithTTL(path, rec, 1, s.ttl)
	s.cache.Wait()
}
