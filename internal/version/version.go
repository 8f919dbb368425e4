// Package version implements the cache version service of SPEC_FULL.md §4.I: a
// separate KV namespace mapping a sanitized cache key to its current version number.
package version

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/livepeer/videogw/config"
)

// record is the metadata stored in the version namespace at key "version-<sanitized>".
type record struct {
	Version int `json:"version"`
}

// KV is the minimal durable-store seam the version service needs; kvstore.Store
// satisfies a superset of it, but the service only needs raw get/put of small values,
// so it depends on this narrower interface instead of the whole store.
type KV interface {
	GetRaw(ctx context.Context, key string) ([]byte, error)
	PutRaw(ctx context.Context, key string, data []byte) error
}

// Service computes the next version number for a cache key per §4.I's monotonicity
// policy, backed by durable KV and fronted by an in-process go-cache layer (teacher's
// patrickmn/go-cache pattern, reused here instead of per-request-ID loggers).
type Service struct {
	kv    KV
	local *cache.Cache
	mu    sync.Mutex
}

func NewService(kv KV) *Service {
	return &Service{
		kv:    kv,
		local: cache.New(config.InFlightTTL, config.InFlightTTL),
	}
}

func namespaceKey(key string) string {
	if len(key) <= config.VersionKeyMaxLen {
		return "version-" + key
	}
	sum := sha256.Sum256([]byte(key))
	return "version-" + hex.EncodeToString(sum[:])
}

// Next returns the version number a miss on key should be stored and served under.
// Per §4.I: returns 1 when no prior record exists; when a record exists, increments
// if version > 1, or if version == 1 and forceIncrement is true.
func (s *Service) Next(ctx context.Context, key string, forceIncrement bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nsKey := namespaceKey(key)

	if cached, ok := s.local.Get(nsKey); ok {
		return s.advance(ctx, nsKey, cached.(int), forceIncrement)
	}

	raw, err := s.kv.GetRaw(ctx, nsKey)
	if err != nil {
		return s.commit(ctx, nsKey, 1)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return s.commit(ctx, nsKey, 1)
	}
	return s.advance(ctx, nsKey, rec.Version, forceIncrement)
}

func (s *Service) advance(ctx context.Context, nsKey string, current int, forceIncrement bool) (int, error) {
	next := current
	if current > 1 || (current == 1 && forceIncrement) {
		next = current + 1
	}
	if next < 1 {
		next = 1
	}
	return s.commit(ctx, nsKey, next)
}

func (s *Service) commit(ctx context.Context, nsKey string, version int) (int, error) {
	raw, err := json.Marshal(record{Version: version})
	if err != nil {
		return 0, fmt.Errorf("version: encoding record for %q: %w", nsKey, err)
	}
	if err := s.kv.PutRaw(ctx, nsKey, raw); err != nil {
		return 0, fmt.Errorf("version: storing record for %q: %w", nsKey, err)
	}
	s.local.Set(nsKey, version, cache.DefaultExpiration)
	return version, nil
}
