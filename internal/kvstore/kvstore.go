// Package kvstore implements the chunked KV storage backend described in
// SPEC_FULL.md §4.F: bodies at or below the standard chunk size are stored inline in
// their manifest; larger bodies are split into chunk objects with the manifest written
// last, so a reader never observes a manifest whose chunks are incomplete.
package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/livepeer/go-tools/drivers"

	"github.com/livepeer/videogw/config"
	xerrors "github.com/livepeer/videogw/errors"
	"github.com/livepeer/videogw/log"
	"github.com/livepeer/videogw/metrics"
)

// Manifest is the authoritative record of how a cached body was stored, keyed
// identically to the cache key that named it (§3 KV Manifest).
type Manifest struct {
	TotalSize         int64     `json:"totalSize"`
	ContentType       string    `json:"contentType"`
	ChunkCount        int       `json:"chunkCount"`
	StandardChunkSize int64     `json:"standardChunkSize"`
	ActualChunkSizes  []int64   `json:"actualChunkSizes"`
	CacheTags         []string  `json:"cacheTags,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	TTLSeconds        int       `json:"ttlSeconds"`
	Version           int       `json:"version"`
	InlineBody        []byte    `json:"inlineBody,omitempty"`
}

// IsChunked reports whether the body was split across more than one chunk object.
func (m *Manifest) IsChunked() bool {
	return m.ChunkCount > 1
}

// Store is a chunked object store backed by a single go-tools OSSession. One Store
// serves one configured KV namespace/bucket binding.
type Store struct {
	sess   drivers.OSSession
	bucket string
}

// New parses osURL (an s3://, gs://, or file:// driver URL, per go-tools/drivers) and
// opens a session against it.
func New(osURL string) (*Store, error) {
	driver, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return nil, fmt.Errorf("kvstore: parse OS URL %q: %w", log.RedactURL(osURL), err)
	}
	sess := driver.NewSession("")
	var bucket string
	if info := sess.GetInfo(); info != nil && info.S3Info != nil {
		bucket = info.S3Info.Bucket
	}
	return &Store{sess: sess, bucket: bucket}, nil
}

func chunkName(key string, idx int) string {
	return fmt.Sprintf("%s_chunk_%d", key, idx)
}

// GetRaw and PutRaw expose the underlying session directly, bypassing chunking, for
// small fixed-shape records that don't need the manifest/chunk split: the version
// service's "version-<sanitized>" records and the "worker-config" document.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, error) {
	fr, err := s.sess.ReadData(ctx, key)
	if err != nil {
		if errors.Is(err, drivers.ErrNotExist) {
			return nil, xerrors.NewObjectNotFoundError(key, err)
		}
		return nil, err
	}
	defer fr.Body.Close()
	return io.ReadAll(fr.Body)
}

func (s *Store) PutRaw(ctx context.Context, key string, data []byte) error {
	return s.putChunk(ctx, key, data)
}

// Put splits r's totalSize bytes into config.StandardChunkSize pieces (or stores the
// body inline in the manifest when it fits in one chunk), writes each chunk with
// retry, then writes the manifest last.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, totalSize int64, contentType string, ttlSeconds, version int, cacheTags []string) (*Manifest, error) {
	if totalSize > config.MaxCacheableBodySize {
		return nil, xerrors.NewCacheError(xerrors.ChunkSizeMismatch, fmt.Sprintf("body of %d bytes exceeds max cacheable size", totalSize), nil)
	}

	standardChunkSize := config.StandardChunkSize
	start := time.Now()

	manifest := &Manifest{
		TotalSize:         totalSize,
		ContentType:       contentType,
		StandardChunkSize: standardChunkSize,
		CacheTags:         cacheTags,
		CreatedAt:         config.Clock.GetTime(),
		TTLSeconds:        ttlSeconds,
		Version:           version,
	}

	if totalSize <= standardChunkSize {
		body, err := io.ReadAll(io.LimitReader(r, totalSize))
		if err != nil {
			return nil, fmt.Errorf("kvstore: reading inline body for %q: %w", key, err)
		}
		manifest.ChunkCount = 1
		manifest.ActualChunkSizes = []int64{int64(len(body))}
		manifest.InlineBody = body
		if err := s.putManifest(ctx, key, manifest); err != nil {
			return nil, err
		}
		metrics.Metrics.KVStore.WriteDuration.WithLabelValues(s.bucket).Observe(time.Since(start).Seconds())
		return manifest, nil
	}

	chunkCount := int(totalSize / standardChunkSize)
	if totalSize%standardChunkSize != 0 {
		chunkCount++
	}
	actualChunkSizes := make([]int64, 0, chunkCount)

	buf := make([]byte, standardChunkSize)
	for idx := 0; idx < chunkCount; idx++ {
		n, err := io.ReadFull(r, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, fmt.Errorf("kvstore: reading chunk %d of %q: %w", idx, key, err)
		}
		chunk := buf[:n]
		if err := s.putChunk(ctx, chunkName(key, idx), chunk); err != nil {
			metrics.Metrics.KVStore.WriteFailures.WithLabelValues(s.bucket).Inc()
			return nil, fmt.Errorf("kvstore: writing chunk %d of %q: %w", idx, key, err)
		}
		actualChunkSizes = append(actualChunkSizes, int64(n))
	}

	var sum int64
	for _, n := range actualChunkSizes {
		sum += n
	}
	if sum != totalSize {
		return nil, xerrors.NewCacheError(xerrors.ChunkSizeMismatch, fmt.Sprintf("wrote %d bytes, expected %d for %q", sum, totalSize, key), nil)
	}

	manifest.ChunkCount = chunkCount
	manifest.ActualChunkSizes = actualChunkSizes
	if err := s.putManifest(ctx, key, manifest); err != nil {
		return nil, err
	}

	metrics.Metrics.KVStore.WriteDuration.WithLabelValues(s.bucket).Observe(time.Since(start).Seconds())
	metrics.Metrics.KVStore.ChunkCount.WithLabelValues(s.bucket).Observe(float64(chunkCount))
	return manifest, nil
}

func (s *Store) putManifest(ctx context.Context, key string, manifest *Manifest) error {
	raw, err := json.Marshal(manifest)
	if err != nil {
		return xerrors.NewCacheError(xerrors.ManifestParseError, "encoding manifest", err)
	}
	if err := s.putChunk(ctx, key, raw); err != nil {
		metrics.Metrics.KVStore.WriteFailures.WithLabelValues(s.bucket).Inc()
		return fmt.Errorf("kvstore: writing manifest for %q: %w", key, err)
	}
	return nil
}

// putChunk retries a single object write on any error not marked unretriable, per
// §4.F's 100ms/200ms/400ms backoff capped at 1s and at most 3 retries. Errors are not
// inspected further, so a non-transient storage error is retried like a transient one.
func (s *Store) putChunk(ctx context.Context, name string, data []byte) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.KVWriteInitialDelay
	b.Multiplier = config.KVWriteBackoffFactor
	b.MaxInterval = config.KVWriteMaxDelay
	b.MaxElapsedTime = 0
	retrier := backoff.WithMaxRetries(b, config.KVWriteMaxRetries)

	return backoff.Retry(func() error {
		_, err := s.sess.SaveData(ctx, name, bytes.NewReader(data), nil, 30*time.Second)
		if err != nil && xerrors.IsUnretriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, retrier)
}

// GetManifest reads and validates the manifest for key without fetching any
// out-of-line chunk data.
func (s *Store) GetManifest(ctx context.Context, key string) (*Manifest, error) {
	fr, err := s.sess.ReadData(ctx, key)
	if err != nil {
		if errors.Is(err, drivers.ErrNotExist) {
			return nil, xerrors.NewObjectNotFoundError(key, err)
		}
		return nil, fmt.Errorf("kvstore: reading manifest for %q: %w", key, err)
	}
	defer fr.Body.Close()

	var manifest Manifest
	if err := json.NewDecoder(fr.Body).Decode(&manifest); err != nil {
		return nil, xerrors.NewCacheError(xerrors.ManifestParseError, fmt.Sprintf("decoding manifest for %q", key), err)
	}
	if manifest.ChunkCount <= 0 || int64(len(manifest.ActualChunkSizes)) != int64(manifest.ChunkCount) {
		return nil, xerrors.NewCacheError(xerrors.ChunkSizeMismatch, fmt.Sprintf("manifest for %q has invalid chunk layout", key), nil)
	}
	var sum int64
	for _, n := range manifest.ActualChunkSizes {
		sum += n
	}
	if sum != manifest.TotalSize {
		return nil, xerrors.NewCacheError(xerrors.ChunkSizeMismatch, fmt.Sprintf("manifest for %q chunk sizes sum to %d, want %d", key, sum, manifest.TotalSize), nil)
	}
	return &manifest, nil
}

// Get returns the full body for key as a sequential reader over its chunks (or its
// inline body), along with its manifest.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, *Manifest, error) {
	start := time.Now()
	manifest, err := s.GetManifest(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	metrics.Metrics.KVStore.ReadDuration.WithLabelValues(s.bucket).Observe(time.Since(start).Seconds())

	if !manifest.IsChunked() && manifest.InlineBody != nil {
		return io.NopCloser(bytes.NewReader(manifest.InlineBody)), manifest, nil
	}
	return &chunkReader{ctx: ctx, store: s, key: key, manifest: manifest}, manifest, nil
}

// GetRange returns the [start,end] (inclusive) byte window of key, reading only the
// chunks that overlap the requested range.
func (s *Store) GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, *Manifest, error) {
	manifest, err := s.GetManifest(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if end >= manifest.TotalSize {
		end = manifest.TotalSize - 1
	}
	if start < 0 || start > end {
		return nil, nil, xerrors.NewCacheError(xerrors.ChunkSizeMismatch, fmt.Sprintf("invalid range [%d,%d] for %q", start, end, key), nil)
	}

	if !manifest.IsChunked() && manifest.InlineBody != nil {
		return io.NopCloser(bytes.NewReader(manifest.InlineBody[start : end+1])), manifest, nil
	}

	cr := &chunkReader{ctx: ctx, store: s, key: key, manifest: manifest, rangeStart: start, rangeEnd: end, ranged: true}
	cr.idx = int(start / manifest.StandardChunkSize)
	return cr, manifest, nil
}

// chunkReader lazily fetches successive out-of-line chunks, presenting them as one
// contiguous io.Reader; verifies each chunk's length against the manifest as it reads
// (§3 KV Chunk invariant, §8 property 2).
type chunkReader struct {
	ctx      context.Context
	store    *Store
	key      string
	manifest *Manifest

	idx     int
	current io.ReadCloser

	ranged     bool
	rangeStart int64
	rangeEnd   int64
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for {
		if c.current == nil {
			if c.idx >= c.manifest.ChunkCount {
				return 0, io.EOF
			}
			if c.ranged {
				chunkStart := int64(c.idx) * c.manifest.StandardChunkSize
				if chunkStart > c.rangeEnd {
					return 0, io.EOF
				}
			}
			rc, err := c.fetchChunk(c.idx)
			if err != nil {
				return 0, fmt.Errorf("kvstore: reading chunk %d of %q: %w", c.idx, c.key, err)
			}
			c.current = rc
			c.idx++
		}

		n, err := c.current.Read(p)
		if c.ranged && n > 0 {
			n = c.clampRanged(p, n)
		}
		if err == io.EOF {
			_ = c.current.Close()
			c.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			return n, err
		}
		return n, nil
	}
}

// clampRanged compacts p[:n], just read from the chunk the reader advanced past, down
// to only the bytes that fall inside [rangeStart, rangeEnd].
func (c *chunkReader) clampRanged(p []byte, n int) int {
	chunkStart := int64(c.idx-1) * c.manifest.StandardChunkSize
	kept := 0
	for i := 0; i < n; i++ {
		abs := chunkStart + int64(i)
		if abs >= c.rangeStart && abs <= c.rangeEnd {
			p[kept] = p[i]
			kept++
		}
	}
	return kept
}

func (c *chunkReader) fetchChunk(idx int) (io.ReadCloser, error) {
	fr, err := c.store.sess.ReadData(c.ctx, chunkName(c.key, idx))
	if err != nil {
		return nil, err
	}
	want := c.manifest.ActualChunkSizes[idx]
	if fr.Size != nil && *fr.Size != want {
		_ = fr.Body.Close()
		return nil, xerrors.NewCacheError(xerrors.ChunkSizeMismatch, fmt.Sprintf("chunk %d of %q is %d bytes, manifest says %d", idx, c.key, *fr.Size, want), nil)
	}
	return fr.Body, nil
}

func (c *chunkReader) Close() error {
	if c.current != nil {
		return c.current.Close()
	}
	return nil
}
