package config

import "time"

var Version string

// Used so that we can generate fixed timestamps in tests.
var Clock TimestampGenerator = RealTimestampGenerator{}

// StandardChunkSize is the size, in bytes, at which a stored body is split into
// multiple KV chunks. Not universally fixed across deployments — treated as a single
// named tunable, recomputed deterministically per write. A var (not a const) so tests
// can shrink it to exercise the multi-chunk path without allocating real multi-MiB
// bodies.
var StandardChunkSize int64 = 20 * 1024 * 1024 // 20 MiB

// MaxCacheableBodySize is the safety cap beyond which a write to the KV store is
// skipped entirely rather than chunked.
const MaxCacheableBodySize = 128 * 1024 * 1024 // 128 MiB

// BufferedPutThreshold is the size below which a single buffered Put is used
// instead of the streaming chunked write path.
const BufferedPutThreshold = 40 * 1024 * 1024 // 40 MiB

// In-flight coalescer bounds (§5 shared-resource policy).
const (
	MaxInFlightEntries  = 1000
	InFlightTTL         = 5 * time.Minute
	MaxConcurrentOrigin = 100
	MaxCoalescedLogs    = 500
)

// KV write retry policy (§4.F).
const (
	KVWriteMaxRetries    = 3
	KVWriteInitialDelay  = 100 * time.Millisecond
	KVWriteBackoffFactor = 2
	KVWriteMaxDelay      = 1 * time.Second
)

// DefaultMaxAge is used when an origin does not specify its own TTL map.
const DefaultMaxAge = 300

// VersionKeyMaxLen is the KV-namespace key length beyond which a version key is
// hashed/truncated deterministically (§4.I).
const VersionKeyMaxLen = 512
