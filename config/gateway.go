package config

import (
	"encoding/json"
	"fmt"
)

// GatewayConfig is the already-parsed, validated configuration value the core consumes.
// Producing it — reading the JSON document from durable KV on cold start, and the
// authenticated admin-upload endpoint that writes it — is an external collaborator;
// this package only defines the shape and the pure parse/validate/convert step.
type GatewayConfig struct {
	Origins []OriginConfig `json:"origins"`
	Cache   CacheConfig    `json:"cache"`
	Video   VideoConfig    `json:"video"`
	Debug   DebugConfig    `json:"debug"`

	// BucketBindings maps a SourceConfig.BucketBinding name to the go-tools/drivers
	// object-storage URL (s3://, gs://, file://) it resolves to at runtime, so an
	// origin's "bucket" sources can be declared by name without embedding credentials
	// in the document itself.
	BucketBindings map[string]string `json:"bucketBindings,omitempty"`
}

type OriginConfig struct {
	Name              string                 `json:"name"`
	Matcher           string                 `json:"matcher"`
	CaptureGroups     []string               `json:"captureGroups,omitempty"`
	Sources           []SourceConfig         `json:"sources"`
	TTL               TTLConfig              `json:"ttl,omitempty"`
	TransformDefaults map[string]interface{} `json:"transformDefaults,omitempty"`
}

type SourceConfig struct {
	Type           string `json:"type"` // bucket | remote | fallback
	Priority       int    `json:"priority"`
	PathTemplate   string `json:"path,omitempty"`
	URL            string `json:"url,omitempty"`
	BucketBinding  string `json:"bucketBinding,omitempty"`
	AuthType       string `json:"auth,omitempty"`
}

type TTLConfig struct {
	OK          int `json:"ok,omitempty"`
	Redirects   int `json:"redirects,omitempty"`
	ClientError int `json:"clientError,omitempty"`
	ServerError int `json:"serverError,omitempty"`
}

type CacheConfig struct {
	Method          string         `json:"method,omitempty"`
	DefaultMaxAge   int            `json:"defaultMaxAge,omitempty"`
	EnableCacheTags bool           `json:"enableCacheTags,omitempty"`
	CacheTagPrefix  string         `json:"cacheTagPrefix,omitempty"`
	EnableKVCache   bool           `json:"enableKVCache,omitempty"`
	StoreIndefinite bool           `json:"storeIndefinitely,omitempty"`
	Fallback        FallbackConfig `json:"fallback,omitempty"`
}

type FallbackConfig struct {
	Enabled         bool     `json:"enabled,omitempty"`
	BadRequestOnly  bool     `json:"badRequestOnly,omitempty"`
	PreserveHeaders []string `json:"preserveHeaders,omitempty"`
}

type VideoConfig struct {
	Defaults    map[string]interface{}            `json:"defaults,omitempty"`
	ValidValues map[string][]string               `json:"validOptions,omitempty"`
	Derivatives map[string]map[string]interface{} `json:"derivatives,omitempty"`
}

type DebugConfig struct {
	Enabled            bool `json:"enabled,omitempty"`
	Verbose            bool `json:"verbose,omitempty"`
	IncludeHeaders     bool `json:"includeHeaders,omitempty"`
	IncludePerformance bool `json:"includePerformance,omitempty"`
}

// ConfigSource is the external collaborator that produces configuration bytes from
// durable storage on cold start. The core depends only on this seam; a concrete
// implementation (e.g. reading the "worker-config" KV key) lives outside this package.
type ConfigSource interface {
	Load() ([]byte, error)
}

// legacyDocument mirrors the deprecated pathPatterns/pathTransforms/storage keys that
// older configuration documents may still carry.
type legacyDocument struct {
	PathPatterns  map[string]string      `json:"pathPatterns,omitempty"`
	PathTransform map[string]string      `json:"pathTransforms,omitempty"`
	Storage       map[string]interface{} `json:"storage,omitempty"`
}

// FromJSON parses a configuration document, converting the legacy pathPatterns /
// pathTransforms / storage keys into origins when the modern "origins" key is absent.
func FromJSON(raw []byte) (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse gateway config: %w", err)
	}
	if len(cfg.Origins) == 0 {
		var legacy legacyDocument
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, fmt.Errorf("parse legacy gateway config: %w", err)
		}
		cfg.Origins = convertLegacy(legacy)
	}
	if cfg.Cache.Fallback.Enabled && len(cfg.Cache.Fallback.PreserveHeaders) == 0 {
		cfg.Cache.Fallback.PreserveHeaders = []string{"Content-Type", "Content-Length"}
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// convertLegacy builds origins with semantics identical to the modern document: each
// legacy pattern becomes a single-source remote origin templated on its transform.
func convertLegacy(legacy legacyDocument) []OriginConfig {
	origins := make([]OriginConfig, 0, len(legacy.PathPatterns))
	for name, pattern := range legacy.PathPatterns {
		tmpl := legacy.PathTransform[name]
		if tmpl == "" {
			tmpl = "$1"
		}
		baseURL, _ := legacy.Storage[name].(string)
		origins = append(origins, OriginConfig{
			Name:    name,
			Matcher: pattern,
			Sources: []SourceConfig{
				{Type: "remote", Priority: 0, PathTemplate: tmpl, URL: baseURL},
			},
		})
	}
	return origins
}

// Validate rejects a configuration document that cannot possibly serve a request:
// every origin must carry at least one source, and every source type must be a
// recognized one.
func Validate(cfg *GatewayConfig) error {
	for _, o := range cfg.Origins {
		if o.Name == "" {
			return fmt.Errorf("config: origin missing name")
		}
		if o.Matcher == "" {
			return fmt.Errorf("config: origin %q missing matcher", o.Name)
		}
		if len(o.Sources) == 0 {
			return fmt.Errorf("config: origin %q has no sources", o.Name)
		}
		for _, s := range o.Sources {
			switch s.Type {
			case "bucket", "remote", "fallback":
			default:
				return fmt.Errorf("config: origin %q source has unsupported type %q", o.Name, s.Type)
			}
		}
	}
	return nil
}
