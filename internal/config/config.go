// Package config loads and validates engine configuration from YAML, with
// environment variable overrides for deployment-specific values.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/clearlaw/lexengine/internal/errors"
)

// Config is the complete engine configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage" validate:"required"`
	Vector    VectorConfig    `yaml:"vector"`
	Embed     EmbedConfig     `yaml:"embed"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Cache     CacheConfig     `yaml:"cache"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig points at the corpus object store.
type StorageConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	Region    string        `yaml:"region"`
	Bucket    string        `yaml:"bucket" validate:"required"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	Prefix    string        `yaml:"prefix"`
	Timeout   time.Duration `yaml:"timeout"`

	// LocalIndexPath is the on-disk fallback for the lexical index snapshot.
	LocalIndexPath string `yaml:"local_index_path"`
}

// VectorConfig points at the vector index service. An empty base URL
// disables dense retrieval entirely.
type VectorConfig struct {
	BaseURL    string        `yaml:"base_url" validate:"omitempty,url"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// EmbedConfig points at the embedding service.
type EmbedConfig struct {
	BaseURL    string        `yaml:"base_url" validate:"omitempty,url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions" validate:"omitempty,gt=0"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RerankConfig points at the cross-encoder service. An empty base URL means
// selection always uses fused order.
type RerankConfig struct {
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig configures the semantic result cache.
type CacheConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Path                string        `yaml:"path"`
	TTL                 time.Duration `yaml:"ttl"`
	SimilarityThreshold float64       `yaml:"similarity_threshold" validate:"omitempty,gt=0,lte=1"`
}

// RetrievalConfig tunes ranking parameters.
type RetrievalConfig struct {
	// BM25K1 and BM25B must match the offline index builder's parameters.
	BM25K1 float64 `yaml:"bm25_k1" validate:"omitempty,gt=0"`
	BM25B  float64 `yaml:"bm25_b" validate:"omitempty,gte=0,lte=1"`

	// LexicalWeight and VectorWeight are the fusion weights.
	LexicalWeight float64 `yaml:"lexical_weight" validate:"omitempty,gt=0,lt=1"`
	VectorWeight  float64 `yaml:"vector_weight" validate:"omitempty,gt=0,lt=1"`

	// RRFConstant is the rank fusion smoothing parameter (default: 60).
	RRFConstant int `yaml:"rrf_constant" validate:"omitempty,gt=0"`

	// MaxVariants caps query reformulations per request.
	MaxVariants int `yaml:"max_variants" validate:"omitempty,gt=0,lte=8"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// Default returns the configuration defaults. Anything unset after YAML and
// environment merging falls back to these.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Region:  "af-south-1",
			Timeout: 10 * time.Second,
		},
		Vector: VectorConfig{
			Collection: "legal_chunks",
			Timeout:    5 * time.Second,
		},
		Embed: EmbedConfig{
			Model:      "bge-m3",
			Dimensions: 1024,
			Timeout:    5 * time.Second,
		},
		Rerank: RerankConfig{
			Model:   "bge-reranker-v2-m3",
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:             true,
			TTL:                 time.Hour,
			SimilarityThreshold: 0.95,
		},
		Retrieval: RetrievalConfig{
			BM25K1:        1.2,
			BM25B:         0.75,
			LexicalWeight: 0.4,
			VectorWeight:  0.6,
			RRFConstant:   60,
			MaxVariants:   4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, applies environment overrides, and
// validates. A missing file is fine when path is empty (defaults + env);
// an explicit path that cannot be read is a configuration error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.New(errors.ErrCodeConfigNotFound, "read config file "+path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.New(errors.ErrCodeConfigInvalid, "parse config file "+path, err)
		}
	}

	applyEnv(cfg)
	fillDefaults(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "validate config", err)
	}
	if cfg.Retrieval.LexicalWeight+cfg.Retrieval.VectorWeight > 1.0001 ||
		cfg.Retrieval.LexicalWeight+cfg.Retrieval.VectorWeight < 0.9999 {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "fusion weights must sum to 1.0", nil)
	}
	return cfg, nil
}

// DefaultPath returns the conventional config file location, or "" when the
// home directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".lexengine", "config.yaml")
}

// applyEnv overrides file values with LEXENGINE_* environment variables.
// Only deployment-varying values get env hooks; tuning stays in the file.
func applyEnv(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr("LEXENGINE_S3_ENDPOINT", &cfg.Storage.Endpoint)
	setStr("LEXENGINE_S3_REGION", &cfg.Storage.Region)
	setStr("LEXENGINE_S3_BUCKET", &cfg.Storage.Bucket)
	setStr("LEXENGINE_S3_ACCESS_KEY", &cfg.Storage.AccessKey)
	setStr("LEXENGINE_S3_SECRET_KEY", &cfg.Storage.SecretKey)
	setStr("LEXENGINE_VECTOR_URL", &cfg.Vector.BaseURL)
	setStr("LEXENGINE_EMBED_URL", &cfg.Embed.BaseURL)
	setStr("LEXENGINE_RERANK_URL", &cfg.Rerank.BaseURL)
	setStr("LEXENGINE_LOG_LEVEL", &cfg.Logging.Level)

	if v := os.Getenv("LEXENGINE_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
}

// fillDefaults repairs zero values a partial YAML file may have left behind.
func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.Storage.Timeout <= 0 {
		cfg.Storage.Timeout = def.Storage.Timeout
	}
	if cfg.Vector.Timeout <= 0 {
		cfg.Vector.Timeout = def.Vector.Timeout
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = def.Vector.Collection
	}
	if cfg.Embed.Timeout <= 0 {
		cfg.Embed.Timeout = def.Embed.Timeout
	}
	if cfg.Embed.Dimensions <= 0 {
		cfg.Embed.Dimensions = def.Embed.Dimensions
	}
	if cfg.Rerank.Timeout <= 0 {
		cfg.Rerank.Timeout = def.Rerank.Timeout
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = def.Cache.TTL
	}
	if cfg.Cache.SimilarityThreshold <= 0 {
		cfg.Cache.SimilarityThreshold = def.Cache.SimilarityThreshold
	}
	if cfg.Retrieval.BM25K1 <= 0 {
		cfg.Retrieval.BM25K1 = def.Retrieval.BM25K1
	}
	if cfg.Retrieval.BM25B <= 0 {
		cfg.Retrieval.BM25B = def.Retrieval.BM25B
	}
	if cfg.Retrieval.LexicalWeight <= 0 {
		cfg.Retrieval.LexicalWeight = def.Retrieval.LexicalWeight
	}
	if cfg.Retrieval.VectorWeight <= 0 {
		cfg.Retrieval.VectorWeight = def.Retrieval.VectorWeight
	}
	if cfg.Retrieval.RRFConstant <= 0 {
		cfg.Retrieval.RRFConstant = def.Retrieval.RRFConstant
	}
	if cfg.Retrieval.MaxVariants <= 0 {
		cfg.Retrieval.MaxVariants = def.Retrieval.MaxVariants
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}
