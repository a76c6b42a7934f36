package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/clearlaw/lexengine/internal/cache"
	"github.com/clearlaw/lexengine/internal/config"
	"github.com/clearlaw/lexengine/internal/embed"
	"github.com/clearlaw/lexengine/internal/expand"
	"github.com/clearlaw/lexengine/internal/fusion"
	"github.com/clearlaw/lexengine/internal/lexical"
	"github.com/clearlaw/lexengine/internal/pipeline"
	"github.com/clearlaw/lexengine/internal/query"
	"github.com/clearlaw/lexengine/internal/rerank"
	"github.com/clearlaw/lexengine/internal/storage"
	"github.com/clearlaw/lexengine/internal/vector"
)

func setDefaultLogger(logger *slog.Logger) {
	slog.SetDefault(logger)
}

// app holds the wired pipeline and everything that needs shutdown.
type app struct {
	engine  *pipeline.Engine
	store   storage.ObjectStore
	lexical *lexical.Provider
	vector  *vector.Provider
	rerankc *rerank.Client
	cache   *cache.SemanticCache
	kv      *cache.KVStore
	sweeper *cache.Sweeper
}

func (a *app) close() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.kv != nil {
		_ = a.kv.Close()
	}
}

// buildApp wires the retrieval pipeline from configuration. Optional
// services that are not configured are left nil; the engine degrades
// around them.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := storage.NewS3Store(ctx, storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Prefix:    cfg.Storage.Prefix,
		Timeout:   cfg.Storage.Timeout,
	})
	if err != nil {
		return nil, err
	}

	resolver := query.NewAliasResolver(&query.StorageCatalog{Store: store}, query.DefaultAliasTTL, logger)
	processor := query.NewProcessor(resolver, logger, query.WithMaxVariants(cfg.Retrieval.MaxVariants))

	lexProvider := lexical.NewProvider(store, lexical.Config{
		K1:        cfg.Retrieval.BM25K1,
		B:         cfg.Retrieval.BM25B,
		LocalPath: cfg.Storage.LocalIndexPath,
	}, logger)

	var embedder embed.Embedder
	if cfg.Embed.BaseURL != "" {
		client, err := embed.NewClient(embed.Config{
			BaseURL:    cfg.Embed.BaseURL,
			Model:      cfg.Embed.Model,
			Dimensions: cfg.Embed.Dimensions,
			Timeout:    cfg.Embed.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		embedder = client
	}

	var vecProvider *vector.Provider
	if cfg.Vector.BaseURL != "" && embedder != nil {
		vecClient, err := vector.NewClient(vector.Config{
			BaseURL:    cfg.Vector.BaseURL,
			Collection: cfg.Vector.Collection,
			Timeout:    cfg.Vector.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		vecProvider = vector.NewProvider(vecClient, embedder, logger)
	}

	var scorer rerank.Scorer
	var rerankClient *rerank.Client
	if cfg.Rerank.BaseURL != "" {
		rerankClient, err = rerank.NewClient(rerank.Config{
			BaseURL: cfg.Rerank.BaseURL,
			Model:   cfg.Rerank.Model,
			Timeout: cfg.Rerank.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		scorer = rerankClient
	}

	a := &app{
		store:   store,
		lexical: lexProvider,
		vector:  vecProvider,
		rerankc: rerankClient,
	}

	if cfg.Cache.Enabled {
		kv, err := cache.OpenKV(cachePath(cfg), logger)
		if err != nil {
			logger.Warn("cache unavailable, running uncached", slog.String("error", err.Error()))
		} else {
			a.kv = kv
			a.cache = cache.NewSemanticCache(kv, embedder, cache.Config{
				TTL:                 cfg.Cache.TTL,
				SimilarityThreshold: cfg.Cache.SimilarityThreshold,
			}, logger)
			a.sweeper = cache.NewSweeper(a.cache, logger)
			if err := a.sweeper.Start(); err != nil {
				logger.Warn("cache sweeper failed to start", slog.String("error", err.Error()))
				a.sweeper = nil
			}
		}
	}

	fuser := fusion.NewFuser(cfg.Retrieval.RRFConstant, fusion.Weights{
		Lexical: cfg.Retrieval.LexicalWeight,
		Vector:  cfg.Retrieval.VectorWeight,
	})

	a.engine = pipeline.NewEngine(
		processor,
		lexProvider,
		vecProvider,
		fuser,
		rerank.NewReranker(scorer, logger),
		expand.NewExpander(store, logger),
		a.cache,
		logger,
	)
	return a, nil
}

func cachePath(cfg *config.Config) string {
	if cfg.Cache.Path != "" {
		return cfg.Cache.Path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "" // in-memory
	}
	return filepath.Join(home, ".lexengine", "cache")
}
