package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ragroute/ragroute/agent"
	"github.com/ragroute/ragroute/api"
	"github.com/ragroute/ragroute/auth"
	"github.com/ragroute/ragroute/cache"
	"github.com/ragroute/ragroute/common/httpx"
	"github.com/ragroute/ragroute/common/logger"
	"github.com/ragroute/ragroute/config"
	"github.com/ragroute/ragroute/embedding"
	"github.com/ragroute/ragroute/evaluator"
	"github.com/ragroute/ragroute/llm"
	"github.com/ragroute/ragroute/retrieval"
	"github.com/ragroute/ragroute/search"
	"github.com/ragroute/ragroute/vectordb"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml configuration file")
	flag.Parse()

	// .env is optional; secrets may come from the real environment.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	applyEnvOverrides(cfg)

	logger.Init(cfg.Server.LogLevel, cfg.Server.DevLog)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	bundle, err := buildServices(ctx, cfg)
	cancel()
	if err != nil {
		logger.Errorf("startup: %v", err)
		os.Exit(1)
	}
	defer bundle.store.Close()

	server := api.NewServer(cfg.Server, bundle.agent, bundle.registry)

	go func() {
		logger.Infof("listening on %s", cfg.Server.Listen)
		if err := server.Listen(); err != nil {
			logger.Errorf("server stopped: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Infof("shutting down")
	if err := server.Shutdown(); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
}

type services struct {
	agent    *agent.Agent
	registry *auth.Registry
	store    vectordb.Provider
}

// buildServices constructs the caller-owned service bundle: every backend
// client is created once here and injected downward.
func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	httpClient := httpx.NewFromConfig(&cfg.HTTPClient)

	embedder, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	gen, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	searcher, err := search.NewProvider(cfg.Search, httpClient)
	if err != nil {
		return nil, err
	}
	store, err := vectordb.NewProvider(ctx, cfg.VectorDB, httpClient, embedder)
	if err != nil {
		return nil, err
	}

	if err := store.EnsureCollection(ctx, cfg.DocumentsCollection(), embedder.Dimensions()); err != nil {
		return nil, err
	}

	var semantic *cache.SemanticCache
	if cfg.Cache.Enabled {
		semantic = cache.NewSemanticCache(store, embedder, cfg.CacheCollection(), cfg.Cache)
		if err := semantic.Initialize(ctx); err != nil {
			return nil, err
		}
	}
	var l1 *cache.ResultCache
	if cfg.Cache.L1.Enabled {
		l1 = cache.NewResultCache(cfg.Cache.L1.Capacity, time.Duration(cfg.Cache.L1.TTLSeconds)*time.Second)
	}

	svc := retrieval.NewService(store, embedder, gen, searcher,
		cfg.DocumentsCollection(), cfg.Cache.RemoteInference, cfg.Retrieval)

	ag := agent.New(agent.Options{
		Semantic:  semantic,
		L1:        l1,
		L1TTL:     time.Duration(cfg.Cache.L1.TTLSeconds) * time.Second,
		Retrieval: svc,
		Evaluator: evaluator.New(gen, cfg.Scorer),
		Config:    cfg.Agent,
	})

	return &services{
		agent:    ag,
		registry: auth.NewRegistry(cfg.Auth),
		store:    store,
	}, nil
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("SEARCH_API_KEY"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := os.Getenv("VECTORDB_API_KEY"); v != "" {
		cfg.VectorDB.APIKey = v
	}
}
