// Command ikaris runs the personal research assistant: an HTTP and
// websocket boundary over a sequential conversation engine with
// confidence-gated retrieval, local paper indexing, and note capture.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ikaris-ai/ikaris/internal/agent"
	"github.com/ikaris-ai/ikaris/internal/arxiv"
	"github.com/ikaris-ai/ikaris/internal/checkpoint"
	"github.com/ikaris-ai/ikaris/internal/compress"
	"github.com/ikaris-ai/ikaris/internal/config"
	"github.com/ikaris-ai/ikaris/internal/embeddings"
	"github.com/ikaris-ai/ikaris/internal/llm"
	"github.com/ikaris-ai/ikaris/internal/localindex"
	_ "github.com/ikaris-ai/ikaris/internal/metrics" // register collectors
	"github.com/ikaris-ai/ikaris/internal/notestore"
	"github.com/ikaris-ai/ikaris/internal/pubmed"
	"github.com/ikaris-ai/ikaris/internal/ratecontrol"
	"github.com/ikaris-ai/ikaris/internal/retrieval"
	"github.com/ikaris-ai/ikaris/internal/server"
	"github.com/ikaris-ai/ikaris/internal/session"
	"github.com/ikaris-ai/ikaris/internal/telemetry"
	"github.com/ikaris-ai/ikaris/internal/tracing"
	"github.com/ikaris-ai/ikaris/internal/vectordb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Warn("Tracing init failed, continuing without export", zap.Error(err))
	}

	// Model boundary.
	llmClient := llm.NewOpenAIClient(cfg.LLM, logger)

	// Retrieval stack: embeddings feed the vector index over the local
	// papers directory; PubMed and the note workspace join the fan-out.
	var embCache embeddings.Cache
	if cfg.Session.Enabled {
		if c, err := embeddings.NewRedisCache(cfg.Session.Addr, logger); err == nil {
			embCache = c
		} else {
			logger.Warn("Embeddings Redis cache init failed, LRU only", zap.Error(err))
		}
	}
	embSvc := embeddings.NewService(cfg.Embeddings, embCache)
	vdb := vectordb.NewClient(cfg.VectorDB, logger)
	chunker := embeddings.NewChunker(embeddings.ChunkingConfig{})
	index := localindex.New(vdb, embSvc, chunker, cfg.PapersDir, logger)

	pubmedClient := pubmed.NewClient(cfg.PubMed, logger)
	arxivClient := arxiv.NewClient(cfg.Arxiv, logger)
	workspace := notestore.NewWorkspace(cfg.Notes, logger)

	registry := retrieval.NewRegistry(
		ratecontrol.Throttle(index),
		ratecontrol.Throttle(notestore.NewAdapter(workspace)),
	)
	if cfg.PubMed.Enabled {
		registry.Register(ratecontrol.Throttle(pubmedClient))
	}

	// Persistence and per-thread serialization.
	store, err := checkpoint.NewStore(cfg.Checkpoint, logger)
	if err != nil {
		logger.Fatal("Failed to open checkpoint store", zap.Error(err))
	}
	defer store.Close()

	guard := session.NewGuard(cfg.Session, logger)
	defer guard.Close()

	checkpoints := session.NewCachedStore(store, 64)

	deps := agent.Deps{
		LLM:        llmClient,
		Adapters:   registry,
		Notes:      workspace,
		Telemetry:  telemetry.NewProbe(cfg.Telemetry, logger),
		Papers:     arxivClient,
		Biomedical: pubmedClient,
		Reindex:    index,
		Logger:     logger,
	}
	compressor := compress.New(llmClient, logger)

	// Hot-reload the adapter rate budgets.
	configDir := "./config"
	if p := os.Getenv("IKARIS_CONFIG_PATH"); p != "" {
		configDir = filepath.Dir(p)
	}
	if watcher, err := config.NewWatcher(configDir, logger); err == nil {
		watcher.OnChange("adapters.yaml", func() error {
			ratecontrol.Reload()
			return nil
		})
		if err := watcher.Start(); err != nil {
			logger.Warn("Config watcher start failed", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	} else {
		logger.Warn("Config watcher init failed", zap.Error(err))
	}

	srv := server.New(cfg.Service, deps, compressor, checkpoints, guard, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.GracefulTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Shutdown did not drain cleanly", zap.Error(err))
		}
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
