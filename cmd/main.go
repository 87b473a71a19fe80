package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/pai/pkg/assistant"
	"github.com/xhad/pai/pkg/business"
	"github.com/xhad/pai/pkg/cache"
	"github.com/xhad/pai/pkg/chats"
	cfgPkg "github.com/xhad/pai/pkg/config"
	"github.com/xhad/pai/pkg/files"
	"github.com/xhad/pai/pkg/llm"
	"github.com/xhad/pai/pkg/processor"
	"github.com/xhad/pai/pkg/scraper"
	"github.com/xhad/pai/pkg/store"
)

var (
	configPath string
	envFile    string
	debug      bool

	config *cfgPkg.Config
	logger *zap.Logger
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pai",
		Short:         "Personal AI assistant over your documents and business data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			if err := cfgPkg.LoadDotEnv(envFile); err != nil {
				return fmt.Errorf("failed to load env file: %w", err)
			}
			cfg, err := cfgPkg.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if debug {
				cfg.Server.Debug = true
			}
			if errs := cfg.Validate(); len(errs) > 0 {
				msgs := make([]string, len(errs))
				for i, e := range errs {
					msgs[i] = e.Error()
				}
				return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
			}
			config = cfg

			logger, err = newLogger(cfg.Server.Debug)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		serveCmd(),
		ingestCmd(),
		ingestURLCmd(),
		chatCmd(),
		searchCmd(),
		forecastCmd(),
		statsCmd(),
		resetCmd(),
	)
	return root
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// app holds everything a command needs; close releases it in reverse order.
type app struct {
	assistant *assistant.Assistant
	cache     *cache.RedisCache
}

func (a *app) close() {
	if err := a.assistant.Close(); err != nil {
		logger.Warn("failed to close assistant", zap.Error(err))
	}
	a.closeCache()
}

func newApp(ctx context.Context) (*app, error) {
	provider := llm.ProviderConfig{
		Provider:       config.LLM.Provider,
		APIKey:         config.LLM.APIKey,
		BaseURL:        config.LLM.BaseURL,
		Model:          config.LLM.Model,
		EmbeddingModel: config.Embedding.Model,
		Timeout:        config.LLM.Timeout,
	}

	chatEngine, err := llm.NewWithConfig(provider, llm.ChatConfig{
		Model:               config.LLM.Model,
		Temperature:         config.LLM.Temperature,
		MaxTokens:           config.LLM.MaxTokens,
		AnalysisTemperature: config.LLM.AnalysisTemperature,
	}, logger.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	a := &app{}
	var embCache llm.Cache
	var pinger assistant.Pinger
	if config.Cache.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, config.Cache.RedisURL, config.Cache.TTL, logger.Named("cache"))
		if err != nil {
			logger.Warn("embedding cache disabled", zap.Error(err))
		} else {
			a.cache = rc
			embCache = rc
			pinger = rc
		}
	}

	embedder, err := llm.NewEmbedderWithConfig(provider, llm.EmbedderConfig{
		Model:     config.Embedding.Model,
		BatchSize: config.Embedding.BatchSize,
		RateLimit: config.Embedding.RateLimit,
	}, embCache, logger.Named("embedder"))
	if err != nil {
		a.closeCache()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vectorStore, err := store.New(ctx, store.Config{
		Backend:    config.Store.Backend,
		Collection: config.Store.Collection,
		Path:       config.Store.Path,
		QdrantAddr: config.Store.QdrantAddr,
		VectorStoreConfig: store.VectorStoreConfig{
			ConnString: config.Database.URL,
			TableName:  config.Database.TableName,
			VectorDim:  config.Database.VectorDim,
			BatchSize:  config.Database.BatchSize,
		},
	}, logger.Named("store"))
	if err != nil {
		a.closeCache()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	repo, err := chats.Open(ctx, chats.Config{
		Backend:     config.Chats.Backend,
		Path:        config.Chats.Path,
		DatabaseURL: config.Database.URL,
	}, logger.Named("chats"))
	if err != nil {
		vectorStore.Close()
		a.closeCache()
		return nil, fmt.Errorf("failed to open chat store: %w", err)
	}

	fileManager, err := files.New(files.Config{
		UploadFolder:      config.Files.UploadFolder,
		MaxFileSize:       config.Files.MaxFileSize,
		AllowedExtensions: config.Files.AllowedExtensions,
	}, logger.Named("files"))
	if err != nil {
		vectorStore.Close()
		repo.Close()
		a.closeCache()
		return nil, err
	}

	a.assistant, err = assistant.New(assistant.Config{
		ContextLimit:   config.LLM.ContextLimit,
		HistoryLimit:   config.LLM.HistoryLimit,
		EmbedBatchSize: config.Embedding.BatchSize,
		Workers:        config.Embedding.Workers,
	}, assistant.Deps{
		Processor: processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:         config.Processor.ChunkSize,
			ChunkOverlap:      config.Processor.ChunkOverlap,
			Strategy:          config.Processor.Strategy,
			AllowedExtensions: config.Files.AllowedExtensions,
		}, logger.Named("processor")),
		Embedder: embedder,
		Store:    vectorStore,
		Chat:     chatEngine,
		Chats:    chats.NewManager(repo, logger.Named("chats")),
		Business: business.NewAnalyzer(logger.Named("business")),
		Scraper: scraper.NewWithConfig(scraper.ScraperConfig{
			MaxDepth:          config.Scraper.MaxDepth,
			RateLimit:         config.Scraper.RateLimit,
			IgnorePatterns:    config.Scraper.IgnorePatterns,
			AllowedExtensions: config.Scraper.AllowedExtensions,
		}, logger.Named("scraper")),
		Files: fileManager,
		Cache: pinger,
	}, logger.Named("assistant"))
	if err != nil {
		vectorStore.Close()
		repo.Close()
		a.closeCache()
		return nil, err
	}
	return a, nil
}

func (a *app) closeCache() {
	if a.cache != nil {
		a.cache.Close()
	}
}

// withApp builds the app, runs fn, and releases the app afterwards.
func withApp(ctx context.Context, fn func(a *app) error) error {
	start := time.Now()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	logger.Debug("assistant ready", zap.Duration("elapsed", time.Since(start)))
	return fn(a)
}
