package main

import (
	"context"
	"fmt"
	"log/slog"

	"pharmasure/internal/config"
	"pharmasure/internal/util"
	"pharmasure/pkg/ai"
	"pharmasure/pkg/kv"
	"pharmasure/pkg/storage"
)

func loadConfig() (config.FileConfig, config.Durations, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.FileConfig{}, config.Durations{}, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.FileConfig{}, config.Durations{}, err
	}
	util.InitLogger(cfg.LogLevel)
	durations, err := cfg.Durations()
	if err != nil {
		return config.FileConfig{}, config.Durations{}, err
	}
	return cfg, durations, nil
}

// openStore returns the configured key-value backend and its closer.
func openStore(cfg config.FileConfig) (kv.Store, func(), error) {
	switch cfg.KVBackend {
	case config.KVRedis:
		s, err := kv.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("init redis kv: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case config.KVPostgres:
		s, err := kv.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres kv: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		slog.Warn("using in-memory kv store; accounts and history are lost on restart")
		return kv.NewMemoryStore(), func() {}, nil
	}
}

type namedGenerator interface {
	ai.ContentGenerator
	Name() string
}

func newContentGenerator(ctx context.Context, cfg config.FileConfig) (ai.ContentGenerator, error) {
	var gen namedGenerator
	switch cfg.GenerationProvider {
	case config.ProviderREST:
		client, err := ai.NewGeminiClientWithBaseURL(cfg.GeminiAPIKey, cfg.GeminiBaseURL)
		if err != nil {
			return nil, err
		}
		gen = ai.NewGeminiGenerator(client, cfg.GenerationModel)
	default:
		client, err := ai.NewGenAIClient(ctx, cfg.GeminiAPIKey, cfg.GenerationModel, cfg.GeminiBaseURL)
		if err != nil {
			return nil, err
		}
		gen = client
	}
	slog.Info("content generator ready", "engine", gen.Name())
	return gen, nil
}

// openArchive returns nil when no object storage is configured.
func openArchive(ctx context.Context, cfg config.FileConfig) (storage.Archive, error) {
	if cfg.MinioEndpoint == "" {
		return nil, nil
	}
	store, err := storage.NewMinioStore(ctx, storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}
