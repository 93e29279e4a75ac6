package main

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/nexuslabs/nexus-go/config"
	"github.com/nexuslabs/nexus-go/engine"
	"github.com/nexuslabs/nexus-go/episodic"
	"github.com/nexuslabs/nexus-go/learning"
	"github.com/nexuslabs/nexus-go/llm"
	"github.com/nexuslabs/nexus-go/llm/anthropic"
	"github.com/nexuslabs/nexus-go/llm/openai"
	"github.com/nexuslabs/nexus-go/logging"
	"github.com/nexuslabs/nexus-go/memory"
	"github.com/nexuslabs/nexus-go/memory/embedder/cached"
	"github.com/nexuslabs/nexus-go/memory/embedder/mock"
	"github.com/nexuslabs/nexus-go/memory/embedder/remote"
	"github.com/nexuslabs/nexus-go/memory/store/chromem"
	"github.com/nexuslabs/nexus-go/persist"
	"github.com/nexuslabs/nexus-go/tools"
)

// app is a fully wired agent plus the resources to release on exit.
type app struct {
	engine  *engine.Engine
	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// newGateway creates the model gateway selected by cfg.LLM.Provider.
func newGateway(cfg *config.Config) (llm.Gateway, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:      cfg.LLM.AnthropicAPIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: llm.Float(cfg.LLM.Temperature),
			BaseURL:     cfg.LLM.BaseURL,
			MaxRetries:  cfg.LLM.MaxRetries,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey:      cfg.LLM.OpenAIAPIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: llm.Float(cfg.LLM.Temperature),
			BaseURL:     cfg.LLM.BaseURL,
		})
	default:
		return nil, errors.Errorf("unknown llm provider: %s", cfg.LLM.Provider)
	}
}

// newRegistry returns the built-in tools with the configured capabilities granted.
func newRegistry(cfg *config.Config) *tools.Registry {
	registry := tools.NewRegistry(tools.Builtins(tools.BuiltinConfig{
		WorkspaceDir: cfg.Tools.WorkspaceDir,
		MaxFileBytes: cfg.Tools.MaxFileBytes,
	})...)
	for _, c := range cfg.Tools.Capabilities {
		registry.Grant(tools.Capability(c))
	}
	return registry
}

// newApp wires storage, memory, learning and tools around gateway.
func newApp(ctx context.Context, cfg *config.Config, gateway llm.Gateway) (_ *app, err error) {
	log := logging.For("bootstrap")
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// Document stores
	patterns, skills, episodes, err := a.documentStores(cfg)
	if err != nil {
		return nil, err
	}

	// Semantic memory
	embedder, err := a.embedder(cfg)
	if err != nil {
		return nil, err
	}
	storeOpts := []chromem.Option{chromem.WithCollection(cfg.Memory.Collection)}
	if cfg.Memory.PersistDir != "" {
		storeOpts = append(storeOpts, chromem.WithPersistence(cfg.Memory.PersistDir, false))
	}
	vectors, err := chromem.New(storeOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "open vector store")
	}
	a.closers = append(a.closers, vectors.Close)
	mem := memory.NewSimpleManager(vectors, embedder, &memory.Config{
		Enabled:       true,
		MinSimilarity: cfg.Memory.MinSimilarity,
	})

	episodeLog, err := episodic.New(ctx, episodes)
	if err != nil {
		return nil, err
	}
	learner, err := learning.New(ctx, patterns, skills)
	if err != nil {
		return nil, err
	}

	if cfg.Tools.WorkspaceDir != "" {
		if err := os.MkdirAll(cfg.Tools.WorkspaceDir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create workspace")
		}
	}

	opts := []engine.Option{
		engine.WithMemory(mem),
		engine.WithEpisodes(episodeLog),
		engine.WithLearning(learner),
		engine.WithRetrieval(cfg.Agent.MemoryResults, cfg.Agent.RecentEpisodes),
		engine.WithParallelTools(cfg.Agent.ParallelTools),
	}
	if cfg.Agent.HistoryLimit > 0 {
		opts = append(opts, engine.WithHistoryLimit(cfg.Agent.HistoryLimit))
	}
	if cfg.Agent.SystemPrompt != "" {
		opts = append(opts, engine.WithSystemPrompt(cfg.Agent.SystemPrompt))
	}
	eng, err := engine.New(ctx, gateway, newRegistry(cfg), opts...)
	if err != nil {
		return nil, err
	}
	a.engine = eng

	log.Info().
		Str("provider", cfg.LLM.Provider).
		Str("embedder", cfg.Memory.Embedder).
		Str("storage", cfg.Storage.Backend).
		Int("episodes", episodeLog.Count()).
		Msg("agent ready")
	return a, nil
}

func (a *app) documentStores(cfg *config.Config) (patterns, skills, episodes persist.Store, err error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := persist.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		return db.Document("patterns"), db.Document("skills"), db.Document("episodes"), nil
	case "file", "":
		stores := make([]persist.Store, 3)
		for i, name := range []string{"patterns", "skills", "episodes"} {
			fs, err := persist.NewFileStore(cfg.DocumentPath(name))
			if err != nil {
				return nil, nil, nil, err
			}
			stores[i] = fs
		}
		return stores[0], stores[1], stores[2], nil
	default:
		return nil, nil, nil, errors.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

func (a *app) embedder(cfg *config.Config) (memory.Embedder, error) {
	var e memory.Embedder
	switch cfg.Memory.Embedder {
	case "mock", "":
		e = mock.New()
	case "openai":
		e = remote.NewOpenAI(cfg.LLM.OpenAIAPIKey, cfg.Memory.EmbeddingModel)
	case "ollama":
		e = remote.NewOllama(cfg.Memory.EmbeddingModel, cfg.Memory.OllamaURL)
	default:
		return nil, errors.Errorf("unknown embedder: %s", cfg.Memory.Embedder)
	}

	if cfg.Memory.CacheSize > 0 {
		c, err := cached.New(e, cfg.Memory.CacheSize)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			c.Close()
			return nil
		})
		e = c
	}
	return e, nil
}
