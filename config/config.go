// Package config loads the Nexus configuration from an optional YAML file
// and the environment.
package config

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Agent   AgentConfig   `mapstructure:"agent"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Memory  MemoryConfig  `mapstructure:"memory"`
	Storage StorageConfig `mapstructure:"storage"`
	Tools   ToolsConfig   `mapstructure:"tools"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

// AgentConfig tunes the orchestrator
type AgentConfig struct {
	SystemPrompt   string `mapstructure:"system_prompt"` // must contain one %s for the skill summary; empty uses the default
	MemoryResults  int    `mapstructure:"memory_results"`
	RecentEpisodes int    `mapstructure:"recent_episodes"`
	HistoryLimit   int    `mapstructure:"history_limit"`
	ParallelTools  int    `mapstructure:"parallel_tools"`
}

// LLMConfig selects and configures the model provider
type LLMConfig struct {
	Provider        string  `mapstructure:"provider"` // anthropic, openai
	Model           string  `mapstructure:"model"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key"`
	BaseURL         string  `mapstructure:"base_url"`
	MaxRetries      int     `mapstructure:"max_retries"`
}

// MemoryConfig configures semantic memory
type MemoryConfig struct {
	Collection     string  `mapstructure:"collection"`
	PersistDir     string  `mapstructure:"persist_dir"` // empty keeps vectors in memory only
	Embedder       string  `mapstructure:"embedder"`    // mock, openai, ollama
	EmbeddingModel string  `mapstructure:"embedding_model"`
	OllamaURL      string  `mapstructure:"ollama_url"`
	CacheSize      int64   `mapstructure:"cache_size"` // 0 disables the embedding cache
	MinSimilarity  float64 `mapstructure:"min_similarity"`
}

// StorageConfig selects where patterns, skills and episodes are saved
type StorageConfig struct {
	Backend    string `mapstructure:"backend"` // file, sqlite
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// ToolsConfig configures the built-in tools
type ToolsConfig struct {
	WorkspaceDir string   `mapstructure:"workspace_dir"`
	Capabilities []string `mapstructure:"capabilities"`
	MaxFileBytes int64    `mapstructure:"max_file_bytes"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	RateLimit      float64  `mapstructure:"rate_limit"` // requests per second per client, 0 disables
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DefaultConfig returns a new configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			MemoryResults:  3,
			RecentEpisodes: 5,
			HistoryLimit:   6,
			ParallelTools:  8,
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   4096,
			Temperature: 0.7,
			MaxRetries:  2,
		},
		Memory: MemoryConfig{
			PersistDir: "./data/vector_db",
			Collection: "nexus_memory",
			Embedder:   "mock",
			OllamaURL:  "http://localhost:11434/api",
			CacheSize:  4096,
		},
		Storage: StorageConfig{
			Backend:    "file",
			DataDir:    "./data",
			SQLitePath: "./data/nexus.db",
		},
		Tools: ToolsConfig{
			WorkspaceDir: "./workspace",
			Capabilities: []string{"fs.read", "fs.write"},
			MaxFileBytes: 1 << 20,
		},
		Server: ServerConfig{
			Addr:           ":8000",
			RateLimit:      10,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from file and environment variables.
// An empty configPath searches ./nexus.yaml and $HOME/.config/nexus.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// NEXUS_LLM_PROVIDER -> llm.provider
	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider keys under their conventional names
	_ = v.BindEnv("llm.anthropic_api_key", "NEXUS_LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.openai_api_key", "NEXUS_LLM_OPENAI_API_KEY", "OPENAI_API_KEY")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("nexus")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/nexus")
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// Validate checks the settings needed to run the agent.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for the openai provider")
		}
	default:
		return errors.Errorf("invalid llm provider: %s (must be anthropic or openai)", c.LLM.Provider)
	}

	switch c.Memory.Embedder {
	case "mock", "ollama":
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for the openai embedder")
		}
	default:
		return errors.Errorf("invalid embedder: %s (must be mock, openai or ollama)", c.Memory.Embedder)
	}

	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return errors.Errorf("invalid storage backend: %s (must be file or sqlite)", c.Storage.Backend)
	}

	if c.Agent.SystemPrompt != "" && strings.Count(c.Agent.SystemPrompt, "%s") != 1 {
		return errors.New("agent system_prompt must contain exactly one %s")
	}
	if c.Agent.HistoryLimit < 0 || c.Agent.ParallelTools < 0 {
		return errors.New("agent history_limit and parallel_tools must not be negative")
	}

	if c.Server.RateLimit < 0 {
		return errors.New("server rate_limit must not be negative")
	}
	return nil
}

// DocumentPath returns the file used for a named document by the file backend.
func (c *Config) DocumentPath(name string) string {
	return filepath.Join(c.Storage.DataDir, name+".json")
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("agent.memory_results", d.Agent.MemoryResults)
	v.SetDefault("agent.recent_episodes", d.Agent.RecentEpisodes)
	v.SetDefault("agent.history_limit", d.Agent.HistoryLimit)
	v.SetDefault("agent.parallel_tools", d.Agent.ParallelTools)
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)
	v.SetDefault("memory.persist_dir", d.Memory.PersistDir)
	v.SetDefault("memory.collection", d.Memory.Collection)
	v.SetDefault("memory.embedder", d.Memory.Embedder)
	v.SetDefault("memory.embedding_model", "")
	v.SetDefault("memory.ollama_url", d.Memory.OllamaURL)
	v.SetDefault("memory.cache_size", d.Memory.CacheSize)
	v.SetDefault("memory.min_similarity", d.Memory.MinSimilarity)
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("tools.workspace_dir", d.Tools.WorkspaceDir)
	v.SetDefault("tools.capabilities", d.Tools.Capabilities)
	v.SetDefault("tools.max_file_bytes", d.Tools.MaxFileBytes)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
}
