package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/oceanbase/agentmem-go/pkg/embedder"
	"github.com/oceanbase/agentmem-go/pkg/embedder/hash"
	openaiEmbedder "github.com/oceanbase/agentmem-go/pkg/embedder/openai"
	"github.com/oceanbase/agentmem-go/pkg/llm"
	openaiLLM "github.com/oceanbase/agentmem-go/pkg/llm/openai"
	"github.com/oceanbase/agentmem-go/pkg/storage"
	chromemStore "github.com/oceanbase/agentmem-go/pkg/storage/chromem"
	"github.com/oceanbase/agentmem-go/pkg/storage/inmemory"
	"github.com/oceanbase/agentmem-go/pkg/storage/oceanbase"
	postgresStore "github.com/oceanbase/agentmem-go/pkg/storage/postgres"
	redisStore "github.com/oceanbase/agentmem-go/pkg/storage/redis"
	sqliteStore "github.com/oceanbase/agentmem-go/pkg/storage/sqlite"
)

// Config contains the complete configuration for an agent memory client.
//
// Example:
//
//	config := &core.Config{
//	    Durable: core.DurableConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./agentmem.db",
//	        },
//	    },
//	    Embedder: core.EmbedderConfig{Provider: "hash"},
//	}
type Config struct {
	// Semantic configures the optional vector tier.
	Semantic SemanticConfig `json:"semantic" yaml:"semantic"`

	// Durable configures the persistent tier.
	Durable DurableConfig `json:"durable" yaml:"durable"`

	// Embedder feeds the semantic tier.
	Embedder EmbedderConfig `json:"embedder" yaml:"embedder"`

	// LLM configures the text generation provider used by agents.
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Cache configures the terminal in-process tier.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// TierTimeout bounds each tier call. JSON takes nanoseconds, YAML takes
	// duration strings such as "2s".
	TierTimeout time.Duration `json:"tier_timeout,omitempty" yaml:"tier_timeout,omitempty" validate:"gte=0"`

	// Retention is the expiry hint attached to new entries.
	Retention time.Duration `json:"retention,omitempty" yaml:"retention,omitempty" validate:"gte=0"`

	// VocabularyPath optionally overrides the style analyzer word lists.
	VocabularyPath string `json:"vocabulary_path,omitempty" yaml:"vocabulary_path,omitempty"`
}

// SemanticConfig contains configuration for the chromem tier.
type SemanticConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// PersistPath enables on-disk persistence when set.
	PersistPath string `json:"persist_path,omitempty" yaml:"persist_path,omitempty"`
	Compress    bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

// DurableConfig contains configuration for the durable tier.
//
// Supported providers: sqlite, postgres, oceanbase, mysql (alias of
// oceanbase), redis, none.
//
// Example:
//
//	durable := core.DurableConfig{
//	    Provider: "postgres",
//	    Config: map[string]interface{}{
//	        "host":     "localhost",
//	        "port":     5432,
//	        "user":     "postgres",
//	        "password": "secret",
//	        "db_name":  "agentmem",
//	    },
//	}
type DurableConfig struct {
	Provider string `json:"provider" yaml:"provider" validate:"omitempty,oneof=sqlite postgres oceanbase mysql redis none"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path, table_name
	// For OceanBase/MySQL: host, port, user, password, db_name, table_name
	// For PostgreSQL: host, port, user, password, db_name, table_name, ssl_mode
	// For Redis: addr, password, db, key_prefix
	Config map[string]interface{} `json:"config" yaml:"config"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: hash (offline, default), openai.
type EmbedderConfig struct {
	Provider   string `json:"provider" yaml:"provider" validate:"omitempty,oneof=hash openai"`
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty" validate:"gte=0"`
}

// LLMConfig contains configuration for the LLM provider.
//
// Any OpenAI-compatible endpoint is supported through BaseURL.
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider" validate:"omitempty,oneof=openai"`
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"gte=0,lte=2"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"gte=0"`
}

// CacheConfig contains configuration for the in-process tier.
type CacheConfig struct {
	// MaxEntriesPerAgent defaults to 1000.
	MaxEntriesPerAgent int `json:"max_entries_per_agent,omitempty" yaml:"max_entries_per_agent,omitempty" validate:"gte=0"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DURABLE_PROVIDER (sqlite, postgres, oceanbase, mysql, redis, none)
//   - SQLITE_PATH, SQLITE_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - OCEANBASE_HOST, OCEANBASE_PORT, OCEANBASE_USER, OCEANBASE_PASSWORD, OCEANBASE_DATABASE
//   - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB
//   - SEMANTIC_ENABLED, SEMANTIC_PERSIST_PATH
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL, EMBEDDING_DIMS
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - TIER_TIMEOUT, MEMORY_RETENTION (Go durations), MEMORY_CACHE_SIZE
//   - VOCABULARY_PATH
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DURABLE_PROVIDER", "sqlite")

	durableConfig := make(map[string]interface{})
	switch provider {
	case "oceanbase", "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("OCEANBASE_PORT", "2881"))
		durableConfig = map[string]interface{}{
			"host":       getEnvOrDefault("OCEANBASE_HOST", "127.0.0.1"),
			"port":       port,
			"user":       getEnvOrDefault("OCEANBASE_USER", "root@sys"),
			"password":   os.Getenv("OCEANBASE_PASSWORD"),
			"db_name":    getEnvOrDefault("OCEANBASE_DATABASE", "agentmem"),
			"table_name": getEnvOrDefault("OCEANBASE_TABLE", "agent_memories"),
		}
	case "sqlite":
		durableConfig = map[string]interface{}{
			"db_path":    getEnvOrDefault("SQLITE_PATH", "./agentmem.db"),
			"table_name": getEnvOrDefault("SQLITE_TABLE", "agent_memories"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		durableConfig = map[string]interface{}{
			"host":       getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":       port,
			"user":       getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password":   os.Getenv("POSTGRES_PASSWORD"),
			"db_name":    getEnvOrDefault("POSTGRES_DATABASE", "agentmem"),
			"table_name": getEnvOrDefault("POSTGRES_TABLE", "agent_memories"),
			"ssl_mode":   getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "redis":
		db, _ := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
		durableConfig = map[string]interface{}{
			"addr":       getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			"password":   os.Getenv("REDIS_PASSWORD"),
			"db":         db,
			"key_prefix": getEnvOrDefault("REDIS_KEY_PREFIX", "agentmem"),
		}
	}

	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMS", "0"))
	cacheSize, _ := strconv.Atoi(getEnvOrDefault("MEMORY_CACHE_SIZE", "0"))

	tierTimeout, err := parseDurationEnv("TIER_TIMEOUT", DefaultTierTimeout)
	if err != nil {
		return nil, err
	}
	retention, err := parseDurationEnv("MEMORY_RETENTION", DefaultRetention)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Semantic: SemanticConfig{
			Enabled:     os.Getenv("SEMANTIC_ENABLED") == "true",
			PersistPath: os.Getenv("SEMANTIC_PERSIST_PATH"),
		},
		Durable: DurableConfig{
			Provider: provider,
			Config:   durableConfig,
		},
		Embedder: EmbedderConfig{
			Provider:   getEnvOrDefault("EMBEDDING_PROVIDER", "hash"),
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      os.Getenv("EMBEDDING_MODEL"),
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: dims,
		},
		LLM: LLMConfig{
			Provider: getEnvOrDefault("LLM_PROVIDER", "openai"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
		},
		Cache:          CacheConfig{MaxEntriesPerAgent: cacheSize},
		TierTimeout:    tierTimeout,
		Retention:      retention,
		VocabularyPath: os.Getenv("VOCABULARY_PATH"),
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// LoadConfigFromYAML loads configuration from a YAML file.
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", err)
	}

	return &config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			return NewMemoryError("Validate", fmt.Errorf("%w: %s", ErrInvalidConfig, toValidationError(fieldErrs[0]).Error()))
		}
		return NewMemoryError("Validate", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	if c.Semantic.Enabled && c.Embedder.Provider == "openai" && c.Embedder.APIKey == "" {
		return NewMemoryError("Validate", fmt.Errorf("%w: embedder api_key is required", ErrInvalidConfig))
	}
	return nil
}

// NewClientFromConfig builds every configured tier and returns a Client.
//
// A tier that cannot be reached at startup is logged at warn level, counted
// under the "connect" operation and left out of the chain, so the client
// still serves from the remaining tiers. Only configuration errors fail.
//
// Args:
//   - cfg: complete configuration, validated first
//   - opts: client options applied after the ones derived from cfg
//
// Returns:
//   - *Client: client over every reachable tier plus the in-process tier
//   - error: when cfg is invalid
//
// Example:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, err := core.NewClientFromConfig(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
func NewClientFromConfig(cfg *Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, NewMemoryError("NewClientFromConfig", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.Logger.With().Str("component", "memory_store").Logger()

	var (
		clientOpts  []ClientOption
		backends    []storage.Backend
		unavailable []tierFailure
	)
	if cfg.Semantic.Enabled {
		emb, err := initEmbedder(cfg.Embedder)
		if err != nil {
			return nil, err
		}
		semantic, err := chromemStore.NewClient(&chromemStore.Config{
			PersistPath: cfg.Semantic.PersistPath,
			Compress:    cfg.Semantic.Compress,
			Embedder:    emb,
			Logger:      &logger,
		})
		if err != nil {
			_ = emb.Close()
			unavailable = append(unavailable, tierFailure{tier: "chromem", err: err})
		} else {
			backends = append(backends, semantic)
			clientOpts = append(clientOpts, WithSemanticTier(semantic))
		}
	}

	durable, err := initStorage(cfg.Durable, &logger)
	switch {
	case errors.Is(err, ErrInvalidConfig):
		closeBackends(backends)
		return nil, err
	case err != nil:
		unavailable = append(unavailable, tierFailure{tier: cfg.Durable.Provider, err: err})
	case durable != nil:
		backends = append(backends, durable)
		clientOpts = append(clientOpts, WithDurableTier(durable))
	}

	clientOpts = append(clientOpts, WithTierTimeout(cfg.TierTimeout))
	if cfg.Retention > 0 {
		clientOpts = append(clientOpts, WithRetention(cfg.Retention))
	}
	clientOpts = append(clientOpts, opts...)

	terminal := inmemory.NewStore(&inmemory.Config{MaxEntriesPerAgent: cfg.Cache.MaxEntriesPerAgent})
	client, err := NewClient(terminal, clientOpts...)
	if err != nil {
		closeBackends(backends)
		return nil, err
	}
	for _, f := range unavailable {
		client.skipTier(f.tier, f.err)
	}
	return client, nil
}

// tierFailure is a tier that could not be reached while building a client.
type tierFailure struct {
	tier string
	err  error
}

func closeBackends(backends []storage.Backend) {
	for _, b := range backends {
		_ = b.Close()
	}
}

// initStorage initializes the durable tier; nil means none configured.
func initStorage(cfg DurableConfig, logger *zerolog.Logger) (storage.Backend, error) {
	var (
		backend storage.Backend
		err     error
	)
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "oceanbase", "mysql":
		backend, err = oceanbase.NewClient(&oceanbase.Config{
			Host:      configString(cfg.Config, "host", "127.0.0.1"),
			Port:      configInt(cfg.Config, "port", 2881),
			User:      configString(cfg.Config, "user", "root@sys"),
			Password:  configString(cfg.Config, "password", ""),
			DBName:    configString(cfg.Config, "db_name", "agentmem"),
			TableName: configString(cfg.Config, "table_name", ""),
			Logger:    logger,
		})
	case "sqlite":
		backend, err = sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:    configString(cfg.Config, "db_path", "./agentmem.db"),
			TableName: configString(cfg.Config, "table_name", ""),
			Logger:    logger,
		})
	case "postgres":
		backend, err = postgresStore.NewClient(&postgresStore.Config{
			Host:      configString(cfg.Config, "host", "localhost"),
			Port:      configInt(cfg.Config, "port", 5432),
			User:      configString(cfg.Config, "user", "postgres"),
			Password:  configString(cfg.Config, "password", ""),
			DBName:    configString(cfg.Config, "db_name", "agentmem"),
			TableName: configString(cfg.Config, "table_name", ""),
			SSLMode:   configString(cfg.Config, "ssl_mode", "disable"),
			Logger:    logger,
		})
	case "redis":
		backend, err = redisStore.NewClient(&redisStore.Config{
			Addr:      configString(cfg.Config, "addr", "localhost:6379"),
			Password:  configString(cfg.Config, "password", ""),
			DB:        configInt(cfg.Config, "db", 0),
			KeyPrefix: configString(cfg.Config, "key_prefix", ""),
			Logger:    logger,
		})
	default:
		return nil, NewMemoryError("initStorage", ErrInvalidConfig)
	}
	if err != nil {
		return nil, NewMemoryError("initStorage", err)
	}
	return backend, nil
}

// initEmbedder initializes the embedder provider.
func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "", "hash":
		return hash.New(cfg.Dimensions), nil
	case "openai":
		client, err := openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, NewMemoryError("initEmbedder", err)
		}
		return client, nil
	default:
		return nil, NewMemoryError("initEmbedder", ErrInvalidConfig)
	}
}

// NewLLM initializes the language model provider agents answer with.
func NewLLM(cfg LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		client, err := openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, NewMemoryError("NewLLM", err)
		}
		return client, nil
	default:
		return nil, NewMemoryError("NewLLM", ErrInvalidConfig)
	}
}

// configString reads a string option, tolerating missing keys.
func configString(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}

// configInt reads an integer option decoded as int, float64 (JSON) or string.
func configInt(m map[string]interface{}, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, NewMemoryError("LoadConfigFromEnv", fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err))
	}
	return d, nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
