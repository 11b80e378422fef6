package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sedar-analyst/internal/domain"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// GeminiEmbedderConfig configures Google Generative AI embeddings.
type GeminiEmbedderConfig struct {
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// HashingEmbedderConfig configures the local hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// CacheConfig enables a Redis embedding cache when Addr is set.
type CacheConfig struct {
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
	TTLSecs int    `yaml:"ttl_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                `yaml:"type"`
	OpenAI  OpenAIEmbedderConfig  `yaml:"openai"`
	Gemini  GeminiEmbedderConfig  `yaml:"gemini"`
	Hashing HashingEmbedderConfig `yaml:"hashing"`
	Cache   CacheConfig           `yaml:"cache"`
}

// OpenAILLMConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAILLMConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxTokens   int    `yaml:"max_tokens"`
	MaxRetries  int    `yaml:"max_retries"`
}

// GeminiLLMConfig configures the Gemini completer.
type GeminiLLMConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// LLMConfig selects the language model used by the retriever and the agent.
type LLMConfig struct {
	Type   string          `yaml:"type"`
	OpenAI OpenAILLMConfig `yaml:"openai"`
	Gemini GeminiLLMConfig `yaml:"gemini"`
}

// ChunkerConfig configures how documents are split into chunks. Sizes are in runes.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
	// Tokenizer is "tiktoken" or "estimate".
	Tokenizer      string `yaml:"tokenizer"`
	TokenizerModel string `yaml:"tokenizer_model"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string       `yaml:"type"`
	Collection string       `yaml:"collection"`
	SQLite     SQLiteConfig `yaml:"sqlite"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
}

// SQLiteConfig points at the database file holding persistent collections.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// YahooConfig configures the Yahoo Finance chart endpoint.
type YahooConfig struct {
	BaseURL           string  `yaml:"base_url"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// MarketConfig selects the market-data provider.
type MarketConfig struct {
	Type  string      `yaml:"type"`
	Yahoo YahooConfig `yaml:"yahoo"`
}

// AgentConfig bounds the reasoning loop.
type AgentConfig struct {
	MaxIterations int `yaml:"max_iterations"`
	// QueryTimeoutSecs bounds one whole query; 0 disables the bound.
	QueryTimeoutSecs int `yaml:"query_timeout_secs"`
}

// RetrieverConfig controls passage retrieval for the filing tool.
type RetrieverConfig struct {
	TopK             int `yaml:"top_k"`
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// IngestConfig controls the offline ingestion pipeline.
type IngestConfig struct {
	DocumentsDir    string `yaml:"documents_dir"`
	Concurrency     int    `yaml:"concurrency"`
	LockTimeoutSecs int    `yaml:"lock_timeout_secs"`
}

// ServerConfig configures the HTTP query endpoint.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DataDir     string            `yaml:"data_dir"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Market      MarketConfig      `yaml:"market"`
	Agent       AgentConfig       `yaml:"agent"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Server      ServerConfig      `yaml:"server"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Log         LogConfig         `yaml:"log"`
}

// LoadEnv loads a .env file from the working directory if one exists.
// Variables already set in the environment win.
func LoadEnv() {
	_ = godotenv.Load()
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Fields missing from the file keep their default values.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/sedar-analyst/config.yaml.
// If neither exists, it writes defaults to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sedar-analyst", "config.yaml"), nil
}

// Default uses Nebius-hosted embeddings and Llama 3.1,
// a persistent "sedar_filings" collection and Yahoo Finance prices.
func Default() *AppConfig {
	return &AppConfig{
		DataDir: "data",
		Chunker: ChunkerConfig{ChunkSize: 1024, Overlap: 20, Tokenizer: "tiktoken", TokenizerModel: "gpt-4"},
		Embedder: EmbedderConfig{
			Type: "openai",
			OpenAI: OpenAIEmbedderConfig{
				BaseURL:     "https://api.studio.nebius.com/v1",
				APIKeyEnv:   "NEBIUS_API_KEY",
				Model:       "BAAI/bge-en-icl",
				TimeoutSecs: 30,
			},
			Gemini:  GeminiEmbedderConfig{APIKeyEnv: "GEMINI_API_KEY", Model: "text-embedding-004"},
			Hashing: HashingEmbedderConfig{Dimension: 512},
			Cache:   CacheConfig{TTLSecs: 7 * 24 * 3600},
		},
		LLM: LLMConfig{
			Type: "openai",
			OpenAI: OpenAILLMConfig{
				BaseURL:     "https://api.studio.nebius.com/v1",
				APIKeyEnv:   "NEBIUS_API_KEY",
				Model:       "meta-llama/Meta-Llama-3.1-8B-Instruct",
				TimeoutSecs: 60,
				MaxTokens:   1024,
				MaxRetries:  2,
			},
			Gemini: GeminiLLMConfig{APIKeyEnv: "GEMINI_API_KEY", Model: "gemini-2.0-flash", MaxTokens: 1024},
		},
		VectorStore: VectorStoreConfig{
			Type:       "sqlite",
			Collection: "sedar_filings",
			Qdrant:     QdrantConfig{URL: "http://localhost:6333", TimeoutSecs: 30},
		},
		Market:     MarketConfig{Type: "yahoo", Yahoo: YahooConfig{BaseURL: "https://query1.finance.yahoo.com", TimeoutSecs: 10, RequestsPerSecond: 2}},
		Agent:      AgentConfig{MaxIterations: 10, QueryTimeoutSecs: 180},
		Retriever:  RetrieverConfig{TopK: 5, MaxContextTokens: 3000},
		Ingest:     IngestConfig{DocumentsDir: "documents", Concurrency: 4, LockTimeoutSecs: 10},
		Server:     ServerConfig{Addr: ":8000"},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Log:        LogConfig{Level: "info", Format: "console"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	d := Default()
	if cfg.DataDir == "" {
		cfg.DataDir = d.DataDir
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = d.Chunker.ChunkSize
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = d.VectorStore.Collection
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = d.Agent.MaxIterations
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = d.Retriever.TopK
	}
	if cfg.Ingest.Concurrency <= 0 {
		cfg.Ingest.Concurrency = 1
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = d.Summarizer.MaxSentences
	}
}

// SQLitePath is the database file for the sqlite vector store.
func (c *AppConfig) SQLitePath() string {
	if c.VectorStore.SQLite.Path != "" {
		return c.VectorStore.SQLite.Path
	}
	return filepath.Join(c.DataDir, "index.db")
}

// ValidateIngest checks what the ingestion pipeline needs: chunking
// parameters, the embedder and the vector store.
func (c *AppConfig) ValidateIngest() error {
	return wrapConfig(c.ingestProblems())
}

func (c *AppConfig) ingestProblems() []error {
	var errs []error
	if c.Chunker.ChunkSize <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker: need 0 <= overlap (%d) < chunk_size (%d)", c.Chunker.Overlap, c.Chunker.ChunkSize))
	}
	switch c.Embedder.Type {
	case "hashing":
	case "openai":
		errs = append(errs, requireEnv("embedder.openai", c.Embedder.OpenAI.APIKeyEnv))
	case "gemini":
		errs = append(errs, requireEnv("embedder.gemini", c.Embedder.Gemini.APIKeyEnv))
	default:
		errs = append(errs, fmt.Errorf("unknown embedder: %q", c.Embedder.Type))
	}
	switch c.VectorStore.Type {
	case "memory", "sqlite":
	case "qdrant":
		if c.VectorStore.Qdrant.URL == "" {
			errs = append(errs, errors.New("vector_store.qdrant: url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector store: %q", c.VectorStore.Type))
	}
	return errs
}

// Validate checks everything a query needs on top of ValidateIngest.
// Missing credentials for a selected remote backend are reported here so the
// process can abort at startup.
func (c *AppConfig) Validate() error {
	errs := c.ingestProblems()
	switch c.LLM.Type {
	case "openai":
		errs = append(errs, requireEnv("llm.openai", c.LLM.OpenAI.APIKeyEnv))
	case "gemini":
		errs = append(errs, requireEnv("llm.gemini", c.LLM.Gemini.APIKeyEnv))
	default:
		errs = append(errs, fmt.Errorf("unknown llm: %q", c.LLM.Type))
	}
	if c.Market.Type != "yahoo" {
		errs = append(errs, fmt.Errorf("unknown market data provider: %q", c.Market.Type))
	}
	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("agent: max_iterations must be positive, got %d", c.Agent.MaxIterations))
	}
	return wrapConfig(errs)
}

func requireEnv(section, name string) error {
	if name == "" {
		return fmt.Errorf("%s: api_key_env is empty", section)
	}
	if os.Getenv(name) == "" {
		return fmt.Errorf("%s: environment variable %s is not set", section, name)
	}
	return nil
}

func wrapConfig(errs []error) error {
	if err := errors.Join(errs...); err != nil {
		return domain.E("config", domain.ErrConfig, err)
	}
	return nil
}
