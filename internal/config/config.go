// Package config loads and validates the zotra configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/zotra/config.yaml)
//  3. Project config (zotra.yaml in the working directory)
//  4. Environment variables (ZOTRA_* plus secrets)
//
// Secrets (ZOTERO_ID, ZOTERO_API_KEY, GEMINI_API_KEY) are never read from
// YAML; they come from the environment, with a .env file honored if present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ChunkingStrategy selects how markdown is split into chunks.
type ChunkingStrategy string

const (
	// StrategyMarkdownRecursive is header-aware line splitting with
	// recursive splitting of oversize lines.
	StrategyMarkdownRecursive ChunkingStrategy = "markdown+recursive"
	// StrategySemantic is reserved for embedding-driven boundaries.
	// Accepted in config but not implemented.
	StrategySemantic ChunkingStrategy = "semantic"
)

// Config represents the complete zotra configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Library    LibraryConfig    `yaml:"library" json:"library"`
	Markdown   MarkdownConfig   `yaml:"markdown" json:"markdown"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Chat       ChatConfig       `yaml:"chat" json:"chat"`
	Research   ResearchConfig   `yaml:"research" json:"research"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// LibraryConfig configures access to the Zotero library.
type LibraryConfig struct {
	// UserID is the Zotero user id. Populated from ZOTERO_ID.
	UserID string `yaml:"-" json:"-"`
	// APIKey is the Zotero web API key. Populated from ZOTERO_API_KEY.
	APIKey string `yaml:"-" json:"-"`
	// BaseURL is the Zotero web API endpoint. Override for testing.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Root is the local Zotero data directory containing storage/.
	Root string `yaml:"root" json:"root"`
}

// MarkdownConfig configures PDF-to-markdown conversion output.
type MarkdownConfig struct {
	// Root is the directory where converted markdown is written,
	// one subdirectory per storage key.
	Root string `yaml:"root" json:"root"`
	// SkipExisting reuses an existing markdown file instead of
	// re-running the converter.
	SkipExisting bool `yaml:"skip_existing" json:"skip_existing"`
	// ConverterCommand is the external PDF-to-markdown command.
	// It is invoked as: <command> <pdf-path> <output-path>.
	ConverterCommand string `yaml:"converter_command" json:"converter_command"`
	// ConverterArgs are extra arguments placed before the paths.
	ConverterArgs []string `yaml:"converter_args" json:"converter_args"`
}

// ChunkingConfig configures how markdown documents are split.
type ChunkingConfig struct {
	ChunkSize    int              `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int              `yaml:"chunk_overlap" json:"chunk_overlap"`
	Strategy     ChunkingStrategy `yaml:"strategy" json:"strategy"`
}

// VectorConfig configures the vector index backend.
type VectorConfig struct {
	// StorageRoot is the directory for local index files.
	StorageRoot string `yaml:"storage_root" json:"storage_root"`
	// CollectionName is the base collection name. The full collection
	// identity also carries the embedding api and model.
	CollectionName string `yaml:"collection_name" json:"collection_name"`
	// Backend selects the index implementation: "local" or "qdrant".
	Backend string `yaml:"backend" json:"backend"`
	// QdrantAddr is the qdrant gRPC address (host:port).
	QdrantAddr string `yaml:"qdrant_addr" json:"qdrant_addr"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// API selects the backend: "local" (Ollama) or "remote" (Gemini).
	API string `yaml:"api" json:"api"`
	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`
	// OllamaHost is the Ollama endpoint (default http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// BatchSize is texts per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the LRU embedding cache capacity (0 disables).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// GeminiAPIKey is populated from GEMINI_API_KEY.
	GeminiAPIKey string `yaml:"-" json:"-"`
}

// ChatConfig configures the chat model used by the research loop.
type ChatConfig struct {
	// API selects the backend: "local" (Ollama) or "remote" (Gemini).
	API string `yaml:"api" json:"api"`
	// Model is the chat model name.
	Model string `yaml:"model" json:"model"`
	// Temperature is the sampling temperature.
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

// ResearchConfig configures the iterative research loop.
type ResearchConfig struct {
	// MaxSearchDepth is the maximum number of search rounds.
	MaxSearchDepth int `yaml:"max_search_depth" json:"max_search_depth"`
	// MaxDocsPerSearch is the per-round cap on new chunks.
	MaxDocsPerSearch int `yaml:"max_docs_per_search" json:"max_docs_per_search"`
	// KDocuments is the default result count for direct searches.
	KDocuments int `yaml:"k_documents" json:"k_documents"`
	// RelevanceThreshold drops results with distance above it.
	RelevanceThreshold float64 `yaml:"relevance_threshold" json:"relevance_threshold"`
	// ExcludeReferences drops chunks under a references heading.
	ExcludeReferences bool `yaml:"exclude_references" json:"exclude_references"`
}

// ServerConfig configures logging and the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Library: LibraryConfig{
			BaseURL: "https://api.zotero.org",
			Root:    defaultLibraryRoot(),
		},
		Markdown: MarkdownConfig{
			Root:             filepath.Join(defaultDataDir(), "markdown"),
			SkipExisting:     true,
			ConverterCommand: "marker_single",
		},
		Chunking: ChunkingConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			Strategy:     StrategyMarkdownRecursive,
		},
		Vector: VectorConfig{
			StorageRoot:    filepath.Join(defaultDataDir(), "index"),
			CollectionName: "zotero",
			Backend:        "local",
			QdrantAddr:     "localhost:6334",
		},
		Embeddings: EmbeddingsConfig{
			API:        "local",
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			BatchSize:  32,
			CacheSize:  4096,
		},
		Chat: ChatConfig{
			API:         "local",
			Model:       "qwen3:8b",
			Temperature: 0.2,
		},
		Research: ResearchConfig{
			MaxSearchDepth:     5,
			MaxDocsPerSearch:   10,
			KDocuments:         4,
			RelevanceThreshold: 1.5,
			ExcludeReferences:  false,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// defaultDataDir returns the zotra data directory (~/.zotra).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".zotra")
	}
	return filepath.Join(home, ".zotra")
}

// defaultLibraryRoot returns the default Zotero data directory.
func defaultLibraryRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Zotero")
}

// GetUserConfigPath returns the path to the user configuration file,
// following the XDG Base Directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "zotra", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "zotra", "config.yaml")
	}
	return filepath.Join(home, ".config", "zotra", "config.yaml")
}

// Load loads configuration for the given working directory.
func Load(dir string) (*Config, error) {
	// A .env next to the project config is honored, quietly.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from zotra.yaml or zotra.yml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{"zotra.yaml", "zotra.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	// No config file is fine, defaults apply.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Booleans need presence tracking: an explicit false in the file
	// must win over a true default.
	var bools boolOverrides
	if err := yaml.Unmarshal(data, &bools); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	bools.applyTo(c)
	return nil
}

// boolOverrides shadows the boolean config keys with pointers so a
// file that sets one explicitly is distinguishable from one that
// omits it.
type boolOverrides struct {
	Markdown struct {
		SkipExisting *bool `yaml:"skip_existing"`
	} `yaml:"markdown"`
	Research struct {
		ExcludeReferences *bool `yaml:"exclude_references"`
	} `yaml:"research"`
}

func (b *boolOverrides) applyTo(c *Config) {
	if b.Markdown.SkipExisting != nil {
		c.Markdown.SkipExisting = *b.Markdown.SkipExisting
	}
	if b.Research.ExcludeReferences != nil {
		c.Research.ExcludeReferences = *b.Research.ExcludeReferences
	}
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Library.BaseURL != "" {
		c.Library.BaseURL = other.Library.BaseURL
	}
	if other.Library.Root != "" {
		c.Library.Root = other.Library.Root
	}

	if other.Markdown.Root != "" {
		c.Markdown.Root = other.Markdown.Root
	}
	if other.Markdown.ConverterCommand != "" {
		c.Markdown.ConverterCommand = other.Markdown.ConverterCommand
	}
	if len(other.Markdown.ConverterArgs) > 0 {
		c.Markdown.ConverterArgs = other.Markdown.ConverterArgs
	}

	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.ChunkOverlap != 0 {
		c.Chunking.ChunkOverlap = other.Chunking.ChunkOverlap
	}
	if other.Chunking.Strategy != "" {
		c.Chunking.Strategy = other.Chunking.Strategy
	}

	if other.Vector.StorageRoot != "" {
		c.Vector.StorageRoot = other.Vector.StorageRoot
	}
	if other.Vector.CollectionName != "" {
		c.Vector.CollectionName = other.Vector.CollectionName
	}
	if other.Vector.Backend != "" {
		c.Vector.Backend = other.Vector.Backend
	}
	if other.Vector.QdrantAddr != "" {
		c.Vector.QdrantAddr = other.Vector.QdrantAddr
	}

	if other.Embeddings.API != "" {
		c.Embeddings.API = other.Embeddings.API
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Chat.API != "" {
		c.Chat.API = other.Chat.API
	}
	if other.Chat.Model != "" {
		c.Chat.Model = other.Chat.Model
	}
	if other.Chat.Temperature != 0 {
		c.Chat.Temperature = other.Chat.Temperature
	}

	if other.Research.MaxSearchDepth != 0 {
		c.Research.MaxSearchDepth = other.Research.MaxSearchDepth
	}
	if other.Research.MaxDocsPerSearch != 0 {
		c.Research.MaxDocsPerSearch = other.Research.MaxDocsPerSearch
	}
	if other.Research.KDocuments != 0 {
		c.Research.KDocuments = other.Research.KDocuments
	}
	if other.Research.RelevanceThreshold != 0 {
		c.Research.RelevanceThreshold = other.Research.RelevanceThreshold
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies environment variable overrides and secrets.
func (c *Config) applyEnvOverrides() {
	// Secrets
	if v := os.Getenv("ZOTERO_ID"); v != "" {
		c.Library.UserID = v
	}
	if v := os.Getenv("ZOTERO_API_KEY"); v != "" {
		c.Library.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Embeddings.GeminiAPIKey = v
	}

	// ZOTRA_* overrides
	if v := os.Getenv("ZOTRA_LIBRARY_ROOT"); v != "" {
		c.Library.Root = v
	}
	if v := os.Getenv("ZOTRA_MARKDOWN_ROOT"); v != "" {
		c.Markdown.Root = v
	}
	if v := os.Getenv("ZOTRA_STORAGE_ROOT"); v != "" {
		c.Vector.StorageRoot = v
	}
	if v := os.Getenv("ZOTRA_COLLECTION_NAME"); v != "" {
		c.Vector.CollectionName = v
	}
	if v := os.Getenv("ZOTRA_VECTOR_BACKEND"); v != "" {
		c.Vector.Backend = v
	}
	if v := os.Getenv("ZOTRA_EMBEDDING_API"); v != "" {
		c.Embeddings.API = v
	}
	if v := os.Getenv("ZOTRA_EMBEDDING_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("ZOTRA_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("ZOTRA_CHAT_API"); v != "" {
		c.Chat.API = v
	}
	if v := os.Getenv("ZOTRA_CHAT_MODEL"); v != "" {
		c.Chat.Model = v
	}
	if v := os.Getenv("ZOTRA_CHAT_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.Chat.Temperature = f
		}
	}
	if v := os.Getenv("ZOTRA_MAX_SEARCH_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Research.MaxSearchDepth = n
		}
	}
	if v := os.Getenv("ZOTRA_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// FullCollectionName returns the complete collection identity:
// <collection_name>_<embedding_api>_<embedding_model>. Changing the
// embedding backend or model therefore addresses a different collection.
func (c *Config) FullCollectionName() string {
	model := strings.NewReplacer("/", "-", ":", "-").Replace(c.Embeddings.Model)
	return fmt.Sprintf("%s_%s_%s", c.Vector.CollectionName, c.Embeddings.API, model)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 {
		return fmt.Errorf("chunking.chunk_overlap must be non-negative, got %d", c.Chunking.ChunkOverlap)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}

	switch c.Chunking.Strategy {
	case StrategyMarkdownRecursive:
	case StrategySemantic:
		return fmt.Errorf("chunking.strategy 'semantic' is not implemented; use %q", StrategyMarkdownRecursive)
	default:
		return fmt.Errorf("chunking.strategy must be %q, got %q", StrategyMarkdownRecursive, c.Chunking.Strategy)
	}

	switch strings.ToLower(c.Vector.Backend) {
	case "local", "qdrant":
	default:
		return fmt.Errorf("vector.backend must be 'local' or 'qdrant', got %s", c.Vector.Backend)
	}

	if c.Vector.CollectionName == "" {
		return fmt.Errorf("vector.collection_name must not be empty")
	}

	switch strings.ToLower(c.Embeddings.API) {
	case "local", "remote":
	default:
		return fmt.Errorf("embeddings.api must be 'local' or 'remote', got %s", c.Embeddings.API)
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("embeddings.model must not be empty")
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	switch strings.ToLower(c.Chat.API) {
	case "local", "remote":
	default:
		return fmt.Errorf("chat.api must be 'local' or 'remote', got %s", c.Chat.API)
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		return fmt.Errorf("chat.temperature must be in [0, 2], got %f", c.Chat.Temperature)
	}

	if c.Research.MaxSearchDepth < 0 {
		return fmt.Errorf("research.max_search_depth must be non-negative, got %d", c.Research.MaxSearchDepth)
	}
	if c.Research.MaxDocsPerSearch <= 0 {
		return fmt.Errorf("research.max_docs_per_search must be positive, got %d", c.Research.MaxDocsPerSearch)
	}
	if c.Research.KDocuments <= 0 {
		return fmt.Errorf("research.k_documents must be positive, got %d", c.Research.KDocuments)
	}
	if c.Research.RelevanceThreshold <= 0 {
		return fmt.Errorf("research.relevance_threshold must be positive, got %f", c.Research.RelevanceThreshold)
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// RequireLibraryCredentials checks that Zotero API credentials are set.
// Commands that talk to the web API call this before constructing a client.
func (c *Config) RequireLibraryCredentials() error {
	if c.Library.UserID == "" {
		return fmt.Errorf("ZOTERO_ID is not set")
	}
	if c.Library.APIKey == "" {
		return fmt.Errorf("ZOTERO_API_KEY is not set")
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
