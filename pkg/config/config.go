package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Database  DatabaseConfig  `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	Chats     ChatsConfig     `yaml:"chats"`
	Cache     CacheConfig     `yaml:"cache"`
	Files     FilesConfig     `yaml:"files"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Processor ProcessorConfig `yaml:"processor"`
	Server    ServerConfig    `yaml:"server"`
	UI        UIConfig        `yaml:"ui"`
}

type LLMConfig struct {
	Provider            string        `yaml:"provider"`
	APIKey              string        `yaml:"api_key"`
	BaseURL             string        `yaml:"base_url"`
	Model               string        `yaml:"model"`
	MaxTokens           int           `yaml:"max_tokens"`
	Temperature         float64       `yaml:"temperature"`
	AnalysisTemperature float64       `yaml:"analysis_temperature"`
	Timeout             time.Duration `yaml:"timeout"`
	ContextLimit        int           `yaml:"context_limit"`
	HistoryLimit        int           `yaml:"history_limit"`
}

type EmbeddingConfig struct {
	Model     string  `yaml:"model"`
	BatchSize int     `yaml:"batch_size"`
	RateLimit float64 `yaml:"rate_limit"`
	Workers   int     `yaml:"workers"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
	BatchSize int    `yaml:"batch_size"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend"`
	Collection string `yaml:"collection"`
	Path       string `yaml:"path"`
	QdrantAddr string `yaml:"qdrant_addr"`
}

type ChatsConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

type FilesConfig struct {
	UploadFolder      string   `yaml:"upload_folder"`
	MaxFileSize       int64    `yaml:"max_file_size"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type ScraperConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	RateLimit         float64  `yaml:"rate_limit"`
	IgnorePatterns    []string `yaml:"ignore_patterns"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type ProcessorConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	Strategy     string `yaml:"strategy"`
}

type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

type UIConfig struct {
	Streaming bool   `yaml:"streaming"`
	Theme     string `yaml:"theme"`
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadDotEnv reads a .env file into the process environment if one exists.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/pai/config.yaml"),
			"/etc/pai/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := seeded()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := mergeWithEnv(config); err != nil {
		return nil, err
	}
	applyDefaults(config)

	return config, nil
}

func getDefaultConfig() (*Config, error) {
	config := seeded()
	if err := mergeWithEnv(config); err != nil {
		return nil, err
	}
	applyDefaults(config)
	return config, nil
}

// Default returns a configuration with every default applied and no environment merged.
func Default() *Config {
	config := seeded()
	applyDefaults(config)
	return config
}

// seeded holds the defaults for fields where zero is a valid setting. They are
// set before the file and environment are read so an explicit 0 survives.
func seeded() *Config {
	return &Config{
		LLM: LLMConfig{
			Temperature:         0.7,
			AnalysisTemperature: 0.3,
		},
		Processor: ProcessorConfig{
			ChunkOverlap: 200,
		},
	}
}

// embeddingDims are the output sizes of the embedding models we know about.
var embeddingDims = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

// EmbeddingDim returns the vector size of model, ignoring any ":tag" suffix.
func EmbeddingDim(model string) (int, bool) {
	name, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(model)), ":")
	dim, ok := embeddingDims[name]
	return dim, ok
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.Model = "mistral"
		} else {
			config.LLM.Model = "gpt-4"
		}
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 30 * time.Second
	}
	if config.LLM.ContextLimit == 0 {
		config.LLM.ContextLimit = 5
	}
	if config.LLM.HistoryLimit == 0 {
		config.LLM.HistoryLimit = 10
	}

	if config.Embedding.Model == "" {
		if config.LLM.Provider == "ollama" {
			config.Embedding.Model = "nomic-embed-text:latest"
		} else {
			config.Embedding.Model = "text-embedding-ada-002"
		}
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 100
	}
	if config.Embedding.RateLimit == 0 {
		config.Embedding.RateLimit = 5
	}
	if config.Embedding.Workers == 0 {
		config.Embedding.Workers = 4
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "documents"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 1536
		if dim, ok := EmbeddingDim(config.Embedding.Model); ok {
			config.Database.VectorDim = dim
		}
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "chromem"
	}
	if config.Store.Collection == "" {
		config.Store.Collection = "personal_assistant"
	}
	if config.Store.Path == "" {
		config.Store.Path = "./data/chroma_db"
	}
	if config.Store.QdrantAddr == "" {
		config.Store.QdrantAddr = "localhost:6334"
	}

	if config.Chats.Backend == "" {
		config.Chats.Backend = "badger"
	}
	if config.Chats.Path == "" {
		config.Chats.Path = "./data/chats"
	}

	if config.Cache.TTL == 0 {
		config.Cache.TTL = 7 * 24 * time.Hour
	}

	if config.Files.UploadFolder == "" {
		config.Files.UploadFolder = "./uploads"
	}
	if config.Files.MaxFileSize == 0 {
		config.Files.MaxFileSize = 50 * 1024 * 1024
	}
	if len(config.Files.AllowedExtensions) == 0 {
		config.Files.AllowedExtensions = []string{"txt", "pdf", "docx", "xlsx", "csv", "md", "html"}
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.Strategy == "" {
		config.Processor.Strategy = "window"
	}

	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}

	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}
}

func mergeWithEnv(config *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("LLM_PROVIDER", &config.LLM.Provider)
	setString("OPENAI_API_KEY", &config.LLM.APIKey)
	setString("OPENAI_MODEL", &config.LLM.Model)
	setString("EMBEDDING_MODEL", &config.Embedding.Model)
	setString("OLLAMA_BASE_URL", &config.LLM.BaseURL)
	setString("DATABASE_URL", &config.Database.URL)
	setString("REDIS_URL", &config.Cache.RedisURL)
	setString("QDRANT_ADDR", &config.Store.QdrantAddr)
	setString("VECTOR_STORE", &config.Store.Backend)
	setString("CHROMA_DB_PATH", &config.Store.Path)
	setString("COLLECTION_NAME", &config.Store.Collection)
	setString("CHATS_PATH", &config.Chats.Path)
	setString("UPLOAD_FOLDER", &config.Files.UploadFolder)
	setString("HOST", &config.Server.Host)

	if v := os.Getenv("ALLOWED_EXTENSIONS"); v != "" {
		var exts []string
		for _, ext := range strings.Split(v, ",") {
			if ext = strings.TrimSpace(ext); ext != "" {
				exts = append(exts, strings.TrimPrefix(strings.ToLower(ext), "."))
			}
		}
		config.Files.AllowedExtensions = exts
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &config.Server.Port},
		{"MAX_TOKENS", &config.LLM.MaxTokens},
		{"CHUNK_SIZE", &config.Processor.ChunkSize},
		{"CHUNK_OVERLAP", &config.Processor.ChunkOverlap},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", e.key, v, err)
			}
			*e.dst = n
		}
	}

	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_FILE_SIZE %q: %w", v, err)
		}
		config.Files.MaxFileSize = n
	}
	if v := os.Getenv("TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid TEMPERATURE %q: %w", v, err)
		}
		config.LLM.Temperature = f
	}
	if v := os.Getenv("DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG %q: %w", v, err)
		}
		config.Server.Debug = b
	}

	return nil
}
