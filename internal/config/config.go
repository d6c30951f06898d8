package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the knnsearch configuration shared by the indexer, search and searchd.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Query     QueryConfig     `yaml:"query"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Retry     RetryConfig     `yaml:"retry"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings for searchd.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds index store connection settings.
type DatabaseConfig struct {
	Addrs              []string `yaml:"addrs"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	DB                 int      `yaml:"db"`
	TLS                bool     `yaml:"tls"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	TimeoutSec         int      `yaml:"timeout_sec"`
	ReadinessTimeout   int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string      `yaml:"provider"` // gemini, openai (default: gemini)
	APIKey              string      `yaml:"api_key"`
	BaseURL             string      `yaml:"base_url"`
	Model               string      `yaml:"model"`
	Dimensions          int         `yaml:"dimensions"`
	TimeoutSec          int         `yaml:"timeout_sec"`
	BreakerFailures     int         `yaml:"breaker_failures"`
	BreakerOpenSec      int         `yaml:"breaker_open_sec"`
	DocumentInstruction string      `yaml:"document_instruction"`
	QueryInstruction    string      `yaml:"query_instruction"`
	Cache               CacheConfig `yaml:"cache"`
}

// CacheConfig controls the embedding cache kept in the index store.
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	TTLHours  int    `yaml:"ttl_hours"` // 0 = keep forever
}

// IndexConfig names the index schema and the index served by searchd.
type IndexConfig struct {
	Name       string `yaml:"name"`
	SchemaPath string `yaml:"schema_path"`
}

// QueryConfig holds query defaults.
type QueryConfig struct {
	K    int `yaml:"k"`
	Size int `yaml:"size"`
}

// IndexingConfig holds indexer settings.
type IndexingConfig struct {
	MaxFailures int    `yaml:"max_failures"` // 0 = unlimited
	OnMissing   string `yaml:"on_missing"`   // skip, abort (default: skip)
	IDField     string `yaml:"id_field"`
}

// RetryConfig holds backoff settings for idempotent store and provider calls.
type RetryConfig struct {
	Attempts   int `yaml:"attempts"`
	BaseMS     int `yaml:"base_ms"`
	MaxDelayMS int `yaml:"max_delay_ms"`
}

// Providers accepted in embedding.provider.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

const defaultRedisPort = "6379"

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands env variables, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.TimeoutSec <= 0 {
		c.Database.TimeoutSec = 5
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderGemini
	}
	if c.Embedding.Model == "" && c.Embedding.Provider == ProviderGemini {
		c.Embedding.Model = "gemini-embedding-001"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 3072
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.BreakerFailures <= 0 {
		c.Embedding.BreakerFailures = 5
	}
	if c.Embedding.BreakerOpenSec <= 0 {
		c.Embedding.BreakerOpenSec = 30
	}
	if c.Embedding.Cache.Namespace == "" {
		c.Embedding.Cache.Namespace = c.Embedding.Provider + ":" + c.Embedding.Model
	}
	if c.Index.SchemaPath == "" {
		c.Index.SchemaPath = "data/index-config.json"
	}
	if c.Query.K <= 0 {
		c.Query.K = 3
	}
	if c.Query.Size <= 0 {
		c.Query.Size = 5
	}
	if c.Query.K < c.Query.Size {
		c.Query.K = c.Query.Size
	}
	if c.Indexing.OnMissing == "" {
		c.Indexing.OnMissing = "skip"
	}
	if c.Indexing.IDField == "" {
		c.Indexing.IDField = "id"
	}
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.BaseMS <= 0 {
		c.Retry.BaseMS = 200
	}
	if c.Retry.MaxDelayMS <= 0 {
		c.Retry.MaxDelayMS = 5000
	}
}

// OverrideQuery applies command-line k and size on top of defaults. Zero keeps the current value.
// A configured k below size is raised, an explicit k below size is an error.
func (c *Config) OverrideQuery(k, size int) error {
	if size > 0 {
		c.Query.Size = size
		if c.Query.K < size {
			c.Query.K = size
		}
	}
	if k > 0 {
		if k < c.Query.Size {
			return fmt.Errorf("k (%d) must be at least size (%d)", k, c.Query.Size)
		}
		c.Query.K = k
	}
	return nil
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Embedding.Provider {
	case ProviderGemini:
	case ProviderOpenAI:
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for provider %q", ProviderOpenAI)
		}
	default:
		return fmt.Errorf("embedding.provider must be %q or %q, got %q",
			ProviderGemini, ProviderOpenAI, c.Embedding.Provider)
	}
	switch c.Indexing.OnMissing {
	case "skip", "abort":
	default:
		return fmt.Errorf("indexing.on_missing must be \"skip\" or \"abort\", got %q", c.Indexing.OnMissing)
	}
	if c.Indexing.MaxFailures < 0 {
		return fmt.Errorf("indexing.max_failures must not be negative, got %d", c.Indexing.MaxFailures)
	}
	return nil
}

// ApplyConnectionArgs overrides the store connection from positional CLI
// arguments: [host] [port] [user] [password]. Empty values keep the config.
func (c *Config) ApplyConnectionArgs(args []string) error {
	if len(args) > 4 {
		return fmt.Errorf("too many connection arguments: %d", len(args))
	}
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	host, port := arg(0), arg(1)
	if port != "" {
		if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("invalid port %q", port)
		}
	}
	if host != "" || port != "" {
		if host == "" {
			host = "localhost"
			if len(c.Database.Addrs) > 0 {
				if h, _, err := net.SplitHostPort(c.Database.Addrs[0]); err == nil {
					host = h
				}
			}
		}
		if port == "" {
			port = defaultRedisPort
		}
		c.Database.Addrs = []string{net.JoinHostPort(host, port)}
	}

	// Credentials apply as a pair, like HTTP basic auth.
	if user, password := arg(2), arg(3); user != "" && password != "" {
		c.Database.Username = user
		c.Database.Password = password
	}
	return nil
}

// DBTimeout is the per-command store deadline.
func (c *Config) DBTimeout() time.Duration {
	return time.Duration(c.Database.TimeoutSec) * time.Second
}

// EmbeddingTimeout is the per-attempt provider deadline.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSec) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// Relative to the source file, for tests and go run.
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
