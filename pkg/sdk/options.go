package knnsearch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs    []string
	username string
	password string
	tls      bool
	insecure bool
	timeout  time.Duration

	embedder   Embedder
	dimensions int
	schemaPath string
	idField    string
	onMissing  string
	maxFailed  int
	attempts   int

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithRedis configures the store address and password.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithCredentials sets an ACL username and password.
func WithCredentials(username, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.username = username
		c.password = password
	})
}

// WithTLS enables TLS. insecure skips certificate verification.
func WithTLS(insecure bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.tls = true
		c.insecure = insecure
	})
}

// WithCommandTimeout bounds every store command. Default: 5s.
func WithCommandTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithEmbedder sets the embedding provider. Required.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithDimensions sets the vector dimensionality. Default: 3072.
func WithDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.dimensions = dim
	})
}

// WithSchemaFile loads the index definition from an OpenSearch-style mapping
// or a native field list. Without it, a catalog schema (name, description,
// category, brand, description_vector) is used.
func WithSchemaFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.schemaPath = path
	})
}

// WithAbortOnMissing stops indexing at the first document without a description
// instead of skipping it.
func WithAbortOnMissing() Option {
	return optionFunc(func(c *clientConfig) {
		c.onMissing = "abort"
	})
}

// WithMaxFailures stops indexing once more than n documents failed.
// Zero means unlimited (default).
func WithMaxFailures(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxFailed = n
	})
}

// WithIDField names the document field used as key. Default: "id".
// Documents without it get a generated UUID.
func WithIDField(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.idField = name
	})
}

// WithRetryAttempts sets attempts for idempotent store calls. Default: 3.
func WithRetryAttempts(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.attempts = n
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
