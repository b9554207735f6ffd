// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Fetch, Scoring, Popular, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Popular    PopularConfig    `yaml:"popular"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	Sentiment  SentimentConfig  `yaml:"sentiment"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Auth       AuthConfig       `yaml:"auth"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RequestTimeout bounds one ranking request; on expiry the caller gets
	// the last completed phase.
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	MaxSources      int           `yaml:"maxSources"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RankRequests string `yaml:"rankRequests"`
	RankResults  string `yaml:"rankResults"`
	RankEvents   string `yaml:"rankEvents"`
}

// RedisConfig holds Redis connection and page-text caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// FetchConfig controls how candidate pages are downloaded.
type FetchConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	UserAgent           string        `yaml:"userAgent"`
	MaxBodyBytes        int64         `yaml:"maxBodyBytes"`
	RequestsPerSecond   float64       `yaml:"requestsPerSecond"`
	Burst               int           `yaml:"burst"`
	RetryAttempts       int           `yaml:"retryAttempts"`
	AllowedContentTypes []string      `yaml:"allowedContentTypes"`
}

// ScoringConfig holds the per-pass multipliers and worker count used by the
// priority manager.
type ScoringConfig struct {
	TargetMultiplier  int `yaml:"targetMultiplier"`
	PopularMultiplier int `yaml:"popularMultiplier"`
	Workers           int `yaml:"workers"`
}

// PopularConfig controls derivation of the popular vocabulary.
type PopularConfig struct {
	TopFraction   float64  `yaml:"topFraction"`
	Cap           int      `yaml:"cap"`
	MaxTextLength int      `yaml:"maxTextLength"`
	StopWords     []string `yaml:"stopWords"`
}

// ExtractorConfig selects the entity extractor backend.
type ExtractorConfig struct {
	// Kind is "http" or "heuristic".
	Kind     string        `yaml:"kind"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SentimentConfig points at the external sentiment classifier. An empty
// endpoint disables annotation.
type SentimentConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	Timeout   time.Duration `yaml:"timeout"`
	Threshold float64       `yaml:"threshold"`
}

// DiscoveryConfig configures the feed-based candidate search provider.
type DiscoveryConfig struct {
	// FeedURLTemplate must contain a single %s that receives the escaped query.
	FeedURLTemplate string        `yaml:"feedUrlTemplate"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxResults      int           `yaml:"maxResults"`
}

// VocabularyConfig selects where target entities are persisted.
type VocabularyConfig struct {
	// Backend is "postgres" or "file".
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// AuthConfig enables API key checks on the ranking endpoints. Keys live in
// Postgres, so enabling auth requires a reachable database.
type AuthConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`
}

// AnalyticsConfig controls rank event publishing and aggregation.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	SnapshotRetain   time.Duration `yaml:"snapshotRetain"`
	Port             int           `yaml:"port"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultStopWords are pronoun and determiner tokens that carry no meaning as
// standalone entities.
var DefaultStopWords = []string{
	"it", "them", "they", "the", "he", "she", "his", "her",
	"we", "i", "us", "me", "my", "here", "our",
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with local-development defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  2 * time.Minute,
			MaxSources:      500,
			CORSOrigins:     []string{"*"},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "osint",
			User:            "osint",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "source-ranker",
			Topics: KafkaTopics{
				RankRequests: "rank-requests",
				RankResults:  "rank-results",
				RankEvents:   "rank-events",
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 30 * time.Minute,
		},
		Fetch: FetchConfig{
			Timeout: 8 * time.Second,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
				"(KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36",
			MaxBodyBytes:      5 << 20,
			RequestsPerSecond: 20,
			Burst:             10,
			RetryAttempts:     1,
			AllowedContentTypes: []string{
				"text/html",
				"application/xhtml+xml",
				"text/xml",
				"application/xml",
				"text/plain",
			},
		},
		Scoring: ScoringConfig{
			TargetMultiplier:  10,
			PopularMultiplier: 5,
			Workers:           16,
		},
		Popular: PopularConfig{
			TopFraction:   0.10,
			Cap:           30,
			MaxTextLength: 100000,
			StopWords:     append([]string(nil), DefaultStopWords...),
		},
		Extractor: ExtractorConfig{
			Kind:     "heuristic",
			Endpoint: "http://localhost:5005/entities",
			Timeout:  20 * time.Second,
		},
		Sentiment: SentimentConfig{
			Timeout:   10 * time.Second,
			Threshold: 0.9,
		},
		Discovery: DiscoveryConfig{
			FeedURLTemplate: "https://news.google.com/rss/search?q=%s&hl=en-GB&gl=GB&ceid=GB:en",
			Timeout:         20 * time.Second,
			MaxResults:      50,
		},
		Vocabulary: VocabularyConfig{
			Backend: "file",
			Dir:     "data_files/target_info_files",
		},
		Auth: AuthConfig{
			RateLimitWindow: time.Minute,
		},
		Analytics: AnalyticsConfig{
			Enabled:          false,
			BufferSize:       10000,
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
			SnapshotRetain:   7 * 24 * time.Hour,
			Port:             8082,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects values the ranking pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Scoring.TargetMultiplier < 0 {
		errs = append(errs, errors.New("scoring.targetMultiplier must not be negative"))
	}
	if c.Scoring.PopularMultiplier < 0 {
		errs = append(errs, errors.New("scoring.popularMultiplier must not be negative"))
	}
	if c.Scoring.Workers <= 0 {
		errs = append(errs, errors.New("scoring.workers must be positive"))
	}
	if c.Popular.TopFraction <= 0 || c.Popular.TopFraction > 1 {
		errs = append(errs, fmt.Errorf("popular.topFraction must be in (0,1], got %v", c.Popular.TopFraction))
	}
	if c.Popular.Cap < 0 {
		errs = append(errs, errors.New("popular.cap must not be negative"))
	}
	if c.Popular.MaxTextLength <= 0 {
		errs = append(errs, errors.New("popular.maxTextLength must be positive"))
	}
	if c.Server.MaxSources <= 0 {
		errs = append(errs, errors.New("server.maxSources must be positive"))
	}
	if c.Auth.Enabled && c.Auth.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("auth.rateLimitWindow must be positive when auth is enabled"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	switch c.Extractor.Kind {
	case "http", "heuristic":
	default:
		errs = append(errs, fmt.Errorf("extractor.kind must be http or heuristic, got %q", c.Extractor.Kind))
	}
	switch c.Vocabulary.Backend {
	case "postgres", "file":
	default:
		errs = append(errs, fmt.Errorf("vocabulary.backend must be postgres or file, got %q", c.Vocabulary.Backend))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads OSR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OSR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("OSR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("OSR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("OSR_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("OSR_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("OSR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("OSR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("OSR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("OSR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("OSR_EXTRACTOR_KIND"); v != "" {
		cfg.Extractor.Kind = v
	}
	if v := os.Getenv("OSR_EXTRACTOR_ENDPOINT"); v != "" {
		cfg.Extractor.Endpoint = v
	}
	if v := os.Getenv("OSR_SENTIMENT_ENDPOINT"); v != "" {
		cfg.Sentiment.Endpoint = v
	}
	if v := os.Getenv("OSR_VOCABULARY_BACKEND"); v != "" {
		cfg.Vocabulary.Backend = v
	}
	if v := os.Getenv("OSR_VOCABULARY_DIR"); v != "" {
		cfg.Vocabulary.Dir = v
	}
	if v := os.Getenv("OSR_SCORING_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scoring.Workers = n
		}
	}
	if v := os.Getenv("OSR_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Fetch.Timeout = d
		}
	}
	if v := os.Getenv("OSR_AUTH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.Enabled = b
		}
	}
	if v := os.Getenv("OSR_ANALYTICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = b
		}
	}
	if v := os.Getenv("OSR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OSR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
