package domain

import "time"

// Config holds the complete ClaimGuard configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Tier determines which backends are used by default
	Tier Tier `mapstructure:"tier"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventBus"`

	// Validation
	Rules      RulesConfig      `mapstructure:"rules"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	ReadTimeout    int      `mapstructure:"readTimeout"`  // seconds
	WriteTimeout   int      `mapstructure:"writeTimeout"` // seconds
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"serviceName"`
}

// RulesConfig controls where tenant rule documents are read from.
type RulesConfig struct {
	// Dir holds <tenant>_<category>.{json,yaml,yml} files. Empty disables file lookup.
	Dir string `mapstructure:"dir"`
}

// WorkerConfig controls the validation job consumer.
type WorkerConfig struct {
	// Concurrency bounds jobs running at once across tenants.
	Concurrency int `mapstructure:"concurrency"`

	// EvalWorkers bounds parallel claim evaluation within one pass.
	EvalWorkers int `mapstructure:"evalWorkers"`

	// LockTTL expires a tenant validation lock left by a crashed worker.
	LockTTL time.Duration `mapstructure:"lockTtl"`

	// LockWait is how long a pass waits for a busy tenant lock.
	LockWait time.Duration `mapstructure:"lockWait"`
}

// SchedulerConfig controls the periodic pending-claim sweep.
type SchedulerConfig struct {
	// Cron is a six-field (with seconds) schedule. Empty disables the sweep.
	Cron string `mapstructure:"cron"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   30,
			AllowedOrigins: []string{"*"},
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./claimguard.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Rules: RulesConfig{
			Dir: "./rules",
		},
		Enrichment: EnrichmentConfig{
			Endpoint:     "https://api-inference.huggingface.co/models",
			Model:        "google/flan-t5-small",
			MaxNewTokens: 120,
			Timeout:      10,
			CacheTTL:     3600,
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			EvalWorkers: 16,
			LockTTL:     10 * time.Minute,
			LockWait:    30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "claimguard",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "claimguard",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "claimguard-workers",
	}
	cfg.Scheduler.Cron = "0 */5 * * * *"
	cfg.Tracing.Enabled = true
	return cfg
}
