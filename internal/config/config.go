package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override
const EnvPrefix = "SPOTBOT_"

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	Storage     StorageConfig     `yaml:"storage" envPrefix:"STORAGE_"`
	Postgres    PostgresConfig    `yaml:"postgres" envPrefix:"POSTGRES_"`
	SQLite      SQLiteConfig      `yaml:"sqlite" envPrefix:"SQLITE_"`
	Redis       RedisConfig       `yaml:"redis" envPrefix:"REDIS_"`
	Kafka       KafkaConfig       `yaml:"kafka" envPrefix:"KAFKA_"`
	Season      SeasonConfig      `yaml:"season" envPrefix:"SEASON_"`
	Scheduler   SchedulerConfig   `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard" envPrefix:"LEADERBOARD_"`
	Auth        AuthConfig        `yaml:"auth" envPrefix:"AUTH_"`
	Metrics     MetricsConfig     `yaml:"metrics" envPrefix:"METRICS_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
}

// SQLiteConfig holds SQLite configuration
type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	Addr         string        `yaml:"addr" env:"ADDR"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	KeyPrefix    string        `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Database        string        `yaml:"database" env:"DATABASE"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxConnections  int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	MinConnections  int           `yaml:"min_connections" env:"MIN_CONNECTIONS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"MAX_CONN_IDLE_TIME"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Enabled           bool          `yaml:"enabled" env:"ENABLED"`
	Brokers           []string      `yaml:"brokers" env:"BROKERS"`
	Topic             string        `yaml:"topic" env:"TOPIC"`
	GroupID           string        `yaml:"group_id" env:"GROUP_ID"`
	AnnounceTopic     string        `yaml:"announce_topic" env:"ANNOUNCE_TOPIC"`
	HandleTimeout     time.Duration `yaml:"handle_timeout" env:"HANDLE_TIMEOUT"`
	ProducerRetryMax  int           `yaml:"producer_retry_max" env:"PRODUCER_RETRY_MAX"`
	ProducerRetryWait time.Duration `yaml:"producer_retry_wait" env:"PRODUCER_RETRY_WAIT"`
}

// SeasonConfig anchors the scoring windows
type SeasonConfig struct {
	Anchor     string `yaml:"anchor" env:"ANCHOR"`
	Timezone   string `yaml:"timezone" env:"TIMEZONE"`
	LengthDays int    `yaml:"length_days" env:"LENGTH_DAYS"`
}

// Location resolves the configured timezone
func (c *SeasonConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading season timezone: %w", err)
	}
	return loc, nil
}

// AnchorTime returns midnight of the anchor date in the season timezone
func (c *SeasonConfig) AnchorTime() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	anchor, err := time.ParseInLocation("2006-01-02", c.Anchor, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing season anchor: %w", err)
	}
	return anchor, nil
}

// SchedulerConfig holds the trigger worker configuration
type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// LeaderboardConfig holds leaderboard-specific configuration
type LeaderboardConfig struct {
	DefaultLimit int `yaml:"default_limit" env:"DEFAULT_LIMIT"`
	MaxLimit     int `yaml:"max_limit" env:"MAX_LIMIT"`
}

// AuthConfig lists who may run admin actions
type AuthConfig struct {
	AdminIDs []string `yaml:"admin_ids" env:"ADMIN_IDS"`
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// Load reads configuration from a YAML file, then applies environment
// overrides and defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// applyEnv overrides fields from SPOTBOT_* variables
func (c *Config) applyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverPostgres
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "spotbot.db"
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 20
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "spotbot"
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 20
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 2
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "spotbot-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "spotbot-engine"
	}
	if c.Kafka.HandleTimeout == 0 {
		c.Kafka.HandleTimeout = 10 * time.Second
	}
	if c.Kafka.ProducerRetryMax == 0 {
		c.Kafka.ProducerRetryMax = 3
	}
	if c.Kafka.ProducerRetryWait == 0 {
		c.Kafka.ProducerRetryWait = 250 * time.Millisecond
	}

	// Season defaults
	if c.Season.Anchor == "" {
		c.Season.Anchor = "2025-10-09"
	}
	if c.Season.Timezone == "" {
		c.Season.Timezone = "America/Los_Angeles"
	}
	if c.Season.LengthDays == 0 {
		c.Season.LengthDays = 14
	}

	// Scheduler defaults
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = 1 * time.Minute
	}

	// Leaderboard defaults
	if c.Leaderboard.DefaultLimit == 0 {
		c.Leaderboard.DefaultLimit = 5
	}
	if c.Leaderboard.MaxLimit == 0 {
		c.Leaderboard.MaxLimit = 100
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Scheduler.Enabled = true
	cfg.Metrics.Enabled = true
	return cfg
}
