package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	DynamoDB   DynamoDBConfig   `yaml:"dynamodb"`
	Redis      RedisConfig      `yaml:"redis"`
	Migrations MigrationsConfig `yaml:"migrations"`
	Matcher    MatcherConfig    `yaml:"matcher"`
	Sweep      SweepConfig      `yaml:"sweep"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the backing store
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

// DynamoDBConfig holds DynamoDB configuration
type DynamoDBConfig struct {
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"` // local DynamoDB or a compatible service
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	UsersTable    string `yaml:"users_table"`
	SessionsTable string `yaml:"sessions_table"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	// KeyPrefix is wrapped in {} as a cluster hash tag unless it already has one
	KeyPrefix string `yaml:"key_prefix"`
}

// MigrationsConfig controls schema migrations on boot
type MigrationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MatcherConfig tunes the matching pipeline
type MatcherConfig struct {
	QueryTimeout      time.Duration `yaml:"query_timeout"`
	CommitConcurrency int           `yaml:"commit_concurrency"`
	RunTimeout        time.Duration `yaml:"run_timeout"`
}

// SweepConfig holds the periodic matching schedule, empty disables it
type SweepConfig struct {
	Schedule string `yaml:"schedule"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file, then applies environment overrides and defaults.
// A .env file next to the process is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverDynamoDB, DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	return nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		key string
		dst *string
	}{
		{"STORAGE_DRIVER", &c.Storage.Driver},
		{"DATABASE_PASSWORD", &c.Database.Password},
		{"JWT_SECRET", &c.JWT.Secret},
		{"REDIS_PASSWORD", &c.Redis.Password},
		{"AWS_ACCESS_KEY_ID", &c.DynamoDB.AccessKey},
		{"AWS_SECRET_ACCESS_KEY", &c.DynamoDB.SecretKey},
		{"LOG_LEVEL", &c.Log.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverPostgres
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.DynamoDB.UsersTable == "" {
		c.DynamoDB.UsersTable = "users"
	}
	if c.DynamoDB.SessionsTable == "" {
		c.DynamoDB.SessionsTable = "sessions"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "matcher:"
	}
	if c.Matcher.QueryTimeout <= 0 {
		c.Matcher.QueryTimeout = 5 * time.Second
	}
	if c.Matcher.CommitConcurrency <= 0 {
		c.Matcher.CommitConcurrency = 8
	}
	if c.Matcher.RunTimeout <= 0 {
		c.Matcher.RunTimeout = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// URL returns the PostgreSQL connection URL used by the migration driver
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Address returns the HTTP listen address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
