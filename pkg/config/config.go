package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Engine   EngineConfig
	Runs     RunsConfig
	Progress ProgressConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EngineConfig tunes the annealing search and the worker pool that runs it.
type EngineConfig struct {
	DefaultIterations  int
	InitialTemperature float64
	FinalTemperature   float64
	Patience           int
	ProgressEvery      int
	JobTimeout         time.Duration
	Workers            int
	QueueBuffer        int
	ResultTTL          time.Duration
}

// RunsConfig toggles persistence of finished runs in Postgres.
type RunsConfig struct {
	Enabled   bool
	Retention time.Duration
}

// ProgressConfig toggles mirroring of progress events into Redis.
type ProgressConfig struct {
	Enabled       bool
	ChannelPrefix string
	SnapshotTTL   time.Duration
}

// ExportsConfig configures stored schedule downloads.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == EnvProduction
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Engine = EngineConfig{
		DefaultIterations:  v.GetInt("ENGINE_DEFAULT_ITERATIONS"),
		InitialTemperature: v.GetFloat64("ENGINE_INITIAL_TEMPERATURE"),
		FinalTemperature:   v.GetFloat64("ENGINE_FINAL_TEMPERATURE"),
		Patience:           v.GetInt("ENGINE_PATIENCE"),
		ProgressEvery:      v.GetInt("ENGINE_PROGRESS_EVERY"),
		JobTimeout:         parseDuration(v.GetString("ENGINE_JOB_TIMEOUT"), 10*time.Minute),
		Workers:            v.GetInt("ENGINE_WORKERS"),
		QueueBuffer:        v.GetInt("ENGINE_QUEUE_BUFFER"),
		ResultTTL:          parseDuration(v.GetString("ENGINE_RESULT_TTL"), 24*time.Hour),
	}

	cfg.Runs = RunsConfig{
		Enabled:   v.GetBool("ENABLE_RUN_PERSISTENCE"),
		Retention: parseDuration(v.GetString("RUN_RETENTION"), 30*24*time.Hour),
	}

	cfg.Progress = ProgressConfig{
		Enabled:       v.GetBool("ENABLE_PROGRESS_PUBSUB"),
		ChannelPrefix: v.GetString("PROGRESS_CHANNEL_PREFIX"),
		SnapshotTTL:   parseDuration(v.GetString("PROGRESS_SNAPSHOT_TTL"), 24*time.Hour),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Engine.Workers < 1:
		return errors.New("ENGINE_WORKERS must be at least 1")
	case c.Engine.InitialTemperature <= 0 || c.Engine.FinalTemperature <= 0:
		return errors.New("ENGINE temperatures must be positive")
	case c.Engine.FinalTemperature > c.Engine.InitialTemperature:
		return errors.New("ENGINE_FINAL_TEMPERATURE must not exceed ENGINE_INITIAL_TEMPERATURE")
	case c.IsProduction() && c.Exports.SignedURLSecret == defaultExportSecret:
		return errors.New("EXPORTS_SIGNED_URL_SECRET must be set in production")
	}
	return nil
}

const defaultExportSecret = "dev_exports_secret"

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "season_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENGINE_DEFAULT_ITERATIONS", 50000)
	v.SetDefault("ENGINE_INITIAL_TEMPERATURE", 0.05)
	v.SetDefault("ENGINE_FINAL_TEMPERATURE", 0.0001)
	v.SetDefault("ENGINE_PATIENCE", 0)
	v.SetDefault("ENGINE_PROGRESS_EVERY", 0)
	v.SetDefault("ENGINE_JOB_TIMEOUT", "10m")
	v.SetDefault("ENGINE_WORKERS", 2)
	v.SetDefault("ENGINE_QUEUE_BUFFER", 32)
	v.SetDefault("ENGINE_RESULT_TTL", "24h")

	v.SetDefault("ENABLE_RUN_PERSISTENCE", false)
	v.SetDefault("RUN_RETENTION", "720h")
	v.SetDefault("ENABLE_PROGRESS_PUBSUB", false)
	v.SetDefault("PROGRESS_CHANNEL_PREFIX", "season:progress")
	v.SetDefault("PROGRESS_SNAPSHOT_TTL", "24h")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", defaultExportSecret)
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
