package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Registry   RegistryConfig
	Retraining RetrainingConfig
	Serving    ServingConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Telemetry  TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Enabled  bool
}

// StorageConfig holds artifact storage settings. Backend selects the
// implementation: "local" or "s3".
type StorageConfig struct {
	Backend      string
	BaseDir      string // local backend: artifact root directory
	Endpoint     string // s3 backend: endpoint URL
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
}

// RegistryConfig holds model registry settings
type RegistryConfig struct {
	CacheSize       int           // max loaded models held in memory
	RefreshInterval time.Duration // snapshot refresh period
	FallbackVersion string        // storage key of the process-wide fallback model
	TopK            int           // probabilities returned per prediction
}

// RetrainingConfig holds retraining pipeline settings
type RetrainingConfig struct {
	MinFeedback        int     // minimum trainable feedback rows
	FeedbackMultiplier int     // feedback repetition factor when merging
	ValidationRatio    float64 // validation holdout fraction
	MaxFeedbackRows    int     // cap on feedback rows loaded per run
	Epochs             int
	LearningRate       float64
}

// ServingConfig holds prediction endpoint settings
type ServingConfig struct {
	ServiceKey string // internal key required on prediction endpoints
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with MLS_ prefix (e.g., MLS_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("MLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Enabled:  v.GetBool("redis.enabled"),
		},
		Storage: StorageConfig{
			Backend:      v.GetString("storage.backend"),
			BaseDir:      v.GetString("storage.base_dir"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
		},
		Registry: RegistryConfig{
			CacheSize:       v.GetInt("registry.cache_size"),
			RefreshInterval: v.GetDuration("registry.refresh_interval"),
			FallbackVersion: v.GetString("registry.fallback_version"),
			TopK:            v.GetInt("registry.top_k"),
		},
		Retraining: RetrainingConfig{
			MinFeedback:        v.GetInt("retraining.min_feedback"),
			FeedbackMultiplier: v.GetInt("retraining.feedback_multiplier"),
			ValidationRatio:    v.GetFloat64("retraining.validation_ratio"),
			MaxFeedbackRows:    v.GetInt("retraining.max_feedback_rows"),
			Epochs:             v.GetInt("retraining.epochs"),
			LearningRate:       v.GetFloat64("retraining.learning_rate"),
		},
		Serving: ServingConfig{
			ServiceKey: v.GetString("serving.service_key"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ml-service"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8090"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "mlservice"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.BaseDir == "" {
		cfg.Storage.BaseDir = "models"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Registry.CacheSize == 0 {
		cfg.Registry.CacheSize = 10
	}
	if cfg.Registry.RefreshInterval == 0 {
		cfg.Registry.RefreshInterval = 60 * time.Second
	}
	if cfg.Registry.FallbackVersion == "" {
		cfg.Registry.FallbackVersion = "default"
	}
	if cfg.Registry.TopK == 0 {
		cfg.Registry.TopK = 3
	}
	if cfg.Retraining.MinFeedback == 0 {
		cfg.Retraining.MinFeedback = 10
	}
	if cfg.Retraining.FeedbackMultiplier == 0 {
		cfg.Retraining.FeedbackMultiplier = 3
	}
	if cfg.Retraining.ValidationRatio == 0 {
		cfg.Retraining.ValidationRatio = 0.2
	}
	if cfg.Retraining.MaxFeedbackRows == 0 {
		cfg.Retraining.MaxFeedbackRows = 5000
	}
	if cfg.Retraining.Epochs == 0 {
		cfg.Retraining.Epochs = 200
	}
	if cfg.Retraining.LearningRate == 0 {
		cfg.Retraining.LearningRate = 0.1
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ml-service"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Storage.Backend != "local" && c.Storage.Backend != "s3" {
		return fmt.Errorf("storage.backend must be 'local' or 's3', got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" {
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			return fmt.Errorf("storage.access_key and storage.secret_key are required for the s3 backend")
		}
	}

	if c.Registry.CacheSize < 1 {
		return fmt.Errorf("registry.cache_size must be at least 1")
	}
	if c.Retraining.ValidationRatio <= 0 || c.Retraining.ValidationRatio >= 1 {
		return fmt.Errorf("retraining.validation_ratio must be in (0,1), got %f", c.Retraining.ValidationRatio)
	}
	if c.Retraining.FeedbackMultiplier < 1 {
		return fmt.Errorf("retraining.feedback_multiplier must be at least 1")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Serving.ServiceKey == "" {
			return fmt.Errorf("serving.service_key is required in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
