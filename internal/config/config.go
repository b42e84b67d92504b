package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	S3        S3Config
	Log       LogConfig
	CORS      CORSConfig
	Analyzer  AnalyzerConfig
	Reconcile ReconcileConfig
	Merge     MergeConfig
	Queue     QueueConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
	// ConnMaxLifetimeMins bounds how long a pooled connection is reused;
	// zero means no limit.
	ConnMaxLifetimeMins int `mapstructure:"conn_max_lifetime_mins"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds object storage settings for raw document bytes.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AnalyzerProviderConfig holds settings for a single remote analyzer provider.
type AnalyzerProviderConfig struct {
	Provider    string `mapstructure:"provider"`
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	Endpoint    string `mapstructure:"endpoint"`
	MaxRetries  int    `mapstructure:"max_retries"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`
	BackoffMS   int    `mapstructure:"backoff_ms"`
}

// Configured reports whether the provider slot is filled in.
func (c *AnalyzerProviderConfig) Configured() bool {
	return c.Provider != ""
}

// AnalyzerConfig holds analyzer backend settings. Rules and heuristic are
// local backends and always available; up to three remote providers may be
// configured and are fanned out as an ensemble.
type AnalyzerConfig struct {
	RulesEnabled     bool                   `mapstructure:"rules_enabled"`
	HeuristicEnabled bool                   `mapstructure:"heuristic_enabled"`
	Primary          AnalyzerProviderConfig `mapstructure:"primary"`
	Secondary        AnalyzerProviderConfig `mapstructure:"secondary"`
	Tertiary         AnalyzerProviderConfig `mapstructure:"tertiary"`
}

// RemoteConfigs returns the configured remote provider slots in order.
func (a *AnalyzerConfig) RemoteConfigs() []*AnalyzerProviderConfig {
	var out []*AnalyzerProviderConfig
	for _, c := range []*AnalyzerProviderConfig{&a.Primary, &a.Secondary, &a.Tertiary} {
		if c.Configured() {
			out = append(out, c)
		}
	}
	return out
}

// ReconcileConfig holds cross-document matching tolerances. The defaults are
// deliberately tight; claims batching setups can widen the date window.
type ReconcileConfig struct {
	AmountEpsilon  float64 `mapstructure:"amount_epsilon"`
	DateWindowDays int     `mapstructure:"date_window_days"`
}

// MergeConfig holds issue merger thresholds.
type MergeConfig struct {
	// MinGapAmount is the smallest coverage-matrix mismatch the merger
	// promotes to an issue.
	MinGapAmount float64 `mapstructure:"min_gap_amount"`
}

// QueueConfig holds analysis queue worker settings.
type QueueConfig struct {
	PollIntervalSecs int `mapstructure:"poll_interval_secs"`
	MaxRetries       int `mapstructure:"max_retries"`
	Concurrency      int `mapstructure:"concurrency"`
}

// Load reads configuration from environment variables with the RECLAIM_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RECLAIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "reclaim")
	v.SetDefault("db.password", "reclaim_secret")
	v.SetDefault("db.name", "reclaim_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)
	v.SetDefault("db.conn_max_lifetime_mins", 30)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "reclaim-documents")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.max_file_size_mb", 50)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Analyzer defaults: local backends on, no remote providers
	v.SetDefault("analyzer.rules_enabled", true)
	v.SetDefault("analyzer.heuristic_enabled", true)
	for _, slot := range []string{"primary", "secondary", "tertiary"} {
		v.SetDefault("analyzer."+slot+".provider", "")
		v.SetDefault("analyzer."+slot+".api_key", "")
		v.SetDefault("analyzer."+slot+".model", "")
		v.SetDefault("analyzer."+slot+".endpoint", "")
		v.SetDefault("analyzer."+slot+".max_retries", 2)
		v.SetDefault("analyzer."+slot+".timeout_secs", 60)
		v.SetDefault("analyzer."+slot+".backoff_ms", 500)
	}

	// Reconcile defaults
	v.SetDefault("reconcile.amount_epsilon", 0.01)
	v.SetDefault("reconcile.date_window_days", 0)

	// Merge defaults
	v.SetDefault("merge.min_gap_amount", 1.00)

	// Queue defaults
	v.SetDefault("queue.poll_interval_secs", 10)
	v.SetDefault("queue.max_retries", 5)
	v.SetDefault("queue.concurrency", 4)

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":               "RECLAIM_SERVER_PORT",
		"server.read_timeout":       "RECLAIM_SERVER_READ_TIMEOUT",
		"server.write_timeout":      "RECLAIM_SERVER_WRITE_TIMEOUT",
		"server.environment":        "RECLAIM_SERVER_ENVIRONMENT",
		"db.host":                   "RECLAIM_DB_HOST",
		"db.port":                   "RECLAIM_DB_PORT",
		"db.user":                   "RECLAIM_DB_USER",
		"db.password":               "RECLAIM_DB_PASSWORD",
		"db.name":                   "RECLAIM_DB_NAME",
		"db.sslmode":                "RECLAIM_DB_SSLMODE",
		"db.max_open":               "RECLAIM_DB_MAX_OPEN",
		"db.max_idle":               "RECLAIM_DB_MAX_IDLE",
		"db.conn_max_lifetime_mins": "RECLAIM_DB_CONN_MAX_LIFETIME_MINS",
		"s3.region":                 "RECLAIM_S3_REGION",
		"s3.bucket":                 "RECLAIM_S3_BUCKET",
		"s3.endpoint":               "RECLAIM_S3_ENDPOINT",
		"s3.access_key":             "RECLAIM_S3_ACCESS_KEY",
		"s3.secret_key":             "RECLAIM_S3_SECRET_KEY",
		"s3.max_file_size_mb":       "RECLAIM_S3_MAX_FILE_SIZE_MB",
		"log.level":                 "RECLAIM_LOG_LEVEL",
		"log.format":                "RECLAIM_LOG_FORMAT",
		"cors.allowed_origins":      "RECLAIM_CORS_ALLOWED_ORIGINS",
		"analyzer.rules_enabled":    "RECLAIM_ANALYZER_RULES_ENABLED",
		"analyzer.heuristic_enabled": "RECLAIM_ANALYZER_HEURISTIC_ENABLED",
		"reconcile.amount_epsilon":  "RECLAIM_RECONCILE_AMOUNT_EPSILON",
		"reconcile.date_window_days": "RECLAIM_RECONCILE_DATE_WINDOW_DAYS",
		"merge.min_gap_amount":      "RECLAIM_MERGE_MIN_GAP_AMOUNT",
		"queue.poll_interval_secs":  "RECLAIM_QUEUE_POLL_INTERVAL_SECS",
		"queue.max_retries":         "RECLAIM_QUEUE_MAX_RETRIES",
		"queue.concurrency":         "RECLAIM_QUEUE_CONCURRENCY",
	}
	for _, slot := range []string{"primary", "secondary", "tertiary"} {
		upper := strings.ToUpper(slot)
		envBindings["analyzer."+slot+".provider"] = "RECLAIM_ANALYZER_" + upper + "_PROVIDER"
		envBindings["analyzer."+slot+".api_key"] = "RECLAIM_ANALYZER_" + upper + "_API_KEY"
		envBindings["analyzer."+slot+".model"] = "RECLAIM_ANALYZER_" + upper + "_MODEL"
		envBindings["analyzer."+slot+".endpoint"] = "RECLAIM_ANALYZER_" + upper + "_ENDPOINT"
		envBindings["analyzer."+slot+".max_retries"] = "RECLAIM_ANALYZER_" + upper + "_MAX_RETRIES"
		envBindings["analyzer."+slot+".timeout_secs"] = "RECLAIM_ANALYZER_" + upper + "_TIMEOUT_SECS"
		envBindings["analyzer."+slot+".backoff_ms"] = "RECLAIM_ANALYZER_" + upper + "_BACKOFF_MS"
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if RECLAIM_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("RECLAIM_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:                v.GetString("db.host"),
		Port:                v.GetInt("db.port"),
		User:                v.GetString("db.user"),
		Password:            v.GetString("db.password"),
		Name:                v.GetString("db.name"),
		SSLMode:             v.GetString("db.sslmode"),
		MaxOpen:             v.GetInt("db.max_open"),
		MaxIdle:             v.GetInt("db.max_idle"),
		ConnMaxLifetimeMins: v.GetInt("db.conn_max_lifetime_mins"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		MaxFileSizeMB: v.GetInt64("s3.max_file_size_mb"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	// Parse CORS allowed origins from comma-separated string
	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{AllowedOrigins: corsOrigins}

	providerSlot := func(slot string) AnalyzerProviderConfig {
		return AnalyzerProviderConfig{
			Provider:    v.GetString("analyzer." + slot + ".provider"),
			APIKey:      v.GetString("analyzer." + slot + ".api_key"),
			Model:       v.GetString("analyzer." + slot + ".model"),
			Endpoint:    v.GetString("analyzer." + slot + ".endpoint"),
			MaxRetries:  v.GetInt("analyzer." + slot + ".max_retries"),
			TimeoutSecs: v.GetInt("analyzer." + slot + ".timeout_secs"),
			BackoffMS:   v.GetInt("analyzer." + slot + ".backoff_ms"),
		}
	}
	cfg.Analyzer = AnalyzerConfig{
		RulesEnabled:     v.GetBool("analyzer.rules_enabled"),
		HeuristicEnabled: v.GetBool("analyzer.heuristic_enabled"),
		Primary:          providerSlot("primary"),
		Secondary:        providerSlot("secondary"),
		Tertiary:         providerSlot("tertiary"),
	}

	cfg.Reconcile = ReconcileConfig{
		AmountEpsilon:  v.GetFloat64("reconcile.amount_epsilon"),
		DateWindowDays: v.GetInt("reconcile.date_window_days"),
	}
	cfg.Merge = MergeConfig{
		MinGapAmount: v.GetFloat64("merge.min_gap_amount"),
	}
	cfg.Queue = QueueConfig{
		PollIntervalSecs: v.GetInt("queue.poll_interval_secs"),
		MaxRetries:       v.GetInt("queue.max_retries"),
		Concurrency:      v.GetInt("queue.concurrency"),
	}

	return cfg, nil
}
