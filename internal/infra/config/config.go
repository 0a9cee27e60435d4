package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration tree, populated from config files and
// TRACKER_-prefixed environment variables.
type Config struct {
	App      AppSettings      `mapstructure:"app"`
	Postgres PostgresSettings `mapstructure:"postgres"`
	Redis    RedisSettings    `mapstructure:"redis"`
	Kafka    KafkaSettings    `mapstructure:"kafka"`
	JWT      JWTSettings      `mapstructure:"jwt"`
	Session  SessionSettings  `mapstructure:"session"`
	Realtime RealtimeSettings `mapstructure:"realtime"`
	CORS     CORSSettings     `mapstructure:"cors"`
}

type AppSettings struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (a AppSettings) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type PostgresSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (p PostgresSettings) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

type RedisSettings struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	DB                 int    `mapstructure:"db"`
	Password           string `mapstructure:"password"`
	TLSEnabled         bool   `mapstructure:"tls_enabled"`
	SessionPrefix      string `mapstructure:"session_prefix"`
	UserSessionsPrefix string `mapstructure:"user_sessions_prefix"`
}

func (r RedisSettings) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KafkaSettings struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

type JWTSettings struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	// RequireSession rejects tokens that cannot be matched against a live
	// session record, trading availability for strict revocation.
	RequireSession bool `mapstructure:"require_session"`
}

type SessionSettings struct {
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RealtimeSettings struct {
	TypingClearDelay time.Duration `mapstructure:"typing_clear_delay"`
	SendQueueSize    int           `mapstructure:"send_queue_size"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReadIdleTimeout  time.Duration `mapstructure:"read_idle_timeout"`
	RateLimitEvents  int           `mapstructure:"rate_limit_events"`
	RateLimitWindow  time.Duration `mapstructure:"rate_limit_window"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
}

type CORSSettings struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// Load reads configuration from an optional config file and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.JWT.AccessTokenTTL <= 0 {
		return fmt.Errorf("jwt.access_token_ttl must be positive")
	}
	if c.Session.IdleTTL <= 0 {
		return fmt.Errorf("session.idle_ttl must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "timetracker-realtime")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.shutdown_timeout", 10*time.Second)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.database", "timetracker")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.session_prefix", "tt:session")
	v.SetDefault("redis.user_sessions_prefix", "tt:user_sessions")

	v.SetDefault("kafka.topic", "timetracker.domain-events")
	v.SetDefault("kafka.consumer_group", "realtime-gateway")

	v.SetDefault("jwt.access_token_ttl", 30*time.Minute)
	v.SetDefault("jwt.require_session", false)

	v.SetDefault("session.idle_ttl", 24*time.Hour)
	v.SetDefault("session.cleanup_interval", time.Hour)

	v.SetDefault("realtime.typing_clear_delay", 3*time.Second)
	v.SetDefault("realtime.send_queue_size", 64)
	v.SetDefault("realtime.write_timeout", 5*time.Second)
	v.SetDefault("realtime.read_idle_timeout", 90*time.Second)
	v.SetDefault("realtime.rate_limit_events", 30)
	v.SetDefault("realtime.rate_limit_window", 10*time.Second)
	v.SetDefault("realtime.allowed_origins", []string{})

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type", "X-Request-ID"})
}

// bindEnvs makes AutomaticEnv cover nested keys even when no config file
// supplies them.
func bindEnvs(v *viper.Viper) {
	keys := []string{
		"app.name", "app.env", "app.host", "app.port", "app.shutdown_timeout",
		"postgres.host", "postgres.port", "postgres.user", "postgres.password",
		"postgres.database", "postgres.ssl_mode", "postgres.max_conns",
		"redis.host", "redis.port", "redis.db", "redis.password",
		"redis.tls_enabled", "redis.session_prefix", "redis.user_sessions_prefix",
		"kafka.brokers", "kafka.topic", "kafka.consumer_group",
		"jwt.secret", "jwt.access_token_ttl", "jwt.require_session",
		"session.idle_ttl", "session.cleanup_interval",
		"realtime.typing_clear_delay", "realtime.send_queue_size",
		"realtime.write_timeout", "realtime.read_idle_timeout",
		"realtime.rate_limit_events", "realtime.rate_limit_window",
		"realtime.allowed_origins",
		"cors.allowed_origins", "cors.allowed_methods", "cors.allowed_headers",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}
