package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/carebook/internal/email"
	"github.com/jwalitptl/carebook/internal/repository/postgres"
	"github.com/jwalitptl/carebook/internal/service/appointment"
	"github.com/jwalitptl/carebook/internal/service/notification"
	"github.com/jwalitptl/carebook/internal/storage"
	"github.com/jwalitptl/carebook/pkg/auth"
	"github.com/jwalitptl/carebook/pkg/logger"
	"github.com/jwalitptl/carebook/pkg/messaging/redis"
	"github.com/jwalitptl/carebook/pkg/worker"
)

// EnvPrefix prefixes every environment override, e.g. CAREBOOK_JWT_SECRET or
// CAREBOOK_DATABASE_MAX_OPEN_CONNS.
const EnvPrefix = "CAREBOOK"

type Config struct {
	Server        ServerConfig                 `mapstructure:"server" envconfig:"SERVER"`
	Database      DatabaseConfig               `mapstructure:"database" envconfig:"DATABASE"`
	JWT           auth.Config                  `mapstructure:"jwt" envconfig:"JWT"`
	Redis         redis.Config                 `mapstructure:"redis" envconfig:"REDIS"`
	S3            storage.Config               `mapstructure:"s3" envconfig:"S3"`
	Email         email.Config                 `mapstructure:"email" envconfig:"EMAIL"`
	Scheduling    appointment.Config           `mapstructure:"scheduling" envconfig:"SCHEDULING"`
	Notifications notification.Config          `mapstructure:"notifications" envconfig:"NOTIFICATIONS"`
	RateLimit     RateLimitConfig              `mapstructure:"rate_limit" envconfig:"RATE_LIMIT"`
	CORS          CORSConfig                   `mapstructure:"cors" envconfig:"CORS"`
	Outbox        worker.OutboxProcessorConfig `mapstructure:"outbox" envconfig:"OUTBOX"`
	Worker        WorkerConfig                 `mapstructure:"worker" envconfig:"WORKER"`
	Log           logger.Config                `mapstructure:"log" envconfig:"LOG"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" split_words:"true"`
	Mode            string        `mapstructure:"mode" split_words:"true"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" split_words:"true"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" split_words:"true"`

	// IdentityCacheTTL bounds how long a role change or ban takes to reach
	// requests carrying an already issued token.
	IdentityCacheTTL time.Duration `mapstructure:"identity_cache_ttl" split_words:"true"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver  string `mapstructure:"driver" split_words:"true"`
	Migrate bool   `mapstructure:"migrate" split_words:"true"`

	postgres.Config `mapstructure:",squash"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" split_words:"true"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst" split_words:"true"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins" split_words:"true"`
	AllowCredentials bool          `mapstructure:"allow_credentials" split_words:"true"`
	MaxAge           time.Duration `mapstructure:"max_age" split_words:"true"`
}

type WorkerConfig struct {
	SweepInterval   time.Duration `mapstructure:"sweep_interval" split_words:"true"`
	SweepBatch      int           `mapstructure:"sweep_batch" split_words:"true"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" split_words:"true"`
	MetricsPort     int           `mapstructure:"metrics_port" split_words:"true"`

	// CompletionGrace is how long after its date a confirmed appointment is
	// completed by the sweep.
	CompletionGrace time.Duration `mapstructure:"completion_grace" split_words:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.request_timeout", "20s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 11<<20)
	v.SetDefault("server.identity_cache_ttl", "30s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.migrate", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("jwt.expiry_hours", 24)
	v.SetDefault("jwt.refresh_expiry_hours", 168)
	v.SetDefault("jwt.issuer", "carebook")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel_prefix", "carebook")

	v.SetDefault("s3.driver", "s3")
	v.SetDefault("s3.region", "us-east-1")

	v.SetDefault("email.port", 587)

	v.SetDefault("scheduling.timezone", "UTC")
	v.SetDefault("scheduling.open_hour", appointment.DefaultOpenHour)
	v.SetDefault("scheduling.close_hour", appointment.DefaultCloseHour)

	v.SetDefault("notifications.max_attempts", 3)
	v.SetDefault("notifications.retry_delay", "100ms")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("cors.max_age", "12h")

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "5s")
	v.SetDefault("outbox.max_attempts", 5)
	v.SetDefault("outbox.retry_delay", "10s")
	v.SetDefault("outbox.lease", "1m")
	v.SetDefault("outbox.retention", "168h")

	v.SetDefault("worker.sweep_interval", "5m")
	v.SetDefault("worker.sweep_batch", 100)
	v.SetDefault("worker.completion_grace", "1h")
	v.SetDefault("worker.cleanup_interval", "1h")
	v.SetDefault("worker.metrics_port", 9091)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads config.yml from path, or from the usual locations when path is
// empty, then applies .env and CAREBOOK_* environment overrides.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 {
		problems = append(problems, "server.port must be positive")
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not postgres or memory", c.Database.Driver))
	}
	if c.JWT.Secret == "" {
		problems = append(problems, "jwt.secret is required")
	}
	if c.Scheduling.OpenHour >= c.Scheduling.CloseHour {
		problems = append(problems, "scheduling.open_hour must be before scheduling.close_hour")
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.PollInterval <= 0 {
		problems = append(problems, "outbox.batch_size and outbox.poll_interval must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
