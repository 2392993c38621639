package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Database is the storage part of the configuration; the operator tools
// load it without the bot settings.
type Database struct {
	DBDriver          string        `env:"DB_DRIVER,default=sqlite" validate:"oneof=memory sqlite postgres"`
	DatabaseURL       string        `env:"DATABASE_URL" validate:"required_if=DBDriver postgres"`
	DBPath            string        `env:"DB_PATH,default=data/games.db" validate:"required_if=DBDriver sqlite"`
	DBAutoMigrate     bool          `env:"DB_AUTO_MIGRATE,default=true"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=10" validate:"gte=1"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10" validate:"gte=0"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME,default=1m"`
}

type Config struct {
	BotToken string `env:"BOT_TOKEN,required=true" validate:"required"`

	Database

	RelayMinDelay         time.Duration `env:"RELAY_MIN_DELAY,default=5m" validate:"gte=0"`
	RelayMaxDelay         time.Duration `env:"RELAY_MAX_DELAY,default=15m" validate:"gtefield=RelayMinDelay"`
	AssignmentMaxAttempts int           `env:"ASSIGNMENT_MAX_ATTEMPTS,default=100" validate:"gte=1"`

	SessionBackend       string        `env:"SESSION_BACKEND,default=memory" validate:"oneof=memory redis"`
	SessionIdleTTL       time.Duration `env:"SESSION_IDLE_TTL,default=24h" validate:"gt=0"`
	SessionSweepSchedule string        `env:"SESSION_SWEEP_SCHEDULE,default=@every 10m" validate:"required"`
	RedisAddr            string        `env:"REDIS_ADDR,default=localhost:6379" validate:"required_if=SessionBackend redis"`
	RedisPassword        string        `env:"REDIS_PASSWORD"`
	RedisDB              int           `env:"REDIS_DB,default=0" validate:"gte=0"`

	HTTPAddr             string `env:"HTTP_ADDR,default=:8080" validate:"required"`
	WebhookURL           string `env:"WEBHOOK_URL" validate:"omitempty,url"`
	WebhookSecret        string `env:"WEBHOOK_SECRET" validate:"required_with=WebhookURL"`
	MaxConcurrentUpdates int    `env:"MAX_CONCURRENT_UPDATES,default=64" validate:"gte=1"`

	LogLevel       string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT,default=false"`
}

var validate = validator.New()

// Load reads the process environment, applies defaults and validates the
// result.
func Load() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabase reads only the storage settings.
func LoadDatabase() (Database, error) {
	var cfg Database
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Database{}, fmt.Errorf("config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Database{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// UsesWebhook reports whether updates arrive over HTTP instead of long polling.
func (c Config) UsesWebhook() bool {
	return c.WebhookURL != ""
}

// DSN returns the connection string for the configured database driver.
func (c Database) DSN() string {
	if c.DBDriver == StorePostgres {
		return c.DatabaseURL
	}
	return c.DBPath
}
