package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("BOT_TOKEN", "123:abc")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(StoreSQLite, cfg.DBDriver)
	req.Equal("data/games.db", cfg.DSN())
	req.True(cfg.DBAutoMigrate)
	req.Equal(5*time.Minute, cfg.RelayMinDelay)
	req.Equal(15*time.Minute, cfg.RelayMaxDelay)
	req.Equal(100, cfg.AssignmentMaxAttempts)
	req.Equal(SessionMemory, cfg.SessionBackend)
	req.Equal(24*time.Hour, cfg.SessionIdleTTL)
	req.Equal("@every 10m", cfg.SessionSweepSchedule)
	req.Equal(64, cfg.MaxConcurrentUpdates)
	req.Equal("info", cfg.LogLevel)
	req.False(cfg.UsesWebhook())
}

func TestLoadOverrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://santa@localhost/gifts")
	t.Setenv("RELAY_MIN_DELAY", "1m")
	t.Setenv("RELAY_MAX_DELAY", "2m")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("WEBHOOK_URL", "https://bot.example.com")
	t.Setenv("WEBHOOK_SECRET", "s3cret")

	cfg, err := Load()
	req.NoError(err)
	req.Equal("postgres://santa@localhost/gifts", cfg.DSN())
	req.Equal(time.Minute, cfg.RelayMinDelay)
	req.Equal(SessionRedis, cfg.SessionBackend)
	req.True(cfg.UsesWebhook())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing token":        {},
		"unknown driver":       {"BOT_TOKEN": "t", "DB_DRIVER": "mysql"},
		"postgres without url": {"BOT_TOKEN": "t", "DB_DRIVER": "postgres"},
		"inverted delays":      {"BOT_TOKEN": "t", "RELAY_MIN_DELAY": "10m", "RELAY_MAX_DELAY": "1m"},
		"webhook no secret":    {"BOT_TOKEN": "t", "WEBHOOK_URL": "https://bot.example.com"},
		"bad level":            {"BOT_TOKEN": "t", "LOG_LEVEL": "loud"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("BOT_TOKEN", "")
			os.Unsetenv("BOT_TOKEN")
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadDatabaseWithoutToken(t *testing.T) {
	req := require.New(t)
	t.Setenv("BOT_TOKEN", "")
	os.Unsetenv("BOT_TOKEN")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://santa@localhost/gifts")

	cfg, err := LoadDatabase()
	req.NoError(err)
	req.Equal(StorePostgres, cfg.DBDriver)
	req.Equal("postgres://santa@localhost/gifts", cfg.DSN())

	t.Setenv("DATABASE_URL", "")
	_, err = LoadDatabase()
	req.Error(err)
}

func TestLoadDotEnv(t *testing.T) {
	req := require.New(t)
	req.NoError(LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	req.NoError(os.WriteFile(path, []byte("GIFT_CIRCLE_TEST_VALUE=from-file\n"), 0o600))
	t.Setenv("GIFT_CIRCLE_TEST_VALUE", "")
	os.Unsetenv("GIFT_CIRCLE_TEST_VALUE")
	req.NoError(LoadDotEnv(path))
	req.Equal("from-file", os.Getenv("GIFT_CIRCLE_TEST_VALUE"))
}
