// Command migrate manages the Postgres schema: "up" applies pending
// migrations, "down N" rolls back N steps, "create NAME" adds an empty pair.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gift-circle/internal/config"
	"gift-circle/internal/logging"

	env "github.com/Netflix/go-env"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

type migrateConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	var cfg migrateConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dir := flags.String("dir", filepath.Join("db", "migrations"), "migrations directory")
	if err := flags.Parse(args); err != nil {
		return err
	}
	command := flags.Arg(0)
	if command == "" {
		command = "up"
	}

	if command == "create" {
		paths, err := createMigration(*dir, flags.Arg(1), time.Now().UTC())
		if err != nil {
			return err
		}
		logger.Info("migration created", zap.Strings("files", paths))
		return nil
	}

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	m, err := migrate.New("file://"+filepath.ToSlash(*dir), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		steps, convErr := strconv.Atoi(flags.Arg(1))
		if convErr != nil || steps < 1 {
			return errors.New("down needs a positive step count")
		}
		err = m.Steps(-steps)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", command, err)
	}
	version, dirty, _ := m.Version()
	logger.Info("migrations applied", zap.String("command", command), zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// createMigration writes an empty up/down pair stamped with now.
func createMigration(dir, name string, now time.Time) ([]string, error) {
	if name == "" {
		return nil, errors.New("migration name is required")
	}
	if strings.ContainsAny(name, " /\\") {
		return nil, errors.New("migration name must not contain spaces or slashes")
	}
	base := fmt.Sprintf("%s_%s", now.Format("20060102150405"), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations dir: %w", err)
	}
	paths := []string{
		filepath.Join(dir, base+".up.sql"),
		filepath.Join(dir, base+".down.sql"),
	}
	for i, path := range paths {
		header := "-- up migration\n"
		if i == 1 {
			header = "-- down migration\n"
		}
		if err := writeNew(path, header); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func writeNew(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("file already exists: %s", path)
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
