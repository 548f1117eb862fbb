package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	flag.Parse()
	if flag.NArg() < 1 {
		logger.Error("usage: migrate <up|down|version>")
		os.Exit(1)
	}
	command := flag.Arg(0)

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "file://migrations"
	}

	m, err := migrate.New(migrationsPath, postgresURL)
	if err != nil {
		logger.Error("failed to open migration source", "error", err, "path", migrationsPath)
		os.Exit(1)
	}
	defer func() { _, _ = m.Close() }()

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("fulfillment schema already up to date")
				return
			}
			logger.Error("migration up failed", "error", err)
			os.Exit(1)
		}
		logger.Info("fulfillment schema migrated")

	case "down":
		if err := m.Steps(-1); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("no migrations to roll back")
				return
			}
			logger.Error("migration down failed", "error", err)
			os.Exit(1)
		}
		logger.Info("rolled back one migration")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return
		}
		if err != nil {
			logger.Error("failed to read schema version", "error", err)
			os.Exit(1)
		}
		logger.Info("schema version", "version", version, "dirty", dirty)

	default:
		logger.Error("unknown command", "command", command)
		os.Exit(1)
	}
}
