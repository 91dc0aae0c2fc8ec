// Package main provides a CLI tool for running database migrations.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"

	"caixa/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	sourceURL := os.Getenv("MIGRATIONS_PATH")
	if sourceURL == "" {
		sourceURL = "file://migrations"
	}

	// Route postgres:// URLs to the pgx/v5 driver.
	dbURL = strings.Replace(dbURL, "postgres://", "pgx5://", 1)
	dbURL = strings.Replace(dbURL, "postgresql://", "pgx5://", 1)

	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		log.Fatalw("failed to initialize migrations", "error", err)
	}
	defer m.Close()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "drop":
		err = m.Drop()
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			log.Fatalw("failed to read version", "error", verr)
		}
		log.Infow("current migration version", "version", version, "dirty", dirty)
		return
	default:
		log.Fatalw("unknown command", "command", command)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no migrations to apply")
			return
		}
		log.Fatalw("migration failed", "command", command, "error", err)
	}

	log.Infow("migrations applied", "command", command)
}
