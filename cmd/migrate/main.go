package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"

	"x402-subscriptions/internal/config"
	"x402-subscriptions/internal/infra/logging"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the migration files")
	dbURL := flag.String("database", "", "postgres URL (defaults to $DATABASE_URL)")
	flag.Usage = printUsage
	flag.Parse()

	logger := logging.New(config.LogConfig{Level: "info", Format: "console"}, true)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Fatal().Err(err).Msg("load .env")
	}
	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}
	if *dbURL == "" {
		*dbURL = os.Getenv("DATABASE_URL")
	}
	if *dbURL == "" {
		logger.Fatal().Msg("database URL is required (-database or DATABASE_URL)")
	}

	m, err := migrate.New("file://"+*dir, pgxURL(*dbURL))
	if err != nil {
		logger.Fatal().Err(err).Msg("init migrations")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("close migrations")
		}
	}()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		switch err := m.Up(); {
		case errors.Is(err, migrate.ErrNoChange):
			logger.Info().Msg("no change: schema is up to date")
		case err != nil:
			logger.Fatal().Err(err).Msg("migrate up")
		default:
			logger.Info().Msg("migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			logger.Fatal().Err(err).Msg("roll back last migration")
		}
		logger.Info().Msg("last migration rolled back")

	case "goto":
		if flag.NArg() < 2 {
			logger.Fatal().Msg("goto needs a version")
		}
		v, err := strconv.ParseUint(flag.Arg(1), 10, 64)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid version")
		}
		switch err := m.Migrate(uint(v)); {
		case errors.Is(err, migrate.ErrNoChange):
			logger.Info().Uint64("version", v).Msg("no change")
		case err != nil:
			logger.Fatal().Err(err).Uint64("version", v).Msg("migrate to version")
		default:
			logger.Info().Uint64("version", v).Msg("migrated")
		}

	case "status":
		v, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			logger.Info().Msg("no migrations applied yet")
		case err != nil:
			logger.Fatal().Err(err).Msg("read version")
		default:
			logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("current version")
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

// pgxURL switches a postgres:// URL to the scheme the pgx driver registers.
func pgxURL(u string) string {
	for _, p := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(u, p) {
			return "pgx://" + strings.TrimPrefix(u, p)
		}
	}
	return u
}

func printUsage() {
	fmt.Println("usage: migrate [-dir migrations] [-database url] <command>")
	fmt.Println("commands:")
	fmt.Println("  up          apply all pending migrations")
	fmt.Println("  down        roll back the last migration")
	fmt.Println("  goto N      migrate to version N")
	fmt.Println("  status      print the current version")
}
