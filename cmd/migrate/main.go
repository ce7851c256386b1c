// Package main applies and inspects the papers table migrations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-etl/internal/config"
	"github.com/helixir/paper-etl/internal/database"
	"github.com/helixir/paper-etl/internal/observability"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// action is one migration operation selected on the command line.
type action struct {
	name  string
	apply func(m *database.Migrator, logger zerolog.Logger) error
}

var errNoAction = errors.New("no action specified")

// parseAction reads flags and returns exactly one action.
func parseAction(fs *flag.FlagSet, args []string) (action, string, error) {
	up := fs.Bool("up", false, "Apply all pending migrations")
	down := fs.Bool("down", false, "Roll back all migrations (drops the papers table)")
	steps := fs.Int("steps", 0, "Apply N migration steps (positive=up, negative=down)")
	version := fs.Bool("version", false, "Print the current migration version")
	force := fs.Int("force", -1, "Force the migration version after a failed migration")
	path := fs.String("path", "", "Override the migrations directory")
	if err := fs.Parse(args); err != nil {
		return action{}, "", err
	}

	var actions []action
	if *up {
		actions = append(actions, action{"up", func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Info().Msg("applying pending migrations")
			return m.Up()
		}})
	}
	if *down {
		actions = append(actions, action{"down", func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Warn().Msg("rolling back all migrations")
			return m.Down()
		}})
	}
	if *steps != 0 {
		n := *steps
		actions = append(actions, action{"steps", func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Info().Int("steps", n).Msg("applying migration steps")
			return m.Steps(n)
		}})
	}
	if *version {
		actions = append(actions, action{"version", func(*database.Migrator, zerolog.Logger) error { return nil }})
	}
	if *force >= 0 {
		v := *force
		actions = append(actions, action{"force", func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Warn().Int("version", v).Msg("forcing migration version")
			return m.Force(v)
		}})
	}

	switch len(actions) {
	case 0:
		return action{}, "", errNoAction
	case 1:
		return actions[0], *path, nil
	default:
		return action{}, "", fmt.Errorf("specify only one action at a time")
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	act, pathOverride, err := parseAction(fs, args)
	if errors.Is(err, errNoAction) {
		fs.Usage()
		fmt.Fprintln(os.Stderr, "\nPlease specify one of: -up, -down, -steps N, -version, -force V")
	}
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = logger.With().Str("component", "migrate").Str("table", cfg.Database.Table).Logger()

	migrationDir := cfg.Database.MigrationPath
	if pathOverride != "" {
		migrationDir = pathOverride
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, migrationDir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := act.apply(migrator, logger); err != nil {
		return fmt.Errorf("migrate %s: %w", act.name, err)
	}
	printVersion(migrator, logger)
	return nil
}

// printVersion logs the current migration version.
func printVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current migration version")
}
