package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/packfinderz-finance/pkg/config"
	"github.com/angelmondragon/packfinderz-finance/pkg/db"
	"github.com/angelmondragon/packfinderz-finance/pkg/logger"
	"github.com/angelmondragon/packfinderz-finance/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command> [arg]

commands:
  up               apply all pending migrations
  down             roll back the newest migration
  redo             roll back and re-apply the newest migration
  status           print applied and pending migrations
  to <version>     move the schema to YYYYMMDDHHMMSS
  create <name>    write an empty migration file
  validate         lint migration files without a database
`

// schemaCommands are passed to goose verbatim.
var schemaCommands = map[string]bool{"up": true, "down": true, "redo": true, "status": true}

func main() {
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	command, arg := flag.Arg(0), flag.Arg(1)
	if command == "" {
		flag.Usage()
		os.Exit(2)
	}

	switch command {
	case "create":
		if arg == "" {
			fail("create needs a migration name")
		}
		path, err := migrate.Create(*dir, arg, time.Now())
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("validation failed: %v", err)
		}
		fmt.Println("migrations valid")
		return
	}

	if !schemaCommands[command] && command != "to" {
		flag.Usage()
		os.Exit(2)
	}
	if command == "to" && arg == "" {
		fail("to needs a target version")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.ConsoleLogs(),
	})

	dialect := migrate.DialectFor(cfg.IsSQLite())
	ctx := logg.WithFields(context.Background(), map[string]any{
		"command": command,
		"dir":     *dir,
		"dialect": dialect,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.IsSQLite(), logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	if err := run(ctx, dbClient, *dir, dialect, command, arg); err != nil {
		logg.Error(ctx, "migration failed", err)
		dbClient.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

func run(ctx context.Context, client *db.Client, dir, dialect, command, arg string) error {
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	if command == "to" {
		return migrate.MigrateToVersion(ctx, sqlDB, dir, dialect, arg)
	}
	return migrate.Run(ctx, sqlDB, dir, dialect, command)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "migrate: "+format+"\n", args...)
	os.Exit(1)
}
