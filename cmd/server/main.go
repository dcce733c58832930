// Package main is the entry point of the song catalog server.
//
// The binary is a small CLI:
//
//	songs [serve]   start the web server (default)
//	songs migrate   apply database migrations and exit
//	songs config    print an annotated example config.toml
//
// Configuration comes from config.toml, .env and the environment (see
// internal/config); the --port and --db flags override all of them.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/sakif/song-catalog/internal/config"
	sqliteRepo "github.com/sakif/song-catalog/internal/repository/sqlite"
	"github.com/sakif/song-catalog/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "songs: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// runner holds what every command action shares.
type runner struct {
	output io.Writer
}

func newApp(output io.Writer) *cli.Command {
	r := &runner{output: output}

	return &cli.Command{
		Name:   "songs",
		Usage:  "Manage a catalog of songs from the browser",
		Writer: output,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file with environment overrides",
				Value: ".env",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides config and PORT)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the SQLite database (overrides config and DB_PATH)",
			},
		},
		Action: r.Serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the web server",
				Action: r.Serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Action: r.Migrate,
			},
			{
				Name:   "config",
				Usage:  "Print an example configuration file",
				Action: r.PrintConfig,
			},
		},
	}
}

// Serve starts the HTTP server and blocks until ctx is cancelled.
func (r *runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := r.setup(cmd)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Start(ctx)
}

// Migrate brings the database schema up to date.
func (r *runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := r.setup(cmd)
	if err != nil {
		return err
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	defer db.Close()

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	logger.Info("database is up to date",
		slog.String("database", cfg.Database.Path),
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// PrintConfig writes the annotated default configuration.
func (r *runner) PrintConfig(_ context.Context, _ *cli.Command) error {
	_, err := r.output.Write(config.Example())
	return err
}

// setup loads the configuration, applies flag overrides and builds the logger.
func (r *runner) setup(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.String("config"), cmd.String("env-file"))
	if err != nil {
		return nil, nil, err
	}

	if cmd.IsSet("port") {
		port := int(cmd.Int("port"))
		if port < 1 || port > 65535 {
			return nil, nil, fmt.Errorf("invalid --port %d", port)
		}
		cfg.Server.Port = port
	}
	if cmd.IsSet("db") {
		cfg.Database.Path = cmd.String("db")
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(r.output, &slog.HandlerOptions{Level: level}))

	if cfg.GeneratedSecret {
		logger.Warn("APP_SECRET is not set, using a random secret; delete tokens and sessions will not survive a restart")
	}

	if err := ensureDir(cfg.Database.Path); err != nil {
		return nil, nil, err
	}

	return cfg, logger, nil
}

// ensureDir creates the directory holding the database file (like mkdir -p).
func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
