package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-agent/internal/config"
	"github.com/jonathan/job-agent/internal/db"
	"github.com/jonathan/job-agent/internal/handoff"
	"github.com/jonathan/job-agent/internal/server"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session API server",
	Long: `Start an HTTP server that hosts agent sessions: bootstrap, run start,
expansion toggles, hand-off and a Server-Sent Events timeline feed.

Requires JWT_SECRET. Hand-off payloads are stored in PostgreSQL when
DATABASE_URL is set and in memory otherwise.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config, 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	port := cfg.Port
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}

	client, err := newBackendClient(cfg, "")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openHandoffStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := server.New(server.Config{Port: port}, server.Dependencies{
		Backend: client,
		Handoff: store,
		Tokens:  server.NewJWTService(jwtConfig).AsTokenValidator(),
		Logger:  slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}

// openHandoffStore connects to PostgreSQL when a URL is configured and
// falls back to process memory otherwise.
func openHandoffStore(ctx context.Context, databaseURL string) (handoff.Store, func(), error) {
	if databaseURL == "" {
		slog.Warn("DATABASE_URL not set, hand-off payloads are kept in memory")
		return handoff.NewMemory(), func() {}, nil
	}

	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to prepare database schema: %w", err)
	}
	return database, database.Close, nil
}
