// Package main provides the job_agent CLI: the HTTP session service plus
// terminal commands for watching and replaying agent runs.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/job-agent/internal/backend"
	"github.com/jonathan/job-agent/internal/config"
	"github.com/jonathan/job-agent/internal/logging"
)

var (
	configPath string
	logFormat  string
	logLevel   string

	// appConfig is resolved before any subcommand runs
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "job_agent",
	Short:         "Job application agent timeline service",
	Long:          "job_agent follows automated job application runs: it starts runs on the automation backend, reconciles their event streams into a timeline and serves that timeline over HTTP or prints it to the terminal.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if _, err := logging.Setup(cfg.LogFormat, cfg.LogLevel, os.Stderr); err != nil {
			return err
		}
		appConfig = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to JSON config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json or text")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

// newBackendClient builds the backend client from the resolved config.
// A non-empty token overrides the configured one.
func newBackendClient(cfg *config.Config, token string) (*backend.Client, error) {
	if token == "" {
		token = cfg.APIToken
	}
	client, err := backend.New(backend.Config{
		BaseURL:   cfg.BackendURL,
		StreamURL: cfg.BackendStreamURL,
		Token:     token,
	}, backend.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return client, nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
