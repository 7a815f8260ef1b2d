package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-agent/internal/config"
	"github.com/jonathan/job-agent/internal/server"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the session API",
	Long:  "Sign a token with JWT_SECRET for local use against `serve`. The subject keys the caller's hand-off slot.",
	RunE:  runToken,
}

var (
	tokenSubject string
	tokenName    string
)

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Token subject (required)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Display name claim")

	if err := tokenCmd.MarkFlagRequired("subject"); err != nil {
		panic(fmt.Sprintf("failed to mark subject flag as required: %v", err))
	}

	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	token, err := issueToken(tokenSubject, tokenName)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}

func issueToken(subject, name string) (string, error) {
	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT config: %w", err)
	}
	return server.NewJWTService(jwtConfig).GenerateToken(subject, name)
}
