package cli

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quiz-round-service/internal/config"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cmd := &cobra.Command{
		Use:   "quiz-round-service",
		Short: "Continuously repeating timed quiz rounds with first-correct-wins resolution",
	}

	cmd.PersistentFlags().StringVar(&port, "port", config.Env("PORT", "8080"), "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", config.Env("CONFIG_PATH", "config/config.yaml"), "path to YAML config")
	cmd.AddCommand(NewServeCmd(&configPath, &port))
	cmd.AddCommand(NewWorkerCmd(&configPath))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}
