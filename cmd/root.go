package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neo/rapport_backend/internal/config"
	"github.com/neo/rapport_backend/internal/logging"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "rapport",
	Short: "Rapport - conversational training simulator",
	Long: `Rapport lets trainees practise de-escalation and relationship building
with role-played personas. Each message is scored by a deterministic rapport
engine; the persona's warmth follows the score while trainees never see it.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFile, "config", "c", ".env", "env file to load")
}

// loadConfig reads the env file and initializes the default logger
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if err := logging.InitDefaultLogger(cfg.LoggingConfig()); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
