package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neo/rapport_backend/internal/auth"
)

var initDataDir string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the Rapport application",
	Long: `Initialize the Rapport application by setting up required directories
and a template .env file.

This command will:
1. Create the data directory and a personas directory for custom personas
2. Create a template .env file with a freshly generated JWT_SECRET`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Initializing Rapport...")

		for _, dir := range []string{initDataDir, filepath.Join(initDataDir, "personas")} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("error creating directory %s: %w", dir, err)
			}
			fmt.Fprintf(out, "✓ Created directory: %s\n", dir)
		}

		if _, err := os.Stat(envFile); os.IsNotExist(err) {
			secret, err := auth.GenerateRandomKey(32)
			if err != nil {
				return fmt.Errorf("failed to generate JWT secret: %w", err)
			}
			if err := os.WriteFile(envFile, []byte(envTemplate(initDataDir, secret)), 0600); err != nil {
				return fmt.Errorf("error creating .env template: %w", err)
			}
			fmt.Fprintf(out, "✓ Created %s template file\n", envFile)
		} else {
			fmt.Fprintf(out, "• %s already exists, leaving it alone\n", envFile)
		}

		fmt.Fprintln(out, "\nInitialization complete!")
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintf(out, "1. Edit %s and set OPENAI_API_KEY\n", envFile)
		fmt.Fprintln(out, "2. Set an observer password:")
		fmt.Fprintln(out, "   rapport hash-password")
		fmt.Fprintln(out, "3. Start the server:")
		fmt.Fprintln(out, "   rapport serve")
		return nil
	},
}

func envTemplate(dataDir, secret string) string {
	return fmt.Sprintf(`# Language model (required)
OPENAI_API_KEY=your_key_here
LLM_BACKEND=openai
OPENAI_MODEL=gpt-4o-mini

# Server
PORT=8080
APP_ENV=development
LOG_LEVEL=info
CORS_ORIGINS=

# Conversations
STORE_BACKEND=memory
REDIS_URL=redis://localhost:6379/0
RETENTION_WINDOW=1h
GENERATION_TIMEOUT=30s

# Archive and content
DATA_DIR=%s
ARCHIVE_ENABLED=true
PERSONA_DIR=%s
RAPPORT_TUNING_FILE=

# Observer access
JWT_SECRET=%s
OBSERVER_USERNAME=observer
OBSERVER_PASSWORD_HASH=
OBSERVER_ROLE=admin
`, dataDir, filepath.Join(dataDir, "personas"), secret)
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "data", "directory for the archive and custom personas")
}
