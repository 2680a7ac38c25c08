package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neo/rapport_backend/internal/auth"
	"github.com/neo/rapport_backend/internal/conversation"
	"github.com/neo/rapport_backend/internal/database"
	"github.com/neo/rapport_backend/internal/persona"
)

var (
	classifyScore   int
	classifyPersona string
	purgeOlderThan  time.Duration
)

var classifyCmd = &cobra.Command{
	Use:   "classify [message]",
	Short: "Score a message with the rapport engine",
	Long: `Score a single trainee message and print the resulting rapport event as
JSON. Useful when tuning rules: no conversation is created and no model is
called.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		personas, err := persona.Load(cfg.PersonaDir)
		if err != nil {
			return err
		}
		p, err := personas.Resolve(classifyPersona)
		if err != nil {
			return err
		}

		score := classifyScore
		if !cmd.Flags().Changed("score") {
			score = engine.InitialScore()
		}

		ev := engine.Classify(strings.Join(args, " "), score, p.DisplayName())
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(ev)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [conversation-id...]",
	Short: "Print a report of archived conversations",
	Long: `Print the plain-text training report for archived conversations. With no
arguments every archived conversation is included, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.New(cfg.DataDir)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		ids := args
		if len(ids) == 0 {
			summaries, _, err := db.ListArchived(ctx, 0, 0)
			if err != nil {
				return err
			}
			for _, s := range summaries {
				ids = append(ids, s.ID)
			}
		}

		conversations, err := loadArchived(ctx, db, ids)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), conversation.FormatReport(conversations, time.Now()))
		return nil
	},
}

func loadArchived(ctx context.Context, db database.DatabaseInterface, ids []string) ([]*conversation.Conversation, error) {
	out := make([]*conversation.Conversation, 0, len(ids))
	for _, id := range ids {
		archived, err := db.GetArchived(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, archived.Conversation)
	}
	return out, nil
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Hash an observer password for OBSERVER_PASSWORD_HASH",
	Long: `Hash an observer password with bcrypt. The password is read from the
argument or, if none is given, from the first line of standard input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return errors.New("password must not be empty")
		}
		if !auth.IsStrongPassword(password) {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: password should be 8+ characters with upper and lower case letters, a digit and a symbol")
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete archived conversations older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		if purgeOlderThan <= 0 {
			return errors.New("--older-than must be positive")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.New(cfg.DataDir)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.DeleteArchivedBefore(cmd.Context(), time.Now().Add(-purgeOlderThan))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d archived conversation(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd, reportCmd, hashPasswordCmd, purgeCmd)

	classifyCmd.Flags().IntVar(&classifyScore, "score", 0, "current rapport score (default: the initial score)")
	classifyCmd.Flags().StringVar(&classifyPersona, "persona", "ethan-reeves", "persona the message is addressed to")

	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 30*24*time.Hour, "delete conversations archived before now minus this duration")
}
