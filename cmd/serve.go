package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/neo/rapport_backend/internal/agent"
	"github.com/neo/rapport_backend/internal/auth"
	"github.com/neo/rapport_backend/internal/config"
	"github.com/neo/rapport_backend/internal/conversation"
	"github.com/neo/rapport_backend/internal/database"
	"github.com/neo/rapport_backend/internal/logging"
	"github.com/neo/rapport_backend/internal/persona"
	"github.com/neo/rapport_backend/internal/rapport"
	"github.com/neo/rapport_backend/internal/server"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Rapport server",
	Long: `Start the Rapport server. This loads the personas and rapport tuning,
connects the conversation store and archive, and begins accepting trainee
and observer connections.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logging.GetDefaultLogger().Close()

		if port != "" {
			cfg.Port = port
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	personas, err := persona.Load(cfg.PersonaDir)
	if err != nil {
		return fmt.Errorf("failed to load personas: %w", err)
	}

	backend, err := agent.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create %s backend: %w", cfg.LLM.Kind, err)
	}

	opts := []conversation.Option{conversation.WithConfig(cfg.ConversationConfig())}

	if cfg.StoreBackend == config.StoreRedis {
		client, err := conversation.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, redisOptions(client, cfg)...)
	}

	var db database.DatabaseInterface
	if cfg.ArchiveEnabled {
		archive, err := database.New(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer archive.Close()
		db = archive
		opts = append(opts, conversation.WithArchiver(archive))
	}

	manager := conversation.NewManager(engine, personas, backend, opts...)

	flags, err := server.NewFeatureFlagManager(cfg.FeatureFlagsFile)
	if err != nil {
		return err
	}

	serverCfg := server.DefaultConfig()
	serverCfg.Development = cfg.Development()
	serverCfg.AllowedOrigins = cfg.AllowedOrigins
	srv := server.NewServer(serverCfg, manager, auth.New(cfg.AuthConfig()), db, flags)

	logging.Info("Starting Rapport", map[string]interface{}{
		"port":     cfg.Port,
		"backend":  backend.Name(),
		"store":    cfg.StoreBackend,
		"archive":  cfg.ArchiveEnabled,
		"personas": len(personas.List()),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, ":"+cfg.Port)
	})
	g.Go(func() error {
		return manager.RunJanitor(gctx, cfg.CleanupInterval)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logging.Info("Shutdown complete", nil)
	return nil
}

func newEngine(cfg *config.Config) (*rapport.Engine, error) {
	if cfg.TuningFile == "" {
		return rapport.Default(), nil
	}
	tuning, err := rapport.LoadTuning(cfg.TuningFile)
	if err != nil {
		return nil, err
	}
	return rapport.NewEngine(tuning)
}

// redisOptions shares conversations and their locks through redis. Keys
// outlive the retention window so the janitor, not the TTL, archives them.
func redisOptions(client *redis.Client, cfg *config.Config) []conversation.Option {
	return []conversation.Option{
		conversation.WithStore(conversation.NewRedisStore(client, cfg.Retention+cfg.CleanupInterval*2)),
		conversation.WithLocker(conversation.NewRedisLocker(client, cfg.LockTTL, 50*time.Millisecond)),
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "port to listen on (overrides PORT)")
}
