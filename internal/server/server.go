package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neo/rapport_backend/internal/auth"
	"github.com/neo/rapport_backend/internal/conversation"
	"github.com/neo/rapport_backend/internal/database"
	"github.com/neo/rapport_backend/internal/logging"
)

// Server exposes the trainee and observer APIs over HTTP and WebSocket
type Server struct {
	router       *gin.Engine
	manager      *conversation.Manager
	auth         *auth.Auth
	db           database.DatabaseInterface
	featureFlags *FeatureFlagManager
	config       Config
}

// NewServer creates a new HTTP server with WebSocket support. db may be nil
// when archiving is disabled.
func NewServer(cfg Config, manager *conversation.Manager, a *auth.Auth, db database.DatabaseInterface, flags *FeatureFlagManager) *Server {
	if flags == nil {
		flags, _ = NewFeatureFlagManager("")
	}

	router := gin.New()
	router.Use(
		RequestIDMiddleware(),
		LoggingMiddleware(),
		RecoveryMiddleware(cfg.Development),
		CORSMiddleware(cfg),
		ErrorHandler(cfg.Development),
	)

	s := &Server{
		router:       router,
		manager:      manager,
		auth:         a,
		db:           db,
		featureFlags: flags,
		config:       cfg,
	}

	s.setupTraineeRoutes()
	s.setupWebSocketRoutes()
	s.setupLoginRoutes()
	s.setupObserverRoutes()
	s.setupFeatureFlagRoutes()

	return s
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("HTTP server listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("Shutting down HTTP server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
