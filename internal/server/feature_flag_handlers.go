package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/neo/rapport_backend/internal/auth"
	"github.com/neo/rapport_backend/internal/types"
)

// getFeatureFlagsHandler returns the current feature flags
func (s *Server) getFeatureFlagsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"feature_flags": s.featureFlags.GetFlags(),
	})
}

// updateFeatureFlagsHandler replaces the feature flags
func (s *Server) updateFeatureFlagsHandler(c *gin.Context) {
	var req FeatureFlags
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&types.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	if err := s.featureFlags.UpdateFlags(req); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Feature flags updated successfully",
		"feature_flags": req,
	})
}

// requireFeature aborts with FEATURE_DISABLED unless enabled returns true
func (s *Server) requireFeature(enabled func(FeatureFlags) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled(s.featureFlags.GetFlags()) {
			c.Error(errFeatureDisabled)
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupFeatureFlagRoutes sets up the feature flag routes
func (s *Server) setupFeatureFlagRoutes() {
	s.router.GET("/api/features", s.getFeatureFlagsHandler)

	admin := s.router.Group("/api/observer/features")
	admin.Use(s.auth.AuthMiddleware(), s.auth.RequireRole(auth.RoleAdmin))
	admin.PUT("", s.updateFeatureFlagsHandler)
}
