package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/neo/rapport_backend/internal/auth"
	"github.com/neo/rapport_backend/internal/logging"
	"github.com/neo/rapport_backend/internal/types"
)

// LoginRequest holds observer credentials
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// loginHandler exchanges observer credentials for a bearer token
func (s *Server) loginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&types.ValidationError{Field: "body", Reason: "username and password are required"})
		return
	}

	observer, err := s.auth.Authenticate(req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrLoginDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Observer login is not configured"})
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		logging.Warn("Observer login failed", map[string]interface{}{
			"username":  req.Username,
			"client_ip": c.ClientIP(),
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	case err != nil:
		c.Error(err)
		return
	}

	token, err := s.auth.GenerateToken(*observer)
	if err != nil {
		c.Error(err)
		return
	}

	logging.Info("Observer logged in", map[string]interface{}{
		"username": observer.Username,
		"role":     observer.Role,
	})
	c.JSON(http.StatusOK, token)
}

// meHandler returns the authenticated observer
func (s *Server) meHandler(c *gin.Context) {
	username, _ := auth.GetUsername(c)
	role, _ := auth.GetUserRole(c)
	c.JSON(http.StatusOK, auth.Observer{Username: username, Role: role})
}

func (s *Server) setupLoginRoutes() {
	s.router.POST("/api/observer/login", s.loginHandler)
}
