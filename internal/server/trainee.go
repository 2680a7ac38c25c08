package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/neo/rapport_backend/internal/types"
)

// StartConversationRequest opens a conversation with a persona
type StartConversationRequest struct {
	PersonaID string `json:"persona_id" binding:"required"`
}

// MessageRequest carries one trainee message
type MessageRequest struct {
	Message string `json:"message"`
}

// ReplyResponse is everything a trainee learns from a submitted message
type ReplyResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) setupTraineeRoutes() {
	api := s.router.Group("/api")
	api.GET("/health", s.healthHandler)
	api.GET("/personas", s.listPersonasHandler)

	conversations := api.Group("/conversations")
	conversations.POST("", s.startConversationHandler)
	conversations.GET("/:id", s.getOpeningHandler)
	conversations.POST("/:id/messages", s.submitMessageHandler)
	conversations.POST("/:id/retry", s.requireFeature(func(f FeatureFlags) bool { return f.EnableReplyRetry }), s.retryReplyHandler)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listPersonasHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"personas": s.manager.Personas().List(),
	})
}

func (s *Server) startConversationHandler(c *gin.Context) {
	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&types.ValidationError{Field: "persona_id", Reason: "is required"})
		return
	}

	opening, err := s.manager.StartConversation(c.Request.Context(), req.PersonaID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, opening)
}

func (s *Server) getOpeningHandler(c *gin.Context) {
	opening, err := s.manager.Opening(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, opening)
}

func (s *Server) submitMessageHandler(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&types.ValidationError{Field: "body", Reason: "must be a JSON object with a message"})
		return
	}

	reply, err := s.manager.SubmitMessage(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ReplyResponse{Reply: reply})
}

func (s *Server) retryReplyHandler(c *gin.Context) {
	reply, err := s.manager.RegenerateReply(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ReplyResponse{Reply: reply})
}
