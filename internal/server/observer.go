package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/neo/rapport_backend/internal/auth"
	"github.com/neo/rapport_backend/internal/logging"
)

func (s *Server) setupObserverRoutes() {
	observer := s.router.Group("/api/observer")
	observer.Use(s.auth.AuthMiddleware(), s.auth.RequireRole(auth.RoleObserver))

	observer.GET("/me", s.meHandler)

	observer.GET("/conversations", s.listConversationsHandler)
	observer.GET("/conversations/:id", s.getConversationHandler)
	observer.DELETE("/conversations/:id", s.deleteConversationHandler)
	observer.DELETE("/conversations",
		s.requireFeature(func(f FeatureFlags) bool { return f.EnableBulkDelete }),
		s.deleteAllConversationsHandler)

	observer.GET("/report",
		s.requireFeature(func(f FeatureFlags) bool { return f.EnableReports }),
		s.reportHandler)

	archive := observer.Group("/archive")
	archive.Use(s.requireFeature(func(f FeatureFlags) bool { return f.EnableArchiveBrowser && s.db != nil }))
	archive.GET("", s.listArchiveHandler)
	archive.GET("/:id", s.getArchivedHandler)
}

// listConversationsHandler lists live conversations, newest first
func (s *Server) listConversationsHandler(c *gin.Context) {
	snapshots, err := s.manager.Snapshots(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	params := GetPaginationParams(c)
	page := Paginate(&params, snapshots)
	SendPaginatedResponse(c, params, page)
}

// getConversationHandler returns score, tier, history and transcript
func (s *Server) getConversationHandler(c *gin.Context) {
	snapshot, err := s.manager.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) deleteConversationHandler(c *gin.Context) {
	id := c.Param("id")
	if err := s.manager.Delete(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	username, _ := auth.GetUsername(c)
	logging.LogConversationEvent("deleted_by_observer", id, map[string]interface{}{
		"observer": username,
	})
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteAllConversationsHandler(c *gin.Context) {
	n, err := s.manager.DeleteAll(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	username, _ := auth.GetUsername(c)
	logging.Info("All conversations deleted", map[string]interface{}{
		"observer": username,
		"count":    n,
	})
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// reportHandler renders the plain-text report of live conversations
func (s *Server) reportHandler(c *gin.Context) {
	report, err := s.manager.Report(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="rapport-report.txt"`)
	c.String(http.StatusOK, report)
}

func (s *Server) listArchiveHandler(c *gin.Context) {
	params := GetPaginationParams(c)
	items, total, err := s.db.ListArchived(c.Request.Context(), params.PageSize, params.CalculateOffset())
	if err != nil {
		c.Error(err)
		return
	}

	params.Total = total
	SendPaginatedResponse(c, params, items)
}

func (s *Server) getArchivedHandler(c *gin.Context) {
	archived, err := s.db.GetArchived(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, archived)
}
