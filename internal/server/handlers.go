package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shubh-37/social-autoreply/internal/pipeline"
)

const (
	defaultLogLimit         = 50
	maxLogLimit             = 200
	defaultInteractionLimit = 20
	maxInteractionLimit     = 100
)

func (s *Server) healthCheck(c *gin.Context) {
	if s.deps.Health != nil {
		if err := s.deps.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "autoreply"})
}

func (s *Server) runAccount(c *gin.Context) {
	result, err := s.deps.Runner.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) previewAccount(c *gin.Context) {
	result, err := s.deps.Runner.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type automationRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) setAutomation(c *gin.Context) {
	var req automationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"enabled\": true|false}"})
		return
	}

	id := c.Param("id")
	if err := s.deps.Accounts.SetAutomation(c.Request.Context(), id, *req.Enabled); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "automated": *req.Enabled})
}

// accountParam returns the :id path parameter, answering 404 when it cannot
// name an account
func (s *Server) accountParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		s.writeError(c, pipeline.ErrAccountNotFound)
		return "", false
	}
	return id, true
}

func (s *Server) accountLogs(c *gin.Context) {
	id, ok := s.accountParam(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", defaultLogLimit, 1, maxLogLimit)
	logs, err := s.deps.Logs.Recent(c.Request.Context(), id, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (s *Server) accountInteractions(c *gin.Context) {
	id, ok := s.accountParam(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", defaultInteractionLimit, 1, maxInteractionLimit)
	offset := queryInt(c, "offset", 0, 0, -1)
	interactions, err := s.deps.Interactions.RecentReplied(c.Request.Context(), id, limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"interactions": interactions})
}

func (s *Server) runAll(c *gin.Context) {
	summary, err := s.deps.Fleet.RunAll(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) cleanup(c *gin.Context) {
	ctx := c.Request.Context()
	now := s.cfg.Now()

	stale, err := s.deps.Interactions.DeleteStaleUnreplied(ctx, "", now.Add(-s.cfg.StaleAfter))
	if err != nil {
		s.writeError(c, err)
		return
	}
	logs, err := s.deps.Logs.DeleteBefore(ctx, now.Add(-s.cfg.LogRetention))
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.deps.Logger.WithFields(logrus.Fields{
		"stale_interactions": stale,
		"logs":               logs,
	}).Info("Cleanup completed")
	c.JSON(http.StatusOK, gin.H{"deletedInteractions": stale, "deletedLogs": logs})
}

// writeError maps the pipeline error taxonomy onto HTTP statuses
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		cfgErr   *pipeline.ConfigError
		authErr  *pipeline.AuthError
		stageErr *pipeline.StageError
	)

	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}
	switch {
	case errors.Is(err, pipeline.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.As(err, &cfgErr):
		status = http.StatusBadRequest
		body["field"] = cfgErr.Field
	case errors.As(err, &authErr):
		status = http.StatusUnauthorized
		body["platform"] = authErr.Platform
	case errors.As(err, &stageErr):
		status = http.StatusBadGateway
		body["stage"] = stageErr.Stage
	}

	if status == http.StatusInternalServerError {
		s.deps.Logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	}
	c.JSON(status, body)
}

// queryInt reads an integer query parameter clamped to [floor, ceiling].
// ceiling < 0 means no cap; unparseable or negative values fall back to def.
func queryInt(c *gin.Context, key string, def, floor, ceiling int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if n < floor {
		return floor
	}
	if ceiling >= 0 && n > ceiling {
		return ceiling
	}
	return n
}
