package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	sessiondomain "github.com/wunderling/tutorledger/internal/session/domain"
)

func (s *Server) ListSessions(c *gin.Context) {
	filter := sessiondomain.ListFilter{
		StudentName: strings.TrimSpace(c.Query("student")),
	}

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		parsed := sessiondomain.Status(status)
		if !parsed.Valid() {
			AbortWithError(c, sessiondomain.ErrInvalidStatus)
			return
		}
		filter.Status = parsed
	}

	var err error
	if filter.From, err = parseTimeQuery(c, "from"); err != nil {
		AbortWithError(c, newValidationError("from", "invalid_request", "invalid from timestamp"))
		return
	}
	if filter.To, err = parseTimeQuery(c, "to"); err != nil {
		AbortWithError(c, newValidationError("to", "invalid_request", "invalid to timestamp"))
		return
	}

	sessions, err := s.sessionSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) GetSessionByID(c *gin.Context) {
	session, err := s.sessionSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) ApproveSession(c *gin.Context) {
	session, err := s.sessionSvc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) RejectSession(c *gin.Context) {
	session, err := s.sessionSvc.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) UpdateSession(c *gin.Context) {
	var req sessiondomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", "malformed update payload"))
		return
	}

	session, err := s.sessionSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
