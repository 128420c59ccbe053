package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	sessiondomain "github.com/wunderling/tutorledger/internal/session/domain"
)

func (s *Server) IngestSession(c *gin.Context) {
	var req sessiondomain.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", "malformed ingest payload"))
		return
	}

	if !s.allowIngest(c, req.CalendarID) {
		return
	}

	resp, err := s.sessionSvc.Ingest(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}
