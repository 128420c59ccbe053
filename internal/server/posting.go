package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	postingdomain "github.com/wunderling/tutorledger/internal/posting/domain"
	"github.com/wunderling/tutorledger/internal/providers/pdf"
)

func (s *Server) PostApproved(c *gin.Context) {
	dryRun := strings.EqualFold(c.Query("dryRun"), "true")

	result, err := s.postingSvc.Run(c.Request.Context(), postingdomain.RunRequest{
		DryRun:  dryRun,
		Trigger: postingdomain.TriggerManual,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) ListRuns(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError("limit", "invalid_request", "limit must be an integer"))
			return
		}
		limit = parsed
	}

	runs, err := s.postingSvc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) GetRunByID(c *gin.Context) {
	run, err := s.postingSvc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) GetRunReport(c *gin.Context) {
	run, err := s.postingSvc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reader, err := s.pdfProvider.GenerateRunReport(c.Request.Context(), runReportData(run))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="posting-run-`+run.ID.String()+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}

func runReportData(run postingdomain.PostingRun) pdf.RunReportData {
	mode := "live"
	if run.DryRun {
		mode = "dry_run"
	}

	data := pdf.RunReportData{
		RunID:            run.ID.String(),
		Trigger:          string(run.Trigger),
		Mode:             mode,
		Status:           run.Status,
		StartedAt:        run.StartedAt.Format(time.RFC3339),
		FinishedAt:       run.FinishedAt.Format(time.RFC3339),
		SessionsSelected: run.SessionsSelected,
		SessionsPosted:   run.SessionsPosted,
	}

	details := parseRunDetails([]byte(run.Details))
	for _, gr := range details.Groups {
		outcome := "failed"
		if gr.Posted {
			outcome = "posted"
		}
		data.Groups = append(data.Groups, pdf.RunReportGroup{
			CustomerName: gr.CustomerName,
			Students:     strings.Join(gr.StudentNames, ", "),
			Sessions:     len(gr.SessionIDs),
			Amount:       formatCents(gr.AmountCents),
			InvoiceID:    gr.InvoiceID,
			Outcome:      outcome,
		})
	}
	for _, sk := range details.Skipped {
		data.Skipped = append(data.Skipped, pdf.RunReportSkip{
			SessionID:   sk.SessionID,
			StudentName: sk.StudentName,
			Reason:      sk.Reason,
		})
	}

	return data
}

type runDetails struct {
	Groups  []postingdomain.GroupResult    `json:"groups"`
	Skipped []postingdomain.SkippedSession `json:"skipped"`
}

func parseRunDetails(raw []byte) runDetails {
	var details runDetails
	if len(raw) == 0 {
		return details
	}
	// Old or hand-edited rows may hold malformed details; the report
	// still renders its summary header.
	_ = json.Unmarshal(raw, &details)
	return details
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + "$" + strconv.FormatInt(cents/100, 10) + "." + pad2(cents%100)
}

func pad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}
