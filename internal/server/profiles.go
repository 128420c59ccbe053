package server

import (
	"encoding/csv"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	profiledomain "github.com/wunderling/tutorledger/internal/profile/domain"
)

func (s *Server) ListProfiles(c *gin.Context) {
	profiles, err := s.profileSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

func (s *Server) UpdateProfile(c *gin.Context) {
	var req profiledomain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_request", "malformed profile payload"))
		return
	}

	profile, err := s.profileSvc.UpdateByID(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// ImportProfiles accepts either a CSV upload (multipart field "file") or
// a JSON body of rows.
func (s *Server) ImportProfiles(c *gin.Context) {
	rows, err := s.readImportRows(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if len(rows) == 0 {
		AbortWithError(c, newValidationError("file", "invalid_request", "no importable rows"))
		return
	}

	result, err := s.profileSvc.ImportRows(c.Request.Context(), rows)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) readImportRows(c *gin.Context) ([]profiledomain.ImportRow, error) {
	if strings.Contains(c.ContentType(), "application/json") {
		var payload struct {
			Rows []profiledomain.ImportRow `json:"rows"`
		}
		if err := c.ShouldBindJSON(&payload); err != nil {
			return nil, newValidationError("body", "invalid_request", "malformed import payload")
		}
		return payload.Rows, nil
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, newValidationError("file", "invalid_request", "missing csv upload")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseCSVRows(file)
}

// Column aliases accepted in CSV headers, lowercased.
var csvColumns = map[string]string{
	"student":       "student",
	"student name":  "student",
	"name":          "student",
	"parent":        "parent",
	"parents":       "parent",
	"parent names":  "parent",
	"rate":          "rate",
	"rates":         "rate",
	"billing rate":  "rate",
	"email":         "email",
	"emails":        "email",
	"billing email": "email",
}

func parseCSVRows(r io.Reader) ([]profiledomain.ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, newValidationError("file", "invalid_request", "malformed csv")
	}
	if len(records) < 2 {
		return nil, nil
	}

	cols := map[string]int{}
	for i, header := range records[0] {
		if key, ok := csvColumns[strings.ToLower(strings.TrimSpace(header))]; ok {
			if _, seen := cols[key]; !seen {
				cols[key] = i
			}
		}
	}
	if _, ok := cols["student"]; !ok {
		return nil, newValidationError("file", "invalid_request", "csv is missing a student column")
	}

	field := func(record []string, key string) string {
		idx, ok := cols[key]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	rows := make([]profiledomain.ImportRow, 0, len(records)-1)
	for _, record := range records[1:] {
		raw := map[string]string{}
		for i, header := range records[0] {
			if i < len(record) {
				raw[strings.TrimSpace(header)] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, profiledomain.ImportRow{
			StudentName: field(record, "student"),
			ParentNames: field(record, "parent"),
			RateText:    field(record, "rate"),
			EmailText:   field(record, "email"),
			Raw:         raw,
		})
	}
	return rows, nil
}
