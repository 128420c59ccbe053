package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// ImportRow is one row of the bulk profile import in its raw form.
type ImportRow struct {
	StudentName string            `json:"student_name"`
	ParentNames string            `json:"parent_names"`
	RateText    string            `json:"rate_text"`
	EmailText   string            `json:"email_text"`
	Raw         map[string]string `json:"raw,omitempty"`
}

// ParsedProfile is the normalized output of one import row.
type ParsedProfile struct {
	StudentName    string
	ParentNames    string
	BaseRateCents  int64
	TravelFeeCents int64
	BillingEmails  []string
	Raw            map[string]string
}

var (
	firstNumberRe = regexp.MustCompile(`\d+`)
	travelFeeRe   = regexp.MustCompile(`travel fee\D*(\d+)`)
	emailRe       = regexp.MustCompile(`[a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+\.[a-zA-Z0-9_-]+`)
)

// ParseRateString extracts the base rate and an optional travel fee from
// free-text like "$200 + $25 travel fee". Values outside sane hourly-rate
// bounds are ignored rather than imported wrong.
func ParseRateString(rateText string) (baseRateCents, travelFeeCents int64) {
	clean := strings.ReplaceAll(strings.ToLower(rateText), "$", "")
	if clean == "" {
		return 0, 0
	}

	if m := firstNumberRe.FindString(clean); m != "" {
		if v, err := strconv.ParseInt(m, 10, 64); err == nil && v > 0 && v < 1000 {
			baseRateCents = v * 100
		}
	}

	if strings.Contains(clean, "travel fee") {
		if m := travelFeeRe.FindStringSubmatch(clean); len(m) == 2 {
			if v, err := strconv.ParseInt(m[1], 10, 64); err == nil && v > 0 && v < 500 {
				travelFeeCents = v * 100
			}
		}
	}

	return baseRateCents, travelFeeCents
}

// ParseEmails extracts deduplicated email addresses from free text.
func ParseEmails(emailText string) []string {
	matches := emailRe.FindAllString(emailText, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		key := strings.ToLower(m)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

// ParseImportRow normalizes one import row. Rows without a student name
// are skipped (nil result).
func ParseImportRow(row ImportRow) *ParsedProfile {
	name := strings.TrimSpace(row.StudentName)
	if name == "" {
		return nil
	}

	base, travel := ParseRateString(row.RateText)

	return &ParsedProfile{
		StudentName:    name,
		ParentNames:    strings.TrimSpace(row.ParentNames),
		BaseRateCents:  base,
		TravelFeeCents: travel,
		BillingEmails:  ParseEmails(row.EmailText),
		Raw:            row.Raw,
	}
}
