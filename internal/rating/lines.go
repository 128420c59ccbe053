package rating

import (
	"fmt"
	"strings"

	profiledomain "github.com/wunderling/tutorledger/internal/profile/domain"
	sessiondomain "github.com/wunderling/tutorledger/internal/session/domain"
	settingsdomain "github.com/wunderling/tutorledger/internal/settings/domain"
)

// Line categories on the external invoice.
const (
	CategoryTherapy = "therapy"
	CategoryTravel  = "travel"
)

// InvoiceLine is one priced line item. Lines are ephemeral: rebuilt from
// the session and profile on every posting attempt, never persisted.
type InvoiceLine struct {
	Description    string
	Category       string
	ItemRef        string
	Quantity       float64
	UnitPriceCents int64
	AmountCents    int64
}

// BuildInvoiceLines prices one session against its billing profile.
// The primary service line always exists; a travel line is appended when
// the profile carries a travel fee.
func BuildInvoiceLines(sess sessiondomain.Session, prof profiledomain.BillingProfile, set settingsdomain.Settings) []InvoiceLine {
	category := "Educational Therapy"
	if strings.Contains(strings.ToLower(sess.Title), "consult") {
		category = "Consult"
	}

	itemRef := set.ItemRef50
	if ServiceCode(sess.ServiceCode) == ServiceCode90 {
		itemRef = set.ItemRef90
	}
	if sess.LedgerItemID != "" {
		itemRef = sess.LedgerItemID
	}

	date := sess.StartTime
	lines := []InvoiceLine{{
		Description:    fmt.Sprintf("%s: %s (%d/%d)", category, sess.Title, int(date.Month()), date.Day()),
		Category:       CategoryTherapy,
		ItemRef:        itemRef,
		Quantity:       sess.Quantity,
		UnitPriceCents: prof.BaseRateCents,
		AmountCents:    amountCents(prof.BaseRateCents, sess.Quantity),
	}}

	if prof.TravelFeeCents > 0 {
		lines = append(lines, InvoiceLine{
			Description:    fmt.Sprintf("Travel Fee - %s (%d/%d/%d)", sess.Title, int(date.Month()), date.Day(), date.Year()),
			Category:       CategoryTravel,
			ItemRef:        itemRef,
			Quantity:       1,
			UnitPriceCents: prof.TravelFeeCents,
			AmountCents:    prof.TravelFeeCents,
		})
	}

	return lines
}

// amountCents computes the line total in minor units. The external
// protocol expects total amounts, not just unit prices.
func amountCents(unitPriceCents int64, quantity float64) int64 {
	return int64(float64(unitPriceCents)*quantity + 0.5)
}
