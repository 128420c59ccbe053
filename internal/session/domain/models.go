package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status tracks a session from ingestion to its terminal posted state.
type Status string

const (
	StatusPendingReview       Status = "pending_review"
	StatusNeedsReviewDuration Status = "needs_review_duration"
	StatusUnmatchedClient     Status = "unmatched_client"
	StatusApproved            Status = "approved"
	StatusRejected            Status = "rejected"
	StatusPosted              Status = "posted_to_qbo"
	StatusError               Status = "error"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingReview, StatusNeedsReviewDuration, StatusUnmatchedClient,
		StatusApproved, StatusRejected, StatusPosted, StatusError:
		return true
	default:
		return false
	}
}

// Terminal reports whether the session is immutable.
func (s Status) Terminal() bool {
	return s == StatusPosted
}

// Session is one ingested calendar occurrence plus derived billing attributes.
type Session struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	EventID    string       `gorm:"column:event_id;not null;uniqueIndex" json:"event_id"`
	CalendarID string       `gorm:"column:calendar_id" json:"calendar_id,omitempty"`

	Title       string `gorm:"column:title_raw;not null" json:"title"`
	Description string `gorm:"column:description_raw" json:"description,omitempty"`
	SourceURL   string `gorm:"column:source_url" json:"source_url,omitempty"`
	Source      string `gorm:"not null;default:webhook" json:"source"`

	StudentName string    `gorm:"index" json:"student_name"`
	StartTime   time.Time `gorm:"not null;index" json:"start_time"`
	EndTime     time.Time `gorm:"not null" json:"end_time"`

	DurationMinutesRaw float64 `gorm:"column:duration_minutes_raw;not null" json:"duration_minutes_raw"`
	Quantity           float64 `gorm:"not null" json:"quantity"`
	ServiceCode        string  `gorm:"column:service_code" json:"service_code,omitempty"`

	Status Status `gorm:"type:text;not null;index" json:"status"`
	Notes  string `gorm:"column:notes" json:"notes,omitempty"`

	LedgerCustomerID   string `gorm:"column:ledger_customer_id" json:"ledger_customer_id,omitempty"`
	LedgerCustomerName string `gorm:"column:ledger_customer_name" json:"ledger_customer_name,omitempty"`
	LedgerItemID       string `gorm:"column:ledger_item_id" json:"ledger_item_id,omitempty"`
	LedgerInvoiceID    string `gorm:"column:ledger_invoice_id;index" json:"ledger_invoice_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// Posted reports whether the session already carries a ledger invoice.
func (s Session) Posted() bool {
	return s.Status == StatusPosted || s.LedgerInvoiceID != ""
}
