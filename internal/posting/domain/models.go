package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var (
	ErrRunNotFound   = errors.New("posting_run_not_found")
	ErrRunInProgress = errors.New("posting_run_in_progress")
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Run outcomes.
const (
	RunStatusCompleted   = "completed"
	RunStatusWithErrors  = "completed_with_errors"
	RunStatusNoSelection = "nothing_to_post"
)

// PostingRun is the persisted log of one batch run. Details holds the
// per-group results as JSON for later inspection and reporting.
type PostingRun struct {
	ID      snowflake.ID `gorm:"primaryKey" json:"id"`
	DryRun  bool         `gorm:"not null" json:"dry_run"`
	Trigger Trigger      `gorm:"not null" json:"trigger"`
	Status  string       `gorm:"not null" json:"status"`

	SessionsSelected int `gorm:"not null" json:"sessions_selected"`
	SessionsPosted   int `gorm:"not null" json:"sessions_posted"`
	GroupsTotal      int `gorm:"not null" json:"groups_total"`
	GroupsPosted     int `gorm:"not null" json:"groups_posted"`
	GroupsFailed     int `gorm:"not null" json:"groups_failed"`

	Details datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty"`

	StartedAt  time.Time `gorm:"not null" json:"started_at"`
	FinishedAt time.Time `gorm:"not null" json:"finished_at"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (PostingRun) TableName() string { return "posting_runs" }

// GroupResult is the outcome for one customer's invoice in a run.
type GroupResult struct {
	CustomerID   string   `json:"customer_id,omitempty"`
	CustomerName string   `json:"customer_name,omitempty"`
	StudentNames []string `json:"student_names"`
	SessionIDs   []string `json:"session_ids"`
	LineCount    int      `json:"line_count"`
	AmountCents  int64    `json:"amount_cents"`
	InvoiceID    string   `json:"invoice_id,omitempty"`
	DocNumber    string   `json:"doc_number,omitempty"`
	Posted       bool     `json:"posted"`
	Error        string   `json:"error,omitempty"`
}

// SkippedSession is a selected session that could not join any group.
type SkippedSession struct {
	SessionID   string `json:"session_id"`
	StudentName string `json:"student_name"`
	Reason      string `json:"reason"`
}

// RunResult is the full report of one run, dry or live.
type RunResult struct {
	RunID            string           `json:"run_id,omitempty"`
	DryRun           bool             `json:"dry_run"`
	Trigger          Trigger          `json:"trigger"`
	Status           string           `json:"status"`
	SessionsSelected int              `json:"sessions_selected"`
	SessionsPosted   int              `json:"sessions_posted"`
	Groups           []GroupResult    `json:"groups"`
	Skipped          []SkippedSession `json:"skipped,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`
}

// RunRequest starts one batch run.
type RunRequest struct {
	DryRun  bool
	Trigger Trigger
}

type Service interface {
	// Run selects approved unposted sessions, groups them per customer
	// and submits one invoice per group. Dry runs compute the identical
	// report without touching sessions or the accounting service.
	Run(ctx context.Context, req RunRequest) (RunResult, error)
	ListRuns(ctx context.Context, limit int) ([]PostingRun, error)
	GetRun(ctx context.Context, id string) (PostingRun, error)
}
