package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("session_not_found")
	ErrInvalidRequest    = errors.New("invalid_request")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrImmutableRecord   = errors.New("immutable_record")
)

// IngestRequest carries one raw calendar event delivery.
type IngestRequest struct {
	EventID         string    `json:"event_id"`
	CalendarID      string    `json:"calendar_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes *float64  `json:"duration_minutes"`
	SourceURL       string    `json:"source_url"`
	Source          string    `json:"source"`
}

// IngestResponse reports the outcome of one ingestion.
type IngestResponse struct {
	SessionID string `json:"session_id"`
	Created   bool   `json:"created"`
	Updated   bool   `json:"updated"`
	Status    Status `json:"status"`
	Message   string `json:"message"`
}

// UpdateRequest carries a human edit. Nil fields are left unchanged.
type UpdateRequest struct {
	StudentName *string `json:"student_name"`
	Notes       *string `json:"notes"`
	Status      *string `json:"status"`
}

// ListFilter narrows session listings.
type ListFilter struct {
	Status      Status
	StudentName string
	From        *time.Time
	To          *time.Time
}

type Service interface {
	Ingest(ctx context.Context, req IngestRequest) (IngestResponse, error)
	GetByID(ctx context.Context, id string) (Session, error)
	List(ctx context.Context, filter ListFilter) ([]Session, error)
	Approve(ctx context.Context, id string) (Session, error)
	Reject(ctx context.Context, id string) (Session, error)
	Update(ctx context.Context, id string, req UpdateRequest) (Session, error)
}
