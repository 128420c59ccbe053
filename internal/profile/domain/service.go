package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("profile_not_found")
	ErrInvalidRequest = errors.New("invalid_profile_request")
)

// UpdateProfileRequest carries an admin edit. Nil fields are left unchanged.
type UpdateProfileRequest struct {
	StudentName        *string  `json:"student_name"`
	ParentNames        *string  `json:"parent_names"`
	BaseRateCents      *int64   `json:"base_rate_cents"`
	TravelFeeCents     *int64   `json:"travel_fee_cents"`
	BillingEmails      []string `json:"billing_emails"`
	LedgerCustomerID   *string  `json:"ledger_customer_id"`
	LedgerCustomerName *string  `json:"ledger_customer_name"`
}

// ImportResult summarizes one bulk import.
type ImportResult struct {
	Processed int      `json:"processed"`
	Upserted  int      `json:"upserted"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

type Service interface {
	// FindByName looks up the authoritative profile for a student name,
	// case-insensitively. Returns ErrNotFound when no profile matches.
	FindByName(ctx context.Context, studentName string) (BillingProfile, error)
	List(ctx context.Context) ([]BillingProfile, error)
	UpdateByID(ctx context.Context, id string, req UpdateProfileRequest) (BillingProfile, error)
	// ImportRows upserts profiles keyed by canonical student name.
	// Row failures are collected, not fatal.
	ImportRows(ctx context.Context, rows []ImportRow) (ImportResult, error)
}
