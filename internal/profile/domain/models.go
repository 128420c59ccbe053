package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingProfile holds the billing terms for one student. At most one
// authoritative profile exists per canonical student name.
type BillingProfile struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	StudentName   string       `gorm:"not null" json:"student_name"`
	CanonicalName string       `gorm:"not null;uniqueIndex" json:"-"`
	ParentNames   string       `json:"parent_names,omitempty"`

	BaseRateCents  int64 `gorm:"not null" json:"base_rate_cents"`
	TravelFeeCents int64 `gorm:"not null;default:0" json:"travel_fee_cents"`

	BillingEmails datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"billing_emails"`

	LedgerCustomerID   string `gorm:"column:ledger_customer_id;index" json:"ledger_customer_id,omitempty"`
	LedgerCustomerName string `gorm:"column:ledger_customer_name" json:"ledger_customer_name,omitempty"`

	SourceRow datatypes.JSONMap `gorm:"type:jsonb" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (BillingProfile) TableName() string { return "billing_profiles" }

// CanonicalName folds a student name into the join key used between
// sessions and billing profiles: lowercase, trimmed, single spaces.
// Applied at both import and lookup so the store never relies on
// backend case folding.
func CanonicalName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
