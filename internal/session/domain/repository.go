package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the session or, when the event id already exists,
	// updates the provided columns atomically. Returns the stored row.
	Upsert(ctx context.Context, db *gorm.DB, session *Session, columns []string) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Session, error)
	FindByEventID(ctx context.Context, db *gorm.DB, eventID string) (*Session, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Session, error)
	// ListPostable returns approved sessions with no ledger invoice attached,
	// ordered by start time ascending.
	ListPostable(ctx context.Context, db *gorm.DB) ([]*Session, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, updates map[string]any) error
	// MarkPosted flips every given session to the posted status with the
	// shared invoice id inside one transaction.
	MarkPosted(ctx context.Context, db *gorm.DB, ids []snowflake.ID, invoiceID, customerID, customerName string) error
}
