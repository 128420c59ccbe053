package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByCanonicalName(ctx context.Context, db *gorm.DB, canonicalName string) (*BillingProfile, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillingProfile, error)
	List(ctx context.Context, db *gorm.DB) ([]*BillingProfile, error)
	// UpsertByName inserts or replaces the profile holding this canonical
	// name. Ledger customer linkage is preserved on conflict unless the
	// incoming row carries its own.
	UpsertByName(ctx context.Context, db *gorm.DB, profile *BillingProfile) error
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, updates map[string]any) error
}
