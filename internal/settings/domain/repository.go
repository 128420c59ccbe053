package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Get returns the singleton settings row, inserting defaults when
	// the table is empty.
	Get(ctx context.Context, db *gorm.DB) (*Settings, error)
	Update(ctx context.Context, db *gorm.DB, updates map[string]any) (*Settings, error)
}
