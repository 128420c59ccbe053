package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, run *PostingRun) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PostingRun, error)
	// List returns runs newest first.
	List(ctx context.Context, db *gorm.DB, limit int) ([]*PostingRun, error)
}
