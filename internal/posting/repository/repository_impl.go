package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/wunderling/tutorledger/internal/posting/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, run *domain.PostingRun) error {
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PostingRun, error) {
	var run domain.PostingRun
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, limit int) ([]*domain.PostingRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var runs []*domain.PostingRun
	if err := db.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
