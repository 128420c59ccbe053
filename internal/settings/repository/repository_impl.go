package repository

import (
	"context"
	"time"

	"github.com/wunderling/tutorledger/internal/settings/domain"
	"gorm.io/gorm"
)

const singletonID = 1

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB) (*domain.Settings, error) {
	settings := domain.Settings{
		ID:             singletonID,
		Timezone:       "America/Los_Angeles",
		WeeklyPostDay:  5,
		WeeklyPostHour: 18,
	}
	err := db.WithContext(ctx).
		Where("id = ?", singletonID).
		Attrs(settings).
		FirstOrCreate(&settings).Error
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, updates map[string]any) (*domain.Settings, error) {
	updates["updated_at"] = time.Now().UTC()
	err := db.WithContext(ctx).
		Model(&domain.Settings{}).
		Where("id = ?", singletonID).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}

	var settings domain.Settings
	if err := db.WithContext(ctx).
		Where("id = ?", singletonID).
		First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}
