package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wunderling/tutorledger/internal/profile/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByCanonicalName(ctx context.Context, db *gorm.DB, canonicalName string) (*domain.BillingProfile, error) {
	var profile domain.BillingProfile
	err := db.WithContext(ctx).
		Where("canonical_name = ?", canonicalName).
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BillingProfile, error) {
	var profile domain.BillingProfile
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]*domain.BillingProfile, error) {
	var profiles []*domain.BillingProfile
	if err := db.WithContext(ctx).
		Order("student_name asc").
		Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *repo) UpsertByName(ctx context.Context, db *gorm.DB, profile *domain.BillingProfile) error {
	assignments := map[string]any{
		"student_name":     profile.StudentName,
		"parent_names":     profile.ParentNames,
		"base_rate_cents":  profile.BaseRateCents,
		"travel_fee_cents": profile.TravelFeeCents,
		"billing_emails":   profile.BillingEmails,
		"source_row":       profile.SourceRow,
		"updated_at":       time.Now().UTC(),
	}
	// An import without ledger linkage must not sever one a previous
	// import or the posting pipeline already established.
	if profile.LedgerCustomerID != "" {
		assignments["ledger_customer_id"] = profile.LedgerCustomerID
		assignments["ledger_customer_name"] = profile.LedgerCustomerName
	}

	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "canonical_name"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(profile).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	tx := db.WithContext(ctx).
		Model(&domain.BillingProfile{}).
		Where("id = ?", id).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
