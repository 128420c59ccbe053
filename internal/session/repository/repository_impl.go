package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wunderling/tutorledger/internal/session/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Upsert is the ingestion unit of atomicity: concurrent deliveries of the
// same event id resolve through the uniqueness constraint, never through
// a read-modify-write race.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, session *domain.Session, columns []string) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(session).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Session, error) {
	var session domain.Session
	err := db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) FindByEventID(ctx context.Context, db *gorm.DB, eventID string) (*domain.Session, error) {
	var session domain.Session
	err := db.WithContext(ctx).First(&session, "event_id = ?", eventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Session, error) {
	stmt := db.WithContext(ctx).Model(&domain.Session{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.StudentName != "" {
		stmt = stmt.Where("student_name = ?", filter.StudentName)
	}
	if filter.From != nil {
		stmt = stmt.Where("start_time >= ?", *filter.From)
	}
	if filter.To != nil {
		stmt = stmt.Where("start_time <= ?", *filter.To)
	}

	var sessions []*domain.Session
	if err := stmt.Order("start_time asc, id asc").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repo) ListPostable(ctx context.Context, db *gorm.DB) ([]*domain.Session, error) {
	var sessions []*domain.Session
	err := db.WithContext(ctx).
		Where("status = ?", domain.StatusApproved).
		Where("ledger_invoice_id = '' OR ledger_invoice_id IS NULL").
		Order("start_time asc, id asc").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	result := db.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) MarkPosted(ctx context.Context, db *gorm.DB, ids []snowflake.ID, invoiceID, customerID, customerName string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&domain.Session{}).
			Where("id IN ?", ids).
			Where("status = ?", domain.StatusApproved).
			Updates(map[string]any{
				"status":               domain.StatusPosted,
				"ledger_invoice_id":    invoiceID,
				"ledger_customer_id":   customerID,
				"ledger_customer_name": customerName,
				"updated_at":           time.Now().UTC(),
			}).Error
	})
}
