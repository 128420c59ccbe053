package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wunderling/tutorledger/internal/cache"
	"github.com/wunderling/tutorledger/internal/profile/domain"
	"github.com/wunderling/tutorledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Cache cache.ProfileResolverCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	cache cache.ProfileResolverCache
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("profile.service"),
		genID: p.GenID,
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func (s *Service) FindByName(ctx context.Context, studentName string) (domain.BillingProfile, error) {
	canonical := domain.CanonicalName(studentName)
	if canonical == "" {
		return domain.BillingProfile{}, domain.ErrNotFound
	}

	if s.cache != nil {
		if cached, ok := s.cache.GetProfile(canonical); ok {
			return cached, nil
		}
	}

	profile, err := s.repo.FindByCanonicalName(ctx, s.db, canonical)
	if err != nil {
		return domain.BillingProfile{}, err
	}
	if profile == nil {
		return domain.BillingProfile{}, domain.ErrNotFound
	}

	if s.cache != nil {
		s.cache.SetProfile(canonical, *profile)
	}
	return *profile, nil
}

func (s *Service) List(ctx context.Context) ([]domain.BillingProfile, error) {
	rows, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	profiles := make([]domain.BillingProfile, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		profiles = append(profiles, *row)
	}
	return profiles, nil
}

func (s *Service) UpdateByID(ctx context.Context, id string, req domain.UpdateProfileRequest) (domain.BillingProfile, error) {
	profileID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || profileID == 0 {
		return domain.BillingProfile{}, domain.ErrNotFound
	}

	updates := map[string]any{}
	if req.StudentName != nil {
		name := strings.TrimSpace(*req.StudentName)
		if name == "" {
			return domain.BillingProfile{}, domain.ErrInvalidRequest
		}
		updates["student_name"] = name
		updates["canonical_name"] = domain.CanonicalName(name)
	}
	if req.ParentNames != nil {
		updates["parent_names"] = strings.TrimSpace(*req.ParentNames)
	}
	if req.BaseRateCents != nil {
		if *req.BaseRateCents < 0 {
			return domain.BillingProfile{}, domain.ErrInvalidRequest
		}
		updates["base_rate_cents"] = *req.BaseRateCents
	}
	if req.TravelFeeCents != nil {
		if *req.TravelFeeCents < 0 {
			return domain.BillingProfile{}, domain.ErrInvalidRequest
		}
		updates["travel_fee_cents"] = *req.TravelFeeCents
	}
	if req.BillingEmails != nil {
		updates["billing_emails"] = datatypes.NewJSONSlice(req.BillingEmails)
	}
	if req.LedgerCustomerID != nil {
		updates["ledger_customer_id"] = strings.TrimSpace(*req.LedgerCustomerID)
	}
	if req.LedgerCustomerName != nil {
		updates["ledger_customer_name"] = strings.TrimSpace(*req.LedgerCustomerName)
	}

	existing, err := s.repo.FindByID(ctx, s.db, profileID)
	if err != nil {
		return domain.BillingProfile{}, err
	}
	if existing == nil {
		return domain.BillingProfile{}, domain.ErrNotFound
	}

	if len(updates) > 0 {
		if err := s.repo.Update(ctx, s.db, profileID, updates); err != nil {
			if db.IsDuplicateKeyErr(err) {
				// Renamed onto another student's profile.
				return domain.BillingProfile{}, domain.ErrInvalidRequest
			}
			return domain.BillingProfile{}, err
		}
	}

	profile, err := s.repo.FindByID(ctx, s.db, profileID)
	if err != nil {
		return domain.BillingProfile{}, err
	}
	if profile == nil {
		return domain.BillingProfile{}, domain.ErrNotFound
	}

	if s.cache != nil {
		s.cache.Invalidate(existing.CanonicalName)
		s.cache.Invalidate(profile.CanonicalName)
	}
	return *profile, nil
}

func (s *Service) ImportRows(ctx context.Context, rows []domain.ImportRow) (domain.ImportResult, error) {
	result := domain.ImportResult{Processed: len(rows)}

	for i, row := range rows {
		parsed := domain.ParseImportRow(row)
		if parsed == nil {
			result.Skipped++
			continue
		}

		sourceRow := datatypes.JSONMap{}
		for k, v := range parsed.Raw {
			sourceRow[k] = v
		}

		now := time.Now().UTC()
		profile := &domain.BillingProfile{
			ID:             s.genID.Generate(),
			StudentName:    parsed.StudentName,
			CanonicalName:  domain.CanonicalName(parsed.StudentName),
			ParentNames:    parsed.ParentNames,
			BaseRateCents:  parsed.BaseRateCents,
			TravelFeeCents: parsed.TravelFeeCents,
			BillingEmails:  datatypes.NewJSONSlice(parsed.BillingEmails),
			SourceRow:      sourceRow,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := s.repo.UpsertByName(ctx, s.db, profile); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d (%s): %v", i, parsed.StudentName, err))
			continue
		}
		if s.cache != nil {
			s.cache.Invalidate(profile.CanonicalName)
		}
		result.Upserted++
	}

	s.log.Info("profiles imported",
		zap.Int("processed", result.Processed),
		zap.Int("upserted", result.Upserted),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)

	return result, nil
}
