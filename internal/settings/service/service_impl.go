package service

import (
	"context"
	"strings"
	"time"

	"github.com/wunderling/tutorledger/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("settings.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.Get(ctx, s.db)
	if err != nil {
		return domain.Settings{}, err
	}
	return *settings, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (domain.Settings, error) {
	updates := map[string]any{}
	if req.Keyword1 != nil {
		updates["keyword_1"] = strings.TrimSpace(*req.Keyword1)
	}
	if req.Keyword2 != nil {
		updates["keyword_2"] = strings.TrimSpace(*req.Keyword2)
	}
	if req.ItemRef50 != nil {
		updates["item_ref_50"] = strings.TrimSpace(*req.ItemRef50)
	}
	if req.ItemRef90 != nil {
		updates["item_ref_90"] = strings.TrimSpace(*req.ItemRef90)
	}
	if req.Timezone != nil {
		tz := strings.TrimSpace(*req.Timezone)
		if _, err := time.LoadLocation(tz); err != nil {
			return domain.Settings{}, domain.ErrInvalidRequest
		}
		updates["timezone"] = tz
	}
	if req.WeeklyPostDay != nil {
		if *req.WeeklyPostDay < 0 || *req.WeeklyPostDay > 6 {
			return domain.Settings{}, domain.ErrInvalidRequest
		}
		updates["weekly_post_day"] = *req.WeeklyPostDay
	}
	if req.WeeklyPostHour != nil {
		if *req.WeeklyPostHour < 0 || *req.WeeklyPostHour > 23 {
			return domain.Settings{}, domain.ErrInvalidRequest
		}
		updates["weekly_post_hour"] = *req.WeeklyPostHour
	}

	if len(updates) == 0 {
		return s.Get(ctx)
	}

	// Ensure the row exists before updating it.
	if _, err := s.repo.Get(ctx, s.db); err != nil {
		return domain.Settings{}, err
	}

	settings, err := s.repo.Update(ctx, s.db, updates)
	if err != nil {
		return domain.Settings{}, err
	}
	return *settings, nil
}
