package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/wunderling/tutorledger/internal/clock"
	postingdomain "github.com/wunderling/tutorledger/internal/posting/domain"
	settingsdomain "github.com/wunderling/tutorledger/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler configuration is invalid")

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	SettingsSvc settingsdomain.Service
	PostingSvc  postingdomain.Service
	Config      Config `optional:"true"`
}

// Scheduler fires the weekly live posting run at the operator-configured
// weekday and hour, in the operator's timezone. At most one trigger per
// scheduled slot; the posting lock keeps multi-replica deployments at one
// actual run.
type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	settingsSvc settingsdomain.Service
	postingSvc  postingdomain.Service

	lastSlot time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.SettingsSvc == nil || p.PostingSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		clock:       p.Clock,
		settingsSvc: p.SettingsSvc,
		postingSvc:  p.PostingSvc,
	}, nil
}

// RunOnce checks the schedule and fires the posting run when a new slot
// is due. Safe to call as often as the loop likes.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	settings, err := s.settingsSvc.Get(ctx)
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		s.log.Warn("invalid schedule timezone, falling back to UTC",
			zap.String("timezone", settings.Timezone))
		loc = time.UTC
	}

	now := s.clock.Now().In(loc)
	slot := slotStart(now, time.Weekday(settings.WeeklyPostDay), settings.WeeklyPostHour)

	if !slot.After(s.lastSlot) {
		return nil
	}
	if now.Sub(slot) > s.cfg.SlotWindow {
		// The slot passed while we were down. Skip it rather than post a
		// stale batch at a surprising time.
		s.lastSlot = slot
		return nil
	}

	s.lastSlot = slot
	s.log.Info("weekly posting slot due",
		zap.Time("slot", slot),
		zap.String("timezone", loc.String()),
	)

	result, err := s.postingSvc.Run(ctx, postingdomain.RunRequest{
		DryRun:  false,
		Trigger: postingdomain.TriggerScheduled,
	})
	if err != nil {
		if errors.Is(err, postingdomain.ErrRunInProgress) {
			// Another replica won the slot.
			s.log.Info("posting run already in progress, slot handled elsewhere")
			return nil
		}
		return err
	}

	s.log.Info("scheduled posting run finished",
		zap.String("run_id", result.RunID),
		zap.String("status", result.Status),
		zap.Int("sessions_posted", result.SessionsPosted),
	)
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// slotStart returns the most recent occurrence of weekday@hour at or
// before now, in now's location.
func slotStart(now time.Time, weekday time.Weekday, hour int) time.Time {
	daysBack := (int(now.Weekday()) - int(weekday) + 7) % 7
	day := now.AddDate(0, 0, -daysBack)
	slot := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, now.Location())
	if slot.After(now) {
		slot = slot.AddDate(0, 0, -7)
	}
	return slot
}
