package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wunderling/tutorledger/internal/observability/metrics"
	profiledomain "github.com/wunderling/tutorledger/internal/profile/domain"
	"github.com/wunderling/tutorledger/internal/rating"
	"github.com/wunderling/tutorledger/internal/session/domain"
	settingsdomain "github.com/wunderling/tutorledger/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	ProfileSvc  profiledomain.Service
	SettingsSvc settingsdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	profileSvc  profiledomain.Service
	settingsSvc settingsdomain.Service
	metrics     *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("session.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		profileSvc:  p.ProfileSvc,
		settingsSvc: p.SettingsSvc,
		metrics:     p.Metrics,
	}
}

// recomputeColumns are the assignments applied when re-ingestion fully
// re-evaluates a session.
var recomputeColumns = []string{
	"calendar_id", "title_raw", "description_raw", "source_url", "source",
	"student_name", "start_time", "end_time", "duration_minutes_raw",
	"quantity", "service_code", "ledger_item_id", "status", "updated_at",
}

// descriptiveColumns are the assignments applied when the session is
// approved: upstream edits land, but neither status nor the reviewed
// student name move.
var descriptiveColumns = []string{
	"calendar_id", "title_raw", "description_raw", "source_url", "source",
	"start_time", "end_time", "duration_minutes_raw",
	"quantity", "service_code", "ledger_item_id", "updated_at",
}

func (s *Service) Ingest(ctx context.Context, req domain.IngestRequest) (domain.IngestResponse, error) {
	if err := validateIngest(req); err != nil {
		return domain.IngestResponse{}, err
	}

	settings, err := s.settingsSvc.Get(ctx)
	if err != nil {
		return domain.IngestResponse{}, err
	}

	minutes := rating.MinutesBetween(req.StartTime, req.EndTime)
	if req.DurationMinutes != nil {
		minutes = *req.DurationMinutes
	}

	quantity := 0.0
	serviceCode := ""
	itemRef := ""
	normalized, normErr := rating.NormalizeDuration(minutes)
	if normErr == nil {
		quantity = normalized.Quantity
		serviceCode = string(normalized.ServiceCode)
		itemRef = settings.ItemRef50
		if normalized.ServiceCode == rating.ServiceCode90 {
			itemRef = settings.ItemRef90
		}
	}

	studentName := domain.ResolveStudentName(req.Title)

	matched := true
	if _, err := s.profileSvc.FindByName(ctx, studentName); err != nil {
		if !errors.Is(err, profiledomain.ErrNotFound) {
			return domain.IngestResponse{}, err
		}
		matched = false
	}

	status := domain.StatusPendingReview
	switch {
	case !matched:
		status = domain.StatusUnmatchedClient
	case normErr != nil:
		status = domain.StatusNeedsReviewDuration
	}

	existing, err := s.repo.FindByEventID(ctx, s.db, req.EventID)
	if err != nil {
		return domain.IngestResponse{}, err
	}

	if existing != nil && existing.Status == domain.StatusPosted {
		// Posted sessions are immutable; webhook replays are safe no-ops.
		return domain.IngestResponse{
			SessionID: existing.ID.String(),
			Status:    existing.Status,
			Message:   "already posted, ignoring",
		}, nil
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "webhook"
	}

	now := time.Now().UTC()
	row := &domain.Session{
		ID:                 s.genID.Generate(),
		EventID:            req.EventID,
		CalendarID:         req.CalendarID,
		Title:              req.Title,
		Description:        req.Description,
		SourceURL:          req.SourceURL,
		Source:             source,
		StudentName:        studentName,
		StartTime:          req.StartTime.UTC(),
		EndTime:            req.EndTime.UTC(),
		DurationMinutesRaw: minutes,
		Quantity:           quantity,
		ServiceCode:        serviceCode,
		LedgerItemID:       itemRef,
		Status:             status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	columns := recomputeColumns
	if existing != nil && existing.Status == domain.StatusApproved {
		// Approval is a human decision; re-ingestion never silently
		// reverts it, and a reviewed student name stays put.
		columns = descriptiveColumns
		status = existing.Status
	}

	if err := s.repo.Upsert(ctx, s.db, row, columns); err != nil {
		return domain.IngestResponse{}, err
	}

	s.metrics.RecordSessionIngested(ctx, string(status))

	resp := domain.IngestResponse{Status: status}
	if existing == nil {
		resp.SessionID = row.ID.String()
		resp.Created = true
		resp.Message = "session created"
	} else {
		resp.SessionID = existing.ID.String()
		resp.Updated = true
		resp.Message = "session updated"
	}

	s.log.Info("session ingested",
		zap.String("event_id", req.EventID),
		zap.String("student", studentName),
		zap.String("status", string(status)),
		zap.Bool("created", resp.Created),
	)

	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Session, error) {
	sessionID, err := parseID(id)
	if err != nil {
		return domain.Session{}, err
	}

	row, err := s.repo.FindByID(ctx, s.db, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if row == nil {
		return domain.Session{}, domain.ErrNotFound
	}
	return *row, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.Session, error) {
	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		sessions = append(sessions, *row)
	}
	return sessions, nil
}

func (s *Service) Approve(ctx context.Context, id string) (domain.Session, error) {
	return s.transition(ctx, id, domain.StatusApproved)
}

func (s *Service) Reject(ctx context.Context, id string) (domain.Session, error) {
	return s.transition(ctx, id, domain.StatusRejected)
}

func (s *Service) transition(ctx context.Context, id string, target domain.Status) (domain.Session, error) {
	sessionID, err := parseID(id)
	if err != nil {
		return domain.Session{}, err
	}

	row, err := s.repo.FindByID(ctx, s.db, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if row == nil {
		return domain.Session{}, domain.ErrNotFound
	}
	if row.Status == domain.StatusPosted {
		return domain.Session{}, domain.ErrInvalidTransition
	}

	if err := s.repo.Update(ctx, s.db, sessionID, map[string]any{"status": target}); err != nil {
		return domain.Session{}, err
	}

	row.Status = target
	return *row, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateRequest) (domain.Session, error) {
	sessionID, err := parseID(id)
	if err != nil {
		return domain.Session{}, err
	}

	row, err := s.repo.FindByID(ctx, s.db, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if row == nil {
		return domain.Session{}, domain.ErrNotFound
	}
	if row.Status == domain.StatusPosted {
		return domain.Session{}, domain.ErrImmutableRecord
	}

	updates := map[string]any{}
	if req.StudentName != nil {
		updates["student_name"] = strings.TrimSpace(*req.StudentName)
		row.StudentName = strings.TrimSpace(*req.StudentName)
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
		row.Notes = *req.Notes
	}
	if req.Status != nil {
		next := domain.Status(strings.TrimSpace(*req.Status))
		if next == domain.StatusPosted {
			// Posted is only ever set by a successful ledger submission.
			return domain.Session{}, domain.ErrInvalidTransition
		}
		if !next.Valid() {
			return domain.Session{}, domain.ErrInvalidStatus
		}
		updates["status"] = next
		row.Status = next
	}

	if len(updates) == 0 {
		return *row, nil
	}

	if err := s.repo.Update(ctx, s.db, sessionID, updates); err != nil {
		return domain.Session{}, err
	}
	return *row, nil
}

func validateIngest(req domain.IngestRequest) error {
	if strings.TrimSpace(req.EventID) == "" ||
		strings.TrimSpace(req.Title) == "" ||
		req.StartTime.IsZero() ||
		req.EndTime.IsZero() {
		return domain.ErrInvalidRequest
	}
	if req.EndTime.Before(req.StartTime) {
		return domain.ErrInvalidRequest
	}
	return nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrNotFound
	}
	return id, nil
}
