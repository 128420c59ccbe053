package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/wunderling/tutorledger/internal/clock"
	"github.com/wunderling/tutorledger/internal/config"
	ledgerdomain "github.com/wunderling/tutorledger/internal/ledger/domain"
	"github.com/wunderling/tutorledger/internal/observability/metrics"
	"github.com/wunderling/tutorledger/internal/posting/domain"
	profiledomain "github.com/wunderling/tutorledger/internal/profile/domain"
	"github.com/wunderling/tutorledger/internal/ratelimit"
	"github.com/wunderling/tutorledger/internal/rating"
	sessiondomain "github.com/wunderling/tutorledger/internal/session/domain"
	settingsdomain "github.com/wunderling/tutorledger/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config      config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Repo        domain.Repository
	Sessions    sessiondomain.Repository
	ProfileSvc  profiledomain.Service
	ProfileRepo profiledomain.Repository
	SettingsSvc settingsdomain.Service
	Ledger      ledgerdomain.Client
	Limiter     *ratelimit.IngestLimiter `optional:"true"`
	Metrics     *metrics.Metrics         `optional:"true"`
	Notifier    domain.Notifier          `optional:"true"`
}

type Service struct {
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	repo        domain.Repository
	sessions    sessiondomain.Repository
	profileSvc  profiledomain.Service
	profileRepo profiledomain.Repository
	settingsSvc settingsdomain.Service
	ledger      ledgerdomain.Client
	limiter     *ratelimit.IngestLimiter
	metrics     *metrics.Metrics
	notifier    domain.Notifier
}

func New(p Params) domain.Service {
	return &Service{
		cfg:         p.Config,
		db:          p.DB,
		log:         p.Log.Named("posting.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		repo:        p.Repo,
		sessions:    p.Sessions,
		profileSvc:  p.ProfileSvc,
		profileRepo: p.ProfileRepo,
		settingsSvc: p.SettingsSvc,
		ledger:      p.Ledger,
		limiter:     p.Limiter,
		metrics:     p.Metrics,
		notifier:    p.Notifier,
	}
}

func (s *Service) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	if req.Trigger == "" {
		req.Trigger = domain.TriggerManual
	}

	if !req.DryRun {
		token, acquired, err := s.limiter.TryPostingLock(ctx)
		if err != nil {
			return domain.RunResult{}, err
		}
		if !acquired {
			return domain.RunResult{}, domain.ErrRunInProgress
		}
		defer func() {
			if err := s.limiter.ReleasePostingLock(ctx, token); err != nil {
				s.log.Warn("posting lock release failed", zap.Error(err))
			}
		}()
	}

	result := domain.RunResult{
		DryRun:    req.DryRun,
		Trigger:   req.Trigger,
		StartedAt: s.clock.Now(),
	}

	settings, err := s.settingsSvc.Get(ctx)
	if err != nil {
		return domain.RunResult{}, err
	}

	rows, err := s.sessions.ListPostable(ctx, s.db)
	if err != nil {
		return domain.RunResult{}, err
	}
	result.SessionsSelected = len(rows)

	resolved := make([]resolvedSession, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		entry, skip := s.resolve(ctx, *row, req.DryRun)
		if skip != nil {
			result.Skipped = append(result.Skipped, *skip)
			continue
		}
		resolved = append(resolved, entry)
	}

	for _, g := range buildGroups(resolved) {
		result.Groups = append(result.Groups, s.submitGroup(ctx, g, settings, req.DryRun))
	}

	for _, gr := range result.Groups {
		if gr.Posted {
			result.SessionsPosted += len(gr.SessionIDs)
		}
	}
	result.Status = runStatus(result)
	result.FinishedAt = s.clock.Now()

	if !req.DryRun {
		run := s.buildRun(result)
		if err := s.repo.Create(ctx, s.db, run); err != nil {
			s.log.Error("posting run log write failed", zap.Error(err))
		} else {
			result.RunID = run.ID.String()
		}

		s.metrics.RecordPostingRun(ctx, "live", result.Status)
		s.metrics.RecordSessionsPosted(ctx, result.SessionsPosted)

		if s.notifier != nil {
			if err := s.notifier.NotifyRunCompleted(ctx, result); err != nil {
				s.log.Warn("run notification failed", zap.Error(err))
			}
		}
	} else {
		s.metrics.RecordPostingRun(ctx, "dry_run", result.Status)
	}

	s.log.Info("posting run finished",
		zap.Bool("dry_run", req.DryRun),
		zap.String("trigger", string(req.Trigger)),
		zap.String("status", result.Status),
		zap.Int("sessions_selected", result.SessionsSelected),
		zap.Int("sessions_posted", result.SessionsPosted),
		zap.Int("groups", len(result.Groups)),
		zap.Int("skipped", len(result.Skipped)),
	)

	return result, nil
}

// resolve finds the billing profile and ledger customer for one session.
// Live runs may consult the accounting service for an unlinked customer
// and flip hopeless sessions back to review; dry runs only read local
// state.
func (s *Service) resolve(ctx context.Context, sess sessiondomain.Session, dryRun bool) (resolvedSession, *domain.SkippedSession) {
	skip := func(reason string) (resolvedSession, *domain.SkippedSession) {
		if !dryRun {
			updates := map[string]any{"status": sessiondomain.StatusUnmatchedClient}
			if err := s.sessions.Update(ctx, s.db, sess.ID, updates); err != nil {
				s.log.Warn("session status update failed",
					zap.String("session_id", sess.ID.String()), zap.Error(err))
			}
		}
		return resolvedSession{}, &domain.SkippedSession{
			SessionID:   sess.ID.String(),
			StudentName: sess.StudentName,
			Reason:      reason,
		}
	}

	profile, err := s.profileSvc.FindByName(ctx, sess.StudentName)
	if err != nil {
		if errors.Is(err, profiledomain.ErrNotFound) {
			return skip("no billing profile")
		}
		return resolvedSession{}, &domain.SkippedSession{
			SessionID:   sess.ID.String(),
			StudentName: sess.StudentName,
			Reason:      err.Error(),
		}
	}

	customerID := profile.LedgerCustomerID
	customerName := profile.LedgerCustomerName
	if customerID == "" && sess.LedgerCustomerID != "" {
		// Manual override set directly on the session.
		customerID = sess.LedgerCustomerID
		customerName = sess.LedgerCustomerName
	}

	if customerID == "" && !dryRun {
		customerID, customerName = s.lookupCustomer(ctx, profile)
	}
	if customerID == "" {
		return skip("no ledger customer")
	}

	return resolvedSession{
		session:      sess,
		profile:      profile,
		customerID:   customerID,
		customerName: customerName,
	}, nil
}

// lookupCustomer searches the accounting service by display name and
// caches a hit back onto the profile. A miss or a failed call returns
// empty and leaves the session for the next run.
func (s *Service) lookupCustomer(ctx context.Context, profile profiledomain.BillingProfile) (string, string) {
	displayName := strings.TrimSpace(profile.LedgerCustomerName)
	if displayName == "" {
		displayName = profile.StudentName
	}

	customer, err := s.ledger.FindCustomer(ctx, displayName)
	if err != nil {
		s.log.Warn("customer lookup failed",
			zap.String("display_name", displayName), zap.Error(err))
		return "", ""
	}
	if customer == nil {
		return "", ""
	}

	updates := map[string]any{
		"ledger_customer_id":   customer.ID,
		"ledger_customer_name": customer.DisplayName,
	}
	if err := s.profileRepo.Update(ctx, s.db, profile.ID, updates); err != nil {
		s.log.Warn("profile customer linkage write failed",
			zap.String("profile_id", profile.ID.String()), zap.Error(err))
	}

	return customer.ID, customer.DisplayName
}

// submitGroup prices one customer group and, on live runs, creates its
// invoice and marks the sessions posted. A failed group never stops the
// remaining groups.
func (s *Service) submitGroup(ctx context.Context, g *group, settings settingsdomain.Settings, dryRun bool) domain.GroupResult {
	gr := domain.GroupResult{
		CustomerID:   g.customerID,
		CustomerName: g.customerName,
	}

	var lines []ledgerdomain.InvoiceLine
	ids := make([]snowflake.ID, 0, len(g.entries))
	for _, entry := range g.entries {
		gr.StudentNames = appendUnique(gr.StudentNames, entry.session.StudentName)
		gr.SessionIDs = append(gr.SessionIDs, entry.session.ID.String())
		ids = append(ids, entry.session.ID)

		for _, line := range rating.BuildInvoiceLines(entry.session, entry.profile, settings) {
			gr.AmountCents += line.AmountCents
			lines = append(lines, ledgerdomain.InvoiceLine{
				Description: line.Description,
				Amount:      s.toLedgerAmount(line.AmountCents),
				ItemRef:     line.ItemRef,
				Quantity:    line.Quantity,
				UnitPrice:   s.toLedgerAmount(line.UnitPriceCents),
			})
		}
	}
	gr.LineCount = len(lines)

	if dryRun {
		return gr
	}

	resp, err := s.ledger.CreateInvoice(ctx, ledgerdomain.InvoiceRequest{
		CustomerID: g.customerID,
		TxnDate:    s.clock.Now(),
		Lines:      lines,
	})
	if err != nil {
		// Fault or transport, the sessions stay approved and eligible
		// for the next run.
		gr.Error = err.Error()
		s.log.Error("invoice submission failed",
			zap.String("customer_id", g.customerID),
			zap.Strings("session_ids", gr.SessionIDs),
			zap.Error(err))
		return gr
	}

	if err := s.sessions.MarkPosted(ctx, s.db, ids, resp.InvoiceID, g.customerID, g.customerName); err != nil {
		// Invoice exists remotely but local state lags. Surfaced for
		// the operator; re-posting is blocked by the status guard.
		gr.Error = "posted but local update failed: " + err.Error()
		gr.InvoiceID = resp.InvoiceID
		gr.DocNumber = resp.DocNumber
		s.log.Error("mark posted failed",
			zap.String("invoice_id", resp.InvoiceID),
			zap.Strings("session_ids", gr.SessionIDs),
			zap.Error(err))
		return gr
	}

	gr.Posted = true
	gr.InvoiceID = resp.InvoiceID
	gr.DocNumber = resp.DocNumber
	return gr
}

func (s *Service) toLedgerAmount(cents int64) float64 {
	if s.cfg.Ledger.MinorUnit {
		return float64(cents)
	}
	return float64(cents) / 100
}

func (s *Service) buildRun(result domain.RunResult) *domain.PostingRun {
	details, err := json.Marshal(struct {
		Groups  []domain.GroupResult    `json:"groups"`
		Skipped []domain.SkippedSession `json:"skipped,omitempty"`
	}{Groups: result.Groups, Skipped: result.Skipped})
	if err != nil {
		details = []byte("{}")
	}

	run := &domain.PostingRun{
		ID:               s.genID.Generate(),
		DryRun:           result.DryRun,
		Trigger:          result.Trigger,
		Status:           result.Status,
		SessionsSelected: result.SessionsSelected,
		SessionsPosted:   result.SessionsPosted,
		GroupsTotal:      len(result.Groups),
		Details:          details,
		StartedAt:        result.StartedAt,
		FinishedAt:       result.FinishedAt,
	}
	for _, gr := range result.Groups {
		if gr.Posted {
			run.GroupsPosted++
		} else {
			run.GroupsFailed++
		}
	}
	return run
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]domain.PostingRun, error) {
	rows, err := s.repo.List(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}

	runs := make([]domain.PostingRun, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		runs = append(runs, *row)
	}
	return runs, nil
}

func (s *Service) GetRun(ctx context.Context, id string) (domain.PostingRun, error) {
	runID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || runID == 0 {
		return domain.PostingRun{}, domain.ErrRunNotFound
	}

	run, err := s.repo.FindByID(ctx, s.db, runID)
	if err != nil {
		return domain.PostingRun{}, err
	}
	if run == nil {
		return domain.PostingRun{}, domain.ErrRunNotFound
	}
	return *run, nil
}

func runStatus(result domain.RunResult) string {
	if len(result.Groups) == 0 && len(result.Skipped) == 0 {
		return domain.RunStatusNoSelection
	}
	if len(result.Skipped) > 0 {
		return domain.RunStatusWithErrors
	}
	for _, gr := range result.Groups {
		if !gr.Posted && !result.DryRun {
			return domain.RunStatusWithErrors
		}
		if gr.Error != "" {
			return domain.RunStatusWithErrors
		}
	}
	return domain.RunStatusCompleted
}

func appendUnique(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}
