package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	profiledomain "github.com/wunderling/tutorledger/internal/profile/domain"
	profilerepository "github.com/wunderling/tutorledger/internal/profile/repository"
	profileservice "github.com/wunderling/tutorledger/internal/profile/service"
	"github.com/wunderling/tutorledger/internal/session/domain"
	"github.com/wunderling/tutorledger/internal/session/repository"
	settingsdomain "github.com/wunderling/tutorledger/internal/settings/domain"
	settingsrepository "github.com/wunderling/tutorledger/internal/settings/repository"
	settingsservice "github.com/wunderling/tutorledger/internal/settings/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	svc   domain.Service
	db    *gorm.DB
	genID *snowflake.Node
}

func setupTest(t *testing.T) testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Session{},
		&profiledomain.BillingProfile{},
		&settingsdomain.Settings{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	profileSvc := profileservice.New(profileservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  profilerepository.Provide(),
	})
	settingsSvc := settingsservice.New(settingsservice.Params{
		DB:   db,
		Log:  log,
		Repo: settingsrepository.Provide(),
	})

	svc := New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Repo:        repository.Provide(),
		ProfileSvc:  profileSvc,
		SettingsSvc: settingsSvc,
	})

	return testEnv{svc: svc, db: db, genID: node}
}

func (e testEnv) seedProfile(t *testing.T, studentName string) {
	t.Helper()
	require.NoError(t, e.db.Create(&profiledomain.BillingProfile{
		ID:            e.genID.Generate(),
		StudentName:   studentName,
		CanonicalName: profiledomain.CanonicalName(studentName),
		BaseRateCents: 20000,
	}).Error)
}

func ingestRequest(eventID string) domain.IngestRequest {
	return domain.IngestRequest{
		EventID:    eventID,
		CalendarID: "primary",
		Title:      "Jordan Lee - Session",
		StartTime:  time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2026, 3, 2, 15, 50, 0, 0, time.UTC),
	}
}

func TestIngestCreatesPendingReview(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee")

	resp, err := env.svc.Ingest(context.Background(), ingestRequest("evt-1"))
	require.NoError(t, err)

	assert.True(t, resp.Created)
	assert.Equal(t, domain.StatusPendingReview, resp.Status)

	stored, err := env.svc.GetByID(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Jordan Lee", stored.StudentName)
	assert.InDelta(t, 1.0, stored.Quantity, 0.001)
	assert.Equal(t, "SESSION_50", stored.ServiceCode)
}

func TestIngestUnmatchedClient(t *testing.T) {
	env := setupTest(t)

	resp, err := env.svc.Ingest(context.Background(), ingestRequest("evt-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnmatchedClient, resp.Status)
}

func TestIngestNeedsReviewDuration(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee")

	req := ingestRequest("evt-1")
	req.EndTime = req.StartTime

	resp, err := env.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNeedsReviewDuration, resp.Status)

	stored, err := env.svc.GetByID(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Zero(t, stored.Quantity)
}

func TestIngestUnmatchedBeatsBadDuration(t *testing.T) {
	env := setupTest(t)

	req := ingestRequest("evt-1")
	req.EndTime = req.StartTime

	resp, err := env.svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnmatchedClient, resp.Status)
}

func TestIngestValidation(t *testing.T) {
	env := setupTest(t)

	req := ingestRequest("evt-1")
	req.EventID = ""
	_, err := env.svc.Ingest(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	req = ingestRequest("evt-2")
	req.EndTime = req.StartTime.Add(-time.Hour)
	_, err = env.svc.Ingest(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestIngestReplayIsIdempotent(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee")

	first, err := env.svc.Ingest(context.Background(), ingestRequest("evt-1"))
	require.NoError(t, err)

	second, err := env.svc.Ingest(context.Background(), ingestRequest("evt-1"))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.True(t, second.Updated)
	assert.Equal(t, first.SessionID, second.SessionID)

	var count int64
	require.NoError(t, env.db.Model(&domain.Session{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestIngestRecomputesStatusOnReplay(t *testing.T) {
	env := setupTest(t)

	resp, err := env.svc.Ingest(context.Background(), ingestRequest("evt-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnmatchedClient, resp.Status)

	// Once the profile exists, a replay resolves the match.
	env.seedProfile(t, "Jordan Lee")
	resp, err = env.svc.Ingest(context.Background(), ingestRequest("evt-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingReview, resp.Status)
}

func TestIngestPostedIsNoOp(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee")

	resp, err := env.svc.Ingest(context.Background(), ingestRequest("evt-1"))
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&domain.Session{}).
		Where("event_id = ?", "evt-1").
		Updates(map[string]any{"status": domain.StatusPosted, "ledger_invoice_id": "inv-1"}).Error)

	replay := ingestRequest("evt-1")
	replay.Title = "Jordan Lee - Changed"
	replayResp, err := env.svc.Ingest(context.Background(), replay)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPosted, replayResp.Status)
	assert.False(t, replayResp.Created)
	assert.False(t, replayResp.Updated)

	stored, err := env.svc.GetByID(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Jordan Lee - Session", stored.Title)
	assert.Equal(t, "inv-1", stored.LedgerInvoiceID)
}

func TestIngestApprovedKeepsStatusAndName(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee")

	resp, err := env.svc.Ingest(context.Background(), ingestRequest("evt-1"))
	require.NoError(t, err)

	_, err = env.svc.Approve(context.Background(), resp.SessionID)
	require.NoError(t, err)
	_, err = env.svc.Update(context.Background(), resp.SessionID, domain.UpdateRequest{
		StudentName: ptr("Jordan A. Lee"),
	})
	require.NoError(t, err)

	replay := ingestRequest("evt-1")
	replay.Title = "Jordan Lee - Rescheduled"
	replayResp, err := env.svc.Ingest(context.Background(), replay)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, replayResp.Status)

	stored, err := env.svc.GetByID(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)
	assert.Equal(t, "Jordan Lee - Rescheduled", stored.Title)
	assert.Equal(t, "Jordan A. Lee", stored.StudentName)
}

func TestApproveRejectTransitions(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee")

	resp, err := env.svc.Ingest(context.Background(), ingestRequest("evt-1"))
	require.NoError(t, err)

	approved, err := env.svc.Approve(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)

	rejected, err := env.svc.Reject(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
}

func TestTransitionsBlockedWhenPosted(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee")

	resp, err := env.svc.Ingest(context.Background(), ingestRequest("evt-1"))
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&domain.Session{}).
		Where("event_id = ?", "evt-1").
		Update("status", domain.StatusPosted).Error)

	_, err = env.svc.Approve(context.Background(), resp.SessionID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = env.svc.Update(context.Background(), resp.SessionID, domain.UpdateRequest{
		Notes: ptr("late note"),
	})
	assert.ErrorIs(t, err, domain.ErrImmutableRecord)
}

func TestUpdateStatusValidation(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee")

	resp, err := env.svc.Ingest(context.Background(), ingestRequest("evt-1"))
	require.NoError(t, err)

	_, err = env.svc.Update(context.Background(), resp.SessionID, domain.UpdateRequest{
		Status: ptr("archived"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = env.svc.Update(context.Background(), resp.SessionID, domain.UpdateRequest{
		Status: ptr(string(domain.StatusPosted)),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	updated, err := env.svc.Update(context.Background(), resp.SessionID, domain.UpdateRequest{
		Status: ptr(string(domain.StatusApproved)),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, updated.Status)
}

func TestGetByIDNotFound(t *testing.T) {
	env := setupTest(t)

	_, err := env.svc.GetByID(context.Background(), "12345")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.GetByID(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee")

	_, err := env.svc.Ingest(context.Background(), ingestRequest("evt-1"))
	require.NoError(t, err)

	other := ingestRequest("evt-2")
	other.Title = "Sam Park - Session"
	_, err = env.svc.Ingest(context.Background(), other)
	require.NoError(t, err)

	pending, err := env.svc.List(context.Background(), domain.ListFilter{Status: domain.StatusPendingReview})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Jordan Lee", pending[0].StudentName)

	byStudent, err := env.svc.List(context.Background(), domain.ListFilter{StudentName: "Sam Park"})
	require.NoError(t, err)
	require.Len(t, byStudent, 1)
	assert.Equal(t, domain.StatusUnmatchedClient, byStudent[0].Status)
}

func ptr[T any](v T) *T { return &v }
