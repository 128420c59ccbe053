package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wunderling/tutorledger/internal/clock"
	"github.com/wunderling/tutorledger/internal/config"
	ledgerdomain "github.com/wunderling/tutorledger/internal/ledger/domain"
	"github.com/wunderling/tutorledger/internal/posting/domain"
	"github.com/wunderling/tutorledger/internal/posting/repository"
	profiledomain "github.com/wunderling/tutorledger/internal/profile/domain"
	profilerepository "github.com/wunderling/tutorledger/internal/profile/repository"
	profileservice "github.com/wunderling/tutorledger/internal/profile/service"
	sessiondomain "github.com/wunderling/tutorledger/internal/session/domain"
	sessionrepository "github.com/wunderling/tutorledger/internal/session/repository"
	settingsdomain "github.com/wunderling/tutorledger/internal/settings/domain"
	settingsrepository "github.com/wunderling/tutorledger/internal/settings/repository"
	settingsservice "github.com/wunderling/tutorledger/internal/settings/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeLedger struct {
	customers map[string]*ledgerdomain.Customer
	failFor   map[string]error

	findCalls int
	invoices  []ledgerdomain.InvoiceRequest
	nextID    int
}

func (f *fakeLedger) FindCustomer(ctx context.Context, displayName string) (*ledgerdomain.Customer, error) {
	f.findCalls++
	return f.customers[displayName], nil
}

func (f *fakeLedger) CreateInvoice(ctx context.Context, req ledgerdomain.InvoiceRequest) (ledgerdomain.InvoiceResponse, error) {
	if err := f.failFor[req.CustomerID]; err != nil {
		return ledgerdomain.InvoiceResponse{}, err
	}
	f.invoices = append(f.invoices, req)
	f.nextID++
	return ledgerdomain.InvoiceResponse{
		InvoiceID: fmt.Sprintf("inv-%d", f.nextID),
		DocNumber: fmt.Sprintf("1%03d", f.nextID),
	}, nil
}

func (f *fakeLedger) Call(ctx context.Context, method, path string, body, out any) error {
	return nil
}

type testEnv struct {
	svc    domain.Service
	db     *gorm.DB
	ledger *fakeLedger
	genID  *snowflake.Node
	clock  *clock.FakeClock
}

func setupTest(t *testing.T) testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&sessiondomain.Session{},
		&profiledomain.BillingProfile{},
		&settingsdomain.Settings{},
		&domain.PostingRun{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := &fakeLedger{
		customers: map[string]*ledgerdomain.Customer{},
		failFor:   map[string]error{},
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC))

	profileRepo := profilerepository.Provide()
	profileSvc := profileservice.New(profileservice.Params{
		DB: db, Log: log, GenID: node, Repo: profileRepo,
	})
	settingsSvc := settingsservice.New(settingsservice.Params{
		DB: db, Log: log, Repo: settingsrepository.Provide(),
	})

	svc := New(Params{
		Config:      config.Config{},
		DB:          db,
		Log:         log,
		Clock:       clk,
		GenID:       node,
		Repo:        repository.Provide(),
		Sessions:    sessionrepository.Provide(),
		ProfileSvc:  profileSvc,
		ProfileRepo: profileRepo,
		SettingsSvc: settingsSvc,
		Ledger:      fake,
	})

	return testEnv{svc: svc, db: db, ledger: fake, genID: node, clock: clk}
}

func (e testEnv) seedProfile(t *testing.T, student, customerID, customerName string) profiledomain.BillingProfile {
	t.Helper()
	p := profiledomain.BillingProfile{
		ID:                 e.genID.Generate(),
		StudentName:        student,
		CanonicalName:      profiledomain.CanonicalName(student),
		BaseRateCents:      20000,
		LedgerCustomerID:   customerID,
		LedgerCustomerName: customerName,
	}
	require.NoError(t, e.db.Create(&p).Error)
	return p
}

func (e testEnv) seedApproved(t *testing.T, student string) sessiondomain.Session {
	t.Helper()
	s := sessiondomain.Session{
		ID:                 e.genID.Generate(),
		EventID:            fmt.Sprintf("evt-%s", e.genID.Generate()),
		Title:              student + " - Session",
		Source:             "webhook",
		StudentName:        student,
		StartTime:          time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
		EndTime:            time.Date(2026, 3, 2, 15, 50, 0, 0, time.UTC),
		DurationMinutesRaw: 50,
		Quantity:           1,
		ServiceCode:        "SESSION_50",
		Status:             sessiondomain.StatusApproved,
	}
	require.NoError(t, e.db.Create(&s).Error)
	return s
}

func (e testEnv) sessionStatus(t *testing.T, id snowflake.ID) sessiondomain.Status {
	t.Helper()
	var s sessiondomain.Session
	require.NoError(t, e.db.First(&s, "id = ?", id).Error)
	return s.Status
}

func TestRunNothingToPost(t *testing.T) {
	env := setupTest(t)

	result, err := env.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusNoSelection, result.Status)
	assert.Equal(t, domain.TriggerManual, result.Trigger)
	assert.Empty(t, env.ledger.invoices)
}

func TestDryRunPricesWithoutSideEffects(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee", "cust-1", "Lee, Dana")
	sess := env.seedApproved(t, "Jordan Lee")
	env.seedApproved(t, "Nobody Known")

	result, err := env.svc.Run(context.Background(), domain.RunRequest{DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	require.Len(t, result.Groups, 1)
	assert.Equal(t, "cust-1", result.Groups[0].CustomerID)
	assert.EqualValues(t, 20000, result.Groups[0].AmountCents)
	assert.False(t, result.Groups[0].Posted)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "no billing profile", result.Skipped[0].Reason)

	// Nothing touched: no invoices, no remote lookups, no status flips,
	// no run row.
	assert.Empty(t, env.ledger.invoices)
	assert.Zero(t, env.ledger.findCalls)
	assert.Equal(t, sessiondomain.StatusApproved, env.sessionStatus(t, sess.ID))
	var runs int64
	require.NoError(t, env.db.Model(&domain.PostingRun{}).Count(&runs).Error)
	assert.Zero(t, runs)
	assert.Empty(t, result.RunID)
}

func TestLiveRunPostsAndPersists(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee", "cust-1", "Lee, Dana")
	sess := env.seedApproved(t, "Jordan Lee")

	result, err := env.svc.Run(context.Background(), domain.RunRequest{Trigger: domain.TriggerScheduled})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	assert.Equal(t, 1, result.SessionsPosted)
	require.Len(t, result.Groups, 1)
	assert.True(t, result.Groups[0].Posted)
	assert.Equal(t, "inv-1", result.Groups[0].InvoiceID)

	require.Len(t, env.ledger.invoices, 1)
	assert.Equal(t, "cust-1", env.ledger.invoices[0].CustomerID)

	var stored sessiondomain.Session
	require.NoError(t, env.db.First(&stored, "id = ?", sess.ID).Error)
	assert.Equal(t, sessiondomain.StatusPosted, stored.Status)
	assert.Equal(t, "inv-1", stored.LedgerInvoiceID)
	assert.Equal(t, "cust-1", stored.LedgerCustomerID)

	require.NotEmpty(t, result.RunID)
	run, err := env.svc.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerScheduled, run.Trigger)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.SessionsPosted)
}

func TestRunGroupsByLedgerCustomer(t *testing.T) {
	env := setupTest(t)
	// Siblings bill to the same household customer.
	env.seedProfile(t, "Jordan Lee", "cust-1", "Lee, Dana")
	env.seedProfile(t, "Casey Lee", "cust-1", "Lee, Dana")
	env.seedApproved(t, "Jordan Lee")
	env.seedApproved(t, "Casey Lee")

	result, err := env.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)

	require.Len(t, result.Groups, 1)
	assert.ElementsMatch(t, []string{"Jordan Lee", "Casey Lee"}, result.Groups[0].StudentNames)
	assert.Equal(t, 2, result.Groups[0].LineCount)
	assert.EqualValues(t, 40000, result.Groups[0].AmountCents)
	require.Len(t, env.ledger.invoices, 1)
	assert.Len(t, env.ledger.invoices[0].Lines, 2)
}

func TestRunPartialFailureIsolation(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee", "cust-1", "Lee, Dana")
	env.seedProfile(t, "Sam Park", "cust-2", "Park, Min")
	failing := env.seedApproved(t, "Jordan Lee")
	surviving := env.seedApproved(t, "Sam Park")
	env.ledger.failFor["cust-1"] = &ledgerdomain.Fault{Code: "6000", Message: "business validation"}

	result, err := env.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusWithErrors, result.Status)
	require.Len(t, result.Groups, 2)

	var failed, posted *domain.GroupResult
	for i := range result.Groups {
		if result.Groups[i].CustomerID == "cust-1" {
			failed = &result.Groups[i]
		} else {
			posted = &result.Groups[i]
		}
	}
	require.NotNil(t, failed)
	require.NotNil(t, posted)
	assert.False(t, failed.Posted)
	assert.NotEmpty(t, failed.Error)
	assert.True(t, posted.Posted)

	// The failed group's sessions stay approved for the next run.
	assert.Equal(t, sessiondomain.StatusApproved, env.sessionStatus(t, failing.ID))
	assert.Equal(t, sessiondomain.StatusPosted, env.sessionStatus(t, surviving.ID))
}

func TestLiveRunFlipsUnmatchedSessions(t *testing.T) {
	env := setupTest(t)
	sess := env.seedApproved(t, "Nobody Known")

	result, err := env.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusWithErrors, result.Status)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, sessiondomain.StatusUnmatchedClient, env.sessionStatus(t, sess.ID))
}

func TestLiveRunLooksUpAndCachesCustomer(t *testing.T) {
	env := setupTest(t)
	profile := env.seedProfile(t, "Jordan Lee", "", "")
	env.seedApproved(t, "Jordan Lee")
	env.ledger.customers["Jordan Lee"] = &ledgerdomain.Customer{ID: "cust-9", DisplayName: "Lee, Dana"}

	result, err := env.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	require.Len(t, result.Groups, 1)
	assert.Equal(t, "cust-9", result.Groups[0].CustomerID)
	assert.Equal(t, 1, env.ledger.findCalls)

	// The linkage is cached so the next run skips the lookup.
	var stored profiledomain.BillingProfile
	require.NoError(t, env.db.First(&stored, "id = ?", profile.ID).Error)
	assert.Equal(t, "cust-9", stored.LedgerCustomerID)
	assert.Equal(t, "Lee, Dana", stored.LedgerCustomerName)
}

func TestSessionCustomerOverride(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee", "", "")
	sess := env.seedApproved(t, "Jordan Lee")
	require.NoError(t, env.db.Model(&sessiondomain.Session{}).
		Where("id = ?", sess.ID).
		Updates(map[string]any{
			"ledger_customer_id":   "cust-7",
			"ledger_customer_name": "Override, Pat",
		}).Error)

	result, err := env.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)

	require.Len(t, result.Groups, 1)
	assert.Equal(t, "cust-7", result.Groups[0].CustomerID)
	assert.Zero(t, env.ledger.findCalls)
}

func TestListRuns(t *testing.T) {
	env := setupTest(t)
	env.seedProfile(t, "Jordan Lee", "cust-1", "Lee, Dana")
	env.seedApproved(t, "Jordan Lee")

	first, err := env.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	second, err := env.svc.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusNoSelection, second.Status)

	runs, err := env.svc.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].ID.String())
	assert.Equal(t, first.RunID, runs[1].ID.String())

	_, err = env.svc.GetRun(context.Background(), "99999")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}
