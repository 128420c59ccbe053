package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/wunderling/tutorledger/internal/clock"
	"github.com/wunderling/tutorledger/internal/config"
	"github.com/wunderling/tutorledger/internal/ledger"
	ledgerdomain "github.com/wunderling/tutorledger/internal/ledger/domain"
	"github.com/wunderling/tutorledger/internal/migration"
	"github.com/wunderling/tutorledger/internal/observability"
	"github.com/wunderling/tutorledger/internal/posting"
	postingdomain "github.com/wunderling/tutorledger/internal/posting/domain"
	"github.com/wunderling/tutorledger/internal/profile"
	"github.com/wunderling/tutorledger/internal/providers"
	"github.com/wunderling/tutorledger/internal/ratelimit"
	"github.com/wunderling/tutorledger/internal/seed"
	"github.com/wunderling/tutorledger/internal/server"
	"github.com/wunderling/tutorledger/internal/session"
	sessiondomain "github.com/wunderling/tutorledger/internal/session/domain"
	"github.com/wunderling/tutorledger/internal/settings"
	"github.com/wunderling/tutorledger/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const ingestSecret = "e2e-ingest-secret"

type fakeLedgerClient struct {
	mu        sync.Mutex
	customers map[string]*ledgerdomain.Customer
	invoices  []ledgerdomain.InvoiceRequest
	nextID    int
}

func (f *fakeLedgerClient) FindCustomer(ctx context.Context, displayName string) (*ledgerdomain.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customers[displayName], nil
}

func (f *fakeLedgerClient) CreateInvoice(ctx context.Context, req ledgerdomain.InvoiceRequest) (ledgerdomain.InvoiceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices = append(f.invoices, req)
	f.nextID++
	return ledgerdomain.InvoiceResponse{
		InvoiceID: fmt.Sprintf("inv-%d", f.nextID),
		DocNumber: fmt.Sprintf("1%03d", f.nextID),
	}, nil
}

func (f *fakeLedgerClient) Call(ctx context.Context, method, path string, body, out any) error {
	return nil
}

type testEnv struct {
	app     *fx.App
	server  *server.Server
	db      *gorm.DB
	ledger  *fakeLedgerClient
	baseURL string
	httpSrv *httptest.Server
	dbPath  string
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func setDefaultEnv() {
	dbPath := filepath.Join(os.TempDir(), fmt.Sprintf("tutorledger_e2e_%d", time.Now().UnixNano()))
	os.Setenv("ENVIRONMENT", "test")
	os.Setenv("DATABASE_TYPE", "sqlite")
	os.Setenv("DATABASE_NAME", dbPath)
	os.Setenv("INGEST_SECRET", ingestSecret)
	os.Setenv("RATE_LIMIT_ENABLED", "false")
	os.Setenv("SMTP_HOST", "")
	os.Setenv("LOG_LEVEL", "error")
}

func startEnv() (*testEnv, error) {
	var (
		srv    *server.Server
		dbConn *gorm.DB
		cfg    config.Config
	)

	fake := &fakeLedgerClient{customers: map[string]*ledgerdomain.Customer{}}

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		clock.Module,
		db.Module,
		migration.Module,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(1)
		}),
		fx.Provide(server.NewEngine),
		ledger.Module,
		session.Module,
		profile.Module,
		settings.Module,
		posting.Module,
		ratelimit.Module,
		providers.Module,
		fx.Decorate(func(ledgerdomain.Client) ledgerdomain.Client {
			return fake
		}),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn, &cfg),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:     app,
		server:  srv,
		db:      dbConn,
		ledger:  fake,
		baseURL: httpSrv.URL,
		httpSrv: httpSrv,
		dbPath:  os.Getenv("DATABASE_NAME") + ".db",
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.app.Stop(stopCtx)
	}
	if e.dbPath != "" {
		_ = os.Remove(e.dbPath)
	}
}

func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	for _, table := range []string{"sessions", "billing_profiles", "posting_runs", "settings"} {
		if err := dbConn.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("clear table %s: %v", table, err)
		}
	}
	if err := seed.EnsureDefaults(dbConn); err != nil {
		t.Fatalf("seed defaults: %v", err)
	}
	env.ledger.mu.Lock()
	env.ledger.customers = map[string]*ledgerdomain.Customer{}
	env.ledger.invoices = nil
	env.ledger.mu.Unlock()
}

func TestE2E_HealthCheck(t *testing.T) {
	resetDatabase(t, env.db)

	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_SessionPipeline(t *testing.T) {
	resetDatabase(t, env.db)

	// Operator imports the billing roster.
	importReq := map[string]any{
		"rows": []map[string]any{{
			"student_name": "Jordan Lee",
			"parent_names": "Dana Lee",
			"rate_text":    "$200 per session, travel fee $25",
			"email_text":   "dana@example.com",
		}},
	}
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/profiles/import", importReq, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for import, got %d: %s", resp.StatusCode, string(body))
	}

	// The ledger knows the paying parent.
	env.ledger.mu.Lock()
	env.ledger.customers["Jordan Lee"] = &ledgerdomain.Customer{ID: "cust-1", DisplayName: "Lee, Dana"}
	env.ledger.mu.Unlock()

	// Calendar webhook delivers the session.
	ingestReq := map[string]any{
		"event_id":   "evt-e2e-1",
		"title":      "Jordan Lee - Session",
		"start_time": "2026-03-02T15:00:00Z",
		"end_time":   "2026-03-02T15:50:00Z",
	}
	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/ingest", ingestReq, map[string]string{
		"X-Ingest-Secret": ingestSecret,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 for ingest, got %d: %s", resp.StatusCode, string(body))
	}

	var ingested sessiondomain.IngestResponse
	if err := json.Unmarshal(body, &ingested); err != nil {
		t.Fatalf("decode ingest response: %v", err)
	}
	if ingested.Status != sessiondomain.StatusPendingReview {
		t.Fatalf("expected pending_review, got %s", ingested.Status)
	}

	// Operator approves.
	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/sessions/"+ingested.SessionID+"/approve", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for approve, got %d: %s", resp.StatusCode, string(body))
	}

	// Dry run first: priced but nothing touched.
	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/post-approved?dryRun=true", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for dry run, got %d: %s", resp.StatusCode, string(body))
	}
	var dryRun postingdomain.RunResult
	if err := json.Unmarshal(body, &dryRun); err != nil {
		t.Fatalf("decode dry run: %v", err)
	}
	if !dryRun.DryRun || len(dryRun.Groups) != 1 {
		t.Fatalf("unexpected dry run result: %s", string(body))
	}
	env.ledger.mu.Lock()
	invoiceCount := len(env.ledger.invoices)
	env.ledger.mu.Unlock()
	if invoiceCount != 0 {
		t.Fatalf("dry run must not create invoices, got %d", invoiceCount)
	}

	// Live run posts the invoice.
	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/post-approved", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for live run, got %d: %s", resp.StatusCode, string(body))
	}
	var live postingdomain.RunResult
	if err := json.Unmarshal(body, &live); err != nil {
		t.Fatalf("decode live run: %v", err)
	}
	if live.Status != postingdomain.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s: %s", live.Status, string(body))
	}
	if live.SessionsPosted != 1 || len(live.Groups) != 1 || !live.Groups[0].Posted {
		t.Fatalf("unexpected live run result: %s", string(body))
	}
	// Session and travel fee, 200 + 25 dollars.
	if live.Groups[0].AmountCents != 22500 {
		t.Fatalf("expected 22500 cents, got %d", live.Groups[0].AmountCents)
	}

	// The session is now terminal.
	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/sessions/"+ingested.SessionID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for session fetch, got %d: %s", resp.StatusCode, string(body))
	}
	var posted sessiondomain.Session
	if err := json.Unmarshal(body, &posted); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if posted.Status != sessiondomain.StatusPosted || posted.LedgerInvoiceID == "" {
		t.Fatalf("expected posted session with invoice, got %s / %q", posted.Status, posted.LedgerInvoiceID)
	}

	// Replayed webhook must not disturb the posted row.
	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/ingest", ingestReq, map[string]string{
		"X-Ingest-Secret": ingestSecret,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for replay, got %d: %s", resp.StatusCode, string(body))
	}
	var replay sessiondomain.IngestResponse
	if err := json.Unmarshal(body, &replay); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if replay.Status != sessiondomain.StatusPosted {
		t.Fatalf("expected replay to report posted, got %s", replay.Status)
	}

	// The run log and its PDF report are available.
	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/runs/"+live.RunID+"/report.pdf", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for report, got %d: %s", resp.StatusCode, string(body))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected pdf content type, got %q", ct)
	}
	if len(body) == 0 {
		t.Fatalf("expected non-empty report body")
	}
}

func TestE2E_IngestRejectsBadSecret(t *testing.T) {
	resetDatabase(t, env.db)

	ingestReq := map[string]any{
		"event_id":   "evt-e2e-2",
		"title":      "Jordan Lee - Session",
		"start_time": "2026-03-02T15:00:00Z",
		"end_time":   "2026-03-02T15:50:00Z",
	}
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/ingest", ingestReq, map[string]string{
		"X-Ingest-Secret": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d: %s", resp.StatusCode, string(body))
	}
}

func doJSON(t *testing.T, method, reqURL string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
