package campaign

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbpkg "github.com/pelora/outreach/internal/db"
	"github.com/pelora/outreach/internal/metrics"
	"github.com/pelora/outreach/internal/models"
	"github.com/pelora/outreach/internal/render"
	"github.com/pelora/outreach/internal/repository"
	"github.com/pelora/outreach/internal/snapshot"
	"github.com/pelora/outreach/internal/targeting"
	"github.com/pelora/outreach/internal/transport"
)

// fakeSender records sends and can be scripted to fail or to block on a
// gate channel before each send.
type fakeSender struct {
	mu   sync.Mutex
	sent []string

	err    error
	gate   chan struct{}
	onSend func(n int)
}

func (f *fakeSender) Send(ctx context.Context, msg *transport.Message) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	f.sent = append(f.sent, msg.To)
	n := len(f.sent)
	cb := f.onSend
	f.mu.Unlock()

	if cb != nil {
		cb(n)
	}
	if f.err != nil {
		return "", f.err
	}
	return "msg-" + msg.To, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) addresses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fixture struct {
	db      *sql.DB
	svc     *Service
	sender  *fakeSender
	store   *snapshot.Store
	tenant  string
	optOuts *repository.OptOutRepository
}

// newFixture builds a service over a file-backed database. The
// dispatcher queries from several goroutines, so the shared-cache
// in-memory trick is not enough here.
func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db")+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, m := range dbpkg.Migrations {
		if _, err := db.Exec(m); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
	}

	store, err := snapshot.New(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatalf("failed to open snapshot store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sender := &fakeSender{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(
		db,
		store,
		transport.NewManager(sender, sender),
		render.NewLinkResolver("https://portal.example.com"),
		metrics.New(),
		logger,
		opts,
	)

	tenants := repository.NewTenantRepository(db)
	tenant := &models.Tenant{Name: "Acme Recovery", Slug: "acme"}
	if err := tenants.Create(tenant); err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}

	return &fixture{
		db:      db,
		svc:     svc,
		sender:  sender,
		store:   store,
		tenant:  tenant.ID,
		optOuts: repository.NewOptOutRepository(db),
	}
}

func (f *fixture) seedTemplate(t *testing.T, channel string) string {
	t.Helper()

	templates := repository.NewTemplateRepository(f.db)
	tmpl := &models.Template{
		TenantID: f.tenant,
		Name:     "reminder",
		Channel:  channel,
		Subject:  "Hello {{firstName}}",
		Body:     "Your balance is {{balance}}",
	}
	if err := templates.Create(tmpl); err != nil {
		t.Fatalf("failed to create template: %v", err)
	}
	return tmpl.ID
}

func (f *fixture) seedConsumer(t *testing.T, first, email, phone string) *models.Consumer {
	t.Helper()

	consumers := repository.NewConsumerRepository(f.db)
	c := &models.Consumer{
		TenantID:  f.tenant,
		FirstName: first,
		LastName:  "Doe",
		Email:     email,
		Phone:     phone,
	}
	if err := consumers.Create(c); err != nil {
		t.Fatalf("failed to create consumer: %v", err)
	}
	return c
}

func (f *fixture) seedFolder(t *testing.T, consumerIDs ...string) string {
	t.Helper()

	consumers := repository.NewConsumerRepository(f.db)
	folder := &models.Folder{TenantID: f.tenant, Name: "batch"}
	if err := consumers.CreateFolder(folder); err != nil {
		t.Fatalf("failed to create folder: %v", err)
	}
	for _, id := range consumerIDs {
		if err := consumers.AssignFolder(folder.ID, id); err != nil {
			t.Fatalf("failed to assign folder: %v", err)
		}
	}
	return folder.ID
}

func (f *fixture) optOut(t *testing.T, consumerID, channel string) {
	t.Helper()

	err := f.optOuts.Create(&models.OptOut{
		TenantID:   f.tenant,
		ConsumerID: consumerID,
		Channel:    channel,
	})
	if err != nil {
		t.Fatalf("failed to record opt-out: %v", err)
	}
}

func waitForTerminal(t *testing.T, svc *Service, id string) *models.Campaign {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		c, err := svc.Get(id)
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if models.IsTerminal(c.Status) {
			return c
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("campaign never reached a terminal status")
	return nil
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)

	tests := []struct {
		name    string
		req     CreateRequest
		wantErr error
	}{
		{
			name:    "missing name",
			req:     CreateRequest{TenantID: f.tenant, TemplateID: tmplID, Channel: models.ChannelEmail, TargetGroup: models.TargetAll},
			wantErr: ErrValidation,
		},
		{
			name:    "unknown channel",
			req:     CreateRequest{TenantID: f.tenant, Name: "c", TemplateID: tmplID, Channel: "fax", TargetGroup: models.TargetAll},
			wantErr: ErrValidation,
		},
		{
			name:    "unknown target group",
			req:     CreateRequest{TenantID: f.tenant, Name: "c", TemplateID: tmplID, Channel: models.ChannelEmail, TargetGroup: "everyone"},
			wantErr: targeting.ErrUnknownTargetGroup,
		},
		{
			name:    "missing template",
			req:     CreateRequest{TenantID: f.tenant, Name: "c", TemplateID: "nope", Channel: models.ChannelEmail, TargetGroup: models.TargetAll},
			wantErr: ErrValidation,
		},
		{
			name:    "template channel mismatch",
			req:     CreateRequest{TenantID: f.tenant, Name: "c", TemplateID: tmplID, Channel: models.ChannelSMS, TargetGroup: models.TargetAll},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateResolvesRecipients(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)

	a := f.seedConsumer(t, "Alice", "alice@example.com", "")
	b := f.seedConsumer(t, "Bob", "bob@example.com", "")
	c := f.seedConsumer(t, "Carol", "carol@example.com", "")
	folderID := f.seedFolder(t, a.ID, b.ID, c.ID)

	f.optOut(t, b.ID, models.ChannelEmail)

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "folder blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetFolder,
		FolderIDs:   []string{folderID},
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if camp.Status != models.StatusPendingApproval {
		t.Errorf("status = %q, want %q", camp.Status, models.StatusPendingApproval)
	}
	if camp.TotalRecipients != 2 {
		t.Errorf("TotalRecipients = %d, want 2", camp.TotalRecipients)
	}
}

func TestApproveDispatchesToCompletion(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)

	a := f.seedConsumer(t, "Alice", "alice@example.com", "")
	b := f.seedConsumer(t, "Bob", "bob@example.com", "")
	c := f.seedConsumer(t, "Carol", "carol@example.com", "")
	folderID := f.seedFolder(t, a.ID, b.ID, c.ID)

	f.optOut(t, b.ID, models.ChannelEmail)

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "folder blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetFolder,
		FolderIDs:   []string{folderID},
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := f.svc.Approve(camp.ID); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}

	final := waitForTerminal(t, f.svc, camp.ID)
	if final.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want %q", final.Status, models.StatusCompleted)
	}
	if final.TotalSent != 2 {
		t.Errorf("TotalSent = %d, want 2", final.TotalSent)
	}
	if final.TotalErrors != 0 {
		t.Errorf("TotalErrors = %d, want 0", final.TotalErrors)
	}
	if final.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if got := f.sender.count(); got != 2 {
		t.Errorf("sender saw %d sends, want 2", got)
	}

	records, total, err := f.svc.Deliveries(camp.ID, 0, 0)
	if err != nil {
		t.Fatalf("Deliveries() error: %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Fatalf("delivery records = %d (total %d), want 2", len(records), total)
	}
	for _, r := range records {
		if r.Outcome != models.OutcomeSent {
			t.Errorf("outcome = %q, want %q", r.Outcome, models.OutcomeSent)
		}
		if r.MessageID == "" {
			t.Error("delivery record missing message id")
		}
	}
}

func TestApproveRejectsNonPending(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)
	f.seedConsumer(t, "Alice", "alice@example.com", "")

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := f.svc.Approve(camp.ID); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	waitForTerminal(t, f.svc, camp.ID)

	if _, err := f.svc.Approve(camp.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Approve() error = %v, want ErrInvalidTransition", err)
	}
}

func TestApproveSnapshotFailureLeavesPending(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)
	f.seedConsumer(t, "Alice", "alice@example.com", "")

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// With the snapshot store down, approval must fail without flipping
	// the status, so the campaign stays approvable.
	f.store.Close()

	if _, err := f.svc.Approve(camp.ID); err == nil {
		t.Fatal("Approve() succeeded with snapshot store closed")
	}

	c, err := f.svc.Get(camp.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if c.Status != models.StatusPendingApproval {
		t.Errorf("status = %q, want %q", c.Status, models.StatusPendingApproval)
	}
}

func TestDispatchSendsFromSnapshot(t *testing.T) {
	// The captured snapshot is the dispatch source of truth. A list that
	// names only Alice produces a send only to Alice, no matter who else
	// exists in the database.
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)

	a := f.seedConsumer(t, "Alice", "alice@example.com", "")
	f.seedConsumer(t, "Bob", "bob@example.com", "")

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	campaigns := repository.NewCampaignRepository(f.db)
	ok, err := campaigns.TransitionStatus(camp.ID, models.StatusSending, models.StatusPendingApproval)
	if err != nil || !ok {
		t.Fatalf("TransitionStatus() = %v, %v", ok, err)
	}
	err = f.store.Capture(camp.ID, []models.Recipient{
		{ConsumerID: a.ID, FirstName: "Alice", LastName: "Doe", Addresses: []string{"alice@example.com"}},
	})
	if err != nil {
		t.Fatalf("Capture() error: %v", err)
	}

	f.svc.dispatch(context.Background(), camp.ID)

	final, err := f.svc.Get(camp.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if final.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want %q", final.Status, models.StatusCompleted)
	}
	if final.TotalSent != 1 {
		t.Errorf("TotalSent = %d, want 1", final.TotalSent)
	}
	if got := f.sender.addresses(); len(got) != 1 || got[0] != "alice@example.com" {
		t.Errorf("sent to %v, want only alice@example.com", got)
	}
}

func TestDispatchFailsWithoutSnapshot(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)
	f.seedConsumer(t, "Alice", "alice@example.com", "")

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Sending with no captured snapshot must fail the run instead of
	// silently sending nothing or resolving a fresh list.
	campaigns := repository.NewCampaignRepository(f.db)
	ok, err := campaigns.TransitionStatus(camp.ID, models.StatusSending, models.StatusPendingApproval)
	if err != nil || !ok {
		t.Fatalf("TransitionStatus() = %v, %v", ok, err)
	}

	f.svc.dispatch(context.Background(), camp.ID)

	final, err := f.svc.Get(camp.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if final.Status != models.StatusFailed {
		t.Errorf("status = %q, want %q", final.Status, models.StatusFailed)
	}
	if got := f.sender.count(); got != 0 {
		t.Errorf("sender saw %d sends, want 0", got)
	}
}

func TestApproveMissingCampaign(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})

	if _, err := f.svc.Approve("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Approve() error = %v, want ErrNotFound", err)
	}
}

func TestCancelMidDispatch(t *testing.T) {
	// Long batch interval so the cancel lands while the dispatcher waits
	// between batch one and batch two.
	f := newFixture(t, Options{BatchSize: 10, Concurrency: 10, BatchInterval: time.Minute})
	tmplID := f.seedTemplate(t, models.ChannelEmail)

	for i := 0; i < 50; i++ {
		f.seedConsumer(t, "Consumer", "c"+string(rune('a'+i%26))+string(rune('a'+i/26))+"@example.com", "")
	}

	firstBatchDone := make(chan struct{})
	f.sender.onSend = func(n int) {
		if n == 10 {
			close(firstBatchDone)
		}
	}

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "big blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if camp.TotalRecipients != 50 {
		t.Fatalf("TotalRecipients = %d, want 50", camp.TotalRecipients)
	}

	if _, err := f.svc.Approve(camp.ID); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}

	select {
	case <-firstBatchDone:
	case <-time.After(10 * time.Second):
		t.Fatal("first batch never completed")
	}

	cancelled, err := f.svc.Cancel(camp.ID)
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Fatalf("status = %q, want %q", cancelled.Status, models.StatusCancelled)
	}

	f.svc.Shutdown()

	final, err := f.svc.Get(camp.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if final.Status != models.StatusCancelled {
		t.Errorf("final status = %q, want %q", final.Status, models.StatusCancelled)
	}
	if final.TotalSent < 1 || final.TotalSent > 10 {
		t.Errorf("TotalSent = %d, want between 1 and 10", final.TotalSent)
	}
}

func TestFinishedCallbackOnCompletion(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)
	f.seedConsumer(t, "Alice", "alice@example.com", "")

	notified := make(chan string, 1)
	f.svc.OnCampaignFinished(func(tenantID string) { notified <- tenantID })

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := f.svc.Approve(camp.ID); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	waitForTerminal(t, f.svc, camp.ID)

	select {
	case got := <-notified:
		if got != f.tenant {
			t.Errorf("callback tenant = %q, want %q", got, f.tenant)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("finished callback never fired")
	}
}

func TestFinishedCallbackOnCancel(t *testing.T) {
	// One recipient per batch with a long interval, so the cancel lands
	// while the dispatcher waits and owns the terminal transition.
	f := newFixture(t, Options{BatchSize: 1, Concurrency: 1, BatchInterval: time.Minute})
	tmplID := f.seedTemplate(t, models.ChannelEmail)
	f.seedConsumer(t, "Alice", "alice@example.com", "")
	f.seedConsumer(t, "Bob", "bob@example.com", "")

	notified := make(chan string, 1)
	f.svc.OnCampaignFinished(func(tenantID string) { notified <- tenantID })

	firstSend := make(chan struct{})
	f.sender.onSend = func(n int) {
		if n == 1 {
			close(firstSend)
		}
	}

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := f.svc.Approve(camp.ID); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}

	select {
	case <-firstSend:
	case <-time.After(10 * time.Second):
		t.Fatal("first send never happened")
	}

	if _, err := f.svc.Cancel(camp.ID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	f.svc.Shutdown()

	select {
	case got := <-notified:
		if got != f.tenant {
			t.Errorf("callback tenant = %q, want %q", got, f.tenant)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("finished callback never fired on cancel")
	}
}

func TestCancelTerminalIsNoOp(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)
	f.seedConsumer(t, "Alice", "alice@example.com", "")

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := f.svc.Approve(camp.ID); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	done := waitForTerminal(t, f.svc, camp.ID)

	got, err := f.svc.Cancel(camp.ID)
	if err != nil {
		t.Fatalf("Cancel() on terminal campaign error: %v", err)
	}
	if got.Status != done.Status {
		t.Errorf("status changed from %q to %q on no-op cancel", done.Status, got.Status)
	}
	if got.TotalSent != done.TotalSent {
		t.Errorf("counters changed on no-op cancel")
	}
}

func TestCancelPendingRejected(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)
	f.seedConsumer(t, "Alice", "alice@example.com", "")

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := f.svc.Cancel(camp.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Cancel() error = %v, want ErrInvalidTransition", err)
	}
}

func TestFatalCredentialsRejection(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)

	for _, name := range []string{"a", "b", "c"} {
		f.seedConsumer(t, name, name+"@example.com", "")
	}

	f.sender.err = transport.ErrCredentialsRejected

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := f.svc.Approve(camp.ID); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}

	final := waitForTerminal(t, f.svc, camp.ID)
	if final.Status != models.StatusFailed {
		t.Errorf("status = %q, want %q", final.Status, models.StatusFailed)
	}
	if final.TotalErrors == 0 {
		t.Error("TotalErrors = 0, want > 0")
	}
}

func TestFatalConsecutiveFailures(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 10, BatchInterval: time.Millisecond, FatalErrorThreshold: 3})
	tmplID := f.seedTemplate(t, models.ChannelEmail)

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		f.seedConsumer(t, name, name+"@example.com", "")
	}

	f.sender.err = errors.New("mailbox on fire")

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := f.svc.Approve(camp.ID); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}

	final := waitForTerminal(t, f.svc, camp.ID)
	if final.Status != models.StatusFailed {
		t.Errorf("status = %q, want %q", final.Status, models.StatusFailed)
	}
	if final.TotalErrors != 5 {
		t.Errorf("TotalErrors = %d, want 5", final.TotalErrors)
	}
}

func TestDispatchRechecksOptOuts(t *testing.T) {
	// Batch size one so the opt-out recorded while batch one is in
	// flight suppresses the batch-two recipient.
	f := newFixture(t, Options{BatchSize: 1, Concurrency: 1, BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)

	f.seedConsumer(t, "Alice", "alice@example.com", "")
	b := f.seedConsumer(t, "Bob", "bob@example.com", "")

	gate := make(chan struct{}, 1)
	f.sender.gate = gate

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := f.svc.Approve(camp.ID); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}

	// Bob opts out while Alice's send waits on the gate.
	f.optOut(t, b.ID, models.ChannelEmail)
	gate <- struct{}{}
	gate <- struct{}{}

	final := waitForTerminal(t, f.svc, camp.ID)
	if final.Status != models.StatusCompleted {
		t.Fatalf("status = %q, want %q", final.Status, models.StatusCompleted)
	}
	if final.TotalSent != 1 {
		t.Errorf("TotalSent = %d, want 1", final.TotalSent)
	}
	if final.TotalOptOuts != 1 {
		t.Errorf("TotalOptOuts = %d, want 1", final.TotalOptOuts)
	}
}

func TestDeleteCancelsAndRemoves(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)
	f.seedConsumer(t, "Alice", "alice@example.com", "")

	camp, err := f.svc.Create(CreateRequest{
		TenantID:    f.tenant,
		Name:        "blast",
		TemplateID:  tmplID,
		Channel:     models.ChannelEmail,
		TargetGroup: models.TargetAll,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := f.svc.Delete(camp.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := f.svc.Get(camp.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := f.svc.Delete(camp.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestPreviewRendersSampleData(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})
	tmplID := f.seedTemplate(t, models.ChannelEmail)

	subject, body, err := f.svc.Preview(f.tenant, tmplID)
	if err != nil {
		t.Fatalf("Preview() error: %v", err)
	}
	if subject != "Hello Jane" {
		t.Errorf("subject = %q, want %q", subject, "Hello Jane")
	}
	if body != "<p>Your balance is $1234.56</p>" {
		t.Errorf("body = %q", body)
	}
}

func TestPreviewMissingTemplate(t *testing.T) {
	f := newFixture(t, Options{BatchInterval: time.Millisecond})

	if _, _, err := f.svc.Preview(f.tenant, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Preview() error = %v, want ErrNotFound", err)
	}
}
