package dispatch

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fernmail/fern/internal/db"
	"github.com/fernmail/fern/internal/models"
	"github.com/fernmail/fern/internal/repository"
	"github.com/fernmail/fern/internal/spool"
)

type testEnv struct {
	campaigns   *repository.CampaignRepository
	templates   *repository.TemplateRepository
	subscribers *repository.SubscriberRepository
	sendLogs    *repository.SendLogRepository
	spool       *spool.BoltStorage
	logger      *slog.Logger
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	raw, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	database := &db.DB{DB: raw}
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	storage, err := spool.NewBoltStorage(filepath.Join(t.TempDir(), "spool.db"))
	if err != nil {
		t.Fatalf("failed to open spool: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	return &testEnv{
		campaigns:   repository.NewCampaignRepository(raw),
		templates:   repository.NewTemplateRepository(raw),
		subscribers: repository.NewSubscriberRepository(raw),
		sendLogs:    repository.NewSendLogRepository(raw),
		spool:       storage,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (e *testEnv) dispatcher() *Dispatcher {
	return NewDispatcher(e.campaigns, e.templates, e.subscribers, e.spool, Config{
		CompanyName: "Fern Co",
	}, e.logger)
}

func seedCampaign(t *testing.T, e *testEnv, scheduledFor time.Time) *models.Campaign {
	t.Helper()
	ctx := context.Background()

	tmpl := &models.Template{
		Name:     "Promo",
		Subject:  "{{offer_code}} for {{subscriber_username}}",
		HTML:     "<p>Hi {{subscriber_username}}, {{offer_code}} at {{company_name}}</p>",
		Text:     "Hi {{subscriber_username}}",
		IsActive: true,
	}
	if err := e.templates.Create(ctx, tmpl); err != nil {
		t.Fatalf("create template: %v", err)
	}

	campaign := &models.Campaign{
		Name:       "June Promo",
		Subject:    tmpl.Subject,
		TemplateID: tmpl.ID,
		ConstantsValues: map[string]string{
			"offer_code":   "SPRING20",
			"company_name": "attacker", // must not shadow the system value
		},
	}
	if err := e.campaigns.Create(ctx, campaign); err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if _, err := e.campaigns.Schedule(ctx, campaign.ID, scheduledFor, "UTC"); err != nil {
		t.Fatalf("schedule campaign: %v", err)
	}
	return campaign
}

func TestDispatcherFanOut(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	for _, email := range []string{"jane@example.com", "gone@example.com"} {
		s := &models.Subscriber{Email: email, Username: strings.Split(email, "@")[0]}
		if err := e.subscribers.Create(ctx, s); err != nil {
			t.Fatalf("create subscriber: %v", err)
		}
	}
	if err := e.subscribers.Unsubscribe(ctx, "gone@example.com"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	campaign := seedCampaign(t, e, time.Now().Add(-time.Minute).UTC())

	d := e.dispatcher()
	d.Tick(ctx, time.Now().UTC())

	got, err := e.campaigns.GetByID(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.StatusSending {
		t.Errorf("Status = %v, want sending", got.Status)
	}

	// only the subscribed recipient is spooled
	stats, err := e.spool.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Pending != 1 {
		t.Fatalf("spool pending = %d, want 1", stats.Pending)
	}

	msg, err := e.spool.Dequeue(ctx)
	if err != nil || msg == nil {
		t.Fatalf("Dequeue() = %v, %v", msg, err)
	}
	if msg.To != "jane@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	if msg.Subject != "SPRING20 for jane" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if msg.HTML != "<p>Hi jane, SPRING20 at Fern Co</p>" {
		t.Errorf("HTML = %q", msg.HTML)
	}
}

func TestDispatcherNotDueYet(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	s := &models.Subscriber{Email: "jane@example.com", Username: "jane"}
	if err := e.subscribers.Create(ctx, s); err != nil {
		t.Fatalf("create subscriber: %v", err)
	}
	campaign := seedCampaign(t, e, time.Now().Add(time.Hour).UTC())

	d := e.dispatcher()
	d.Tick(ctx, time.Now().UTC())

	got, _ := e.campaigns.GetByID(ctx, campaign.ID)
	if got.Status != models.StatusScheduled {
		t.Errorf("Status = %v, want scheduled", got.Status)
	}
	stats, _ := e.spool.Stats(ctx)
	if stats.Total != 0 {
		t.Errorf("spool total = %d, want 0", stats.Total)
	}
}

func TestDispatcherMarksSentWhenDrained(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	s := &models.Subscriber{Email: "jane@example.com", Username: "jane"}
	if err := e.subscribers.Create(ctx, s); err != nil {
		t.Fatalf("create subscriber: %v", err)
	}
	campaign := seedCampaign(t, e, time.Now().Add(-time.Minute).UTC())

	d := e.dispatcher()
	d.Tick(ctx, time.Now().UTC())

	// still messages in flight: stays sending
	got, _ := e.campaigns.GetByID(ctx, campaign.ID)
	if got.Status != models.StatusSending {
		t.Fatalf("Status = %v, want sending", got.Status)
	}

	// drain the spool
	msg, _ := e.spool.Dequeue(ctx)
	msg.Status = spool.StatusSent
	if err := e.spool.Update(ctx, msg); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	d.Tick(ctx, time.Now().UTC())

	got, _ = e.campaigns.GetByID(ctx, campaign.ID)
	if got.Status != models.StatusSent {
		t.Errorf("Status = %v, want sent", got.Status)
	}
	if got.SentAt == nil {
		t.Error("SentAt not recorded")
	}
}

func TestDispatcherMissingTemplate(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	campaign := &models.Campaign{
		Name:       "Orphan",
		Subject:    "s",
		TemplateID: "deleted",
	}
	if err := e.campaigns.Create(ctx, campaign); err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if _, err := e.campaigns.Schedule(ctx, campaign.ID, time.Now().Add(-time.Minute), "UTC"); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	d := e.dispatcher()
	d.Tick(ctx, time.Now().UTC())

	// left scheduled so the operator can fix or cancel it
	got, _ := e.campaigns.GetByID(ctx, campaign.ID)
	if got.Status != models.StatusScheduled {
		t.Errorf("Status = %v, want scheduled", got.Status)
	}
}
