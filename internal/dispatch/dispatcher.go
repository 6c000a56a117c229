// Package dispatch turns due campaigns into spooled per-recipient emails
// and drains the spool through the SMTP relay.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fernmail/fern/internal/metrics"
	"github.com/fernmail/fern/internal/models"
	"github.com/fernmail/fern/internal/repository"
	"github.com/fernmail/fern/internal/spool"
	"github.com/fernmail/fern/internal/template"
)

// Config holds dispatcher configuration
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	CompanyName  string
}

// Dispatcher fans out due campaigns into the outbound spool and marks
// campaigns sent once their spool entries are drained.
type Dispatcher struct {
	campaigns   *repository.CampaignRepository
	templates   *repository.TemplateRepository
	subscribers *repository.SubscriberRepository
	spool       *spool.BoltStorage
	logger      *slog.Logger

	pollInterval time.Duration
	batchSize    int
	companyName  string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(
	campaigns *repository.CampaignRepository,
	templates *repository.TemplateRepository,
	subscribers *repository.SubscriberRepository,
	storage *spool.BoltStorage,
	cfg Config,
	logger *slog.Logger,
) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		campaigns:    campaigns,
		templates:    templates,
		subscribers:  subscribers,
		spool:        storage,
		logger:       logger.With("component", "dispatcher"),
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		companyName:  cfg.CompanyName,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the dispatcher loop
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
	d.logger.Info("dispatcher started", "poll_interval", d.pollInterval, "batch_size", d.batchSize)
}

// Stop stops the dispatcher gracefully
func (d *Dispatcher) Stop() {
	d.logger.Info("stopping dispatcher...")
	d.cancel()
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.Tick(d.ctx, time.Now().UTC())
		}
	}
}

// Tick runs one dispatch round: fan out campaigns whose scheduled time
// has arrived, then close out campaigns whose spool entries are drained.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) {
	d.dispatchDue(ctx, now)
	d.finishCompleted(ctx, now)
	d.updateSpoolGauges(ctx)
}

func (d *Dispatcher) dispatchDue(ctx context.Context, now time.Time) {
	due, err := d.campaigns.DueScheduled(ctx, now, d.batchSize)
	if err != nil {
		d.logger.Error("failed to query due campaigns", "error", err)
		return
	}

	for _, campaign := range due {
		if err := d.fanOut(ctx, &campaign); err != nil {
			d.logger.Error("failed to dispatch campaign",
				"campaign_id", campaign.ID,
				"error", err,
			)
		}
	}
}

func (d *Dispatcher) fanOut(ctx context.Context, campaign *models.Campaign) error {
	logger := d.logger.With("campaign_id", campaign.ID, "campaign", campaign.Name)

	tmpl, err := d.templates.GetByID(ctx, campaign.TemplateID)
	if err != nil {
		return err
	}
	if tmpl == nil {
		logger.Error("campaign references missing template", "template_id", campaign.TemplateID)
		return nil
	}

	if _, err := d.campaigns.MarkSending(ctx, campaign.ID); err != nil {
		return err
	}

	recipients, err := d.subscribers.Subscribed(ctx)
	if err != nil {
		return err
	}

	subject := campaign.Subject
	if subject == "" {
		subject = tmpl.Subject
	}

	enqueued := 0
	for _, sub := range recipients {
		values := d.renderValues(campaign, sub)
		renderedSubject, renderedHTML, renderedText := template.RenderFields(subject, tmpl.HTML, tmpl.Text, values)

		msg := &spool.Message{
			ID:           uuid.New().String(),
			CampaignID:   campaign.ID,
			SubscriberID: sub.ID,
			To:           sub.Email,
			Subject:      renderedSubject,
			HTML:         renderedHTML,
			Text:         renderedText,
		}
		if err := d.spool.Enqueue(ctx, msg); err != nil {
			logger.Error("failed to spool message", "to", sub.Email, "error", err)
			continue
		}
		enqueued++
	}

	logger.Info("campaign dispatched to spool", "recipients", enqueued)
	return nil
}

// renderValues merges campaign constants with per-recipient system values.
// Campaign constants never shadow system variables.
func (d *Dispatcher) renderValues(campaign *models.Campaign, sub models.Subscriber) map[string]string {
	values := make(map[string]string, len(campaign.ConstantsValues)+3)
	for k, v := range campaign.ConstantsValues {
		values[k] = v
	}
	values[template.VarCompanyName] = d.companyName
	values[template.VarSubscriberEmail] = sub.Email
	values[template.VarSubscriberUsername] = sub.Username
	return values
}

func (d *Dispatcher) finishCompleted(ctx context.Context, now time.Time) {
	sending, err := d.campaigns.Sending(ctx)
	if err != nil {
		d.logger.Error("failed to query sending campaigns", "error", err)
		return
	}

	for _, campaign := range sending {
		remaining, err := d.spool.UndeliveredForCampaign(ctx, campaign.ID)
		if err != nil {
			d.logger.Error("failed to count undelivered messages",
				"campaign_id", campaign.ID,
				"error", err,
			)
			continue
		}
		if remaining > 0 {
			continue
		}

		if _, err := d.campaigns.MarkSent(ctx, campaign.ID, now); err != nil {
			d.logger.Error("failed to mark campaign sent",
				"campaign_id", campaign.ID,
				"error", err,
			)
			continue
		}
		metrics.IncCampaignsSent()
		d.logger.Info("campaign fully dispatched", "campaign_id", campaign.ID)
	}
}

func (d *Dispatcher) updateSpoolGauges(ctx context.Context) {
	stats, err := d.spool.Stats(ctx)
	if err != nil {
		d.logger.Error("failed to read spool stats", "error", err)
		return
	}
	metrics.SetSpoolSizes(stats.Pending, stats.Deferred, stats.Failed)
}
