package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fernmail/fern/internal/mailer"
	"github.com/fernmail/fern/internal/metrics"
	"github.com/fernmail/fern/internal/models"
	"github.com/fernmail/fern/internal/repository"
	"github.com/fernmail/fern/internal/spool"
)

// Sender relays one assembled message
type Sender interface {
	Send(ctx context.Context, from, to string, data []byte) error
}

// ProcessorConfig contains processor configuration
type ProcessorConfig struct {
	Workers         int
	RetryInterval   time.Duration
	MaxRetries      int
	ProcessInterval time.Duration
	FromAddress     string
	FromName        string
}

// Processor drains the spool through the SMTP relay with retries
type Processor struct {
	spool    *spool.BoltStorage
	sender   Sender
	sendLogs *repository.SendLogRepository
	logger   *slog.Logger

	workers         int
	retryInterval   time.Duration
	maxRetries      int
	processInterval time.Duration
	fromAddress     string
	fromName        string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewProcessor creates a new spool processor
func NewProcessor(storage *spool.BoltStorage, sender Sender, sendLogs *repository.SendLogRepository, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.ProcessInterval <= 0 {
		cfg.ProcessInterval = 10 * time.Second
	}

	return &Processor{
		spool:           storage,
		sender:          sender,
		sendLogs:        sendLogs,
		logger:          logger.With("component", "processor"),
		workers:         cfg.Workers,
		retryInterval:   cfg.RetryInterval,
		maxRetries:      cfg.MaxRetries,
		processInterval: cfg.ProcessInterval,
		fromAddress:     cfg.FromAddress,
		fromName:        cfg.FromName,
		stopCh:          make(chan struct{}),
	}
}

// Start starts the processor workers
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("starting spool processor", "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop stops the processor gracefully
func (p *Processor) Stop() {
	p.logger.Info("stopping spool processor")
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("spool processor stopped")
}

func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)

	ticker := time.NewTicker(p.processInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.ProcessOne(ctx, logger)
		}
	}
}

// ProcessOne delivers a single message from the spool, if one is ready
func (p *Processor) ProcessOne(ctx context.Context, logger *slog.Logger) {
	msg, err := p.spool.Dequeue(ctx)
	if err != nil {
		logger.Error("failed to dequeue message", "error", err)
		return
	}
	if msg == nil {
		return // spool is empty
	}

	logger = logger.With("message_id", msg.ID, "campaign_id", msg.CampaignID)

	data := mailer.BuildMessage(mailer.Envelope{
		From:     p.fromAddress,
		FromName: p.fromName,
		To:       msg.To,
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Text:     msg.Text,
	}, time.Now())

	sendCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	err = p.sender.Send(sendCtx, p.fromAddress, msg.To, data)
	cancel()

	if err == nil {
		msg.Status = spool.StatusSent
		if err := p.spool.Update(ctx, msg); err != nil {
			logger.Error("failed to update message status", "error", err)
		}
		p.recordOutcome(ctx, msg, models.SendLogSent, "")
		metrics.IncEmailsSent()
		logger.Info("message delivered", "to", msg.To)
		return
	}

	logger.Warn("delivery failed", "error", err, "retry_count", msg.RetryCount)

	msg.RetryCount++
	msg.LastError = err.Error()

	if isTemporary(err) && msg.RetryCount < p.maxRetries {
		backoff := p.calculateBackoff(msg.RetryCount)
		msg.Status = spool.StatusDeferred
		msg.NextRetryAt = time.Now().Add(backoff)

		if err := p.spool.Update(ctx, msg); err != nil {
			logger.Error("failed to defer message", "error", err)
		}
		logger.Info("message deferred",
			"retry_count", msg.RetryCount,
			"next_retry_at", msg.NextRetryAt,
		)
		return
	}

	if err := p.spool.MoveToDeadLetter(ctx, msg); err != nil {
		logger.Error("failed to move message to dead letter", "error", err)
	}
	p.recordOutcome(ctx, msg, models.SendLogFailed, msg.LastError)

	errorType := "permanent"
	if isTemporary(err) {
		errorType = "retries_exhausted"
	}
	metrics.IncEmailsFailed(errorType)

	logger.Error("message failed permanently",
		"retry_count", msg.RetryCount,
		"max_retries", p.maxRetries,
	)
}

func (p *Processor) recordOutcome(ctx context.Context, msg *spool.Message, status, errMsg string) {
	log := &models.SendLog{
		CampaignID:   msg.CampaignID,
		SubscriberID: msg.SubscriberID,
		Email:        msg.To,
		Status:       status,
		ErrorMessage: errMsg,
	}
	if err := p.sendLogs.Create(ctx, log); err != nil {
		p.logger.Error("failed to record send log", "message_id", msg.ID, "error", err)
	}
}

// calculateBackoff grows the retry interval exponentially, capped at an hour
func (p *Processor) calculateBackoff(retryCount int) time.Duration {
	multiplier := 1 << (retryCount - 1)
	if multiplier > 12 {
		multiplier = 12
	}

	backoff := time.Duration(multiplier) * p.retryInterval

	maxBackoff := time.Hour
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}

func isTemporary(err error) bool {
	var de *mailer.DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true
}
