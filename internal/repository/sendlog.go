package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fernmail/fern/internal/models"
)

// SendLogRepository records per-recipient delivery outcomes.
type SendLogRepository struct {
	db *sql.DB
}

func NewSendLogRepository(db *sql.DB) *SendLogRepository {
	return &SendLogRepository{db: db}
}

// Create inserts one delivery outcome.
func (r *SendLogRepository) Create(ctx context.Context, l *models.SendLog) error {
	l.ID = uuid.New().String()
	l.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_send_logs (id, campaign_id, subscriber_id, email, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.CampaignID, l.SubscriberID, l.Email, l.Status, l.ErrorMessage, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create send log: %w", err)
	}
	return nil
}

// Stats aggregates outcomes for one campaign.
func (r *SendLogRepository) Stats(ctx context.Context, campaignID string) (models.CampaignStats, error) {
	var stats models.CampaignStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN status = 'sent' THEN 1 END),
			COUNT(CASE WHEN status = 'failed' THEN 1 END),
			COUNT(*)
		FROM campaign_send_logs WHERE campaign_id = ?`, campaignID,
	).Scan(&stats.Sent, &stats.Failed, &stats.TotalRecipients)
	if err != nil && err != sql.ErrNoRows {
		return models.CampaignStats{}, err
	}
	return stats, nil
}
