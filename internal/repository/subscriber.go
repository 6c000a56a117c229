package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fernmail/fern/internal/models"
)

// SubscriberRepository persists the recipient audience.
type SubscriberRepository struct {
	db *sql.DB
}

func NewSubscriberRepository(db *sql.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// Create inserts a new subscriber in subscribed status.
func (r *SubscriberRepository) Create(ctx context.Context, s *models.Subscriber) error {
	s.ID = uuid.New().String()
	s.CreatedAt = time.Now().UTC()
	if s.Status == "" {
		s.Status = models.SubscriberSubscribed
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, email, username, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Email, s.Username, s.Status, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	return nil
}

// Subscribed returns every subscriber eligible to receive campaigns.
func (r *SubscriberRepository) Subscribed(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, COALESCE(username, ''), status, created_at
		FROM subscribers WHERE status = ? ORDER BY created_at`,
		models.SubscriberSubscribed,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subscribers := []models.Subscriber{}
	for rows.Next() {
		var s models.Subscriber
		if err := rows.Scan(&s.ID, &s.Email, &s.Username, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		subscribers = append(subscribers, s)
	}
	return subscribers, rows.Err()
}

// Unsubscribe flips a subscriber to unsubscribed by email.
func (r *SubscriberRepository) Unsubscribe(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE subscribers SET status = ? WHERE email = ?",
		models.SubscriberUnsubscribed, email,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
