package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fernmail/fern/internal/models"
)

// CampaignRepository persists campaigns and enforces the status lifecycle on
// every post-creation transition.
type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, name, subject, COALESCE(template_id, ''), constants_values, scheduled_for,
	COALESCE(send_timezone, ''), status, created_at, updated_at, sent_at`

func scanCampaign(scan func(...any) error) (*models.Campaign, error) {
	c := &models.Campaign{}
	var rawValues string
	err := scan(&c.ID, &c.Name, &c.Subject, &c.TemplateID, &rawValues, &c.ScheduledFor,
		&c.SendTimezone, &c.Status, &c.CreatedAt, &c.UpdatedAt, &c.SentAt)
	if err != nil {
		return nil, err
	}
	c.ConstantsValues = map[string]string{}
	if rawValues != "" {
		if err := json.Unmarshal([]byte(rawValues), &c.ConstantsValues); err != nil {
			// tolerate a corrupt bindings column; the campaign itself is
			// still addressable
			c.ConstantsValues = map[string]string{}
		}
	}
	return c, nil
}

// Create inserts a new campaign in draft status. ID and timestamps are
// assigned here.
func (r *CampaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	c.ID = uuid.New().String()
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = models.StatusDraft
	}
	if !c.Status.Valid() {
		return fmt.Errorf("invalid campaign status %q", c.Status)
	}
	if c.ConstantsValues == nil {
		c.ConstantsValues = map[string]string{}
	}

	values, err := json.Marshal(c.ConstantsValues)
	if err != nil {
		return fmt.Errorf("failed to encode constants values: %w", err)
	}

	var templateID any
	if c.TemplateID != "" {
		templateID = c.TemplateID
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, subject, template_id, constants_values, scheduled_for, send_timezone, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Subject, templateID, string(values), c.ScheduledFor, c.SendTimezone, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID, or nil when it does not exist.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+campaignColumns+" FROM campaigns WHERE id = ?", id)
	c, err := scanCampaign(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns campaigns newest-first with optional status filtering plus the
// unpaginated total for the same filter.
func (r *CampaignRepository) List(ctx context.Context, filter models.CampaignListFilter) ([]models.Campaign, int, error) {
	countQuery := "SELECT COUNT(*) FROM campaigns WHERE 1=1"
	args := []any{}
	if filter.Status != "" {
		countQuery += " AND status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + campaignColumns + " FROM campaigns WHERE 1=1"
	args = []any{}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, total, rows.Err()
}

// transition loads the campaign, checks the lifecycle and applies updates
// atomically.
func (r *CampaignRepository) transition(ctx context.Context, id string, to models.CampaignStatus, apply func(*models.Campaign)) (*models.Campaign, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+campaignColumns+" FROM campaigns WHERE id = ?", id)
	c, err := scanCampaign(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if !c.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}

	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	if apply != nil {
		apply(c)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE campaigns SET status = ?, scheduled_for = ?, send_timezone = ?, sent_at = ?, updated_at = ?
		WHERE id = ?`,
		c.Status, c.ScheduledFor, c.SendTimezone, c.SentAt, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

// Schedule moves a draft campaign to scheduled with a new send time.
func (r *CampaignRepository) Schedule(ctx context.Context, id string, at time.Time, timezone string) (*models.Campaign, error) {
	return r.transition(ctx, id, models.StatusScheduled, func(c *models.Campaign) {
		t := at.UTC()
		c.ScheduledFor = &t
		if timezone != "" {
			c.SendTimezone = timezone
		}
	})
}

// Cancel moves a draft or scheduled campaign to cancelled.
func (r *CampaignRepository) Cancel(ctx context.Context, id string) (*models.Campaign, error) {
	return r.transition(ctx, id, models.StatusCancelled, nil)
}

// MarkSending moves a scheduled campaign to sending.
func (r *CampaignRepository) MarkSending(ctx context.Context, id string) (*models.Campaign, error) {
	return r.transition(ctx, id, models.StatusSending, nil)
}

// MarkSent moves a sending campaign to sent and records the completion time.
func (r *CampaignRepository) MarkSent(ctx context.Context, id string, at time.Time) (*models.Campaign, error) {
	return r.transition(ctx, id, models.StatusSent, func(c *models.Campaign) {
		t := at.UTC()
		c.SentAt = &t
	})
}

// DueScheduled returns scheduled campaigns whose send time has passed.
func (r *CampaignRepository) DueScheduled(ctx context.Context, now time.Time, limit int) ([]models.Campaign, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?
		ORDER BY scheduled_for ASC LIMIT ?`,
		models.StatusScheduled, now.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// Sending returns campaigns currently in the sending state.
func (r *CampaignRepository) Sending(ctx context.Context) ([]models.Campaign, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+campaignColumns+" FROM campaigns WHERE status = ?", models.StatusSending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}
