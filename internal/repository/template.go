package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fernmail/fern/internal/models"
	"github.com/fernmail/fern/internal/template"
)

// TemplateRepository persists templates. The declared variable list is stored
// as a JSON column; older rows may still carry a JSON-string or
// comma-separated encoding, so reads normalize once here and downstream code
// only ever sees the canonical list.
type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create inserts a new template. ID and timestamps are assigned here; the
// variable list is deduplicated before storage.
func (r *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	t.Variables = template.NormalizeConstants(t.Variables)

	vars, err := json.Marshal(t.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO templates (id, name, subject, html, text, variables, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Subject, t.HTML, t.Text, string(vars), t.IsActive, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetByID returns a template by ID, or nil when it does not exist.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	t := &models.Template{}
	var rawVars string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, subject, html, COALESCE(text, ''), variables, is_active, created_at, updated_at
		FROM templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Subject, &t.HTML, &t.Text, &rawVars, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.Variables = template.NormalizeConstants(rawVars)
	return t, nil
}

// List returns templates with optional filtering plus the unpaginated total.
func (r *TemplateRepository) List(ctx context.Context, filter models.TemplateListFilter) ([]models.Template, int, error) {
	countQuery := "SELECT COUNT(*) FROM templates WHERE 1=1"
	args := []any{}

	if filter.Search != "" {
		countQuery += " AND name LIKE ?"
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.ActiveOnly {
		countQuery += " AND is_active = 1"
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, name, subject, html, COALESCE(text, ''), variables, is_active, created_at, updated_at
		FROM templates WHERE 1=1`

	args = []any{}
	if filter.Search != "" {
		query += " AND name LIKE ?"
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.ActiveOnly {
		query += " AND is_active = 1"
	}

	query += " ORDER BY updated_at DESC"

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

	templates := []models.Template{}
	for rows.Next() {
		var t models.Template
		var rawVars string
		err := rows.Scan(&t.ID, &t.Name, &t.Subject, &t.HTML, &t.Text, &rawVars, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		t.Variables = template.NormalizeConstants(rawVars)
		templates = append(templates, t)
	}

	return templates, total, rows.Err()
}

// Update rewrites a template's content and declared variables.
func (r *TemplateRepository) Update(ctx context.Context, t *models.Template) error {
	t.UpdatedAt = time.Now().UTC()
	t.Variables = template.NormalizeConstants(t.Variables)

	vars, err := json.Marshal(t.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE templates SET name = ?, subject = ?, html = ?, text = ?, variables = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Subject, t.HTML, t.Text, string(vars), t.IsActive, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
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

// Delete removes a template.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM templates WHERE id = ?", id)
	return err
}
