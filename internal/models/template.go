package models

import "time"

// Template represents a reusable email skeleton. Subject and HTML may contain
// {{identifier}} placeholders; Variables is the canonical declared list after
// boundary normalization. The declared list and the placeholders actually
// present in the content are allowed to diverge.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	HTML      string    `json:"html"`
	Text      string    `json:"text,omitempty"`
	Variables []string  `json:"variables"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateListFilter for filtering the template list
type TemplateListFilter struct {
	Search     string
	ActiveOnly bool
	Limit      int
	Offset     int
}
