package models

import "time"

// CampaignStatus is the closed campaign lifecycle enum.
type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusScheduled CampaignStatus = "scheduled"
	StatusSending   CampaignStatus = "sending"
	StatusSent      CampaignStatus = "sent"
	StatusCancelled CampaignStatus = "cancelled"
)

// Valid reports whether s is a known status value.
func (s CampaignStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusSending, StatusSent, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s CampaignStatus) Terminal() bool {
	return s == StatusSent || s == StatusCancelled
}

// statusTransitions enumerates every legal transition. Anything not listed
// here is rejected by CanTransitionTo.
var statusTransitions = map[CampaignStatus][]CampaignStatus{
	StatusDraft:     {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusSending, StatusScheduled, StatusCancelled},
	StatusSending:   {StatusSent},
}

// CanTransitionTo reports whether a transition from s to next is legal.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Campaign is a persisted submission result. ConstantsValues holds the
// operator-supplied custom variable bindings only; system variables are
// resolved per recipient at send time.
type Campaign struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Subject         string            `json:"subject"`
	TemplateID      string            `json:"template_id"`
	ConstantsValues map[string]string `json:"constants_values"`
	ScheduledFor    *time.Time        `json:"scheduled_for,omitempty"`
	SendTimezone    string            `json:"send_timezone,omitempty"`
	Status          CampaignStatus    `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	SentAt          *time.Time        `json:"sent_at,omitempty"`
}

// CampaignListFilter for filtering campaigns
type CampaignListFilter struct {
	Status CampaignStatus
	Limit  int
	Offset int
}

// CampaignStats aggregates per-recipient delivery outcomes from send logs.
type CampaignStats struct {
	Sent            int `json:"sent_count"`
	Failed          int `json:"failed_count"`
	TotalRecipients int `json:"total_recipients"`
}
