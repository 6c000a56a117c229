package models

import "time"

// Send log statuses
const (
	SendLogSent   = "sent"
	SendLogFailed = "failed"
)

// SendLog records the delivery outcome for one recipient of one campaign.
type SendLog struct {
	ID           string    `json:"id"`
	CampaignID   string    `json:"campaign_id"`
	SubscriberID string    `json:"subscriber_id"`
	Email        string    `json:"email"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
