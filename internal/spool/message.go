// Package spool is the durable outbound mail buffer. Rendered campaign
// emails wait here until a relay worker picks them up, so an SMTP outage
// or a restart never loses a recipient.
package spool

import (
	"time"
)

// MessageStatus represents the status of a message in the spool
type MessageStatus string

const (
	StatusPending  MessageStatus = "pending"
	StatusSending  MessageStatus = "sending"
	StatusSent     MessageStatus = "sent"
	StatusFailed   MessageStatus = "failed"
	StatusDeferred MessageStatus = "deferred"
)

// Message is one rendered email addressed to a single recipient
type Message struct {
	ID           string        `json:"id"`
	CampaignID   string        `json:"campaign_id"`
	SubscriberID string        `json:"subscriber_id"`
	To           string        `json:"to"`
	Subject      string        `json:"subject"`
	HTML         string        `json:"html"`
	Text         string        `json:"text,omitempty"`
	Status       MessageStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	NextRetryAt  time.Time     `json:"next_retry_at"`
	RetryCount   int           `json:"retry_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats represents spool statistics
type Stats struct {
	Pending  int64 `json:"pending"`
	Sending  int64 `json:"sending"`
	Sent     int64 `json:"sent"`
	Failed   int64 `json:"failed"`
	Deferred int64 `json:"deferred"`
	Total    int64 `json:"total"`
}
