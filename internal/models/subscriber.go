package models

import "time"

// Subscriber statuses
const (
	SubscriberSubscribed   = "subscribed"
	SubscriberUnsubscribed = "unsubscribed"
)

// Subscriber is a campaign recipient. Email and username feed the
// system variables resolved at send time.
type Subscriber struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
