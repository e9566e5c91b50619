package domain

import "time"

// NotificationType identifies the lifecycle event a notification reports.
type NotificationType string

const (
	NotifyOfferReceived NotificationType = "offer_received"
	NotifyOfferAccepted NotificationType = "offer_accepted"
	NotifyOfferRejected NotificationType = "offer_rejected"
	NotifyOfferExpired  NotificationType = "offer_expired"
	NotifyMarketOpened  NotificationType = "market_opened"
	NotifyMarketClosed  NotificationType = "market_closed"
)

// DefaultNotificationCap is the number of most recent notifications retained.
const DefaultNotificationCap = 50

// NotificationData links a notification back to the offer that caused it.
type NotificationData struct {
	OfferID    string  `json:"offerId,omitempty"`
	PlayerName string  `json:"playerName,omitempty"`
	ClubName   string  `json:"clubName,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
}

// Notification is a user-facing record of a lifecycle transition.
type Notification struct {
	ID        string            `json:"id"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Read      bool              `json:"read"`
	Data      *NotificationData `json:"data,omitempty"`
}

// CountUnread returns the number of notifications with Read == false.
func CountUnread(items []Notification) int {
	n := 0
	for _, it := range items {
		if !it.Read {
			n++
		}
	}
	return n
}
