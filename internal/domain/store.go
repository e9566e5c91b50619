package domain

import (
	"context"
	"time"
)

// AuditQuery selects audit entries. Zero values match everything.
type AuditQuery struct {
	Limit       int
	Offset      int
	Since       *time.Time
	Until       *time.Time
	EventPrefix string // e.g. "offer." or "archive."
	OfferID     string
}

// OfferStore persists transfer offers. List returns offers in insertion
// order; Put inserts or replaces by ID without moving an existing offer.
type OfferStore interface {
	Get(ctx context.Context, id string) (Offer, error)
	List(ctx context.Context) ([]Offer, error)
	Put(ctx context.Context, offer Offer) error
	PutBatch(ctx context.Context, offers []Offer) error
	Delete(ctx context.Context, id string) error
}

// NotificationStore persists the notification list as a whole. Items are
// ordered newest first.
type NotificationStore interface {
	Load(ctx context.Context) ([]Notification, error)
	Save(ctx context.Context, items []Notification) error
}

// PlayerDirectory resolves player reference data.
type PlayerDirectory interface {
	GetPlayer(ctx context.Context, id string) (Player, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, q AuditQuery) ([]AuditEntry, error)
}
