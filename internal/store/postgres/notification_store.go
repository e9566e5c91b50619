package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lavirtualzone/transfers/internal/domain"
)

var _ domain.NotificationStore = (*NotificationStore)(nil)

// NotificationStore implements domain.NotificationStore using PostgreSQL.
// Save replaces the whole table inside one transaction.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a new NotificationStore backed by pool.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Load returns notifications newest first.
func (s *NotificationStore) Load(ctx context.Context) ([]domain.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, title, message, timestamp, read, data FROM notifications ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load notifications: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var items []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var typ string
		var data []byte
		if err := rows.Scan(&n.ID, &typ, &n.Title, &n.Message, &n.Timestamp, &n.Read, &data); err != nil {
			return nil, fmt.Errorf("postgres: scan notification: %w: %w", domain.ErrPersistence, err)
		}
		n.Type = domain.NotificationType(typ)
		n.Timestamp = n.Timestamp.UTC()
		if data != nil {
			n.Data = &domain.NotificationData{}
			if err := json.Unmarshal(data, n.Data); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal notification data: %w: %w", domain.ErrPersistence, err)
			}
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load notifications rows: %w: %w", domain.ErrPersistence, err)
	}
	return items, nil
}

// Save replaces the stored list with items.
func (s *NotificationStore) Save(ctx context.Context, items []domain.Notification) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save notifications: %w: %w", domain.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM notifications`); err != nil {
		return fmt.Errorf("postgres: clear notifications: %w: %w", domain.ErrPersistence, err)
	}

	batch := &pgx.Batch{}
	const insert = `INSERT INTO notifications (position, id, type, title, message, timestamp, read, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for i, n := range items {
		var data []byte
		if n.Data != nil {
			if data, err = json.Marshal(n.Data); err != nil {
				return fmt.Errorf("postgres: marshal notification data: %w", err)
			}
		}
		batch.Queue(insert, i, n.ID, string(n.Type), n.Title, n.Message, n.Timestamp, n.Read, data)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert notifications: %w: %w", domain.ErrPersistence, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit notifications: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}
