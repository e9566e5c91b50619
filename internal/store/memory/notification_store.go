package memory

import (
	"context"
	"sync"

	"github.com/lavirtualzone/transfers/internal/domain"
)

var _ domain.NotificationStore = (*NotificationStore)(nil)

// NotificationStore holds the notification list in memory.
type NotificationStore struct {
	mu    sync.Mutex
	items []domain.Notification
}

// NewNotificationStore returns an empty NotificationStore.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

func (s *NotificationStore) Load(_ context.Context) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.items...), nil
}

func (s *NotificationStore) Save(_ context.Context, items []domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]domain.Notification(nil), items...)
	return nil
}
