package jsonstore

import (
	"context"
	"encoding/json"

	"github.com/lavirtualzone/transfers/internal/domain"
)

var _ domain.NotificationStore = (*NotificationStore)(nil)

// NotificationStore persists the notification list as one JSON array.
type NotificationStore struct {
	doc Document
}

// NewNotificationStore returns a NotificationStore persisted in doc.
func NewNotificationStore(doc Document) *NotificationStore {
	return &NotificationStore{doc: doc}
}

func (s *NotificationStore) Load(ctx context.Context) ([]domain.Notification, error) {
	data, err := s.doc.Read(ctx)
	if err != nil {
		return nil, persistErr("read", s.doc.Location(), err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var items []domain.Notification
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, persistErr("decode", s.doc.Location(), err)
	}
	return items, nil
}

func (s *NotificationStore) Save(ctx context.Context, items []domain.Notification) error {
	if items == nil {
		items = []domain.Notification{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return persistErr("encode", s.doc.Location(), err)
	}
	if err := s.doc.Write(ctx, data); err != nil {
		return persistErr("write", s.doc.Location(), err)
	}
	return nil
}
