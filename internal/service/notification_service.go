package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// Emitter records lifecycle notifications.
type Emitter interface {
	Emit(ctx context.Context, typ domain.NotificationType, title, message string, data *domain.NotificationData) (domain.Notification, error)
}

// Forwarder delivers a notification outside the process.
type Forwarder interface {
	Notify(ctx context.Context, n domain.Notification) error
}

const forwardTimeout = 15 * time.Second

// NotificationService owns the notification list. It keeps the newest
// entries first, bounded by a cap, and is the only writer of the read flag.
// Every mutation is persisted before it becomes visible.
type NotificationService struct {
	mu    sync.Mutex
	items []domain.Notification

	store     domain.NotificationStore
	bus       domain.SignalBus // optional
	forwarder Forwarder        // optional
	maxItems  int
	opts      options
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewNotificationService creates a NotificationService. A maxItems below one
// uses domain.DefaultNotificationCap.
func NewNotificationService(
	store domain.NotificationStore,
	bus domain.SignalBus,
	forwarder Forwarder,
	maxItems int,
	logger *slog.Logger,
	opts ...Option,
) *NotificationService {
	if maxItems < 1 {
		maxItems = domain.DefaultNotificationCap
	}
	return &NotificationService{
		store:     store,
		bus:       bus,
		forwarder: forwarder,
		maxItems:  maxItems,
		opts:      applyOptions(opts),
		logger:    logger.With(slog.String("component", "notifications")),
	}
}

// Load replaces the in-memory list with the persisted one, truncated to the
// cap. The unread count is always derived from the loaded items.
func (s *NotificationService) Load(ctx context.Context) error {
	s.mu.Lock()
	err := s.reload(ctx)
	count, unread := len(s.items), domain.CountUnread(s.items)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "notifications loaded",
		slog.Int("count", count),
		slog.Int("unread", unread),
	)
	return nil
}

// Refresh picks up notifications written to the shared store by other
// processes, such as a worker expiring offers.
func (s *NotificationService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload(ctx)
}

// reload reads the store into s.items. Callers hold s.mu.
func (s *NotificationService) reload(ctx context.Context) error {
	items, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("notifications: load: %w", err)
	}
	if len(items) > s.maxItems {
		items = items[:s.maxItems]
	}
	s.items = items
	return nil
}

// Emit prepends a new unread notification, evicting the oldest beyond the
// cap, then publishes it on the bus and forwards it to external channels.
func (s *NotificationService) Emit(
	ctx context.Context,
	typ domain.NotificationType,
	title, message string,
	data *domain.NotificationData,
) (domain.Notification, error) {
	n := domain.Notification{
		ID:        s.opts.newID(),
		Type:      typ,
		Title:     title,
		Message:   message,
		Timestamp: s.opts.now(),
		Data:      data,
	}

	err := s.mutate(ctx, func(items []domain.Notification) ([]domain.Notification, error) {
		next := make([]domain.Notification, 0, min(len(items)+1, s.maxItems))
		next = append(next, n)
		next = append(next, items...)
		if len(next) > s.maxItems {
			next = next[:s.maxItems]
		}
		return next, nil
	})
	if err != nil {
		return domain.Notification{}, err
	}

	s.publish(ctx, n)
	return n, nil
}

// MarkAsRead marks one notification read.
func (s *NotificationService) MarkAsRead(ctx context.Context, id string) error {
	return s.mutate(ctx, func(items []domain.Notification) ([]domain.Notification, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, domain.ErrNotFound
		}
		next := cloneItems(items)
		next[i].Read = true
		return next, nil
	})
}

// MarkAllAsRead marks every notification read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context) error {
	return s.mutate(ctx, func(items []domain.Notification) ([]domain.Notification, error) {
		next := cloneItems(items)
		for i := range next {
			next[i].Read = true
		}
		return next, nil
	})
}

// Remove deletes one notification.
func (s *NotificationService) Remove(ctx context.Context, id string) error {
	return s.mutate(ctx, func(items []domain.Notification) ([]domain.Notification, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, domain.ErrNotFound
		}
		next := make([]domain.Notification, 0, len(items)-1)
		next = append(next, items[:i]...)
		return append(next, items[i+1:]...), nil
	})
}

// ClearAll deletes every notification.
func (s *NotificationService) ClearAll(ctx context.Context) error {
	return s.mutate(ctx, func([]domain.Notification) ([]domain.Notification, error) {
		return []domain.Notification{}, nil
	})
}

// List returns a copy of the notifications, newest first, and the unread
// count computed from that same snapshot.
func (s *NotificationService) List() ([]domain.Notification, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := cloneItems(s.items)
	return items, domain.CountUnread(items)
}

// UnreadCount returns the number of unread notifications.
func (s *NotificationService) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CountUnread(s.items)
}

// Wait blocks until in-flight external deliveries finish.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

// mutate re-reads the store, applies fn, persists the result and only then
// swaps it in. Re-reading keeps entries saved by another process sharing the
// store. On any error the persisted list is left unchanged.
func (s *NotificationService) mutate(ctx context.Context, fn func([]domain.Notification) ([]domain.Notification, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reload(ctx); err != nil {
		return err
	}
	next, err := fn(s.items)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return fmt.Errorf("notifications: save: %w", err)
	}
	s.items = next
	return nil
}

func (s *NotificationService) publish(ctx context.Context, n domain.Notification) {
	if s.bus != nil {
		if payload, err := json.Marshal(n); err == nil {
			if err := s.bus.Publish(ctx, domain.ChannelNotifications, payload); err != nil {
				s.logger.WarnContext(ctx, "publish notification failed",
					slog.String("id", n.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if s.forwarder == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forwardTimeout)
		defer cancel()
		if err := s.forwarder.Notify(fctx, n); err != nil {
			s.logger.Warn("forward notification failed",
				slog.String("id", n.ID),
				slog.String("type", string(n.Type)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func indexOf(items []domain.Notification, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func cloneItems(items []domain.Notification) []domain.Notification {
	return append(make([]domain.Notification, 0, len(items)), items...)
}
