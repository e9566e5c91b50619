// Package notify forwards transfer notifications to external channels
// (Telegram, Discord, an AMQP exchange). Operators choose which notification
// types leave the process.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// Sender is implemented by each external channel.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
	Name() string
}

// Notifier dispatches notifications to every Sender whose type passes the
// configured filter. An empty filter lets everything through.
type Notifier struct {
	senders []Sender
	events  map[domain.NotificationType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for senders, forwarding only the listed
// notification types.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.NotificationType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.NotificationType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify delivers n to every sender. One failing sender does not stop the
// others; the failures are combined into the returned error.
func (n *Notifier) Notify(ctx context.Context, note domain.Notification) error {
	if len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[note.Type] {
		n.logger.DebugContext(ctx, "notification filtered out", slog.String("type", string(note.Type)))
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, note); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", note.Title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// Close releases senders that hold connections.
func (n *Notifier) Close() error {
	for _, s := range n.senders {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				n.logger.Warn("close sender", slog.String("sender", s.Name()), slog.String("error", err.Error()))
			}
		}
	}
	return nil
}
