package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// NotificationService is the slice of the notification service the handler
// needs.
type NotificationService interface {
	Refresh(ctx context.Context) error
	List() ([]domain.Notification, int)
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) error
	Remove(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
}

// NotificationHandler serves the notification panel endpoints.
type NotificationHandler struct {
	notes  NotificationService
	logger *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(notes NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notes: notes, logger: logHandler(logger, "notifications")}
}

type listNotificationsResponse struct {
	Items       []domain.Notification `json:"items"`
	UnreadCount int                   `json:"unreadCount"`
}

// List returns notifications newest first with the unread count. A failed
// refresh serves the last list this process saw.
// GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.Refresh(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "refresh notifications failed", slog.String("error", err.Error()))
	}
	items, unread := h.notes.List()
	writeJSON(w, http.StatusOK, listNotificationsResponse{Items: items, UnreadCount: unread})
}

// MarkAsRead marks one notification read.
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.MarkAsRead(r.Context(), pathParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, "mark notification read", err)
		return
	}
	writeOK(w)
}

// MarkAllAsRead marks every notification read.
// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.MarkAllAsRead(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, "mark notifications read", err)
		return
	}
	writeOK(w)
}

// Remove deletes one notification.
// DELETE /api/notifications/{id}
func (h *NotificationHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.Remove(r.Context(), pathParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, "remove notification", err)
		return
	}
	writeOK(w)
}

// ClearAll deletes every notification.
// DELETE /api/notifications
func (h *NotificationHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.ClearAll(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, "clear notifications", err)
		return
	}
	writeOK(w)
}
