package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/event"
	"github.com/voyagecrm/notify/internal/domain/notification"
)

// Notifier is the orchestrator's surface the API needs.
type Notifier interface {
	Notify(ctx context.Context, ev *event.Event) error
}

type NotificationHandler struct {
	Repo notification.Repo
	UC   Notifier
	Pub  event.Publisher
	Log  *zap.Logger
}

func NewNotificationHandler(repo notification.Repo, uc Notifier, pub event.Publisher, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{Repo: repo, UC: uc, Pub: pub, Log: log}
}

// GET /v1/notifications?page=&limit=&unread_only=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+userIDHeader)
		return
	}
	p := notification.ListParams{
		Page:       queryInt(r, "page", 1),
		Limit:      queryInt(r, "limit", 20),
		UnreadOnly: r.URL.Query().Get("unread_only") == "true",
	}
	page, err := h.Repo.ListByUser(r.Context(), userID, p)
	if err != nil {
		writeRepoError(w, h.Log, "list notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GET /v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+userIDHeader)
		return
	}
	n, err := h.Repo.CountUnread(r.Context(), userID)
	if err != nil {
		writeRepoError(w, h.Log, "count unread", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": n})
}

// POST /v1/notifications runs the full pipeline: policy gate, store,
// push, optional email enqueue. With ?async=true the event goes onto
// the bus instead and the consumer picks it up.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+userIDHeader)
		return
	}
	var ev event.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if ev.UserID == 0 {
		ev.UserID = userID
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.URL.Query().Get("async") == "true" && h.Pub != nil {
		if err := h.Pub.PublishEvent(r.Context(), &ev); err != nil {
			h.Log.Error("publish event", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "publish failed")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	if err := h.UC.Notify(r.Context(), &ev); err != nil {
		h.Log.Error("notify", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "delivery failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// POST /v1/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, ok := h.owned(w, r)
	if !ok {
		return
	}
	updated, err := h.Repo.MarkRead(r.Context(), n.ID)
	if err != nil {
		writeRepoError(w, h.Log, "mark read", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// POST /v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+userIDHeader)
		return
	}
	n, err := h.Repo.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeRepoError(w, h.Log, "mark all read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// DELETE /v1/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	n, ok := h.owned(w, r)
	if !ok {
		return
	}
	if err := h.Repo.Delete(r.Context(), n.ID); err != nil {
		writeRepoError(w, h.Log, "delete notification", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DELETE /v1/notifications/read
func (h *NotificationHandler) ClearRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+userIDHeader)
		return
	}
	n, err := h.Repo.DeleteRead(r.Context(), userID)
	if err != nil {
		writeRepoError(w, h.Log, "clear read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// owned loads the path notification and checks it belongs to the caller.
func (h *NotificationHandler) owned(w http.ResponseWriter, r *http.Request) (*notification.Notification, bool) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+userIDHeader)
		return nil, false
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	n, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		writeRepoError(w, h.Log, "get notification", err)
		return nil, false
	}
	if n.UserID != userID {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	return n, true
}
