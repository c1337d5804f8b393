package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/maillog"
	"github.com/voyagecrm/notify/internal/domain/mailqueue"
)

// AdminHandler exposes queue administration and the email audit trail.
type AdminHandler struct {
	Queue mailqueue.Repo
	Logs  maillog.Repo
	Log   *zap.Logger
}

func NewAdminHandler(queue mailqueue.Repo, logs maillog.Repo, log *zap.Logger) *AdminHandler {
	return &AdminHandler{Queue: queue, Logs: logs, Log: log}
}

// GET /v1/admin/queue/stats
func (h *AdminHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Queue.Stats(r.Context())
	if err != nil {
		writeRepoError(w, h.Log, "queue stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// POST /v1/admin/queue/{id}/cancel cancels a pending entry. An entry
// already picked up or settled reports a conflict.
func (h *AdminHandler) CancelEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.Queue.Cancel(r.Context(), id); err != nil {
		writeRepoError(w, h.Log, "cancel entry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// POST /v1/admin/queue/clean?days=30 removes settled entries older than
// the retention window.
func (h *AdminHandler) CleanQueue(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	if days < 1 {
		writeError(w, http.StatusBadRequest, "days must be positive")
		return
	}
	n, err := h.Queue.DeleteOld(r.Context(), days)
	if err != nil {
		writeRepoError(w, h.Log, "clean queue", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// GET /v1/email-logs?limit=50 lists the caller's terminal send outcomes.
func (h *AdminHandler) EmailLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+userIDHeader)
		return
	}
	limit := queryInt(r, "limit", 50)
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	logs, err := h.Logs.ListByUser(r.Context(), userID, limit)
	if err != nil {
		writeRepoError(w, h.Log, "list email logs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": logs})
}
