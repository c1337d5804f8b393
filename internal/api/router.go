package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/event"
	"github.com/voyagecrm/notify/internal/domain/maillog"
	"github.com/voyagecrm/notify/internal/domain/mailqueue"
	"github.com/voyagecrm/notify/internal/domain/notification"
	"github.com/voyagecrm/notify/internal/domain/preference"
	"github.com/voyagecrm/notify/internal/services/push"
)

type Deps struct {
	Notifs notification.Repo
	Prefs  preference.Repo
	Queue  mailqueue.Repo
	Logs   maillog.Repo
	UC     Notifier
	Pub    event.Publisher
	Push   *push.Registry
	Log    *zap.Logger
}

// NewRouter assembles the REST surface plus the SSE stream endpoint.
func NewRouter(d Deps) http.Handler {
	nh := NewNotificationHandler(d.Notifs, d.UC, d.Pub, d.Log)
	ph := NewPreferenceHandler(d.Prefs, d.Log)
	ah := NewAdminHandler(d.Queue, d.Logs, d.Log)

	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/notifications", nh.List).Methods(http.MethodGet)
	v1.HandleFunc("/notifications", nh.Create).Methods(http.MethodPost)
	v1.HandleFunc("/notifications/unread-count", nh.UnreadCount).Methods(http.MethodGet)
	v1.HandleFunc("/notifications/read-all", nh.MarkAllRead).Methods(http.MethodPost)
	v1.HandleFunc("/notifications/read", nh.ClearRead).Methods(http.MethodDelete)
	v1.HandleFunc("/notifications/{id}", nh.Delete).Methods(http.MethodDelete)
	v1.HandleFunc("/notifications/{id}/read", nh.MarkRead).Methods(http.MethodPost)

	v1.HandleFunc("/preferences", ph.Get).Methods(http.MethodGet)
	v1.HandleFunc("/preferences", ph.Patch).Methods(http.MethodPatch)

	v1.HandleFunc("/admin/queue/stats", ah.QueueStats).Methods(http.MethodGet)
	v1.HandleFunc("/admin/queue/clean", ah.CleanQueue).Methods(http.MethodPost)
	v1.HandleFunc("/admin/queue/{id}/cancel", ah.CancelEntry).Methods(http.MethodPost)
	v1.HandleFunc("/email-logs", ah.EmailLogs).Methods(http.MethodGet)

	// The stream endpoint stays outside otelhttp: a span per long-lived
	// connection skews duration histograms.
	outer := http.NewServeMux()
	outer.Handle("/v1/stream", push.Handler(d.Push, d.Log))
	outer.Handle("/", otelhttp.NewHandler(r, "notify-api"))
	return outer
}
