package push

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/notification"
)

var (
	mActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "push_active_streams", Help: "Live push connections.",
	})
	mOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_streams_opened_total", Help: "Streams opened.",
	})
	mReplaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_streams_replaced_total", Help: "Streams closed by a newer connection of the same user.",
	})
	mEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_events_total", Help: "Events enqueued to streams.",
	}, []string{"kind"})
	mDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_streams_dropped_total", Help: "Streams dropped for slow consumption or timeout.",
	})
)

type Config struct {
	Heartbeat time.Duration
	IdleTTL   time.Duration
	Buffer    int
}

// Registry keeps at most one live stream per user. It is the only
// concurrently-mutated in-memory state in the service; a single mutex
// around the map is enough for the single-key access pattern.
type Registry struct {
	mu      sync.Mutex
	streams map[int64]*Stream

	cfg Config
	log *zap.Logger
}

func NewRegistry(cfg Config, log *zap.Logger) *Registry {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	return &Registry{
		streams: make(map[int64]*Stream),
		cfg:     cfg,
		log:     log.With(zap.String("component", "push.registry")),
	}
}

// Open registers a stream for the user, closing any previous one first
// (last open wins). The connected frame is already buffered when Open
// returns, so the first event a client sees is always "connected".
func (r *Registry) Open(userID int64) *Stream {
	s := newStream(userID, r.cfg.Buffer)
	s.push(Event{Event: EventConnected, Timestamp: time.Now().UTC()})

	r.mu.Lock()
	old := r.streams[userID]
	r.streams[userID] = s
	r.mu.Unlock()

	if old != nil {
		old.close("replaced by newer connection")
		mReplaced.Inc()
	}
	mOpened.Inc()
	mActive.Set(float64(r.Len()))
	r.log.Debug("stream opened", zap.Int64("user_id", userID))

	go r.watch(s)
	return s
}

// watch drives heartbeats and the idle ceiling for one stream.
func (r *Registry) watch(s *Stream) {
	hb := time.NewTicker(r.cfg.Heartbeat)
	defer hb.Stop()
	ttl := time.NewTimer(r.cfg.IdleTTL)
	defer ttl.Stop()

	for {
		select {
		case <-s.done:
			r.remove(s)
			return
		case <-hb.C:
			if !s.push(Event{Event: EventHeartbeat, Timestamp: time.Now().UTC()}) {
				r.Drop(s, "slow consumer")
				return
			}
			mEvents.WithLabelValues(EventHeartbeat).Inc()
		case <-ttl.C:
			r.Drop(s, "session timeout")
			return
		}
	}
}

// Send pushes a notification to the user's live stream. No connection
// is a silent no-op: the store write is the durable truth, the stream
// is best-effort.
func (r *Registry) Send(userID int64, n *notification.Notification) bool {
	r.mu.Lock()
	s := r.streams[userID]
	r.mu.Unlock()
	if s == nil {
		return false
	}
	if !s.push(Event{Event: EventNotification, Data: n, Timestamp: time.Now().UTC()}) {
		r.Drop(s, "slow consumer")
		return false
	}
	mEvents.WithLabelValues(EventNotification).Inc()
	return true
}

// Drop closes a stream and removes it from the registry. Safe to call
// more than once and from any goroutine.
func (r *Registry) Drop(s *Stream, reason string) {
	s.close(reason)
	if r.remove(s) {
		mDropped.Inc()
		r.log.Debug("stream dropped", zap.Int64("user_id", s.userID), zap.String("reason", reason))
	}
}

// remove deletes the map entry only if it still points at s, so a
// replaced stream never evicts its successor.
func (r *Registry) remove(s *Stream) bool {
	r.mu.Lock()
	cur, ok := r.streams[s.userID]
	if ok && cur == s {
		delete(r.streams, s.userID)
	} else {
		ok = false
	}
	r.mu.Unlock()
	mActive.Set(float64(r.Len()))
	return ok
}

// Connected reports whether the user currently has a live stream.
func (r *Registry) Connected(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[userID] != nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// Shutdown closes every live stream; clients reconnect after restart.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		all = append(all, s)
	}
	r.streams = make(map[int64]*Stream)
	r.mu.Unlock()

	for _, s := range all {
		s.close("server shutting down")
	}
	mActive.Set(0)
	r.log.Info("push registry shut down", zap.Int("closed", len(all)))
}
