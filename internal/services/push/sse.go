package push

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// Handler serves the SSE endpoint. Identity arrives as X-User-ID from
// the CRM gateway, which has already authenticated the caller.
func Handler(reg *Registry, log *zap.Logger) http.HandlerFunc {
	log = log.With(zap.String("component", "push.sse"))

	return func(w http.ResponseWriter, req *http.Request) {
		userID, err := strconv.ParseInt(req.Header.Get("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			http.Error(w, "missing or invalid X-User-ID", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		s := reg.Open(userID)

		for {
			select {
			case <-req.Context().Done():
				reg.Drop(s, "client disconnected")
				return
			case ev := <-s.Events():
				if err := writeFrame(w, flusher, ev); err != nil {
					reg.Drop(s, "write failed")
					return
				}
			case <-s.Done():
				// deliver anything still buffered, the close frame last
				for {
					select {
					case ev := <-s.Events():
						if writeFrame(w, flusher, ev) != nil {
							return
						}
					default:
						log.Debug("stream finished", zap.Int64("user_id", userID))
						return
					}
				}
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
