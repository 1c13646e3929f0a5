package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
)

// serveSSE writes a subscription channel as a Server-Sent Events stream.
// The channel is closed by the hub after a terminal event, which ends the
// response; a dropped client cancels via the request context instead.
func serveSSE(w http.ResponseWriter, r *http.Request, events <-chan domain.SearchEvent, logger *zap.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				logger.Debug("sse write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE emits one event. Heartbeats carry no id so clients do not move
// their replay cursor past real log entries.
func writeSSE(w http.ResponseWriter, ev domain.SearchEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if ev.Type != domain.EventHeartbeat {
		if _, err := fmt.Fprintf(w, "id: %s\n", strconv.FormatInt(ev.Index, 10)); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err
}
