package api

import (
	"encoding/json"
	"net/http"

	"github.com/matheus3301/wpprelay/internal/metrics"
	"go.uber.org/zap"
)

var pingFrame = []byte(": ping\n\n")

// streamEvents serves the pull channel as Server-Sent Events. It waits on
// the shared queue up to Keepalive and sends a comment ping when idle. An
// event that cannot be written goes back to the head of the queue.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.Logger.Warn("event stream not flushable", zap.Error(err))
		return
	}

	metrics.LiveSubscribers.WithLabelValues("sse").Inc()
	defer metrics.LiveSubscribers.WithLabelValues("sse").Dec()

	ctx := r.Context()
	for {
		evt, ok := s.Hub.Pull(ctx, s.Keepalive)
		frame := pingFrame
		if ok {
			data, err := json.Marshal(evt)
			if err != nil {
				s.Logger.Error("encode live event", zap.String("type", evt.Type), zap.Error(err))
				continue
			}
			frame = append(append([]byte("data: "), data...), '\n', '\n')
		} else if ctx.Err() != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			if ok {
				s.Hub.Requeue(evt)
			}
			return
		}
		if err := rc.Flush(); err != nil {
			if ok {
				s.Hub.Requeue(evt)
			}
			return
		}
	}
}
