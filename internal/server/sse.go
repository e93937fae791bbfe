package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/turing-party-backend/internal"
	"github.com/scythe504/turing-party-backend/internal/events"
)

const sseRetryMillis = 2000

// HandleEvents streams a room's events as server-sent events: a snapshot
// first, then every bus event, with a ping on every heartbeat.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	id := roomID(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeResponse(w, start, http.StatusInternalServerError, nil, &internal.ResponseError{
			Kind:    internal.KindUpstreamFailure,
			Message: "streaming unsupported",
		})
		return
	}

	// subscribe before the snapshot so nothing falls in between
	sub := s.bus.Subscribe(id)
	defer s.bus.Unsubscribe(sub)

	state, err := s.manager.State(r.Context(), id)
	if err != nil {
		writeResult(w, start, 0, nil, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", sseRetryMillis); err != nil {
		return
	}
	if err := writeSSE(w, events.Envelope{Type: internal.EventSnapshot, Data: state}); err != nil {
		return
	}
	flusher.Flush()

	log.Debug().Str("room", id).Str("player", playerID(r)).Msg("[HandleEvents] stream opened")

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("room", id).Uint64("dropped", sub.Dropped()).Msg("[HandleEvents] client went away")
			return
		case now := <-heartbeat.C:
			if err := writeSSE(w, pingEnvelope(now)); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-sub.Events():
			if !ok {
				// room deleted or bus closed
				return
			}
			if err := writeSSE(w, msg); err != nil {
				log.Debug().Err(err).Str("room", id).Msg("[HandleEvents] write failed")
				return
			}
			flusher.Flush()
		}
	}
}

func pingEnvelope(now time.Time) events.Envelope {
	return events.Envelope{Type: internal.EventPing, Data: map[string]int64{"time": now.UnixMilli()}}
}

func writeSSE(w io.Writer, msg events.Envelope) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", msg.Type, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, payload)
	return err
}
