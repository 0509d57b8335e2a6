package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aryan-cs/hackaplan/internal/apperr"
	"github.com/aryan-cs/hackaplan/internal/lookup"
)

// sseSubscriber buffers live events for one stream. Send never blocks the
// orchestrator: a full buffer means the client cannot keep up and the
// subscriber is reported broken.
type sseSubscriber struct {
	ch chan lookup.Event
}

func newSSESubscriber() *sseSubscriber {
	return &sseSubscriber{ch: make(chan lookup.Event, 64)}
}

func (s *sseSubscriber) Send(event lookup.Event) error {
	select {
	case s.ch <- event:
		return nil
	default:
		return errors.New("subscriber backlogged")
	}
}

// streamLookupEvents serves the progress feed as Server-Sent Events: every
// persisted event is replayed in order, then live events follow until the
// lookup reaches a terminal state or the client disconnects. A client that
// connects after completion still receives the full history.
func (s *Server) streamLookupEvents(w http.ResponseWriter, r *http.Request) {
	lookupID := chi.URLParam(r, "lookup_id")
	if _, err := s.store.GetJob(r.Context(), lookupID); err != nil {
		if errors.Is(err, lookup.ErrNotFound) {
			writeError(w, http.StatusNotFound,
				string(apperr.CodeNotFound), "lookup not found")
			return
		}
		s.logger.Error("loading lookup for stream", zap.String("lookup_id", lookupID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load lookup")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	// Subscribe before replaying so no event falls between the persisted
	// history and the live feed; overlap is deduplicated by sequence number.
	sub := newSSESubscriber()
	s.orch.Subscribe(lookupID, sub)
	defer s.orch.Unsubscribe(lookupID, sub)

	history, err := s.store.ListEvents(r.Context(), lookupID)
	if err != nil {
		s.logger.Error("listing lookup events", zap.String("lookup_id", lookupID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load events")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var lastSeq int64
	for _, event := range history {
		if err := writeSSEEvent(w, event); err != nil {
			return
		}
		lastSeq = event.Seq
		if isTerminalEvent(event.Type) {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-sub.ch:
			if event.Seq <= lastSeq {
				continue
			}
			if err := writeSSEEvent(w, event); err != nil {
				return
			}
			lastSeq = event.Seq
			flusher.Flush()
			if isTerminalEvent(event.Type) {
				return
			}
		}
	}
}

func isTerminalEvent(eventType string) bool {
	return eventType == lookup.EventCompleted || eventType == lookup.EventFailed
}

func writeSSEEvent(w http.ResponseWriter, event lookup.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
