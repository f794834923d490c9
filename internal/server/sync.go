package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"taskboard/internal/domain"
	"taskboard/internal/eventlog"
)

// heartbeatInterval keeps idle SSE connections from being reaped by proxies.
const heartbeatInterval = 30 * time.Second

func registerSyncEvents(api huma.API, events *eventlog.Log) {
	huma.Register(api, huma.Operation{
		OperationID: "sync-events",
		Method:      http.MethodGet,
		Path:        "/sync/events",
		Summary:     "Events since a cursor",
		Description: "Returns buffered events after lastEventId when given, otherwise since a timestamp. Without a cursor the whole buffer is returned.",
	}, func(ctx context.Context, input *struct {
		Since       string `query:"since"`
		LastEventID string `query:"lastEventId"`
		Limit       int    `query:"limit"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		evts := events.Events(eventlog.Query{
			Since:   input.Since,
			AfterID: input.LastEventID,
			Limit:   input.Limit,
		})
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evts}, nil
	})
}

// registerSyncStream mounts the SSE endpoint on the raw router. huma does
// not model long-lived streams, so this one bypasses it.
func registerSyncStream(router chi.Router, basePath string, events *eventlog.Log) {
	router.Get(basePath+"/sync/stream", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		// Live events are buffered so a slow client never blocks publishers.
		// On overflow the event is dropped; the client recovers by
		// reconnecting with Last-Event-ID.
		live := make(chan domain.Event, 64)
		unsubscribe := events.Subscribe(func(evt domain.Event) {
			select {
			case live <- evt:
			default:
			}
		})
		defer unsubscribe()

		// Replay the backlog before switching to live delivery. A reconnecting
		// client's Last-Event-ID header wins over the query cursor. The
		// subscription started before the backlog snapshot, so events
		// published in between show up in both; replayed tracks backlog ids
		// and the live loop skips them until it sees its first fresh event.
		afterID := r.Header.Get("Last-Event-ID")
		if afterID == "" {
			afterID = r.URL.Query().Get("lastEventId")
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		backlog := events.Events(eventlog.Query{
			AfterID: afterID,
			Since:   r.URL.Query().Get("since"),
			Limit:   limit,
		})
		replayed := make(map[string]struct{}, len(backlog))
		for _, evt := range backlog {
			if err := writeSSE(w, evt); err != nil {
				return
			}
			replayed[evt.ID] = struct{}{}
		}
		flusher.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case evt := <-live:
				if replayed != nil {
					if _, ok := replayed[evt.ID]; ok {
						continue
					}
					// Delivery preserves publish order, so once a live event
					// is not a backlog duplicate none of the later ones are.
					replayed = nil
				}
				if err := writeSSE(w, evt); err != nil {
					return
				}
				flusher.Flush()
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, "event: heartbeat\ndata: {}\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})
}

func writeSSE(w http.ResponseWriter, evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Type(), data)
	return err
}
