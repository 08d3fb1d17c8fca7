package eventbus

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HeartbeatInterval is how often a `: heartbeat` comment line is sent
// on an idle connection.
const HeartbeatInterval = 15 * time.Second

// SnapshotFunc builds the snapshot Event replayed to a new subscriber,
// typically the current Iteration + ModelRun state read from the
// durable store.
type SnapshotFunc func(iterationID string) Event

// Handler returns an http.Handler serving Server-Sent Events for the
// iteration id named by the "iteration_id" query parameter. Each
// connection subscribes to bus, writes the replayed snapshot, then
// streams live events as `data: <json>\n\n` frames, interleaved with
// heartbeat comments on HeartbeatInterval so idle proxies don't time
// the connection out.
func Handler(bus *Bus, snapshot SnapshotFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		iterationID := r.URL.Query().Get("iteration_id")
		if iterationID == "" {
			http.Error(w, "iteration_id is required", http.StatusBadRequest)
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

		events, cancel := bus.Subscribe(iterationID, snapshot(iterationID))
		defer cancel()

		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": heartbeat\n\n")
				flusher.Flush()
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeEvent(w, event); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})
}

func writeEvent(w http.ResponseWriter, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", body)
	return err
}
