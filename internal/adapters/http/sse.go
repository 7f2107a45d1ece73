package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmkorolev/imageflow/internal/core/domain"
)

const eventPollInterval = 500 * time.Millisecond

// streamBatchEvents pushes batch snapshots over server-sent events so
// the uploading client can render live conversion progress. The stream
// ends when the batch reaches its closed stage or disappears.
func (rt *Router) streamBatchEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	batchID := r.PathValue("id")
	view, err := rt.pipeline.Snapshot(batchID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if !writeSnapshotEvent(w, flusher, view) {
		return
	}

	ticker := time.NewTicker(eventPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			view, err := rt.pipeline.Snapshot(batchID)
			if err != nil {
				writeDoneEvent(w, flusher)
				return
			}
			if !writeSnapshotEvent(w, flusher, view) {
				return
			}
			if view.Stage == domain.StageClosed {
				writeDoneEvent(w, flusher)
				return
			}
		}
	}
}

func writeSnapshotEvent(w http.ResponseWriter, flusher http.Flusher, view *domain.BatchView) bool {
	payload, err := json.Marshal(view)
	if err != nil {
		return false
	}
	if _, err := w.Write([]byte("event: snapshot\ndata: ")); err != nil {
		return false
	}
	if _, err := w.Write(payload); err != nil {
		return false
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

func writeDoneEvent(w http.ResponseWriter, flusher http.Flusher) {
	_, _ = w.Write([]byte("event: done\ndata: {}\n\n"))
	flusher.Flush()
}
