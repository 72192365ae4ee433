package httpx

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// StreamEvents writes one server-sent event per snapshot produced by next
// until next reports the stream is done. Unsubscribing is the caller closing
// the connection; in-flight writes on the service side still run to
// completion.
func StreamEvents(w http.ResponseWriter, logger *slog.Logger, next func() (any, bool)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Problem(w, http.StatusInternalServerError, "Streaming Unsupported", "")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		snapshot, ok := next()
		if !ok {
			return
		}
		payload, err := json.Marshal(snapshot)
		if err != nil {
			logger.Error("marshal snapshot", slog.Any("error", err))
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}
