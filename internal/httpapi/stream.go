package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
)

// Stream handles Server-Sent Events for elevation grant transitions.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.stream.Subscribe(ctx)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: " + event.Kind + "\n"))
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
