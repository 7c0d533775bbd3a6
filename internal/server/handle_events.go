package server

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// reconnectMillis is the retry hint sent to EventSource clients.
const reconnectMillis = 3000

// handleEvents streams broker events to editors and viewers so they can
// refetch documents another tab has saved.
func handleEvents(broker *Broker, ping time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")

		ch := broker.Subscribe()
		defer broker.Unsubscribe(ch)

		fmt.Fprintf(w, "retry: %d\n\n", reconnectMillis)
		if err := rc.Flush(); err != nil {
			return
		}

		keepalive := time.NewTicker(ping)
		defer keepalive.Stop()

		for {
			var err error
			select {
			case <-r.Context().Done():
				return
			case data, ok := <-ch:
				if !ok {
					return
				}
				err = writeEvent(w, "change", data)
			case <-keepalive.C:
				_, err = io.WriteString(w, ": ping\n\n")
			}
			if err == nil {
				err = rc.Flush()
			}
			if err != nil {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, name string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
