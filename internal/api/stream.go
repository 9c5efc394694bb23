package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"rentdesk/internal/authz"
	"rentdesk/internal/session"
)

// propertyStreamHandler serves SSE for one property's live events. The
// ownership guard runs before the stream opens; a subscriber for a
// foreign property gets the same 404 as any other foreign read.
func (s *Server) propertyStreamHandler(id string) protectedFunc {
	return func(w http.ResponseWriter, r *http.Request, pr session.Principal) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !pr.Role().Can(authz.CapSubscribe) {
			rejectDecision(w, r, authz.ReasonNoCap)
			return
		}
		dec, err := s.Guard.Authorize(r.Context(), pr.Subject, pr.Role(), propertyKind.rtype, id, authz.ActionRead)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if !dec.Allow {
			rejectDecision(w, r, dec.Reason)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		ch := s.Broker.Subscribe(id)
		defer s.Broker.Unsubscribe(id, ch)
		writeHeartbeat(w, id)
		flusher.Flush()
		notify := r.Context().Done()
		for {
			select {
			case <-notify:
				return
			case evt := <-ch:
				writeSSE(w, evt)
				flusher.Flush()
			case <-time.After(15 * time.Second):
				writeHeartbeat(w, id)
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, evt SSEEvent) {
	b, _ := json.Marshal(evt.Data)
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	fmt.Fprintf(w, "data: %s\n\n", string(b))
}

func writeHeartbeat(w http.ResponseWriter, id string) {
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"propertyId\":%q,\"ts\":%q}\n\n", id, time.Now().UTC().Format(time.RFC3339))
}
