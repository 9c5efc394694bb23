package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rentdesk/internal/auth"
	"rentdesk/internal/authz"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	PropertyID string          `json:"propertyId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EventsWSHandler handles /api/events/ws: a multiplexed live-event
// socket. Browsers cannot set headers on WebSocket requests, so the
// access token may also arrive as an access_token query parameter. Each
// subscribe message runs the ownership guard for its property.
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		if qt := r.URL.Query().Get("access_token"); qt != "" {
			raw, err = qt, nil
		}
	}
	if err != nil {
		s.rejectAuth(w, r, err)
		return
	}
	id, err := s.Auth.Verify(raw)
	if err != nil {
		s.rejectAuth(w, r, err)
		return
	}
	if id.TokenType != "access" {
		s.rejectAuth(w, r, auth.ErrMalformedToken)
		return
	}
	pr, err := s.Resolver.Resolve(r.Context(), id)
	if err != nil {
		s.rejectAuth(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		propertyID string
		ch         chan SSEEvent
	}
	subs := map[string]sub{}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// The connection has one writer lock shared by the read loop and the
	// per-subscription fanout goroutines; gorilla/websocket allows only a
	// single concurrent writer.
	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if msg.PropertyID == "" {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"propertyId required"}`)})
				continue
			}
			dec, err := s.Guard.Authorize(r.Context(), pr.Subject, pr.Role(), propertyKind.rtype, msg.PropertyID, authz.ActionRead)
			if err != nil || !dec.Allow {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"not found"}`)})
				continue
			}
			ch := s.Broker.Subscribe(msg.PropertyID)
			subs[msg.ID] = sub{propertyID: msg.PropertyID, ch: ch}
			go func(id string, c chan SSEEvent) {
				for evt := range c {
					payload, _ := json.Marshal(map[string]any{"event": evt.Type, "data": evt.Data})
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch)
		case "complete":
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(s0.propertyID, s0.ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}
	for id, s0 := range subs {
		s.Broker.Unsubscribe(s0.propertyID, s0.ch)
		delete(subs, id)
	}
}
