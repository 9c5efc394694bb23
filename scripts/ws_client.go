// Package main runs a demo WebSocket client for property events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	PropertyID string          `json:"propertyId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Register a throwaway account and grab its access token.
	email := fmt.Sprintf("demo-%d@example.com", time.Now().UnixNano())
	regBody, _ := json.Marshal(map[string]string{"email": email, "password": "demo-password", "role": "owner"})
	resp, err := http.Post(base+"/api/auth/register", "application/json", bytes.NewReader(regBody))
	if err != nil {
		log.Fatal(err)
	}
	var reg struct {
		Tokens struct {
			AccessToken string `json:"accessToken"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	token := reg.Tokens.AccessToken

	// Create a property to watch.
	propBody := []byte(`{"title":"Demo flat","price":900,"propertyType":"residential"}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/api/properties", bytes.NewReader(propBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var prop struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&prop); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Property ID: %s", prop.ID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/api/events/ws"}
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", PropertyID: prop.ID}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger an event via an update.
	time.Sleep(500 * time.Millisecond)
	updBody := []byte(`{"title":"Demo flat (renamed)","price":950,"propertyType":"residential"}`)
	updReq, _ := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/properties/%s", base, prop.ID), bytes.NewReader(updBody))
	updReq.Header.Set("Content-Type", "application/json")
	updReq.Header.Set("Authorization", "Bearer "+token)
	_, _ = http.DefaultClient.Do(updReq)

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
