// Package main runs a demo WebSocket client for plan events.
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
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Queue an async genetic run so progress events flow while we listen.
	body := []byte(`{
        "items": [
            {"id": "pallet", "length": 120, "width": 80, "height": 100, "weight": 250, "quantity": 12},
            {"id": "crate", "length": 60, "width": 40, "height": 40, "weight": 15, "quantity": 30}
        ],
        "truckId": "truck_26t",
        "strategy": "genetic",
        "tuning": {"populationSize": 20, "generations": 60}
    }`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/plans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var created struct {
		PlanID string `json:"planId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		log.Fatal(err)
	}
	if created.PlanID == "" {
		log.Fatal("no planId returned")
	}
	log.Printf("Plan ID: %s", created.PlanID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]string{"planId": created.PlanID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
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
			if m.Type == "ping" {
				if err := c.WriteJSON(wsMessage{Type: "pong"}); err != nil {
					return
				}
				continue
			}
			if m.Type == "complete" {
				return
			}
			if m.Type == "next" {
				var pp struct {
					Event string `json:"event"`
				}
				if json.Unmarshal(m.Payload, &pp) == nil {
					switch pp.Event {
					case "plan.completed", "plan.failed", "plan.canceled":
						return
					}
				}
			}
		}
	}()

	// Wait for the run to finish or give up
	select {
	case <-time.After(30 * time.Second):
		log.Printf("timed out waiting for plan events")
	case <-done:
	}
}
