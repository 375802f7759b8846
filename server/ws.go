package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"fileconverter/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type progressFrame struct {
	Type     string           `json:"type"`
	JobID    string           `json:"conversion_id"`
	Progress int              `json:"progress"`
	Status   models.JobStatus `json:"status"`
	Error    string           `json:"error,omitempty"`
}

type pongFrame struct {
	Type      string      `json:"type"`
	Timestamp interface{} `json:"timestamp,omitempty"`
}

// progressWS streams a job's future progress events to the client.
// There is no backlog replay: a late subscriber sees events from its
// join point onward. Inbound ping frames get a pong; they carry no job
// semantics. All socket writes happen on this goroutine.
func (s *Server) progressWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[HTTP] WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe(jobID)
	defer cancel()

	pings := make(chan interface{}, 4)

	// Reader: liveness pings in, subscription torn down when the
	// client goes away.
	go func() {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var msg map[string]interface{}
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg["type"] == "ping" {
				select {
				case pings <- msg["timestamp"]:
				default:
				}
			}
		}
	}()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			frame := progressFrame{
				Type:     "progress",
				JobID:    evt.JobID,
				Progress: evt.Progress,
				Status:   evt.Status,
				Error:    evt.Error,
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case ts := <-pings:
			if err := conn.WriteJSON(pongFrame{Type: "pong", Timestamp: ts}); err != nil {
				return
			}
		}
	}
}
