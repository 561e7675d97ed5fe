package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Operator UI runs on a different origin in development
	CheckOrigin: func(r *http.Request) bool { return true },
}

// batchEvents streams batch controller events to the operator UI
func (rt *Router) batchEvents(w http.ResponseWriter, req *http.Request) {
	rt.batchMu.Lock()
	controller := rt.batch
	rt.batchMu.Unlock()
	if controller == nil {
		respondError(w, http.StatusNotFound, "no active batch")
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("⚠️ WS upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := controller.Subscribe()
	defer cancel()

	// Drain client frames so pings and close frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
