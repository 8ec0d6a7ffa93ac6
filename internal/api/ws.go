package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aerosuite/platform/internal/health"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser origin policy is enforced by the CORS layer for the REST
	// surface; the status stream carries no mutations.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// statusFrame is one push on the status stream.
type statusFrame struct {
	Status    health.Status  `json:"status"`
	Traffic   map[string]any `json:"traffic,omitempty"`
	Models    any            `json:"models,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// handleStatusStream upgrades to a websocket and pushes a health/traffic
// snapshot every few seconds until the client goes away.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Reader goroutine: we never expect frames, but reading surfaces
	// close/pings and detects the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	send := func() error {
		frame := statusFrame{
			Status:    s.deps.Probe.Cached(r.Context()).Status,
			Timestamp: time.Now(),
		}
		if s.deps.Tracker != nil {
			sample := s.deps.Tracker.Snapshot()
			frame.Traffic = map[string]any{"rps": sample.RPS, "p95Ms": sample.P95Ms}
		}
		if s.deps.Runtime != nil {
			frame.Models = s.deps.Runtime.LoadedModels()
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(frame)
	}

	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := send(); err != nil {
				return
			}
		}
	}
}
