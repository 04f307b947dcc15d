package status

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PARC/Metis/internal/metislog"
)

// pushInterval is how often the websocket feed sends a fresh Snapshot,
// independent of any client request.
const pushInterval = 1 * time.Second

// Server serves a Collector's snapshots over plain JSON and over a
// websocket push feed, the two admin-surface transports of spec §6.6.
type Server struct {
	collector *Collector
	log       *metislog.Logger
	upgrader  websocket.Upgrader
}

// NewServer constructs a Server over collector. log may be nil.
func NewServer(collector *Collector, log *metislog.Logger) *Server {
	return &Server{
		collector: collector,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns an http.Handler exposing GET /status (one JSON snapshot)
// and GET /status/ws (a websocket feed pushing a snapshot every
// pushInterval).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status/ws", s.handleWebsocket)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.collector.Collect()); err != nil && s.log != nil {
		s.log.Warn("status encode failed", metislog.KVErr(err))
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Warn("status websocket upgrade failed", metislog.KVErr(err))
		}
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	// A background reader drains (and discards) client frames so a
	// disconnect or close frame is noticed promptly, the same role the
	// teacher's SubProtoServer.routine read loop plays for its own
	// websocket connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.collector.Collect()); err != nil {
				return
			}
		}
	}
}
