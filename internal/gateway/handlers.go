package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the WebSocket and REST routes on mux.
//
//	GET /ws?symbols=SPY,QQQ                      live signal stream
//	GET /api/signals/latest                      latest envelope per channel
//	GET /api/missed?channel=&from=&to=           replay buffered envelopes
//	GET /health                                  liveness + client count
func RegisterRoutes(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Error().Err(err).Msg("ws upgrade failed")
			return
		}
		var symbols []string
		if s := r.URL.Query().Get("symbols"); s != "" {
			symbols = strings.Split(s, ",")
		}
		hub.HandleWSRequest(conn, symbols)
	})

	mux.HandleFunc("/api/signals/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, http.StatusOK, hub.GetLatestAll())
	})

	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		q := r.URL.Query()
		channel := q.Get("channel")
		from, errFrom := strconv.ParseInt(q.Get("from"), 10, 64)
		to, errTo := strconv.ParseInt(q.Get("to"), 10, 64)
		if channel == "" || errFrom != nil || errTo != nil || from > to {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel, from and to are required (from <= to)"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"channel":  channel,
			"seq":      hub.GetChannelSeq(channel),
			"messages": hub.GetReplayRange(channel, from, to),
		})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"clients": hub.ClientCount(),
		})
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Server serves the hub over HTTP.
type Server struct {
	hub *Hub
	srv *http.Server
}

// NewServer creates a gateway server on addr.
func NewServer(addr string, hub *Hub) *Server {
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub)
	return &Server{
		hub: hub,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.hub.log.Info().Str("addr", s.srv.Addr).Msg("gateway listening")
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.hub.log.Error().Err(err).Msg("gateway server error")
		}
	}()
}

// Stop gracefully shuts down the server. Hijacked WebSocket connections are
// closed by their pumps once the process exits.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
