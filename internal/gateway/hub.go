package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"vpa-analyzer/internal/model"
)

const replayDepth = 500

// Hub fans signal results out to WebSocket clients. Each symbol's results
// travel on the channel "pub:signal:{symbol}" with a per-channel sequence
// number so clients can detect gaps and backfill from the replay buffer.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	log zerolog.Logger
}

type latestEntry struct {
	Data json.RawMessage // envelope
	TS   time.Time
	Seq  int64
}

// envelope is the wire frame every client message is wrapped in.
type envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Seq     int64           `json:"seq"`
	TS      string          `json:"ts"`
	Initial bool            `json:"initial,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		log:         log.With().Str("component", "gateway").Logger(),
	}
}

// Name identifies the hub as an analyzer sink.
func (h *Hub) Name() string { return "gateway" }

// Emit broadcasts r to every client subscribed to its symbol. Slow clients
// drop messages rather than block the analyzer.
func (h *Hub) Emit(_ context.Context, r *model.SignalResult) error {
	h.Broadcast(r.Channel(), r.Symbol, r.Time, r.JSON())
	return nil
}

// Broadcast wraps data in an envelope and fans it out.
func (h *Hub) Broadcast(channel, symbol string, ts time.Time, data []byte) {
	h.mu.Lock()
	h.channelSeqs[channel]++
	seq := h.channelSeqs[channel]

	env, _ := json.Marshal(envelope{
		Type:    "signal",
		Channel: channel,
		Seq:     seq,
		TS:      ts.UTC().Format(time.RFC3339),
		Data:    data,
	})

	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(replayDepth)
		h.replayBufs[channel] = rb
	}
	rb.Push(seq, env)
	h.latest[channel] = latestEntry{Data: env, TS: ts, Seq: seq}

	for c := range h.clients {
		if !c.wants(symbol) {
			continue
		}
		select {
		case c.send <- env:
		default:
			h.log.Warn().Str("channel", channel).Int64("seq", seq).Msg("client send buffer full, dropping")
		}
	}
	h.mu.Unlock()
}

// HandleWSRequest registers an upgraded connection. symbols restricts the
// client to those instruments; empty means all.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, symbols []string) {
	client := newClient(h, conn, symbols)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Int("clients", count).Strs("symbols", symbols).Msg("ws client connected")

	client.sendInitialState()
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// GetLatestAll returns the latest envelope per channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) []json.RawMessage {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
