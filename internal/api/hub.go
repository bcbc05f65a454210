package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"trading-simv1/internal/model"
	"trading-simv1/internal/state"
)

const (
	sendBuffer      = 256
	subscribeBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// envelope is one /stream message.
type envelope struct {
	Type    string               `json:"type"`
	Seq     int64                `json:"seq"`
	Latest  model.LatestSnapshot `json:"latest"`
	Wallet  model.WalletSnapshot `json:"wallet"`
	Initial bool                 `json:"initial,omitempty"`
}

func buildEnvelope(u state.Update, initial bool) []byte {
	b, _ := json.Marshal(envelope{Type: "update", Seq: u.Seq, Latest: u.Latest, Wallet: u.Wallet, Initial: initial})
	return b
}

// Hub fans state updates out to WebSocket clients and keeps a replay buffer
// for clients reconnecting with ?since_seq=N.
type Hub struct {
	store  *state.Store
	replay *ReplayBuffer
	log    *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool

	// OnClientCount is called with the new count after every (un)registration.
	OnClientCount func(n int)
}

// NewHub creates a hub over the shared state store.
func NewHub(store *state.Store, replayCap int) *Hub {
	return &Hub{
		store:   store,
		replay:  NewReplayBuffer(replayCap),
		log:     slog.With("component", "stream"),
		clients: make(map[*Client]bool),
	}
}

// Run relays store updates to clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	updates, cancel := h.store.Subscribe(subscribeBuffer)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			h.broadcast(u)
		}
	}
}

// broadcast holds h.mu across the replay push and the fan-out so a client
// being attached sees each update either in its initial messages or live,
// never both and never out of order.
func (h *Hub) broadcast(u state.Update) {
	msg := buildEnvelope(u, false)

	h.mu.RLock()
	defer h.mu.RUnlock()
	h.replay.Push(u.Seq, msg)
	for c := range h.clients {
		if u.Seq <= c.floor {
			continue // already queued as initial state
		}
		select {
		case c.send <- msg:
		default:
			// slow client; it can resync with since_seq
		}
	}
}

// ServeHTTP upgrades the request and registers a streaming client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	since := int64(-1)
	if v := r.URL.Query().Get("since_seq"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			since = n
		}
	}

	client := &Client{conn: conn, send: make(chan []byte, sendBuffer), hub: h}
	count := h.attach(client, since)
	h.notifyCount(count)
	h.log.Info("ws client connected", "clients", count)

	go client.writePump()
	go client.readPump()
}

// attach queues the initial state for c and registers it in one critical
// section. It returns the client count.
func (h *Hub) attach(c *Client, since int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queueInitialLocked(c, since)
	h.clients[c] = true
	return len(h.clients)
}

// resync re-sends state after since to a registered client.
func (h *Hub) resync(c *Client, since int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		h.queueInitialLocked(c, since)
	}
}

func (h *Hub) queueInitialLocked(c *Client, since int64) {
	for _, e := range h.initialMessages(since) {
		select {
		case c.send <- e.Data:
			c.floor = max(c.floor, e.Seq)
		default:
			return
		}
	}
}

// initialMessages is what a new client receives: the buffered updates after
// since, or only the current update when since is unknown or already evicted.
func (h *Hub) initialMessages(since int64) []replayEntry {
	if since >= 0 && since+1 >= h.replay.Oldest() && h.replay.Len() > 0 {
		return h.replay.After(since)
	}
	if u, ok := h.store.Last(); ok && u.Seq > since {
		return []replayEntry{{Seq: u.Seq, Data: buildEnvelope(u, true)}}
	}
	return nil
}

// RemoveClient unregisters a client and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	h.notifyCount(count)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) notifyCount(n int) {
	if h.OnClientCount != nil {
		h.OnClientCount(n)
	}
}
