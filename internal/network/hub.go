package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/MRamiBalles/NBackTrainer/server/internal/events"
	"github.com/MRamiBalles/NBackTrainer/server/internal/nback"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/logger"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/metrics"
)

// Game is the part of the session controller the transport drives.
type Game interface {
	StartGame(ctx context.Context) error
	EndGame()
	CheckMatch() nback.MatchResult
	SetGameType(t nback.GameType) error
	State() nback.State
	Scores() nback.Scores
	Events() *events.EventLog
}

// Server message types.
const (
	MessageEvent    = "EVENT"
	MessageSnapshot = "SNAPSHOT"
	MessageResult   = "RESULT"
	MessageError    = "ERROR"
)

// ServerMessage is every frame the server writes to a websocket.
type ServerMessage struct {
	Type   string            `json:"type"`
	Event  *events.GameEvent `json:"event,omitempty"`
	State  *nback.State      `json:"state,omitempty"`
	Scores *nback.Scores     `json:"scores,omitempty"`
	Result string            `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Options tunes the hub.
type Options struct {
	BroadcastBuffer  int
	ClientSendBuffer int
	MatchRateLimit   time.Duration
}

type unicast struct {
	client  *Client
	message []byte
}

// Hub maintains the set of active clients and broadcasts session events to
// them.
type Hub struct {
	game    Game
	opts    Options
	logger  *logger.Logger
	metrics *metrics.Collector

	clients    map[*Client]bool
	broadcast  chan []byte
	direct     chan unicast
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu    sync.Mutex
	count int
}

// NewHub initializes a new WebSocket Hub for game.
func NewHub(game Game, opts Options, log *logger.Logger, m *metrics.Collector) *Hub {
	if opts.BroadcastBuffer <= 0 {
		opts.BroadcastBuffer = 256
	}
	if opts.ClientSendBuffer <= 0 {
		opts.ClientSendBuffer = 64
	}
	return &Hub{
		game:       game,
		opts:       opts,
		logger:     log,
		metrics:    m,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, opts.BroadcastBuffer),
		direct:     make(chan unicast, opts.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run attaches the hub to the game's event log and serves clients until ctx
// is done. All connections are closed on return.
func (h *Hub) Run(ctx context.Context) {
	unsubscribe := h.game.Events().Subscribe(h.BroadcastEvent)
	defer func() {
		unsubscribe()
		close(h.done)
		for client := range h.clients {
			h.drop(client)
		}
		h.logger.Info("WebSocket Hub shutting down.")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			h.metrics.RecordWSConnection(1)
			h.logger.Info("New WebSocket client connected", logger.String("client_id", client.ID()))
			h.deliver(client, h.snapshot())
		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
				h.logger.Info("WebSocket client disconnected", logger.String("client_id", client.ID()))
			}
		case u := <-h.direct:
			if h.clients[u.client] {
				h.deliver(u.client, u.message)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				h.deliver(client, message)
			}
		}
	}
}

// deliver queues message for client, dropping clients that cannot keep up.
func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.send <- message:
		h.metrics.RecordWSMessage(false)
	default:
		h.metrics.RecordWSDropped()
		h.logger.Warn("WebSocket client too slow, disconnecting", logger.String("client_id", client.ID()))
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.setCount(len(h.clients))
	h.metrics.RecordWSConnection(-1)
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// BroadcastEvent serializes event and queues it for every client. It never
// blocks: when the queue is full the event is dropped.
func (h *Hub) BroadcastEvent(event events.GameEvent) {
	payload, err := json.Marshal(ServerMessage{Type: MessageEvent, Event: &event})
	if err != nil {
		h.logger.Error("Failed to serialize GameEvent for WebSocket broadcast", logger.Err(err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.metrics.RecordWSDropped()
		h.logger.Warn("Broadcast queue full, dropping event", logger.String("type", string(event.Type)))
	}
}

func (h *Hub) snapshot() []byte {
	state, scores := h.game.State(), h.game.Scores()
	payload, _ := json.Marshal(ServerMessage{Type: MessageSnapshot, State: &state, Scores: &scores})
	return payload
}

// send queues a reply for one client. It gives up once the hub has stopped.
func (h *Hub) send(client *Client, msg ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to serialize reply", logger.Err(err))
		return
	}
	select {
	case h.direct <- unicast{client: client, message: payload}:
	case <-h.done:
	}
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
