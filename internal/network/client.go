package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/MRamiBalles/NBackTrainer/server/internal/nback"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
	// Time allowed for a START to read the high score.
	startTimeout = 5 * time.Second
)

// Player actions.
const (
	ActionStart       = "START"
	ActionMatch       = "MATCH"
	ActionEnd         = "END"
	ActionSetGameType = "SET_GAME_TYPE"
	ActionState       = "STATE"
)

// PlayerAction represents an incoming command from the frontend.
type PlayerAction struct {
	Type     string `json:"type"`
	GameType string `json:"game_type,omitempty"`
}

// Client is one websocket connection.
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	lastMatch time.Time
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   xid.New().String(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.opts.ClientSendBuffer),
	}
}

// ID identifies the connection in logs.
func (c *Client) ID() string { return c.id }

// ReadPump pumps actions from the websocket connection to the game.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.metrics.RecordWSError()
				c.hub.logger.Warn("WebSocket read failed", logger.String("client_id", c.id), logger.Err(err))
			}
			break
		}
		c.hub.metrics.RecordWSMessage(true)

		var action PlayerAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.hub.logger.Warn("Failed to parse PlayerAction from WebSocket", logger.Err(err))
			c.hub.send(c, ServerMessage{Type: MessageError, Error: "malformed action"})
			continue
		}

		c.handlePlayerAction(action)
	}
}

func (c *Client) handlePlayerAction(action PlayerAction) {
	game := c.hub.game

	switch strings.ToUpper(action.Type) {
	case ActionStart:
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		err := game.StartGame(ctx)
		cancel()
		if err != nil {
			c.hub.logger.Warn("START rejected", logger.String("client_id", c.id), logger.Err(err))
			c.hub.send(c, ServerMessage{Type: MessageError, Error: err.Error()})
		}
	case ActionMatch:
		if limit := c.hub.opts.MatchRateLimit; limit > 0 && time.Since(c.lastMatch) < limit {
			c.hub.send(c, ServerMessage{Type: MessageError, Error: "rate limited"})
			return
		}
		c.lastMatch = time.Now()
		result := game.CheckMatch()
		scores := game.Scores()
		c.hub.send(c, ServerMessage{Type: MessageResult, Result: string(result), Scores: &scores})
	case ActionEnd:
		game.EndGame()
	case ActionSetGameType:
		t, err := nback.ParseGameType(action.GameType)
		if err == nil {
			err = game.SetGameType(t)
		}
		if err != nil {
			c.hub.send(c, ServerMessage{Type: MessageError, Error: err.Error()})
		}
	case ActionState:
		state, scores := game.State(), game.Scores()
		c.hub.send(c, ServerMessage{Type: MessageSnapshot, State: &state, Scores: &scores})
	default:
		c.hub.logger.Warn("Unknown PlayerAction type", logger.String("type", action.Type))
		c.hub.send(c, ServerMessage{Type: MessageError, Error: "unknown action " + action.Type})
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.metrics.RecordWSError()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow cross-origin requests for the browser dev server
	},
}

// ErrHubStopped is returned by ServeWs after the hub has shut down.
var ErrHubStopped = errors.New("websocket hub stopped")

// ServeWs upgrades the request and runs the client's pumps.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.RecordWSError()
		h.logger.Warn("Failed to upgrade websocket connection", logger.Err(err))
		return
	}

	client := NewClient(h, conn)
	if !h.join(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ErrHubStopped.Error()))
		conn.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}
