package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"casino-engine/internal/middleware"
	"casino-engine/internal/models"
	"casino-engine/internal/services"
)

const (
	MessageGameUpdate    = "GAME_UPDATE"
	MessageGameCrash     = "GAME_CRASH"
	MessageBetSettled    = "BET_SETTLED"
	MessageBalanceUpdate = "BALANCE_UPDATE"
	MessagePong          = "PONG"

	clientBuffer = 32
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	gameEngine *services.GameEngine
	hub        *WebSocketHub
}

// WebSocketHub fans engine notifications out to connected players. It
// implements services.Broadcaster and never blocks the caller: messages for
// slow clients are dropped.
type WebSocketHub struct {
	clients    map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
}

type Client struct {
	UserID int64
	conn   *websocket.Conn
	send   chan *Message
}

type Message struct {
	Type   string      `json:"type"`
	UserID int64       `json:"user_id,omitempty"`
	BetID  string      `json:"bet_id,omitempty"`
	Data   interface{} `json:"data"`
}

func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
	}
}

func NewWebSocketHandler(gameEngine *services.GameEngine, hub *WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{
		gameEngine: gameEngine,
		hub:        hub,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetInt64(middleware.ContextUserID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan *Message, clientBuffer),
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}
	go client.writePump(h.hub.done)

	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
		}
		conn.Close()
	}()

	h.sendBalance(c.Request.Context(), client)

	for {
		var msg Message
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).WithField("user_id", userID).Warn("WebSocket error")
			}
			break
		}

		h.handleMessage(c.Request.Context(), client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, client *Client, msg *Message) {
	switch msg.Type {
	case "PING":
		client.enqueue(&Message{
			Type: MessagePong,
			Data: gin.H{"timestamp": time.Now().Unix()},
		})
	case "BALANCE":
		h.sendBalance(ctx, client)
	}
}

func (h *WebSocketHandler) sendBalance(ctx context.Context, client *Client) {
	balance, err := h.gameEngine.Balance(ctx, client.UserID, "")
	if err != nil {
		log.WithError(err).WithField("user_id", client.UserID).Warn("Failed to get balance for WS")
		return
	}

	client.enqueue(&Message{
		Type: MessageBalanceUpdate,
		Data: gin.H{
			"currency": h.gameEngine.DefaultCurrency(),
			"balance":  balance,
		},
	})
}

func (client *Client) enqueue(msg *Message) {
	select {
	case client.send <- msg:
	default:
		log.WithField("user_id", client.UserID).Debug("WebSocket client too slow, dropping message")
	}
}

func (client *Client) writePump(done <-chan struct{}) {
	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteJSON(msg); err != nil {
				log.WithError(err).WithField("user_id", client.UserID).Debug("WebSocket write failed")
			}
		case <-done:
			return
		}
	}
}

// Run owns the client registry until ctx is done.
func (hub *WebSocketHub) Run(ctx context.Context) {
	for {
		select {
		case client := <-hub.register:
			if hub.clients[client.UserID] == nil {
				hub.clients[client.UserID] = make(map[*Client]struct{})
			}
			hub.clients[client.UserID][client] = struct{}{}
			log.WithField("user_id", client.UserID).Debug("WebSocket client registered")

		case client := <-hub.unregister:
			if set, ok := hub.clients[client.UserID]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					close(client.send)
				}
				if len(set) == 0 {
					delete(hub.clients, client.UserID)
				}
			}
			log.WithField("user_id", client.UserID).Debug("WebSocket client unregistered")

		case message := <-hub.broadcast:
			hub.broadcastMessage(message)

		case <-ctx.Done():
			close(hub.done)
			for _, set := range hub.clients {
				for client := range set {
					client.conn.Close()
				}
			}
			return
		}
	}
}

func (hub *WebSocketHub) broadcastMessage(message *Message) {
	if message.UserID != 0 {
		for client := range hub.clients[message.UserID] {
			client.enqueue(message)
		}
		return
	}
	for _, set := range hub.clients {
		for client := range set {
			client.enqueue(message)
		}
	}
}

func (hub *WebSocketHub) publish(msg *Message) {
	select {
	case hub.broadcast <- msg:
	default:
		log.WithField("type", msg.Type).Warn("WebSocket hub backlog full, dropping message")
	}
}

func (hub *WebSocketHub) BroadcastGameUpdate(betID string, userID int64, multiplier decimal.Decimal) {
	hub.publish(&Message{
		Type:   MessageGameUpdate,
		UserID: userID,
		BetID:  betID,
		Data: gin.H{
			"multiplier": multiplier,
			"timestamp":  time.Now().UnixMilli(),
		},
	})
}

func (hub *WebSocketHub) BroadcastGameCrash(betID string, userID int64, crashPoint decimal.Decimal) {
	hub.publish(&Message{
		Type:   MessageGameCrash,
		UserID: userID,
		BetID:  betID,
		Data: gin.H{
			"crash_point": crashPoint,
			"timestamp":   time.Now().UnixMilli(),
		},
	})
}

func (hub *WebSocketHub) BroadcastSettlement(event models.BetEvent) {
	hub.publish(&Message{
		Type:   MessageBetSettled,
		UserID: event.UserID,
		BetID:  event.BetID,
		Data:   event,
	})
}
