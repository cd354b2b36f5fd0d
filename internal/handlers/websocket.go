package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Bearer token gates the connection, not the origin
	},
}

const writeTimeout = 5 * time.Second

// WSMessage is the envelope of every message sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type wsClient struct {
	id     string
	userID string
	mu     sync.Mutex // Serialises writes to conn
}

// WebSocketHandler streams capture, scrape and batch events to the owning
// user's connections
type WebSocketHandler struct {
	logger           arbor.ILogger
	mu               sync.RWMutex
	clients          map[*websocket.Conn]*wsClient
	throttleEvery    time.Duration
	throttleMu       sync.Mutex
	throttlers       map[string]*rate.Limiter // Per capture key
	serverInstanceID string                   // Clients use it to detect a server restart
}

func NewWebSocketHandler(logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*wsClient),
		throttlers:       make(map[string]*rate.Limiter),
		serverInstanceID: uuid.New().String(),
	}
	if config != nil {
		h.throttleEvery = common.Duration(config.ThrottleInterval, 0)
	}
	logger.Info().
		Str("server_instance_id", h.serverInstanceID).
		Dur("throttle_interval", h.throttleEvery).
		Msg("WebSocket handler initialized")
	return h
}

// HandleWebSocket upgrades an authenticated request and holds the
// connection until the client goes away.
// GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{id: uuid.New().String(), userID: userID}
	h.mu.Lock()
	h.clients[conn] = client
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Str("client_id", client.id).Str("user_id", userID).Int("total", total).Msg("WebSocket client connected")

	h.send(conn, client, WSMessage{Type: "hello", Payload: map[string]string{
		"serverInstanceId": h.serverInstanceID,
		"version":          common.GetVersion(),
	}})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Str("client_id", client.id).Int("remaining", remaining).Msg("WebSocket client disconnected")
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

// ClientCount returns the number of open connections
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscribeToEvents forwards bus events to connected clients
func (h *WebSocketHandler) SubscribeToEvents(events interfaces.EventService) error {
	if err := events.Subscribe(interfaces.EventCaptureStatus, h.onCaptureStatus); err != nil {
		return err
	}
	if err := events.Subscribe(interfaces.EventScrapeFinished, h.onUserEvent); err != nil {
		return err
	}
	return events.Subscribe(interfaces.EventBatchFinished, h.onUserEvent)
}

func (h *WebSocketHandler) onCaptureStatus(_ context.Context, event interfaces.Event) error {
	state, ok := event.Payload.(models.CaptureState)
	if !ok {
		return nil
	}
	if !state.Phase.IsTerminal() && !h.allow(state.UserID+"/"+string(state.Platform)) {
		return nil
	}
	h.BroadcastToUser(state.UserID, WSMessage{Type: string(event.Type), Payload: state})
	return nil
}

func (h *WebSocketHandler) onUserEvent(_ context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		return nil
	}
	userID, _ := payload["user_id"].(string)
	if userID == "" {
		return nil
	}
	h.BroadcastToUser(userID, WSMessage{Type: string(event.Type), Payload: payload})
	return nil
}

// allow applies the per-key throttle. Terminal phases bypass it.
func (h *WebSocketHandler) allow(key string) bool {
	if h.throttleEvery <= 0 {
		return true
	}
	h.throttleMu.Lock()
	defer h.throttleMu.Unlock()
	lim, ok := h.throttlers[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(h.throttleEvery), 1)
		h.throttlers[key] = lim
	}
	return lim.Allow()
}

// BroadcastToUser sends msg to every connection of userID
func (h *WebSocketHandler) BroadcastToUser(userID string, msg WSMessage) {
	h.mu.RLock()
	targets := make(map[*websocket.Conn]*wsClient)
	for conn, c := range h.clients {
		if c.userID == userID {
			targets[conn] = c
		}
	}
	h.mu.RUnlock()

	for conn, c := range targets {
		h.send(conn, c, msg)
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, c *wsClient, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Str("client_id", c.id).Msg("Failed to send to websocket client")
	}
}
