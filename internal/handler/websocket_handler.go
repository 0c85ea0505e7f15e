// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lora-config-service/internal/event"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// WebSocketHandler fans module events out to websocket clients
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	bus      *event.Bus
	logger   *zap.Logger

	clientsMu sync.Mutex
	clients   map[string]*wsClient
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewWebSocketHandler creates a websocket handler subscribed to the event bus
func NewWebSocketHandler(bus *event.Bus, logger *zap.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		bus:     bus,
		logger:  logger.With(zap.String("handler", "websocket")),
		clients: make(map[string]*wsClient),
	}

	for _, eventType := range []string{
		event.TypeModuleStatus,
		event.TypeConfigWritten,
		event.TypeOperationFailed,
		event.TypeDiscovery,
	} {
		go h.forward(bus.Subscribe(eventType))
	}

	return h
}

// RegisterRoutes registers websocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEvents)
}

// HandleEvents upgrades the connection and streams module events
func (h *WebSocketHandler) HandleEvents(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}

	client := &wsClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.clientsMu.Lock()
	h.clients[client.id] = client
	h.clientsMu.Unlock()

	h.logger.Info("Websocket client connected",
		zap.String("client_id", client.id),
		zap.String("remote_addr", c.Request.RemoteAddr),
	)

	go h.writePump(client)
	go h.readPump(client)
}

// forward pushes bus events to every connected client
func (h *WebSocketHandler) forward(events <-chan event.Event) {
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("Failed to marshal event", zap.Error(err))
			continue
		}

		h.clientsMu.Lock()
		for _, client := range h.clients {
			select {
			case client.send <- payload:
			default:
				// Slow client, drop the event rather than stall the bus.
			}
		}
		h.clientsMu.Unlock()
	}
}

func (h *WebSocketHandler) readPump(client *wsClient) {
	defer h.disconnect(client)

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Websocket read error", zap.String("client_id", client.id), zap.Error(err))
			}
			return
		}
		// The event stream is one-way; client messages are ignored.
	}
}

func (h *WebSocketHandler) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) disconnect(client *wsClient) {
	h.clientsMu.Lock()
	if _, exists := h.clients[client.id]; exists {
		delete(h.clients, client.id)
		close(client.send)
	}
	h.clientsMu.Unlock()

	client.conn.Close()
	h.logger.Info("Websocket client disconnected", zap.String("client_id", client.id))
}
