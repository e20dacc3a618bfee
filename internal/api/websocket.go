package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chainlens/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	clientBuffer   = 32
	broadcastQueue = 256
)

// Event types sent to websocket clients
const (
	EventConnectionEstablished = "connection_established"
	EventAlertTriggered        = "alert.triggered"
)

// WebSocketEvent represents the structure sent to clients
type WebSocketEvent struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	TenantID  string      `json:"tenant_id"`
	Data      interface{} `json:"data,omitempty"`
}

// EventFilters narrows the alerts a client receives. Clients update them by
// sending the JSON object over the socket.
type EventFilters struct {
	Severities []models.AlertSeverity `json:"severities"`
}

type wsClient struct {
	conn     *websocket.Conn
	tenantID string
	send     chan []byte

	mu      sync.RWMutex
	filters EventFilters
}

func (c *wsClient) setFilters(f EventFilters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = f
}

func (c *wsClient) accepts(a models.Alert) bool {
	if a.TenantID != c.tenantID {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.filters.Severities) == 0 {
		return true
	}
	for _, s := range c.filters.Severities {
		if s == a.Severity {
			return true
		}
	}
	return false
}

// AlertHub streams triggered alerts to websocket clients of the same tenant
type AlertHub struct {
	clients    map[*wsClient]struct{}
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan models.Alert
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	mu    sync.RWMutex
	count int
}

// NewAlertHub creates a hub. Run must be started before connections are served.
func NewAlertHub(logger *zap.Logger) *AlertHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertHub{
		clients:    make(map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan models.Alert, broadcastQueue),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// origins are enforced by the CORS layer
				return true
			},
		},
		logger: logger,
	}
}

// Run serves registrations and broadcasts until ctx is done
func (h *AlertHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount(len(h.clients))
			h.deliver(c, WebSocketEvent{
				Type:      EventConnectionEstablished,
				Timestamp: time.Now().Unix(),
				TenantID:  c.tenantID,
			})
			h.logger.Debug("websocket client connected",
				zap.String("tenant_id", c.tenantID), zap.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			h.remove(c)

		case a := <-h.broadcast:
			event := WebSocketEvent{
				Type:      EventAlertTriggered,
				Timestamp: a.TriggeredAt.Unix(),
				TenantID:  a.TenantID,
				Data:      a,
			}
			for c := range h.clients {
				if c.accepts(a) {
					h.deliver(c, event)
				}
			}

		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return
		}
	}
}

// deliver queues an event for one client, dropping clients that fall behind
func (h *AlertHub) deliver(c *wsClient, event WebSocketEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", zap.Error(err))
		return
	}
	select {
	case c.send <- payload:
	default:
		h.logger.Warn("dropping slow websocket client", zap.String("tenant_id", c.tenantID))
		h.remove(c)
	}
}

func (h *AlertHub) remove(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.setCount(len(h.clients))
}

func (h *AlertHub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients
func (h *AlertHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// BroadcastAlert queues an alert for every matching client. It never blocks;
// alerts are dropped when the queue is full or the hub has stopped.
func (h *AlertHub) BroadcastAlert(a models.Alert) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- a:
	default:
		h.logger.Warn("websocket broadcast queue full", zap.String("alert_id", a.ID))
	}
}

// HandleConnection upgrades the request. Browsers cannot set headers on the
// handshake, so the tenant may also come from the tenant_id query parameter.
func (h *AlertHub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.Header.Get(HeaderTenantID))
	if tenantID == "" {
		tenantID = strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	}
	if tenantID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "MISSING_TENANT", "Tenant is required", HeaderTenantID)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}

	c := &wsClient{conn: conn, tenantID: tenantID, send: make(chan []byte, clientBuffer)}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *AlertHub) leave(c *wsClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *AlertHub) readPump(c *wsClient) {
	defer h.leave(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var filters EventFilters
		if err := json.Unmarshal(message, &filters); err != nil {
			h.logger.Debug("ignoring websocket message", zap.String("tenant_id", c.tenantID), zap.Error(err))
			continue
		}
		c.setFilters(filters)
	}
}

func (h *AlertHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
