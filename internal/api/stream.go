package api

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one entry on the read-only observer feed: round lifecycle
// transitions and executed trades. Observers never see hidden state (goal
// suit, hands) before the round completes.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Observer event types.
const (
	EventRoundStarted   = "round_started"
	EventTrade          = "trade"
	EventRoundCompleted = "round_completed"
)

// Hub fans observer events out to connected WebSocket clients.
type Hub struct {
	observers  map[*observer]bool
	register   chan *observer
	unregister chan *observer
	broadcast  chan []byte
	quit       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// observer is one connected WebSocket spectator.
type observer struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an observer hub. Run must be started in a goroutine before
// any broadcasts.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		observers:  make(map[*observer]bool),
		register:   make(chan *observer),
		unregister: make(chan *observer),
		broadcast:  make(chan []byte, 256),
		quit:       make(chan struct{}),
		logger:     logger.With("component", "observer-hub"),
	}
}

// Run is the hub's main loop. It exits when Stop is called, closing every
// observer connection.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for o := range h.observers {
				close(o.send)
				delete(h.observers, o)
			}
			h.mu.Unlock()
			return

		case o := <-h.register:
			h.mu.Lock()
			h.observers[o] = true
			h.mu.Unlock()
			h.logger.Info("observer connected", "count", len(h.observers))

		case o := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.observers[o]; ok {
				delete(h.observers, o)
				close(o.send)
			}
			h.mu.Unlock()
			h.logger.Info("observer disconnected", "count", len(h.observers))

		case message := <-h.broadcast:
			h.mu.RLock()
			for o := range h.observers {
				select {
				case o.send <- message:
				default:
					// Observer can't keep up, drop it
					close(o.send)
					delete(h.observers, o)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop shuts the hub down. Safe to call once, whether or not Run started.
func (h *Hub) Stop() {
	close(h.quit)
}

// Broadcast sends one event to every connected observer. Non-blocking: if
// the feed is saturated the event is dropped, never the trading path.
func (h *Hub) Broadcast(eventType string, data any) {
	evt := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal event", "type", eventType, "error", err)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("broadcast channel full, dropping event", "type", eventType)
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// writePump pumps events from the hub to the websocket connection.
func (o *observer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.conn.Close()
	}()

	for {
		select {
		case message, ok := <-o.send:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				o.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := o.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			o.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so pong handlers fire. The feed is
// read-only; inbound messages are ignored.
func (o *observer) readPump() {
	defer func() {
		// The hub may already be stopped and no longer draining unregister.
		select {
		case o.hub.unregister <- o:
		case <-o.hub.quit:
		}
		o.conn.Close()
	}()

	o.conn.SetReadLimit(maxMessageSize)
	o.conn.SetReadDeadline(time.Now().Add(pongWait))
	o.conn.SetPongHandler(func(string) error {
		o.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				o.hub.logger.Error("websocket error", "error", err)
			}
			break
		}
	}
}

// attach registers a new observer connection and starts its pumps.
func (h *Hub) attach(conn *websocket.Conn) {
	o := &observer{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}
	select {
	case h.register <- o:
	case <-h.quit:
		conn.Close()
		return
	}

	go o.writePump()
	go o.readPump()
}
