package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"figgie-exchange/internal/game"
	"figgie-exchange/pkg/types"
)

// Handlers holds the HTTP handler set for one game instance. Handlers carry
// no state of their own beyond the observer-feed edge detector; all game
// state lives behind the Game's mutex.
type Handlers struct {
	game    *game.Game
	hub     *Hub
	metrics *Metrics
	logger  *slog.Logger

	upgrader websocket.Upgrader

	// Edge detector for the observer feed: the round-completed transition
	// happens as a side effect of whichever request reads an expired clock,
	// so every handler that observes state runs it through here.
	mu        sync.Mutex
	lastState types.GameState
}

// NewHandlers creates the handler set.
func NewHandlers(g *game.Game, hub *Hub, metrics *Metrics, logger *slog.Logger) *Handlers {
	return &Handlers{
		game:    g,
		hub:     hub,
		metrics: metrics,
		logger:  logger.With("component", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		lastState: types.StateWaiting,
	}
}

// HandleJoin handles POST /join.
func (h *Handlers) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req types.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body")
		return
	}

	playerID, err := h.game.Join(req.Name)
	if err != nil {
		h.rejected(w, err)
		return
	}
	h.metrics.Joins.Inc()

	status := h.game.Status()
	h.metrics.PlayersSeated.Set(float64(status.CurrentPlayers))
	// The final seat filling starts the round.
	if status.State == types.StateTrading {
		h.metrics.RoundsStarted.Inc()
		h.hub.Broadcast(EventRoundStarted, status)
		h.observeState(status.State)
	}

	writeJSON(w, http.StatusOK, types.JoinResponse{PlayerID: playerID})
}

// HandleState handles GET /state?player_id=X.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player_id")

	snap, err := h.game.Snapshot(playerID)
	if err != nil {
		h.rejected(w, err)
		return
	}
	h.observeState(snap.State)

	writeJSON(w, http.StatusOK, snap)
}

// HandleAction handles POST /action: order placement and bulk cancellation.
func (h *Handlers) HandleAction(w http.ResponseWriter, r *http.Request) {
	var req types.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body")
		return
	}

	switch req.ActionType {
	case types.ActionOrder:
		orderID, trade, err := h.game.PlaceOrder(req.PlayerID, req.OrderType, req.Suit, req.Price)
		if err != nil {
			h.rejected(w, err)
			return
		}
		h.metrics.Orders.Inc()
		if trade != nil {
			h.metrics.Trades.Inc()
			h.hub.Broadcast(EventTrade, trade)
			writeJSON(w, http.StatusOK, types.ActionResponse{Success: true, Trade: trade})
			return
		}
		writeJSON(w, http.StatusOK, types.ActionResponse{Success: true, OrderID: orderID})

	case types.ActionCancel:
		ids, err := h.game.Cancel(req.PlayerID, req.OrderType, req.Suit, req.Price)
		if err != nil {
			h.rejected(w, err)
			return
		}
		h.metrics.Cancellations.Add(float64(len(ids)))
		// Always carry the canceled list, even when empty.
		writeJSON(w, http.StatusOK, struct {
			Success  bool     `json:"success"`
			Canceled []string `json:"canceled"`
		}{true, ids})

	default:
		h.rejected(w, &game.Error{Kind: game.KindInvalidAction, Msg: "Invalid action type"})
	}
}

// HandleStatus handles GET /status, the dispatcher preflight.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.game.Status()
	h.observeState(status.State)
	writeJSON(w, http.StatusOK, status)
}

// HandleWebSocket handles GET /ws, upgrading to the observer feed.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	h.hub.attach(conn)
}

// observeState feeds a freshly observed lifecycle state through the edge
// detector and broadcasts the round-completed event exactly once per round.
func (h *Handlers) observeState(state types.GameState) {
	h.mu.Lock()
	completed := state == types.StateCompleted && h.lastState != types.StateCompleted
	h.lastState = state
	h.mu.Unlock()

	if completed {
		h.metrics.RoundsCompleted.Inc()
		h.hub.Broadcast(EventRoundCompleted, h.game.Status())
	}
}

// rejected writes the 400 response for a game rejection and counts it.
func (h *Handlers) rejected(w http.ResponseWriter, err error) {
	var gerr *game.Error
	if errors.As(err, &gerr) {
		h.metrics.Rejections.WithLabelValues(string(gerr.Kind)).Inc()
		// A rejection can still be the request that retires an expired round.
		if gerr.Kind == game.KindRoundEnded {
			h.observeState(h.game.State())
		}
		writeError(w, gerr.Msg)
		return
	}
	h.logger.Error("unexpected error", "error", err)
	writeError(w, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: msg})
}
