package agent

import (
	"log/slog"

	"figgie-exchange/internal/client"
	"figgie-exchange/pkg/types"
)

// Listener is a passive agent: it joins, polls, and logs market events
// without ever placing an order. Useful for filling seats during
// experiments and as the smallest possible reference agent.
type Listener struct {
	client *client.Client
	logger *slog.Logger
}

// NewListener wires a listener's callbacks onto the client runtime.
func NewListener(c *client.Client, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{client: c, logger: logger.With("component", "listener")}

	c.OnStart(func(info client.StartInfo) {
		l.logger.Info("round started", "balance", info.Balance, "pot", info.Pot, "opponents", len(info.Opponents))
	})
	c.OnBid(func(e client.QuoteEvent) {
		l.logger.Debug("bid", "suit", e.Suit, "price", e.Price, "player", e.PlayerID)
	})
	c.OnOffer(func(e client.QuoteEvent) {
		l.logger.Debug("offer", "suit", e.Suit, "price", e.Price, "player", e.PlayerID)
	})
	c.OnCancel(func(e client.CancelEvent) {
		l.logger.Debug("quote pulled", "suit", e.Suit, "side", e.Side, "old_price", e.OldPrice, "new_price", e.NewPrice)
	})
	c.OnTrade(func(t types.Trade) {
		l.logger.Info("trade", "suit", t.Suit, "price", t.Price, "buyer", t.Buyer, "seller", t.Seller)
	})
	c.OnComplete(func(r types.Results) {
		l.logger.Info("round completed", "goal_suit", r.GoalSuit, "winners", r.Winners, "share_each", r.ShareEach)
	})
	return l
}

// Start joins the session and begins polling.
func (l *Listener) Start() error { return l.client.Start() }

// Stop halts polling.
func (l *Listener) Stop() { l.client.Stop() }

// PlayerID returns the seat id assigned at join.
func (l *Listener) PlayerID() string { return l.client.PlayerID() }

// Completed reports whether the round has finished.
func (l *Listener) Completed() bool { return l.client.Completed() }

// RegisterListener adds the built-in listener kind to a registry.
func RegisterListener(reg *Registry, logger *slog.Logger) error {
	return reg.Register("listener", nil, func(c *client.Client, _ map[string]any) (Agent, error) {
		return NewListener(c, logger), nil
	})
}
