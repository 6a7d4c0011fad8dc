// Package client is the agent-side runtime for the Figgie exchange. It
// joins a session, polls the per-player state endpoint on a jittered
// interval, and converts consecutive snapshots into a stream of market
// events (bids, offers, cancels, trades, round start and completion) so
// strategies can be written against callbacks instead of raw polling.
package client

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"figgie-exchange/pkg/types"
)

// Config configures one client runtime.
type Config struct {
	ServerURL string
	Name      string

	// PollingRate is the target seconds between polls on the normalized
	// clock; Jitter is a fraction of the rate added or subtracted uniformly
	// per poll so a table of identical agents doesn't phase-lock.
	PollingRate float64
	Jitter      float64
}

// Client polls the server on behalf of one player and dispatches events.
// Register callbacks before Start; they run on the polling goroutine, so a
// slow callback delays the next poll.
type Client struct {
	http   *resty.Client
	name   string
	rate   float64
	jitter float64
	rng    *rand.Rand
	logger *slog.Logger

	mu       sync.Mutex
	playerID string
	prev     *types.Snapshot
	cursor   int

	onStart    func(StartInfo)
	onTick     func(timeLeft int)
	onBid      func(QuoteEvent)
	onOffer    func(QuoteEvent)
	onCancel   func(CancelEvent)
	onTrade    func(types.Trade)
	onComplete func(types.Results)

	stop chan struct{}
	done chan struct{}
}

// StartInfo is handed to the start callback when trading begins.
type StartInfo struct {
	Hand      types.Hand
	Balance   int
	Pot       int
	Opponents []string
}

// QuoteEvent is a new or improved top-of-book quote.
type QuoteEvent struct {
	Suit     types.Suit
	PlayerID string
	Price    int
}

// CancelEvent signals that a previously observed top-of-book quote was
// pulled. The old quote is always present; the New fields carry whatever
// replaced it at the top, and are zero when the side emptied. Strategies
// that mirror the book repair their model from these fields.
type CancelEvent struct {
	Suit        types.Suit
	Side        types.Side
	OldPlayerID string
	OldPrice    int
	NewPlayerID string
	NewPrice    int
}

// New creates a client runtime. Call Start to join and begin polling.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollingRate <= 0 {
		cfg.PollingRate = 1.0
	}
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.ServerURL).
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond),
		name:   cfg.Name,
		rate:   cfg.PollingRate,
		jitter: cfg.Jitter,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger.With("component", "client", "name", cfg.Name),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Callback registration. Not safe to call after Start.

func (c *Client) OnStart(fn func(StartInfo))        { c.onStart = fn }
func (c *Client) OnTick(fn func(timeLeft int))      { c.onTick = fn }
func (c *Client) OnBid(fn func(QuoteEvent))         { c.onBid = fn }
func (c *Client) OnOffer(fn func(QuoteEvent))       { c.onOffer = fn }
func (c *Client) OnCancel(fn func(CancelEvent))     { c.onCancel = fn }
func (c *Client) OnTrade(fn func(types.Trade))      { c.onTrade = fn }
func (c *Client) OnComplete(fn func(types.Results)) { c.onComplete = fn }

// Start joins the session and launches the polling loop.
func (c *Client) Start() error {
	if err := c.Join(); err != nil {
		return err
	}
	go c.pollLoop()
	return nil
}

// Stop halts polling and waits for the loop to exit.
func (c *Client) Stop() {
	close(c.stop)
	<-c.done
}

// Join seats the player without starting the poll loop. Exposed for tests
// and for callers that drive polling themselves.
func (c *Client) Join() error {
	var out types.JoinResponse
	var apiErr types.ErrorResponse
	resp, err := c.http.R().
		SetBody(types.JoinRequest{Name: c.name}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/join")
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("join rejected: %s", apiErr.Error)
	}

	c.mu.Lock()
	c.playerID = out.PlayerID
	c.mu.Unlock()
	c.logger.Info("joined", "player_id", out.PlayerID)
	return nil
}

// PlayerID returns the seat id assigned at join, or "" before joining.
func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Snapshot returns the most recently fetched state, or nil before the
// first successful poll.
func (c *Client) Snapshot() *types.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prev
}

// Completed reports whether the last observed state was a finished round.
func (c *Client) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prev != nil && c.prev.State == types.StateCompleted
}

func (c *Client) pollLoop() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case <-time.After(c.sleepInterval()):
		}
		if err := c.Poll(); err != nil {
			c.logger.Warn("poll failed", "error", err)
		}
	}
}

// sleepInterval is the polling rate with uniform jitter applied.
func (c *Client) sleepInterval() time.Duration {
	d := c.rate
	if c.jitter > 0 {
		d += (c.rng.Float64()*2 - 1) * c.jitter * c.rate
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d * float64(time.Second))
}

// Poll fetches the current snapshot and dispatches the events implied by
// the difference from the previous one. A failed fetch changes nothing:
// the cursor and previous snapshot stay put, so no event is lost.
func (c *Client) Poll() error {
	var snap types.Snapshot
	var apiErr types.ErrorResponse
	resp, err := c.http.R().
		SetQueryParam("player_id", c.PlayerID()).
		SetResult(&snap).
		SetError(&apiErr).
		Get("/state")
	if err != nil {
		return fmt.Errorf("fetch state: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("state rejected: %s", apiErr.Error)
	}

	c.processSnapshot(&snap)
	return nil
}

// Order placement and cancellation.

// Bid places a buy limit order.
func (c *Client) Bid(suit types.Suit, price int) (*types.ActionResponse, error) {
	return c.order("buy", suit, price)
}

// Offer places a sell limit order.
func (c *Client) Offer(suit types.Suit, price int) (*types.ActionResponse, error) {
	return c.order("sell", suit, price)
}

// Buy lifts the current lowest ask for the suit, based on the last
// snapshot. Returns an error if no ask is resting.
func (c *Client) Buy(suit types.Suit) (*types.ActionResponse, error) {
	c.mu.Lock()
	snap := c.prev
	c.mu.Unlock()
	if snap == nil {
		return nil, fmt.Errorf("buy %s: no market snapshot yet", suit)
	}
	ask := snap.Market[suit].LowestAsk
	if ask == nil {
		return nil, fmt.Errorf("buy %s: no resting ask", suit)
	}
	return c.order("buy", suit, ask.Price)
}

// Sell hits the current highest bid for the suit, based on the last
// snapshot. Returns an error if no bid is resting.
func (c *Client) Sell(suit types.Suit) (*types.ActionResponse, error) {
	c.mu.Lock()
	snap := c.prev
	c.mu.Unlock()
	if snap == nil {
		return nil, fmt.Errorf("sell %s: no market snapshot yet", suit)
	}
	bid := snap.Market[suit].HighestBid
	if bid == nil {
		return nil, fmt.Errorf("sell %s: no resting bid", suit)
	}
	return c.order("sell", suit, bid.Price)
}

func (c *Client) order(orderType string, suit types.Suit, price int) (*types.ActionResponse, error) {
	var out types.ActionResponse
	var apiErr types.ErrorResponse
	resp, err := c.http.R().
		SetBody(types.ActionRequest{
			PlayerID:   c.PlayerID(),
			ActionType: types.ActionOrder,
			OrderType:  orderType,
			Suit:       string(suit),
			Price:      price,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/action")
	if err != nil {
		return nil, fmt.Errorf("%s %s @ %d: %w", orderType, suit, price, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s %s @ %d rejected: %s", orderType, suit, price, apiErr.Error)
	}
	return &out, nil
}

// Cancel bulk-cancels orders. orderType is "buy", "sell", or "both"; suit
// is a suit name or "all"; threshold -1 cancels regardless of price,
// otherwise buys at or above and sells at or below it are cancelled.
func (c *Client) Cancel(orderType, suit string, threshold int) ([]string, error) {
	var out types.ActionResponse
	var apiErr types.ErrorResponse
	resp, err := c.http.R().
		SetBody(types.ActionRequest{
			PlayerID:   c.PlayerID(),
			ActionType: types.ActionCancel,
			OrderType:  orderType,
			Suit:       suit,
			Price:      threshold,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/action")
	if err != nil {
		return nil, fmt.Errorf("cancel %s/%s: %w", orderType, suit, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("cancel %s/%s rejected: %s", orderType, suit, apiErr.Error)
	}
	return out.Canceled, nil
}

// CancelSuit cancels all of the player's orders in one suit.
func (c *Client) CancelSuit(suit types.Suit) ([]string, error) {
	return c.Cancel("both", string(suit), -1)
}

// CancelAll cancels every live order the player has.
func (c *Client) CancelAll() ([]string, error) {
	return c.Cancel("both", "all", -1)
}
