// Package types defines the wire-level vocabulary shared by the Figgie
// server and the client runtime: suits, order sides, the per-player state
// snapshot, and the request/response bodies of every HTTP endpoint.
//
// All prices and balances are small integers by rule; quantities are
// implicitly 1. JSON field names are the stable contract — agents written
// against one server version must keep working against the next.
package types

// Suit is one of the four tradeable Figgie suits.
type Suit string

const (
	Spades   Suit = "spades"
	Clubs    Suit = "clubs"
	Hearts   Suit = "hearts"
	Diamonds Suit = "diamonds"
)

// Color is a suit color. The goal suit always shares the color of the
// 12-count suit.
type Color string

const (
	Black Color = "black"
	Red   Color = "red"
)

// Suits returns all four suits in canonical order. Iteration over suit maps
// should go through this slice so that observable ordering is deterministic.
func Suits() []Suit {
	return []Suit{Spades, Clubs, Hearts, Diamonds}
}

// Color returns the suit's color: spades/clubs black, hearts/diamonds red.
func (s Suit) Color() Color {
	switch s {
	case Spades, Clubs:
		return Black
	default:
		return Red
	}
}

// Valid reports whether s is one of the four suits.
func (s Suit) Valid() bool {
	switch s {
	case Spades, Clubs, Hearts, Diamonds:
		return true
	}
	return false
}

// Side is an order side.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the matching side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// GameState is the session lifecycle phase.
type GameState string

const (
	StateWaiting   GameState = "waiting"
	StateTrading   GameState = "trading"
	StateCompleted GameState = "completed"
)

// Hand maps each suit to a nonnegative card count.
type Hand map[Suit]int

// Clone returns a copy of the hand.
func (h Hand) Clone() Hand {
	out := make(Hand, len(h))
	for s, n := range h {
		out[s] = n
	}
	return out
}

// Quote is one side of the top of a suit's book.
type Quote struct {
	PlayerID string `json:"player_id"`
	Price    int    `json:"price"`
}

// SuitMarket carries the best bid and best ask for one suit. A nil pointer
// means that side of the book is empty.
type SuitMarket struct {
	HighestBid *Quote `json:"highest_bid"`
	LowestAsk  *Quote `json:"lowest_ask"`
}

// Market maps each suit to its top-of-book quotes.
type Market map[Suit]SuitMarket

// Trade is one executed trade. Quantity is always one card.
type Trade struct {
	Buyer  string `json:"buyer"`
	Seller string `json:"seller"`
	Price  int    `json:"price"`
	Suit   Suit   `json:"suit"`
}

// Results is the round outcome, present in snapshots only once the round
// has completed.
type Results struct {
	GoalSuit  Suit           `json:"goal_suit"`
	Counts    map[string]int `json:"counts"`
	Bonuses   map[string]int `json:"bonuses"`
	Winners   []string       `json:"winners"`
	ShareEach int            `json:"share_each"`
}

// Snapshot is the full game state as seen by one player. The requester's
// own hand is always present during trading; other players' hands appear
// only in the Hands block after completion. TimeLeft is on the normalized
// 0..240 scale and is nil outside the trading phase.
type Snapshot struct {
	State    GameState       `json:"state"`
	TimeLeft *int            `json:"time_left"`
	Pot      int             `json:"pot"`
	Hand     Hand            `json:"hand"`
	Market   Market          `json:"market"`
	Balances map[string]int  `json:"balances"`
	Trades   []Trade         `json:"trades"`
	Results  *Results        `json:"results,omitempty"`
	Hands    map[string]Hand `json:"hands,omitempty"`
}

// JoinRequest is the body of POST /join.
type JoinRequest struct {
	Name string `json:"name"`
}

// JoinResponse is the success body of POST /join.
type JoinResponse struct {
	PlayerID string `json:"player_id"`
}

// Action type discriminators for POST /action.
const (
	ActionOrder  = "order"
	ActionCancel = "cancel"
)

// ActionRequest is the body of POST /action. For orders, OrderType is
// "buy" or "sell" and Price is the limit price. For cancels, OrderType may
// also be "both", Suit may be "all", and Price is the cancel threshold
// (-1 cancels regardless of price).
type ActionRequest struct {
	PlayerID   string `json:"player_id"`
	ActionType string `json:"action_type"`
	OrderType  string `json:"order_type"`
	Suit       string `json:"suit"`
	Price      int    `json:"price"`
}

// ActionResponse is the success body of POST /action. Exactly one of
// OrderID, Trade, or Canceled is populated depending on the outcome.
type ActionResponse struct {
	Success  bool     `json:"success"`
	OrderID  string   `json:"order_id,omitempty"`
	Trade    *Trade   `json:"trade,omitempty"`
	Canceled []string `json:"canceled,omitempty"`
}

// StatusResponse is the body of GET /status, used by dispatchers to
// preflight a server before spawning agents.
type StatusResponse struct {
	State           GameState `json:"state"`
	CurrentPlayers  int       `json:"current_players"`
	TradingDuration int       `json:"trading_duration"`
}

// ErrorResponse is the body of every 400 response.
type ErrorResponse struct {
	Error string `json:"error"`
}
