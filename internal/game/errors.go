package game

// Kind identifies a rejection category. Kinds are stable strings: the HTTP
// layer maps every one of them to a 400 response, and agents key retry
// behavior off the human-readable message.
type Kind string

const (
	// Validation
	KindNameRequired           Kind = "name-required"
	KindInvalidPlayerID        Kind = "invalid-player-id"
	KindInvalidOrderType       Kind = "invalid-order-type"
	KindInvalidSuit            Kind = "invalid-suit"
	KindInvalidPrice           Kind = "invalid-price"
	KindInvalidCancelThreshold Kind = "invalid-cancel-threshold"
	KindInvalidAction          Kind = "invalid-action"

	// Lifecycle
	KindCannotJoin       Kind = "cannot-join"
	KindGameFull         Kind = "game-full"
	KindTradingNotActive Kind = "trading-not-active"
	KindRoundEnded       Kind = "round-ended"

	// Business
	KindInsufficientFunds Kind = "insufficient-funds"
	KindNotEnoughCards    Kind = "not-enough-cards"
	KindDuplicateOrder    Kind = "duplicate-order"
	KindSelfTrade         Kind = "self-trade"
)

// Error is a typed game rejection. A rejected operation leaves all game
// state unchanged (the clock-driven round-end transition is the one
// deliberate exception).
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func errf(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Rejection messages, kept verbatim so agents matching on them keep working.
var (
	errNameRequired     = errf(KindNameRequired, "Name is required")
	errCannotJoin       = errf(KindCannotJoin, "Cannot join right now")
	errGameFull         = errf(KindGameFull, "Game is full")
	errInvalidPlayer    = errf(KindInvalidPlayerID, "Invalid player_id")
	errTradingNotActive = errf(KindTradingNotActive, "Trading not active")
	errRoundEnded       = errf(KindRoundEnded, "Round has ended")
	errInvalidOrderType = errf(KindInvalidOrderType, "Invalid order_type")
	errInvalidSuit      = errf(KindInvalidSuit, "Invalid suit")
	errInvalidPrice     = errf(KindInvalidPrice, "Price must be a positive integer")
	errInvalidThreshold = errf(KindInvalidCancelThreshold, "Price must be a non-negative integer or -1")
	errNotEnoughCards   = errf(KindNotEnoughCards, "Not enough cards")
	errInsufficient     = errf(KindInsufficientFunds, "Insufficient funds")
	errDuplicateOrder   = errf(KindDuplicateOrder, "Duplicate order")
	errSelfTrade        = errf(KindSelfTrade, "Cannot execute trade with oneself")
	errInvalidAction    = errf(KindInvalidAction, "Invalid action type")
)
