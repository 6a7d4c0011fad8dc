// Package game implements the Figgie session: the waiting → trading →
// completed state machine, dealing, the per-suit order books, matching with
// clear-all-on-trade, and payout resolution.
//
// One Game instance backs one server. A single mutex guards the whole
// object: every mutator and every read that can trip the clock-driven
// round-end transition takes it. Critical sections are short — books hold a
// handful of orders and every trade empties them — so finer-grained locking
// buys nothing. Durable-sink writes happen inside the critical section so
// the persisted order matches the observable order; sink failures are
// logged and never surface to players.
package game

import (
	"encoding/hex"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"figgie-exchange/pkg/types"
)

// StartingBalance is each player's stake at the start of a session.
const StartingBalance = 350

// AntePool is the total amount collected per round, split evenly
// (integer division) across players.
const AntePool = 200

// timeScale is the normalized clock range published to clients. Remaining
// wall-clock time maps onto 0..timeScale regardless of the configured
// trading duration, so agents can pace themselves without knowing it.
const timeScale = 240

// Player is one seated participant. Owned by the Game; mutated only under
// the Game's mutex.
type Player struct {
	ID      string
	Name    string
	Balance int
	Hand    types.Hand
}

// PlayerOutcome is the per-player record handed to the sink at round end.
type PlayerOutcome struct {
	PlayerID       string
	Name           string
	InitialBalance int
	FinalBalance   int
	InitialHand    types.Hand
	FinalHand      types.Hand
	GoalCount      int
	Bonus          int
	IsWinner       bool
	ShareEach      int
}

// Sink receives append-only game events for durable storage. All methods
// are called with the Game's mutex held, must be safe for concurrent use
// with other sink consumers, and must never block trading: errors are
// logged by the Game and otherwise ignored.
type Sink interface {
	LogPlayer(playerID, name string) error
	LogRoundStart(roundID string, players, duration int, goalSuit, smallSuit types.Suit, start time.Time) error
	LogOrder(roundID string, o *Order, timeRemaining int) error
	LogCancellation(roundID string, o *Order, timeRemaining int) error
	LogTrade(roundID string, t types.Trade, timeRemaining int) error
	LogRoundEnd(roundID string, end time.Time, res types.Results, outcomes []PlayerOutcome) error
}

type nopSink struct{}

func (nopSink) LogPlayer(string, string) error { return nil }
func (nopSink) LogRoundStart(string, int, int, types.Suit, types.Suit, time.Time) error {
	return nil
}
func (nopSink) LogOrder(string, *Order, int) error        { return nil }
func (nopSink) LogCancellation(string, *Order, int) error { return nil }
func (nopSink) LogTrade(string, types.Trade, int) error   { return nil }
func (nopSink) LogRoundEnd(string, time.Time, types.Results, []PlayerOutcome) error {
	return nil
}

// Game is the authoritative session state. Safe for concurrent use.
type Game struct {
	mu sync.Mutex

	numPlayers int
	duration   time.Duration
	sink       Sink
	logger     *slog.Logger

	// Swappable for deterministic tests.
	clock func() time.Time
	rng   *rand.Rand

	state     types.GameState
	roundID   string
	players   map[string]*Player
	joinOrder []string
	books     map[types.Suit]*Book
	trades    []types.Trade
	pot       int
	startTime time.Time

	suitCounts      map[types.Suit]int
	goalSuit        types.Suit
	smallSuit       types.Suit
	initialBalances map[string]int
	initialHands    map[string]types.Hand
	results         *types.Results
}

// New creates a game for the given table size and trading duration.
// A nil sink discards events.
func New(numPlayers int, duration time.Duration, sink Sink, logger *slog.Logger) *Game {
	if sink == nil {
		sink = nopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Game{
		numPlayers: numPlayers,
		duration:   duration,
		sink:       sink,
		logger:     logger.With("component", "game"),
		clock:      time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	g.reset()
	return g
}

// reset wipes all round state and assigns a fresh round id. Nothing is
// preserved between rounds; players re-join.
func (g *Game) reset() {
	g.state = types.StateWaiting
	g.roundID = newID()
	g.players = make(map[string]*Player)
	g.joinOrder = nil
	g.books = make(map[types.Suit]*Book, 4)
	for _, s := range types.Suits() {
		g.books[s] = NewBook()
	}
	g.trades = nil
	g.pot = 0
	g.startTime = time.Time{}
	g.suitCounts = nil
	g.goalSuit = ""
	g.smallSuit = ""
	g.initialBalances = nil
	g.initialHands = nil
	g.results = nil
	g.logger.Info("game reset", "round_id", g.roundID)
}

func newID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// Join seats a new player. Joining a completed session resets it to waiting
// first; the round starts as a side effect of the final seat filling.
func (g *Game) Join(name string) (string, error) {
	if name == "" {
		return "", errNameRequired
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == types.StateCompleted {
		g.reset()
	}
	if g.state != types.StateWaiting {
		return "", errCannotJoin
	}
	if len(g.players) >= g.numPlayers {
		return "", errGameFull
	}

	pid := newID()
	g.players[pid] = &Player{
		ID:      pid,
		Name:    name,
		Balance: StartingBalance,
		Hand:    types.Hand{},
	}
	g.joinOrder = append(g.joinOrder, pid)
	g.logger.Info("player joined", "name", name, "player_id", pid, "seated", len(g.players))
	g.sinkErr(g.sink.LogPlayer(pid, name))

	if len(g.players) == g.numPlayers {
		g.startRound()
	}
	return pid, nil
}

// startRound deals the deck, collects the ante, derives the hidden goal
// suit, and starts the clock.
func (g *Game) startRound() {
	// Suit counts are a uniformly random permutation of (8, 10, 10, 12).
	counts := []int{8, 10, 10, 12}
	g.rng.Shuffle(len(counts), func(i, j int) {
		counts[i], counts[j] = counts[j], counts[i]
	})
	g.suitCounts = make(map[types.Suit]int, 4)
	for i, s := range types.Suits() {
		g.suitCounts[s] = counts[i]
	}

	var twelve types.Suit
	for _, s := range types.Suits() {
		switch g.suitCounts[s] {
		case 12:
			twelve = s
		case 8:
			g.smallSuit = s
		}
	}
	// The goal is the other suit of the 12-suit's color.
	for _, s := range types.Suits() {
		if s != twelve && s.Color() == twelve.Color() {
			g.goalSuit = s
			break
		}
	}

	g.initialBalances = make(map[string]int, len(g.players))
	for pid, p := range g.players {
		g.initialBalances[pid] = p.Balance
	}

	ante := AntePool / g.numPlayers
	g.pot = ante * g.numPlayers
	for _, p := range g.players {
		p.Balance -= ante
		p.Hand = types.Hand{}
		for _, s := range types.Suits() {
			p.Hand[s] = 0
		}
	}

	deck := make([]types.Suit, 0, 40)
	for _, s := range types.Suits() {
		for i := 0; i < g.suitCounts[s]; i++ {
			deck = append(deck, s)
		}
	}
	g.rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	// Round-robin in join order; any remainder stays undealt.
	per := len(deck) / g.numPlayers
	for i := 0; i < per; i++ {
		for _, pid := range g.joinOrder {
			card := deck[len(deck)-1]
			deck = deck[:len(deck)-1]
			g.players[pid].Hand[card]++
		}
	}

	g.initialHands = make(map[string]types.Hand, len(g.players))
	for pid, p := range g.players {
		g.initialHands[pid] = p.Hand.Clone()
	}

	g.state = types.StateTrading
	g.startTime = g.clock()
	g.logger.Info("round started",
		"round_id", g.roundID,
		"goal_suit", g.goalSuit,
		"pot", g.pot,
		"players", g.numPlayers,
	)
	g.sinkErr(g.sink.LogRoundStart(g.roundID, g.numPlayers, int(g.duration.Seconds()), g.goalSuit, g.smallSuit, g.startTime))
}

// endRound computes payouts exactly once and transitions to completed.
// Bonuses are 10 per goal card; the pot remainder splits evenly among the
// players holding the most goal cards, integer-division residue dropped.
func (g *Game) endRound() {
	if g.state != types.StateTrading {
		return
	}

	counts := make(map[string]int, len(g.players))
	bonuses := make(map[string]int, len(g.players))
	totalBonus := 0
	maxCount := 0
	for pid, p := range g.players {
		n := p.Hand[g.goalSuit]
		counts[pid] = n
		b := 10 * n
		p.Balance += b
		bonuses[pid] = b
		totalBonus += b
		if n > maxCount {
			maxCount = n
		}
	}

	var winners []string
	for _, pid := range g.joinOrder {
		if counts[pid] == maxCount {
			winners = append(winners, pid)
		}
	}

	remainder := g.pot - totalBonus
	share := 0
	if len(winners) > 0 {
		share = remainder / len(winners)
	}
	for _, pid := range winners {
		g.players[pid].Balance += share
	}

	g.results = &types.Results{
		GoalSuit:  g.goalSuit,
		Counts:    counts,
		Bonuses:   bonuses,
		Winners:   winners,
		ShareEach: share,
	}

	end := g.clock()
	outcomes := make([]PlayerOutcome, 0, len(g.players))
	for _, pid := range g.joinOrder {
		p := g.players[pid]
		isWinner := false
		for _, w := range winners {
			if w == pid {
				isWinner = true
				break
			}
		}
		outcomes = append(outcomes, PlayerOutcome{
			PlayerID:       pid,
			Name:           p.Name,
			InitialBalance: g.initialBalances[pid],
			FinalBalance:   p.Balance,
			InitialHand:    g.initialHands[pid].Clone(),
			FinalHand:      p.Hand.Clone(),
			GoalCount:      counts[pid],
			Bonus:          bonuses[pid],
			IsWinner:       isWinner,
			ShareEach:      share,
		})
	}
	g.sinkErr(g.sink.LogRoundEnd(g.roundID, end, *g.results, outcomes))

	g.pot = 0
	g.state = types.StateCompleted
	g.logger.Info("round completed",
		"round_id", g.roundID,
		"goal_suit", g.goalSuit,
		"winners", winners,
		"share_each", share,
	)
}

// computeTime returns the normalized remaining time on the 0..240 scale.
// Crossing zero ends the round as a side effect, so any request can be the
// one that retires an expired round.
func (g *Game) computeTime() int {
	total := g.duration.Seconds()
	elapsed := g.clock().Sub(g.startTime).Seconds()
	remaining := total - elapsed
	if remaining <= 0 {
		g.endRound()
		return 0
	}
	return int(remaining / total * timeScale)
}

// PlaceOrder validates and admits a single-unit limit order. If it crosses
// the best opposing resting order it executes immediately at the resting
// price and every book is cleared; otherwise it rests at its price-sorted
// position. Returns the resting order id, or the executed trade.
func (g *Game) PlaceOrder(playerID, orderType, suit string, price int) (string, *types.Trade, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok {
		return "", nil, errInvalidPlayer
	}
	if g.state == types.StateCompleted {
		return "", nil, errRoundEnded
	}
	if g.state != types.StateTrading {
		return "", nil, errTradingNotActive
	}
	timeRemaining := g.computeTime()
	if timeRemaining == 0 {
		return "", nil, errRoundEnded
	}

	side := types.Side(orderType)
	if side != types.Buy && side != types.Sell {
		return "", nil, errInvalidOrderType
	}
	s := types.Suit(suit)
	if !s.Valid() {
		return "", nil, errInvalidSuit
	}
	if price <= 0 {
		return "", nil, errInvalidPrice
	}
	if side == types.Sell && p.Hand[s] < 1 {
		return "", nil, errNotEnoughCards
	}
	if side == types.Buy && p.Balance < price {
		return "", nil, errInsufficient
	}

	book := g.books[s]
	if book.HasOrder(playerID, side, price) {
		return "", nil, errDuplicateOrder
	}

	// Match probe: only the best opposing order is considered. Deeper own
	// orders can never be reached — an executed trade clears the books
	// before anything below the top could match.
	var resting *Order
	if side == types.Buy {
		if best := book.BestAsk(); best != nil && price >= best.Price {
			if best.PlayerID == playerID {
				return "", nil, errSelfTrade
			}
			resting = best
		}
	} else {
		if best := book.BestBid(); best != nil && price <= best.Price {
			if best.PlayerID == playerID {
				return "", nil, errSelfTrade
			}
			resting = best
		}
	}

	if resting != nil {
		trade := g.execute(playerID, side, s, resting, timeRemaining)
		return "", &trade, nil
	}

	o := &Order{
		ID:       newID(),
		PlayerID: playerID,
		Side:     side,
		Suit:     s,
		Price:    price,
	}
	g.sinkErr(g.sink.LogOrder(g.roundID, o, timeRemaining))
	book.Insert(o)
	g.logger.Debug("order resting",
		"order_id", o.ID, "player_id", playerID, "side", side, "suit", s, "price", price)
	return o.ID, nil, nil
}

// execute settles one trade at the resting order's price, then clears every
// order in every book — any trade cancels the entire market (Figgie rule).
func (g *Game) execute(takerID string, takerSide types.Side, suit types.Suit, resting *Order, timeRemaining int) types.Trade {
	buyer, seller := takerID, resting.PlayerID
	if takerSide == types.Sell {
		buyer, seller = resting.PlayerID, takerID
	}

	g.players[seller].Hand[suit]--
	g.players[buyer].Hand[suit]++
	g.players[buyer].Balance -= resting.Price
	g.players[seller].Balance += resting.Price

	trade := types.Trade{Buyer: buyer, Seller: seller, Price: resting.Price, Suit: suit}
	g.trades = append(g.trades, trade)
	g.sinkErr(g.sink.LogTrade(g.roundID, trade, timeRemaining))

	for _, b := range g.books {
		b.Clear()
	}

	g.logger.Info("trade executed",
		"round_id", g.roundID, "buyer", buyer, "seller", seller, "suit", suit, "price", resting.Price)
	return trade
}

// Cancel bulk-cancels the player's live orders matching the side, suit, and
// price threshold. Side "both" spans both sides, suit "all" spans all
// suits, and threshold -1 ignores price; otherwise buys at or above and
// sells at or below the threshold are cancelled. Returns the cancelled ids.
func (g *Game) Cancel(playerID, orderType, suit string, threshold int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.players[playerID]; !ok {
		return nil, errInvalidPlayer
	}
	if g.state == types.StateCompleted {
		return nil, errRoundEnded
	}
	if g.state != types.StateTrading {
		return nil, errTradingNotActive
	}
	timeRemaining := g.computeTime()
	if timeRemaining == 0 {
		return nil, errRoundEnded
	}

	if orderType != "buy" && orderType != "sell" && orderType != "both" {
		return nil, errInvalidOrderType
	}
	if suit != "all" && !types.Suit(suit).Valid() {
		return nil, errInvalidSuit
	}
	if threshold < -1 {
		return nil, errInvalidThreshold
	}

	canceled := []string{}
	for _, s := range types.Suits() {
		if suit != "all" && types.Suit(suit) != s {
			continue
		}
		book := g.books[s]
		for _, side := range []types.Side{types.Buy, types.Sell} {
			if orderType != "both" && types.Side(orderType) != side {
				continue
			}
			// Copy: Remove mutates the side while we walk it.
			live := append([]*Order(nil), book.Side(side)...)
			for _, o := range live {
				if o.PlayerID != playerID {
					continue
				}
				match := threshold == -1 ||
					(o.Side == types.Buy && o.Price >= threshold) ||
					(o.Side == types.Sell && o.Price <= threshold)
				if !match {
					continue
				}
				book.Remove(o.ID)
				canceled = append(canceled, o.ID)
				g.sinkErr(g.sink.LogCancellation(g.roundID, o, timeRemaining))
			}
		}
	}
	if len(canceled) > 0 {
		g.logger.Debug("orders cancelled", "player_id", playerID, "count", len(canceled))
	}
	return canceled, nil
}

// Snapshot builds the state view for one player. The goal suit and other
// players' hands stay concealed until the round has completed. Reading the
// clock here can itself end the round, in which case the returned snapshot
// is already the completed one.
func (g *Game) Snapshot(playerID string) (types.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok {
		return types.Snapshot{}, errInvalidPlayer
	}

	var timeLeft *int
	if g.state == types.StateTrading {
		t := g.computeTime()
		timeLeft = &t
	}

	market := make(types.Market, 4)
	for _, s := range types.Suits() {
		book := g.books[s]
		var sm types.SuitMarket
		if bid := book.BestBid(); bid != nil {
			sm.HighestBid = &types.Quote{PlayerID: bid.PlayerID, Price: bid.Price}
		}
		if ask := book.BestAsk(); ask != nil {
			sm.LowestAsk = &types.Quote{PlayerID: ask.PlayerID, Price: ask.Price}
		}
		market[s] = sm
	}

	balances := make(map[string]int, len(g.players))
	for pid, pl := range g.players {
		balances[pid] = pl.Balance
	}

	snap := types.Snapshot{
		State:    g.state,
		TimeLeft: timeLeft,
		Pot:      g.pot,
		Hand:     p.Hand.Clone(),
		Market:   market,
		Balances: balances,
		Trades:   append([]types.Trade(nil), g.trades...),
	}
	if g.state == types.StateCompleted {
		snap.Results = g.results
		hands := make(map[string]types.Hand, len(g.players))
		for pid, pl := range g.players {
			hands[pid] = pl.Hand.Clone()
		}
		snap.Hands = hands
	}
	return snap, nil
}

// Status reports the preflight view: lifecycle state, seated player count,
// and the configured trading duration in seconds.
func (g *Game) Status() types.StatusResponse {
	g.mu.Lock()
	defer g.mu.Unlock()

	return types.StatusResponse{
		State:           g.state,
		CurrentPlayers:  len(g.players),
		TradingDuration: int(g.duration.Seconds()),
	}
}

// RoundID returns the current round's opaque identifier.
func (g *Game) RoundID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roundID
}

// State returns the current lifecycle phase.
func (g *Game) State() types.GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Game) sinkErr(err error) {
	if err != nil {
		g.logger.Warn("sink write failed", "round_id", g.roundID, "error", err)
	}
}
