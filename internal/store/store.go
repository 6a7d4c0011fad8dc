// Package store persists the game's append-only event log to SQLite:
// players, agent registrations, rounds, order/cancellation actions, trades,
// and per-player round outcomes.
//
// The engine calls the Log* methods from inside its critical section, so
// writes land in the same order clients observe events. Writes are
// idempotent on primary keys and must never block trading — the engine
// logs and discards any error returned here. Readers (experiment catalog,
// dashboards) use the *ForRound queries.
//
// modernc.org/sqlite is pure Go (no CGo); SQLite is single-writer, so the
// pool is pinned to one connection and a mutex serializes all access.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"figgie-exchange/internal/game"
	"figgie-exchange/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS players(
    player_id TEXT PRIMARY KEY,
    name      TEXT NOT NULL,
    joined_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS agents(
    player_id     TEXT PRIMARY KEY,
    kind          TEXT NOT NULL,
    params        TEXT,
    polling_rate  REAL NOT NULL DEFAULT 0,
    experiment_id INTEGER NOT NULL DEFAULT 0,
    registered_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS rounds(
    round_id   TEXT PRIMARY KEY,
    players    INTEGER NOT NULL,
    duration   INTEGER NOT NULL,
    goal_suit  TEXT NOT NULL,
    small_suit TEXT NOT NULL,
    start_time DATETIME NOT NULL,
    end_time   DATETIME
);

CREATE TABLE IF NOT EXISTS actions(
    action_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    round_id       TEXT NOT NULL,
    action_type    TEXT NOT NULL,
    order_id       TEXT NOT NULL,
    player_id      TEXT NOT NULL,
    order_type     TEXT NOT NULL,
    suit           TEXT NOT NULL,
    price          INTEGER NOT NULL,
    time_remaining INTEGER NOT NULL,
    created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades(
    trade_id       INTEGER PRIMARY KEY AUTOINCREMENT,
    round_id       TEXT NOT NULL,
    buyer          TEXT NOT NULL,
    seller         TEXT NOT NULL,
    suit           TEXT NOT NULL,
    price          INTEGER NOT NULL,
    time_remaining INTEGER NOT NULL,
    created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS results(
    round_id         TEXT NOT NULL,
    player_id        TEXT NOT NULL,
    initial_balance  INTEGER NOT NULL,
    final_balance    INTEGER NOT NULL,
    initial_spades   INTEGER NOT NULL,
    initial_clubs    INTEGER NOT NULL,
    initial_hearts   INTEGER NOT NULL,
    initial_diamonds INTEGER NOT NULL,
    final_spades     INTEGER NOT NULL,
    final_clubs      INTEGER NOT NULL,
    final_hearts     INTEGER NOT NULL,
    final_diamonds   INTEGER NOT NULL,
    goal_count       INTEGER NOT NULL,
    bonus            INTEGER NOT NULL,
    is_winner        INTEGER NOT NULL,
    share_each       INTEGER NOT NULL,
    PRIMARY KEY (round_id, player_id)
);

CREATE INDEX IF NOT EXISTS idx_actions_round ON actions(round_id);
CREATE INDEX IF NOT EXISTS idx_trades_round  ON trades(round_id);
`

// Store is the SQLite-backed event sink. Safe for concurrent use; multiple
// servers (a 4-player and a 5-player instance, say) may share one Store.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Compile-time check: Store satisfies the engine's sink contract.
var _ game.Sink = (*Store)(nil)

// Open creates (or opens) the database at the given path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LogPlayer records a join. Re-joining with the same id is a no-op.
func (s *Store) LogPlayer(playerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO players(player_id, name, joined_at) VALUES (?, ?, ?)`,
		playerID, name, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("log player: %w", err)
	}
	return nil
}

// RegisterAgent records which agent kind is driving a seated player.
func (s *Store) RegisterAgent(playerID, kind string, params map[string]any, pollingRate float64, experimentID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal agent params: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO agents(player_id, kind, params, polling_rate, experiment_id, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		playerID, kind, string(blob), pollingRate, experimentID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("register agent: %w", err)
	}
	return nil
}

// LogRoundStart records the round's configuration, including the hidden
// goal suit — the database is trusted; snapshots are not.
func (s *Store) LogRoundStart(roundID string, players, duration int, goalSuit, smallSuit types.Suit, start time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO rounds(round_id, players, duration, goal_suit, small_suit, start_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		roundID, players, duration, string(goalSuit), string(smallSuit), start.UTC(),
	)
	if err != nil {
		return fmt.Errorf("log round start: %w", err)
	}
	return nil
}

// LogOrder appends a resting-order event.
func (s *Store) LogOrder(roundID string, o *game.Order, timeRemaining int) error {
	return s.logAction(roundID, "order", o, timeRemaining)
}

// LogCancellation appends an explicit-cancel event.
func (s *Store) LogCancellation(roundID string, o *game.Order, timeRemaining int) error {
	return s.logAction(roundID, "cancellation", o, timeRemaining)
}

func (s *Store) logAction(roundID, actionType string, o *game.Order, timeRemaining int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO actions(round_id, action_type, order_id, player_id, order_type, suit, price, time_remaining, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		roundID, actionType, o.ID, o.PlayerID, string(o.Side), string(o.Suit), o.Price, timeRemaining, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("log %s: %w", actionType, err)
	}
	return nil
}

// LogTrade appends an executed trade.
func (s *Store) LogTrade(roundID string, t types.Trade, timeRemaining int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO trades(round_id, buyer, seller, suit, price, time_remaining, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		roundID, t.Buyer, t.Seller, string(t.Suit), t.Price, timeRemaining, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("log trade: %w", err)
	}
	return nil
}

// LogRoundEnd stamps the round's end time and writes one outcome row per
// player, all in one transaction.
func (s *Store) LogRoundEnd(roundID string, end time.Time, _ types.Results, outcomes []game.PlayerOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("log round end: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE rounds SET end_time = ? WHERE round_id = ?`, end.UTC(), roundID,
	); err != nil {
		return fmt.Errorf("log round end: stamp end time: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO results(
			round_id, player_id, initial_balance, final_balance,
			initial_spades, initial_clubs, initial_hearts, initial_diamonds,
			final_spades, final_clubs, final_hearts, final_diamonds,
			goal_count, bonus, is_winner, share_each)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("log round end: prepare: %w", err)
	}
	defer stmt.Close()

	for _, out := range outcomes {
		isWinner := 0
		if out.IsWinner {
			isWinner = 1
		}
		if _, err := stmt.Exec(
			roundID, out.PlayerID, out.InitialBalance, out.FinalBalance,
			out.InitialHand[types.Spades], out.InitialHand[types.Clubs],
			out.InitialHand[types.Hearts], out.InitialHand[types.Diamonds],
			out.FinalHand[types.Spades], out.FinalHand[types.Clubs],
			out.FinalHand[types.Hearts], out.FinalHand[types.Diamonds],
			out.GoalCount, out.Bonus, isWinner, out.ShareEach,
		); err != nil {
			return fmt.Errorf("log round end: result %s: %w", out.PlayerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("log round end: commit: %w", err)
	}
	return nil
}

// RoundRecord is a persisted round header. EndTime is nil while the round
// is still running.
type RoundRecord struct {
	RoundID   string
	Players   int
	Duration  int
	GoalSuit  types.Suit
	SmallSuit types.Suit
	StartTime time.Time
	EndTime   *time.Time
}

// ActionRecord is one persisted order or cancellation.
type ActionRecord struct {
	ActionType    string
	OrderID       string
	PlayerID      string
	OrderType     string
	Suit          types.Suit
	Price         int
	TimeRemaining int
}

// TradeRecord is one persisted trade.
type TradeRecord struct {
	Buyer         string
	Seller        string
	Suit          types.Suit
	Price         int
	TimeRemaining int
}

// ResultRecord is one player's persisted round outcome.
type ResultRecord struct {
	PlayerID       string
	InitialBalance int
	FinalBalance   int
	GoalCount      int
	Bonus          int
	IsWinner       bool
	ShareEach      int
}

// Round returns the header for one round, or sql.ErrNoRows.
func (s *Store) Round(ctx context.Context, roundID string) (RoundRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r RoundRecord
	var end sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT round_id, players, duration, goal_suit, small_suit, start_time, end_time
		 FROM rounds WHERE round_id = ?`, roundID,
	).Scan(&r.RoundID, &r.Players, &r.Duration, &r.GoalSuit, &r.SmallSuit, &r.StartTime, &end)
	if err != nil {
		return RoundRecord{}, fmt.Errorf("round %s: %w", roundID, err)
	}
	if end.Valid {
		t := end.Time
		r.EndTime = &t
	}
	return r, nil
}

// ActionsForRound returns a round's orders and cancellations in append order.
func (s *Store) ActionsForRound(ctx context.Context, roundID string) ([]ActionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT action_type, order_id, player_id, order_type, suit, price, time_remaining
		 FROM actions WHERE round_id = ? ORDER BY action_id`, roundID,
	)
	if err != nil {
		return nil, fmt.Errorf("actions for %s: %w", roundID, err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var a ActionRecord
		if err := rows.Scan(&a.ActionType, &a.OrderID, &a.PlayerID, &a.OrderType, &a.Suit, &a.Price, &a.TimeRemaining); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TradesForRound returns a round's trades in execution order.
func (s *Store) TradesForRound(ctx context.Context, roundID string) ([]TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT buyer, seller, suit, price, time_remaining
		 FROM trades WHERE round_id = ? ORDER BY trade_id`, roundID,
	)
	if err != nil {
		return nil, fmt.Errorf("trades for %s: %w", roundID, err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.Buyer, &t.Seller, &t.Suit, &t.Price, &t.TimeRemaining); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ResultsForRound returns the per-player outcomes of a completed round,
// winners first, then by final balance.
func (s *Store) ResultsForRound(ctx context.Context, roundID string) ([]ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id, initial_balance, final_balance, goal_count, bonus, is_winner, share_each
		 FROM results WHERE round_id = ?
		 ORDER BY is_winner DESC, final_balance DESC`, roundID,
	)
	if err != nil {
		return nil, fmt.Errorf("results for %s: %w", roundID, err)
	}
	defer rows.Close()

	var out []ResultRecord
	for rows.Next() {
		var r ResultRecord
		var isWinner int
		if err := rows.Scan(&r.PlayerID, &r.InitialBalance, &r.FinalBalance, &r.GoalCount, &r.Bonus, &isWinner, &r.ShareEach); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.IsWinner = isWinner == 1
		out = append(out, r)
	}
	return out, rows.Err()
}
