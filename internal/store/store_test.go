package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"figgie-exchange/internal/game"
	"figgie-exchange/internal/store"
	"figgie-exchange/pkg/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoundLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.LogRoundStart("r1", 4, 240, types.Clubs, types.Hearts, start))

	r, err := s.Round(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 4, r.Players)
	assert.Equal(t, types.Clubs, r.GoalSuit)
	assert.Equal(t, types.Hearts, r.SmallSuit)
	assert.Nil(t, r.EndTime, "end_time should be unset while running")

	outcomes := []game.PlayerOutcome{
		{
			PlayerID:       "p1",
			InitialBalance: 300,
			FinalBalance:   450,
			InitialHand:    types.Hand{types.Clubs: 2},
			FinalHand:      types.Hand{types.Clubs: 3},
			GoalCount:      3,
			Bonus:          30,
			IsWinner:       true,
			ShareEach:      120,
		},
		{
			PlayerID:       "p2",
			InitialBalance: 300,
			FinalBalance:   320,
			InitialHand:    types.Hand{types.Clubs: 2},
			FinalHand:      types.Hand{types.Clubs: 2},
			GoalCount:      2,
			Bonus:          20,
			ShareEach:      120,
		},
	}
	res := types.Results{GoalSuit: types.Clubs, ShareEach: 120, Winners: []string{"p1"}}
	require.NoError(t, s.LogRoundEnd("r1", start.Add(4*time.Minute), res, outcomes))

	r, err = s.Round(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, r.EndTime)

	got, err := s.ResultsForRound(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Winners first.
	assert.Equal(t, "p1", got[0].PlayerID)
	assert.True(t, got[0].IsWinner)
	assert.Equal(t, 120, got[0].ShareEach)
	assert.Equal(t, "p2", got[1].PlayerID)
	assert.False(t, got[1].IsWinner)
}

func TestActionsAppendInOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	o1 := &game.Order{ID: "o1", PlayerID: "p1", Side: types.Buy, Suit: types.Spades, Price: 30}
	o2 := &game.Order{ID: "o2", PlayerID: "p2", Side: types.Sell, Suit: types.Hearts, Price: 12}
	require.NoError(t, s.LogOrder("r1", o1, 200))
	require.NoError(t, s.LogOrder("r1", o2, 190))
	require.NoError(t, s.LogCancellation("r1", o1, 150))

	actions, err := s.ActionsForRound(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, actions, 3)

	assert.Equal(t, "order", actions[0].ActionType)
	assert.Equal(t, "o1", actions[0].OrderID)
	assert.Equal(t, 200, actions[0].TimeRemaining)
	assert.Equal(t, "order", actions[1].ActionType)
	assert.Equal(t, "cancellation", actions[2].ActionType)
	assert.Equal(t, "o1", actions[2].OrderID)

	// Other rounds are invisible.
	none, err := s.ActionsForRound(ctx, "r2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTradesAppendInOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LogTrade("r1", types.Trade{Buyer: "p1", Seller: "p2", Price: 30, Suit: types.Spades}, 220))
	require.NoError(t, s.LogTrade("r1", types.Trade{Buyer: "p2", Seller: "p3", Price: 14, Suit: types.Hearts}, 180))

	trades, err := s.TradesForRound(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "p1", trades[0].Buyer)
	assert.Equal(t, 30, trades[0].Price)
	assert.Equal(t, types.Hearts, trades[1].Suit)
}

func TestLogPlayerIdempotent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.LogPlayer("p1", "alice"))
	require.NoError(t, s.LogPlayer("p1", "alice"))
}

func TestRegisterAgent(t *testing.T) {
	s := openTestStore(t)

	params := map[string]any{"aggression": 0.7}
	require.NoError(t, s.RegisterAgent("p1", "noise", params, 1.5, 7))
	// Re-registration replaces rather than failing.
	require.NoError(t, s.RegisterAgent("p1", "noise", params, 2.0, 7))
}

func TestRoundStartIdempotent(t *testing.T) {
	s := openTestStore(t)
	start := time.Now().UTC()

	require.NoError(t, s.LogRoundStart("r1", 4, 240, types.Clubs, types.Hearts, start))
	require.NoError(t, s.LogRoundStart("r1", 4, 240, types.Clubs, types.Hearts, start))

	r, err := s.Round(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", r.RoundID)
}
