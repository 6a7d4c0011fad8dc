package client

import (
	"io"
	"log/slog"
	"sort"
	"testing"

	"figgie-exchange/pkg/types"
)

func newDiffClient(t *testing.T) *Client {
	t.Helper()
	c := New(Config{ServerURL: "http://unused", Name: "tester"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.playerID = "self"
	return c
}

func intPtr(n int) *int { return &n }

func tradingSnap() *types.Snapshot {
	market := types.Market{}
	for _, s := range types.Suits() {
		market[s] = types.SuitMarket{}
	}
	return &types.Snapshot{
		State:    types.StateTrading,
		TimeLeft: intPtr(200),
		Pot:      200,
		Hand:     types.Hand{types.Spades: 3, types.Clubs: 3, types.Hearts: 2, types.Diamonds: 2},
		Market:   market,
		Balances: map[string]int{"self": 300, "opp1": 300, "opp2": 300, "opp3": 300},
	}
}

func TestStartFiresOnceWithOpponents(t *testing.T) {
	c := newDiffClient(t)

	var starts []StartInfo
	c.OnStart(func(info StartInfo) { starts = append(starts, info) })

	c.processSnapshot(tradingSnap())
	c.processSnapshot(tradingSnap())

	if len(starts) != 1 {
		t.Fatalf("start fired %d times, want 1", len(starts))
	}
	got := starts[0].Opponents
	sort.Strings(got)
	want := []string{"opp1", "opp2", "opp3"}
	if len(got) != len(want) {
		t.Fatalf("opponents = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("opponents[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if starts[0].Balance != 300 || starts[0].Pot != 200 {
		t.Errorf("start info = %+v", starts[0])
	}
}

func TestTickEveryPoll(t *testing.T) {
	c := newDiffClient(t)

	var ticks []int
	c.OnTick(func(n int) { ticks = append(ticks, n) })

	s1 := tradingSnap()
	s2 := tradingSnap()
	s2.TimeLeft = intPtr(150)
	c.processSnapshot(s1)
	c.processSnapshot(s2)

	if len(ticks) != 2 || ticks[0] != 200 || ticks[1] != 150 {
		t.Errorf("ticks = %v", ticks)
	}
}

func TestBidEvents(t *testing.T) {
	c := newDiffClient(t)

	var bids []QuoteEvent
	var cancels []CancelEvent
	c.OnBid(func(e QuoteEvent) { bids = append(bids, e) })
	c.OnCancel(func(e CancelEvent) { cancels = append(cancels, e) })

	c.processSnapshot(tradingSnap())

	// New bid from an opponent.
	s := tradingSnap()
	s.Market[types.Spades] = types.SuitMarket{HighestBid: &types.Quote{PlayerID: "opp1", Price: 5}}
	c.processSnapshot(s)
	if len(bids) != 1 || bids[0].Price != 5 || bids[0].Suit != types.Spades {
		t.Fatalf("bids = %+v", bids)
	}

	// Improved bid.
	s = tradingSnap()
	s.Market[types.Spades] = types.SuitMarket{HighestBid: &types.Quote{PlayerID: "opp2", Price: 8}}
	c.processSnapshot(s)
	if len(bids) != 2 || bids[1].Price != 8 || bids[1].PlayerID != "opp2" {
		t.Fatalf("bids = %+v", bids)
	}
	if len(cancels) != 0 {
		t.Fatalf("improvement should not cancel: %+v", cancels)
	}

	// Lowered bid: cancel carries the old quote and its lower replacement.
	s = tradingSnap()
	s.Market[types.Spades] = types.SuitMarket{HighestBid: &types.Quote{PlayerID: "opp2", Price: 4}}
	c.processSnapshot(s)
	if len(cancels) != 1 || cancels[0].Side != types.Buy || cancels[0].Suit != types.Spades {
		t.Fatalf("cancels = %+v", cancels)
	}
	if cancels[0].OldPlayerID != "opp2" || cancels[0].OldPrice != 8 ||
		cancels[0].NewPlayerID != "opp2" || cancels[0].NewPrice != 4 {
		t.Errorf("cancel payload = %+v", cancels[0])
	}
	if len(bids) != 2 {
		t.Fatalf("lowered bid should not fire bid event: %+v", bids)
	}

	// Removed bid: no replacement, New fields stay zero.
	c.processSnapshot(tradingSnap())
	if len(cancels) != 2 {
		t.Fatalf("cancels = %+v", cancels)
	}
	if cancels[1].OldPrice != 4 || cancels[1].NewPlayerID != "" || cancels[1].NewPrice != 0 {
		t.Errorf("cancel payload = %+v", cancels[1])
	}
}

func TestEqualPriceOwnerChangeIsCancelOnly(t *testing.T) {
	c := newDiffClient(t)

	var bids []QuoteEvent
	var cancels []CancelEvent
	c.OnBid(func(e QuoteEvent) { bids = append(bids, e) })
	c.OnCancel(func(e CancelEvent) { cancels = append(cancels, e) })

	s := tradingSnap()
	s.Market[types.Hearts] = types.SuitMarket{HighestBid: &types.Quote{PlayerID: "opp1", Price: 6}}
	c.processSnapshot(s)

	// Same price, different owner: the old order was pulled and replaced.
	// That is one cancel with the replacement in the New fields, never a
	// bid event — the price did not improve.
	s = tradingSnap()
	s.Market[types.Hearts] = types.SuitMarket{HighestBid: &types.Quote{PlayerID: "opp2", Price: 6}}
	c.processSnapshot(s)

	if len(cancels) != 1 || cancels[0].Suit != types.Hearts || cancels[0].Side != types.Buy {
		t.Fatalf("cancels = %+v", cancels)
	}
	ev := cancels[0]
	if ev.OldPlayerID != "opp1" || ev.OldPrice != 6 || ev.NewPlayerID != "opp2" || ev.NewPrice != 6 {
		t.Errorf("cancel payload = %+v", ev)
	}
	if len(bids) != 1 {
		t.Errorf("owner change at equal price fired bid events: %+v", bids[1:])
	}
}

func TestOwnQuotesAreSilent(t *testing.T) {
	c := newDiffClient(t)

	var bids []QuoteEvent
	var offers []QuoteEvent
	c.OnBid(func(e QuoteEvent) { bids = append(bids, e) })
	c.OnOffer(func(e QuoteEvent) { offers = append(offers, e) })

	s := tradingSnap()
	s.Market[types.Clubs] = types.SuitMarket{
		HighestBid: &types.Quote{PlayerID: "self", Price: 3},
		LowestAsk:  &types.Quote{PlayerID: "self", Price: 9},
	}
	c.processSnapshot(s)

	if len(bids) != 0 || len(offers) != 0 {
		t.Errorf("own quotes fired events: bids=%v offers=%v", bids, offers)
	}
}

func TestOfferEventsAreSymmetric(t *testing.T) {
	c := newDiffClient(t)

	var offers []QuoteEvent
	var cancels []CancelEvent
	c.OnOffer(func(e QuoteEvent) { offers = append(offers, e) })
	c.OnCancel(func(e CancelEvent) { cancels = append(cancels, e) })

	s := tradingSnap()
	s.Market[types.Diamonds] = types.SuitMarket{LowestAsk: &types.Quote{PlayerID: "opp1", Price: 10}}
	c.processSnapshot(s)

	// An ask improves by going DOWN.
	s = tradingSnap()
	s.Market[types.Diamonds] = types.SuitMarket{LowestAsk: &types.Quote{PlayerID: "opp2", Price: 7}}
	c.processSnapshot(s)
	if len(offers) != 2 || offers[1].Price != 7 {
		t.Fatalf("offers = %+v", offers)
	}
	if len(cancels) != 0 {
		t.Fatalf("cancels = %+v", cancels)
	}

	// A raised ask means the old one was pulled.
	s = tradingSnap()
	s.Market[types.Diamonds] = types.SuitMarket{LowestAsk: &types.Quote{PlayerID: "opp2", Price: 12}}
	c.processSnapshot(s)
	if len(cancels) != 1 || cancels[0].Side != types.Sell {
		t.Errorf("cancels = %+v", cancels)
	}
	if cancels[0].OldPrice != 7 || cancels[0].NewPrice != 12 {
		t.Errorf("cancel payload = %+v", cancels[0])
	}
	if len(offers) != 2 {
		t.Errorf("raised ask should not fire offer event: %+v", offers)
	}
}

func TestTradesAdvanceCursorAndInvalidateMarket(t *testing.T) {
	c := newDiffClient(t)

	var trades []types.Trade
	var cancels []CancelEvent
	c.OnTrade(func(tr types.Trade) { trades = append(trades, tr) })
	c.OnCancel(func(e CancelEvent) { cancels = append(cancels, e) })

	s := tradingSnap()
	s.Market[types.Spades] = types.SuitMarket{HighestBid: &types.Quote{PlayerID: "opp1", Price: 5}}
	c.processSnapshot(s)

	// A trade swept the books: the vanished bid is not a cancel.
	s = tradingSnap()
	s.Trades = []types.Trade{{Buyer: "opp2", Seller: "opp1", Price: 5, Suit: types.Spades}}
	c.processSnapshot(s)

	if len(trades) != 1 || trades[0].Price != 5 {
		t.Fatalf("trades = %+v", trades)
	}
	if len(cancels) != 0 {
		t.Errorf("swept quote reported as cancel: %+v", cancels)
	}

	// Same trade log again: cursor already past it, no duplicate event.
	s = tradingSnap()
	s.Trades = []types.Trade{{Buyer: "opp2", Seller: "opp1", Price: 5, Suit: types.Spades}}
	c.processSnapshot(s)
	if len(trades) != 1 {
		t.Errorf("duplicate trade events: %+v", trades)
	}

	// A second trade appended fires exactly one more event.
	s = tradingSnap()
	s.Trades = []types.Trade{
		{Buyer: "opp2", Seller: "opp1", Price: 5, Suit: types.Spades},
		{Buyer: "self", Seller: "opp3", Price: 8, Suit: types.Hearts},
	}
	c.processSnapshot(s)
	if len(trades) != 2 || trades[1].Suit != types.Hearts {
		t.Errorf("trades = %+v", trades)
	}
}

func TestCompletionFiresOnceWithResults(t *testing.T) {
	c := newDiffClient(t)

	var results []types.Results
	c.OnComplete(func(r types.Results) { results = append(results, r) })

	c.processSnapshot(tradingSnap())

	done := tradingSnap()
	done.State = types.StateCompleted
	done.TimeLeft = nil
	done.Results = &types.Results{GoalSuit: types.Clubs, ShareEach: 120, Winners: []string{"opp1"}}
	c.processSnapshot(done)
	c.processSnapshot(done)

	if len(results) != 1 {
		t.Fatalf("completion fired %d times, want 1", len(results))
	}
	if results[0].GoalSuit != types.Clubs || results[0].ShareEach != 120 {
		t.Errorf("results = %+v", results[0])
	}
}
