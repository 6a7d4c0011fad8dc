package client

import (
	"figgie-exchange/pkg/types"
)

// processSnapshot diffs the new snapshot against the previous one and
// dispatches callbacks in a fixed order: tick, round start, new trades,
// per-suit quote changes, round completion.
//
// Quote diffing has one subtlety: a trade clears every book, so when new
// trades are present the previous market is invalid as a baseline — every
// quote in the new snapshot is reported as fresh and no cancel events are
// emitted for the swept ones (the trade event already covers them).
func (c *Client) processSnapshot(snap *types.Snapshot) {
	c.mu.Lock()
	prev := c.prev
	cursor := c.cursor
	self := c.playerID
	c.prev = snap
	if len(snap.Trades) >= cursor {
		c.cursor = len(snap.Trades)
	}
	c.mu.Unlock()

	if c.onTick != nil && snap.TimeLeft != nil {
		c.onTick(*snap.TimeLeft)
	}

	wasTrading := prev != nil && prev.State == types.StateTrading
	if snap.State == types.StateTrading && !wasTrading && c.onStart != nil {
		opponents := make([]string, 0, len(snap.Balances)-1)
		for pid := range snap.Balances {
			if pid != self {
				opponents = append(opponents, pid)
			}
		}
		c.onStart(StartInfo{
			Hand:      snap.Hand.Clone(),
			Balance:   snap.Balances[self],
			Pot:       snap.Pot,
			Opponents: opponents,
		})
	}

	// New trades since the cursor. The trade log is append-only, so the
	// cursor only ever moves forward.
	newTrades := cursor < len(snap.Trades)
	if newTrades {
		for _, t := range snap.Trades[cursor:] {
			if c.onTrade != nil {
				c.onTrade(t)
			}
		}
	}

	prevMarket := types.Market{}
	if prev != nil && !newTrades {
		prevMarket = prev.Market
	}
	c.diffMarket(prevMarket, snap.Market, self)

	if snap.State == types.StateCompleted && (prev == nil || prev.State != types.StateCompleted) {
		if c.onComplete != nil && snap.Results != nil {
			c.onComplete(*snap.Results)
		}
	}
}

// diffMarket emits quote and cancel events for every suit. For each side
// of each suit, bid/offer and cancel are mutually exclusive:
//
//   - A bid event fires when the top bid is new or strictly improved, unless
//     it is the player's own order.
//   - A cancel event fires when the previous top bid vanished, dropped, or
//     was replaced at the same price by a different owner (the old order
//     must have been cancelled for the new one to sit at the top). The
//     replacement quote, if any, travels in the event's New fields; it is
//     never reported as a separate bid.
//   - Offers are symmetric with the comparison reversed.
func (c *Client) diffMarket(prev, cur types.Market, self string) {
	for _, s := range types.Suits() {
		pb, cb := prev[s].HighestBid, cur[s].HighestBid
		gone := pb != nil && (cb == nil || cb.Price < pb.Price ||
			(cb.Price == pb.Price && cb.PlayerID != pb.PlayerID))
		switch {
		case gone:
			if c.onCancel != nil {
				ev := CancelEvent{Suit: s, Side: types.Buy, OldPlayerID: pb.PlayerID, OldPrice: pb.Price}
				if cb != nil {
					ev.NewPlayerID = cb.PlayerID
					ev.NewPrice = cb.Price
				}
				c.onCancel(ev)
			}
		case cb != nil && (pb == nil || cb.Price > pb.Price):
			if cb.PlayerID != self && c.onBid != nil {
				c.onBid(QuoteEvent{Suit: s, PlayerID: cb.PlayerID, Price: cb.Price})
			}
		}

		pa, ca := prev[s].LowestAsk, cur[s].LowestAsk
		gone = pa != nil && (ca == nil || ca.Price > pa.Price ||
			(ca.Price == pa.Price && ca.PlayerID != pa.PlayerID))
		switch {
		case gone:
			if c.onCancel != nil {
				ev := CancelEvent{Suit: s, Side: types.Sell, OldPlayerID: pa.PlayerID, OldPrice: pa.Price}
				if ca != nil {
					ev.NewPlayerID = ca.PlayerID
					ev.NewPrice = ca.Price
				}
				c.onCancel(ev)
			}
		case ca != nil && (pa == nil || ca.Price < pa.Price):
			if ca.PlayerID != self && c.onOffer != nil {
				c.onOffer(QuoteEvent{Suit: s, PlayerID: ca.PlayerID, Price: ca.Price})
			}
		}
	}
}
