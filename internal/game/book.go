// book.go — per-suit price-priority order book.
//
// Each suit has an independent book with a bid side (descending price) and
// an ask side (ascending price); orders at equal price keep insertion order
// (FIFO). Books are tiny — a handful of resting orders at most, and every
// executed trade empties all of them — so sides are plain sorted slices.
//
// Book carries no lock of its own: the Game's mutex serializes all access.
package game

import (
	"figgie-exchange/pkg/types"
)

// Order is a resting limit order for one card.
type Order struct {
	ID       string
	PlayerID string
	Side     types.Side
	Suit     types.Suit
	Price    int
}

// Book holds the resting orders for a single suit.
type Book struct {
	bids []*Order // descending price, FIFO within a price
	asks []*Order // ascending price, FIFO within a price
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{}
}

// BestBid returns the highest-priced bid, or nil if the side is empty.
func (b *Book) BestBid() *Order {
	if len(b.bids) == 0 {
		return nil
	}
	return b.bids[0]
}

// BestAsk returns the lowest-priced ask, or nil if the side is empty.
func (b *Book) BestAsk() *Order {
	if len(b.asks) == 0 {
		return nil
	}
	return b.asks[0]
}

// Insert places o at its price-sorted position on the matching side.
// A new order goes after existing orders at the same price.
func (b *Book) Insert(o *Order) {
	if o.Side == types.Buy {
		idx := len(b.bids)
		for i, existing := range b.bids {
			if existing.Price < o.Price {
				idx = i
				break
			}
		}
		b.bids = append(b.bids, nil)
		copy(b.bids[idx+1:], b.bids[idx:])
		b.bids[idx] = o
		return
	}

	idx := len(b.asks)
	for i, existing := range b.asks {
		if existing.Price > o.Price {
			idx = i
			break
		}
	}
	b.asks = append(b.asks, nil)
	copy(b.asks[idx+1:], b.asks[idx:])
	b.asks[idx] = o
}

// Remove deletes the order with the given id from either side.
// It reports whether an order was removed.
func (b *Book) Remove(orderID string) bool {
	for i, o := range b.bids {
		if o.ID == orderID {
			b.bids = append(b.bids[:i], b.bids[i+1:]...)
			return true
		}
	}
	for i, o := range b.asks {
		if o.ID == orderID {
			b.asks = append(b.asks[:i], b.asks[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every resting order on both sides.
func (b *Book) Clear() {
	b.bids = b.bids[:0]
	b.asks = b.asks[:0]
}

// Side returns the resting orders for one side, best first. The returned
// slice is the book's own backing storage; callers must not mutate it.
func (b *Book) Side(side types.Side) []*Order {
	if side == types.Buy {
		return b.bids
	}
	return b.asks
}

// HasOrder reports whether the player already has a live order on the given
// side at the given price. Used for duplicate suppression.
func (b *Book) HasOrder(playerID string, side types.Side, price int) bool {
	for _, o := range b.Side(side) {
		if o.PlayerID == playerID && o.Price == price {
			return true
		}
	}
	return false
}

// Len returns the number of resting orders on both sides.
func (b *Book) Len() int {
	return len(b.bids) + len(b.asks)
}
