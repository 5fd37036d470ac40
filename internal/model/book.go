package model

import (
	"sort"
)

// NormalizeBook enforces the order book invariants: levels with a non-positive
// price or quantity are dropped, asks are sorted ascending and bids descending,
// and duplicate prices are merged so the ordering is strict.
func NormalizeBook(b OrderBook) OrderBook {
	b.Asks = normalizeSide(b.Asks, true)
	b.Bids = normalizeSide(b.Bids, false)
	return b
}

func normalizeSide(levels []PriceLevel, ascending bool) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	for _, l := range levels {
		if !l.Price.IsPositive() || !l.Quantity.IsPositive() {
			continue
		}
		out = append(out, l)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].Price.LessThan(out[j].Price)
		}
		return out[i].Price.GreaterThan(out[j].Price)
	})

	// Merge equal prices (wire ladders occasionally repeat a rung).
	merged := out[:0]
	for _, l := range out {
		n := len(merged)
		if n > 0 && merged[n-1].Price.Equal(l.Price) {
			merged[n-1].Quantity = merged[n-1].Quantity.Add(l.Quantity)
			continue
		}
		merged = append(merged, l)
	}
	return merged
}

// ValidBook reports whether b satisfies the ordering and positivity invariants.
func ValidBook(b OrderBook) bool {
	for i, l := range b.Asks {
		if !l.Price.IsPositive() || !l.Quantity.IsPositive() {
			return false
		}
		if i > 0 && !b.Asks[i-1].Price.LessThan(l.Price) {
			return false
		}
	}
	for i, l := range b.Bids {
		if !l.Price.IsPositive() || !l.Quantity.IsPositive() {
			return false
		}
		if i > 0 && !b.Bids[i-1].Price.GreaterThan(l.Price) {
			return false
		}
	}
	return true
}
