// Package stream composes named legs behind one pull interface.
//
// A Unified stream owns zero or more legs (e.g. "KR" and "US" sessions of
// one brokerage, or a single session for a crypto exchange) and merges
// their events into one channel. Subscription calls are routed to a leg by
// symbol shape. Ordering is preserved within a leg, never across legs.
package stream
