// Package market owns the live market streams of a process.
//
// A Handle reference-counts symbol subscriptions on top of a unified stream so
// that many consumers can share one upstream subscription. The Registry maps
// credential ids to handles and builds the per-family stream topology:
//
//	kis         KR + US sessions sharing one rate-limited approval key
//	upbit       single session
//	bithumb     single session
//	mock        simulator-backed leg with mock routing
//
// REST-only families are rejected with model.ErrUnsupported.
package market
