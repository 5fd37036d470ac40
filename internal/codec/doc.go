// Package codec translates exchange wire frames to normalized events and
// subscription state to exchange wire frames.
//
// Every function in this package is pure: no I/O, no clocks, no shared state.
// Dispatch is a closed switch on model.Exchange, one decoder per exchange:
//   - upbit.go:   JSON frames discriminated by "type"
//   - bithumb.go: JSON frames with a nested "content" object of string numerics
//   - kis.go:     "header|tr_code|count|payload" text frames, payload split on '^'
//
// Malformed frames are reported as ErrParse from Parse and never escalate
// further; Decode swallows them entirely.
package codec
