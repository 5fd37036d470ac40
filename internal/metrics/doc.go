// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Session state, reconnects and frame rates per leg
//   - Decoded events by kind
//   - Handle subscription counts per credential
//   - Sink publish results
//
// A nil *Metrics is valid and records nothing, so components take it as an
// optional dependency.
package metrics
