// Package connection implements the exchange socket session.
//
// A Session owns one WebSocket connection to one exchange endpoint:
//   - Dials through a Dialer and replays the active subscriptions on connect
//   - Decodes frames with the codec and emits normalized events on a bounded channel
//   - Sends a transport ping on every heartbeat tick
//   - Reconnects after a fixed delay (or exponential backoff) up to MaxRetries
//   - Serializes Subscribe and Unsubscribe with frame processing in one select loop
package connection
