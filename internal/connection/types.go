package connection

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrSessionClosed   = errors.New("session closed")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://api.upbit.com/websocket/v1)
	Header           http.Header   // Extra handshake headers
	HandshakeTimeout time.Duration // Dial handshake deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       100,
	}
}

// Backoff policies.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// TokenFunc supplies the approval key placed in subscribe frames. It is
// called once per connection attempt.
type TokenFunc func(ctx context.Context) (string, error)

// SessionConfig configures a Session.
type SessionConfig struct {
	Name     string         // Leg name used in logs, metrics and Event.Leg
	Exchange model.Exchange // Codec family

	ReconnectDelay    time.Duration // Wait between attempts (base delay for exponential)
	MaxRetries        int           // Consecutive failed attempts before terminating
	Backoff           string        // BackoffFixed or BackoffExponential
	BackoffMax        time.Duration // Ceiling for exponential backoff
	HeartbeatInterval time.Duration // Transport ping period
	PongTimeout       time.Duration // 0 disables the liveness check
	MinSpacing        time.Duration // Minimum gap between subscribe/unsubscribe frames
	BufferSize        int           // Outbound event channel capacity
}

// DefaultSessionConfig returns the default reconnect and heartbeat policy.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ReconnectDelay:    5 * time.Second,
		MaxRetries:        5,
		Backoff:           BackoffFixed,
		BackoffMax:        60 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		BufferSize:        100,
	}
}

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SessionStats provides statistics about a session.
type SessionStats struct {
	Name          string
	Exchange      model.Exchange
	State         string
	Attempts      int   // Consecutive failures since the last successful connect
	Reconnects    int64 // Successful connects after the first
	Frames        int64
	Dropped       int64
	Events        int64
	Subscriptions int
	ConnectedAt   time.Time
}

type commandOp int

const (
	opSubscribe commandOp = iota
	opUnsubscribe
)

// command is a subscription change handed to the session loop.
type command struct {
	op      commandOp
	symbols []string
	reply   chan error
}
