package codec

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/rickgao/market-stream/internal/model"
)

// Default channel sets per exchange family.
var (
	UpbitChannels       = []string{"ticker", "orderbook", "trade"}
	BithumbChannels     = []string{"ticker", "transaction"}
	KISDomesticChannels = []string{"H0STCNT0", "H0STASP0"}
	KISOverseasChannels = []string{"HDFSCNT0", "HDFSASP0"}
)

// Subscription is one exchange-level subscription: a channel (or transaction
// code) and the key it applies to.
type Subscription struct {
	Channel string
	Key     string
}

// Wire encodes subscribe and unsubscribe frames for one session.
//
// Upbit and Bithumb replace the whole subscription set with every request, so
// their frames always carry the full active list. KIS takes one frame per
// (transaction code, key) pair.
type Wire struct {
	Exchange  model.Exchange
	Token     string   // KIS approval key
	Ticket    string   // Upbit ticket
	Channels  []string // Defaults per exchange when empty
	KeyPrefix string   // Prepended to KIS keys, e.g. "DNAS" for NASDAQ
}

// NewWire returns a Wire with the default channels and a fresh ticket.
func NewWire(ex model.Exchange) Wire {
	w := Wire{Exchange: ex, Ticket: uuid.NewString()}
	switch ex {
	case model.ExchangeUpbit:
		w.Channels = UpbitChannels
	case model.ExchangeBithumb:
		w.Channels = BithumbChannels
	case model.ExchangeKIS:
		w.Channels = KISDomesticChannels
	}
	return w
}

// Expand lists the exchange-level subscriptions a symbol maps to.
func (w Wire) Expand(symbol string) []Subscription {
	subs := make([]Subscription, 0, len(w.Channels))
	for _, ch := range w.Channels {
		subs = append(subs, Subscription{Channel: ch, Key: w.KeyPrefix + symbol})
	}
	return subs
}

// SubscribeFrames returns the frames that add symbols to a session whose
// active set (after the addition) is active. Replaying after a reconnect is
// SubscribeFrames(active, active).
func (w Wire) SubscribeFrames(active, added []string) ([][]byte, error) {
	switch w.Exchange {
	case model.ExchangeUpbit:
		return w.upbitFrames(active)
	case model.ExchangeBithumb:
		return w.bithumbFrames(active)
	case model.ExchangeKIS:
		return w.kisFrames(added, "1")
	default:
		return nil, fmt.Errorf("encode %q: %w", w.Exchange, model.ErrUnsupported)
	}
}

// FullState reports whether every request replaces the whole subscription
// set. Such exchanges have no frame for an empty set.
func (w Wire) FullState() bool {
	return w.Exchange == model.ExchangeUpbit || w.Exchange == model.ExchangeBithumb
}

// UnsubscribeFrames returns the frames that remove symbols, leaving remaining
// active. For full-state exchanges an empty remaining set yields no frames;
// the session drops the connection instead.
func (w Wire) UnsubscribeFrames(remaining, removed []string) ([][]byte, error) {
	switch w.Exchange {
	case model.ExchangeUpbit:
		return w.upbitFrames(remaining)
	case model.ExchangeBithumb:
		return w.bithumbFrames(remaining)
	case model.ExchangeKIS:
		return w.kisFrames(removed, "2")
	default:
		return nil, fmt.Errorf("encode %q: %w", w.Exchange, model.ErrUnsupported)
	}
}

func (w Wire) upbitFrames(symbols []string) ([][]byte, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	codes := make([]string, len(symbols))
	for i, s := range symbols {
		codes[i] = w.KeyPrefix + s
	}

	req := make([]map[string]any, 0, len(w.Channels)+2)
	req = append(req, map[string]any{"ticket": w.Ticket})
	for _, ch := range w.Channels {
		req = append(req, map[string]any{"type": ch, "codes": codes, "isOnlyRealtime": true})
	}
	req = append(req, map[string]any{"format": "DEFAULT"})

	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode upbit: %w", err)
	}
	return [][]byte{b}, nil
}

type bithumbSubscribe struct {
	Type      string   `json:"type"`
	Symbols   []string `json:"symbols"`
	TickTypes []string `json:"tickTypes,omitempty"`
}

func (w Wire) bithumbFrames(symbols []string) ([][]byte, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = w.KeyPrefix + s
	}

	frames := make([][]byte, 0, len(w.Channels))
	for _, ch := range w.Channels {
		req := bithumbSubscribe{Type: ch, Symbols: keys}
		if ch == "ticker" {
			req.TickTypes = []string{"24H"}
		}
		b, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("encode bithumb: %w", err)
		}
		frames = append(frames, b)
	}
	return frames, nil
}

type kisRequest struct {
	Header kisRequestHeader `json:"header"`
	Body   kisRequestBody   `json:"body"`
}

type kisRequestHeader struct {
	Token  string `json:"token"`
	TrCd   string `json:"tr_cd"`
	TrType string `json:"tr_type"` // "1" subscribe, "2" unsubscribe
}

type kisRequestBody struct {
	TrKey string `json:"tr_key"`
}

func (w Wire) kisFrames(symbols []string, trType string) ([][]byte, error) {
	frames := make([][]byte, 0, len(symbols)*len(w.Channels))
	for _, s := range symbols {
		for _, sub := range w.Expand(s) {
			b, err := json.Marshal(kisRequest{
				Header: kisRequestHeader{Token: w.Token, TrCd: sub.Channel, TrType: trType},
				Body:   kisRequestBody{TrKey: sub.Key},
			})
			if err != nil {
				return nil, fmt.Errorf("encode kis: %w", err)
			}
			frames = append(frames, b)
		}
	}
	return frames, nil
}
