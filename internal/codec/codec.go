package codec

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickgao/market-stream/internal/model"
)

// Parse decodes one raw frame. It returns (nil, nil) for control and heartbeat
// frames, and an error wrapping model.ErrParse for malformed frames.
func Parse(ex model.Exchange, frame []byte) ([]model.Event, error) {
	var (
		events []model.Event
		err    error
	)

	switch ex {
	case model.ExchangeUpbit:
		events, err = parseUpbit(frame)
	case model.ExchangeBithumb:
		events, err = parseBithumb(frame)
	case model.ExchangeKIS:
		events, err = parseKIS(frame)
	default:
		return nil, fmt.Errorf("decode %q: %w", ex, model.ErrUnsupported)
	}
	if err != nil {
		return nil, err
	}

	for i := range events {
		events[i].Exchange = ex
	}
	return events, nil
}

// Decode maps a raw frame to at most one normalized event. Control frames and
// malformed frames both yield false.
func Decode(ex model.Exchange, frame []byte) (model.Event, bool) {
	events, err := Parse(ex, frame)
	if err != nil || len(events) == 0 {
		return model.Event{}, false
	}
	return events[0], true
}

// number decodes a JSON number or numeric string into a decimal. Missing,
// null, empty and unparsable values all decode to zero.
type number struct {
	decimal.Decimal
}

func (n *number) UnmarshalJSON(b []byte) error {
	n.Decimal = parseDecimal(strings.Trim(string(b), `"`))
	return nil
}

// parseDecimal is the lenient decimal parser shared by the text and JSON codecs.
func parseDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseErr(ex model.Exchange, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", ex, fmt.Sprintf(format, args...), model.ErrParse)
}
