package zonestatus

import (
	"fmt"
	"math"
	"strconv"

	"github.com/haukened/knot-exporter/internal/knot/domain"
)

// Decoder selects how the DATA text of a zone-status field is turned into a
// number.
type Decoder uint8

const (
	Counter Decoder = iota
	Duration
	Boolean
)

func (d Decoder) String() string {
	switch d {
	case Counter:
		return "counter"
	case Duration:
		return "duration"
	case Boolean:
		return "boolean"
	default:
		return fmt.Sprintf("decoder(%d)", uint8(d))
	}
}

// Decode converts text with the selected decoder. Text the decoder does not
// accept yields domain.UnknownValue; booleans export as 1 and 0.
func (d Decoder) Decode(text string) int64 {
	switch d {
	case Counter:
		if v, ok := DecodeCounter(text); ok {
			return v
		}
	case Duration:
		if v, ok := DecodeDuration(text); ok && v <= math.MaxInt64 {
			return int64(v)
		}
	case Boolean:
		if v, ok := DecodeBoolean(text); ok {
			if v {
				return 1
			}
			return 0
		}
	}
	return domain.UnknownValue
}

var booleans = map[string]bool{
	"yes":      true,
	"freezing": true,
	"open":     true,
	"no":       false,
	"thawing":  false,
	"none":     false,
}

// DecodeBoolean maps the daemon's flag words onto a boolean. ok is false for
// any other text.
func DecodeBoolean(text string) (value, ok bool) {
	value, ok = booleans[text]
	return value, ok
}

// DecodeCounter parses a base 10 integer such as a zone serial.
func DecodeCounter(text string) (int64, bool) {
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Event states without a time attached.
var timeless = map[string]struct{}{
	"running":       {},
	"not scheduled": {},
	"frozen":        {},
	"pending":       {},
}

var unitSeconds = map[byte]uint64{
	'Y': 365 * 86400,
	'M': 30 * 86400,
	'D': 86400,
	'h': 3600,
	'm': 60,
	's': 1,
}

// DecodeDuration parses the relative event time the daemon prints for
// scheduled zone events, e.g. "+6D23h37m28s", into seconds. "0" is an event
// due now. The text must match "+" followed by one or more number/unit
// pairs exactly; units may repeat and appear in any order, values are summed.
func DecodeDuration(text string) (uint64, bool) {
	if text == "0" {
		return 0, true
	}
	if _, ok := timeless[text]; ok {
		return 0, false
	}
	if len(text) < 3 || text[0] != '+' {
		return 0, false
	}

	var total uint64
	i := 1
	for i < len(text) {
		start := i
		for i < len(text) && text[i] >= '0' && text[i] <= '9' {
			i++
		}
		if i == start || i == len(text) {
			return 0, false
		}
		n, err := strconv.ParseUint(text[start:i], 10, 64)
		if err != nil {
			return 0, false
		}
		unit, ok := unitSeconds[text[i]]
		if !ok {
			return 0, false
		}
		if n > math.MaxUint64/unit {
			return 0, false
		}
		part := n * unit
		if total > math.MaxUint64-part {
			return 0, false
		}
		total += part
		i++
	}
	return total, true
}
