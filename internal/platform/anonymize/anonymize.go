package anonymize

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Redacted replaces free-text identifiers in anonymized views.
const Redacted = "<REDACTED>"

// maxShiftDays bounds the keyed time shift to roughly six months in
// either direction.
const maxShiftDays = 182

// ErrNotImplemented is returned when a value kind has no anonymization
// rule. It must surface as a server error, never as silently clear data.
var ErrNotImplemented = errors.New("anonymization not implemented for value type")

// Anonymizer derives deterministic, per-case transformations from a
// site-wide secret. Records sharing a case key receive the same day
// shift, so intra-case intervals are preserved exactly.
type Anonymizer struct {
	secret []byte
}

func New(secret string) *Anonymizer {
	return &Anonymizer{secret: []byte(secret)}
}

// Shift returns the keyed day shift in [-182, 182].
func (a *Anonymizer) Shift(key string) int {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(key))
	sum := mac.Sum(nil)
	n := binary.BigEndian.Uint64(sum[:8])
	return int(n%(2*maxShiftDays+1)) - maxShiftDays
}

// Date shifts a date or date-time by the key's day shift.
func (a *Anonymizer) Date(key string, t time.Time) time.Time {
	return t.AddDate(0, 0, a.Shift(key))
}

// DatePtr shifts an optional date, passing nil through.
func (a *Anonymizer) DatePtr(key string, t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	shifted := a.Date(key, *t)
	return &shifted
}

// Period shifts both bounds of a closed-open date range by the same
// keyed shift.
func (a *Anonymizer) Period(key string, start time.Time, end *time.Time) (time.Time, *time.Time) {
	return a.Date(key, start), a.DatePtr(key, end)
}

// YearOnly truncates a personal date (e.g. date of birth) to its year.
func YearOnly(t time.Time) int {
	return t.Year()
}

// Value applies the default rule for a dynamically-typed value. Models
// normally call the typed helpers; this is the fallback used by generic
// serializers, and it refuses kinds with no rule.
func (a *Anonymizer) Value(key string, v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case time.Time:
		return a.Date(key, x), nil
	case *time.Time:
		return a.DatePtr(key, x), nil
	case string:
		return Redacted, nil
	case int:
		return BinAge(x), nil
	case Age:
		return BinAge(int(x)), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotImplemented, v)
	}
}

// Age is the nominal type for ages in years; plain ints widen to it
// before binning.
type Age int

// AgeBin is a half-decade age band.
type AgeBin string

var ageBins = []AgeBin{
	"<20", "20-24", "25-29", "30-34", "35-39", "40-44", "45-49",
	"50-54", "55-59", "60-64", "65-69", "70-74", "75-79", "80-84",
	"85-89", "90+",
}

// BinAge maps an age in years onto the fixed bin enumeration. The
// mapping is monotone in the declared bin order.
func BinAge(years int) AgeBin {
	if years < 20 {
		return ageBins[0]
	}
	if years >= 90 {
		return ageBins[len(ageBins)-1]
	}
	return ageBins[1+(years-20)/5]
}

// BinIndex returns the position of a bin in the enumeration order, or -1.
func BinIndex(b AgeBin) int {
	for i, bin := range ageBins {
		if bin == b {
			return i
		}
	}
	return -1
}
