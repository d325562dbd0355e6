package scheduler

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DayMs is the length of a day in milliseconds.
const DayMs int64 = 24 * 60 * 60 * 1000

var unitScale = map[string]float64{
	"d": float64(DayMs),
	"h": 3600000,
	"m": 60000,
	"s": 1000,
	"":  1,
}

// One token: optional whitespace, number, optional whitespace, optional unit.
var reToken = regexp.MustCompile(`^\s*(\.\d+|\d+\.\d*|\d+)\s*([dhms]?)`)

// ParseMs converts a duration string such as "1d 2h 3m4s5" into milliseconds.
//
// Tokens are summed; a token without a unit is raw milliseconds. Anything
// left over that is not whitespace is a *FormatError. The fractional part of
// the total is rounded to the nearest millisecond. A total that does not fit
// in an int64 is a *FormatError for the whole input.
func ParseMs(s string) (int64, error) {
	rest := s
	total := 0.0
	for {
		m := reToken.FindStringSubmatch(rest)
		if m == nil {
			break
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, &FormatError{Input: rest}
		}
		total += v * unitScale[m[2]]
		rest = rest[len(m[0]):]
	}
	if strings.TrimSpace(rest) != "" {
		return 0, &FormatError{Input: rest}
	}
	total = math.Round(total)
	if math.IsInf(total, 0) || math.IsNaN(total) || total >= math.MaxInt64 {
		return 0, &FormatError{Input: s}
	}
	return int64(total), nil
}
