package oddsfeed

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// ParseOdds converts fractional ("5/1", "5-1", "9/2", "EVN") or decimal
// ("6.0") odds to decimal odds. The result is always greater than 1.
func ParseOdds(raw string) (float64, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "":
		return 0, fmt.Errorf("%w: empty odds", ErrMalformedOddsData)
	case "EVN", "EVS", "EVEN", "EVENS":
		return 2.0, nil
	}

	var odds decimal.Decimal
	if num, den, ok := strings.Cut(strings.ReplaceAll(s, "-", "/"), "/"); ok {
		n, err := decimal.NewFromString(strings.TrimSpace(num))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedOddsData, raw)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(den))
		if err != nil || !d.IsPositive() {
			return 0, fmt.Errorf("%w: %q", ErrMalformedOddsData, raw)
		}
		odds = n.DivRound(d, 6).Add(one)
	} else {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedOddsData, raw)
		}
		odds = d
	}

	if odds.LessThanOrEqual(one) {
		return 0, fmt.Errorf("%w: %q must exceed 1.0 decimal", ErrMalformedOddsData, raw)
	}
	return odds.Round(4).InexactFloat64(), nil
}

// ImpliedProbability returns 1/decimal for raw odds
func ImpliedProbability(raw string) (float64, error) {
	odds, err := ParseOdds(raw)
	if err != nil {
		return 0, err
	}
	return 1 / odds, nil
}
