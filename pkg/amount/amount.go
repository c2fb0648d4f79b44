// Package amount parses wager input such as "1500", "2.5k", "10%", "half" or
// "all" against a player's balance.
package amount

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	appErr "duel-service/pkg/errors"
)

var suffixes = []struct {
	letter byte
	mult   int64
}{
	{'k', 1_000},
	{'m', 1_000_000},
	{'b', 1_000_000_000},
	{'t', 1_000_000_000_000},
	{'q', 1_000_000_000_000_000},
}

// Parse resolves input to a whole amount. It fails with ErrInvalidAmount for
// malformed input, ErrAmountTooSmall below minimum and ErrInsufficientFunds above
// balance. A minimum below one is treated as one.
func Parse(input string, balance, minimum int64) (int64, error) {
	value, err := resolve(input, balance)
	if err != nil {
		return 0, err
	}
	if minimum < 1 {
		minimum = 1
	}
	if value < minimum {
		return 0, fmt.Errorf("%w: %d < %d", appErr.ErrAmountTooSmall, value, minimum)
	}
	if value > balance {
		return 0, fmt.Errorf("%w: %d > %d", appErr.ErrInsufficientFunds, value, balance)
	}
	return value, nil
}

func resolve(input string, balance int64) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.NewReplacer(",", "", "_", "", " ", "").Replace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", appErr.ErrInvalidAmount)
	}

	switch s {
	case "all", "max":
		return balance, nil
	case "half":
		return balance / 2, nil
	}

	if pct, ok := strings.CutSuffix(s, "%"); ok {
		r, ok := new(big.Rat).SetString(pct)
		if !ok || r.Sign() <= 0 || r.Cmp(big.NewRat(100, 1)) > 0 {
			return 0, fmt.Errorf("%w: %q", appErr.ErrInvalidAmount, input)
		}
		r.Mul(r, new(big.Rat).SetInt64(balance))
		r.Quo(r, big.NewRat(100, 1))
		return floor(r, input)
	}

	last := s[len(s)-1]
	for _, sfx := range suffixes {
		if last != sfx.letter {
			continue
		}
		r, ok := new(big.Rat).SetString(s[:len(s)-1])
		if !ok || r.Sign() <= 0 {
			return 0, fmt.Errorf("%w: %q", appErr.ErrInvalidAmount, input)
		}
		r.Mul(r, new(big.Rat).SetInt64(sfx.mult))
		return floor(r, input)
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %q", appErr.ErrInvalidAmount, input)
	}
	return v, nil
}

func floor(r *big.Rat, input string) (int64, error) {
	q := new(big.Int).Quo(r.Num(), r.Denom())
	if !q.IsInt64() {
		return 0, fmt.Errorf("%w: %q out of range", appErr.ErrInvalidAmount, input)
	}
	return q.Int64(), nil
}

// Format renders an amount with the largest suffix that keeps one decimal,
// e.g. 1500 -> "1.5k".
func Format(v int64) string {
	if v < 0 {
		return "-" + Format(-v)
	}
	for i := len(suffixes) - 1; i >= 0; i-- {
		sfx := suffixes[i]
		if v < sfx.mult {
			continue
		}
		whole := float64(v) / float64(sfx.mult)
		tenths := math.Floor(whole*10) / 10
		return strconv.FormatFloat(tenths, 'f', -1, 64) + string(sfx.letter)
	}
	return strconv.FormatInt(v, 10)
}
