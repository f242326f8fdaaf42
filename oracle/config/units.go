package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

var unitDecimals = map[string]int{
	"wei":    0,
	"kwei":   3,
	"mwei":   6,
	"gwei":   9,
	"szabo":  12,
	"finney": 15,
	"ether":  18,
}

// Amount is a value in a named ether denomination, e.g. {3.12, "gwei"}.
type Amount struct {
	Value float64 `toml:"value"`
	Unit  string  `toml:"unit"`
}

// Wei converts the amount to wei. Fractions finer than one wei are rejected.
func (a Amount) Wei() (*big.Int, error) {
	decimals, ok := unitDecimals[strings.ToLower(a.Unit)]
	if !ok {
		return nil, fmt.Errorf("unknown unit %q", a.Unit)
	}
	if a.Value < 0 {
		return nil, fmt.Errorf("negative amount %v", a.Value)
	}

	return parseUnits(strconv.FormatFloat(a.Value, 'f', -1, 64), decimals)
}

func parseUnits(s string, decimals int) (*big.Int, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > decimals {
		if strings.TrimRight(frac[decimals:], "0") != "" {
			return nil, fmt.Errorf("%s has more than %d decimals", s, decimals)
		}
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %s", s)
	}

	return v, nil
}
