package gasoracle

import (
	"math"
	"math/big"
	"sort"
)

// fixedPoint is the scale fractional ranks and multipliers are converted to
// before they touch big integer arithmetic.
var fixedPoint = big.NewInt(1_000_000)

// Percentile returns the p-th percentile (0-100) of values, linearly interpolated
// between the two samples bracketing rank p/100*(n-1). Values is not modified.
// Returns nil for an empty input.
func Percentile(values []*big.Int, p float64) *big.Int {
	if len(values) == 0 {
		return nil
	}

	sorted := make([]*big.Int, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	p = math.Min(math.Max(p, 0), 100)
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))

	if lower == upper {
		return new(big.Int).Set(sorted[lower])
	}

	frac := big.NewInt(int64(math.Round((rank - float64(lower)) * float64(fixedPoint.Int64()))))
	spread := new(big.Int).Sub(sorted[upper], sorted[lower])
	spread.Mul(spread, frac).Quo(spread, fixedPoint)

	return spread.Add(spread, sorted[lower])
}

// WithinLimits reports whether latest and reference are within multiplier of each other,
// bounds inclusive.
func WithinLimits(latest, reference *big.Int, multiplier float64) bool {
	m := scale(multiplier)

	upper := new(big.Int).Mul(reference, m)
	lower := new(big.Int).Mul(latest, m)
	scaledLatest := new(big.Int).Mul(latest, fixedPoint)
	scaledReference := new(big.Int).Mul(reference, fixedPoint)

	return scaledLatest.Cmp(upper) <= 0 && lower.Cmp(scaledReference) >= 0
}

// Multiply returns value * multiplier, truncated to wei.
func Multiply(value *big.Int, multiplier float64) *big.Int {
	out := new(big.Int).Mul(value, scale(multiplier))
	return out.Quo(out, fixedPoint)
}

func scale(f float64) *big.Int {
	return big.NewInt(int64(math.Round(f * float64(fixedPoint.Int64()))))
}
