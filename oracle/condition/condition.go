package condition

import (
	"math"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
)

// HundredPercent is 100% in the fixed-point unit deviations are compared in.
var HundredPercent = sdkmath.NewInt(100_000_000)

// UpdateInPercentage returns |updated - initial| / |initial| scaled by HundredPercent.
// A zero initial value yields |updated| scaled by HundredPercent.
func UpdateInPercentage(initial, updated *big.Int) sdkmath.Int {
	from := sdkmath.NewIntFromBigInt(initial)
	delta := sdkmath.NewIntFromBigInt(updated).Sub(from).Abs().Mul(HundredPercent)

	if from.IsZero() {
		return delta
	}

	return delta.Quo(from.Abs())
}

// ThresholdFixed converts a finite fractional threshold (0.1 is 10%) to the fixed-point unit, truncating.
func ThresholdFixed(fraction float64) sdkmath.Int {
	scaled := new(big.Float).Mul(big.NewFloat(fraction), new(big.Float).SetInt(HundredPercent.BigInt()))
	i, _ := scaled.Int(nil)

	return sdkmath.NewIntFromBigInt(i)
}

// UpdateCondition reports whether candidate deviates from onChain by at least thresholdFraction.
// An infinite threshold is never reached, leaving the heartbeat as the only trigger.
func UpdateCondition(onChain *big.Int, thresholdFraction float64, candidate *big.Int) bool {
	if math.IsInf(thresholdFraction, 1) {
		return false
	}

	return UpdateInPercentage(onChain, candidate).GTE(ThresholdFixed(thresholdFraction))
}

// IsFresh reports whether a value written at timestamp is younger than the heartbeat at now.
func IsFresh(timestamp, heartbeatInterval uint64, now time.Time) bool {
	return now.Unix()-int64(timestamp) < int64(heartbeatInterval)
}
