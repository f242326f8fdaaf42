package updater

import (
	"math/big"
	"sort"

	sdkmath "cosmossdk.io/math"
)

// Median returns the middle value, or the truncated mean of the two middle values
// for an even count. Returns nil for an empty input.
func Median(values []*big.Int) *big.Int {
	if len(values) == 0 {
		return nil
	}

	sorted := make([]sdkmath.Int, len(values))
	for i, v := range values {
		sorted[i] = sdkmath.NewIntFromBigInt(v)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LT(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid].BigInt()
	}

	return sorted[mid-1].Add(sorted[mid]).QuoRaw(2).BigInt()
}

// MeanTimestamp returns the floor of the mean of timestamps.
func MeanTimestamp(timestamps []uint64) uint64 {
	if len(timestamps) == 0 {
		return 0
	}

	sum := sdkmath.ZeroInt()
	for _, ts := range timestamps {
		sum = sum.Add(sdkmath.NewIntFromUint64(ts))
	}

	return sum.QuoRaw(int64(len(timestamps))).Uint64()
}
