package condition

import (
	"math"
	"math/big"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/suite"
)

type ConditionTestSuite struct {
	suite.Suite
}

func TestConditionTestSuite(t *testing.T) {
	suite.Run(t, new(ConditionTestSuite))
}

func percent(fraction float64) sdkmath.Int {
	return sdkmath.NewInt(int64(fraction * 100_000_000))
}

func (suite *ConditionTestSuite) TestUpdateInPercentage() {
	testCases := []struct {
		name     string
		initial  int64
		updated  int64
		expected sdkmath.Int
	}{
		{"increase", 10, 15, percent(0.5)},
		{"decrease", 10, 5, percent(0.5)},
		{"zero change", 10, 10, percent(0)},
		{"100 percent change", 10, 20, percent(1)},
		{"positive to negative", 10, -5, percent(1.5)},
		{"negative to positive", -5, 5, percent(2)},
		{"initial zero to positive", 0, 5, percent(5)},
		{"initial zero to negative", 0, -5, percent(5)},
		{"positive to zero", 5, 0, percent(1)},
		{"negative to zero", -5, 0, percent(1)},
		{"negative to negative", -5, -1, percent(0.8)},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			got := UpdateInPercentage(big.NewInt(tc.initial), big.NewInt(tc.updated))
			suite.True(tc.expected.Equal(got), "expected %s, got %s", tc.expected, got)
		})
	}
}

func (suite *ConditionTestSuite) TestUpdateCondition() {
	testCases := []struct {
		name      string
		onChain   int64
		candidate int64
		threshold float64
		expected  bool
	}{
		{"50 percent over 10 percent threshold", 10, 15, 0.1, true},
		{"no change", 10, 10, 0.1, false},
		{"exactly at threshold", 100, 110, 0.1, true},
		{"just below threshold", 1000, 1099, 0.1, false},
		{"zero threshold always updates", 10, 10, 0, true},
		{"zero on chain small threshold", 0, 5, 0.5, true},
		{"zero on chain threshold equal to change", 0, 5, 5, true},
		{"zero on chain threshold above change", 0, 5, 5.5, false},
		{"large negative swing", -200, 100, 1, true},
		{"infinite threshold is never reached", -200, 100, math.Inf(1), false},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.Equal(tc.expected, UpdateCondition(big.NewInt(tc.onChain), tc.threshold, big.NewInt(tc.candidate)))
		})
	}
}

func (suite *ConditionTestSuite) TestThresholdFixed() {
	suite.True(sdkmath.NewInt(10_000_000).Equal(ThresholdFixed(0.1)))
	suite.True(sdkmath.NewInt(250_000).Equal(ThresholdFixed(0.0025)))
	suite.True(sdkmath.NewInt(0).Equal(ThresholdFixed(0)))
	suite.True(sdkmath.NewInt(1_000_000_000_000).Equal(ThresholdFixed(10_000)))
}

func (suite *ConditionTestSuite) TestIsFresh() {
	now := time.Unix(1_000_000, 0)

	testCases := []struct {
		name      string
		timestamp uint64
		heartbeat uint64
		expected  bool
	}{
		{"just written", 1_000_000, 60, true},
		{"inside heartbeat", 999_950, 60, true},
		{"exactly heartbeat old", 999_940, 60, false},
		{"older than heartbeat", 900_000, 60, false},
		{"future timestamp", 1_000_010, 60, true},
		{"never written", 0, 86400, false},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.Equal(tc.expected, IsFresh(tc.timestamp, tc.heartbeat, now))
		})
	}
}
