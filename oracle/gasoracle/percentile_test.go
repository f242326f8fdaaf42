package gasoracle

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/suite"
)

type PercentileTestSuite struct {
	suite.Suite
}

func TestPercentileTestSuite(t *testing.T) {
	suite.Run(t, new(PercentileTestSuite))
}

func ints(values ...int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}

func (s *PercentileTestSuite) TestPercentile() {
	testCases := []struct {
		name     string
		values   []*big.Int
		p        float64
		expected *big.Int
	}{
		{"empty", nil, 50, nil},
		{"single value", ints(7), 90, big.NewInt(7)},
		{"median of odd count", ints(10, 20, 30), 50, big.NewInt(20)},
		{"interpolated median of even count", ints(1000, 2000, 3000, 4000), 50, big.NewInt(2500)},
		{"minimum", ints(30, 10, 20), 0, big.NewInt(10)},
		{"maximum", ints(30, 10, 20), 100, big.NewInt(30)},
		{"interpolated 60th", ints(100, 200, 300, 400, 500, 600), 60, big.NewInt(400)},
		{"interpolated 70th", ints(100, 200, 300, 400, 500, 600), 70, big.NewInt(450)},
		{"clamped above 100", ints(1, 2, 3), 150, big.NewInt(3)},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.expected, Percentile(tc.values, tc.p))
		})
	}
}

func (s *PercentileTestSuite) TestPercentile_OrderInvariant() {
	sorted := ints(1, 5, 9, 13, 21, 34, 55)
	shuffled := ints(34, 1, 55, 13, 9, 21, 5)

	for _, p := range []float64{0, 10, 33, 50, 60, 99, 100} {
		s.Equal(Percentile(sorted, p), Percentile(shuffled, p))
		s.Equal(Percentile(sorted, p), Percentile(sorted, p))
	}
}

func (s *PercentileTestSuite) TestPercentile_DoesNotModifyInput() {
	values := ints(3, 1, 2)
	Percentile(values, 50)

	s.Equal(ints(3, 1, 2), values)
}

func (s *PercentileTestSuite) TestWithinLimits() {
	testCases := []struct {
		name      string
		latest    int64
		reference int64
		expected  bool
	}{
		{"equal", 100, 100, true},
		{"upper bound inclusive", 200, 100, true},
		{"above upper bound", 201, 100, false},
		{"lower bound inclusive", 50, 100, true},
		{"below lower bound", 49, 100, false},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.expected, WithinLimits(big.NewInt(tc.latest), big.NewInt(tc.reference), 2))
		})
	}
}

func (s *PercentileTestSuite) TestMultiply() {
	s.Equal(big.NewInt(1200), Multiply(big.NewInt(1000), 1.2))
	s.Equal(big.NewInt(1000), Multiply(big.NewInt(1000), 1))
	s.Equal(big.NewInt(1), Multiply(big.NewInt(3), 0.5))
}
