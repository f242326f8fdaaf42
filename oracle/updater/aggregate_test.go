package updater

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/suite"
)

type AggregateTestSuite struct {
	suite.Suite
}

func TestAggregateTestSuite(t *testing.T) {
	suite.Run(t, new(AggregateTestSuite))
}

func values(vs ...int64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = big.NewInt(v)
	}
	return out
}

func (s *AggregateTestSuite) TestMedian() {
	testCases := []struct {
		name     string
		values   []*big.Int
		expected int64
	}{
		{"single", values(42), 42},
		{"odd count", values(30, 10, 20), 20},
		{"even count averages the middle pair", values(10, 20, 30, 40), 25},
		{"even count truncates", values(10, 21, 30, 1), 15},
		{"negative values", values(-3, -1), -2},
		{"negative average truncates toward zero", values(-1, -2), -1},
		{"mixed signs", values(-100, 50, 7), 7},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(0, Median(tc.values).Cmp(big.NewInt(tc.expected)), Median(tc.values).String())
		})
	}
}

func (s *AggregateTestSuite) TestMedian_Empty() {
	s.Nil(Median(nil))
}

func (s *AggregateTestSuite) TestMedian_DoesNotReorderInput() {
	in := values(3, 1, 2)
	Median(in)
	s.Equal(values(3, 1, 2), in)
}

func (s *AggregateTestSuite) TestMeanTimestamp() {
	s.Equal(uint64(200), MeanTimestamp([]uint64{100, 200, 300}))
	s.Equal(uint64(150), MeanTimestamp([]uint64{100, 201}))
	s.Equal(uint64(1_700_000_000), MeanTimestamp([]uint64{1_700_000_000}))
	s.Equal(uint64(0), MeanTimestamp(nil))
}

func (s *AggregateTestSuite) TestNonceSequencer() {
	n := NewNonceSequencer(7)
	s.Equal(uint64(7), n.Nonce())
	s.Equal(uint64(7), n.Nonce())

	n.Advance()
	n.Advance()
	s.Equal(uint64(9), n.Nonce())
}
