package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/suite"
)

type ProviderTestSuite struct {
	suite.Suite
}

func TestProviderTestSuite(t *testing.T) {
	suite.Run(t, new(ProviderTestSuite))
}

func (suite *ProviderTestSuite) TestEffectiveGasPrice() {
	legacy := ethtypes.NewTx(&ethtypes.LegacyTx{GasPrice: big.NewInt(50)})
	dynamic := ethtypes.NewTx(&ethtypes.DynamicFeeTx{GasFeeCap: big.NewInt(100), GasTipCap: big.NewInt(5)})
	capped := ethtypes.NewTx(&ethtypes.DynamicFeeTx{GasFeeCap: big.NewInt(42), GasTipCap: big.NewInt(10)})

	testCases := []struct {
		name     string
		tx       *ethtypes.Transaction
		baseFee  *big.Int
		expected int64
	}{
		{"legacy before london", legacy, nil, 50},
		{"legacy after london", legacy, big.NewInt(40), 50},
		{"dynamic tip below cap", dynamic, big.NewInt(40), 45},
		{"dynamic capped by fee cap", capped, big.NewInt(40), 42},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.Equal(tc.expected, EffectiveGasPrice(tc.tx, tc.baseFee).Int64())
		})
	}
}

func (suite *ProviderTestSuite) TestPackUpdateBeaconSet() {
	airnodes := []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")}
	templateIDs := [][32]byte{common.HexToHash("0x0a"), common.HexToHash("0x0b")}
	timestamps := []*big.Int{big.NewInt(100), big.NewInt(200)}
	data := [][]byte{{0x01}, {}}
	signatures := [][]byte{{0x02}, {}}

	input, err := DapiServerABI.Pack(methodUpdateBeaconSetWithSignedData, airnodes, templateIDs, timestamps, data, signatures)
	suite.Require().NoError(err)

	method := DapiServerABI.Methods[methodUpdateBeaconSetWithSignedData]
	suite.Equal(method.ID, input[:4])

	args, err := method.Inputs.Unpack(input[4:])
	suite.Require().NoError(err)
	suite.Equal(airnodes, args[0])
	suite.Equal(timestamps, args[2])
}

func (suite *ProviderTestSuite) TestUnpackReadDataFeed() {
	method := DapiServerABI.Methods[methodReadDataFeedWithID]
	encoded, err := method.Outputs.Pack(big.NewInt(-123), uint32(1649664085))
	suite.Require().NoError(err)

	out, err := DapiServerABI.Unpack(methodReadDataFeedWithID, encoded)
	suite.Require().NoError(err)
	suite.Equal(int64(-123), out[0].(*big.Int).Int64())
	suite.Equal(uint32(1649664085), out[1].(uint32))
}
