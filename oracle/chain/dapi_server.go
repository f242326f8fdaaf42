package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// dapiServerABI covers the DapiServer methods the keeper reads and writes.
const dapiServerABI = `[
  {
    "inputs": [{"internalType": "bytes32", "name": "dataFeedId", "type": "bytes32"}],
    "name": "readDataFeedWithId",
    "outputs": [
      {"internalType": "int224", "name": "value", "type": "int224"},
      {"internalType": "uint32", "name": "timestamp", "type": "uint32"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "airnode", "type": "address"},
      {"internalType": "bytes32", "name": "templateId", "type": "bytes32"},
      {"internalType": "uint256", "name": "timestamp", "type": "uint256"},
      {"internalType": "bytes", "name": "data", "type": "bytes"},
      {"internalType": "bytes", "name": "signature", "type": "bytes"}
    ],
    "name": "updateBeaconWithSignedData",
    "outputs": [{"internalType": "bytes32", "name": "beaconId", "type": "bytes32"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address[]", "name": "airnodes", "type": "address[]"},
      {"internalType": "bytes32[]", "name": "templateIds", "type": "bytes32[]"},
      {"internalType": "uint256[]", "name": "timestamps", "type": "uint256[]"},
      {"internalType": "bytes[]", "name": "data", "type": "bytes[]"},
      {"internalType": "bytes[]", "name": "signatures", "type": "bytes[]"}
    ],
    "name": "updateBeaconSetWithSignedData",
    "outputs": [{"internalType": "bytes32", "name": "beaconSetId", "type": "bytes32"}],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const (
	methodReadDataFeedWithID            = "readDataFeedWithId"
	methodUpdateBeaconWithSignedData    = "updateBeaconWithSignedData"
	methodUpdateBeaconSetWithSignedData = "updateBeaconSetWithSignedData"
)

// DapiServerABI is the parsed contract interface.
var DapiServerABI = mustParseABI(dapiServerABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}

	return parsed
}
