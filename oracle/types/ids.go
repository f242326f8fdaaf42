package types

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var bytes32ArrayArgs = abi.Arguments{{Type: mustType("bytes32[]")}}

// DeriveBeaconID returns keccak256(abi.encodePacked(airnode, templateId)).
func DeriveBeaconID(airnode common.Address, templateID common.Hash) common.Hash {
	return crypto.Keccak256Hash(airnode.Bytes(), templateID.Bytes())
}

// DeriveTemplateID returns keccak256(abi.encodePacked(endpointId, parameters)).
func DeriveTemplateID(endpointID common.Hash, parameters []byte) common.Hash {
	return crypto.Keccak256Hash(endpointID.Bytes(), parameters)
}

// DeriveBeaconSetID returns keccak256(abi.encode(beaconIds)).
func DeriveBeaconSetID(beaconIDs []common.Hash) (common.Hash, error) {
	ids := make([][32]byte, len(beaconIDs))
	for i, id := range beaconIDs {
		ids[i] = id
	}

	packed, err := bytes32ArrayArgs.Pack(ids)
	if err != nil {
		return common.Hash{}, err
	}

	return crypto.Keccak256Hash(packed), nil
}

// EncodeInt256 abi-encodes v as a signed 256-bit integer.
func EncodeInt256(v *big.Int) ([]byte, error) {
	return int256Args.Pack(v)
}

// SignData produces an airnode signature over a beacon reading, in the format
// Verify accepts. Used by local gateways and tests.
func SignData(key *ecdsa.PrivateKey, templateID common.Hash, timestamp uint64, encodedValue []byte) ([]byte, error) {
	d := SignedData{EncodedValue: encodedValue, Timestamp: timestamp}

	sig, err := crypto.Sign(accounts.TextHash(d.messageHash(templateID)), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27

	return sig, nil
}
