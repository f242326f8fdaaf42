package types

import (
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// Int224Min and Int224Max bound every value a DapiServer data feed can hold.
	Int224Min = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 223))
	Int224Max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 223), big.NewInt(1))

	int256Args = abi.Arguments{{Type: mustType("int256")}}
)

// SignedData is one airnode-attested beacon reading as served by a signed-data gateway.
type SignedData struct {
	EncodedValue []byte
	Timestamp    uint64
	Signature    []byte
}

// DataFeed is the value and timestamp a data feed currently holds on chain.
type DataFeed struct {
	Value     *big.Int
	Timestamp uint32
}

// Initialized reports whether the feed was ever written.
func (f DataFeed) Initialized() bool {
	return f.Timestamp != 0
}

// Template is a request template served by the airnode gateways.
type Template struct {
	ID         common.Hash
	EndpointID common.Hash
	Parameters []byte
}

// BeaconValue is a decoded beacon reading, either from signed data or read back from chain.
// Signed is false for on-chain readings, which carry no data or signature.
type BeaconValue struct {
	BeaconID   common.Hash
	Airnode    common.Address
	TemplateID common.Hash
	Value      *big.Int
	Timestamp  uint64
	Data       []byte
	Signature  []byte
	Signed     bool
}

// DecodeValue decodes the int256 payload and rejects anything outside the int224 range.
func (d SignedData) DecodeValue() (*big.Int, error) {
	if len(d.EncodedValue) != 32 {
		return nil, errorsmod.Wrapf(ErrInvalidEncoding, "got %d bytes", len(d.EncodedValue))
	}

	out, err := int256Args.Unpack(d.EncodedValue)
	if err != nil {
		return nil, errorsmod.Wrap(ErrInvalidEncoding, err.Error())
	}

	value := out[0].(*big.Int)
	if err := CheckInt224(value); err != nil {
		return nil, err
	}

	return value, nil
}

// Verify checks that the signature recovers to airnode over
// keccak256(templateId, timestamp, encodedValue) with the signed-message prefix.
func (d SignedData) Verify(airnode common.Address, templateID common.Hash) error {
	if len(d.Signature) != crypto.SignatureLength {
		return errorsmod.Wrapf(ErrInvalidSignature, "signature length %d", len(d.Signature))
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, d.Signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(d.messageHash(templateID)), sig)
	if err != nil {
		return errorsmod.Wrap(ErrInvalidSignature, err.Error())
	}

	if signer := crypto.PubkeyToAddress(*pub); signer != airnode {
		return errorsmod.Wrapf(ErrInvalidSignature, "recovered %s, expected %s", signer.Hex(), airnode.Hex())
	}

	return nil
}

func (d SignedData) messageHash(templateID common.Hash) []byte {
	ts := common.LeftPadBytes(new(big.Int).SetUint64(d.Timestamp).Bytes(), 32)
	return crypto.Keccak256(templateID.Bytes(), ts, d.EncodedValue)
}

// CheckInt224 fails when v does not fit a signed 224-bit integer.
func CheckInt224(v *big.Int) error {
	if v.Cmp(Int224Min) < 0 || v.Cmp(Int224Max) > 0 {
		return errorsmod.Wrapf(ErrValueOutOfRange, "value %s", v.String())
	}

	return nil
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}

	return typ
}

// GasTarget is the fee setting of one transaction: GasPrice for legacy
// transactions, MaxFeePerGas and MaxPriorityFeePerGas for EIP-1559 ones.
type GasTarget struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

func (g GasTarget) Dynamic() bool {
	return g.MaxFeePerGas != nil
}

func (g GasTarget) String() string {
	if g.Dynamic() {
		return "maxFeePerGas=" + g.MaxFeePerGas.String() + " maxPriorityFeePerGas=" + g.MaxPriorityFeePerGas.String()
	}
	if g.GasPrice == nil {
		return "gasPrice=<nil>"
	}
	return "gasPrice=" + g.GasPrice.String()
}
