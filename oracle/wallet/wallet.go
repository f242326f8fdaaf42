package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/pkg/errors"

	"github.com/GPTx-global/feedkeeper/oracle/types"
)

// segmentMask keeps the low 31 bits; larger indexes would be hardened.
var segmentMask = big.NewInt(1<<31 - 1)

// Wallet is a sponsor wallet derived from the keeper mnemonic.
type Wallet struct {
	Sponsor common.Address
	Address common.Address
	key     *ecdsa.PrivateKey
}

func (w *Wallet) PrivateKey() *ecdsa.PrivateKey {
	return w.key
}

// DerivationPath returns m/44'/60'/0'/<protocolId>/<six 31 bit segments of sponsor>.
func DerivationPath(sponsor common.Address, protocolID string) string {
	n := new(big.Int).SetBytes(sponsor.Bytes())

	segments := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		shifted := new(big.Int).Rsh(n, uint(31*i))
		segments = append(segments, shifted.And(shifted, segmentMask).String())
	}

	return fmt.Sprintf("m/44'/60'/0'/%s/%s", protocolID, strings.Join(segments, "/"))
}

// DeriveSponsorWallet derives the wallet that signs updates paid for by sponsor.
func DeriveSponsorWallet(mnemonic string, sponsor common.Address) (*Wallet, error) {
	hd, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load mnemonic")
	}

	path, err := hdwallet.ParseDerivationPath(DerivationPath(sponsor, types.ProtocolID))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse derivation path for sponsor %s", sponsor.Hex())
	}

	account, err := hd.Derive(path, false)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to derive wallet for sponsor %s", sponsor.Hex())
	}

	key, err := hd.PrivateKey(account)
	if err != nil {
		return nil, errors.Wrap(err, "failed to export private key")
	}

	return &Wallet{Sponsor: sponsor, Address: account.Address, key: key}, nil
}
