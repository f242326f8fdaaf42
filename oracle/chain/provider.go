package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/GPTx-global/feedkeeper/oracle/types"
)

// Block is a block reduced to what the gas oracle needs.
type Block struct {
	Number    uint64
	BaseFee   *big.Int
	GasPrices []*big.Int
}

// TxParams are the sequencing and fee settings of one update transaction.
type TxParams struct {
	Nonce    uint64
	GasLimit uint64
	Gas      types.GasTarget
}

// Provider is one RPC endpoint of one chain together with its DapiServer contract.
type Provider interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionCount(ctx context.Context, account common.Address, blockNumber uint64) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	LatestBaseFee(ctx context.Context) (*big.Int, error)
	BlockWithTransactions(ctx context.Context, number uint64) (*Block, error)

	ReadDataFeedWithID(ctx context.Context, id common.Hash) (*types.DataFeed, error)
	UpdateBeaconWithSignedData(ctx context.Context, key *ecdsa.PrivateKey, tx TxParams, beacon types.BeaconValue) (common.Hash, error)
	UpdateBeaconSetWithSignedData(ctx context.Context, key *ecdsa.PrivateKey, tx TxParams, members []types.BeaconValue) (common.Hash, error)
}

// Client implements Provider over go-ethereum's ethclient.
type Client struct {
	chainID  *big.Int
	eth      *ethclient.Client
	contract *bind.BoundContract
}

var _ Provider = (*Client)(nil)

// Dial connects to url. HTTP endpoints connect lazily on first call.
func Dial(ctx context.Context, chainID *big.Int, url string, dapiServer common.Address) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	return &Client{
		chainID:  chainID,
		eth:      eth,
		contract: bind.NewBoundContract(dapiServer, DapiServerABI, eth, eth, eth),
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) TransactionCount(ctx context.Context, account common.Address, blockNumber uint64) (uint64, error) {
	return c.eth.NonceAt(ctx, account, new(big.Int).SetUint64(blockNumber))
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

// LatestBaseFee returns nil on chains without EIP-1559.
func (c *Client) LatestBaseFee(ctx context.Context) (*big.Int, error) {
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}

	return head.BaseFee, nil
}

func (c *Client) BlockWithTransactions(ctx context.Context, number uint64) (*Block, error) {
	blk, err := c.eth.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, err
	}

	txs := blk.Transactions()
	out := &Block{
		Number:    blk.NumberU64(),
		BaseFee:   blk.BaseFee(),
		GasPrices: make([]*big.Int, 0, len(txs)),
	}
	for _, tx := range txs {
		out.GasPrices = append(out.GasPrices, EffectiveGasPrice(tx, out.BaseFee))
	}

	return out, nil
}

// EffectiveGasPrice is the price per gas tx actually paid in a block with baseFee.
func EffectiveGasPrice(tx *ethtypes.Transaction, baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return tx.GasPrice()
	}

	return new(big.Int).Add(baseFee, tx.EffectiveGasTipValue(baseFee))
}

func (c *Client) ReadDataFeedWithID(ctx context.Context, id common.Hash) (*types.DataFeed, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodReadDataFeedWithID, [32]byte(id)); err != nil {
		return nil, fmt.Errorf("failed to read data feed %s: %w", id.Hex(), err)
	}

	return &types.DataFeed{
		Value:     *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		Timestamp: *abi.ConvertType(out[1], new(uint32)).(*uint32),
	}, nil
}

func (c *Client) UpdateBeaconWithSignedData(ctx context.Context, key *ecdsa.PrivateKey, tx TxParams, beacon types.BeaconValue) (common.Hash, error) {
	return c.transact(ctx, key, tx, methodUpdateBeaconWithSignedData,
		beacon.Airnode,
		[32]byte(beacon.TemplateID),
		new(big.Int).SetUint64(beacon.Timestamp),
		nonNil(beacon.Data),
		nonNil(beacon.Signature),
	)
}

func (c *Client) UpdateBeaconSetWithSignedData(ctx context.Context, key *ecdsa.PrivateKey, tx TxParams, members []types.BeaconValue) (common.Hash, error) {
	var (
		airnodes    = make([]common.Address, len(members))
		templateIDs = make([][32]byte, len(members))
		timestamps  = make([]*big.Int, len(members))
		data        = make([][]byte, len(members))
		signatures  = make([][]byte, len(members))
	)

	for i, m := range members {
		airnodes[i] = m.Airnode
		templateIDs[i] = m.TemplateID
		timestamps[i] = new(big.Int).SetUint64(m.Timestamp)
		data[i] = nonNil(m.Data)
		signatures[i] = nonNil(m.Signature)
	}

	return c.transact(ctx, key, tx, methodUpdateBeaconSetWithSignedData, airnodes, templateIDs, timestamps, data, signatures)
}

func (c *Client) transact(ctx context.Context, key *ecdsa.PrivateKey, tx TxParams, method string, params ...interface{}) (common.Hash, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create transactor: %w", err)
	}

	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(tx.Nonce)
	opts.GasLimit = tx.GasLimit
	if tx.Gas.Dynamic() {
		opts.GasFeeCap = tx.Gas.MaxFeePerGas
		opts.GasTipCap = tx.Gas.MaxPriorityFeePerGas
	} else {
		opts.GasPrice = tx.Gas.GasPrice
	}

	signed, err := c.contract.Transact(opts, method, params...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send %s: %w", method, err)
	}

	return signed.Hash(), nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}

	return b
}
