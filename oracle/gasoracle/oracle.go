package gasoracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/GPTx-global/feedkeeper/oracle/chain"
	"github.com/GPTx-global/feedkeeper/oracle/config"
	"github.com/GPTx-global/feedkeeper/oracle/log"
	"github.com/GPTx-global/feedkeeper/oracle/retry"
	"github.com/GPTx-global/feedkeeper/oracle/telemetry"
	"github.com/GPTx-global/feedkeeper/oracle/types"
)

// Source names the cascade stage a gas target came from.
type Source string

const (
	SourceLatestBlock Source = "latest-block-percentile"
	SourceProvider    Source = "provider-gas-price"
	SourceFallback    Source = "priority-fee-fallback"
)

// stageRetries is the number of extra attempts each cascade stage gets inside its timeout.
const stageRetries = 2

var (
	ErrNotEnoughTransactions = errors.New("not enough transactions in block")
	ErrPriceDeviation        = errors.New("latest block gas price deviates from reference block")
)

// Oracle prices update transactions for one provider of one chain.
type Oracle struct {
	provider    chain.Provider
	opts        config.ChainOptions
	priorityFee *big.Int
	logger      *log.Logger
}

func New(provider chain.Provider, opts config.ChainOptions, logger *log.Logger) (*Oracle, error) {
	fee, err := opts.PriorityFee.Wei()
	if err != nil {
		return nil, fmt.Errorf("invalid priority fee: %w", err)
	}

	return &Oracle{
		provider:    provider,
		opts:        opts,
		priorityFee: fee,
		logger:      logger,
	}, nil
}

// GasTarget walks the cascade: latest block percentile, provider gas price, then
// the static priority fee. Every network stage is bounded by the remaining budget.
// The last stage never fails.
func (o *Oracle) GasTarget(ctx context.Context, budget retry.Budget) (types.GasTarget, Source) {
	target, source := o.gasTarget(ctx, budget)
	telemetry.IncrCounter(telemetry.MetricKeyGasPriceSource, telemetry.NewLabel("source", string(source)))
	o.logger.Debugf("Gas target from %s: %s", source, target)

	return target, source
}

func (o *Oracle) gasTarget(ctx context.Context, budget retry.Budget) (types.GasTarget, Source) {
	price, err := o.latestBlockGasPrice(ctx, budget)
	if err == nil {
		return o.toTarget(price), SourceLatestBlock
	}
	o.logger.Warnf("Failed to get latest block gas price, falling back to provider gas price. Error: %v", err)

	price, err = retry.Do(ctx, o.stageOptions(budget), o.provider.GasPrice)
	if err == nil {
		// the provider estimate is used as is unless a multiplier is configured
		if m := o.opts.GasOracle.RecommendedGasPriceMultiplier; m != 1 {
			price = Multiply(price, m)
		}
		return o.toTarget(price), SourceProvider
	}
	o.logger.Warnf("Failed to get provider gas price, falling back to configured priority fee. Error: %v", err)

	return o.fallback(ctx, budget), SourceFallback
}

func (o *Oracle) latestBlockGasPrice(ctx context.Context, budget retry.Budget) (*big.Int, error) {
	latestOpts := o.opts.GasOracle.LatestGasPriceOptions

	number, err := retry.Do(ctx, o.stageOptions(budget), o.provider.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}
	if number < latestOpts.PastToCompareInBlocks {
		return nil, fmt.Errorf("chain has only %d blocks, %d needed for reference", number, latestOpts.PastToCompareInBlocks)
	}

	latest, err := o.block(ctx, budget, number)
	if err != nil {
		return nil, err
	}
	reference, err := o.block(ctx, budget, number-latestOpts.PastToCompareInBlocks)
	if err != nil {
		return nil, err
	}

	if len(latest.GasPrices) < latestOpts.MinTransactionCount {
		return nil, fmt.Errorf("%w: block %d has %d, %d required", ErrNotEnoughTransactions, latest.Number, len(latest.GasPrices), latestOpts.MinTransactionCount)
	}
	if len(reference.GasPrices) == 0 {
		return nil, fmt.Errorf("%w: reference block %d is empty", ErrNotEnoughTransactions, reference.Number)
	}

	latestPrice := Percentile(latest.GasPrices, latestOpts.Percentile)
	referencePrice := Percentile(reference.GasPrices, latestOpts.Percentile)
	if !WithinLimits(latestPrice, referencePrice, latestOpts.MaxDeviationMultiplier) {
		return nil, fmt.Errorf("%w: latest %s, reference %s", ErrPriceDeviation, latestPrice, referencePrice)
	}

	return latestPrice, nil
}

func (o *Oracle) block(ctx context.Context, budget retry.Budget, number uint64) (*chain.Block, error) {
	blk, err := retry.Do(ctx, o.stageOptions(budget), func(ctx context.Context) (*chain.Block, error) {
		return o.provider.BlockWithTransactions(ctx, number)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}

	return blk, nil
}

// fallback converts the configured priority fee to the chain's fee model.
func (o *Oracle) fallback(ctx context.Context, budget retry.Budget) types.GasTarget {
	if o.opts.TxType != config.TxTypeEIP1559 {
		return types.GasTarget{GasPrice: new(big.Int).Set(o.priorityFee)}
	}

	baseFee, err := retry.Do(ctx, o.stageOptions(budget), o.provider.LatestBaseFee)
	if err != nil || baseFee == nil {
		o.logger.Warnf("Failed to get latest base fee, using priority fee only. Error: %v", err)
		baseFee = new(big.Int)
	}

	maxFee := new(big.Int).Mul(baseFee, new(big.Int).SetUint64(o.opts.BaseFeeMultiplier))
	maxFee.Add(maxFee, o.priorityFee)

	return types.GasTarget{
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: new(big.Int).Set(o.priorityFee),
	}
}

func (o *Oracle) toTarget(price *big.Int) types.GasTarget {
	if o.opts.TxType != config.TxTypeEIP1559 {
		return types.GasTarget{GasPrice: price}
	}

	tip := o.priorityFee
	if price.Cmp(tip) < 0 {
		tip = price
	}

	return types.GasTarget{
		MaxFeePerGas:         price,
		MaxPriorityFeePerGas: new(big.Int).Set(tip),
	}
}

func (o *Oracle) stageOptions(budget retry.Budget) retry.Options {
	timeout := o.opts.GasOracle.Timeout()

	return budget.Bound(retry.Options{
		AttemptTimeout: timeout,
		Retries:        stageRetries,
		TotalTimeout:   timeout,
		MaxDelay:       100 * time.Millisecond,
		OnAttemptError: func(attempt int, err error) {
			o.logger.Debugf("Gas oracle attempt %d failed: %v", attempt, err)
		},
	})
}
