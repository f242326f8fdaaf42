package updater

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/GPTx-global/feedkeeper/oracle/chain"
	"github.com/GPTx-global/feedkeeper/oracle/condition"
	"github.com/GPTx-global/feedkeeper/oracle/gasoracle"
	"github.com/GPTx-global/feedkeeper/oracle/log"
	"github.com/GPTx-global/feedkeeper/oracle/retry"
	"github.com/GPTx-global/feedkeeper/oracle/scheduler"
	"github.com/GPTx-global/feedkeeper/oracle/state"
	"github.com/GPTx-global/feedkeeper/oracle/telemetry"
	"github.com/GPTx-global/feedkeeper/oracle/types"
	"github.com/GPTx-global/feedkeeper/oracle/wallet"
)

const (
	RPCAttemptTimeout = 5 * time.Second
	RandomBackoffMax  = 2500 * time.Millisecond
)

// GasPricer prices one transaction within the remaining cycle budget.
type GasPricer interface {
	GasTarget(ctx context.Context, budget retry.Budget) (types.GasTarget, gasoracle.Source)
}

// Report summarizes one cycle.
type Report struct {
	Submitted []common.Hash
	Skipped   int
	Failed    int
}

// Coordinator runs the update cycles of one group. Targets of a cycle are
// processed one after the other, so the nonce needs no lock.
type Coordinator struct {
	group  Group
	store  *state.Store
	gas    GasPricer
	logger *log.Logger

	now  func() time.Time
	rand func() float64
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithRand fixes the backoff random source of RPC retries.
func WithRand(r func() float64) Option {
	return func(c *Coordinator) { c.rand = r }
}

func NewCoordinator(group Group, store *state.Store, gas GasPricer, opts ...Option) *Coordinator {
	c := &Coordinator{
		group: group,
		store: store,
		gas:   gas,
		logger: log.With(
			"chain-id", group.ChainID,
			"provider", group.Provider.Name,
			"sponsor", group.Sponsor.Hex(),
		),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Coordinator) Name() string {
	return fmt.Sprintf("update/%s/%s/%s", c.group.ChainID, c.group.Provider.Name, c.group.Sponsor.Hex())
}

func (c *Coordinator) Loop() *scheduler.Loop {
	return scheduler.NewLoop(c.Name(), c.group.Triggers.UpdatePeriod(), c.store, func(ctx context.Context) {
		_, _ = c.UpdateDataFeeds(ctx)
	})
}

// UpdateDataFeeds runs one cycle. The error is set only when the cycle was
// aborted before any target was evaluated.
func (c *Coordinator) UpdateDataFeeds(ctx context.Context) (Report, error) {
	var report Report

	c.logger.Debugf("Processing data feed updates")
	budget := retry.NewBudget(c.group.Triggers.UpdatePeriod())
	defer telemetry.ObserveSince(telemetry.CycleDuration, budget.Start(), c.group.ChainID, c.group.Provider.Name)

	rpc := c.group.Provider.RPC

	blockNumber, err := retry.Do(ctx, c.rpcOptions(budget, "get block number"), rpc.BlockNumber)
	if err != nil {
		c.logger.Warnf("Unable to obtain block number. Error: %v", err)
		return report, fmt.Errorf("failed to get block number: %w", err)
	}

	w, err := c.sponsorWallet()
	if err != nil {
		c.logger.Errorf("Unable to derive sponsor wallet. Error: %v", err)
		return report, err
	}
	logger := c.logger.With("sponsor-wallet", w.Address.Hex())

	count, err := retry.Do(ctx, c.rpcOptions(budget, "get transaction count"), func(ctx context.Context) (uint64, error) {
		return rpc.TransactionCount(ctx, w.Address, blockNumber)
	})
	if err != nil {
		logger.Warnf("Unable to fetch transaction count. Error: %v", err)
		return report, fmt.Errorf("failed to get transaction count: %w", err)
	}
	logger.Debugf("Transaction count for sponsor wallet is %d at block %d", count, blockNumber)

	nonces := NewNonceSequencer(count)
	for _, t := range c.targets() {
		c.processTarget(ctx, budget, logger, w, nonces, t, &report)
	}

	logger.Infof("Update cycle finished: %d submitted, %d skipped, %d failed", len(report.Submitted), report.Skipped, report.Failed)
	return report, nil
}

type target struct {
	id        common.Hash
	kind      string
	members   []common.Hash
	threshold float64
	heartbeat uint64
}

func (t target) isSet() bool {
	return t.members != nil
}

func (c *Coordinator) targets() []target {
	cfg := c.store.Get().Config
	triggers := c.group.Triggers

	out := make([]target, 0, len(triggers.Beacons)+len(triggers.BeaconSets))
	for _, b := range triggers.Beacons {
		out = append(out, target{id: b.BeaconID, kind: "beacon", threshold: b.DeviationThreshold, heartbeat: b.HeartbeatInterval})
	}
	for _, s := range triggers.BeaconSets {
		out = append(out, target{
			id:        s.BeaconSetID,
			kind:      "beacon-set",
			members:   cfg.BeaconSets[s.BeaconSetID],
			threshold: s.DeviationThreshold,
			heartbeat: s.HeartbeatInterval,
		})
	}

	return out
}

func (c *Coordinator) processTarget(ctx context.Context, budget retry.Budget, logger *log.Logger, w *wallet.Wallet, nonces *NonceSequencer, t target, report *Report) {
	logger = logger.With(t.kind+"-id", t.id.Hex())
	logger.Debugf("Updating %s", t.kind)

	var (
		members []types.BeaconValue
		value   *big.Int
		ts      uint64
		err     error
	)
	if t.isSet() {
		members, err = c.beaconSetMembers(ctx, budget, logger, t.members)
		if err != nil {
			logger.Warnf("There was an error fetching beacon data for beacon set. Skipping. Error: %v", err)
			c.skip(report, t)
			return
		}
		value, ts = aggregate(members)
	} else {
		member, err := c.cachedBeacon(t.id)
		if err != nil {
			logger.Warnf("Unable to use off chain data for beacon. Skipping. Error: %v", err)
			c.skip(report, t)
			return
		}
		members = []types.BeaconValue{member}
		value, ts = member.Value, member.Timestamp
	}

	onChain, err := c.readDataFeed(ctx, budget, t.id)
	if err != nil {
		logger.Warnf("Unable to fetch current %s value. Skipping. Error: %v", t.kind, err)
		c.skip(report, t)
		return
	}

	if !c.shouldUpdate(logger, *onChain, value, ts, t) {
		c.skip(report, t)
		return
	}

	gas, _ := c.gas.GasTarget(ctx, budget)
	params := chain.TxParams{
		Nonce:    nonces.Nonce(),
		GasLimit: c.store.Get().Config.Chains[c.group.ChainID].Options.FulfillmentGasLimit,
		Gas:      gas,
	}

	hash, err := c.submit(ctx, budget, w, params, t, members)
	if err != nil {
		logger.Warnf("Unable to update %s with nonce %d. Error: %v", t.kind, params.Nonce, err)
		report.Failed++
		telemetry.IncrCounter(telemetry.MetricKeyUpdateFailed, telemetry.NewLabel("chain_id", c.group.ChainID), telemetry.NewLabel("kind", t.kind))
		return
	}

	logger.Infof("%s successfully updated with nonce %d and %s. Tx hash %s.", t.kind, params.Nonce, gas, hash.Hex())
	nonces.Advance()
	report.Submitted = append(report.Submitted, hash)
	telemetry.IncrCounter(telemetry.MetricKeyUpdateSubmitted, telemetry.NewLabel("chain_id", c.group.ChainID), telemetry.NewLabel("kind", t.kind))
}

// submit sends one transaction under a deadline of the remaining budget. The call
// is never abandoned, so a hash returned after the deadline still advances the nonce.
func (c *Coordinator) submit(ctx context.Context, budget retry.Budget, w *wallet.Wallet, params chain.TxParams, t target, members []types.BeaconValue) (common.Hash, error) {
	remaining := budget.Remaining()
	if remaining <= 0 {
		return common.Hash{}, retry.ErrTotalTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	if t.isSet() {
		return c.group.Provider.RPC.UpdateBeaconSetWithSignedData(ctx, w.PrivateKey(), params, members)
	}
	return c.group.Provider.RPC.UpdateBeaconWithSignedData(ctx, w.PrivateKey(), params, members[0])
}

// shouldUpdate applies the stale-data guard, then the heartbeat, then the deviation threshold.
func (c *Coordinator) shouldUpdate(logger *log.Logger, onChain types.DataFeed, value *big.Int, timestamp uint64, t target) bool {
	if !onChain.Initialized() {
		logger.Warnf("On chain %s is not initialized. Updating without condition check.", t.kind)
		return true
	}

	if uint64(onChain.Timestamp) >= timestamp {
		logger.Infof("On chain %s value is more up-to-date. Skipping.", t.kind)
		return false
	}

	if !condition.IsFresh(uint64(onChain.Timestamp), t.heartbeat, c.now()) {
		logger.Infof("On chain data timestamp older than heartbeat. Updating without condition check.")
		return true
	}

	if !condition.UpdateCondition(onChain.Value, t.threshold, value) {
		logger.Infof("Deviation threshold not reached. Skipping.")
		return false
	}

	logger.Infof("Deviation threshold reached. Updating.")
	return true
}

// beaconSetMembers resolves every member concurrently. One failing member fails the set.
func (c *Coordinator) beaconSetMembers(ctx context.Context, budget retry.Budget, logger *log.Logger, ids []common.Hash) ([]types.BeaconValue, error) {
	members := make([]types.BeaconValue, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			member, err := c.cachedBeacon(id)
			if err == nil {
				members[i] = member
				return nil
			}
			// a cached value that does not decode fails the set instead of being replaced
			if !errors.Is(err, types.ErrNoCachedValue) {
				return err
			}

			logger.Warnf("Missing off chain data for beacon %s. Reading it from chain.", id.Hex())
			member, err = c.onChainBeacon(gctx, budget, id)
			if err != nil {
				return err
			}
			members[i] = member
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return members, nil
}

func (c *Coordinator) cachedBeacon(id common.Hash) (types.BeaconValue, error) {
	snapshot := c.store.Get()

	data, ok := snapshot.BeaconValues[id]
	if !ok {
		return types.BeaconValue{}, fmt.Errorf("%w: beacon %s", types.ErrNoCachedValue, id.Hex())
	}

	value, err := data.DecodeValue()
	if err != nil {
		return types.BeaconValue{}, fmt.Errorf("beacon %s: %w", id.Hex(), err)
	}

	beacon := snapshot.Config.Beacons[id]
	return types.BeaconValue{
		BeaconID:   id,
		Airnode:    beacon.Airnode,
		TemplateID: beacon.TemplateID,
		Value:      value,
		Timestamp:  data.Timestamp,
		Data:       data.EncodedValue,
		Signature:  data.Signature,
		Signed:     true,
	}, nil
}

// onChainBeacon reads a member from chain. It is submitted without data or signature.
func (c *Coordinator) onChainBeacon(ctx context.Context, budget retry.Budget, id common.Hash) (types.BeaconValue, error) {
	feed, err := c.readDataFeed(ctx, budget, id)
	if err != nil {
		return types.BeaconValue{}, err
	}
	if !feed.Initialized() {
		return types.BeaconValue{}, fmt.Errorf("%w: missing on chain data for beacon %s", types.ErrDataFeedNotFound, id.Hex())
	}

	beacon := c.store.Get().Config.Beacons[id]
	return types.BeaconValue{
		BeaconID:   id,
		Airnode:    beacon.Airnode,
		TemplateID: beacon.TemplateID,
		Value:      feed.Value,
		Timestamp:  uint64(feed.Timestamp),
	}, nil
}

func (c *Coordinator) readDataFeed(ctx context.Context, budget retry.Budget, id common.Hash) (*types.DataFeed, error) {
	return retry.Do(ctx, c.rpcOptions(budget, "read data feed "+id.Hex()), func(ctx context.Context) (*types.DataFeed, error) {
		return c.group.Provider.RPC.ReadDataFeedWithID(ctx, id)
	})
}

func (c *Coordinator) sponsorWallet() (*wallet.Wallet, error) {
	if w, ok := c.store.SponsorWallet(c.group.Sponsor); ok {
		return w, nil
	}

	w, err := wallet.DeriveSponsorWallet(c.store.Get().Config.KeeperMnemonic, c.group.Sponsor)
	if err != nil {
		return nil, err
	}
	c.store.Update(func(s state.State) state.State {
		return s.WithSponsorWallet(w)
	})

	return w, nil
}

func (c *Coordinator) rpcOptions(budget retry.Budget, what string) retry.Options {
	return budget.Bound(retry.Options{
		AttemptTimeout: RPCAttemptTimeout,
		Retries:        retry.InfiniteRetries,
		MaxDelay:       RandomBackoffMax,
		Rand:           c.rand,
		OnAttemptError: func(_ int, err error) {
			c.logger.Warnf("Failed attempt to %s. Error: %v", what, err)
		},
	})
}

func (c *Coordinator) skip(report *Report, t target) {
	report.Skipped++
	telemetry.IncrCounter(telemetry.MetricKeyUpdateSkipped, telemetry.NewLabel("chain_id", c.group.ChainID), telemetry.NewLabel("kind", t.kind))
}

func aggregate(members []types.BeaconValue) (*big.Int, uint64) {
	values := make([]*big.Int, len(members))
	timestamps := make([]uint64, len(members))
	for i, m := range members {
		values[i] = m.Value
		timestamps[i] = m.Timestamp
	}

	return Median(values), MeanTimestamp(timestamps)
}
