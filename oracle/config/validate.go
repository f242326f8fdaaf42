package config

import (
	"fmt"
	"math"
	"net/url"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/tyler-smith/go-bip39"

	"github.com/GPTx-global/feedkeeper/oracle/types"
)

// Validate checks field ranges and that every cross reference resolves.
func (cfg *Config) Validate() error {
	if !bip39.IsMnemonicValid(cfg.KeeperMnemonic) {
		return errorsmod.Wrap(types.ErrInvalidConfig, "keeper mnemonic is not a valid bip39 mnemonic")
	}

	for id, beacon := range cfg.Beacons {
		if err := cfg.validateBeacon(id, beacon); err != nil {
			return err
		}
	}

	for id, members := range cfg.BeaconSets {
		if err := cfg.validateBeaconSet(id, members); err != nil {
			return err
		}
	}

	for airnode, gateways := range cfg.Gateways {
		for i, gw := range gateways {
			u, err := url.Parse(gw.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return errorsmod.Wrapf(types.ErrInvalidConfig, "gateway %d of airnode %s has invalid url %q", i, airnode.Hex(), gw.URL)
			}
		}
	}

	for id, chain := range cfg.Chains {
		if err := validateChain(id, chain); err != nil {
			return err
		}
	}

	for chainID, sponsors := range cfg.Triggers.DataFeedUpdates {
		if _, ok := cfg.Chains[chainID]; !ok {
			return errorsmod.Wrapf(types.ErrInvalidConfig, "triggers reference unknown chain %s", chainID)
		}

		for sponsor, t := range sponsors {
			if err := cfg.validateTriggers(chainID, sponsor, t); err != nil {
				return err
			}
		}
	}

	return nil
}

func (cfg *Config) validateBeacon(id common.Hash, beacon Beacon) error {
	if derived := types.DeriveBeaconID(beacon.Airnode, beacon.TemplateID); derived != id {
		return errorsmod.Wrapf(types.ErrIDMismatch, "beacon %s derives to %s", id.Hex(), derived.Hex())
	}

	if beacon.FetchInterval <= 0 {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "beacon %s: fetch_interval must be positive", id.Hex())
	}

	if _, ok := cfg.Templates[beacon.TemplateID]; !ok {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "beacon %s: template %s not found", id.Hex(), beacon.TemplateID.Hex())
	}

	if len(cfg.Gateways[beacon.Airnode]) == 0 {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "beacon %s: no gateways for airnode %s", id.Hex(), beacon.Airnode.Hex())
	}

	return nil
}

func (cfg *Config) validateBeaconSet(id common.Hash, members []common.Hash) error {
	if len(members) < 2 {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "beacon set %s: needs at least two beacons", id.Hex())
	}

	for _, member := range members {
		if _, ok := cfg.Beacons[member]; !ok {
			return errorsmod.Wrapf(types.ErrInvalidConfig, "beacon set %s: beacon %s not found", id.Hex(), member.Hex())
		}
	}

	derived, err := types.DeriveBeaconSetID(members)
	if err != nil {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "beacon set %s: %s", id.Hex(), err)
	}
	if derived != id {
		return errorsmod.Wrapf(types.ErrIDMismatch, "beacon set %s derives to %s", id.Hex(), derived.Hex())
	}

	return nil
}

func validateChain(id string, chain Chain) error {
	if chain.Contracts.DapiServer == (common.Address{}) {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "chain %s: dapi_server contract is required", id)
	}

	if len(chain.Providers) == 0 {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "chain %s: at least one provider is required", id)
	}
	for name, p := range chain.Providers {
		if p.URL == "" {
			return errorsmod.Wrapf(types.ErrInvalidConfig, "chain %s: provider %s has no url", id, name)
		}
	}

	opts := chain.Options
	if opts.TxType != TxTypeLegacy && opts.TxType != TxTypeEIP1559 {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "chain %s: unknown tx_type %q", id, opts.TxType)
	}
	if _, err := opts.PriorityFee.Wei(); err != nil {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "chain %s: priority_fee: %s", id, err)
	}

	oracle := opts.GasOracle
	latest := oracle.LatestGasPriceOptions
	switch {
	case oracle.MaxTimeout <= 0:
		return errorsmod.Wrapf(types.ErrInvalidConfig, "chain %s: gas oracle max_timeout must be positive", id)
	case oracle.RecommendedGasPriceMultiplier <= 0:
		return errorsmod.Wrapf(types.ErrInvalidConfig, "chain %s: recommended_gas_price_multiplier must be positive", id)
	case latest.Percentile < 0 || latest.Percentile > 100:
		return errorsmod.Wrapf(types.ErrInvalidConfig, "chain %s: percentile must be within [0, 100]", id)
	case latest.MinTransactionCount < 1:
		return errorsmod.Wrapf(types.ErrInvalidConfig, "chain %s: min_transaction_count must be positive", id)
	case latest.MaxDeviationMultiplier < 1:
		return errorsmod.Wrapf(types.ErrInvalidConfig, "chain %s: max_deviation_multiplier must be at least 1", id)
	}

	return nil
}

func (cfg *Config) validateTriggers(chainID string, sponsor common.Address, t SponsorTriggers) error {
	where := fmt.Sprintf("chain %s sponsor %s", chainID, sponsor.Hex())

	if t.UpdateInterval <= 0 {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "%s: update_interval must be positive", where)
	}

	for _, b := range t.Beacons {
		if _, ok := cfg.Beacons[b.BeaconID]; !ok {
			return errorsmod.Wrapf(types.ErrInvalidConfig, "%s: beacon %s not found", where, b.BeaconID.Hex())
		}
		if err := validateCondition(where, b.DeviationThreshold, b.HeartbeatInterval); err != nil {
			return err
		}
	}

	for _, s := range t.BeaconSets {
		if _, ok := cfg.BeaconSets[s.BeaconSetID]; !ok {
			return errorsmod.Wrapf(types.ErrInvalidConfig, "%s: beacon set %s not found", where, s.BeaconSetID.Hex())
		}
		if err := validateCondition(where, s.DeviationThreshold, s.HeartbeatInterval); err != nil {
			return err
		}
	}

	return nil
}

func validateCondition(where string, threshold float64, heartbeat uint64) error {
	// +Inf is allowed and disables the deviation trigger
	if threshold < 0 || math.IsNaN(threshold) {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "%s: deviation_threshold must be a non-negative number", where)
	}
	if heartbeat == 0 {
		return errorsmod.Wrapf(types.ErrInvalidConfig, "%s: heartbeat_interval must be positive", where)
	}

	return nil
}
