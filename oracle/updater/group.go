package updater

import (
	"bytes"
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GPTx-global/feedkeeper/oracle/config"
	"github.com/GPTx-global/feedkeeper/oracle/state"
)

// ErrNoDataFeeds is returned when no trigger produces an update group.
var ErrNoDataFeeds = errors.New("no data feeds for processing found")

// Group is the unit one coordinator serves: a sponsor's triggers on one provider of one chain.
type Group struct {
	ChainID  string
	Provider state.Provider
	Sponsor  common.Address
	Triggers config.SponsorTriggers
}

// Groups expands every (chain, sponsor) trigger entry over the chain's providers.
// The order is deterministic.
func Groups(cfg *config.Config, providers map[string][]state.Provider) ([]Group, error) {
	chainIDs := make([]string, 0, len(cfg.Triggers.DataFeedUpdates))
	for id := range cfg.Triggers.DataFeedUpdates {
		chainIDs = append(chainIDs, id)
	}
	sort.Strings(chainIDs)

	var groups []Group
	for _, chainID := range chainIDs {
		sponsors := cfg.Triggers.DataFeedUpdates[chainID]

		addrs := make([]common.Address, 0, len(sponsors))
		for sponsor := range sponsors {
			addrs = append(addrs, sponsor)
		}
		sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })

		for _, sponsor := range addrs {
			triggers := sponsors[sponsor]
			if len(triggers.Beacons) == 0 && len(triggers.BeaconSets) == 0 {
				continue
			}

			for _, p := range providers[chainID] {
				groups = append(groups, Group{
					ChainID:  chainID,
					Provider: p,
					Sponsor:  sponsor,
					Triggers: triggers,
				})
			}
		}
	}

	if len(groups) == 0 {
		return nil, ErrNoDataFeeds
	}

	return groups, nil
}
