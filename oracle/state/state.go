package state

import (
	"maps"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GPTx-global/feedkeeper/oracle/chain"
	"github.com/GPTx-global/feedkeeper/oracle/config"
	"github.com/GPTx-global/feedkeeper/oracle/types"
	"github.com/GPTx-global/feedkeeper/oracle/wallet"
)

// Provider is a named RPC endpoint of one chain.
type Provider struct {
	ChainID string
	Name    string
	RPC     chain.Provider
}

// State is one immutable snapshot of the keeper runtime. Its maps are shared
// between snapshots and must never be written in place; use the With helpers.
type State struct {
	Config             *config.Config
	StopSignalReceived bool
	BeaconValues       map[common.Hash]types.SignedData
	Providers          map[string][]Provider
	SponsorWallets     map[common.Address]*wallet.Wallet
}

func (s State) WithBeaconValue(id common.Hash, data types.SignedData) State {
	values := maps.Clone(s.BeaconValues)
	if values == nil {
		values = make(map[common.Hash]types.SignedData, 1)
	}
	values[id] = data
	s.BeaconValues = values

	return s
}

func (s State) WithProviders(chainID string, providers []Provider) State {
	all := maps.Clone(s.Providers)
	if all == nil {
		all = make(map[string][]Provider, 1)
	}
	all[chainID] = providers
	s.Providers = all

	return s
}

func (s State) WithSponsorWallet(w *wallet.Wallet) State {
	wallets := maps.Clone(s.SponsorWallets)
	if wallets == nil {
		wallets = make(map[common.Address]*wallet.Wallet, 1)
	}
	wallets[w.Sponsor] = w
	s.SponsorWallets = wallets

	return s
}

// Store holds the current State and replaces it atomically.
type Store struct {
	current  atomic.Pointer[State]
	stopOnce sync.Once
	done     chan struct{}
}

func NewStore(cfg *config.Config) *Store {
	st := &Store{done: make(chan struct{})}
	st.current.Store(&State{
		Config:         cfg,
		BeaconValues:   map[common.Hash]types.SignedData{},
		Providers:      map[string][]Provider{},
		SponsorWallets: map[common.Address]*wallet.Wallet{},
	})

	return st
}

func (st *Store) Get() State {
	return *st.current.Load()
}

// Update replaces the state with fn(old). fn may run more than once when
// writers race, so it must derive the new state from its argument only.
func (st *Store) Update(fn func(State) State) State {
	for {
		old := st.current.Load()
		next := fn(*old)
		if st.current.CompareAndSwap(old, &next) {
			return next
		}
	}
}

func (st *Store) BeaconValue(id common.Hash) (types.SignedData, bool) {
	v, ok := st.Get().BeaconValues[id]
	return v, ok
}

func (st *Store) SponsorWallet(sponsor common.Address) (*wallet.Wallet, bool) {
	w, ok := st.Get().SponsorWallets[sponsor]
	return w, ok
}

// Stop raises the stop flag. Only the first call has an effect.
func (st *Store) Stop() {
	st.stopOnce.Do(func() {
		st.Update(func(s State) State {
			s.StopSignalReceived = true
			return s
		})
		close(st.done)
	})
}

func (st *Store) Stopped() bool {
	return st.Get().StopSignalReceived
}

// Done is closed once Stop has been called.
func (st *Store) Done() <-chan struct{} {
	return st.done
}
