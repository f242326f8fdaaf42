package daemon

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/GPTx-global/feedkeeper/oracle/chain"
	"github.com/GPTx-global/feedkeeper/oracle/config"
	"github.com/GPTx-global/feedkeeper/oracle/fetcher"
	"github.com/GPTx-global/feedkeeper/oracle/gasoracle"
	"github.com/GPTx-global/feedkeeper/oracle/gateway"
	"github.com/GPTx-global/feedkeeper/oracle/health"
	"github.com/GPTx-global/feedkeeper/oracle/log"
	"github.com/GPTx-global/feedkeeper/oracle/scheduler"
	"github.com/GPTx-global/feedkeeper/oracle/state"
	"github.com/GPTx-global/feedkeeper/oracle/telemetry"
	"github.com/GPTx-global/feedkeeper/oracle/types"
	"github.com/GPTx-global/feedkeeper/oracle/updater"
	"github.com/GPTx-global/feedkeeper/oracle/wallet"
)

const (
	ExitCodeNoBeacons     = 1
	ExitCodeNoDataFeeds   = 2
	ExitCodeInvalidConfig = 3

	shutdownTimeout = 5 * time.Second
)

// ExitError carries the process exit code of a startup failure.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type Daemon struct {
	cfg       *config.Config
	store     *state.Store
	scheduler *scheduler.Scheduler
	health    *health.Checker
	server    *telemetry.Server
	clients   []*chain.Client

	ctx    context.Context
	cancel context.CancelFunc
}

// New connects every provider, derives the sponsor wallets and registers one
// fetch loop per beacon and one update loop per (chain, provider, sponsor).
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	d := &Daemon{
		cfg:       cfg,
		store:     state.NewStore(cfg),
		scheduler: scheduler.New(),
		health:    health.NewChecker(time.Duration(cfg.Telemetry.HealthCheckInterval) * time.Second),
	}
	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.connectProviders(); err != nil {
		d.close()
		return nil, err
	}

	if err := d.deriveSponsorWallets(); err != nil {
		d.close()
		return nil, &ExitError{Code: ExitCodeInvalidConfig, Err: err}
	}

	fetchLoops, err := fetcher.New(d.store, gateway.NewClient(gateway.DefaultTimeout)).Loops()
	if err != nil {
		log.Errorf("No beacons to fetch data for found. Stopping.")
		d.close()
		return nil, &ExitError{Code: ExitCodeNoBeacons, Err: err}
	}

	groups, err := updater.Groups(cfg, d.store.Get().Providers)
	if err != nil {
		log.Errorf("No data feeds for processing found. Stopping.")
		d.close()
		return nil, &ExitError{Code: ExitCodeNoDataFeeds, Err: err}
	}

	for _, l := range fetchLoops {
		if err := d.scheduler.Add(l); err != nil {
			d.close()
			return nil, err
		}
	}

	for _, g := range groups {
		oracle, err := gasoracle.New(g.Provider.RPC, cfg.Chains[g.ChainID].Options, log.With("chain-id", g.ChainID, "provider", g.Provider.Name))
		if err != nil {
			d.close()
			return nil, &ExitError{Code: ExitCodeInvalidConfig, Err: err}
		}

		if err := d.scheduler.Add(updater.NewCoordinator(g, d.store, oracle).Loop()); err != nil {
			d.close()
			return nil, err
		}
	}

	d.health.AddCheck(health.NewFuncCheck("beacon-cache", func(ctx context.Context) error {
		if len(d.store.Get().BeaconValues) == 0 {
			return types.ErrNoCachedValue
		}
		return nil
	}))

	if addr := cfg.Telemetry.ListenAddress; addr != "" {
		d.server = telemetry.NewServer(addr, d.health, d.scheduler)
	}

	log.Infof("Registered %d fetch loops and %d update loops", len(fetchLoops), len(groups))
	return d, nil
}

func (d *Daemon) connectProviders() error {
	chainIDs := make([]string, 0, len(d.cfg.Chains))
	for id := range d.cfg.Chains {
		chainIDs = append(chainIDs, id)
	}
	sort.Strings(chainIDs)

	for _, chainID := range chainIDs {
		c := d.cfg.Chains[chainID]

		id, ok := new(big.Int).SetString(chainID, 10)
		if !ok {
			return &ExitError{Code: ExitCodeInvalidConfig, Err: fmt.Errorf("invalid chain id %q", chainID)}
		}

		names := make([]string, 0, len(c.Providers))
		for name := range c.Providers {
			names = append(names, name)
		}
		sort.Strings(names)

		providers := make([]state.Provider, 0, len(names))
		for _, name := range names {
			client, err := chain.Dial(d.ctx, id, c.Providers[name].URL, c.Contracts.DapiServer)
			if err != nil {
				return fmt.Errorf("failed to connect provider %s of chain %s: %w", name, chainID, err)
			}
			d.clients = append(d.clients, client)

			providers = append(providers, state.Provider{ChainID: chainID, Name: name, RPC: client})
			d.health.AddCheck(health.NewRPCCheck(chainID, name, client))
		}

		d.store.Update(func(s state.State) state.State {
			return s.WithProviders(chainID, providers)
		})
	}

	return nil
}

func (d *Daemon) deriveSponsorWallets() error {
	for _, sponsors := range d.cfg.Triggers.DataFeedUpdates {
		for sponsor := range sponsors {
			if _, ok := d.store.SponsorWallet(sponsor); ok {
				continue
			}

			w, err := wallet.DeriveSponsorWallet(d.cfg.KeeperMnemonic, sponsor)
			if err != nil {
				return fmt.Errorf("failed to derive sponsor wallet of %s: %w", sponsor.Hex(), err)
			}
			log.Debugf("Sponsor wallet of %s is %s", sponsor.Hex(), w.Address.Hex())

			d.store.Update(func(s state.State) state.State {
				return s.WithSponsorWallet(w)
			})
		}
	}

	return nil
}

// Start launches the status server, health checks and every loop.
func (d *Daemon) Start() error {
	if err := telemetry.InitMetrics(); err != nil {
		return err
	}

	if d.server != nil {
		if err := d.server.Start(); err != nil {
			return err
		}
	}

	if d.cfg.Telemetry.HealthCheckInterval > 0 {
		go d.health.Start(d.ctx)
	}
	d.scheduler.Start(d.ctx)

	return nil
}

// Stop raises the stop flag and waits for in-flight iterations to finish.
func (d *Daemon) Stop() {
	log.Infof("Stop signal received, waiting for %d loops to finish", d.scheduler.Len())

	d.store.Stop()
	d.scheduler.Wait()

	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("failed to shut down status server: %v", err)
		}
	}

	d.close()
	log.Infof("All loops stopped")
}

// Store returns the shared runtime state.
func (d *Daemon) Store() *state.Store {
	return d.store
}

func (d *Daemon) Loops() map[string]scheduler.Phase {
	return d.scheduler.Phases()
}

func (d *Daemon) close() {
	d.cancel()
	for _, c := range d.clients {
		c.Close()
	}
	d.clients = nil
}
