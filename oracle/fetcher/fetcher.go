package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GPTx-global/feedkeeper/oracle/config"
	"github.com/GPTx-global/feedkeeper/oracle/gateway"
	"github.com/GPTx-global/feedkeeper/oracle/log"
	"github.com/GPTx-global/feedkeeper/oracle/retry"
	"github.com/GPTx-global/feedkeeper/oracle/scheduler"
	"github.com/GPTx-global/feedkeeper/oracle/state"
	"github.com/GPTx-global/feedkeeper/oracle/telemetry"
	"github.com/GPTx-global/feedkeeper/oracle/types"
)

const (
	RandomBackoffMin = 0
	RandomBackoffMax = 2500 * time.Millisecond
)

// ErrNoBeacons is returned when no trigger references a configured beacon.
var ErrNoBeacons = errors.New("no beacons to fetch data for found")

// Gateway obtains signed data for one beacon from its airnode gateways.
type Gateway interface {
	FetchSignedData(ctx context.Context, gateways []config.Gateway, req gateway.Request) (*types.SignedData, error)
}

// Fetcher keeps the signed data cache of every triggered beacon fresh.
type Fetcher struct {
	store          *state.Store
	gateway        Gateway
	attemptTimeout time.Duration
	rand           func() float64
}

type Option func(*Fetcher)

// WithRand fixes the backoff random source.
func WithRand(r func() float64) Option {
	return func(f *Fetcher) { f.rand = r }
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.attemptTimeout = d }
}

func New(store *state.Store, gw Gateway, opts ...Option) *Fetcher {
	f := &Fetcher{
		store:          store,
		gateway:        gw,
		attemptTimeout: gateway.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Loops builds one fetch loop per beacon to fetch.
func (f *Fetcher) Loops() ([]*scheduler.Loop, error) {
	cfg := f.store.Get().Config
	ids := cfg.BeaconIDsToFetch()
	if len(ids) == 0 {
		return nil, ErrNoBeacons
	}

	loops := make([]*scheduler.Loop, 0, len(ids))
	for _, id := range ids {
		loops = append(loops, scheduler.NewLoop("fetch/"+id.Hex(), cfg.Beacons[id].FetchPeriod(), f.store, func(ctx context.Context) {
			_ = f.FetchBeaconData(ctx, id)
		}))
	}

	return loops, nil
}

// FetchBeaconData runs one fetch iteration for beaconID. It keeps retrying the
// gateways for up to the beacon's fetch interval and caches the first valid value.
func (f *Fetcher) FetchBeaconData(ctx context.Context, beaconID common.Hash) error {
	logger := log.With("beacon-id", beaconID.Hex())
	logger.Debugf("Fetching beacon data")

	start := time.Now()
	defer telemetry.ObserveSince(telemetry.FetchDuration, start, beaconID.Hex())

	cfg := f.store.Get().Config
	beacon, ok := cfg.Beacons[beaconID]
	if !ok {
		return fmt.Errorf("%w: beacon %s", types.ErrDataFeedNotFound, beaconID.Hex())
	}

	tmpl := cfg.Templates[beacon.TemplateID]
	if derived := types.DeriveTemplateID(tmpl.EndpointID, tmpl.Parameters); derived != beacon.TemplateID {
		logger.Warnf("Invalid template ID %s. Skipping.", beacon.TemplateID.Hex())
		return fmt.Errorf("%w: template %s derives to %s", types.ErrIDMismatch, beacon.TemplateID.Hex(), derived.Hex())
	}

	req := gateway.Request{
		Airnode: beacon.Airnode,
		Template: types.Template{
			ID:         beacon.TemplateID,
			EndpointID: tmpl.EndpointID,
			Parameters: tmpl.Parameters,
		},
	}
	gateways := cfg.Gateways[beacon.Airnode]

	data, err := retry.Do(ctx, retry.Options{
		AttemptTimeout: f.attemptTimeout,
		Retries:        retry.InfiniteRetries,
		MinDelay:       RandomBackoffMin,
		MaxDelay:       RandomBackoffMax,
		TotalTimeout:   beacon.FetchPeriod(),
		Rand:           f.rand,
		OnAttemptError: func(_ int, err error) {
			logger.Warnf("Failed attempt to call signed data gateway. Error: %v", err)
		},
	}, func(ctx context.Context) (*types.SignedData, error) {
		return f.gateway.FetchSignedData(ctx, gateways, req)
	})
	if err != nil {
		logger.Warnf("Unable to call signed data gateway. Error: %q", err.Error())
		telemetry.IncrCounter(telemetry.MetricKeyFetchFailure)
		return err
	}

	f.store.Update(func(s state.State) state.State {
		return s.WithBeaconValue(beaconID, *data)
	})
	telemetry.IncrCounter(telemetry.MetricKeyFetchSuccess)
	telemetry.SetGauge(telemetry.MetricKeyBeaconAge, float32(time.Since(time.Unix(int64(data.Timestamp), 0)).Seconds()),
		telemetry.NewLabel("beacon_id", beaconID.Hex()))

	return nil
}
