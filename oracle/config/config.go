package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/GPTx-global/feedkeeper/oracle/log"
)

const (
	TxTypeLegacy  = "legacy"
	TxTypeEIP1559 = "eip1559"

	DefaultConfigFile  = "config.toml"
	DefaultSecretsFile = "secrets.env"
)

// Config is the fully resolved keeper configuration. Every id it references resolves.
type Config struct {
	Home           string
	KeeperMnemonic string
	Log            LogConfig
	Telemetry      TelemetryConfig
	Beacons        map[common.Hash]Beacon
	BeaconSets     map[common.Hash][]common.Hash
	Templates      map[common.Hash]Template
	Gateways       map[common.Address][]Gateway
	Chains         map[string]Chain
	Triggers       Triggers
}

type LogConfig struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

type TelemetryConfig struct {
	ListenAddress       string `toml:"listen_address"`
	HealthCheckInterval uint64 `toml:"health_check_interval"`
}

type Beacon struct {
	Airnode       common.Address `toml:"airnode"`
	TemplateID    common.Hash    `toml:"template_id"`
	FetchInterval float64        `toml:"fetch_interval"`
}

func (b Beacon) FetchPeriod() time.Duration {
	return seconds(b.FetchInterval)
}

type Template struct {
	EndpointID common.Hash   `toml:"endpoint_id"`
	Parameters hexutil.Bytes `toml:"parameters"`
}

type Gateway struct {
	APIKey string `toml:"api_key"`
	URL    string `toml:"url"`
}

type Chain struct {
	Contracts Contracts           `toml:"contracts"`
	Providers map[string]Provider `toml:"providers"`
	Options   ChainOptions        `toml:"options"`
}

type Contracts struct {
	DapiServer common.Address `toml:"dapi_server"`
}

type Provider struct {
	URL string `toml:"url"`
}

type ChainOptions struct {
	TxType              string    `toml:"tx_type"`
	FulfillmentGasLimit uint64    `toml:"fulfillment_gas_limit"`
	BaseFeeMultiplier   uint64    `toml:"base_fee_multiplier"`
	PriorityFee         Amount    `toml:"priority_fee"`
	GasOracle           GasOracle `toml:"gas_oracle"`
}

type GasOracle struct {
	MaxTimeout                    float64               `toml:"max_timeout"`
	RecommendedGasPriceMultiplier float64               `toml:"recommended_gas_price_multiplier"`
	LatestGasPriceOptions         LatestGasPriceOptions `toml:"latest_gas_price_options"`
}

func (g GasOracle) Timeout() time.Duration {
	return seconds(g.MaxTimeout)
}

type LatestGasPriceOptions struct {
	Percentile             float64 `toml:"percentile"`
	MinTransactionCount    int     `toml:"min_transaction_count"`
	PastToCompareInBlocks  uint64  `toml:"past_to_compare_in_blocks"`
	MaxDeviationMultiplier float64 `toml:"max_deviation_multiplier"`
}

// Triggers holds the update groups, keyed by chain id then sponsor address.
type Triggers struct {
	DataFeedUpdates map[string]map[common.Address]SponsorTriggers
}

type SponsorTriggers struct {
	UpdateInterval float64            `toml:"update_interval"`
	Beacons        []BeaconTrigger    `toml:"beacons"`
	BeaconSets     []BeaconSetTrigger `toml:"beacon_sets"`
}

func (t SponsorTriggers) UpdatePeriod() time.Duration {
	return seconds(t.UpdateInterval)
}

type BeaconTrigger struct {
	BeaconID           common.Hash `toml:"beacon_id"`
	DeviationThreshold float64     `toml:"deviation_threshold"`
	HeartbeatInterval  uint64      `toml:"heartbeat_interval"`
}

type BeaconSetTrigger struct {
	BeaconSetID        common.Hash `toml:"beacon_set_id"`
	DeviationThreshold float64     `toml:"deviation_threshold"`
	HeartbeatInterval  uint64      `toml:"heartbeat_interval"`
}

type fileConfig struct {
	KeeperMnemonic string                   `toml:"keeper_mnemonic"`
	Log            LogConfig                `toml:"log"`
	Telemetry      TelemetryConfig          `toml:"telemetry"`
	Beacons        map[string]Beacon        `toml:"beacons"`
	BeaconSets     map[string][]common.Hash `toml:"beacon_sets"`
	Templates      map[string]Template      `toml:"templates"`
	Gateways       map[string][]Gateway     `toml:"gateways"`
	Chains         map[string]Chain         `toml:"chains"`
	Triggers       struct {
		DataFeedUpdates map[string]map[string]SponsorTriggers `toml:"data_feed_updates"`
	} `toml:"triggers"`
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// DefaultHome returns ~/.feedkeeper.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".feedkeeper"
	}

	return filepath.Join(home, ".feedkeeper")
}

// Load reads the TOML config at path, interpolates ${NAME} placeholders from the
// secrets file (then the process environment) and validates the result.
func Load(home, path, secretsPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	secrets, err := readSecrets(secretsPath)
	if err != nil {
		return nil, err
	}

	data, err = interpolate(data, secrets)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Home = home

	log.Infof("Loaded config from %s", path)
	return cfg, nil
}

// Parse decodes already interpolated TOML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("failed to parse TOML: %s", strict.String())
		}
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg, err := fc.resolve()
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readSecrets(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]string{}, nil
	}

	secrets, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	return secrets, nil
}

func interpolate(data []byte, secrets map[string]string) ([]byte, error) {
	var missing []string

	out := placeholder.ReplaceAllFunc(data, func(m []byte) []byte {
		name := string(placeholder.FindSubmatch(m)[1])
		if v, ok := secrets[name]; ok {
			return []byte(v)
		}
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		missing = append(missing, name)
		return m
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("unresolved secrets: %v", missing)
	}

	return out, nil
}

func (fc fileConfig) resolve() (*Config, error) {
	cfg := &Config{
		KeeperMnemonic: fc.KeeperMnemonic,
		Log:            fc.Log,
		Telemetry:      fc.Telemetry,
		Beacons:        make(map[common.Hash]Beacon, len(fc.Beacons)),
		BeaconSets:     make(map[common.Hash][]common.Hash, len(fc.BeaconSets)),
		Templates:      make(map[common.Hash]Template, len(fc.Templates)),
		Gateways:       make(map[common.Address][]Gateway, len(fc.Gateways)),
		Chains:         fc.Chains,
		Triggers: Triggers{
			DataFeedUpdates: make(map[string]map[common.Address]SponsorTriggers, len(fc.Triggers.DataFeedUpdates)),
		},
	}
	if cfg.Chains == nil {
		cfg.Chains = map[string]Chain{}
	}

	for k, v := range fc.Beacons {
		id, err := parseHash(k)
		if err != nil {
			return nil, fmt.Errorf("beacons: %w", err)
		}
		cfg.Beacons[id] = v
	}

	for k, v := range fc.BeaconSets {
		id, err := parseHash(k)
		if err != nil {
			return nil, fmt.Errorf("beacon_sets: %w", err)
		}
		cfg.BeaconSets[id] = v
	}

	for k, v := range fc.Templates {
		id, err := parseHash(k)
		if err != nil {
			return nil, fmt.Errorf("templates: %w", err)
		}
		cfg.Templates[id] = v
	}

	for k, v := range fc.Gateways {
		if !common.IsHexAddress(k) {
			return nil, fmt.Errorf("gateways: invalid airnode address %q", k)
		}
		cfg.Gateways[common.HexToAddress(k)] = v
	}

	for chainID, sponsors := range fc.Triggers.DataFeedUpdates {
		group := make(map[common.Address]SponsorTriggers, len(sponsors))
		for k, v := range sponsors {
			if !common.IsHexAddress(k) {
				return nil, fmt.Errorf("triggers: invalid sponsor address %q on chain %s", k, chainID)
			}
			group[common.HexToAddress(k)] = v
		}
		cfg.Triggers.DataFeedUpdates[chainID] = group
	}

	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Format == "" {
		cfg.Log.Format = "plain"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Telemetry.HealthCheckInterval == 0 {
		cfg.Telemetry.HealthCheckInterval = 30
	}

	for id, chain := range cfg.Chains {
		opts := &chain.Options
		if opts.TxType == "" {
			opts.TxType = TxTypeLegacy
		}
		if opts.FulfillmentGasLimit == 0 {
			opts.FulfillmentGasLimit = 500_000
		}
		if opts.BaseFeeMultiplier == 0 {
			opts.BaseFeeMultiplier = 2
		}
		if opts.PriorityFee.Unit == "" && opts.PriorityFee.Value == 0 {
			opts.PriorityFee = Amount{Value: 3.12, Unit: "gwei"}
		}

		oracle := &opts.GasOracle
		if oracle.MaxTimeout == 0 {
			oracle.MaxTimeout = 1
		}
		if oracle.RecommendedGasPriceMultiplier == 0 {
			oracle.RecommendedGasPriceMultiplier = 1
		}
		latest := &oracle.LatestGasPriceOptions
		if latest.Percentile == 0 {
			latest.Percentile = 60
		}
		if latest.MinTransactionCount == 0 {
			latest.MinTransactionCount = 20
		}
		if latest.PastToCompareInBlocks == 0 {
			latest.PastToCompareInBlocks = 20
		}
		if latest.MaxDeviationMultiplier == 0 {
			latest.MaxDeviationMultiplier = 2
		}

		cfg.Chains[id] = chain
	}
}

// BeaconIDsToFetch returns the sorted ids of every configured beacon referenced by a
// trigger, either directly or as a beacon set member.
func (cfg *Config) BeaconIDsToFetch() []common.Hash {
	seen := map[common.Hash]struct{}{}
	add := func(id common.Hash) {
		if _, ok := cfg.Beacons[id]; ok {
			seen[id] = struct{}{}
		}
	}

	for _, sponsors := range cfg.Triggers.DataFeedUpdates {
		for _, triggers := range sponsors {
			for _, t := range triggers.Beacons {
				add(t.BeaconID)
			}
			for _, t := range triggers.BeaconSets {
				for _, member := range cfg.BeaconSets[t.BeaconSetID] {
					add(member)
				}
			}
		}
	}

	ids := make([]common.Hash, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	return ids
}

func (cfg *Config) Print() {
	log.Infof("%-15s: %s", "Home", cfg.Home)
	log.Infof("%-15s: %d", "Beacons", len(cfg.Beacons))
	log.Infof("%-15s: %d", "Beacon Sets", len(cfg.BeaconSets))
	log.Infof("%-15s: %d", "Templates", len(cfg.Templates))
	log.Infof("%-15s: %d", "Airnodes", len(cfg.Gateways))
	for id, chain := range cfg.Chains {
		log.Infof("%-15s: %s (%d providers, %s)", "Chain", id, len(chain.Providers), chain.Options.TxType)
	}
	for chainID, sponsors := range cfg.Triggers.DataFeedUpdates {
		for sponsor, t := range sponsors {
			log.Infof("%-15s: chain %s sponsor %s, %d beacons, %d beacon sets every %.1fs",
				"Update Group", chainID, sponsor.Hex(), len(t.Beacons), len(t.BeaconSets), t.UpdateInterval)
		}
	}
	if cfg.Telemetry.ListenAddress != "" {
		log.Infof("%-15s: %s", "Telemetry", cfg.Telemetry.ListenAddress)
	}
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid bytes32 id %q", s)
	}

	return common.BytesToHash(b), nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
