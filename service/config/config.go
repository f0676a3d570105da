package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/poolsniper/service/detector"
	"github.com/brojonat/poolsniper/service/exit"
	"github.com/brojonat/poolsniper/service/ledger"
	"github.com/brojonat/poolsniper/service/qualifier"
	"github.com/brojonat/poolsniper/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

// RaydiumAMMv4 is the default program watched for new pools.
const RaydiumAMMv4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

// Sweep drivers.
const (
	SweepDriverTicker   = "ticker"
	SweepDriverTemporal = "temporal"
)

// Config holds all application configuration.
// Values come from the environment, optionally layered over the file named by CONFIG_FILE.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string
	Metrics    bool

	// Solana configuration
	SolanaRPCURL    string
	SolanaWSURL     string
	TargetProgramID string

	// Persistence
	StateFile   string
	TradesFile  string
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Temporal configuration
	SweepDriver       string
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Ledger
	InitialBudget   float64
	TradeSize       float64
	MaxPositions    int
	FeeRate         float64
	BuySlippageMin  float64
	BuySlippageMax  float64
	SellSlippageMin float64
	SellSlippageMax float64

	// Qualifier
	MaxPoolAge   time.Duration
	MinLiquidity float64

	// Exit strategy
	ProfitTarget      float64
	TrailingStop      float64
	TimeLimit         time.Duration
	ExitCheckInterval time.Duration

	// Lookups
	LookupTimeout       time.Duration
	DetectorConcurrency int
}

var defaults = map[string]string{
	"server_addr":          ":8080",
	"log_level":            "info",
	"metrics":              "true",
	"target_program_id":    RaydiumAMMv4,
	"state_file":           "data/positions.json",
	"trades_file":          "data/trades.jsonl",
	"sweep_driver":         SweepDriverTicker,
	"temporal_host":        "localhost:7233",
	"temporal_namespace":   "default",
	"temporal_task_queue":  "poolsniper-exit-sweep",
	"initial_budget":       "10",
	"trade_size":           "0.1",
	"max_positions":        "5",
	"fee_rate":             "0.0025",
	"buy_slippage_min":     "0.01",
	"buy_slippage_max":     "0.05",
	"sell_slippage_min":    "0.01",
	"sell_slippage_max":    "0.03",
	"max_pool_age":         "5m",
	"min_liquidity":        "10",
	"profit_target":        "0.15",
	"trailing_stop":        "0.05",
	"time_limit":           "60m",
	"exit_check_interval":  "10s",
	"lookup_timeout":       "10s",
	"detector_concurrency": "8",
}

// optional keys have no default but are still read from the environment.
var optional = []string{"solana_rpc_url", "solana_ws_url", "database_url", "nats_url", "config_file"}

// Load reads configuration and validates all fields.
// Returns an error listing every problem found.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range optional {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", strings.ToUpper(key), err)
		}
	}

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	p := &parser{v: v}
	cfg := &Config{
		ServerAddr:      v.GetString("server_addr"),
		LogLevel:        v.GetString("log_level"),
		Metrics:         p.boolean("metrics"),
		SolanaRPCURL:    v.GetString("solana_rpc_url"),
		SolanaWSURL:     v.GetString("solana_ws_url"),
		TargetProgramID: v.GetString("target_program_id"),

		StateFile:   v.GetString("state_file"),
		TradesFile:  v.GetString("trades_file"),
		DatabaseURL: v.GetString("database_url"),
		NATSURL:     v.GetString("nats_url"),

		SweepDriver:       strings.ToLower(v.GetString("sweep_driver")),
		TemporalHost:      v.GetString("temporal_host"),
		TemporalNamespace: v.GetString("temporal_namespace"),
		TemporalTaskQueue: v.GetString("temporal_task_queue"),

		InitialBudget:   p.float("initial_budget"),
		TradeSize:       p.float("trade_size"),
		MaxPositions:    p.integer("max_positions"),
		FeeRate:         p.float("fee_rate"),
		BuySlippageMin:  p.float("buy_slippage_min"),
		BuySlippageMax:  p.float("buy_slippage_max"),
		SellSlippageMin: p.float("sell_slippage_min"),
		SellSlippageMax: p.float("sell_slippage_max"),

		MaxPoolAge:   p.duration("max_pool_age"),
		MinLiquidity: p.float("min_liquidity"),

		ProfitTarget:      p.float("profit_target"),
		TrailingStop:      p.float("trailing_stop"),
		TimeLimit:         p.duration("time_limit"),
		ExitCheckInterval: p.duration("exit_check_interval"),

		LookupTimeout:       p.duration("lookup_timeout"),
		DetectorConcurrency: p.integer("detector_concurrency"),
	}

	if cfg.SolanaRPCURL == "" {
		p.errs = append(p.errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}
	if cfg.SolanaWSURL == "" && cfg.SolanaRPCURL != "" {
		cfg.SolanaWSURL = solana.WebsocketURL(cfg.SolanaRPCURL)
	}

	if len(p.errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", p.errs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}
	if _, err := solanago.PublicKeyFromBase58(c.TargetProgramID); err != nil {
		errs = append(errs, fmt.Errorf("TargetProgramID %q is not a valid public key: %w", c.TargetProgramID, err))
	}

	if !(c.TradeSize > 0) {
		errs = append(errs, fmt.Errorf("TradeSize must be positive"))
	}
	if c.InitialBudget < c.TradeSize {
		errs = append(errs, fmt.Errorf("InitialBudget (%v) cannot be less than TradeSize (%v)", c.InitialBudget, c.TradeSize))
	}
	if c.MaxPositions < 1 {
		errs = append(errs, fmt.Errorf("MaxPositions must be at least 1"))
	}

	fractions := []struct {
		name  string
		value float64
	}{
		{"FeeRate", c.FeeRate},
		{"BuySlippageMin", c.BuySlippageMin},
		{"BuySlippageMax", c.BuySlippageMax},
		{"SellSlippageMin", c.SellSlippageMin},
		{"SellSlippageMax", c.SellSlippageMax},
		{"ProfitTarget", c.ProfitTarget},
		{"TrailingStop", c.TrailingStop},
	}
	for _, f := range fractions {
		if f.value < 0 || f.value >= 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0, 1), got %v", f.name, f.value))
		}
	}
	if c.BuySlippageMin > c.BuySlippageMax {
		errs = append(errs, fmt.Errorf("BuySlippageMin cannot be greater than BuySlippageMax"))
	}
	if c.SellSlippageMin > c.SellSlippageMax {
		errs = append(errs, fmt.Errorf("SellSlippageMin cannot be greater than SellSlippageMax"))
	}

	if c.MaxPoolAge <= 0 {
		errs = append(errs, fmt.Errorf("MaxPoolAge must be positive"))
	}
	if c.MinLiquidity < 0 {
		errs = append(errs, fmt.Errorf("MinLiquidity cannot be negative"))
	}
	if c.TimeLimit <= 0 {
		errs = append(errs, fmt.Errorf("TimeLimit must be positive"))
	}
	if c.ExitCheckInterval < time.Second {
		errs = append(errs, fmt.Errorf("ExitCheckInterval must be at least 1 second"))
	}
	if c.LookupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("LookupTimeout must be positive"))
	}
	if c.DetectorConcurrency < 1 {
		errs = append(errs, fmt.Errorf("DetectorConcurrency must be at least 1"))
	}

	switch c.SweepDriver {
	case SweepDriverTicker:
	case SweepDriverTemporal:
		if c.TemporalHost == "" {
			errs = append(errs, fmt.Errorf("TemporalHost is required when SweepDriver is temporal"))
		}
		if c.TemporalNamespace == "" {
			errs = append(errs, fmt.Errorf("TemporalNamespace is required when SweepDriver is temporal"))
		}
		if c.TemporalTaskQueue == "" {
			errs = append(errs, fmt.Errorf("TemporalTaskQueue is required when SweepDriver is temporal"))
		}
	default:
		errs = append(errs, fmt.Errorf("SweepDriver must be %q or %q, got %q", SweepDriverTicker, SweepDriverTemporal, c.SweepDriver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// ProgramID returns the watched program. Call after Validate.
func (c *Config) ProgramID() solanago.PublicKey {
	return solanago.MustPublicKeyFromBase58(c.TargetProgramID)
}

// LedgerOptions maps the ledger settings.
func (c *Config) LedgerOptions() ledger.Options {
	return ledger.Options{
		InitialBudget: c.InitialBudget,
		TradeSize:     c.TradeSize,
		MaxPositions:  c.MaxPositions,
		FeeRate:       c.FeeRate,
		BuySlippage:   ledger.SlippageBand{Min: c.BuySlippageMin, Max: c.BuySlippageMax},
		SellSlippage:  ledger.SlippageBand{Min: c.SellSlippageMin, Max: c.SellSlippageMax},
	}
}

// QualifierOptions maps the qualification thresholds.
func (c *Config) QualifierOptions() qualifier.Options {
	opts := qualifier.DefaultOptions()
	opts.MaxPoolAge = c.MaxPoolAge
	opts.MinLiquidity = c.MinLiquidity
	opts.LookupTimeout = c.LookupTimeout
	return opts
}

// ExitRules maps the exit strategy settings.
func (c *Config) ExitRules() exit.Rules {
	return exit.Rules{
		ProfitTarget: c.ProfitTarget,
		TrailingStop: c.TrailingStop,
		TimeLimit:    c.TimeLimit,
	}
}

// DetectorOptions maps the detector settings.
func (c *Config) DetectorOptions() detector.Options {
	return detector.Options{
		Program:       c.ProgramID(),
		Concurrency:   int64(c.DetectorConcurrency),
		LookupTimeout: c.LookupTimeout,
	}
}

// parser collects conversion errors so Load can report them together.
type parser struct {
	v    *viper.Viper
	errs []error
}

func (p *parser) float(key string) float64 {
	raw := p.v.GetString(key)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", strings.ToUpper(key), raw))
	}
	return f
}

func (p *parser) integer(key string) int {
	raw := p.v.GetString(key)
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", strings.ToUpper(key), raw))
	}
	return n
}

func (p *parser) duration(key string) time.Duration {
	raw := p.v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q: %w", strings.ToUpper(key), raw, err))
	}
	return d
}

func (p *parser) boolean(key string) bool {
	raw := p.v.GetString(key)
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", strings.ToUpper(key), raw))
	}
	return b
}
