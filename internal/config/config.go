package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Magpie.
type Config struct {
	General      GeneralConfig      `yaml:"general"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Risk         RiskConfig         `yaml:"risk"`
	Strategies   StrategiesConfig   `yaml:"strategies"`
	Feeds        FeedsConfig        `yaml:"feeds"`
	Executor     ExecutorConfig     `yaml:"executor"`
	Store        StoreConfig        `yaml:"store"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Ops          OpsConfig          `yaml:"ops"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	DryRun      bool   `yaml:"dry_run"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type GatewayConfig struct {
	MarketDataURL    string        `yaml:"market_data_url"`
	RiskCheckURL     string        `yaml:"risk_check_url"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	Retry            RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Jitter      float64       `yaml:"jitter"` // fraction of the delay, 0-1
}

type RiskConfig struct {
	MaxExposureFraction float64       `yaml:"max_exposure_fraction"` // of wallet balance
	DailyLossLimit      float64       `yaml:"daily_loss_limit"`      // fraction of daily start balance
	PerTradeCapSOL      float64       `yaml:"per_trade_cap_sol"`
	MinTradeSOL         float64       `yaml:"min_trade_sol"`
	AggressiveFlatten   bool          `yaml:"aggressive_flatten"`
	RefreshInterval     time.Duration `yaml:"refresh_interval"`
}

// StrategiesConfig holds one StrategyConfig per variant, built once at
// startup and passed explicitly to the components that need it.
type StrategiesConfig struct {
	UltraEarly     StrategyConfig `yaml:"ultra_early"`
	TrendAnalyst   StrategyConfig `yaml:"trend_analyst"`
	WhaleCommunity StrategyConfig `yaml:"whale_community"`
}

// StrategyConfig is the full parameter set for one strategy variant:
// admission thresholds, sizing base, and exit rules.
type StrategyConfig struct {
	BaseBuySOL      float64       `yaml:"base_buy_sol"`
	MinLiquidityUSD float64       `yaml:"min_liquidity_usd"`
	MaxPoolAge      time.Duration `yaml:"max_pool_age"`
	MinScore        float64       `yaml:"min_score"`
	MaxDailyTrades  int           `yaml:"max_daily_trades"` // 0 = unlimited
	MaxPositions    int           `yaml:"max_positions"`    // 0 = unlimited

	// Holder-distribution checks, zero = not enforced.
	MinHolders      int     `yaml:"min_holders"`
	MaxTopHolderPct float64 `yaml:"max_top_holder_pct"`

	Exits ExitRules `yaml:"exits"`
}

// ExitRules configures the exit policy for a strategy. Simple strategies set
// TakeProfitX; tiered strategies set Tiers and leave TakeProfitX at zero.
type ExitRules struct {
	TakeProfitX float64       `yaml:"take_profit_x"` // full close at entry*X
	StopLossX   float64       `yaml:"stop_loss_x"`   // full close at entry*X
	MaxHold     time.Duration `yaml:"max_hold"`      // 0 = disabled

	Tiers     []TPTier `yaml:"tiers"`       // cumulative caps, ascending ratios
	TrailPct  float64  `yaml:"trail_pct"`   // 0.15 = exit 15% below local high
	TrailArmX float64  `yaml:"trail_arm_x"` // trailing active once high > entry*X
}

// TPTier is a take-profit tier: once price reaches Ratio x entry, total sold
// percent is brought up to CapPct.
type TPTier struct {
	Ratio  float64 `yaml:"ratio"`
	CapPct float64 `yaml:"cap_pct"`
}

type FeedsConfig struct {
	Launchpad LaunchpadFeedConfig `yaml:"launchpad"`
	Trending  TrendingFeedConfig  `yaml:"trending"`
	Whales    WhaleFeedConfig     `yaml:"whales"`
}

type LaunchpadFeedConfig struct {
	Enabled        bool          `yaml:"enabled"`
	WSURL          string        `yaml:"ws_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

type TrendingFeedConfig struct {
	Enabled      bool          `yaml:"enabled"`
	SearchURL    string        `yaml:"search_url"`
	Query        string        `yaml:"query"`
	PollInterval time.Duration `yaml:"poll_interval"`
	TopN         int           `yaml:"top_n"`
}

type WhaleFeedConfig struct {
	Enabled      bool          `yaml:"enabled"`
	RPCURL       string        `yaml:"rpc_url"`
	Wallets      []string      `yaml:"wallets"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MinSignals   int           `yaml:"min_signals"` // distinct wallets before a token qualifies
}

type ExecutorConfig struct {
	AgentURL     string        `yaml:"agent_url"`
	CommandDelay time.Duration `yaml:"command_delay"` // minimum gap between commands
	SendTimeout  time.Duration `yaml:"send_timeout"`
}

type StoreConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
	LedgerEnabled bool   `yaml:"ledger_enabled"`
}

type OrchestratorConfig struct {
	IntakeBuffer      int           `yaml:"intake_buffer"`
	MarkInterval      time.Duration `yaml:"mark_interval"`
	WatchlistInterval time.Duration `yaml:"watchlist_interval"`
	WatchlistTTL      time.Duration `yaml:"watchlist_ttl"`
	PromoteMultiple   float64       `yaml:"promote_multiple"` // market-cap multiple that promotes a watch entry
}

type TelemetryConfig struct {
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	ActivityBuffer    int           `yaml:"activity_buffer"`
}

type OpsConfig struct {
	Port           int  `yaml:"port"`
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Risk.MaxExposureFraction <= 0 || c.Risk.MaxExposureFraction > 1 {
		return fmt.Errorf("risk.max_exposure_fraction must be in (0,1], got %v", c.Risk.MaxExposureFraction)
	}
	if c.Risk.DailyLossLimit <= 0 || c.Risk.DailyLossLimit > 1 {
		return fmt.Errorf("risk.daily_loss_limit must be in (0,1], got %v", c.Risk.DailyLossLimit)
	}
	for name, sc := range map[string]StrategyConfig{
		"ultra_early":     c.Strategies.UltraEarly,
		"trend_analyst":   c.Strategies.TrendAnalyst,
		"whale_community": c.Strategies.WhaleCommunity,
	} {
		if sc.BaseBuySOL <= 0 {
			return fmt.Errorf("strategies.%s.base_buy_sol must be positive", name)
		}
		if sc.Exits.StopLossX <= 0 || sc.Exits.StopLossX >= 1 {
			return fmt.Errorf("strategies.%s.exits.stop_loss_x must be in (0,1)", name)
		}
		prevRatio, prevCap := 1.0, 0.0
		for i, tier := range sc.Exits.Tiers {
			if tier.Ratio <= prevRatio {
				return fmt.Errorf("strategies.%s.exits.tiers[%d].ratio must ascend from above 1", name, i)
			}
			if tier.CapPct <= prevCap || tier.CapPct > 100 {
				return fmt.Errorf("strategies.%s.exits.tiers[%d].cap_pct must ascend to at most 100", name, i)
			}
			prevRatio, prevCap = tier.Ratio, tier.CapPct
		}
		if n := len(sc.Exits.Tiers); n > 0 && sc.Exits.Tiers[n-1].CapPct != 100 {
			return fmt.Errorf("strategies.%s.exits.tiers must end at cap_pct 100", name)
		}
	}
	if !c.General.DryRun && c.Executor.AgentURL == "" {
		return fmt.Errorf("executor.agent_url is required outside dry-run")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "magpie-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}

	if cfg.Gateway.RequestTimeout == 0 {
		cfg.Gateway.RequestTimeout = 10 * time.Second
	}
	if cfg.Gateway.CacheTTL == 0 {
		cfg.Gateway.CacheTTL = 30 * time.Second
	}
	if cfg.Gateway.BreakerThreshold == 0 {
		cfg.Gateway.BreakerThreshold = 5
	}
	if cfg.Gateway.BreakerCooldown == 0 {
		cfg.Gateway.BreakerCooldown = 5 * time.Minute
	}
	if cfg.Gateway.Retry.MaxAttempts == 0 {
		cfg.Gateway.Retry.MaxAttempts = 3
	}
	if cfg.Gateway.Retry.BaseDelay == 0 {
		cfg.Gateway.Retry.BaseDelay = time.Second
	}

	if cfg.Risk.MaxExposureFraction == 0 {
		cfg.Risk.MaxExposureFraction = 0.5
	}
	if cfg.Risk.DailyLossLimit == 0 {
		cfg.Risk.DailyLossLimit = 0.5
	}
	if cfg.Risk.PerTradeCapSOL == 0 {
		cfg.Risk.PerTradeCapSOL = 0.1
	}
	if cfg.Risk.MinTradeSOL == 0 {
		cfg.Risk.MinTradeSOL = 0.01
	}
	if cfg.Risk.RefreshInterval == 0 {
		cfg.Risk.RefreshInterval = time.Minute
	}

	if isZeroStrategy(cfg.Strategies.UltraEarly) {
		cfg.Strategies.UltraEarly = DefaultUltraEarly()
	}
	if isZeroStrategy(cfg.Strategies.TrendAnalyst) {
		cfg.Strategies.TrendAnalyst = DefaultTrendAnalyst()
	}
	if isZeroStrategy(cfg.Strategies.WhaleCommunity) {
		cfg.Strategies.WhaleCommunity = DefaultWhaleCommunity()
	}

	if cfg.Feeds.Launchpad.ReconnectDelay == 0 {
		cfg.Feeds.Launchpad.ReconnectDelay = 15 * time.Second
	}
	if cfg.Feeds.Launchpad.ReadTimeout == 0 {
		cfg.Feeds.Launchpad.ReadTimeout = 60 * time.Second
	}
	if cfg.Feeds.Trending.PollInterval == 0 {
		cfg.Feeds.Trending.PollInterval = 90 * time.Second
	}
	if cfg.Feeds.Trending.TopN == 0 {
		cfg.Feeds.Trending.TopN = 5
	}
	if cfg.Feeds.Whales.PollInterval == 0 {
		cfg.Feeds.Whales.PollInterval = 30 * time.Second
	}
	if cfg.Feeds.Whales.MinSignals == 0 {
		cfg.Feeds.Whales.MinSignals = 2
	}

	if cfg.Executor.CommandDelay == 0 {
		cfg.Executor.CommandDelay = 2 * time.Second
	}
	if cfg.Executor.SendTimeout == 0 {
		cfg.Executor.SendTimeout = 10 * time.Second
	}

	if cfg.Orchestrator.IntakeBuffer == 0 {
		cfg.Orchestrator.IntakeBuffer = 256
	}
	if cfg.Orchestrator.MarkInterval == 0 {
		cfg.Orchestrator.MarkInterval = 15 * time.Second
	}
	if cfg.Orchestrator.WatchlistInterval == 0 {
		cfg.Orchestrator.WatchlistInterval = 30 * time.Second
	}
	if cfg.Orchestrator.WatchlistTTL == 0 {
		cfg.Orchestrator.WatchlistTTL = 15 * time.Minute
	}
	if cfg.Orchestrator.PromoteMultiple == 0 {
		cfg.Orchestrator.PromoteMultiple = 2.0
	}

	if cfg.Telemetry.BroadcastInterval == 0 {
		cfg.Telemetry.BroadcastInterval = 2 * time.Second
	}
	if cfg.Telemetry.ActivityBuffer == 0 {
		cfg.Telemetry.ActivityBuffer = 1000
	}

	if cfg.Ops.Port == 0 {
		cfg.Ops.Port = 8080
	}
}

func isZeroStrategy(sc StrategyConfig) bool {
	return sc.BaseBuySOL == 0 && sc.MinScore == 0 && len(sc.Exits.Tiers) == 0
}

// DefaultUltraEarly returns the speed variant: brand-new pools, full exit at
// a single take-profit multiple, short bounded hold.
func DefaultUltraEarly() StrategyConfig {
	return StrategyConfig{
		BaseBuySOL:      0.05,
		MinLiquidityUSD: 5_000,
		MaxPoolAge:      5 * time.Minute,
		MinScore:        65,
		MaxDailyTrades:  20,
		MaxPositions:    10,
		Exits: ExitRules{
			TakeProfitX: 3.0,
			StopLossX:   0.5,
			MaxHold:     15 * time.Minute,
		},
	}
}

// DefaultTrendAnalyst returns the trending-surge variant: tiered partial
// take-profits with a trailing stop.
func DefaultTrendAnalyst() StrategyConfig {
	return StrategyConfig{
		BaseBuySOL:      0.05,
		MinLiquidityUSD: 10_000,
		MaxPoolAge:      30 * time.Minute,
		MinScore:        70,
		MaxPositions:    20,
		Exits: ExitRules{
			StopLossX: 0.7,
			Tiers: []TPTier{
				{Ratio: 1.5, CapPct: 30},
				{Ratio: 2.5, CapPct: 60},
				{Ratio: 5.0, CapPct: 100},
			},
			TrailPct:  0.15,
			TrailArmX: 1.5,
		},
	}
}

// DefaultWhaleCommunity returns the whale-follow variant: wider tiers,
// holder-distribution admission checks, bounded hold time.
func DefaultWhaleCommunity() StrategyConfig {
	return StrategyConfig{
		BaseBuySOL:      0.05,
		MinLiquidityUSD: 10_000,
		MaxPoolAge:      6 * time.Hour,
		MinScore:        60,
		MaxDailyTrades:  10,
		MaxPositions:    10,
		MinHolders:      100,
		MaxTopHolderPct: 15,
		Exits: ExitRules{
			StopLossX: 0.6,
			MaxHold:   time.Hour,
			Tiers: []TPTier{
				{Ratio: 2.0, CapPct: 30},
				{Ratio: 5.0, CapPct: 60},
				{Ratio: 10.0, CapPct: 100},
			},
			TrailPct:  0.25,
			TrailArmX: 1.5,
		},
	}
}
