// Package config provides configuration management for the condor engine.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/scranton_condor/internal/orders"
	"github.com/eddiefleurent/scranton_condor/internal/portfolio"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
)

// Storage formats.
const (
	FormatJSON   = "json"
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
	FormatMemory = "memory"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Risk        RiskConfig        `yaml:"risk"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode      string `yaml:"mode"`       // paper
	LogLevel  string `yaml:"log_level"`  // debug | info | warn | error
	LogFormat string `yaml:"log_format"` // text | json
}

// BrokerConfig defines the paper venue and its synthetic market.
type BrokerConfig struct {
	Provider        string  `yaml:"provider"` // paper
	AutoFill        bool    `yaml:"auto_fill"`
	CircuitBreaker  bool    `yaml:"circuit_breaker"`
	CallTimeout     string  `yaml:"call_timeout"`
	Spot            float64 `yaml:"spot"`
	IV              float64 `yaml:"iv"`
	StrikeInterval  float64 `yaml:"strike_interval"`
	HalfSpread      float64 `yaml:"half_spread"`
	StrikesEachSide int     `yaml:"strikes_each_side"`
	ExpiryDays      int     `yaml:"expiry_days"`
}

// ScheduleConfig defines the session and the engine cadence.
type ScheduleConfig struct {
	TickInterval           string `yaml:"tick_interval"`
	Timezone               string `yaml:"timezone"`      // e.g., "America/New_York"
	SessionOpen            string `yaml:"session_open"`  // "HH:MM"
	SessionClose           string `yaml:"session_close"` // "HH:MM"
	StartAfterOpenMinutes  int    `yaml:"start_after_open_minutes"`
	StopBeforeCloseMinutes int    `yaml:"stop_before_close_minutes"`
	FailsafeCron           string `yaml:"failsafe_cron"` // evaluated in Timezone, empty disables
}

// StrategyConfig defines the condor selection, scoring and exit parameters.
type StrategyConfig struct {
	Symbol    string                   `yaml:"symbol"`
	Quantity  int                      `yaml:"quantity"`
	Selection strategy.SelectionConfig `yaml:"selection"`
	Scoring   strategy.ScoringConfig   `yaml:"scoring"`
	Exit      orders.ExitConfig        `yaml:"exit"`
}

// RiskConfig defines admission limits.
type RiskConfig struct {
	MaxOpenPositions int `yaml:"max_open_positions"`
	MaxTradesPerDay  int `yaml:"max_trades_per_day"`
	MinGroupSamples  int `yaml:"min_group_samples"`
}

// StorageConfig defines where end-of-run records go.
type StorageConfig struct {
	Format string `yaml:"format"` // json | csv | sqlite | memory
	Path   string `yaml:"path"`
}

// DashboardConfig defines the read-only HTTP API.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"` // optional, checked on /api routes
}

// Default returns the configuration used for every key a file leaves out.
func Default() Config {
	return Config{
		Environment: EnvironmentConfig{Mode: "paper", LogLevel: "info", LogFormat: "text"},
		Broker: BrokerConfig{
			Provider:        "paper",
			AutoFill:        true,
			CircuitBreaker:  true,
			CallTimeout:     "5s",
			StrikeInterval:  1,
			HalfSpread:      0.02,
			StrikesEachSide: 40,
			ExpiryDays:      5,
		},
		Schedule: ScheduleConfig{
			TickInterval:           "1m",
			Timezone:               "America/New_York",
			SessionOpen:            "09:30",
			SessionClose:           "16:00",
			StartAfterOpenMinutes:  30,
			StopBeforeCloseMinutes: 60,
			FailsafeCron:           "50 15 * * 1-5",
		},
		Strategy: StrategyConfig{
			Symbol:    "SPY",
			Quantity:  1,
			Selection: strategy.DefaultSelectionConfig,
			Scoring:   strategy.DefaultScoringConfig,
			Exit:      orders.DefaultExitConfig,
		},
		Risk:      RiskConfig{MaxOpenPositions: 5, MaxTradesPerDay: 1, MinGroupSamples: 5},
		Storage:   StorageConfig{Format: FormatJSON, Path: "data/condor"},
		Dashboard: DashboardConfig{Enabled: false, Addr: ":8080"},
	}
}

// Load reads and parses the configuration file from the specified path. Keys missing from the
// file keep their Default value.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	config := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	c.normalize()

	if c.Environment.Mode != "paper" {
		return fmt.Errorf("environment.mode must be 'paper'")
	}
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}
	if c.Environment.LogFormat != "text" && c.Environment.LogFormat != "json" {
		return fmt.Errorf("environment.log_format must be 'text' or 'json'")
	}

	if c.Broker.Provider != "paper" {
		return fmt.Errorf("broker.provider must be 'paper'")
	}
	if _, err := time.ParseDuration(c.Broker.CallTimeout); err != nil {
		return fmt.Errorf("broker.call_timeout invalid: %w", err)
	}
	if c.Broker.Spot < 0 || c.Broker.IV < 0 {
		return fmt.Errorf("broker.spot and broker.iv must be >= 0")
	}

	if c.Strategy.Symbol == "" {
		return fmt.Errorf("strategy.symbol is required")
	}
	if c.Strategy.Quantity <= 0 {
		return fmt.Errorf("strategy.quantity must be > 0")
	}
	sel := c.Strategy.Selection
	if !sel.Mode.Valid() {
		return fmt.Errorf("strategy.selection.mode must be variable, fixed_width or fixed_delta")
	}
	if !sel.CreditMode.Valid() {
		return fmt.Errorf("strategy.selection.credit_mode must be mid or conservative")
	}
	for name, r := range map[string]strategy.Range{
		"dte_range":        sel.DTERange,
		"call_delta_range": sel.CallDeltaRange,
		"put_delta_range":  sel.PutDeltaRange,
		"width_range":      sel.WidthRange,
	} {
		if r.Min > r.Max {
			return fmt.Errorf("strategy.selection.%s must have min <= max", name)
		}
	}
	if sel.DTERange.Min < 0 {
		return fmt.Errorf("strategy.selection.dte_range must be >= 0")
	}
	if sel.CallDeltaRange.Min < 0 || sel.PutDeltaRange.Max > 0 {
		return fmt.Errorf("strategy.selection call deltas must be positive and put deltas negative")
	}
	if sel.WidthRange.Min <= 0 {
		return fmt.Errorf("strategy.selection.width_range must be positive")
	}
	if sel.Mode == strategy.ModeFixedWidth && sel.FixedWidth <= 0 {
		return fmt.Errorf("strategy.selection.fixed_width must be > 0 in fixed_width mode")
	}
	if sel.MaxRelSpread <= 0 {
		return fmt.Errorf("strategy.selection.max_rel_spread must be > 0")
	}

	sc := c.Strategy.Scoring
	if sc.EMBuffer < 0 || sc.MinRR < 0 || sc.MinVerticalCredit < 0 || sc.MinCreditRatio < 0 {
		return fmt.Errorf("strategy.scoring gates must be >= 0")
	}
	if sc.MissingDeltaScore < 0 || sc.MissingDeltaScore > 1 {
		return fmt.Errorf("strategy.scoring.missing_delta_score must be in [0,1]")
	}

	ex := c.Strategy.Exit
	if ex.ProfitTargetPct <= 0 {
		return fmt.Errorf("strategy.exit.profit_target_pct must be > 0")
	}
	if ex.MaxLossPct >= 0 {
		return fmt.Errorf("strategy.exit.max_loss_pct must be < 0")
	}
	if ex.CloseBeforeCloseMinutes < 0 {
		return fmt.Errorf("strategy.exit.close_before_close_minutes must be >= 0")
	}

	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be > 0")
	}
	if c.Risk.MaxTradesPerDay < 0 {
		return fmt.Errorf("risk.max_trades_per_day must be >= 0")
	}

	switch c.Storage.Format {
	case FormatJSON, FormatCSV, FormatSQLite, FormatMemory:
	default:
		return fmt.Errorf("storage.format must be json, csv, sqlite or memory")
	}
	if c.Storage.Format != FormatMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for %s", c.Storage.Format)
	}

	if d, err := time.ParseDuration(c.Schedule.TickInterval); err != nil || d <= 0 {
		return fmt.Errorf("schedule.tick_interval must be a positive duration")
	}
	if _, err := c.Session(); err != nil {
		return err
	}
	if c.Schedule.FailsafeCron != "" {
		if _, err := cron.ParseStandard(c.Schedule.FailsafeCron); err != nil {
			return fmt.Errorf("schedule.failsafe_cron invalid: %w", err)
		}
	}
	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		return fmt.Errorf("dashboard.addr is required when the dashboard is enabled")
	}
	return nil
}

// normalize fills values a file explicitly blanked.
func (c *Config) normalize() {
	def := Default()
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = def.Environment.LogLevel
	}
	if c.Environment.LogFormat == "" {
		c.Environment.LogFormat = def.Environment.LogFormat
	}
	if c.Broker.CallTimeout == "" {
		c.Broker.CallTimeout = def.Broker.CallTimeout
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = def.Schedule.Timezone
	}
	if c.Strategy.Selection.MaxRelSpread == 0 {
		c.Strategy.Selection.MaxRelSpread = def.Strategy.Selection.MaxRelSpread
	}
	if c.Risk.MinGroupSamples <= 0 {
		c.Risk.MinGroupSamples = def.Risk.MinGroupSamples
	}
}

// IsPaperTrading returns true if the engine trades against the in-process venue.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// GetTickInterval returns the configured tick interval, 1m if malformed.
func (c *Config) GetTickInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.TickInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// GetCallTimeout returns the broker call timeout, 5s if malformed.
func (c *Config) GetCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Broker.CallTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// Session builds the trading session clock.
func (c *Config) Session() (*Session, error) {
	return NewSession(c.Schedule.Timezone, c.Schedule.SessionOpen, c.Schedule.SessionClose,
		c.Schedule.StartAfterOpenMinutes, c.Schedule.StopBeforeCloseMinutes)
}

// FinderConfig returns the candidate finder settings for a session.
func (c *Config) FinderConfig(s *Session) strategy.FinderConfig {
	return strategy.FinderConfig{
		Location:     s.Location(),
		Selection:    c.Strategy.Selection,
		Scoring:      c.Strategy.Scoring,
		SessionClose: s.CloseOffset(),
	}
}

// OrdersConfig returns the order manager settings.
func (c *Config) OrdersConfig() orders.Config {
	cfg := orders.DefaultConfig
	cfg.Exit = c.Strategy.Exit
	cfg.Quantity = c.Strategy.Quantity
	cfg.CallTimeout = c.GetCallTimeout()
	return cfg
}

// PortfolioConfig returns the admission limits.
func (c *Config) PortfolioConfig() portfolio.Config {
	return portfolio.Config{
		MaxOpenPositions: c.Risk.MaxOpenPositions,
		MaxTradesPerDay:  c.Risk.MaxTradesPerDay,
		MinGroupSamples:  c.Risk.MinGroupSamples,
	}
}
