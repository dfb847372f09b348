package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/strategy"
)

func TestLoad(t *testing.T) {
	t.Setenv("CONDOR_SYMBOL", "QQQ")
	configPath := filepath.Join("..", "..", "config.yaml.example")
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected config to load successfully from example file, got error: %v", err)
	}
	if cfg.Strategy.Symbol != "QQQ" {
		t.Errorf("Expected symbol expanded from environment, got %q", cfg.Strategy.Symbol)
	}
	if cfg.Strategy.Selection.WidthRange != (strategy.Range{Min: 2, Max: 10}) {
		t.Errorf("Unexpected width range %+v", cfg.Strategy.Selection.WidthRange)
	}
	if !cfg.IsPaperTrading() {
		t.Error("Expected paper trading")
	}
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("CONDOR_SYMBOL", "IWM")
	cfg, err := Parse([]byte("strategy:\n  symbol: ${CONDOR_SYMBOL}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Strategy.Symbol != "IWM" {
		t.Errorf("Expected symbol expanded from environment, got %q", cfg.Strategy.Symbol)
	}

	t.Setenv("CONDOR_SYMBOL", "")
	if _, err := Parse([]byte("strategy:\n  symbol: ${CONDOR_SYMBOL}\n")); err == nil {
		t.Error("Expected an unset symbol variable to fail validation")
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestParse_EmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Expected defaults to validate, got: %v", err)
	}
	if cfg.Strategy.Scoring != strategy.DefaultScoringConfig {
		t.Errorf("Expected default scoring, got %+v", cfg.Strategy.Scoring)
	}
	if cfg.GetTickInterval() != time.Minute {
		t.Errorf("Expected 1m tick, got %v", cfg.GetTickInterval())
	}
	if cfg.Risk.MaxTradesPerDay != 1 || cfg.Risk.MaxOpenPositions != 5 {
		t.Errorf("Unexpected risk defaults %+v", cfg.Risk)
	}
}

func TestParse_PartialOverride(t *testing.T) {
	cfg, err := Parse([]byte("strategy:\n  exit:\n    profit_target_pct: 30\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Strategy.Exit.ProfitTargetPct != 30 {
		t.Errorf("Expected override, got %v", cfg.Strategy.Exit.ProfitTargetPct)
	}
	if cfg.Strategy.Exit.MaxLossPct != -50 {
		t.Errorf("Expected sibling default kept, got %v", cfg.Strategy.Exit.MaxLossPct)
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("strategy:\n  delta: 16\n"))
	if err == nil {
		t.Fatal("Expected unknown field to be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"live mode", func(c *Config) { c.Environment.Mode = "live" }, "environment.mode"},
		{"bad log level", func(c *Config) { c.Environment.LogLevel = "loud" }, "environment.log_level"},
		{"blank log level normalized", func(c *Config) { c.Environment.LogLevel = "" }, ""},
		{"no symbol", func(c *Config) { c.Strategy.Symbol = "" }, "strategy.symbol"},
		{"bad mode", func(c *Config) { c.Strategy.Selection.Mode = "random" }, "strategy.selection.mode"},
		{"inverted width", func(c *Config) { c.Strategy.Selection.WidthRange = strategy.Range{Min: 5, Max: 2} }, "width_range"},
		{"positive put delta", func(c *Config) {
			c.Strategy.Selection.PutDeltaRange = strategy.Range{Min: 0.1, Max: 0.2}
		}, "put deltas negative"},
		{"fixed width without width", func(c *Config) { c.Strategy.Selection.Mode = strategy.ModeFixedWidth }, "fixed_width"},
		{"missing delta score", func(c *Config) { c.Strategy.Scoring.MissingDeltaScore = 2 }, "missing_delta_score"},
		{"positive max loss", func(c *Config) { c.Strategy.Exit.MaxLossPct = 10 }, "max_loss_pct"},
		{"zero caps", func(c *Config) { c.Risk.MaxOpenPositions = 0 }, "risk.max_open_positions"},
		{"negative trades per day", func(c *Config) { c.Risk.MaxTradesPerDay = -1 }, "risk.max_trades_per_day"},
		{"zero trades per day", func(c *Config) { c.Risk.MaxTradesPerDay = 0 }, ""},
		{"bad storage", func(c *Config) { c.Storage.Format = "parquet" }, "storage.format"},
		{"memory without path", func(c *Config) { c.Storage.Format = FormatMemory; c.Storage.Path = "" }, ""},
		{"sqlite without path", func(c *Config) { c.Storage.Format = FormatSQLite; c.Storage.Path = "" }, "storage.path"},
		{"bad tick", func(c *Config) { c.Schedule.TickInterval = "soon" }, "schedule.tick_interval"},
		{"inverted session", func(c *Config) { c.Schedule.SessionOpen = "17:00" }, "session window"},
		{"bad failsafe cron", func(c *Config) { c.Schedule.FailsafeCron = "every day" }, "failsafe_cron"},
		{"failsafe disabled", func(c *Config) { c.Schedule.FailsafeCron = "" }, ""},
		{"empty entry window", func(c *Config) { c.Schedule.StartAfterOpenMinutes = 400 }, "entry window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid config, got error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error message to contain '%s', got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_DerivedSettings(t *testing.T) {
	cfg := Default()
	cfg.Broker.CallTimeout = "2s"
	cfg.Strategy.Quantity = 3

	oc := cfg.OrdersConfig()
	if oc.Quantity != 3 || oc.CallTimeout != 2*time.Second {
		t.Errorf("Unexpected orders config %+v", oc)
	}
	if oc.Exit != cfg.Strategy.Exit {
		t.Errorf("Exit rules not carried over")
	}

	cfg.Schedule.Timezone = "UTC"
	s, err := cfg.Session()
	if err != nil {
		t.Fatal(err)
	}
	fc := cfg.FinderConfig(s)
	if fc.SessionClose != 16*time.Hour || fc.Location != time.UTC {
		t.Errorf("Unexpected finder config %+v", fc)
	}

	cfg.Risk.MaxTradesPerDay = 2
	if pc := cfg.PortfolioConfig(); pc.MaxTradesPerDay != 2 || pc.MaxOpenPositions != 5 || pc.MinGroupSamples != 5 {
		t.Errorf("Unexpected portfolio config %+v", pc)
	}

	cfg.Broker.CallTimeout = "nope"
	if cfg.GetCallTimeout() != 5*time.Second {
		t.Errorf("Expected fallback call timeout")
	}
}
