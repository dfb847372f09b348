package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
	"github.com/eddiefleurent/scranton_condor/internal/config"
	"github.com/eddiefleurent/scranton_condor/internal/dashboard"
	"github.com/eddiefleurent/scranton_condor/internal/mock"
	"github.com/eddiefleurent/scranton_condor/internal/orders"
	"github.com/eddiefleurent/scranton_condor/internal/portfolio"
	"github.com/eddiefleurent/scranton_condor/internal/retry"
	"github.com/eddiefleurent/scranton_condor/internal/storage"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
)

// Bot is the paper trading engine: one goroutine drives ticks, order events and the failsafe.
type Bot struct {
	config    *config.Config
	session   *config.Session
	logger    *logrus.Logger
	data      *mock.DataProvider
	venue     *mock.PaperBroker
	events    <-chan broker.OrderEvent
	cycle     *TradingCycle
	orders    *orders.Manager
	portfolio *portfolio.Manager
	sink      storage.Sink
	failsafe  chan struct{}
	now       func() time.Time
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "condor",
		Short:        "Paper trade intraday iron condors",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "config.yaml", "Path to configuration file")
	root.PersistentFlags().String("env-file", ".env", "Optional dotenv file loaded before the config")

	root.AddCommand(newRunCmd(), newScanCmd(), newSimulateCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading engine until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfigFromFlags(cmd)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			bot, err := NewBot(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := bot.Close(); err != nil {
					logger.WithError(err).Warn("Failed to close storage")
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.WithFields(logrus.Fields{
				"mode":   cfg.Environment.Mode,
				"symbol": cfg.Strategy.Symbol,
			}).Info("Starting iron condor engine")
			return runServices(ctx, cfg, bot)
		},
	}
}

func loadConfigFromFlags(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return nil, err
	}
	return loadConfig(configPath, envFile)
}

// loadConfig loads envFile into the environment when present, then the YAML config.
func loadConfig(configPath, envFile string) (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(cfg.Environment.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Environment.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// newVenue builds the synthetic market and the paper venue on top of it.
func newVenue(cfg *config.Config, session *config.Session, now func() time.Time, logger *logrus.Logger) (*mock.DataProvider, *mock.PaperBroker) {
	data := mock.NewDataProvider(mock.Config{
		Now:             now,
		Location:        session.Location(),
		Symbol:          cfg.Strategy.Symbol,
		Spot:            cfg.Broker.Spot,
		IV:              cfg.Broker.IV,
		StrikeInterval:  cfg.Broker.StrikeInterval,
		HalfSpread:      cfg.Broker.HalfSpread,
		SessionClose:    session.CloseOffset(),
		StrikesEachSide: cfg.Broker.StrikesEachSide,
		ExpiryDays:      cfg.Broker.ExpiryDays,
	})
	venue := mock.NewPaperBroker(data, mock.PaperConfig{AutoFill: cfg.Broker.AutoFill},
		logger.WithField("component", "paper_broker"))
	return data, venue
}

func brokerFor(cfg *config.Config, venue *mock.PaperBroker, logger *logrus.Logger) broker.Broker {
	if cfg.Broker.CircuitBreaker {
		return broker.NewCircuitBreakerBroker(venue, logger.WithField("component", "circuit_breaker"))
	}
	return venue
}

// NewBot wires the engine from cfg against the paper venue.
func NewBot(cfg *config.Config, logger *logrus.Logger) (*Bot, error) {
	return newBot(cfg, logger, time.Now)
}

func newBot(cfg *config.Config, logger *logrus.Logger, now func() time.Time) (*Bot, error) {
	session, err := cfg.Session()
	if err != nil {
		return nil, err
	}
	data, venue := newVenue(cfg, session, now, logger)
	b := brokerFor(cfg, venue, logger)

	chains := retry.NewClient(b, logger.WithField("component", "retry"))
	finder := strategy.NewFinder(cfg.FinderConfig(session), logger.WithField("component", "finder"))
	om := orders.NewManager(b, orders.NewRegistry(), logger.WithField("component", "orders"), cfg.OrdersConfig())
	pm := portfolio.NewManager(session, logger.WithField("component", "portfolio"), cfg.PortfolioConfig())
	om.AddListener(pm)

	sink, err := storage.NewSink(cfg.Storage.Format, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Format, err)
	}

	return &Bot{
		config:    cfg,
		session:   session,
		logger:    logger,
		data:      data,
		venue:     venue,
		events:    venue.Events(),
		cycle:     NewTradingCycle(cfg.Strategy.Symbol, session, chains, finder, om, pm, logger.WithField("component", "trading_cycle")),
		orders:    om,
		portfolio: pm,
		sink:      sink,
		failsafe:  make(chan struct{}, 1),
		now:       now,
	}, nil
}

// Run drives the engine until ctx is done. Every state change happens on this goroutine.
func (b *Bot) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.config.GetTickInterval())
	defer ticker.Stop()

	// Run immediately on start
	b.cycle.Tick(ctx, b.now())

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Engine stopping")
			return nil
		case ev := <-b.events:
			b.cycle.HandleEvent(ctx, ev)
		case <-b.failsafe:
			b.cycle.PreClose(ctx, b.now())
		case <-ticker.C:
			b.data.Step()
			b.cycle.Tick(ctx, b.now())
		}
	}
}

// TriggerFailsafe requests a pre-close liquidation. Requests coalesce while one is pending.
func (b *Bot) TriggerFailsafe() {
	select {
	case b.failsafe <- struct{}{}:
	default:
		b.logger.Debug("Failsafe already pending")
	}
}

// Flush writes the portfolio records to the configured sink and logs the report.
func (b *Bot) Flush(ctx context.Context) error {
	if err := b.sink.Write(ctx, b.portfolio.Export(b.now())); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	var report bytes.Buffer
	b.portfolio.WriteReport(&report)
	b.logger.Info("Session report\n" + report.String())
	return nil
}

// Close releases the storage sink.
func (b *Bot) Close() error {
	return b.sink.Close()
}

func newScheduler(cfg *config.Config, session *config.Session, bot *Bot) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(session.Location()))
	if cfg.Schedule.FailsafeCron == "" {
		return c, nil
	}
	if _, err := c.AddFunc(cfg.Schedule.FailsafeCron, bot.TriggerFailsafe); err != nil {
		return nil, fmt.Errorf("scheduling failsafe: %w", err)
	}
	return c, nil
}

// runServices runs the engine, the failsafe scheduler and the optional dashboard until ctx
// is done, then flushes records.
func runServices(ctx context.Context, cfg *config.Config, bot *Bot) error {
	scheduler, err := newScheduler(cfg, bot.session, bot)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx)
	})
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})

	if cfg.Dashboard.Enabled {
		server := dashboard.NewServer(dashboard.Config{
			Addr:      cfg.Dashboard.Addr,
			AuthToken: cfg.Dashboard.AuthToken,
		}, bot.portfolio, bot.session, bot.logger.WithField("component", "dashboard"))
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bot.Flush(flushCtx); err != nil {
		bot.logger.WithError(err).Error("Failed to flush records")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
