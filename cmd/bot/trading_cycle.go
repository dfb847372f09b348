package main

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
	"github.com/eddiefleurent/scranton_condor/internal/config"
	"github.com/eddiefleurent/scranton_condor/internal/orders"
	"github.com/eddiefleurent/scranton_condor/internal/portfolio"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
)

// ChainLoader fetches a normalized chain snapshot.
type ChainLoader interface {
	LoadChain(ctx context.Context, symbol string, now time.Time,
		keep func(expiry time.Time) bool) (*broker.ChainSnapshot, error)
}

// TradingCycle runs one engine tick: manage opened positions, then look for an entry.
// It owns the order manager and must only be driven from the engine goroutine.
type TradingCycle struct {
	session   *config.Session
	chains    ChainLoader
	finder    *strategy.Finder
	orders    *orders.Manager
	portfolio *portfolio.Manager
	logger    logrus.FieldLogger
	symbol    string
}

// NewTradingCycle wires a cycle. Every dependency except logger is required.
func NewTradingCycle(symbol string, session *config.Session, chains ChainLoader, finder *strategy.Finder,
	om *orders.Manager, pm *portfolio.Manager, logger logrus.FieldLogger,
) *TradingCycle {
	if session == nil || chains == nil || finder == nil || om == nil || pm == nil {
		panic("main.NewTradingCycle: session, chains, finder, orders and portfolio must not be nil")
	}
	if logger == nil {
		logger = logrus.New().WithField("component", "trading_cycle")
	}
	return &TradingCycle{
		session:   session,
		chains:    chains,
		finder:    finder,
		orders:    om,
		portfolio: pm,
		logger:    logger,
		symbol:    symbol,
	}
}

func (tc *TradingCycle) unexpired(now time.Time) func(time.Time) bool {
	return func(expiry time.Time) bool {
		return strategy.ExpiryAt(expiry, tc.session.CloseOffset(), tc.session.Location()).After(now)
	}
}

// loadChain returns an untyped nil Chain on failure so callers can pass it straight through.
func (tc *TradingCycle) loadChain(ctx context.Context, now time.Time) (strategy.Chain, error) {
	snap, err := tc.chains.LoadChain(ctx, tc.symbol, now, tc.unexpired(now))
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Tick runs one cycle at now. Outside the session it does nothing.
func (tc *TradingCycle) Tick(ctx context.Context, now time.Time) {
	if !tc.session.IsOpen(now) {
		tc.logger.WithField("time", now.In(tc.session.Location()).Format("15:04")).Debug("Market closed, skipping cycle")
		return
	}

	chain, err := tc.loadChain(ctx, now)
	if err != nil {
		tc.logger.WithError(err).Warn("Could not load option chain, skipping cycle")
		return
	}

	tc.manage(ctx, chain, now)
	tc.enter(ctx, chain, now)
	tc.portfolio.Refresh(tc.orders.Positions())
}

func (tc *TradingCycle) manage(ctx context.Context, chain strategy.Chain, now time.Time) {
	decisions := tc.orders.ManagePositions(ctx, chain, now, tc.session.MinutesToClose(now))
	tc.portfolio.RecordDecisions(decisions, now)
	for _, d := range decisions {
		tc.logger.WithFields(logrus.Fields{
			"position_id": shortID(d.Position.ID),
			"pnl_pct":     d.Estimate.PctMid,
			"exit":        d.Exit,
		}).Debug("Position evaluated")
	}
}

func (tc *TradingCycle) enter(ctx context.Context, chain strategy.Chain, now time.Time) {
	if !tc.portfolio.CanOpenPosition(now) {
		return
	}

	result := tc.finder.FindBest(chain, now)
	if !result.HasResult() {
		log := tc.logger.WithError(result.Err)
		if errors.Is(result.Err, strategy.ErrNoCandidates) || errors.Is(result.Err, strategy.ErrNoValidExpiries) {
			log.Debug("No entry this cycle")
		} else {
			log.Warn("Candidate search failed")
		}
		return
	}

	er := result.ByExpiry[result.BestExpiry]
	technicals := map[string]float64{
		"spot":               chain.Spot(),
		"minutes_since_open": tc.session.MinutesSinceOpen(now),
	}
	if er != nil {
		technicals["expected_move"] = er.ExpectedMove
		technicals["implied_vol"] = er.ImpliedVol
		technicals["dte"] = er.DTE
	}

	pos, err := tc.orders.OpenPosition(ctx, tc.symbol, result.Best, chain.Spot(), technicals, now)
	if err != nil {
		tc.logger.WithError(err).Warn("Failed to open position")
		return
	}
	tc.logger.WithFields(logrus.Fields{
		"position_id": shortID(pos.ID),
		"expiry":      result.BestExpiry,
		"credit":      result.Best.TotalCredit,
		"score":       result.Best.OverallScore,
	}).Info("Entered iron condor")
}

// HandleEvent applies one venue order event.
func (tc *TradingCycle) HandleEvent(ctx context.Context, ev broker.OrderEvent) {
	tc.orders.OnOrderEvent(ctx, ev)
	tc.portfolio.Refresh(tc.orders.ActivePositions())
}

// PreClose flattens every opened position and cancels working entries. It still runs
// when the chain cannot be loaded, closing at the opening quotes.
func (tc *TradingCycle) PreClose(ctx context.Context, now time.Time) int {
	chain, err := tc.loadChain(ctx, now)
	if err != nil {
		tc.logger.WithError(err).Warn("Could not load option chain for failsafe close")
	}
	n := tc.orders.ForceClose(ctx, chain)
	tc.logger.WithField("count", n).Info("Failsafe close submitted")
	tc.portfolio.Refresh(tc.orders.Positions())
	return n
}

// shortID truncates ids to 8 bytes for log lines.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
