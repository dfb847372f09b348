// Package orders drives iron condor positions through their order lifecycle.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
	"github.com/eddiefleurent/scranton_condor/internal/util"
)

var (
	// ErrUnknownPosition is returned when a position id is not tracked.
	ErrUnknownPosition = errors.New("unknown position")
	// ErrNotOpened is returned when closing a position that is not Opened.
	ErrNotOpened = errors.New("position is not opened")
	// ErrMissingQuote is returned when a leg has no current quote.
	ErrMissingQuote = errors.New("missing leg quote")
)

// Listener is notified of lifecycle milestones. Callbacks run on the engine goroutine.
type Listener interface {
	OnPositionSubmitted(p *models.Position)
	OnPositionOpened(p *models.Position)
	OnPositionClosed(p *models.Position)
	OnPositionCanceled(p *models.Position)
	OnPositionInvalid(p *models.Position)
}

// Config contains configuration for the order manager.
type Config struct {
	Exit        ExitConfig
	Quantity    int
	CallTimeout time.Duration
	Tick        float64
}

// DefaultConfig is the default configuration for the order manager.
var DefaultConfig = Config{
	Exit:        DefaultExitConfig,
	Quantity:    1,
	CallTimeout: 5 * time.Second,
	Tick:        util.PennyTick,
}

// Decision is the outcome of managing one opened position on a tick.
type Decision struct {
	Position *models.Position
	Estimate PnLEstimate
	Exit     models.ExitReason
	Spot     float64
}

// Manager submits combos, applies order events and runs the exit rules.
// All methods must be called from a single goroutine.
type Manager struct {
	broker    broker.Broker
	registry  *Registry
	positions map[string]*models.Position
	listeners []Listener
	logger    logrus.FieldLogger
	config    Config
}

// NewManager creates a new order manager instance.
func NewManager(b broker.Broker, registry *Registry, logger logrus.FieldLogger, config ...Config) *Manager {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	if logger == nil {
		logger = logrus.New().WithField("component", "orders")
	}

	if cfg.Quantity <= 0 {
		cfg.Quantity = DefaultConfig.Quantity
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig.CallTimeout
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultConfig.Tick
	}

	if b == nil {
		panic("orders.NewManager: broker must not be nil")
	}
	if registry == nil {
		registry = NewRegistry()
	}

	return &Manager{
		broker:    b,
		registry:  registry,
		positions: make(map[string]*models.Position),
		logger:    logger,
		config:    cfg,
	}
}

// AddListener subscribes l to lifecycle notifications.
func (m *Manager) AddListener(l Listener) {
	if l != nil {
		m.listeners = append(m.listeners, l)
	}
}

// Registry returns the trade group registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Position returns a tracked position.
func (m *Manager) Position(id string) (*models.Position, error) {
	p, ok := m.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	return p, nil
}

// Positions returns tracked positions ordered by submission time, then id.
func (m *Manager) Positions() []*models.Position {
	out := make([]*models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActivePositions returns positions that are neither new nor terminal.
func (m *Manager) ActivePositions() []*models.Position {
	var out []*models.Position
	for _, p := range m.Positions() {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

// OpenPosition submits the opening combo for a candidate. A candidate that fails leg
// validation yields an Invalid position and the validation error.
func (m *Manager) OpenPosition(ctx context.Context, symbol string, candidate *models.IronCondorCandidate,
	spot float64, technicals map[string]float64, now time.Time,
) (*models.Position, error) {
	pos, err := models.NewPosition(uuid.NewString(), symbol, candidate, m.config.Quantity)
	pos.EntryUnderlying = spot
	pos.EntryTechnicals = technicals
	log := m.logger.WithField("position_id", pos.ID)
	if err != nil {
		pos.SubmittedAt = now
		m.positions[pos.ID] = pos
		m.invalidate(ctx, pos, nil, err.Error())
		return pos, err
	}

	tg := m.registry.Create(pos.ID)
	pos.TradeGroupID = tg.ID
	order := broker.NewComboOrder(tg.Tag(models.DirectionOpen), symbol, pos.Opening,
		util.LimitPrice(pos.Opening.PackagePrice().Mid, m.config.Tick))

	callCtx, cancel := context.WithTimeout(ctx, m.config.CallTimeout)
	resp, err := m.broker.PlaceComboOrder(callCtx, order)
	cancel()
	if err != nil {
		m.registry.Remove(tg.ID)
		return nil, fmt.Errorf("submitting opening combo for %s: %w", pos.ID, err)
	}

	if err := pos.TransitionState(models.StatusSubmitted, models.CondOrderSubmitted); err != nil {
		return nil, err
	}
	pos.SubmittedAt = now
	m.positions[pos.ID] = pos
	m.registerLegOrders(pos, tg, models.DirectionOpen, resp)

	log.WithFields(logrus.Fields{
		"trade_group_id": tg.ID,
		"expiry":         pos.Expiry.Format(models.ExpiryLayout),
		"strikes":        pos.Opening.Strikes(),
		"limit":          order.LimitPrice,
	}).Info("Opening combo submitted")
	m.notify(pos, Listener.OnPositionSubmitted)
	return pos, nil
}

func (m *Manager) registerLegOrders(pos *models.Position, tg *models.TradeGroup, dir models.OrderDirection, resp *broker.OrderResponse) {
	if resp == nil {
		return
	}
	group := pos.LegGroup(dir)
	for _, lo := range resp.LegOrders {
		if _, err := m.registry.RegisterOrder(tg, dir, lo.OrderID, lo.Symbol); err != nil {
			m.logger.WithError(err).WithField("order_id", lo.OrderID).Warn("Failed to register leg order")
			continue
		}
		if group != nil {
			group.SetOrderID(lo.Symbol, lo.OrderID)
		}
	}
}

// OnOrderEvent applies one order status event. Events with malformed tags or for unknown
// trade groups are ignored.
func (m *Manager) OnOrderEvent(ctx context.Context, ev broker.OrderEvent) {
	tgID, dir, ok := models.ParseTag(ev.Tag)
	if !ok {
		m.logger.WithField("tag", ev.Tag).Debug("Ignoring event with malformed tag")
		return
	}
	tg, ok := m.registry.Get(tgID)
	if !ok {
		m.logger.WithField("trade_group_id", tgID).Debug("Ignoring event for unknown trade group")
		return
	}
	pos, ok := m.positions[tg.PositionID]
	if !ok {
		m.logger.WithField("trade_group_id", tgID).Debug("Ignoring event for untracked position")
		return
	}

	log := m.logger.WithFields(logrus.Fields{
		"position_id":    pos.ID,
		"trade_group_id": tg.ID,
		"order_id":       ev.OrderID,
		"status":         ev.Status,
		"direction":      dir,
	})

	if ev.Status == models.OrderSubmitted {
		m.onSubmitted(ctx, pos, tg, dir, ev, log)
		return
	}

	if tg.Order(dir, ev.OrderID) == nil {
		log.Debug("Ignoring event for unregistered order")
		return
	}
	if ev.Status == models.OrderFilled && ev.FillPrice == nil {
		log.Warn("Fill event without a price")
		return
	}
	if !tg.SetOrderStatus(dir, ev.OrderID, ev.Status, ev.FillPrice) {
		return
	}
	if pos.Status.IsTerminal() {
		log.Debug("Order event after position reached a terminal state")
		return
	}

	switch ev.Status {
	case models.OrderFilled:
		m.onFilled(ctx, pos, tg, dir, ev, log)
	case models.OrderCanceled:
		m.onCanceled(ctx, pos, tg, dir, log)
	default:
		log.Warn("Ignoring event with unknown status")
	}
}

func (m *Manager) onSubmitted(ctx context.Context, pos *models.Position, tg *models.TradeGroup,
	dir models.OrderDirection, ev broker.OrderEvent, log logrus.FieldLogger,
) {
	added, err := m.registry.RegisterOrder(tg, dir, ev.OrderID, ev.Symbol)
	if err != nil {
		m.invalidate(ctx, pos, tg, err.Error())
		return
	}
	if !added {
		log.Debug("Order already registered")
		return
	}
	if group := pos.LegGroup(dir); group != nil {
		group.SetOrderID(ev.Symbol, ev.OrderID)
	}
	log.Debug("Order registered")
}

func (m *Manager) onFilled(ctx context.Context, pos *models.Position, tg *models.TradeGroup,
	dir models.OrderDirection, ev broker.OrderEvent, log logrus.FieldLogger,
) {
	group := pos.LegGroup(dir)
	if group == nil {
		m.invalidate(ctx, pos, tg, fmt.Sprintf("fill for %s without %s legs", ev.Symbol, dir))
		return
	}
	if !group.SetFillPrice(ev.Symbol, *ev.FillPrice) {
		m.invalidate(ctx, pos, tg, fmt.Sprintf("fill for %s matches no leg", ev.Symbol))
		return
	}

	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	complete := group.AllFilled() && tg.AreAllOrdersOfStatus(dir, models.OrderFilled)

	switch dir {
	case models.DirectionOpen:
		if !complete {
			if pos.Status == models.StatusSubmitted {
				m.transition(pos, models.StatusPartiallyFilled, models.CondLegFilled, log)
			}
			return
		}
		if !m.transition(pos, models.StatusOpened, models.CondAllLegsFilled, log) {
			return
		}
		pos.EntryTime = at
		credit, _ := pos.OpeningCredit()
		log.WithField("credit", credit).Info("Position opened")
		m.notify(pos, Listener.OnPositionOpened)

	case models.DirectionClose:
		if !complete {
			return
		}
		if !m.transition(pos, models.StatusClosed, models.CondAllLegsFilled, log) {
			return
		}
		pos.ExitTime = at
		if _, err := pos.ComputeRealizedPnL(); err != nil {
			log.WithError(err).Error("Failed to compute realized P&L")
		}
		log.WithFields(logrus.Fields{
			"reason":  pos.ExitReason,
			"pnl":     pos.RealizedPnL,
			"pnl_pct": pos.RealizedPnLPct,
		}).Info("Position closed")
		m.notify(pos, Listener.OnPositionClosed)
	}
}

func (m *Manager) onCanceled(ctx context.Context, pos *models.Position, tg *models.TradeGroup,
	dir models.OrderDirection, log logrus.FieldLogger,
) {
	m.cancelWorking(ctx, tg, dir)

	switch dir {
	case models.DirectionOpen:
		if pos.Status != models.StatusSubmitted && pos.Status != models.StatusPartiallyFilled {
			return
		}
		if filled := pos.Opening.FilledCount(); filled > 0 {
			log.WithField("filled_legs", filled).Warn("Opening attempt canceled after partial fills; filled legs are held")
		}
		if m.transition(pos, models.StatusCanceled, models.CondLegCanceled, log) {
			log.Info("Opening attempt canceled")
			m.notify(pos, Listener.OnPositionCanceled)
		}

	case models.DirectionClose:
		if pos.Status != models.StatusCloseSubmitted {
			return
		}
		if pos.Closing != nil && pos.Closing.FilledCount() > 0 {
			log.WithField("filled_legs", pos.Closing.FilledCount()).
				Warn("Closing attempt canceled after partial fills; holding position in close_submitted")
			return
		}
		if m.transition(pos, models.StatusOpened, models.CondCloseCanceled, log) {
			pos.Closing = nil
			pos.ExitReason = models.ExitNone
			pos.ExitUnderlying = 0
			m.registry.ResetDirection(tg, models.DirectionClose)
			log.Info("Closing attempt canceled, position reopened")
		}
	}
}

// cancelWorking cancels every order of dir that is still working.
func (m *Manager) cancelWorking(ctx context.Context, tg *models.TradeGroup, dir models.OrderDirection) {
	for _, o := range tg.Orders(dir) {
		if o.Status != models.OrderSubmitted {
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, m.config.CallTimeout)
		err := m.broker.CancelOrder(callCtx, o.OrderID)
		cancel()
		if err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"trade_group_id": tg.ID,
				"order_id":       o.OrderID,
			}).Warn("Failed to cancel sibling order")
		}
	}
}

// invalidate moves pos to Invalid and cancels everything still working.
func (m *Manager) invalidate(ctx context.Context, pos *models.Position, tg *models.TradeGroup, reason string) {
	log := m.logger.WithFields(logrus.Fields{"position_id": pos.ID, "reason": reason})
	if !m.transition(pos, models.StatusInvalid, models.CondInvalidLegs, log) {
		return
	}
	if tg != nil {
		m.cancelWorking(ctx, tg, models.DirectionOpen)
		m.cancelWorking(ctx, tg, models.DirectionClose)
	}
	log.Error("Position invalid, outstanding orders canceled")
	m.notify(pos, Listener.OnPositionInvalid)
}

func (m *Manager) transition(pos *models.Position, to models.PositionStatus, cond string, log logrus.FieldLogger) bool {
	if err := pos.TransitionState(to, cond); err != nil {
		log.WithError(err).Error("Rejected state transition")
		return false
	}
	return true
}

func (m *Manager) notify(pos *models.Position, fn func(Listener, *models.Position)) {
	for _, l := range m.listeners {
		fn(l, pos)
	}
}

// currentQuotes looks up today's quotes for the four legs of pos in LegRoles order.
func currentQuotes(chain strategy.Chain, pos *models.Position) ([4]models.Quote, error) {
	var out [4]models.Quote
	if chain == nil {
		return out, ErrMissingQuote
	}
	for i, leg := range pos.Opening.Legs {
		q, ok := chain.Lookup(leg.Quote.Expiry, leg.Quote.Right, leg.Quote.Strike)
		if !ok {
			return out, fmt.Errorf("%w: %s %s %.2f", ErrMissingQuote, leg.Role, leg.Quote.Right, leg.Quote.Strike)
		}
		out[i] = q
	}
	return out, nil
}

// Evaluate marks an opened position against chain and picks the exit rule that fires, if any.
// ok is false when a leg quote is missing or the opening fills are incomplete. A position
// opened without a net credit is only subject to the time rule.
func (m *Manager) Evaluate(pos *models.Position, chain strategy.Chain, minutesToClose float64) (*models.LegGroup, Decision, bool) {
	d := Decision{Position: pos}
	if pos.Status != models.StatusOpened || pos.Opening == nil {
		return nil, d, false
	}
	quotes, err := currentQuotes(chain, pos)
	if err != nil {
		m.logger.WithError(err).WithField("position_id", pos.ID).Debug("Skipping management this tick")
		return nil, d, false
	}
	closing, err := models.NewClosingLegGroup(pos.Opening, quotes)
	if err != nil {
		m.logger.WithError(err).WithField("position_id", pos.ID).Warn("Failed to build closing legs")
		return nil, d, false
	}
	d.Spot = chain.Spot()
	est, ok := EstimatePnL(pos.Opening, closing)
	if !ok {
		// No opening credit to measure against: only the time rule applies.
		if !pos.Opening.AllFilled() || minutesToClose > m.config.Exit.CloseBeforeCloseMinutes {
			return nil, d, false
		}
		d.Exit = models.ExitCloseBeforeClose
		return closing, d, true
	}
	d.Estimate = est
	d.Exit = EvaluateExit(est, minutesToClose, m.config.Exit)
	return closing, d, true
}

// ManagePositions runs the exit rules over every opened position and submits closes for those
// that trigger. Positions whose quotes are missing are skipped until the next tick.
func (m *Manager) ManagePositions(ctx context.Context, chain strategy.Chain, now time.Time, minutesToClose float64) []Decision {
	var decisions []Decision
	for _, pos := range m.Positions() {
		closing, d, ok := m.Evaluate(pos, chain, minutesToClose)
		if !ok {
			continue
		}
		decisions = append(decisions, d)
		if d.Exit == models.ExitNone {
			continue
		}
		if err := m.submitClose(ctx, pos, closing, d.Exit, d.Spot); err != nil {
			m.logger.WithError(err).WithField("position_id", pos.ID).Error("Failed to submit closing combo")
		}
	}
	return decisions
}

// ClosePosition submits a close for an opened position at current quotes.
func (m *Manager) ClosePosition(ctx context.Context, id string, chain strategy.Chain, reason models.ExitReason) error {
	pos, err := m.Position(id)
	if err != nil {
		return err
	}
	if pos.Status != models.StatusOpened {
		return fmt.Errorf("%w: %s is %s", ErrNotOpened, id, pos.Status)
	}
	quotes, err := currentQuotes(chain, pos)
	if err != nil {
		return err
	}
	closing, err := models.NewClosingLegGroup(pos.Opening, quotes)
	if err != nil {
		return err
	}
	return m.submitClose(ctx, pos, closing, reason, chain.Spot())
}

func (m *Manager) submitClose(ctx context.Context, pos *models.Position, closing *models.LegGroup,
	reason models.ExitReason, spot float64,
) error {
	tg, ok := m.registry.Get(pos.TradeGroupID)
	if !ok {
		return fmt.Errorf("position %s has no trade group %s", pos.ID, pos.TradeGroupID)
	}
	order := broker.NewComboOrder(tg.Tag(models.DirectionClose), pos.Symbol, closing,
		util.LimitPrice(closing.PackagePrice().Mid, m.config.Tick))

	callCtx, cancel := context.WithTimeout(ctx, m.config.CallTimeout)
	resp, err := m.broker.PlaceComboOrder(callCtx, order)
	cancel()
	if err != nil {
		return fmt.Errorf("submitting closing combo for %s: %w", pos.ID, err)
	}

	if err := pos.TransitionState(models.StatusCloseSubmitted, models.CondExitTriggered); err != nil {
		return err
	}
	pos.Closing = closing
	pos.ExitReason = reason
	pos.ExitUnderlying = spot
	m.registerLegOrders(pos, tg, models.DirectionClose, resp)

	m.logger.WithFields(logrus.Fields{
		"position_id":    pos.ID,
		"trade_group_id": tg.ID,
		"reason":         reason,
		"limit":          order.LimitPrice,
	}).Info("Closing combo submitted")
	return nil
}

// ForceClose liquidates ahead of the session close. Opened positions are closed at current
// quotes, falling back to the opening quotes when the chain lacks a leg; working opening
// orders are canceled. It returns the number of positions acted on.
func (m *Manager) ForceClose(ctx context.Context, chain strategy.Chain) int {
	acted := 0
	for _, pos := range m.Positions() {
		log := m.logger.WithField("position_id", pos.ID)
		switch pos.Status {
		case models.StatusOpened:
			quotes, err := currentQuotes(chain, pos)
			if err != nil {
				log.WithError(err).Warn("Failsafe closing at opening quotes")
				for i, leg := range pos.Opening.Legs {
					quotes[i] = leg.Quote
				}
			}
			closing, err := models.NewClosingLegGroup(pos.Opening, quotes)
			if err != nil {
				log.WithError(err).Error("Failsafe could not build closing legs")
				continue
			}
			spot := pos.EntryUnderlying
			if chain != nil && chain.Spot() > 0 {
				spot = chain.Spot()
			}
			if err := m.submitClose(ctx, pos, closing, models.ExitFailsafeBeforeClose, spot); err != nil {
				log.WithError(err).Error("Failsafe close failed")
				continue
			}
			acted++
		case models.StatusSubmitted, models.StatusPartiallyFilled:
			if tg, ok := m.registry.Get(pos.TradeGroupID); ok {
				m.cancelWorking(ctx, tg, models.DirectionOpen)
				log.Info("Failsafe canceled working opening orders")
				acted++
			}
		}
	}
	return acted
}
