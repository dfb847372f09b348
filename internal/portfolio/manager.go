// Package portfolio tracks positions across their lifecycle, gates new entries and aggregates
// results.
package portfolio

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/orders"
)

// Clock is the session calendar the manager needs. *config.Session satisfies it.
type Clock interface {
	Location() *time.Location
	InEntryWindow(now time.Time) bool
	MinutesSinceOpen(now time.Time) float64
	DayKey(now time.Time) string
}

// Config holds admission limits.
type Config struct {
	MaxOpenPositions int
	MaxTradesPerDay  int
	MinGroupSamples  int
}

// DefaultConfig allows five concurrent positions and one new trade per day.
var DefaultConfig = Config{
	MaxOpenPositions: 5,
	MaxTradesPerDay:  1,
	MinGroupSamples:  5,
}

// Bucket names a lifecycle set.
type Bucket string

const (
	BucketSubmitted Bucket = "submitted"
	BucketOpen      Bucket = "open"
	BucketClosed    Bucket = "closed"
	BucketCanceled  Bucket = "canceled"
)

// Manager is the bookkeeping side of the engine. It receives lifecycle notifications from the
// order manager and stores copies of the positions, so readers on other goroutines never see
// a position mid-update.
type Manager struct {
	mu           sync.RWMutex
	clock        Clock
	logger       logrus.FieldLogger
	positions    map[string]*models.Position
	byTradeGroup map[string]string
	buckets      map[Bucket]map[string]struct{}
	snapshots    []Snapshot
	dayKey       string
	tradesToday  int
	config       Config
}

var _ orders.Listener = (*Manager)(nil)

// NewManager creates a portfolio manager.
func NewManager(clock Clock, logger logrus.FieldLogger, config ...Config) *Manager {
	if clock == nil {
		panic("portfolio.NewManager: clock must not be nil")
	}
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.MaxOpenPositions <= 0 {
		cfg.MaxOpenPositions = DefaultConfig.MaxOpenPositions
	}
	// Zero trades per day is a real limit: admission stays closed.
	if cfg.MaxTradesPerDay < 0 {
		cfg.MaxTradesPerDay = DefaultConfig.MaxTradesPerDay
	}
	if cfg.MinGroupSamples <= 0 {
		cfg.MinGroupSamples = DefaultConfig.MinGroupSamples
	}
	if logger == nil {
		logger = logrus.New().WithField("component", "portfolio")
	}

	buckets := make(map[Bucket]map[string]struct{}, 4)
	for _, b := range []Bucket{BucketSubmitted, BucketOpen, BucketClosed, BucketCanceled} {
		buckets[b] = make(map[string]struct{})
	}
	return &Manager{
		clock:        clock,
		logger:       logger,
		positions:    make(map[string]*models.Position),
		byTradeGroup: make(map[string]string),
		buckets:      buckets,
		config:       cfg,
	}
}

// Config returns the admission limits in use.
func (m *Manager) Config() Config {
	return m.config
}

// rollDay resets the daily counter when the session date changes. Callers hold mu.
func (m *Manager) rollDay(now time.Time) {
	key := m.clock.DayKey(now)
	if key != m.dayKey {
		m.dayKey = key
		m.tradesToday = 0
	}
}

// CanOpenPosition reports whether a new position may be submitted at now.
func (m *Manager) CanOpenPosition(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay(now)

	log := m.logger.WithField("time", now.In(m.clock.Location()).Format(time.Kitchen))
	switch {
	case !m.clock.InEntryWindow(now):
		log.Debug("Admission rejected: outside entry window")
		return false
	case m.tradesToday >= m.config.MaxTradesPerDay:
		log.WithField("trades_today", m.tradesToday).Debug("Admission rejected: daily trade cap reached")
		return false
	case m.activeCountLocked() >= m.config.MaxOpenPositions:
		log.WithField("active", m.activeCountLocked()).Debug("Admission rejected: max open positions reached")
		return false
	default:
		return true
	}
}

func (m *Manager) activeCountLocked() int {
	return len(m.buckets[BucketSubmitted]) + len(m.buckets[BucketOpen])
}

// ActiveCount returns the number of submitted and open positions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeCountLocked()
}

// TradesToday returns the number of positions submitted on now's session date.
func (m *Manager) TradesToday(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay(now)
	return m.tradesToday
}

// store replaces the copy of p and moves it to bucket. Callers hold mu.
func (m *Manager) store(p *models.Position, bucket Bucket) *models.Position {
	c := p.Clone()
	m.positions[c.ID] = c
	if c.TradeGroupID != "" {
		m.byTradeGroup[c.TradeGroupID] = c.ID
	}
	for b, ids := range m.buckets {
		if b != bucket {
			delete(ids, c.ID)
		}
	}
	m.buckets[bucket][c.ID] = struct{}{}
	return c
}

// OnPositionSubmitted registers p as submitted and counts it against today's cap.
func (m *Manager) OnPositionSubmitted(p *models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at := p.SubmittedAt
	if at.IsZero() {
		at = time.Now()
	}
	m.rollDay(at)
	if _, known := m.positions[p.ID]; !known {
		m.tradesToday++
	}
	m.store(p, BucketSubmitted)
	m.logger.WithFields(logrus.Fields{
		"position_id":  p.ID,
		"trades_today": m.tradesToday,
	}).Info("Position submitted")
}

// OnPositionOpened moves p to the open set with its opening fills.
func (m *Manager) OnPositionOpened(p *models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(p, BucketOpen)
	credit, _ := p.OpeningCredit()
	m.logger.WithFields(logrus.Fields{
		"position_id":    p.ID,
		"opening_credit": credit,
	}).Info("Position opened")
}

// OnPositionClosed moves p to the closed set and settles its realized P&L.
func (m *Manager) OnPositionClosed(p *models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.store(p, BucketClosed)
	if _, err := c.ComputeRealizedPnL(); err != nil {
		m.logger.WithError(err).WithField("position_id", c.ID).Warn("Closed position without complete fills")
	}
	m.logger.WithFields(logrus.Fields{
		"position_id": c.ID,
		"reason":      c.ExitReason,
		"pnl":         c.RealizedPnL,
		"pnl_pct":     c.RealizedPnLPct,
	}).Info("Position closed")
}

// OnPositionCanceled moves p to the canceled set.
func (m *Manager) OnPositionCanceled(p *models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(p, BucketCanceled)
	m.logger.WithField("position_id", p.ID).Info("Position canceled")
}

// OnPositionInvalid files p with the canceled positions; it keeps its Invalid status.
func (m *Manager) OnPositionInvalid(p *models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(p, BucketCanceled)
	m.logger.WithField("position_id", p.ID).Warn("Position invalid")
}

// Refresh re-copies tracked positions whose state moved without a notification, such as a
// close attempt that was submitted or canceled back to opened.
func (m *Manager) Refresh(positions []*models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range positions {
		prev, ok := m.positions[p.ID]
		if !ok || prev.Status.IsTerminal() {
			continue
		}
		c := p.Clone()
		m.positions[c.ID] = c
	}
}

// Position returns a copy of the position with id.
func (m *Manager) Position(id string) (*models.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// ByTradeGroup returns a copy of the position owning trade group id.
func (m *Manager) ByTradeGroup(tradeGroupID string) (*models.Position, bool) {
	m.mu.RLock()
	id, ok := m.byTradeGroup[tradeGroupID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.Position(id)
}

// Positions returns copies of every tracked position ordered by submission time.
func (m *Manager) Positions() []*models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p.Clone())
	}
	sortPositions(out)
	return out
}

// Bucket returns copies of the positions in one lifecycle set.
func (m *Manager) Bucket(b Bucket) []*models.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.buckets[b]
	out := make([]*models.Position, 0, len(ids))
	for id := range ids {
		out = append(out, m.positions[id].Clone())
	}
	sortPositions(out)
	return out
}

// Counts returns the size of each lifecycle set.
func (m *Manager) Counts() map[Bucket]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Bucket]int, len(m.buckets))
	for b, ids := range m.buckets {
		out[b] = len(ids)
	}
	return out
}

func sortPositions(ps []*models.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].SubmittedAt.Equal(ps[j].SubmittedAt) {
			return ps[i].SubmittedAt.Before(ps[j].SubmittedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}
