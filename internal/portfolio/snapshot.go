package portfolio

import (
	"math"
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/orders"
)

// horizonStep is the width of a snapshot horizon bucket in minutes.
const horizonStep = 15

// Snapshot is the mark of one opened position on one managed tick.
type Snapshot struct {
	Timestamp         time.Time         `json:"timestamp"`
	TradeID           string            `json:"trade_id"`
	ExitSignal        models.ExitReason `json:"exit_signal,omitempty"`
	MinutesSinceOpen  float64           `json:"minutes_since_open"`
	MinutesSinceEntry float64           `json:"minutes_since_entry"`
	HorizonBucket     int               `json:"horizon_bucket"`
	Spot              float64           `json:"spot"`
	PnLMid            float64           `json:"pnl_mid"`
	PnLNormalized     float64           `json:"pnl_normalized"`
	CloseMid          float64           `json:"close_mid"`
	CloseBid          float64           `json:"close_bid"`
	CloseAsk          float64           `json:"close_ask"`
}

// HorizonBucket rounds minutes since entry to the nearest 15-minute step.
func HorizonBucket(minutesSinceEntry float64) int {
	return int(math.Round(minutesSinceEntry/horizonStep)) * horizonStep
}

// NewSnapshot builds the snapshot of a management decision.
func NewSnapshot(d orders.Decision, minutesSinceOpen float64, now time.Time) Snapshot {
	sinceEntry := d.Position.MinutesSinceEntry(now)
	return Snapshot{
		Timestamp:         now,
		TradeID:           d.Position.ID,
		ExitSignal:        d.Exit,
		MinutesSinceOpen:  minutesSinceOpen,
		MinutesSinceEntry: sinceEntry,
		HorizonBucket:     HorizonBucket(sinceEntry),
		Spot:              d.Spot,
		PnLMid:            d.Estimate.PnLMid,
		PnLNormalized:     d.Estimate.Normalized(),
		CloseMid:          d.Estimate.CloseMid,
		CloseBid:          d.Estimate.CloseBid,
		CloseAsk:          d.Estimate.CloseAsk,
	}
}

// RecordDecisions stores a snapshot per decision made at now.
func (m *Manager) RecordDecisions(decisions []orders.Decision, now time.Time) {
	if len(decisions) == 0 {
		return
	}
	sinceOpen := m.clock.MinutesSinceOpen(now)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range decisions {
		if d.Position == nil {
			continue
		}
		m.snapshots = append(m.snapshots, NewSnapshot(d, sinceOpen, now))
	}
}

// Snapshots returns every recorded snapshot in recording order.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Snapshot(nil), m.snapshots...)
}
