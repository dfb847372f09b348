package portfolio

import (
	"strings"
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/storage"
)

// PositionRecord flattens p for export.
func PositionRecord(p *models.Position) storage.PositionRecord {
	r := storage.PositionRecord{
		ID:               p.ID,
		TradeGroupID:     p.TradeGroupID,
		Symbol:           p.Symbol,
		Status:           string(p.Status),
		SubmittedAt:      storage.FormatTime(p.SubmittedAt),
		EntryTime:        storage.FormatTime(p.EntryTime),
		ExitTime:         storage.FormatTime(p.ExitTime),
		ExitReason:       string(p.ExitReason),
		Quantity:         p.Quantity,
		RealizedPnL:      p.RealizedPnL,
		RealizedPnLPct:   p.RealizedPnLPct,
		EntryUnderlying:  p.EntryUnderlying,
		ExitUnderlying:   p.ExitUnderlying,
		UnderlyingChange: p.UnderlyingChange(),
	}
	if !p.Expiry.IsZero() {
		r.Expiry = p.Expiry.Format(models.ExpiryLayout)
	}

	if p.Opening != nil {
		symbols := make([]string, 0, len(p.Opening.Legs))
		for _, leg := range p.Opening.Legs {
			symbols = append(symbols, leg.Quote.Symbol)
		}
		r.Legs = strings.Join(symbols, "|")
		s := p.Opening.Strikes()
		r.LongPutStrike, r.ShortPutStrike, r.ShortCallStrike, r.LongCallStrike = s[0], s[1], s[2], s[3]
		r.EntryTotalFill, _ = p.Opening.TotalFillPrice()
		r.OpeningCashFlow, _ = p.Opening.CashFlow()
	}
	if p.Closing != nil {
		r.ExitTotalFill, _ = p.Closing.TotalFillPrice()
		r.ClosingCashFlow, _ = p.Closing.CashFlow()
	}
	if c := p.Candidate; c != nil {
		r.Credit = c.TotalCredit
		r.MaxLoss = c.MaxLoss
		r.RewardRisk = c.RewardRisk
		r.Cushion = c.Cushion
		r.CenteringScore = c.CenteringScore
		r.BalanceScore = c.DeltaBalanceScore
		r.OverallScore = c.OverallScore
		r.ExpectedMove = c.ExpectedMove
	}
	return r
}

// SnapshotRecord flattens s for export.
func SnapshotRecord(s Snapshot) storage.SnapshotRecord {
	return storage.SnapshotRecord{
		TradeID:           s.TradeID,
		Timestamp:         storage.FormatTime(s.Timestamp),
		ExitSignal:        string(s.ExitSignal),
		MinutesSinceOpen:  s.MinutesSinceOpen,
		MinutesSinceEntry: s.MinutesSinceEntry,
		HorizonBucket:     s.HorizonBucket,
		Spot:              s.Spot,
		PnLMid:            s.PnLMid,
		PnLNormalized:     s.PnLNormalized,
		CloseMid:          s.CloseMid,
		CloseBid:          s.CloseBid,
		CloseAsk:          s.CloseAsk,
	}
}

// Export collects every position and snapshot for a storage sink.
func (m *Manager) Export(now time.Time) storage.Export {
	positions := m.Positions()
	snapshots := m.Snapshots()

	export := storage.Export{
		WrittenAt: now,
		Positions: make([]storage.PositionRecord, 0, len(positions)),
		Snapshots: make([]storage.SnapshotRecord, 0, len(snapshots)),
	}
	for _, p := range positions {
		export.Positions = append(export.Positions, PositionRecord(p))
	}
	for _, s := range snapshots {
		export.Snapshots = append(export.Snapshots, SnapshotRecord(s))
	}
	return export
}
