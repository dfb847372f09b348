package portfolio

import (
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// Summary aggregates the whole book.
type Summary struct {
	ExitReasons   map[models.ExitReason]int `json:"exit_reasons"`
	Total         int                       `json:"total"`
	Submitted     int                       `json:"submitted"`
	Open          int                       `json:"open"`
	Closed        int                       `json:"closed"`
	Canceled      int                       `json:"canceled"`
	Wins          int                       `json:"wins"`
	Losses        int                       `json:"losses"`
	CurrentStreak int                       `json:"current_streak"`
	TotalPnL      float64                   `json:"total_pnl"`
	WinRate       float64                   `json:"win_rate"`
	AverageWin    float64                   `json:"average_win"`
	AverageLoss   float64                   `json:"average_loss"`
	MaxDrawdown   float64                   `json:"max_drawdown"`
	HighPnLPct    float64                   `json:"high_pnl_pct"`
	MedianPnLPct  float64                   `json:"median_pnl_pct"`
	LowPnLPct     float64                   `json:"low_pnl_pct"`
}

// GroupStats aggregates closed positions sharing an exit hour or exit day.
type GroupStats struct {
	Key                     string  `json:"key"`
	Count                   int     `json:"count"`
	Wins                    int     `json:"wins"`
	TotalPnL                float64 `json:"total_pnl"`
	MeanPnL                 float64 `json:"mean_pnl"`
	MeanPnLPct              float64 `json:"mean_pnl_pct"`
	WinRate                 float64 `json:"win_rate"`
	AvgWinPct               float64 `json:"avg_win_pct"`
	AvgLossPct              float64 `json:"avg_loss_pct"`
	AvgUnderlyingChangeWin  float64 `json:"avg_underlying_change_win"`
	AvgUnderlyingChangeLoss float64 `json:"avg_underlying_change_loss"`
	LowConfidence           bool    `json:"low_confidence"`
}

// isWin treats a positive realized P&L% as a win.
func isWin(p *models.Position) bool {
	return p.RealizedPnLPct > 0
}

// orZero drops the empty-input error montanaflynn/stats returns for empty samples.
func orZero(v float64, err error) float64 {
	if err != nil {
		return 0
	}
	return v
}

// Summary aggregates every tracked position.
func (m *Manager) Summary() Summary {
	closed := m.Bucket(BucketClosed)
	counts := m.Counts()

	s := Summary{
		ExitReasons: make(map[models.ExitReason]int),
		Submitted:   counts[BucketSubmitted],
		Open:        counts[BucketOpen],
		Closed:      counts[BucketClosed],
		Canceled:    counts[BucketCanceled],
	}
	for _, n := range counts {
		s.Total += n
	}

	// Streak runs in exit order
	sort.SliceStable(closed, func(i, j int) bool { return closed[i].ExitTime.Before(closed[j].ExitTime) })

	var pnls, pcts, wins, losses []float64
	for _, p := range closed {
		s.ExitReasons[p.ExitReason]++
		pnls = append(pnls, p.RealizedPnL)
		pcts = append(pcts, p.RealizedPnLPct)
		if isWin(p) {
			s.Wins++
			wins = append(wins, p.RealizedPnL)
			if s.CurrentStreak >= 0 {
				s.CurrentStreak++
			} else {
				s.CurrentStreak = 1
			}
		} else {
			s.Losses++
			losses = append(losses, p.RealizedPnL)
			if s.CurrentStreak <= 0 {
				s.CurrentStreak--
			} else {
				s.CurrentStreak = -1
			}
		}
	}
	if len(closed) == 0 {
		return s
	}

	s.TotalPnL = orZero(stats.Sum(pnls))
	s.WinRate = float64(s.Wins) / float64(len(closed))
	s.AverageWin = orZero(stats.Mean(wins))
	s.AverageLoss = orZero(stats.Mean(losses))
	if low := orZero(stats.Min(pnls)); low < 0 {
		s.MaxDrawdown = low
	}
	s.HighPnLPct = orZero(stats.Max(pcts))
	s.MedianPnLPct = orZero(stats.Median(pcts))
	s.LowPnLPct = orZero(stats.Min(pcts))
	return s
}

// StatsByExitHour groups closed positions by the session-local exit hour ("HH").
func (m *Manager) StatsByExitHour() []GroupStats {
	loc := m.clock.Location()
	return m.groupClosed(func(p *models.Position) string {
		return p.ExitTime.In(loc).Format("15")
	})
}

// StatsByExitDay groups closed positions by the session-local exit date ("YYYY-MM-DD").
func (m *Manager) StatsByExitDay() []GroupStats {
	return m.groupClosed(func(p *models.Position) string {
		return m.clock.DayKey(p.ExitTime)
	})
}

func (m *Manager) groupClosed(key func(*models.Position) string) []GroupStats {
	groups := make(map[string][]*models.Position)
	for _, p := range m.Bucket(BucketClosed) {
		if p.ExitTime.IsZero() {
			continue
		}
		k := key(p)
		groups[k] = append(groups[k], p)
	}

	out := make([]GroupStats, 0, len(groups))
	for k, ps := range groups {
		out = append(out, computeGroupStats(k, ps, m.config.MinGroupSamples))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func computeGroupStats(key string, ps []*models.Position, minSamples int) GroupStats {
	g := GroupStats{Key: key, Count: len(ps)}
	if len(ps) == 0 {
		g.LowConfidence = true
		return g
	}

	var pnls, pcts, winPcts, lossPcts, winMoves, lossMoves []float64
	for _, p := range ps {
		pnls = append(pnls, p.RealizedPnL)
		pcts = append(pcts, p.RealizedPnLPct)
		if isWin(p) {
			g.Wins++
			winPcts = append(winPcts, p.RealizedPnLPct)
			winMoves = append(winMoves, p.UnderlyingChange())
		} else {
			lossPcts = append(lossPcts, p.RealizedPnLPct)
			lossMoves = append(lossMoves, p.UnderlyingChange())
		}
	}

	g.TotalPnL = orZero(stats.Sum(pnls))
	g.MeanPnL = orZero(stats.Mean(pnls))
	g.MeanPnLPct = orZero(stats.Mean(pcts))
	g.WinRate = float64(g.Wins) / float64(g.Count)
	g.AvgWinPct = orZero(stats.Mean(winPcts))
	g.AvgLossPct = orZero(stats.Mean(lossPcts))
	g.AvgUnderlyingChangeWin = orZero(stats.Mean(winMoves))
	g.AvgUnderlyingChangeLoss = orZero(stats.Mean(lossMoves))
	g.LowConfidence = g.Count < minSamples
	return g
}
