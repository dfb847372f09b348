package portfolio

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// WriteReport renders the summary and the grouped statistics as text tables.
func (m *Manager) WriteReport(w io.Writer) {
	s := m.Summary()

	fmt.Fprintln(w, "Portfolio summary")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Total", "Open", "Closed", "Canceled", "Wins", "Losses", "Win Rate", "P&L", "High %", "Median %", "Low %"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.Append([]string{
		strconv.Itoa(s.Total),
		strconv.Itoa(s.Open),
		strconv.Itoa(s.Closed),
		strconv.Itoa(s.Canceled),
		strconv.Itoa(s.Wins),
		strconv.Itoa(s.Losses),
		pct(s.WinRate * 100),
		money(s.TotalPnL),
		pct(s.HighPnLPct),
		pct(s.MedianPnLPct),
		pct(s.LowPnLPct),
	})
	table.Render()

	if len(s.ExitReasons) > 0 {
		reasons := make([]models.ExitReason, 0, len(s.ExitReasons))
		for r := range s.ExitReasons {
			reasons = append(reasons, r)
		}
		sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
		table = tablewriter.NewWriter(w)
		table.SetHeader([]string{"Exit Reason", "Count"})
		for _, r := range reasons {
			label := string(r)
			if r == models.ExitNone {
				label = "none"
			}
			table.Append([]string{label, strconv.Itoa(s.ExitReasons[r])})
		}
		table.Render()
	}

	WriteGroupStats(w, "By exit hour", m.StatsByExitHour())
	WriteGroupStats(w, "By exit day", m.StatsByExitDay())
}

// WriteGroupStats renders one grouped statistics table.
func WriteGroupStats(w io.Writer, title string, groups []GroupStats) {
	fmt.Fprintln(w, title)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Key", "N", "P&L", "Mean P&L", "Mean %", "Win Rate", "Avg Win %", "Avg Loss %", "Move Win", "Move Loss", "Note"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, g := range groups {
		note := ""
		if g.LowConfidence {
			note = "low confidence"
		}
		table.Append([]string{
			g.Key,
			strconv.Itoa(g.Count),
			money(g.TotalPnL),
			money(g.MeanPnL),
			pct(g.MeanPnLPct),
			pct(g.WinRate * 100),
			pct(g.AvgWinPct),
			pct(g.AvgLossPct),
			fmt.Sprintf("%.2f", g.AvgUnderlyingChangeWin),
			fmt.Sprintf("%.2f", g.AvgUnderlyingChangeLoss),
			note,
		})
	}
	table.Render()
}

func pct(v float64) string   { return fmt.Sprintf("%.1f%%", v) }
func money(v float64) string { return fmt.Sprintf("$%.2f", v) }
