package portfolio

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

var (
	testExpiry = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	testNow    = time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)
)

// fakeClock is a UTC session opening at 13:30.
type fakeClock struct {
	inWindow bool
}

func (c *fakeClock) Location() *time.Location           { return time.UTC }
func (c *fakeClock) InEntryWindow(time.Time) bool       { return c.inWindow }
func (c *fakeClock) DayKey(now time.Time) string        { return now.UTC().Format("2006-01-02") }
func (c *fakeClock) MinutesSinceOpen(now time.Time) float64 {
	open := time.Date(now.Year(), now.Month(), now.Day(), 13, 30, 0, 0, time.UTC)
	return now.Sub(open).Minutes()
}

func legQuote(right models.OptionRight, strike, bid, ask float64) models.Quote {
	return models.Quote{
		Symbol:     fmt.Sprintf("SPY250314%s%08d", strings.ToUpper(string(right)[:1]), int(strike*1000)),
		Underlying: "SPY",
		Expiry:     testExpiry,
		Right:      right,
		Strike:     strike,
		Bid:        bid,
		Ask:        ask,
	}
}

func testCandidate() *models.IronCondorCandidate {
	return &models.IronCondorCandidate{
		Put: models.VerticalSpread{
			Side:  models.RightPut,
			Short: legQuote(models.RightPut, 494, 0.98, 1.02),
			Long:  legQuote(models.RightPut, 490, 0.38, 0.42),
			Width: 4,
		},
		Call: models.VerticalSpread{
			Side:  models.RightCall,
			Short: legQuote(models.RightCall, 506, 0.98, 1.02),
			Long:  legQuote(models.RightCall, 510, 0.38, 0.42),
			Width: 4,
		},
		TotalCredit:  1.20,
		MaxLoss:      2.80,
		RewardRisk:   1.20 / 2.80,
		OverallScore: 1.7,
		ExpectedMove: 4.5,
	}
}

func submittedPosition(t *testing.T, id string, at time.Time) *models.Position {
	t.Helper()
	p, err := models.NewPosition(id, "SPY", testCandidate(), 1)
	require.NoError(t, err)
	p.TradeGroupID = "tg-" + id
	p.SubmittedAt = at
	p.EntryUnderlying = 500
	require.NoError(t, p.TransitionState(models.StatusSubmitted, models.CondOrderSubmitted))
	return p
}

// fillOpening fills the legs in LegRoles order and opens the position.
func fillOpening(t *testing.T, p *models.Position, prices [4]float64, at time.Time) {
	t.Helper()
	for i, leg := range p.Opening.Legs {
		require.True(t, p.Opening.SetFillPrice(leg.Quote.Symbol, prices[i]))
	}
	require.NoError(t, p.TransitionState(models.StatusOpened, models.CondAllLegsFilled))
	p.EntryTime = at
}

// fillClosing closes an opened position at the given fills.
func fillClosing(t *testing.T, p *models.Position, prices [4]float64, at time.Time, reason models.ExitReason) {
	t.Helper()
	var quotes [4]models.Quote
	for i, leg := range p.Opening.Legs {
		quotes[i] = leg.Quote
	}
	closing, err := models.NewClosingLegGroup(p.Opening, quotes)
	require.NoError(t, err)
	require.NoError(t, p.TransitionState(models.StatusCloseSubmitted, models.CondExitTriggered))
	p.Closing = closing
	p.ExitReason = reason
	p.ExitUnderlying = 501
	for i, leg := range p.Closing.Legs {
		require.True(t, p.Closing.SetFillPrice(leg.Quote.Symbol, prices[i]))
	}
	require.NoError(t, p.TransitionState(models.StatusClosed, models.CondAllLegsFilled))
	p.ExitTime = at
}

// settled is a closed position carrying only results.
func settled(id string, pnl, pct float64, exit time.Time, move float64, reason models.ExitReason) *models.Position {
	return &models.Position{
		ID:              id,
		Symbol:          "SPY",
		Status:          models.StatusClosed,
		SubmittedAt:     exit.Add(-time.Hour),
		ExitTime:        exit,
		ExitReason:      reason,
		RealizedPnL:     pnl,
		RealizedPnLPct:  pct,
		EntryUnderlying: 500,
		ExitUnderlying:  500 + move,
	}
}
