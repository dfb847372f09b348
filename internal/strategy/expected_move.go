package strategy

import (
	"math"
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

const (
	// TradingMinutesPerYear is 252 sessions of 6.5 hours.
	TradingMinutesPerYear = 252.0 * 6.5 * 60.0
	// SecondsPerYear is a 365 day calendar year.
	SecondsPerYear = 365.0 * 24.0 * 60.0 * 60.0

	secondsPerDay = 86400.0
	// below this many days the trading-minutes basis is used
	shortDatedDays = 7.0
)

// ExpiryAt returns the session close on the expiry date in loc.
func ExpiryAt(expiry time.Time, sessionClose time.Duration, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := expiry.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(sessionClose)
}

// FractionalDTE returns days from now to expiryAt, floored at zero.
func FractionalDTE(now, expiryAt time.Time) float64 {
	return math.Max(expiryAt.Sub(now).Seconds(), 0) / secondsPerDay
}

// YearFraction converts time to expiry into years. Short-dated expiries use trading minutes,
// longer ones use calendar seconds.
func YearFraction(now, expiryAt time.Time) float64 {
	seconds := math.Max(expiryAt.Sub(now).Seconds(), 0)
	if seconds/secondsPerDay < shortDatedDays {
		return (seconds / 60.0) / TradingMinutesPerYear
	}
	return seconds / SecondsPerYear
}

// ExpectedMove is the one standard deviation move implied by iv over yearFraction.
func ExpectedMove(spot, iv, yearFraction float64) float64 {
	if yearFraction <= 0 || iv <= 0 {
		return 0
	}
	return spot * iv * math.Sqrt(yearFraction)
}

// ATMImpliedVol averages the implied volatility of the call and the put nearest to spot.
// ok is false when either side is empty.
func ATMImpliedVol(calls, puts []models.Quote, spot float64) (iv float64, ok bool) {
	call, okC := nearestStrike(calls, spot)
	put, okP := nearestStrike(puts, spot)
	if !okC || !okP {
		return 0, false
	}
	return (call.ImpliedVolatility + put.ImpliedVolatility) / 2, true
}

func nearestStrike(quotes []models.Quote, target float64) (models.Quote, bool) {
	var best models.Quote
	bestDiff := math.MaxFloat64
	for _, q := range quotes {
		if diff := math.Abs(target - q.Strike); diff < bestDiff {
			bestDiff = diff
			best = q
		}
	}
	return best, bestDiff != math.MaxFloat64
}
