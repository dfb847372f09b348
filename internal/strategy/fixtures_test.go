package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

var testExpiry = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func quote(strike float64, right models.OptionRight, bid, ask float64) models.Quote {
	return models.Quote{
		Symbol:     fmt.Sprintf("SPY-%s-%s-%.0f", testExpiry.Format("060102"), right, strike),
		Underlying: "SPY",
		Expiry:     testExpiry,
		Right:      right,
		Strike:     strike,
		Bid:        bid,
		Ask:        ask,
	}
}

func withDelta(q models.Quote, delta float64) models.Quote {
	q.Greeks = &models.Greeks{Delta: delta}
	return q
}

func withIV(q models.Quote, iv float64) models.Quote {
	q.ImpliedVolatility = iv
	return q
}

func vertical(side models.OptionRight, short, long float64, shortMid, longMid float64) models.VerticalSpread {
	s := quote(short, side, shortMid-0.05, shortMid+0.05)
	l := quote(long, side, longMid-0.05, longMid+0.05)
	return Vertical(s, l, side, CreditMid)
}

func ptr(f float64) *float64 { return &f }

// fakeChain is an in-memory Chain.
type fakeChain struct {
	quotes map[time.Time][]models.Quote
	spot   float64
}

func newFakeChain(spot float64, quotes ...models.Quote) *fakeChain {
	c := &fakeChain{spot: spot, quotes: make(map[time.Time][]models.Quote)}
	for _, q := range quotes {
		c.quotes[q.Expiry] = append(c.quotes[q.Expiry], q)
	}
	return c
}

func (c *fakeChain) Underlying() string { return "SPY" }
func (c *fakeChain) Spot() float64      { return c.spot }

func (c *fakeChain) Expiries() []time.Time {
	out := make([]time.Time, 0, len(c.quotes))
	for e := range c.quotes {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (c *fakeChain) Quotes(expiry time.Time, right models.OptionRight) []models.Quote {
	var out []models.Quote
	for _, q := range c.quotes[expiry] {
		if q.Right == right {
			out = append(out, q)
		}
	}
	return out
}

func (c *fakeChain) Lookup(expiry time.Time, right models.OptionRight, strike float64) (models.Quote, bool) {
	for _, q := range c.quotes[expiry] {
		if q.Right == right && q.Strike == strike {
			return q, true
		}
	}
	return models.Quote{}, false
}

// condorChain builds a 1-point strike ladder around spot with deltas that decay away from the money.
func condorChain(expiry time.Time, spot, iv float64) []models.Quote {
	var out []models.Quote
	for k := spot - 20; k <= spot+20; k++ {
		dist := k - spot
		callDelta := 0.5 - dist*0.03
		putDelta := -0.5 - dist*0.03
		callMid := maxf(0.05, 2.5-dist*0.12)
		putMid := maxf(0.05, 2.5+dist*0.12)

		c := withIV(withDelta(quote(k, models.RightCall, callMid-0.02, callMid+0.02), clampf(callDelta, 0.01, 0.99)), iv)
		p := withIV(withDelta(quote(k, models.RightPut, putMid-0.02, putMid+0.02), clampf(putDelta, -0.99, -0.01)), iv)
		c.Expiry, p.Expiry = expiry, expiry
		out = append(out, c, p)
	}
	return out
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func clampf(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
