package models

import (
	"fmt"
	"strings"
	"time"
)

var testExpiry = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func testQuote(strike float64, right OptionRight, bid, ask float64) Quote {
	return Quote{
		Symbol:     fmt.Sprintf("SPY250314%s%08d", strings.ToUpper(string(right)[:1]), int(strike*1000)),
		Underlying: "SPY",
		Expiry:     testExpiry,
		Right:      right,
		Strike:     strike,
		Bid:        bid,
		Ask:        ask,
	}
}

func testCandidate() *IronCondorCandidate {
	return &IronCondorCandidate{
		Put: VerticalSpread{
			Side:  RightPut,
			Short: testQuote(494, RightPut, 1.45, 1.55),
			Long:  testQuote(490, RightPut, 0.45, 0.55),
			Width: 4,
		},
		Call: VerticalSpread{
			Side:  RightCall,
			Short: testQuote(506, RightCall, 1.35, 1.45),
			Long:  testQuote(510, RightCall, 0.40, 0.50),
			Width: 4,
		},
	}
}

func fillAll(g *LegGroup, prices map[LegRole]float64) {
	for _, role := range LegRoles {
		leg := g.Leg(role)
		g.SetFillPrice(leg.Quote.Symbol, prices[role])
	}
}
