package models

import (
	"fmt"
	"time"
)

// OptionRight is the side of an option contract.
type OptionRight string

const (
	// RightPut is a put option
	RightPut OptionRight = "put"
	// RightCall is a call option
	RightCall OptionRight = "call"
)

// Valid returns true if the OptionRight is one of the defined constants
func (r OptionRight) Valid() bool {
	switch r {
	case RightPut, RightCall:
		return true
	default:
		return false
	}
}

// Greeks holds externally supplied option sensitivities.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Quote is a normalized option quote. It is immutable for the duration of an evaluation tick.
type Quote struct {
	Greeks            *Greeks     `json:"greeks,omitempty"` // nil when the feed has no greeks
	Expiry            time.Time   `json:"expiry"`
	Symbol            string      `json:"symbol"`
	Underlying        string      `json:"underlying"`
	Right             OptionRight `json:"right"`
	Strike            float64     `json:"strike"`
	Bid               float64     `json:"bid"`
	Ask               float64     `json:"ask"`
	Last              float64     `json:"last"`
	ImpliedVolatility float64     `json:"implied_volatility"`
	Volume            int64       `json:"volume"`
	OpenInterest      int64       `json:"open_interest"`
}

// Mid returns the bid/ask midpoint, or 0 unless both sides are quoted.
func (q Quote) Mid() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

// Delta returns the quote delta and whether it is present.
func (q Quote) Delta() (float64, bool) {
	if q.Greeks == nil {
		return 0, false
	}
	return q.Greeks.Delta, true
}

// DeltaPtr returns a copy of the delta, or nil when greeks are missing.
func (q Quote) DeltaPtr() *float64 {
	d, ok := q.Delta()
	if !ok {
		return nil
	}
	return &d
}

// RelativeSpread returns (ask-bid)/mid with the mid floored at 1e-6.
func (q Quote) RelativeSpread() float64 {
	mid := (q.Bid + q.Ask) / 2
	if mid < 1e-6 {
		mid = 1e-6
	}
	return (q.Ask - q.Bid) / mid
}

// IsTradeable reports whether the quote has a live two-sided market no wider than maxRelSpread.
func (q Quote) IsTradeable(maxRelSpread float64) bool {
	return q.Bid > 0 && q.Ask > q.Bid && q.RelativeSpread() <= maxRelSpread
}

// ExpiryKey returns the expiry as YYYY-MM-DD.
func (q Quote) ExpiryKey() string {
	return q.Expiry.Format(ExpiryLayout)
}

// String implements fmt.Stringer
func (q Quote) String() string {
	return fmt.Sprintf("%s %s %.2f %s", q.Underlying, q.ExpiryKey(), q.Strike, q.Right)
}

// ExpiryLayout is the date layout used for expiry keys.
const ExpiryLayout = "2006-01-02"
