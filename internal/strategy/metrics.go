// Package strategy builds, gates and scores iron condor candidates from an option chain snapshot.
package strategy

import (
	"math"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// CreditMode selects how a vertical's credit is priced.
type CreditMode string

const (
	// CreditMid prices at short mid minus long mid
	CreditMid CreditMode = "mid"
	// CreditConservative prices at short bid minus long ask
	CreditConservative CreditMode = "conservative"
)

// Valid returns true if the CreditMode is one of the defined constants
func (m CreditMode) Valid() bool {
	switch m {
	case CreditMid, CreditConservative:
		return true
	default:
		return false
	}
}

const scoreEpsilon = 1e-9

// Vertical builds a vertical spread. Credit is clamped at zero.
func Vertical(short, long models.Quote, side models.OptionRight, mode CreditMode) models.VerticalSpread {
	width := math.Abs(long.Strike - short.Strike)

	var credit float64
	switch mode {
	case CreditConservative:
		credit = short.Bid - long.Ask
	case CreditMid:
		credit = short.Mid() - long.Mid()
	default:
		credit = short.Mid() - long.Mid()
	}
	credit = math.Max(0, credit)

	ratio := 0.0
	if width > 0 {
		ratio = credit / width
	}

	return models.VerticalSpread{
		Side:        side,
		Short:       short,
		Long:        long,
		Width:       width,
		Credit:      credit,
		CreditRatio: ratio,
		ShortDelta:  short.DeltaPtr(),
		LongDelta:   long.DeltaPtr(),
	}
}

// IsCreditVertical reports whether the short strike sits closer to the money than the long strike.
func IsCreditVertical(v models.VerticalSpread) bool {
	if v.Short.Right != v.Side || v.Long.Right != v.Side {
		return false
	}
	switch v.Side {
	case models.RightPut:
		return v.Short.Strike > v.Long.Strike
	case models.RightCall:
		return v.Short.Strike < v.Long.Strike
	default:
		return false
	}
}

// IsDefinedRisk is the hard structural gate for a put/call vertical pair.
func IsDefinedRisk(put, call models.VerticalSpread, spot float64, requireBracket bool) bool {
	if put.Side != models.RightPut || call.Side != models.RightCall {
		return false
	}
	if !IsCreditVertical(put) || !IsCreditVertical(call) {
		return false
	}
	lp, sp, sc, lc := put.Long.Strike, put.Short.Strike, call.Short.Strike, call.Long.Strike
	if !(lp < sp && sp < sc && sc < lc) {
		return false
	}
	if requireBracket && !(sp < spot && spot < sc) {
		return false
	}
	return true
}

// IronCondor combines two verticals into a candidate. Scores other than centering and
// delta balance are left for the scorer.
func IronCondor(put, call models.VerticalSpread, spot, expectedMove, emBuffer float64) models.IronCondorCandidate {
	totalCredit := put.Credit + call.Credit
	maxWidth := math.Max(put.Width, call.Width)
	maxLoss := maxWidth - totalCredit

	rr := 0.0
	if maxLoss > 0 {
		rr = totalCredit / maxLoss
	}

	lo := spot - expectedMove*emBuffer
	hi := spot + expectedMove*emBuffer
	sp, sc := put.Short.Strike, call.Short.Strike

	return models.IronCondorCandidate{
		Put:          put,
		Call:         call,
		TotalCredit:  totalCredit,
		MaxWidth:     maxWidth,
		MaxLoss:      maxLoss,
		RewardRisk:   rr,
		ExpectedMove: expectedMove,
		EMLow:        lo,
		EMHigh:       hi,
		EMOK:         sp <= lo && sc >= hi,
		Cushion:      math.Min(lo-sp, sc-hi),
	}
}

// CenteringScore is 1 when spot sits exactly between the short strikes and 0 when it is
// outside them.
func CenteringScore(shortPutStrike, shortCallStrike, spot float64) float64 {
	dPut := spot - shortPutStrike
	dCall := shortCallStrike - spot
	if dPut <= 0 || dCall <= 0 {
		return 0
	}
	return math.Min(dPut, dCall) / math.Max(dPut, dCall)
}

// DeltaBalanceScore measures how well the short deltas offset. missing is returned when
// either delta is unknown.
func DeltaBalanceScore(shortPutDelta, shortCallDelta *float64, missing float64) float64 {
	if shortPutDelta == nil || shortCallDelta == nil {
		return missing
	}
	net := *shortCallDelta + *shortPutDelta
	imbalance := math.Abs(net) / (math.Abs(*shortCallDelta) + math.Abs(*shortPutDelta) + scoreEpsilon)
	return clamp(1-imbalance, 0, 1)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
