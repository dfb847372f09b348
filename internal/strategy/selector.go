package strategy

import (
	"math"
	"sort"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports Min <= x <= Max.
func (r Range) Contains(x float64) bool {
	return r.Min <= x && x <= r.Max
}

// SelectionMode chooses how short and long legs are picked.
type SelectionMode string

const (
	// ModeVariable pairs every short in the delta range with every long in the width range
	ModeVariable SelectionMode = "variable"
	// ModeFixedWidth pairs each short with the tradeable long nearest a fixed width away
	ModeFixedWidth SelectionMode = "fixed_width"
	// ModeFixedDelta uses one short per side, the one nearest the target delta
	ModeFixedDelta SelectionMode = "fixed_delta"
)

// Valid returns true if the SelectionMode is one of the defined constants
func (m SelectionMode) Valid() bool {
	switch m {
	case ModeVariable, ModeFixedWidth, ModeFixedDelta:
		return true
	default:
		return false
	}
}

// SelectionConfig holds contract selection parameters.
type SelectionConfig struct {
	Mode             SelectionMode `yaml:"mode"`
	CreditMode       CreditMode    `yaml:"credit_mode"`
	DTERange         Range         `yaml:"dte_range"`
	CallDeltaRange   Range         `yaml:"call_delta_range"`
	PutDeltaRange    Range         `yaml:"put_delta_range"`
	WidthRange       Range         `yaml:"width_range"`
	FixedWidth       float64       `yaml:"fixed_width"`
	ShortDeltaTarget float64       `yaml:"short_delta_target"` // absolute delta, fixed-delta mode
	MaxRelSpread     float64       `yaml:"max_rel_spread"`     // fixed-width long leg liquidity filter
}

// DefaultSelectionConfig mirrors the strategy defaults.
var DefaultSelectionConfig = SelectionConfig{
	Mode:             ModeVariable,
	CreditMode:       CreditMid,
	DTERange:         Range{Min: 0, Max: 7},
	CallDeltaRange:   Range{Min: 0.15, Max: 0.25},
	PutDeltaRange:    Range{Min: -0.25, Max: -0.15},
	WidthRange:       Range{Min: 2, Max: 10},
	ShortDeltaTarget: 0.20,
	MaxRelSpread:     0.5,
}

// Selection is the output of the contract selector for one expiry.
type Selection struct {
	PutVerticals  []models.VerticalSpread
	CallVerticals []models.VerticalSpread
}

// Empty reports whether either side has no verticals.
func (s Selection) Empty() bool {
	return len(s.PutVerticals) == 0 || len(s.CallVerticals) == 0
}

// Selector turns same-expiry quotes into vertical spread candidates.
type Selector struct {
	config SelectionConfig
}

// NewSelector creates a selector.
func NewSelector(config SelectionConfig) *Selector {
	if !config.Mode.Valid() {
		config.Mode = ModeVariable
	}
	if !config.CreditMode.Valid() {
		config.CreditMode = CreditMid
	}
	return &Selector{config: config}
}

// Select builds put and call verticals. An empty short set yields an empty selection.
func (s *Selector) Select(calls, puts []models.Quote) Selection {
	return Selection{
		PutVerticals:  s.verticals(puts, models.RightPut),
		CallVerticals: s.verticals(calls, models.RightCall),
	}
}

func (s *Selector) verticals(quotes []models.Quote, side models.OptionRight) []models.VerticalSpread {
	var out []models.VerticalSpread
	for _, short := range s.ShortCandidates(quotes, side) {
		for _, long := range s.LongCandidates(short, quotes, side) {
			out = append(out, Vertical(short, long, side, s.config.CreditMode))
		}
	}
	return out
}

// ShortCandidates returns the quotes eligible as the sold leg of a side.
func (s *Selector) ShortCandidates(quotes []models.Quote, side models.OptionRight) []models.Quote {
	if s.config.Mode == ModeFixedDelta {
		if q, ok := nearestAbsDelta(quotes, side, s.config.ShortDeltaTarget); ok {
			return []models.Quote{q}
		}
		return nil
	}

	deltaRange := s.config.CallDeltaRange
	if side == models.RightPut {
		deltaRange = s.config.PutDeltaRange
	}
	var out []models.Quote
	for _, q := range quotes {
		if q.Right != side {
			continue
		}
		if d, ok := q.Delta(); ok && deltaRange.Contains(d) {
			out = append(out, q)
		}
	}
	return out
}

// LongCandidates returns protective legs for a short, strictly further out of the money.
func (s *Selector) LongCandidates(short models.Quote, quotes []models.Quote, side models.OptionRight) []models.Quote {
	if s.config.Mode == ModeFixedWidth || (s.config.Mode == ModeFixedDelta && s.config.FixedWidth > 0) {
		if q, ok := s.fixedWidthLong(short, quotes, side); ok {
			return []models.Quote{q}
		}
		return nil
	}

	var out []models.Quote
	for _, q := range quotes {
		if q.Right != side {
			continue
		}
		dist, ok := otmDistance(short, q, side)
		if ok && s.config.WidthRange.Contains(dist) {
			out = append(out, q)
		}
	}
	return out
}

func (s *Selector) fixedWidthLong(short models.Quote, quotes []models.Quote, side models.OptionRight) (models.Quote, bool) {
	target := short.Strike + s.config.FixedWidth
	if side == models.RightPut {
		target = short.Strike - s.config.FixedWidth
	}
	var best models.Quote
	bestDiff := math.MaxFloat64
	for _, q := range quotes {
		if q.Right != side || !q.IsTradeable(s.config.MaxRelSpread) {
			continue
		}
		if _, ok := otmDistance(short, q, side); !ok {
			continue
		}
		if diff := math.Abs(q.Strike - target); diff < bestDiff {
			bestDiff = diff
			best = q
		}
	}
	return best, bestDiff != math.MaxFloat64
}

// otmDistance is the strike distance of long beyond short; ok is false unless long is further OTM.
func otmDistance(short, long models.Quote, side models.OptionRight) (float64, bool) {
	switch side {
	case models.RightCall:
		return long.Strike - short.Strike, long.Strike > short.Strike
	case models.RightPut:
		return short.Strike - long.Strike, long.Strike < short.Strike
	default:
		return 0, false
	}
}

func nearestAbsDelta(quotes []models.Quote, side models.OptionRight, target float64) (models.Quote, bool) {
	var best models.Quote
	bestDiff := math.MaxFloat64
	for _, q := range quotes {
		if q.Right != side {
			continue
		}
		d, ok := q.Delta()
		if !ok {
			continue
		}
		if diff := math.Abs(math.Abs(d) - math.Abs(target)); diff < bestDiff {
			bestDiff = diff
			best = q
		}
	}
	return best, bestDiff != math.MaxFloat64
}

// PruneVerticals drops thin verticals and keeps the topN by credit ratio, then credit.
// topN <= 0 keeps all survivors.
func PruneVerticals(verticals []models.VerticalSpread, minCredit, minRatio float64, topN int) []models.VerticalSpread {
	kept := make([]models.VerticalSpread, 0, len(verticals))
	for _, v := range verticals {
		if v.Width > 0 && v.Credit >= minCredit && v.CreditRatio >= minRatio {
			kept = append(kept, v)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].CreditRatio != kept[j].CreditRatio {
			return kept[i].CreditRatio > kept[j].CreditRatio
		}
		return kept[i].Credit > kept[j].Credit
	})
	if topN > 0 && len(kept) > topN {
		kept = kept[:topN]
	}
	return kept
}
