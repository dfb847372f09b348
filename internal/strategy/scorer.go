package strategy

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// Weights are the composite score coefficients. Units are mixed and not normalized.
type Weights struct {
	RR      float64 `yaml:"rr"`
	Cushion float64 `yaml:"cushion"`
	Center  float64 `yaml:"center"`
	Balance float64 `yaml:"balance"`
}

// ScoringConfig holds the gates and weights of the scorer.
type ScoringConfig struct {
	Weights           Weights `yaml:"weights"`
	EMBuffer          float64 `yaml:"em_buffer"`
	MinRR             float64 `yaml:"min_rr"`
	MissingDeltaScore float64 `yaml:"missing_delta_score"`
	MinVerticalCredit float64 `yaml:"min_vertical_credit"`
	MinCreditRatio    float64 `yaml:"min_credit_ratio"`
	TopNPerSide       int     `yaml:"top_n_per_side"`
	RequireBracket    bool    `yaml:"require_bracket"`
}

// DefaultScoringConfig mirrors the strategy defaults.
var DefaultScoringConfig = ScoringConfig{
	Weights:           Weights{RR: 2.0, Cushion: 1.0, Center: 0.5, Balance: 0.5},
	EMBuffer:          1.0,
	MinRR:             0.12,
	MissingDeltaScore: 0.5,
	MinVerticalCredit: 0.05,
	MinCreditRatio:    0.15,
	TopNPerSide:       25,
	RequireBracket:    true,
}

// Rejection reasons counted by the scorer.
const (
	RejectNotDefinedRisk = "not_defined_risk"
	RejectEM             = "expected_move"
	RejectMaxLoss        = "max_loss"
	RejectRewardRisk     = "reward_risk"
)

// ScoreResult is the outcome of ranking one expiry.
type ScoreResult struct {
	Best       *models.IronCondorCandidate
	Rejections map[string]int
	Candidates []models.IronCondorCandidate
	Evaluated  int
}

// HasResult reports whether any candidate passed.
func (r *ScoreResult) HasResult() bool {
	return r != nil && r.Best != nil
}

// Scorer gates and ranks iron condor pairs.
type Scorer struct {
	config ScoringConfig
}

// NewScorer creates a scorer.
func NewScorer(config ScoringConfig) *Scorer {
	return &Scorer{config: config}
}

// Config returns the scorer configuration.
func (s *Scorer) Config() ScoringConfig {
	return s.config
}

// Prune applies the per-side vertical filters before pairing.
func (s *Scorer) Prune(verticals []models.VerticalSpread) []models.VerticalSpread {
	return PruneVerticals(verticals, s.config.MinVerticalCredit, s.config.MinCreditRatio, s.config.TopNPerSide)
}

// Rank evaluates every put/call pair. Gate failures are silent rejections; malformed quote
// data aborts with a CandidateError.
func (s *Scorer) Rank(puts, calls []models.VerticalSpread, spot, expectedMove float64) (*ScoreResult, error) {
	result := &ScoreResult{Rejections: make(map[string]int)}

	for _, pv := range puts {
		for _, cv := range calls {
			result.Evaluated++
			if err := validateVerticals(pv, cv); err != nil {
				return nil, newCandidateError(pv, cv, err)
			}

			if !IsDefinedRisk(pv, cv, spot, s.config.RequireBracket) {
				result.Rejections[RejectNotDefinedRisk]++
				continue
			}

			ic := IronCondor(pv, cv, spot, expectedMove, s.config.EMBuffer)
			switch {
			case !ic.EMOK:
				result.Rejections[RejectEM]++
				continue
			case ic.MaxLoss <= 0:
				result.Rejections[RejectMaxLoss]++
				continue
			case ic.RewardRisk < s.config.MinRR:
				result.Rejections[RejectRewardRisk]++
				continue
			}

			s.score(&ic, spot)
			result.Candidates = append(result.Candidates, ic)
			if result.Best == nil || ic.OverallScore > result.Best.OverallScore {
				best := ic
				result.Best = &best
			}
		}
	}
	return result, nil
}

func (s *Scorer) score(ic *models.IronCondorCandidate, spot float64) {
	w := s.config.Weights
	ic.CenteringScore = CenteringScore(ic.Put.Short.Strike, ic.Call.Short.Strike, spot)
	ic.DeltaBalanceScore = DeltaBalanceScore(ic.Put.ShortDelta, ic.Call.ShortDelta, s.config.MissingDeltaScore)

	ic.RRScore = w.RR * ic.RewardRisk
	ic.CushionScore = w.Cushion * ic.Cushion
	ic.CenterScore = w.Center * ic.CenteringScore
	ic.BalanceScore = w.Balance * ic.DeltaBalanceScore
	ic.OverallScore = ic.RRScore + ic.CushionScore + ic.CenterScore + ic.BalanceScore
}

func validateVerticals(put, call models.VerticalSpread) error {
	for _, q := range []models.Quote{put.Short, put.Long, call.Short, call.Long} {
		if !finite(q.Strike) || q.Strike <= 0 {
			return fmt.Errorf("%w: strike %v", ErrMalformedQuote, q.Strike)
		}
		if !finite(q.Bid) || !finite(q.Ask) || q.Bid < 0 || q.Ask < 0 {
			return fmt.Errorf("%w: %s bid %v ask %v", ErrMalformedQuote, q.Symbol, q.Bid, q.Ask)
		}
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
