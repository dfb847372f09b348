package strategy

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

func TestScorer_WorkedExample(t *testing.T) {
	s := NewScorer(DefaultScoringConfig)

	puts := []models.VerticalSpread{
		vertical(models.RightPut, 494, 490, 1.0, 0.4), // A
		vertical(models.RightPut, 497, 492, 1.0, 0.4), // B
	}
	calls := []models.VerticalSpread{
		vertical(models.RightCall, 506, 510, 1.0, 0.4), // A
		vertical(models.RightCall, 504, 509, 1.0, 0.4), // B
	}

	res, err := s.Rank(puts, calls, 500, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Evaluated)
	assert.Equal(t, 3, res.Rejections[RejectEM])
	require.True(t, res.HasResult())
	require.Len(t, res.Candidates, 1)

	best := res.Best
	assert.Equal(t, [4]float64{490, 494, 506, 510}, best.Strikes())
	assert.InDelta(t, 1.0, best.Cushion, 1e-9)
	assert.Equal(t, 1.0, best.CenteringScore)
	// no greeks on the fixtures, so balance falls back to the missing score
	assert.Equal(t, 0.5, best.DeltaBalanceScore)

	want := 2.0*(1.2/2.8) + 1.0*1.0 + 0.5*1.0 + 0.5*0.5
	assert.InDelta(t, want, best.OverallScore, 1e-9)
	assert.InDelta(t, best.RRScore+best.CushionScore+best.CenterScore+best.BalanceScore, best.OverallScore, 1e-12)
}

func TestScorer_Gates(t *testing.T) {
	tests := []struct {
		name   string
		put    models.VerticalSpread
		call   models.VerticalSpread
		config func(*ScoringConfig)
		reason string
	}{
		{
			name:   "overlapping shorts",
			put:    vertical(models.RightPut, 494, 490, 1.0, 0.4),
			call:   vertical(models.RightCall, 492, 496, 1.0, 0.4),
			reason: RejectNotDefinedRisk,
		},
		{
			name:   "spot outside shorts",
			put:    vertical(models.RightPut, 503, 499, 1.0, 0.4),
			call:   vertical(models.RightCall, 506, 510, 1.0, 0.4),
			reason: RejectNotDefinedRisk,
		},
		{
			name:   "inside expected move",
			put:    vertical(models.RightPut, 497, 492, 1.0, 0.4),
			call:   vertical(models.RightCall, 506, 510, 1.0, 0.4),
			reason: RejectEM,
		},
		{
			name:   "credit exceeds width",
			put:    vertical(models.RightPut, 494, 490, 3.0, 0.5),
			call:   vertical(models.RightCall, 506, 510, 3.0, 0.5),
			reason: RejectMaxLoss,
		},
		{
			name:   "reward risk below minimum",
			put:    vertical(models.RightPut, 494, 490, 1.0, 0.4),
			call:   vertical(models.RightCall, 506, 510, 1.0, 0.4),
			config: func(c *ScoringConfig) { c.MinRR = 0.5 },
			reason: RejectRewardRisk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultScoringConfig
			if tt.config != nil {
				tt.config(&cfg)
			}
			res, err := NewScorer(cfg).Rank([]models.VerticalSpread{tt.put}, []models.VerticalSpread{tt.call}, 500, 5)
			require.NoError(t, err)
			assert.False(t, res.HasResult())
			assert.Empty(t, res.Candidates)
			assert.Equal(t, 1, res.Rejections[tt.reason])
		})
	}
}

func TestScorer_WithoutBracket(t *testing.T) {
	cfg := DefaultScoringConfig
	cfg.RequireBracket = false
	// short put sits on spot
	put := vertical(models.RightPut, 500, 496, 1.0, 0.4)
	call := vertical(models.RightCall, 506, 510, 1.0, 0.4)

	res, err := NewScorer(cfg).Rank([]models.VerticalSpread{put}, []models.VerticalSpread{call}, 500, 0)
	require.NoError(t, err)
	require.True(t, res.HasResult())
	assert.Equal(t, 0.0, res.Best.CenteringScore)
}

func TestScorer_MalformedQuote(t *testing.T) {
	s := NewScorer(DefaultScoringConfig)
	call := vertical(models.RightCall, 506, 510, 1.0, 0.4)

	nanStrike := vertical(models.RightPut, 494, 490, 1.0, 0.4)
	nanStrike.Short.Strike = math.NaN()
	_, err := s.Rank([]models.VerticalSpread{nanStrike}, []models.VerticalSpread{call}, 500, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedQuote))

	var ce *CandidateError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 490.0, ce.LongPutStrike)
	assert.Equal(t, 506.0, ce.ShortCallStrike)
	assert.Equal(t, "2025-03-14", ce.Expiry)

	negBid := vertical(models.RightPut, 494, 490, 1.0, 0.4)
	negBid.Long.Bid = -0.1
	_, err = s.Rank([]models.VerticalSpread{negBid}, []models.VerticalSpread{call}, 500, 5)
	assert.ErrorIs(t, err, ErrMalformedQuote)
}

func TestScorer_Prune(t *testing.T) {
	cfg := DefaultScoringConfig
	cfg.TopNPerSide = 1
	s := NewScorer(cfg)
	got := s.Prune([]models.VerticalSpread{
		vertical(models.RightPut, 494, 490, 1.0, 0.4),
		vertical(models.RightPut, 494, 492, 1.0, 0.4),
	})
	require.Len(t, got, 1)
	assert.Equal(t, 492.0, got[0].Long.Strike)
	assert.Equal(t, 1, s.Config().TopNPerSide)
}
