package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

var finderNow = time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)

func testFinder() *Finder {
	scoring := DefaultScoringConfig
	// the synthetic ladder prices every vertical at 0.12 credit per point
	scoring.MinCreditRatio = 0.10
	return NewFinder(FinderConfig{
		Location:  time.UTC,
		Selection: DefaultSelectionConfig,
		Scoring:   scoring,
	}, nil)
}

func TestFinder_NoChain(t *testing.T) {
	f := testFinder()

	res := f.FindBest(nil, finderNow)
	assert.ErrorIs(t, res.Err, ErrNoChain)
	assert.False(t, res.HasResult())

	res = f.FindBest(newFakeChain(500), finderNow)
	assert.ErrorIs(t, res.Err, ErrNoChain)

	res = f.FindBest(newFakeChain(0, condorChain(testExpiry, 500, 0.05)...), finderNow)
	assert.ErrorIs(t, res.Err, ErrNoChain)
}

func TestFinder_NoValidExpiries(t *testing.T) {
	far := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	res := testFinder().FindBest(newFakeChain(500, condorChain(far, 500, 0.05)...), finderNow)
	assert.ErrorIs(t, res.Err, ErrNoValidExpiries)
	assert.Empty(t, res.ByExpiry)
}

func TestFinder_ValidExpiries(t *testing.T) {
	near := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	far := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	expired := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)

	var quotes []models.Quote
	for _, e := range []time.Time{far, near, expired, testExpiry} {
		quotes = append(quotes, condorChain(e, 500, 0.05)...)
	}
	got := testFinder().ValidExpiries(newFakeChain(500, quotes...), finderNow)
	assert.Equal(t, []time.Time{testExpiry, near}, got)
}

func TestFinder_FindsCandidate(t *testing.T) {
	res := testFinder().FindBest(newFakeChain(500, condorChain(testExpiry, 500, 0.05)...), finderNow)
	require.NoError(t, res.Err)
	require.True(t, res.HasResult())
	assert.Equal(t, "2025-03-14", res.BestExpiry)

	er := res.ByExpiry["2025-03-14"]
	require.NotNil(t, er)
	assert.InDelta(t, 0.05, er.ImpliedVol, 1e-12)
	assert.Greater(t, er.ExpectedMove, 0.0)
	assert.InDelta(t, 2+1.0/24, er.DTE, 1e-9)

	best := res.Best
	assert.True(t, best.HasOrderedStrikes())
	assert.True(t, best.EMOK)
	assert.GreaterOrEqual(t, best.RewardRisk, DefaultScoringConfig.MinRR)
	for _, c := range er.Score.Candidates {
		assert.LessOrEqual(t, c.OverallScore, best.OverallScore)
	}
}

func TestFinder_BestAcrossExpiries(t *testing.T) {
	near := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	quotes := append(condorChain(testExpiry, 500, 0.05), condorChain(near, 500, 0.05)...)

	res := testFinder().FindBest(newFakeChain(500, quotes...), finderNow)
	require.NoError(t, res.Err)
	require.Len(t, res.ByExpiry, 2)
	require.Contains(t, res.ByExpiry, res.BestExpiry)

	for key, er := range res.ByExpiry {
		if er.Score.HasResult() {
			assert.LessOrEqual(t, er.Score.Best.OverallScore, res.Best.OverallScore, key)
		}
	}
}

func TestFinder_NoCandidates(t *testing.T) {
	// a huge implied vol pushes the expected move beyond every short strike
	res := testFinder().FindBest(newFakeChain(500, condorChain(testExpiry, 500, 1.0)...), finderNow)
	assert.ErrorIs(t, res.Err, ErrNoCandidates)
	assert.False(t, res.HasResult())

	er := res.ByExpiry["2025-03-14"]
	require.NotNil(t, er)
	assert.Greater(t, er.Score.Rejections[RejectEM], 0)
}

func TestFinder_MalformedQuoteAbortsCycle(t *testing.T) {
	quotes := condorChain(testExpiry, 500, 0.05)
	for i := range quotes {
		if quotes[i].Right == models.RightPut && quotes[i].Strike == 485 {
			quotes[i].Bid = -0.1
		}
	}

	res := testFinder().FindBest(newFakeChain(500, quotes...), finderNow)
	require.Error(t, res.Err)
	assert.False(t, res.HasResult())
	assert.Empty(t, res.BestExpiry)

	var ce *CandidateError
	require.True(t, errors.As(res.Err, &ce))
	assert.Equal(t, 485.0, ce.LongPutStrike)
}
