package strategy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// Chain is a read-only option chain snapshot for one underlying.
type Chain interface {
	Underlying() string
	Spot() float64
	Expiries() []time.Time
	Quotes(expiry time.Time, right models.OptionRight) []models.Quote
	Lookup(expiry time.Time, right models.OptionRight, strike float64) (models.Quote, bool)
}

// FinderConfig configures expiry discovery, selection and scoring.
type FinderConfig struct {
	Location     *time.Location
	Selection    SelectionConfig
	Scoring      ScoringConfig
	SessionClose time.Duration // offset from midnight, e.g. 16h
}

// ExpiryResult is the per-expiry outcome.
type ExpiryResult struct {
	Score        *ScoreResult
	Expiry       time.Time
	DTE          float64
	ImpliedVol   float64
	ExpectedMove float64
}

// FinderResult collects per-expiry results and the best candidate across expiries.
// Err is set instead of returning an error when nothing usable was found.
type FinderResult struct {
	Err        error
	Best       *models.IronCondorCandidate
	ByExpiry   map[string]*ExpiryResult
	BestExpiry string
}

// HasResult reports whether a best candidate exists.
func (r *FinderResult) HasResult() bool {
	return r != nil && r.Best != nil
}

// Finder orchestrates expiry discovery, expected move sizing, selection and scoring.
type Finder struct {
	selector *Selector
	scorer   *Scorer
	logger   logrus.FieldLogger
	config   FinderConfig
}

// NewFinder creates a finder.
func NewFinder(config FinderConfig, logger logrus.FieldLogger) *Finder {
	if logger == nil {
		logger = logrus.New().WithField("component", "finder")
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.SessionClose <= 0 {
		config.SessionClose = 16 * time.Hour
	}
	return &Finder{
		selector: NewSelector(config.Selection),
		scorer:   NewScorer(config.Scoring),
		logger:   logger,
		config:   config,
	}
}

// ValidExpiries returns unexpired expiries whose fractional DTE lies inside the configured range, sorted ascending.
func (f *Finder) ValidExpiries(chain Chain, now time.Time) []time.Time {
	var out []time.Time
	for _, exp := range chain.Expiries() {
		expiryAt := ExpiryAt(exp, f.config.SessionClose, f.config.Location)
		if !expiryAt.After(now) {
			continue
		}
		if f.config.Selection.DTERange.Contains(FractionalDTE(now, expiryAt)) {
			out = append(out, exp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// FindBest runs selection and scoring on every valid expiry. It never panics on missing data;
// failures are reported through FinderResult.Err.
func (f *Finder) FindBest(chain Chain, now time.Time) *FinderResult {
	result := &FinderResult{ByExpiry: make(map[string]*ExpiryResult)}

	if chain == nil || len(chain.Expiries()) == 0 || chain.Spot() <= 0 {
		result.Err = ErrNoChain
		return result
	}

	expiries := f.ValidExpiries(chain, now)
	if len(expiries) == 0 {
		result.Err = ErrNoValidExpiries
		return result
	}

	spot := chain.Spot()
	for _, exp := range expiries {
		er, err := f.evaluateExpiry(chain, exp, spot, now)
		if err != nil {
			result.Err = fmt.Errorf("evaluating expiry %s: %w", exp.Format(models.ExpiryLayout), err)
			result.Best = nil
			result.BestExpiry = ""
			return result
		}
		if er == nil {
			continue
		}
		key := exp.Format(models.ExpiryLayout)
		result.ByExpiry[key] = er
		if er.Score.HasResult() && (result.Best == nil || er.Score.Best.OverallScore > result.Best.OverallScore) {
			result.Best = er.Score.Best
			result.BestExpiry = key
		}
	}

	if !result.HasResult() {
		result.Err = ErrNoCandidates
	}
	return result
}

func (f *Finder) evaluateExpiry(chain Chain, exp time.Time, spot float64, now time.Time) (*ExpiryResult, error) {
	calls := chain.Quotes(exp, models.RightCall)
	puts := chain.Quotes(exp, models.RightPut)
	log := f.logger.WithField("expiry", exp.Format(models.ExpiryLayout))
	if len(calls) == 0 || len(puts) == 0 {
		log.Debug("Expiry has no calls or no puts")
		return nil, nil
	}

	iv, ok := ATMImpliedVol(calls, puts, spot)
	if !ok {
		return nil, nil
	}
	expiryAt := ExpiryAt(exp, f.config.SessionClose, f.config.Location)
	em := ExpectedMove(spot, iv, YearFraction(now, expiryAt))

	sel := f.selector.Select(calls, puts)
	putVerticals := f.scorer.Prune(sel.PutVerticals)
	callVerticals := f.scorer.Prune(sel.CallVerticals)

	er := &ExpiryResult{
		Expiry:       exp,
		DTE:          FractionalDTE(now, expiryAt),
		ImpliedVol:   iv,
		ExpectedMove: em,
		Score:        &ScoreResult{Rejections: map[string]int{}},
	}
	if len(putVerticals) == 0 || len(callVerticals) == 0 {
		log.WithFields(logrus.Fields{
			"put_verticals":  len(sel.PutVerticals),
			"call_verticals": len(sel.CallVerticals),
		}).Debug("No verticals survived selection")
		return er, nil
	}

	score, err := f.scorer.Rank(putVerticals, callVerticals, spot, em)
	if err != nil {
		var ce *CandidateError
		if errors.As(err, &ce) {
			log.WithError(err).Warn("Candidate data rejected, aborting cycle")
		}
		return nil, err
	}
	er.Score = score

	log.WithFields(logrus.Fields{
		"iv":         iv,
		"em":         em,
		"evaluated":  score.Evaluated,
		"passed":     len(score.Candidates),
		"rejections": score.Rejections,
	}).Debug("Expiry scored")
	return er, nil
}
