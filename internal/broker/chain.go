package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// StrikeMatchEpsilon defines the precision tolerance for matching strike prices
const StrikeMatchEpsilon = 1e-3

// ErrMalformedOption is returned when an upstream option cannot be normalized.
var ErrMalformedOption = errors.New("malformed option")

// Handle single-object vs array responses
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// OptionChainResponse is the upstream chain envelope.
type OptionChainResponse struct {
	Options struct {
		Option singleOrArray[Option] `json:"option"`
	} `json:"options"`
}

// Option is an option contract as delivered by the upstream feed.
type Option struct {
	Greeks         *Greeks `json:"greeks,omitempty"`
	Symbol         string  `json:"symbol"`
	Description    string  `json:"description"`
	OptionType     string  `json:"option_type"`
	ExpirationDate string  `json:"expiration_date"`
	Underlying     string  `json:"underlying"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Last           float64 `json:"last"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"open_interest"`
	Strike         float64 `json:"strike"`
}

// Greeks contains upstream option greeks and implied volatilities.
type Greeks struct {
	UpdatedAt string  `json:"updated_at"`
	Delta     float64 `json:"delta"`
	Gamma     float64 `json:"gamma"`
	Theta     float64 `json:"theta"`
	Vega      float64 `json:"vega"`
	BidIV     float64 `json:"bid_iv"`
	MidIV     float64 `json:"mid_iv"`
	AskIV     float64 `json:"ask_iv"`
	SmvVol    float64 `json:"smv_vol"`
}

// ImpliedVol picks the best available implied volatility: mid, then smoothed, then the
// bid/ask average.
func (g *Greeks) ImpliedVol() float64 {
	if g == nil {
		return 0
	}
	switch {
	case g.MidIV > 0:
		return g.MidIV
	case g.SmvVol > 0:
		return g.SmvVol
	case g.BidIV > 0 && g.AskIV > 0:
		return (g.BidIV + g.AskIV) / 2
	default:
		return 0
	}
}

// DecodeOptionChain reads an upstream chain document.
func DecodeOptionChain(r io.Reader) ([]Option, error) {
	var resp OptionChainResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding option chain: %w", err)
	}
	return resp.Options.Option, nil
}

// NormalizeOption converts an upstream option into a Quote.
func NormalizeOption(o Option) (models.Quote, error) {
	right := models.OptionRight(strings.ToLower(strings.TrimSpace(o.OptionType)))
	if !right.Valid() {
		right = models.OptionRight(optionTypeFromSymbol(o.Symbol))
	}
	if !right.Valid() {
		return models.Quote{}, fmt.Errorf("%w: %s has no option type", ErrMalformedOption, o.Symbol)
	}

	expiry, err := time.Parse(models.ExpiryLayout, o.ExpirationDate)
	if err != nil {
		return models.Quote{}, fmt.Errorf("%w: %s expiration %q: %v", ErrMalformedOption, o.Symbol, o.ExpirationDate, err)
	}

	if math.IsNaN(o.Strike) || math.IsInf(o.Strike, 0) || o.Strike <= 0 {
		return models.Quote{}, fmt.Errorf("%w: %s strike %v", ErrMalformedOption, o.Symbol, o.Strike)
	}

	underlying := o.Underlying
	if underlying == "" {
		underlying = extractUnderlyingFromOSI(o.Symbol)
	}

	q := models.Quote{
		Expiry:            expiry,
		Symbol:            o.Symbol,
		Underlying:        underlying,
		Right:             right,
		Strike:            o.Strike,
		Bid:               o.Bid,
		Ask:               o.Ask,
		Last:              o.Last,
		ImpliedVolatility: o.Greeks.ImpliedVol(),
		Volume:            o.Volume,
		OpenInterest:      o.OpenInterest,
	}
	if o.Greeks != nil {
		q.Greeks = &models.Greeks{
			Delta: o.Greeks.Delta,
			Gamma: o.Greeks.Gamma,
			Theta: o.Greeks.Theta,
			Vega:  o.Greeks.Vega,
		}
	}
	return q, nil
}

// NormalizeOptions converts a chain, dropping options that cannot be normalized. The
// second return value counts the dropped options.
func NormalizeOptions(options []Option) ([]models.Quote, int) {
	quotes := make([]models.Quote, 0, len(options))
	dropped := 0
	for _, o := range options {
		q, err := NormalizeOption(o)
		if err != nil {
			dropped++
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, dropped
}

// ChainSnapshot is an immutable, indexed option chain for one underlying at one instant.
type ChainSnapshot struct {
	takenAt    time.Time
	byExpiry   map[string]map[models.OptionRight][]models.Quote
	underlying string
	expiries   []time.Time
	spot       float64
}

// NewChainSnapshot indexes quotes by expiry and right, sorted by strike.
func NewChainSnapshot(underlying string, spot float64, quotes []models.Quote, takenAt time.Time) *ChainSnapshot {
	c := &ChainSnapshot{
		takenAt:    takenAt,
		byExpiry:   make(map[string]map[models.OptionRight][]models.Quote),
		underlying: underlying,
		spot:       spot,
	}
	for _, q := range quotes {
		key := q.ExpiryKey()
		byRight, ok := c.byExpiry[key]
		if !ok {
			byRight = make(map[models.OptionRight][]models.Quote, 2)
			c.byExpiry[key] = byRight
			c.expiries = append(c.expiries, q.Expiry)
		}
		byRight[q.Right] = append(byRight[q.Right], q)
	}
	for _, byRight := range c.byExpiry {
		for _, qs := range byRight {
			sort.Slice(qs, func(i, j int) bool { return qs[i].Strike < qs[j].Strike })
		}
	}
	sort.Slice(c.expiries, func(i, j int) bool { return c.expiries[i].Before(c.expiries[j]) })
	return c
}

// Underlying returns the underlying symbol.
func (c *ChainSnapshot) Underlying() string { return c.underlying }

// Spot returns the underlying price when the snapshot was taken.
func (c *ChainSnapshot) Spot() float64 { return c.spot }

// TakenAt returns the snapshot time.
func (c *ChainSnapshot) TakenAt() time.Time { return c.takenAt }

// Expiries returns the expiries present, ascending.
func (c *ChainSnapshot) Expiries() []time.Time {
	return append([]time.Time(nil), c.expiries...)
}

// Quotes returns the quotes of one expiry and right, ascending by strike.
func (c *ChainSnapshot) Quotes(expiry time.Time, right models.OptionRight) []models.Quote {
	byRight, ok := c.byExpiry[expiry.Format(models.ExpiryLayout)]
	if !ok {
		return nil
	}
	return append([]models.Quote(nil), byRight[right]...)
}

// Lookup finds the quote at a strike, within StrikeMatchEpsilon.
func (c *ChainSnapshot) Lookup(expiry time.Time, right models.OptionRight, strike float64) (models.Quote, bool) {
	byRight, ok := c.byExpiry[expiry.Format(models.ExpiryLayout)]
	if !ok {
		return models.Quote{}, false
	}
	qs := byRight[right]
	i := sort.Search(len(qs), func(i int) bool { return qs[i].Strike >= strike-StrikeMatchEpsilon })
	if i < len(qs) && math.Abs(qs[i].Strike-strike) <= StrikeMatchEpsilon {
		return qs[i], true
	}
	return models.Quote{}, false
}

// Len returns the number of quotes in the snapshot.
func (c *ChainSnapshot) Len() int {
	n := 0
	for _, byRight := range c.byExpiry {
		for _, qs := range byRight {
			n += len(qs)
		}
	}
	return n
}

// LoadChainSnapshot fetches spot and the chains of every expiry accepted by keep, concurrently,
// and normalizes them into one snapshot. A nil keep accepts all expiries.
func LoadChainSnapshot(ctx context.Context, b Broker, symbol string, now time.Time,
	keep func(expiry time.Time) bool) (*ChainSnapshot, error) {
	spot, err := b.GetSpot(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("getting spot for %s: %w", symbol, err)
	}
	expirations, err := b.GetExpirations(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("getting expirations for %s: %w", symbol, err)
	}

	var (
		mu     sync.Mutex
		quotes []models.Quote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, exp := range expirations {
		expiry, err := time.Parse(models.ExpiryLayout, exp)
		if err != nil {
			continue
		}
		if keep != nil && !keep(expiry) {
			continue
		}
		exp := exp
		g.Go(func() error {
			options, err := b.GetOptionChain(gctx, symbol, exp)
			if err != nil {
				return fmt.Errorf("getting %s chain for %s: %w", symbol, exp, err)
			}
			normalized, _ := NormalizeOptions(options)
			mu.Lock()
			quotes = append(quotes, normalized...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewChainSnapshot(symbol, spot, quotes, now), nil
}
