// Package mock provides a synthetic option chain provider and an in-process paper venue.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/util"
)

const (
	secondsPerYear = 365 * 24 * 60 * 60
	minTimeToExpiry = 30 * time.Minute
)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// secureInt63n generates a cryptographically secure random int64 between 0 and n-1
func secureInt63n(n int64) int64 {
	r, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return n / 2
	}
	return r.Int64()
}

// Config shapes the synthetic chain. Zero values take defaults.
type Config struct {
	Now             func() time.Time
	Location        *time.Location
	Symbol          string
	Spot            float64
	IV              float64 // annualized, e.g. 0.15
	StrikeInterval  float64
	HalfSpread      float64
	SessionClose    time.Duration
	StrikesEachSide int
	ExpiryDays      int // number of weekday expiries listed
}

// DataProvider generates daily-expiry option chains around a drifting spot.
type DataProvider struct {
	mu     sync.Mutex
	config Config
	spot   float64
	iv     float64
}

// NewDataProvider creates a provider. Spot and IV are randomized when not set.
func NewDataProvider(cfg Config) *DataProvider {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "SPY"
	}
	if cfg.Spot <= 0 {
		cfg.Spot = 500.0 + secureFloat64()*10
	}
	if cfg.IV <= 0 {
		cfg.IV = 0.12 + secureFloat64()*0.08
	}
	if cfg.StrikeInterval <= 0 {
		cfg.StrikeInterval = 1
	}
	if cfg.HalfSpread <= 0 {
		cfg.HalfSpread = 0.02
	}
	if cfg.SessionClose <= 0 {
		cfg.SessionClose = 16 * time.Hour
	}
	if cfg.StrikesEachSide <= 0 {
		cfg.StrikesEachSide = 40
	}
	if cfg.ExpiryDays <= 0 {
		cfg.ExpiryDays = 5
	}
	return &DataProvider{config: cfg, spot: cfg.Spot, iv: cfg.IV}
}

// Ensure DataProvider serves broker market data.
var _ interface {
	GetExpirations(ctx context.Context, symbol string) ([]string, error)
	GetOptionChain(ctx context.Context, symbol, expiration string) ([]broker.Option, error)
	GetSpot(ctx context.Context, symbol string) (float64, error)
} = (*DataProvider)(nil)

// Step moves spot by a small random amount and returns the new spot.
func (m *DataProvider) Step() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spot += (secureFloat64() - 0.5) * m.spot * 0.001
	return m.spot
}

// SetSpot pins the underlying price.
func (m *DataProvider) SetSpot(spot float64) {
	m.mu.Lock()
	m.spot = spot
	m.mu.Unlock()
}

// SetIV pins the implied volatility.
func (m *DataProvider) SetIV(iv float64) {
	m.mu.Lock()
	m.iv = iv
	m.mu.Unlock()
}

// GetSpot returns the current underlying price.
func (m *DataProvider) GetSpot(_ context.Context, _ string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spot, nil
}

// GetExpirations lists the next weekday expiries, skipping today once the session has closed.
func (m *DataProvider) GetExpirations(_ context.Context, _ string) ([]string, error) {
	now := m.config.Now().In(m.config.Location)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.config.Location)
	if !now.Before(day.Add(m.config.SessionClose)) {
		day = day.AddDate(0, 0, 1)
	}

	out := make([]string, 0, m.config.ExpiryDays)
	for len(out) < m.config.ExpiryDays {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, day.Format(models.ExpiryLayout))
		}
		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}

// GetOptionChain generates the chain of one expiry around the current spot.
func (m *DataProvider) GetOptionChain(_ context.Context, symbol, expiration string) ([]broker.Option, error) {
	expDate, err := time.Parse(models.ExpiryLayout, expiration)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration format: %w", err)
	}

	m.mu.Lock()
	spot, iv := m.spot, m.iv
	m.mu.Unlock()

	interval := m.config.StrikeInterval
	center := math.Round(spot/interval) * interval
	n := m.config.StrikesEachSide

	options := make([]broker.Option, 0, 2*(2*n+1))
	for i := -n; i <= n; i++ {
		strike := center + float64(i)*interval
		if strike <= 0 {
			continue
		}
		options = append(options,
			m.option(symbol, expDate, models.RightPut, strike, spot, iv),
			m.option(symbol, expDate, models.RightCall, strike, spot, iv))
	}
	return options, nil
}

// Quote prices a single OSI symbol at the current spot.
func (m *DataProvider) Quote(symbol string) (models.Quote, error) {
	underlying, expiry, right, strike, err := broker.ParseOSI(symbol)
	if err != nil {
		return models.Quote{}, err
	}
	m.mu.Lock()
	spot, iv := m.spot, m.iv
	m.mu.Unlock()
	return broker.NormalizeOption(m.option(underlying, expiry, right, strike, spot, iv))
}

// option prices with a normal (Bachelier) model; good enough for a synthetic feed.
func (m *DataProvider) option(symbol string, expDate time.Time, right models.OptionRight, strike, spot, iv float64) broker.Option {
	loc := m.config.Location
	expiresAt := time.Date(expDate.Year(), expDate.Month(), expDate.Day(), 0, 0, 0, 0, loc).Add(m.config.SessionClose)
	remaining := expiresAt.Sub(m.config.Now())
	if remaining < minTimeToExpiry {
		remaining = minTimeToExpiry
	}
	t := remaining.Seconds() / secondsPerYear
	sigma := spot * iv * math.Sqrt(t)

	d := (spot - strike) / sigma
	nd := normCDF(d)
	phi := normPDF(d)

	call := (spot-strike)*nd + sigma*phi
	price, delta := call, nd
	if right == models.RightPut {
		price, delta = call-(spot-strike), nd-1
	}
	price = math.Max(0.01, price)
	hs := m.config.HalfSpread

	return broker.Option{
		Symbol:         broker.FormatOSI(symbol, expDate, right, strike),
		Description:    fmt.Sprintf("%s %s $%.2f %s", symbol, expDate.Format("Jan 02 2006"), strike, right),
		OptionType:     string(right),
		ExpirationDate: expDate.Format(models.ExpiryLayout),
		Underlying:     symbol,
		Strike:         strike,
		Bid:            util.RoundToTick(math.Max(0, price-hs), util.PennyTick),
		Ask:            util.RoundToTick(price+hs, util.PennyTick),
		Last:           util.RoundToTick(price, util.PennyTick),
		Volume:         secureInt63n(10000),
		OpenInterest:   secureInt63n(50000),
		Greeks: &broker.Greeks{
			Delta: delta,
			Gamma: phi / sigma,
			Theta: -sigma * phi / (2 * t) / 365,
			Vega:  spot * math.Sqrt(t) * phi / 100,
			MidIV: iv,
		},
	}
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
