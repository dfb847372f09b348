package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
	"github.com/eddiefleurent/scranton_condor/internal/config"
	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/orders"
	"github.com/eddiefleurent/scranton_condor/internal/portfolio"
	"github.com/eddiefleurent/scranton_condor/internal/strategy"
)

var (
	cycleExpiry = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	cycleNow    = time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC)
)

// mockBroker is a testify mock of broker.Broker. PlaceComboOrder may be stubbed with a
// func(broker.ComboOrder) *broker.OrderResponse to build the response from the order.
type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	args := m.Called(ctx, symbol)
	out, _ := args.Get(0).([]string)
	return out, args.Error(1)
}

func (m *mockBroker) GetOptionChain(ctx context.Context, symbol, expiration string) ([]broker.Option, error) {
	args := m.Called(ctx, symbol, expiration)
	out, _ := args.Get(0).([]broker.Option)
	return out, args.Error(1)
}

func (m *mockBroker) GetSpot(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockBroker) PlaceComboOrder(ctx context.Context, order broker.ComboOrder) (*broker.OrderResponse, error) {
	args := m.Called(ctx, order)
	if fn, ok := args.Get(0).(func(broker.ComboOrder) *broker.OrderResponse); ok {
		return fn(order), args.Error(1)
	}
	resp, _ := args.Get(0).(*broker.OrderResponse)
	return resp, args.Error(1)
}

func (m *mockBroker) CancelOrder(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

// ackLegs acknowledges every combo leg with a deterministic order id.
func ackLegs(order broker.ComboOrder) *broker.OrderResponse {
	resp := &broker.OrderResponse{ComboID: order.Tag, Status: "ok"}
	for i, leg := range order.Legs {
		resp.LegOrders = append(resp.LegOrders, broker.LegOrder{
			Symbol:  leg.Symbol,
			OrderID: fmt.Sprintf("%s-%d", order.Tag, i),
		})
	}
	return resp
}

// fakeLoader serves a fixed chain snapshot.
type fakeLoader struct {
	chain *broker.ChainSnapshot
	err   error
	calls int
}

func (f *fakeLoader) LoadChain(_ context.Context, _ string, _ time.Time, _ func(time.Time) bool) (*broker.ChainSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.chain, nil
}

func ladderQuote(right models.OptionRight, strike, mid, halfSpread float64) models.Quote {
	return models.Quote{
		Symbol:     broker.FormatOSI("SPY", cycleExpiry, right, strike),
		Underlying: "SPY",
		Expiry:     cycleExpiry,
		Right:      right,
		Strike:     strike,
		Bid:        mid - halfSpread,
		Ask:        mid + halfSpread,
	}
}

// condorLadder is a 1-point strike ladder around spot whose deltas decay away from the money.
func condorLadder(spot float64) *broker.ChainSnapshot {
	var quotes []models.Quote
	for k := spot - 20; k <= spot+20; k++ {
		dist := k - spot
		c := ladderQuote(models.RightCall, k, max(0.05, 2.5-dist*0.12), 0.02)
		p := ladderQuote(models.RightPut, k, max(0.05, 2.5+dist*0.12), 0.02)
		c.Greeks = &models.Greeks{Delta: min(max(0.5-dist*0.03, 0.01), 0.99)}
		p.Greeks = &models.Greeks{Delta: min(max(-0.5-dist*0.03, -0.99), -0.01)}
		c.ImpliedVolatility, p.ImpliedVolatility = 0.05, 0.05
		quotes = append(quotes, c, p)
	}
	return broker.NewChainSnapshot("SPY", spot, quotes, cycleNow)
}

// cheapLadder prices every strike of condorLadder at 0.03.
func cheapLadder(spot float64) *broker.ChainSnapshot {
	var quotes []models.Quote
	for k := spot - 20; k <= spot+20; k++ {
		quotes = append(quotes,
			ladderQuote(models.RightCall, k, 0.03, 0.02),
			ladderQuote(models.RightPut, k, 0.03, 0.02))
	}
	return broker.NewChainSnapshot("SPY", spot, quotes, cycleNow)
}

func testSession(t *testing.T) *config.Session {
	t.Helper()
	s, err := config.NewSession("UTC", "09:30", "16:00", 30, 60)
	require.NoError(t, err)
	return s
}

type cycleHarness struct {
	cycle     *TradingCycle
	broker    *mockBroker
	loader    *fakeLoader
	orders    *orders.Manager
	portfolio *portfolio.Manager
}

func newCycleHarness(t *testing.T) *cycleHarness {
	t.Helper()
	session := testSession(t)

	cfg := config.Default()
	// the synthetic ladder prices every vertical at 0.12 credit per point
	cfg.Strategy.Scoring.MinCreditRatio = 0.10

	b := &mockBroker{}
	b.On("PlaceComboOrder", mock.Anything, mock.Anything).Return(ackLegs, nil)
	b.On("CancelOrder", mock.Anything, mock.Anything).Return(nil)

	loader := &fakeLoader{chain: condorLadder(500)}
	om := orders.NewManager(b, orders.NewRegistry(), nil, cfg.OrdersConfig())
	pm := portfolio.NewManager(session, nil, cfg.PortfolioConfig())
	om.AddListener(pm)
	finder := strategy.NewFinder(cfg.FinderConfig(session), nil)

	return &cycleHarness{
		cycle:     NewTradingCycle("SPY", session, loader, finder, om, pm, nil),
		broker:    b,
		loader:    loader,
		orders:    om,
		portfolio: pm,
	}
}

// fill sends a Filled event for every order of dir, priced by price(symbol).
func (h *cycleHarness) fill(t *testing.T, pos *models.Position, dir models.OrderDirection, at time.Time,
	price func(symbol string) float64,
) {
	t.Helper()
	tg, ok := h.orders.Registry().Get(pos.TradeGroupID)
	require.True(t, ok)
	for _, o := range tg.Orders(dir) {
		p := price(o.Symbol)
		h.cycle.HandleEvent(context.Background(), broker.OrderEvent{
			Tag:       tg.Tag(dir),
			OrderID:   o.OrderID,
			Symbol:    o.Symbol,
			Status:    models.OrderFilled,
			FillPrice: &p,
			Time:      at,
		})
	}
}

// openingMids prices each opening leg at its quote mid.
func openingMids(pos *models.Position) func(string) float64 {
	mids := make(map[string]float64, len(pos.Opening.Legs))
	for _, leg := range pos.Opening.Legs {
		mids[leg.Quote.Symbol] = leg.Quote.Mid()
	}
	return func(symbol string) float64 { return mids[symbol] }
}

func onlyPosition(t *testing.T, om *orders.Manager) *models.Position {
	t.Helper()
	positions := om.Positions()
	require.Len(t, positions, 1)
	return positions[0]
}
