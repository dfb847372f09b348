package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// MockBroker for testing CircuitBreakerBroker
type MockBroker struct {
	mu         sync.Mutex
	chains     map[string][]Option
	canceled   []string
	callCount  int
	failAfter  int
	shouldFail bool
}

func (m *MockBroker) fail() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	return m.shouldFail && m.callCount > m.failAfter
}

func (m *MockBroker) GetExpirations(_ context.Context, _ string) ([]string, error) {
	if m.fail() {
		return nil, errors.New("mock broker error")
	}
	out := make([]string, 0, len(m.chains))
	for exp := range m.chains {
		out = append(out, exp)
	}
	return out, nil
}

func (m *MockBroker) GetOptionChain(_ context.Context, _, expiration string) ([]Option, error) {
	if m.fail() {
		return nil, errors.New("mock broker error")
	}
	return m.chains[expiration], nil
}

func (m *MockBroker) GetSpot(_ context.Context, _ string) (float64, error) {
	if m.fail() {
		return 0, errors.New("mock broker error")
	}
	return 500, nil
}

func (m *MockBroker) PlaceComboOrder(_ context.Context, order ComboOrder) (*OrderResponse, error) {
	if m.fail() {
		return nil, errors.New("mock broker error")
	}
	resp := &OrderResponse{ComboID: "combo-1", Status: "ok"}
	for i, leg := range order.Legs {
		resp.LegOrders = append(resp.LegOrders, LegOrder{Symbol: leg.Symbol, OrderID: string(rune('a' + i))})
	}
	return resp, nil
}

func (m *MockBroker) CancelOrder(_ context.Context, orderID string) error {
	if m.fail() {
		return errors.New("mock broker error")
	}
	m.canceled = append(m.canceled, orderID)
	return nil
}

func testLegGroup(t *testing.T) *models.LegGroup {
	t.Helper()
	exp := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	q := func(strike float64, right models.OptionRight) models.Quote {
		return models.Quote{Symbol: FormatOSI("SPY", exp, right, strike), Expiry: exp, Right: right, Strike: strike, Bid: 1, Ask: 1.1}
	}
	c := &models.IronCondorCandidate{
		Put:  models.VerticalSpread{Side: models.RightPut, Short: q(494, models.RightPut), Long: q(490, models.RightPut)},
		Call: models.VerticalSpread{Side: models.RightCall, Short: q(506, models.RightCall), Long: q(510, models.RightCall)},
	}
	g, err := models.NewOpeningLegGroup(c, 2)
	require.NoError(t, err)
	return g
}

func TestNewComboOrder(t *testing.T) {
	g := testLegGroup(t)
	order := NewComboOrder(models.FormatTag("tg1", models.DirectionOpen), "SPY", g, 1.2)

	require.NoError(t, order.Validate())
	require.Len(t, order.Legs, 4)
	assert.Equal(t, models.DirectionOpen, order.Direction)
	assert.Equal(t, 2, order.Legs[0].Quantity)  // long put
	assert.Equal(t, -2, order.Legs[1].Quantity) // short put
	assert.Equal(t, -2, order.Legs[2].Quantity) // short call
	assert.Equal(t, 2, order.Legs[3].Quantity)  // long call
	assert.Equal(t, "SPY250314P00490000", order.Legs[0].Symbol)

	assert.Equal(t, "buy_to_open", order.Legs[0].Side(models.DirectionOpen))
	assert.Equal(t, "sell_to_open", order.Legs[1].Side(models.DirectionOpen))
	assert.Equal(t, []string{"buy_to_open", "sell_to_open", "sell_to_open", "buy_to_open"}, order.Sides())
	assert.Equal(t, "", ComboLeg{Symbol: "X"}.Side(models.DirectionOpen))
}

func TestNewComboOrder_Closing(t *testing.T) {
	g := testLegGroup(t)
	closing, err := models.NewClosingLegGroup(g, [4]models.Quote{g.Legs[0].Quote, g.Legs[1].Quote, g.Legs[2].Quote, g.Legs[3].Quote})
	require.NoError(t, err)

	order := NewComboOrder(models.FormatTag("tg1", models.DirectionClose), "SPY", closing, 0.5)
	require.NoError(t, order.Validate())
	assert.Equal(t, models.DirectionClose, order.Direction)
	assert.Equal(t, -2, order.Legs[0].Quantity) // long put sold back
	assert.Equal(t, 2, order.Legs[1].Quantity)  // short put bought back

	assert.Equal(t, "sell_to_close", order.Legs[0].Side(models.DirectionClose))
	assert.Equal(t, "buy_to_close", order.Legs[1].Side(models.DirectionClose))
	assert.Equal(t, []string{"sell_to_close", "buy_to_close", "buy_to_close", "sell_to_close"}, order.Sides())
}

func TestComboOrder_Validate(t *testing.T) {
	valid := NewComboOrder(models.FormatTag("tg1", models.DirectionOpen), "SPY", testLegGroup(t), 1.2)

	tests := []struct {
		name   string
		mutate func(*ComboOrder)
	}{
		{"three legs", func(o *ComboOrder) { o.Legs = o.Legs[:3] }},
		{"missing tag", func(o *ComboOrder) { o.Tag = "" }},
		{"tag without direction", func(o *ComboOrder) { o.Tag = "tg1" }},
		{"direction mismatch", func(o *ComboOrder) { o.Direction = models.DirectionClose }},
		{"zero quantity", func(o *ComboOrder) { o.Legs[2].Quantity = 0 }},
		{"empty symbol", func(o *ComboOrder) { o.Legs[0].Symbol = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			o.Legs = append([]ComboLeg(nil), valid.Legs...)
			tt.mutate(&o)
			assert.ErrorIs(t, o.Validate(), ErrInvalidOrder)
		})
	}
}

func TestNewCircuitBreakerBroker(t *testing.T) {
	mockBroker := &MockBroker{}
	cb := NewCircuitBreakerBroker(mockBroker, nil)

	require.NotNil(t, cb)
	assert.Equal(t, mockBroker, cb.broker)
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	assert.Panics(t, func() { NewCircuitBreakerBroker(nil, nil) })
}

func TestCircuitBreakerBroker_SuccessfulCalls(t *testing.T) {
	mockBroker := &MockBroker{}
	cb := NewCircuitBreakerBroker(mockBroker, nil)
	ctx := context.Background()

	spot, err := cb.GetSpot(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, 500.0, spot)

	resp, err := cb.PlaceComboOrder(ctx, NewComboOrder("tg:OPEN", "SPY", testLegGroup(t), 1))
	require.NoError(t, err)
	assert.Len(t, resp.LegOrders, 4)

	require.NoError(t, cb.CancelOrder(ctx, "a"))
	assert.Equal(t, []string{"a"}, mockBroker.canceled)
}

func TestCircuitBreakerBroker_FailureScenarios(t *testing.T) {
	mockBroker := &MockBroker{shouldFail: true, failAfter: 3}
	cb := NewCircuitBreakerBrokerWithSettings(mockBroker, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  1,
		FailureRatio: 0.5,
	}, nil)

	for i := 0; i < 8; i++ {
		_, err := cb.GetSpot(context.Background(), "SPY")
		if i < 3 {
			assert.NoError(t, err, "call %d", i+1)
		} else {
			assert.Error(t, err, "call %d", i+1)
		}
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	// open breaker rejects without reaching the broker
	calls := mockBroker.callCount
	err := cb.CancelOrder(context.Background(), "x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, calls, mockBroker.callCount)
}

func TestCircuitBreakerBroker_RecoveryBehavior(t *testing.T) {
	mockBroker := &MockBroker{shouldFail: true, failAfter: 0}
	cb := NewCircuitBreakerBrokerWithSettings(mockBroker, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      15 * time.Millisecond,
		MinRequests:  2,
		FailureRatio: 0.5,
	}, nil)

	for i := 0; i < 3; i++ {
		_, _ = cb.GetExpirations(context.Background(), "SPY")
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	mockBroker.mu.Lock()
	mockBroker.shouldFail = false
	mockBroker.mu.Unlock()
	require.Eventually(t, func() bool {
		return cb.State() == gobreaker.StateHalfOpen
	}, time.Second, time.Millisecond)

	_, err := cb.GetExpirations(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
