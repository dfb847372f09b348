// Package broker defines the order boundary of the engine, the upstream option chain shape and
// its normalization into models.Quote.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// ErrInvalidOrder is returned for combo orders that are not a tagged four-leg package.
var ErrInvalidOrder = errors.New("invalid combo order")

// Broker is the venue the engine talks to. Order status changes are delivered separately,
// through an EventSource.
type Broker interface {
	// Market data
	GetExpirations(ctx context.Context, symbol string) ([]string, error)
	GetOptionChain(ctx context.Context, symbol, expiration string) ([]Option, error)
	GetSpot(ctx context.Context, symbol string) (float64, error)

	// Orders
	PlaceComboOrder(ctx context.Context, order ComboOrder) (*OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// EventSource delivers order status events in venue order.
type EventSource interface {
	Events() <-chan OrderEvent
}

// ComboLeg is one instrument of a combo. Quantity is signed: positive buys, negative sells.
type ComboLeg struct {
	Symbol   string `json:"symbol"`
	Quantity int    `json:"quantity"`
}

// Side returns the venue side string for the leg.
func (l ComboLeg) Side(dir models.OrderDirection) string {
	switch {
	case l.Quantity > 0 && dir == models.DirectionOpen:
		return "buy_to_open"
	case l.Quantity < 0 && dir == models.DirectionOpen:
		return "sell_to_open"
	case l.Quantity > 0 && dir == models.DirectionClose:
		return "buy_to_close"
	case l.Quantity < 0 && dir == models.DirectionClose:
		return "sell_to_close"
	default:
		return ""
	}
}

// ComboOrder is an all-or-nothing four-leg package. LimitPrice is the net per-contract price:
// a credit when opening, a debit when closing.
type ComboOrder struct {
	Tag        string                `json:"tag"`
	Underlying string                `json:"underlying"`
	Direction  models.OrderDirection `json:"direction"`
	Legs       []ComboLeg            `json:"legs"`
	LimitPrice float64               `json:"limit_price"`
}

// Validate checks the leg count, tag and quantities.
func (o ComboOrder) Validate() error {
	if len(o.Legs) != models.TradeGroupLegs {
		return fmt.Errorf("%w: %d legs", ErrInvalidOrder, len(o.Legs))
	}
	_, dir, ok := models.ParseTag(o.Tag)
	if !ok {
		return fmt.Errorf("%w: malformed tag %q", ErrInvalidOrder, o.Tag)
	}
	if dir != o.Direction {
		return fmt.Errorf("%w: tag direction %s does not match %s", ErrInvalidOrder, dir, o.Direction)
	}
	for _, leg := range o.Legs {
		if leg.Symbol == "" || leg.Quantity == 0 {
			return fmt.Errorf("%w: empty leg %+v", ErrInvalidOrder, leg)
		}
	}
	return nil
}

// Sides lists the venue side of each leg, in leg order.
func (o ComboOrder) Sides() []string {
	sides := make([]string, 0, len(o.Legs))
	for _, leg := range o.Legs {
		sides = append(sides, leg.Side(o.Direction))
	}
	return sides
}

// NewComboOrder builds the combo for a leg group. Quantities carry the leg sign times the
// group quantity.
func NewComboOrder(tag, underlying string, group *models.LegGroup, limitPrice float64) ComboOrder {
	order := ComboOrder{
		Tag:        tag,
		Underlying: underlying,
		Direction:  group.Direction,
		LimitPrice: limitPrice,
		Legs:       make([]ComboLeg, 0, len(group.Legs)),
	}
	for _, leg := range group.Legs {
		order.Legs = append(order.Legs, ComboLeg{Symbol: leg.Quote.Symbol, Quantity: leg.Sign * group.Quantity})
	}
	return order
}

// LegOrder links one combo leg to the venue order id.
type LegOrder struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"order_id"`
}

// OrderResponse is the venue acknowledgement of a combo.
type OrderResponse struct {
	ComboID   string     `json:"combo_id"`
	Status    string     `json:"status"`
	LegOrders []LegOrder `json:"leg_orders"`
}

// OrderEvent is a status change of a single leg order.
type OrderEvent struct {
	FillPrice *float64           `json:"fill_price,omitempty"`
	Time      time.Time          `json:"time"`
	OrderID   string             `json:"order_id"`
	Tag       string             `json:"tag"`
	Symbol    string             `json:"symbol"`
	Status    models.OrderStatus `json:"status"`
}

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips after 60% failures over at least 5 calls.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  3,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// NewCircuitBreakerBroker creates a CircuitBreakerBroker with the default settings.
func NewCircuitBreakerBroker(broker Broker, logger logrus.FieldLogger) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, DefaultCircuitBreakerSettings, logger)
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings, logger logrus.FieldLogger) *CircuitBreakerBroker {
	if broker == nil {
		panic("circuit breaker broker: broker cannot be nil")
	}
	if logger == nil {
		logger = logrus.New().WithField("component", "broker")
	}
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// State returns the breaker state.
func (c *CircuitBreakerBroker) State() gobreaker.State {
	return c.breaker.State()
}

// GetExpirations wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]string, error) {
		return b.GetExpirations(ctx, symbol)
	})
}

// GetOptionChain wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetOptionChain(ctx context.Context, symbol, expiration string) ([]Option, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]Option, error) {
		return b.GetOptionChain(ctx, symbol, expiration)
	})
}

// GetSpot wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetSpot(ctx context.Context, symbol string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (float64, error) {
		return b.GetSpot(ctx, symbol)
	})
}

// PlaceComboOrder wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) PlaceComboOrder(ctx context.Context, order ComboOrder) (*OrderResponse, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*OrderResponse, error) {
		return b.PlaceComboOrder(ctx, order)
	})
}

// CancelOrder wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) CancelOrder(ctx context.Context, orderID string) error {
	_, err := execCircuitBreaker(c.breaker, c.broker, func(b Broker) (struct{}, error) {
		return struct{}{}, b.CancelOrder(ctx, orderID)
	})
	return err
}
