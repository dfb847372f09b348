package mock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/broker"
	"github.com/eddiefleurent/scranton_condor/internal/models"
	"github.com/eddiefleurent/scranton_condor/internal/util"
)

var (
	// ErrUnknownOrder is returned when canceling or filling an order the venue never saw
	ErrUnknownOrder = errors.New("unknown order")
	// ErrOrderDone is returned when canceling or filling an order that is no longer working
	ErrOrderDone = errors.New("order is no longer working")
)

// PaperConfig controls the paper venue.
type PaperConfig struct {
	// AutoFill fills every leg at its current mid right after acknowledging a combo
	AutoFill    bool
	EventBuffer int
}

type paperOrder struct {
	id     string
	tag    string
	symbol string
	status models.OrderStatus
}

// PaperBroker is an in-process venue. Every combo leg becomes one order with its own id; status
// changes are published on the Events channel in the order they happen.
type PaperBroker struct {
	*DataProvider
	mu     sync.Mutex
	logger logrus.FieldLogger
	orders map[string]*paperOrder
	events chan broker.OrderEvent
	now    func() time.Time
	config PaperConfig
}

// Ensure PaperBroker implements the broker boundary at compile time.
var (
	_ broker.Broker      = (*PaperBroker)(nil)
	_ broker.EventSource = (*PaperBroker)(nil)
)

// NewPaperBroker creates a paper venue quoting from data.
func NewPaperBroker(data *DataProvider, config PaperConfig, logger logrus.FieldLogger) *PaperBroker {
	if data == nil {
		panic("paper broker: data provider cannot be nil")
	}
	if logger == nil {
		logger = logrus.New().WithField("component", "paper_broker")
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 1024
	}
	return &PaperBroker{
		DataProvider: data,
		logger:       logger,
		orders:       make(map[string]*paperOrder),
		events:       make(chan broker.OrderEvent, config.EventBuffer),
		now:          data.config.Now,
		config:       config,
	}
}

// Events returns the order status stream.
func (p *PaperBroker) Events() <-chan broker.OrderEvent {
	return p.events
}

// PlaceComboOrder acknowledges a combo, publishing one Submitted event per leg, and fills it
// when AutoFill is set.
func (p *PaperBroker) PlaceComboOrder(ctx context.Context, order broker.ComboOrder) (*broker.OrderResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	resp := &broker.OrderResponse{ComboID: uuid.NewString(), Status: "ok"}
	for _, leg := range order.Legs {
		o := &paperOrder{id: uuid.NewString(), tag: order.Tag, symbol: leg.Symbol, status: models.OrderSubmitted}
		p.orders[o.id] = o
		resp.LegOrders = append(resp.LegOrders, broker.LegOrder{Symbol: leg.Symbol, OrderID: o.id})
		p.publish(o, nil)
	}

	p.logger.WithFields(logrus.Fields{
		"tag":         order.Tag,
		"limit_price": order.LimitPrice,
		"sides":       order.Sides(),
		"combo_id":    resp.ComboID,
	}).Info("Paper combo accepted")

	if p.config.AutoFill {
		for _, lo := range resp.LegOrders {
			if err := p.fillLocked(lo.OrderID, nil); err != nil {
				return resp, err
			}
		}
	}
	return resp, nil
}

// CancelOrder cancels a working order.
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if o.status != models.OrderSubmitted {
		return fmt.Errorf("%w: %s is %s", ErrOrderDone, orderID, o.status)
	}
	o.status = models.OrderCanceled
	p.publish(o, nil)
	return nil
}

// Fill executes a working order. A nil price fills at the leg's current mid.
func (p *PaperBroker) Fill(orderID string, price *float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fillLocked(orderID, price)
}

// FillTag fills every working order carrying tag at current mids.
func (p *PaperBroker) FillTag(tag string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.workingLocked(tag) {
		if err := p.fillLocked(id, nil); err != nil {
			return err
		}
	}
	return nil
}

// WorkingOrders returns the ids of orders with tag that are still working.
func (p *PaperBroker) WorkingOrders(tag string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workingLocked(tag)
}

func (p *PaperBroker) workingLocked(tag string) []string {
	var ids []string
	for id, o := range p.orders {
		if o.tag == tag && o.status == models.OrderSubmitted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (p *PaperBroker) fillLocked(orderID string, price *float64) error {
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if o.status != models.OrderSubmitted {
		return fmt.Errorf("%w: %s is %s", ErrOrderDone, orderID, o.status)
	}
	if price == nil {
		q, err := p.Quote(o.symbol)
		if err != nil {
			return fmt.Errorf("pricing %s: %w", o.symbol, err)
		}
		mid := util.RoundToTick(q.Mid(), util.PennyTick)
		price = &mid
	}
	o.status = models.OrderFilled
	p.publish(o, price)
	return nil
}

// publish must be called with mu held so events keep venue order.
func (p *PaperBroker) publish(o *paperOrder, fill *float64) {
	ev := broker.OrderEvent{
		Time:    p.now(),
		OrderID: o.id,
		Tag:     o.tag,
		Symbol:  o.symbol,
		Status:  o.status,
	}
	if fill != nil {
		f := *fill
		ev.FillPrice = &f
	}
	select {
	case p.events <- ev:
	default:
		p.logger.WithFields(logrus.Fields{
			"order_id": o.id,
			"status":   o.status,
		}).Error("Paper event buffer full, dropping event")
	}
}
