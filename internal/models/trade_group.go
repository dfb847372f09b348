package models

import (
	"fmt"
	"strings"
)

// TradeGroupLegs is the fixed number of orders per direction.
const TradeGroupLegs = 4

// OrderDirection says whether an order opens or closes the structure.
type OrderDirection string

const (
	// DirectionOpen tags opening orders
	DirectionOpen OrderDirection = "OPEN"
	// DirectionClose tags closing orders
	DirectionClose OrderDirection = "CLOSE"
)

// Valid returns true if the OrderDirection is one of the defined constants
func (d OrderDirection) Valid() bool {
	switch d {
	case DirectionOpen, DirectionClose:
		return true
	default:
		return false
	}
}

// OrderStatus is the venue-reported status of a single leg order.
type OrderStatus string

const (
	// OrderSubmitted means the venue accepted the order
	OrderSubmitted OrderStatus = "submitted"
	// OrderFilled means the order executed
	OrderFilled OrderStatus = "filled"
	// OrderCanceled means the order will never execute
	OrderCanceled OrderStatus = "canceled"
)

// Valid returns true if the OrderStatus is one of the defined constants
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderSubmitted, OrderFilled, OrderCanceled:
		return true
	default:
		return false
	}
}

// TradeOrder is one leg order tracked by a trade group.
type TradeOrder struct {
	FillPrice *float64    `json:"fill_price,omitempty"`
	OrderID   string      `json:"order_id"`
	Symbol    string      `json:"symbol"`
	Status    OrderStatus `json:"status"`
}

// TradeGroup tracks the opening and closing orders of one position.
type TradeGroup struct {
	ID            string       `json:"id"`
	PositionID    string       `json:"position_id"`
	OpeningOrders []TradeOrder `json:"opening_orders"`
	ClosingOrders []TradeOrder `json:"closing_orders"`
}

// NewTradeGroup creates an empty trade group.
func NewTradeGroup(id, positionID string) *TradeGroup {
	return &TradeGroup{
		ID:            id,
		PositionID:    positionID,
		OpeningOrders: make([]TradeOrder, 0, TradeGroupLegs),
		ClosingOrders: make([]TradeOrder, 0, TradeGroupLegs),
	}
}

// Tag returns the order tag for the given direction.
func (tg *TradeGroup) Tag(dir OrderDirection) string {
	return FormatTag(tg.ID, dir)
}

// Orders returns the order list for a direction.
func (tg *TradeGroup) Orders(dir OrderDirection) []TradeOrder {
	switch dir {
	case DirectionOpen:
		return tg.OpeningOrders
	case DirectionClose:
		return tg.ClosingOrders
	default:
		return nil
	}
}

func (tg *TradeGroup) ordersPtr(dir OrderDirection) *[]TradeOrder {
	switch dir {
	case DirectionOpen:
		return &tg.OpeningOrders
	case DirectionClose:
		return &tg.ClosingOrders
	default:
		return nil
	}
}

// Order returns the order with the given id in a direction.
func (tg *TradeGroup) Order(dir OrderDirection, orderID string) *TradeOrder {
	orders := tg.ordersPtr(dir)
	if orders == nil {
		return nil
	}
	for i := range *orders {
		if (*orders)[i].OrderID == orderID {
			return &(*orders)[i]
		}
	}
	return nil
}

// HasOrder reports whether the order id is known in either direction.
func (tg *TradeGroup) HasOrder(orderID string) bool {
	return tg.Order(DirectionOpen, orderID) != nil || tg.Order(DirectionClose, orderID) != nil
}

// AddOrder registers an order under a direction. Re-adding a known order id is a no-op
// and returns false, as does adding a closing order whose id belongs to the opening side.
func (tg *TradeGroup) AddOrder(dir OrderDirection, orderID, symbol string) (bool, error) {
	orders := tg.ordersPtr(dir)
	if orders == nil {
		return false, fmt.Errorf("unknown order direction %q", dir)
	}
	if tg.Order(dir, orderID) != nil {
		return false, nil
	}
	if dir == DirectionClose && tg.Order(DirectionOpen, orderID) != nil {
		return false, nil
	}
	if len(*orders) >= TradeGroupLegs {
		return false, fmt.Errorf("trade group %s already has %d %s orders", tg.ID, TradeGroupLegs, dir)
	}
	*orders = append(*orders, TradeOrder{OrderID: orderID, Symbol: symbol, Status: OrderSubmitted})
	return true, nil
}

// SetOrderStatus updates status, symbol and fill of a known order. It returns false if unknown.
func (tg *TradeGroup) SetOrderStatus(dir OrderDirection, orderID string, status OrderStatus, fillPrice *float64) bool {
	o := tg.Order(dir, orderID)
	if o == nil {
		return false
	}
	o.Status = status
	if fillPrice != nil {
		p := *fillPrice
		o.FillPrice = &p
	}
	return true
}

// AreAllOrdersOfStatus is true iff exactly four orders are registered for dir and all have status.
func (tg *TradeGroup) AreAllOrdersOfStatus(dir OrderDirection, status OrderStatus) bool {
	orders := tg.Orders(dir)
	if len(orders) != TradeGroupLegs {
		return false
	}
	for _, o := range orders {
		if o.Status != status {
			return false
		}
	}
	return true
}

// CountStatus returns the number of orders in dir with the given status.
func (tg *TradeGroup) CountStatus(dir OrderDirection, status OrderStatus) int {
	n := 0
	for _, o := range tg.Orders(dir) {
		if o.Status == status {
			n++
		}
	}
	return n
}

// FormatTag builds "{tradeGroupID}:{OPEN|CLOSE}".
func FormatTag(tradeGroupID string, dir OrderDirection) string {
	return tradeGroupID + ":" + string(dir)
}

// ParseTag splits an order tag. ok is false for empty, malformed or unknown-direction tags.
func ParseTag(tag string) (tradeGroupID string, dir OrderDirection, ok bool) {
	idx := strings.LastIndex(tag, ":")
	if idx <= 0 || idx == len(tag)-1 {
		return "", "", false
	}
	dir = OrderDirection(tag[idx+1:])
	if !dir.Valid() {
		return "", "", false
	}
	return tag[:idx], dir, true
}
