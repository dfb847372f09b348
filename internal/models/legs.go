package models

import (
	"errors"
	"fmt"
)

const sharesPerContract = 100.0

// ErrInvalidLegOrdering is returned when four legs do not form a long_put < short_put < short_call < long_call ladder.
var ErrInvalidLegOrdering = errors.New("invalid iron condor leg ordering")

// LegRole identifies one of the four iron condor legs.
type LegRole string

const (
	// RoleLongPut is the protective put
	RoleLongPut LegRole = "long_put"
	// RoleShortPut is the sold put
	RoleShortPut LegRole = "short_put"
	// RoleShortCall is the sold call
	RoleShortCall LegRole = "short_call"
	// RoleLongCall is the protective call
	RoleLongCall LegRole = "long_call"
)

// LegRoles lists roles in strike order. LegGroup.Legs is indexed the same way.
var LegRoles = [4]LegRole{RoleLongPut, RoleShortPut, RoleShortCall, RoleLongCall}

// Valid returns true if the LegRole is one of the defined constants
func (r LegRole) Valid() bool {
	switch r {
	case RoleLongPut, RoleShortPut, RoleShortCall, RoleLongCall:
		return true
	default:
		return false
	}
}

// IsShort reports whether the role is a sold leg when the structure is opened.
func (r LegRole) IsShort() bool {
	switch r {
	case RoleShortPut, RoleShortCall:
		return true
	case RoleLongPut, RoleLongCall:
		return false
	default:
		return false
	}
}

// Right returns the option right of the role.
func (r LegRole) Right() OptionRight {
	switch r {
	case RoleLongPut, RoleShortPut:
		return RightPut
	case RoleShortCall, RoleLongCall:
		return RightCall
	default:
		return ""
	}
}

// Leg is one option of a four-leg package. Sign is +1 when bought and -1 when sold.
type Leg struct {
	FillPrice *float64 `json:"fill_price,omitempty"`
	Role      LegRole  `json:"role"`
	OrderID   string   `json:"order_id,omitempty"`
	Quote     Quote    `json:"quote"`
	Sign      int      `json:"sign"`
}

// Filled reports whether a fill price has been recorded.
func (l *Leg) Filled() bool {
	return l.FillPrice != nil
}

// LegPrice is a bid/ask/mid triple.
type LegPrice struct {
	Role LegRole `json:"role,omitempty"`
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Mid  float64 `json:"mid"`
}

// LegGroup is the opening or closing side of an iron condor.
type LegGroup struct {
	Direction OrderDirection `json:"direction"`
	Legs      [4]Leg         `json:"legs"`
	Quantity  int            `json:"quantity"`
}

// NewOpeningLegGroup builds the sell-to-open package for a candidate.
func NewOpeningLegGroup(c *IronCondorCandidate, quantity int) (*LegGroup, error) {
	if c == nil {
		return nil, fmt.Errorf("nil candidate: %w", ErrInvalidLegOrdering)
	}
	return newLegGroup(DirectionOpen,
		[4]Quote{c.LongPut(), c.ShortPut(), c.ShortCall(), c.LongCall()}, quantity)
}

// NewClosingLegGroup builds the package that unwinds opening, priced from current quotes
// given in LegRoles order.
func NewClosingLegGroup(opening *LegGroup, current [4]Quote) (*LegGroup, error) {
	if opening == nil {
		return nil, fmt.Errorf("nil opening group: %w", ErrInvalidLegOrdering)
	}
	g, err := newLegGroup(DirectionClose, current, opening.Quantity)
	if err != nil {
		return nil, err
	}
	for i := range g.Legs {
		g.Legs[i].Sign = -opening.Legs[i].Sign
	}
	return g, nil
}

func newLegGroup(dir OrderDirection, quotes [4]Quote, quantity int) (*LegGroup, error) {
	if quantity <= 0 {
		quantity = 1
	}
	g := &LegGroup{Direction: dir, Quantity: quantity}
	for i, role := range LegRoles {
		q := quotes[i]
		if q.Right != role.Right() {
			return nil, fmt.Errorf("%s has right %q: %w", role, q.Right, ErrInvalidLegOrdering)
		}
		sign := 1
		if role.IsShort() {
			sign = -1
		}
		g.Legs[i] = Leg{Role: role, Quote: q, Sign: sign}
	}
	for i := 1; i < len(g.Legs); i++ {
		if g.Legs[i-1].Quote.Strike >= g.Legs[i].Quote.Strike {
			return nil, fmt.Errorf("%s %.2f >= %s %.2f: %w",
				g.Legs[i-1].Role, g.Legs[i-1].Quote.Strike, g.Legs[i].Role, g.Legs[i].Quote.Strike, ErrInvalidLegOrdering)
		}
	}
	return g, nil
}

// Leg returns the leg with the given role.
func (g *LegGroup) Leg(role LegRole) *Leg {
	for i := range g.Legs {
		if g.Legs[i].Role == role {
			return &g.Legs[i]
		}
	}
	return nil
}

// LegBySymbol returns the leg trading the given instrument.
func (g *LegGroup) LegBySymbol(symbol string) *Leg {
	for i := range g.Legs {
		if g.Legs[i].Quote.Symbol == symbol {
			return &g.Legs[i]
		}
	}
	return nil
}

// SetFillPrice records a fill for the leg trading symbol. It returns false if no leg matches.
func (g *LegGroup) SetFillPrice(symbol string, price float64) bool {
	leg := g.LegBySymbol(symbol)
	if leg == nil {
		return false
	}
	p := price
	leg.FillPrice = &p
	return true
}

// SetOrderID links an order to the leg trading symbol.
func (g *LegGroup) SetOrderID(symbol, orderID string) bool {
	leg := g.LegBySymbol(symbol)
	if leg == nil {
		return false
	}
	leg.OrderID = orderID
	return true
}

// FilledCount returns how many legs have a fill price.
func (g *LegGroup) FilledCount() int {
	n := 0
	for i := range g.Legs {
		if g.Legs[i].Filled() {
			n++
		}
	}
	return n
}

// AllFilled reports whether every leg has a fill price.
func (g *LegGroup) AllFilled() bool {
	return g.FilledCount() == len(g.Legs)
}

// ContractPrices returns each leg's bid, ask and mid multiplied by its sign.
func (g *LegGroup) ContractPrices() [4]LegPrice {
	var out [4]LegPrice
	for i, leg := range g.Legs {
		s := float64(leg.Sign)
		out[i] = LegPrice{
			Role: leg.Role,
			Bid:  leg.Quote.Bid * s,
			Ask:  leg.Quote.Ask * s,
			Mid:  leg.Quote.Mid() * s,
		}
	}
	return out
}

// PackagePrice sums ContractPrices into the net per-contract price of the package.
func (g *LegGroup) PackagePrice() LegPrice {
	var total LegPrice
	for _, p := range g.ContractPrices() {
		total.Bid += p.Bid
		total.Ask += p.Ask
		total.Mid += p.Mid
	}
	return total
}

// ScenarioCosts returns the net per-contract debit to execute the package at the best
// (bought legs at bid, sold legs at ask), mid, and worst (bought at ask, sold at bid) prices.
func (g *LegGroup) ScenarioCosts() (best, mid, worst float64) {
	for _, leg := range g.Legs {
		s := float64(leg.Sign)
		if leg.Sign > 0 {
			best += s * leg.Quote.Bid
			worst += s * leg.Quote.Ask
		} else {
			best += s * leg.Quote.Ask
			worst += s * leg.Quote.Bid
		}
		mid += s * leg.Quote.Mid()
	}
	return best, mid, worst
}

// TotalFillPrice is the signed sum of fills. ok is false until every leg has filled.
func (g *LegGroup) TotalFillPrice() (total float64, ok bool) {
	if !g.AllFilled() {
		return 0, false
	}
	for _, leg := range g.Legs {
		total += *leg.FillPrice * float64(leg.Sign)
	}
	return total, true
}

// CashFlow is the per-contract cash moved by the fills: positive for a credit received,
// negative for a debit paid. ok is false until every leg has filled.
func (g *LegGroup) CashFlow() (cash float64, ok bool) {
	if !g.AllFilled() {
		return 0, false
	}
	for _, leg := range g.Legs {
		cash += *leg.FillPrice * float64(-leg.Sign)
	}
	return cash, true
}

// Notional converts a per-contract price to dollars for the group's quantity.
func (g *LegGroup) Notional(perContract float64) float64 {
	return perContract * sharesPerContract * float64(g.Quantity)
}

// Strikes returns the leg strikes in LegRoles order.
func (g *LegGroup) Strikes() [4]float64 {
	var s [4]float64
	for i, leg := range g.Legs {
		s[i] = leg.Quote.Strike
	}
	return s
}

// Clone returns a deep copy of the group.
func (g *LegGroup) Clone() *LegGroup {
	if g == nil {
		return nil
	}
	c := *g
	for i := range c.Legs {
		if f := g.Legs[i].FillPrice; f != nil {
			v := *f
			c.Legs[i].FillPrice = &v
		}
	}
	return &c
}
