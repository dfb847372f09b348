package orders

import (
	"sort"

	"github.com/google/uuid"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// Registry indexes the trade groups of one run by id and by venue order id.
// It is owned by the engine goroutine and is not safe for concurrent use.
type Registry struct {
	groups       map[string]*models.TradeGroup
	orderToGroup map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups:       make(map[string]*models.TradeGroup),
		orderToGroup: make(map[string]string),
	}
}

// Create allocates a trade group with a fresh id for a position.
func (r *Registry) Create(positionID string) *models.TradeGroup {
	tg := models.NewTradeGroup(uuid.NewString(), positionID)
	r.groups[tg.ID] = tg
	return tg
}

// Get returns a trade group by id.
func (r *Registry) Get(id string) (*models.TradeGroup, bool) {
	tg, ok := r.groups[id]
	return tg, ok
}

// GroupForOrder returns the trade group an order id was registered under.
func (r *Registry) GroupForOrder(orderID string) (*models.TradeGroup, bool) {
	id, ok := r.orderToGroup[orderID]
	if !ok {
		return nil, false
	}
	return r.Get(id)
}

// RegisterOrder adds an order to a trade group direction and indexes it. Registering a
// known order id is a no-op.
func (r *Registry) RegisterOrder(tg *models.TradeGroup, dir models.OrderDirection, orderID, symbol string) (bool, error) {
	added, err := tg.AddOrder(dir, orderID, symbol)
	if err != nil {
		return false, err
	}
	if added {
		r.orderToGroup[orderID] = tg.ID
	}
	return added, nil
}

// ResetDirection forgets every order of a direction so a fresh attempt can register four new ones.
func (r *Registry) ResetDirection(tg *models.TradeGroup, dir models.OrderDirection) {
	for _, o := range tg.Orders(dir) {
		delete(r.orderToGroup, o.OrderID)
	}
	switch dir {
	case models.DirectionOpen:
		tg.OpeningOrders = tg.OpeningOrders[:0]
	case models.DirectionClose:
		tg.ClosingOrders = tg.ClosingOrders[:0]
	}
}

// Remove drops a trade group and its order index entries.
func (r *Registry) Remove(id string) {
	tg, ok := r.groups[id]
	if !ok {
		return
	}
	for _, o := range tg.OpeningOrders {
		delete(r.orderToGroup, o.OrderID)
	}
	for _, o := range tg.ClosingOrders {
		delete(r.orderToGroup, o.OrderID)
	}
	delete(r.groups, id)
}

// IDs returns the trade group ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of trade groups.
func (r *Registry) Len() int {
	return len(r.groups)
}
