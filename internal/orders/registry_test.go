package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

func TestRegistry_CreateAndLookup(t *testing.T) {
	r := NewRegistry()
	a := r.Create("p1")
	b := r.Create("p2")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Len())
	got, ok := r.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "p1", got.PositionID)

	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.Len(t, r.IDs(), 2)
}

func TestRegistry_RegisterOrder(t *testing.T) {
	r := NewRegistry()
	tg := r.Create("p1")

	added, err := r.RegisterOrder(tg, models.DirectionOpen, "o1", "A")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = r.RegisterOrder(tg, models.DirectionOpen, "o1", "A")
	require.NoError(t, err)
	assert.False(t, added)

	got, ok := r.GroupForOrder("o1")
	require.True(t, ok)
	assert.Equal(t, tg.ID, got.ID)

	for _, id := range []string{"o2", "o3", "o4"} {
		_, err := r.RegisterOrder(tg, models.DirectionOpen, id, id)
		require.NoError(t, err)
	}
	_, err = r.RegisterOrder(tg, models.DirectionOpen, "o5", "E")
	assert.Error(t, err)
	_, ok = r.GroupForOrder("o5")
	assert.False(t, ok)
}

func TestRegistry_ResetAndRemove(t *testing.T) {
	r := NewRegistry()
	tg := r.Create("p1")
	_, _ = r.RegisterOrder(tg, models.DirectionOpen, "o1", "A")
	_, _ = r.RegisterOrder(tg, models.DirectionClose, "c1", "A")

	r.ResetDirection(tg, models.DirectionClose)
	assert.Empty(t, tg.ClosingOrders)
	_, ok := r.GroupForOrder("c1")
	assert.False(t, ok)
	_, ok = r.GroupForOrder("o1")
	assert.True(t, ok)

	r.Remove(tg.ID)
	assert.Equal(t, 0, r.Len())
	_, ok = r.GroupForOrder("o1")
	assert.False(t, ok)
	r.Remove("missing")
}
