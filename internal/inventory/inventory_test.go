package inventory

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyInventoryEventEmitsChanges(t *testing.T) {
	tr := New(nil)
	changes := tr.ApplyInventoryEvent([]Item{{Name: "oak_log", Slot: 0, Count: 4}}, 1)
	require.Len(t, changes, 1)
	assert.Equal(t, Added, changes[0].Kind)
	assert.Equal(t, 4, changes[0].Delta)

	changes = tr.ApplyInventoryEvent([]Item{{Name: "oak_log", Slot: 0, Count: 2}}, 2)
	require.Len(t, changes, 1)
	assert.Equal(t, Changed, changes[0].Kind)
	assert.Equal(t, -2, changes[0].Delta)

	changes = tr.ApplyInventoryEvent(nil, 3)
	require.Len(t, changes, 1)
	assert.Equal(t, Removed, changes[0].Kind)
	assert.Equal(t, 0, changes[0].CountAfter)
}

func TestCategorization(t *testing.T) {
	tr := New(nil)
	tr.UpdateInventorySnapshot([]Item{
		{Name: "iron_pickaxe", Count: 1},
		{Name: "diamond_sword", Count: 1},
		{Name: "iron_helmet", Count: 1},
		{Name: "apple", Count: 3},
		{Name: "cobblestone", Count: 64},
		{Name: "diamond", Count: 2},
		{Name: "stick", Count: 5},
	})
	summary := tr.GetInventorySummary()
	assert.Contains(t, summary.Categorized[CategoryTools], "iron_pickaxe")
	assert.Contains(t, summary.Categorized[CategoryWeapons], "diamond_sword")
	assert.Contains(t, summary.Categorized[CategoryArmor], "iron_helmet")
	assert.Contains(t, summary.Categorized[CategoryFood], "apple")
	assert.Contains(t, summary.Categorized[CategoryBlocks], "cobblestone")
	assert.Contains(t, summary.Categorized[CategoryOres], "diamond")
	assert.Contains(t, summary.Categorized[CategoryOther], "stick")
}

func TestCheckResources(t *testing.T) {
	tr := New(nil)
	tr.UpdateInventorySnapshot([]Item{
		{Name: "iron_pickaxe", Count: 1},
		{Name: "oak_log", Count: 10},
		{Name: "apple", Count: 2},
	})
	rb := tr.CheckResources()
	assert.True(t, rb.HasIronPickaxe)
	assert.False(t, rb.HasDiamondPickaxe)
	assert.True(t, rb.HasFood)
	assert.Equal(t, 10, rb.WoodCount)
	assert.Equal(t, 2, rb.FoodCount)
}

// TestInventoryChangeDeltaConsistencyProperty validates I5: added => delta >
// 0, removed => delta < 0, and countAfter == countBefore + delta always.
func TestInventoryChangeDeltaConsistencyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("change kind matches delta sign and count arithmetic", prop.ForAll(
		func(before, after int) bool {
			tr := New(nil)
			if before > 0 {
				tr.UpdateInventorySnapshot([]Item{{Name: "x", Count: before}})
			} else {
				tr.UpdateInventorySnapshot(nil)
			}
			var slots []Item
			if after > 0 {
				slots = []Item{{Name: "x", Count: after}}
			}
			changes := tr.ApplyInventoryEvent(slots, 0)
			if before == after {
				return len(changes) == 0
			}
			if len(changes) != 1 {
				return false
			}
			c := changes[0]
			if c.CountAfter != c.CountBefore+c.Delta {
				return false
			}
			switch c.Kind {
			case Added:
				return c.Delta > 0
			case Removed:
				return c.Delta < 0
			default:
				return true
			}
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
