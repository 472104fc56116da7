package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxelmind/agentcore/internal/inventory"
)

func withItems(items ...string) *inventory.Tracker {
	tr := inventory.New(nil)
	slots := make([]inventory.Item, 0, len(items))
	for _, name := range items {
		slots = append(slots, inventory.Item{Name: name, Count: 1})
	}
	tr.UpdateInventorySnapshot(slots)
	return tr
}

// TestPhaseDetectorRoundTrip is spec.md §8's phase-detector round-trip scenario.
func TestPhaseDetectorRoundTrip(t *testing.T) {
	d := SpeedrunDecider{}
	full := Vitals{Health: 20, Food: 20}

	decision, _ := d.Decide(withItems("iron_pickaxe"), full)
	assert.Equal(t, PhaseNetherPrep, decision.Phase)

	decision, _ = d.Decide(withItems("iron_pickaxe", "obsidian", "flint_and_steel"), full)
	assert.Equal(t, PhaseNether, decision.Phase)

	decision, _ = d.Decide(withItems("iron_pickaxe", "obsidian", "flint_and_steel", "blaze_rod", "ender_pearl"), full)
	assert.Equal(t, PhaseEndPrep, decision.Phase)

	decision, _ = d.Decide(withItems("iron_pickaxe", "obsidian", "flint_and_steel", "blaze_rod", "ender_pearl",
		"eye_of_ender", "diamond_pickaxe"), full)
	assert.Equal(t, PhaseEndFight, decision.Phase)
}

func TestLowVitalsOverridesPriority(t *testing.T) {
	d := SpeedrunDecider{}
	decision, _ := d.Decide(withItems(), Vitals{Health: 5, Food: 20})
	assert.Equal(t, PriorityCritical, decision.Priority)
}

func TestReadinessReportsMissingRequirements(t *testing.T) {
	d := SpeedrunDecider{}
	_, readiness := d.Decide(withItems("iron_pickaxe"), Vitals{Health: 20, Food: 20})
	require.False(t, readiness.Ready)
	assert.Contains(t, readiness.Missing, "obsidian")
	assert.Contains(t, readiness.Missing, "flint_and_steel")
}

func TestFormatSituationIncludesMissing(t *testing.T) {
	d := Decision{Phase: PhaseNetherPrep, Priority: PriorityHigh, Action: "mine obsidian", EstimatedSeconds: 120}
	r := Readiness{Ready: false, Missing: []string{"obsidian"}}
	msg := FormatSituation(d, r, 40)
	assert.Contains(t, msg, "nether_prep")
	assert.Contains(t, msg, "40%")
	assert.Contains(t, msg, "obsidian")
}
