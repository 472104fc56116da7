// Package strategy defines the pluggable strategic-decision collaborator
// (the "Assess" step in the Decision Cycle): a Decider consumes the current
// inventory and vitals and returns a Decision, readiness, and missing
// requirements. The agent loop depends only on the Decider interface, never
// on a concrete implementation's internals.
package strategy

import (
	"fmt"

	"github.com/voxelmind/agentcore/internal/inventory"
)

// Phase is the speedrun-ordered enum used by the reference Decider.
type Phase string

const (
	PhaseEarlyGame  Phase = "early_game"
	PhaseNetherPrep Phase = "nether_prep"
	PhaseNether     Phase = "nether"
	PhaseEndPrep    Phase = "end_prep"
	PhaseEndFight   Phase = "end_fight"
	PhaseCompleted  Phase = "completed"
)

// Priority ranks how urgently a Decision should be acted on.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Decision is the strategic layer's output for one Assess step.
type Decision struct {
	Phase            Phase
	Priority         Priority
	Action           string
	Rationale        string
	EstimatedSeconds int
	Risks            []string
}

// Readiness reports whether the bot may advance past its current phase.
type Readiness struct {
	Ready   bool
	Missing []string
}

// Vitals is the subset of a WorldSnapshot the Decider needs.
type Vitals struct {
	Health float64
	Food   float64
}

// InventoryView is the minimal query surface the Decider needs over the
// bot's current items; satisfied by *inventory.Tracker.
type InventoryView interface {
	HasItem(name string, min int) bool
	CheckResources() inventory.ResourceBundle
}

// Decider is the strategy-pattern interface the agent loop depends on.
// Implementations must be pure functions of (inventory, vitals) — no hidden
// state, no callback into the agent loop.
type Decider interface {
	Decide(inv InventoryView, vitals Vitals) (Decision, Readiness)
}

// isNearlyFull reports whether a 0-100 percentage value has reached
// threshold, also given as a 0-100 percentage. The source implementation
// mixes percentage and 0-1-ratio comparisons; this implementation
// standardizes on percentages everywhere a fullness check is needed.
func isNearlyFull(value, threshold float64) bool {
	return value >= threshold
}

// SpeedrunDecider is the reference implementation: a five-phase Minecraft
// speedrun strategy derived purely from the current inventory.
type SpeedrunDecider struct{}

// Decide implements Decider.
func (SpeedrunDecider) Decide(inv InventoryView, v Vitals) (Decision, Readiness) {
	phase := detectPhase(inv)
	readiness := readinessFor(phase, inv)

	healthPct := v.Health / 20 * 100
	foodPct := v.Food / 20 * 100
	if !isNearlyFull(healthPct, 50) || !isNearlyFull(foodPct, 50) {
		return Decision{
			Phase: phase, Priority: PriorityCritical,
			Action:           "Secure food and safety before proceeding",
			Rationale:        "health or food has dropped below half",
			EstimatedSeconds: 30,
			Risks:            []string{"death", "loss of inventory"},
		}, readiness
	}

	switch phase {
	case PhaseEarlyGame:
		return Decision{
			Phase: phase, Priority: PriorityHigh,
			Action:           "Gather wood, stone, and iron; craft a pickaxe",
			Rationale:        "no iron pickaxe yet",
			EstimatedSeconds: 300,
			Risks:            []string{"hostile mobs at night"},
		}, readiness
	case PhaseNetherPrep:
		return Decision{
			Phase: phase, Priority: PriorityHigh,
			Action:           "Mine obsidian and craft flint and steel",
			Rationale:        "iron pickaxe obtained, need a nether portal",
			EstimatedSeconds: 240,
			Risks:            []string{"lava"},
		}, readiness
	case PhaseNether:
		return Decision{
			Phase: phase, Priority: PriorityHigh,
			Action:           "Find a fortress, collect blaze rods and ender pearls",
			Rationale:        "portal active, gathering end-game materials",
			EstimatedSeconds: 600,
			Risks:            []string{"blazes", "ghasts", "fall damage"},
		}, readiness
	case PhaseEndPrep:
		return Decision{
			Phase: phase, Priority: PriorityMedium,
			Action:           "Craft eyes of ender and locate the stronghold",
			Rationale:        "have blaze rods and ender pearls",
			EstimatedSeconds: 300,
			Risks:            []string{"wasted ender eyes"},
		}, readiness
	case PhaseEndFight:
		return Decision{
			Phase: phase, Priority: PriorityCritical,
			Action:           "Enter the end and fight the ender dragon",
			Rationale:        "fully equipped for the end fight",
			EstimatedSeconds: 600,
			Risks:            []string{"death", "fall into the void"},
		}, readiness
	default:
		return Decision{Phase: PhaseCompleted, Priority: PriorityLow, Action: "Idle", Rationale: "run complete"},
			Readiness{Ready: true}
	}
}

// detectPhase implements the round-trip phase detector from spec.md §8,
// evaluated from the most advanced phase backward so that a richer
// inventory always wins: {iron_pickaxe} -> nether_prep; +{obsidian,
// flint_and_steel} -> nether; +{blaze_rod, ender_pearl} -> end_prep;
// +{eye_of_ender, diamond_pickaxe} -> end_fight.
func detectPhase(inv InventoryView) Phase {
	switch {
	case inv.HasItem("eye_of_ender", 1) && inv.HasItem("diamond_pickaxe", 1):
		return PhaseEndFight
	case inv.HasItem("blaze_rod", 1) && inv.HasItem("ender_pearl", 1):
		return PhaseEndPrep
	case inv.HasItem("obsidian", 1) && inv.HasItem("flint_and_steel", 1):
		return PhaseNether
	case inv.HasItem("iron_pickaxe", 1):
		return PhaseNetherPrep
	default:
		return PhaseEarlyGame
	}
}

func readinessFor(phase Phase, inv InventoryView) Readiness {
	switch phase {
	case PhaseEarlyGame:
		var missing []string
		if !inv.HasItem("iron_pickaxe", 1) {
			missing = append(missing, "iron_pickaxe")
		}
		return Readiness{Ready: len(missing) == 0, Missing: missing}
	case PhaseNetherPrep:
		var missing []string
		for _, item := range []string{"obsidian", "flint_and_steel"} {
			if !inv.HasItem(item, 1) {
				missing = append(missing, item)
			}
		}
		return Readiness{Ready: len(missing) == 0, Missing: missing}
	case PhaseNether:
		var missing []string
		for _, item := range []string{"blaze_rod", "ender_pearl"} {
			if !inv.HasItem(item, 1) {
				missing = append(missing, item)
			}
		}
		return Readiness{Ready: len(missing) == 0, Missing: missing}
	case PhaseEndPrep:
		var missing []string
		for _, item := range []string{"eye_of_ender", "diamond_pickaxe"} {
			if !inv.HasItem(item, 1) {
				missing = append(missing, item)
			}
		}
		return Readiness{Ready: len(missing) == 0, Missing: missing}
	default:
		return Readiness{Ready: true}
	}
}

// FormatSituation renders a Decision and Readiness as the user-role
// situation message the Decision Cycle's Plan step appends to Memory.
func FormatSituation(d Decision, r Readiness, progress int) string {
	msg := fmt.Sprintf("Phase: %s | Progress: %d%% | Recommended: %s | Priority: %s | ETA: %ds",
		d.Phase, progress, d.Action, d.Priority, d.EstimatedSeconds)
	if !r.Ready && len(r.Missing) > 0 {
		msg += fmt.Sprintf(" | Missing: %v", r.Missing)
	}
	if d.Rationale != "" {
		msg += fmt.Sprintf(" | Rationale: %s", d.Rationale)
	}
	return msg
}
