// Package gameclient defines the external game client contract (§6): the
// capability bundle the agent core treats as a fixed out-of-scope
// collaborator. It also provides a no-op/mock implementation so tests and
// the agent loop can run without a live game connection.
package gameclient

import "context"

// Vec3 is a real-valued position.
type Vec3 struct{ X, Y, Z float64 }

// BlockCategory classifies a block the perceiver scans for.
type BlockCategory string

const (
	CategoryOre   BlockCategory = "ore"
	CategoryWood  BlockCategory = "wood"
	CategoryStone BlockCategory = "stone"
	CategoryDirt  BlockCategory = "dirt"
	CategoryOther BlockCategory = "other"
)

// Block is one scan result from FindBlocks/BlockAt.
type Block struct {
	Name     string
	Position Vec3
	Category BlockCategory
}

// Entity is one scan result from live-entity enumeration.
type Entity struct {
	Name     string
	Type     string
	Position Vec3
	Hostile  bool
	Health   *float64
}

// InventorySlot is one occupied inventory slot.
type InventorySlot struct {
	Name  string
	Slot  int
	Count int
}

// FindBlocksQuery parameterizes a block scan.
type FindBlocksQuery struct {
	Matching    []string
	MaxDistance float64
	Count       int
}

// EventKind enumerates the game client events the core subscribes to.
type EventKind string

const (
	EventItemPickup EventKind = "item_pickup"
	EventItemDrop   EventKind = "item_drop"
	EventDamage     EventKind = "damage"
	EventDeath      EventKind = "death"
	EventDisconnect EventKind = "disconnect"
)

// EventHandler receives game client events.
type EventHandler func(kind EventKind, payload any)

// Pathfinder is the optional movement sub-capability. A nil Pathfinder
// degrades goto_location handling to a no-op per spec.md §6.
type Pathfinder interface {
	GoalBlock(ctx context.Context, pos Vec3) error
	GoalNear(ctx context.Context, pos Vec3, radius float64) error
}

// CombatController is the optional PVP sub-capability.
type CombatController interface {
	Attack(ctx context.Context, target string) error
	Stop(ctx context.Context) error
}

// Client is the capability bundle the agent core requires. Absent
// sub-capabilities (Pathfinder/CombatController may be nil; AutoEat/
// AutoArmor/CollectBlock/BestToolForBlock are booleans/no-ops below) degrade
// gracefully rather than erroring.
type Client interface {
	Position(ctx context.Context) (Vec3, error)
	Health(ctx context.Context) (float64, error)
	Food(ctx context.Context) (float64, error)
	TimeOfDay(ctx context.Context) (int, error)
	IsRaining(ctx context.Context) (bool, error)
	Dimension(ctx context.Context) (string, error)

	InventoryItems(ctx context.Context) ([]InventorySlot, error)
	Equip(ctx context.Context, item string, slot string) error
	Consume(ctx context.Context) error

	FindBlock(ctx context.Context, q FindBlocksQuery) (*Block, error)
	FindBlocks(ctx context.Context, q FindBlocksQuery) ([]Block, error)
	BlockAt(ctx context.Context, pos Vec3) (*Block, error)

	NearbyEntities(ctx context.Context, maxDistance float64) ([]Entity, error)

	Dig(ctx context.Context, b Block) error
	Craft(ctx context.Context, recipe string, count int, craftingTable bool) error
	RecipesFor(ctx context.Context, itemID string) ([]string, error)
	CanCraft(ctx context.Context, recipe string, count int) (bool, error)

	Subscribe(kind EventKind, handler EventHandler)

	Pathfinder() Pathfinder       // nil if unsupported
	CombatController() CombatController // nil if unsupported
	AutoEat(ctx context.Context, enabled bool) error
	AutoArmor(ctx context.Context, enabled bool) error
	CollectBlock(ctx context.Context, b Block) error
	BestToolForBlock(ctx context.Context, b Block) (string, error)

	Disconnect(ctx context.Context) error
}
