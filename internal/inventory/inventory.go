// Package inventory implements the Inventory Tracker (C3): a diff-based
// change feed over the bot's inventory, six-way item categorization, and the
// fixed boolean resource bundle the strategic layer consumes.
package inventory

import (
	"sort"
	"strings"
	"sync"
)

// ChangeKind classifies an InventoryChange.
type ChangeKind string

const (
	Added   ChangeKind = "added"
	Removed ChangeKind = "removed"
	Changed ChangeKind = "changed"
)

// Change is one entry in the bounded change ring.
type Change struct {
	Timestamp    int64 // unix millis, set by the caller (e.g. from a clock seam)
	Kind         ChangeKind
	Item         string
	CountBefore  int
	CountAfter   int
	Delta        int
}

const ringCapacity = 100

// Category is one of the six derived item groupings.
type Category string

const (
	CategoryTools   Category = "tools"
	CategoryWeapons Category = "weapons"
	CategoryArmor   Category = "armor"
	CategoryFood    Category = "food"
	CategoryBlocks  Category = "blocks"
	CategoryOres    Category = "ores"
	CategoryOther   Category = "other"
)

// Item is one stack recorded at a slot.
type Item struct {
	Name string
	Slot int
	Count int
}

// Summary is the result of getInventorySummary(): aggregate counts, slot
// usage, the flat item list, and the six-way categorization.
type Summary struct {
	Total       int
	UsedSlots   int
	FreeSlots   int
	Items       []Item
	Categorized map[Category][]string
}

// ResourceBundle is the fixed boolean bundle checkResources() returns for the
// strategic layer.
type ResourceBundle struct {
	HasWoodPickaxe    bool
	HasStonePickaxe   bool
	HasIronPickaxe    bool
	HasDiamondPickaxe bool
	HasSword          bool
	HasFood           bool
	HasTorch          bool
	HasCraftingTable  bool
	WoodCount         int
	StoneCount        int
	IronCount         int
	DiamondCount      int
	FoodCount         int
}

const capacitySlots = 36

// Keyword tables driving categorization. Substring match against fixed sets,
// per spec.md §4.3 — encoded as explicit rules rather than ad-hoc heuristics.
var toolKeywords = []string{"pickaxe", "axe", "shovel", "hoe"}
var weaponKeywords = []string{"sword", "bow", "crossbow", "trident"}
var armorKeywords = []string{"helmet", "chestplate", "leggings", "boots", "shield"}

var foodAllowlist = map[string]bool{
	"apple": true, "bread": true, "cooked_beef": true, "cooked_porkchop": true,
	"cooked_chicken": true, "cooked_mutton": true, "cooked_rabbit": true,
	"cooked_cod": true, "cooked_salmon": true, "carrot": true, "potato": true,
	"baked_potato": true, "golden_apple": true, "golden_carrot": true,
	"melon_slice": true, "pumpkin_pie": true, "beetroot": true, "beetroot_soup": true,
	"mushroom_stew": true, "rabbit_stew": true, "honey_bottle": true,
}

var oreAllowlist = map[string]bool{
	"coal": true, "iron_ore": true, "gold_ore": true, "diamond": true, "diamond_ore": true,
	"redstone": true, "redstone_ore": true, "lapis_lazuli": true, "lapis_ore": true,
	"emerald": true, "emerald_ore": true, "raw_iron": true, "raw_gold": true, "raw_copper": true,
	"copper_ore": true, "nether_quartz_ore": true, "ancient_debris": true,
}

var blockKeywords = []string{"_block", "stone", "dirt", "planks", "log"}

func categorize(item string) Category {
	name := strings.ToLower(item)
	for _, kw := range toolKeywords {
		if strings.Contains(name, kw) {
			return CategoryTools
		}
	}
	for _, kw := range weaponKeywords {
		if strings.Contains(name, kw) {
			return CategoryWeapons
		}
	}
	for _, kw := range armorKeywords {
		if strings.Contains(name, kw) {
			return CategoryArmor
		}
	}
	if foodAllowlist[name] {
		return CategoryFood
	}
	if oreAllowlist[name] {
		return CategoryOres
	}
	for _, kw := range blockKeywords {
		if strings.Contains(name, kw) {
			return CategoryBlocks
		}
	}
	return CategoryOther
}

// RecipeEngine is the subset of the game client's crafting surface the
// tracker delegates to for canCraft/getMissingMaterials.
type RecipeEngine interface {
	CanCraft(name string, count int) (bool, error)
	MissingMaterials(name string, count int) (map[string]int, error)
}

// Tracker maintains the current inventory snapshot and a bounded change ring.
type Tracker struct {
	mu sync.Mutex

	items   map[string]int // aggregate by name
	slots   []Item
	changes []Change
	engine  RecipeEngine
}

// New constructs an empty Tracker. engine may be nil; canCraft/
// getMissingMaterials then report an error.
func New(engine RecipeEngine) *Tracker {
	return &Tracker{items: make(map[string]int), engine: engine}
}

// UpdateInventorySnapshot rebuilds the aggregate map from slots without
// emitting changes.
func (t *Tracker) UpdateInventorySnapshot(slots []Item) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = append([]Item(nil), slots...)
	t.items = aggregate(slots)
}

// ApplyInventoryEvent rebuilds the aggregate map from slots and appends one
// Change per differing entry versus the retained previous map. Called on the
// game client's "item added" / "item dropped" events.
func (t *Tracker) ApplyInventoryEvent(slots []Item, timestamp int64) []Change {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := aggregate(slots)
	var emitted []Change
	seen := make(map[string]bool, len(next)+len(t.items))
	for name := range next {
		seen[name] = true
	}
	for name := range t.items {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		before := t.items[name]
		after := next[name]
		if before == after {
			continue
		}
		delta := after - before
		kind := Changed
		switch {
		case before == 0:
			kind = Added
		case after == 0:
			kind = Removed
		}
		c := Change{Timestamp: timestamp, Kind: kind, Item: name, CountBefore: before, CountAfter: after, Delta: delta}
		t.changes = append(t.changes, c)
		emitted = append(emitted, c)
	}
	if len(t.changes) > ringCapacity {
		t.changes = t.changes[len(t.changes)-ringCapacity:]
	}

	t.slots = append([]Item(nil), slots...)
	t.items = next
	return emitted
}

func aggregate(slots []Item) map[string]int {
	out := make(map[string]int)
	for _, it := range slots {
		out[it.Name] += it.Count
	}
	return out
}

// Changes returns a copy of the bounded change ring, oldest first.
func (t *Tracker) Changes() []Change {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Change, len(t.changes))
	copy(out, t.changes)
	return out
}

// GetInventorySummary returns aggregate totals, slot usage, and the six-way
// categorization.
func (t *Tracker) GetInventorySummary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	items := make([]Item, len(t.slots))
	copy(items, t.slots)
	for _, c := range t.items {
		total += c
	}

	categorized := map[Category][]string{
		CategoryTools: {}, CategoryWeapons: {}, CategoryArmor: {},
		CategoryFood: {}, CategoryBlocks: {}, CategoryOres: {}, CategoryOther: {},
	}
	names := make([]string, 0, len(t.items))
	for name := range t.items {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cat := categorize(name)
		categorized[cat] = append(categorized[cat], name)
	}

	return Summary{
		Total:       total,
		UsedSlots:   len(t.slots),
		FreeSlots:   capacitySlots - len(t.slots),
		Items:       items,
		Categorized: categorized,
	}
}

// HasItem reports whether the aggregate count of name is at least min (min
// defaults to 1 when <= 0).
func (t *Tracker) HasItem(name string, min int) bool {
	if min <= 0 {
		min = 1
	}
	return t.GetItemCount(name) >= min
}

// GetItemCount returns the aggregate count for name.
func (t *Tracker) GetItemCount(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.items[name]
}

// FindItem returns the first slot holding name, if any.
func (t *Tracker) FindItem(name string) (Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, it := range t.slots {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// CheckResources returns the fixed boolean bundle the strategic layer uses.
func (t *Tracker) CheckResources() ResourceBundle {
	t.mu.Lock()
	defer t.mu.Unlock()

	has := func(name string) bool { return t.items[name] > 0 }
	hasAnyFood := func() bool {
		for name := range foodAllowlist {
			if t.items[name] > 0 {
				return true
			}
		}
		return false
	}
	hasAnySword := func() bool {
		for name := range t.items {
			if strings.Contains(name, "sword") {
				return true
			}
		}
		return false
	}

	return ResourceBundle{
		HasWoodPickaxe:    has("wooden_pickaxe"),
		HasStonePickaxe:   has("stone_pickaxe"),
		HasIronPickaxe:    has("iron_pickaxe"),
		HasDiamondPickaxe: has("diamond_pickaxe"),
		HasSword:          hasAnySword(),
		HasFood:           hasAnyFood(),
		HasTorch:          has("torch"),
		HasCraftingTable:  has("crafting_table"),
		WoodCount:         t.items["oak_log"] + t.items["oak_planks"],
		StoneCount:        t.items["cobblestone"] + t.items["stone"],
		IronCount:         t.items["iron_ingot"] + t.items["raw_iron"],
		DiamondCount:      t.items["diamond"],
		FoodCount:         foodTotal(t.items),
	}
}

func foodTotal(items map[string]int) int {
	total := 0
	for name, count := range items {
		if foodAllowlist[name] {
			total += count
		}
	}
	return total
}

// CanCraft delegates to the game client's recipe engine.
func (t *Tracker) CanCraft(name string, count int) (bool, error) {
	if t.engine == nil {
		return false, errNoRecipeEngine
	}
	return t.engine.CanCraft(name, count)
}

// GetMissingMaterials delegates to the game client's recipe engine.
func (t *Tracker) GetMissingMaterials(name string, count int) (map[string]int, error) {
	if t.engine == nil {
		return nil, errNoRecipeEngine
	}
	return t.engine.MissingMaterials(name, count)
}

var errNoRecipeEngine = recipeEngineError("inventory: no recipe engine configured")

type recipeEngineError string

func (e recipeEngineError) Error() string { return string(e) }
