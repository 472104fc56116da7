package gameclient

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Mock is an in-memory Client for tests and local development. All
// sub-capabilities degrade to no-op unless explicitly configured, matching
// spec.md §6's "absent sub-capabilities degrade gracefully" contract.
type Mock struct {
	mu sync.Mutex

	pos       Vec3
	health    float64
	food      float64
	timeOfDay int
	raining   bool
	dimension string

	inventory []InventorySlot
	blocks    []Block
	entities  []Entity
	recipes   map[string][]string
	craftable map[string]bool

	subscribers map[EventKind][]EventHandler
}

// NewMock constructs a Mock with sane defaults: full health/food, daytime,
// the overworld dimension.
func NewMock() *Mock {
	return &Mock{
		health:      20,
		food:        20,
		dimension:   "overworld",
		recipes:     make(map[string][]string),
		craftable:   make(map[string]bool),
		subscribers: make(map[EventKind][]EventHandler),
	}
}

var _ Client = (*Mock)(nil)

func (m *Mock) SetPosition(p Vec3)        { m.mu.Lock(); defer m.mu.Unlock(); m.pos = p }
func (m *Mock) SetHealth(h float64)       { m.mu.Lock(); defer m.mu.Unlock(); m.health = h }
func (m *Mock) SetFood(f float64)         { m.mu.Lock(); defer m.mu.Unlock(); m.food = f }
func (m *Mock) SetTimeOfDay(t int)        { m.mu.Lock(); defer m.mu.Unlock(); m.timeOfDay = t }
func (m *Mock) SetRaining(r bool)         { m.mu.Lock(); defer m.mu.Unlock(); m.raining = r }
func (m *Mock) SetDimension(d string)     { m.mu.Lock(); defer m.mu.Unlock(); m.dimension = d }
func (m *Mock) SetInventory(i []InventorySlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventory = i
}
func (m *Mock) SetBlocks(b []Block)       { m.mu.Lock(); defer m.mu.Unlock(); m.blocks = b }
func (m *Mock) SetEntities(e []Entity)    { m.mu.Lock(); defer m.mu.Unlock(); m.entities = e }
func (m *Mock) SetCraftable(name string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.craftable[name] = ok
}

func (m *Mock) Position(context.Context) (Vec3, error)  { m.mu.Lock(); defer m.mu.Unlock(); return m.pos, nil }
func (m *Mock) Health(context.Context) (float64, error) { m.mu.Lock(); defer m.mu.Unlock(); return m.health, nil }
func (m *Mock) Food(context.Context) (float64, error)    { m.mu.Lock(); defer m.mu.Unlock(); return m.food, nil }
func (m *Mock) TimeOfDay(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeOfDay, nil
}
func (m *Mock) IsRaining(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.raining, nil
}
func (m *Mock) Dimension(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dimension, nil
}

func (m *Mock) InventoryItems(context.Context) ([]InventorySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]InventorySlot, len(m.inventory))
	copy(out, m.inventory)
	return out, nil
}
func (m *Mock) Equip(context.Context, string, string) error { return nil }
func (m *Mock) Consume(context.Context) error                { return nil }

func dist(a, b Vec3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (m *Mock) FindBlock(ctx context.Context, q FindBlocksQuery) (*Block, error) {
	matches, err := m.FindBlocks(ctx, q)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return &matches[0], nil
}

func (m *Mock) FindBlocks(_ context.Context, q FindBlocksQuery) ([]Block, error) {
	m.mu.Lock()
	pos := m.pos
	blocks := append([]Block(nil), m.blocks...)
	m.mu.Unlock()

	matchSet := make(map[string]bool, len(q.Matching))
	for _, n := range q.Matching {
		matchSet[n] = true
	}
	var out []Block
	for _, b := range blocks {
		if len(matchSet) > 0 && !matchSet[b.Name] {
			continue
		}
		d := dist(pos, b.Position)
		if q.MaxDistance > 0 && d > q.MaxDistance {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return dist(pos, out[i].Position) < dist(pos, out[j].Position) })
	if q.Count > 0 && len(out) > q.Count {
		out = out[:q.Count]
	}
	return out, nil
}

func (m *Mock) BlockAt(_ context.Context, pos Vec3) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.blocks {
		if b.Position == pos {
			return &b, nil
		}
	}
	return nil, nil
}

func (m *Mock) NearbyEntities(_ context.Context, maxDistance float64) ([]Entity, error) {
	m.mu.Lock()
	pos := m.pos
	entities := append([]Entity(nil), m.entities...)
	m.mu.Unlock()

	var out []Entity
	for _, e := range entities {
		if maxDistance > 0 && dist(pos, e.Position) > maxDistance {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return dist(pos, out[i].Position) < dist(pos, out[j].Position) })
	return out, nil
}

func (m *Mock) Dig(context.Context, Block) error { return nil }
func (m *Mock) Craft(context.Context, string, int, bool) error { return nil }
func (m *Mock) RecipesFor(_ context.Context, itemID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recipes[itemID], nil
}
func (m *Mock) CanCraft(_ context.Context, recipe string, _ int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.craftable[recipe], nil
}

func (m *Mock) Subscribe(kind EventKind, handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[kind] = append(m.subscribers[kind], handler)
}

// Emit fires all handlers subscribed to kind. Test helper; not part of Client.
func (m *Mock) Emit(kind EventKind, payload any) {
	m.mu.Lock()
	handlers := append([]EventHandler(nil), m.subscribers[kind]...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(kind, payload)
	}
}

func (m *Mock) Pathfinder() Pathfinder               { return nil }
func (m *Mock) CombatController() CombatController   { return nil }
func (m *Mock) AutoEat(context.Context, bool) error   { return nil }
func (m *Mock) AutoArmor(context.Context, bool) error { return nil }
func (m *Mock) CollectBlock(context.Context, Block) error { return nil }
func (m *Mock) BestToolForBlock(context.Context, Block) (string, error) { return "", nil }
func (m *Mock) Disconnect(context.Context) error      { return nil }
