// Package perception implements the World Perceiver (C2): periodic and
// on-demand world sampling into an immutable WorldSnapshot, with the
// deterministic, fixed-order danger detection rules from spec.md §4.2.
package perception

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/voxelmind/agentcore/internal/agenterrors"
	"github.com/voxelmind/agentcore/internal/gameclient"
)

// DangerKind classifies a detected hazard.
type DangerKind string

const (
	DangerLavaProximity DangerKind = "lava"
	DangerCliff          DangerKind = "cliff"
	DangerHostileMob      DangerKind = "hostile_mob"
	DangerLowHealth       DangerKind = "low_health"
	DangerLowFood         DangerKind = "low_food"
)

// Severity ranks a Danger.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Danger is one hazard surfaced by observe().
type Danger struct {
	Kind        DangerKind
	Severity    Severity
	Description string
	Position    *gameclient.Vec3
}

// NearbyBlock is one entry in a snapshot's sorted block list.
type NearbyBlock struct {
	Name     string
	Position gameclient.Vec3
	Distance float64
	Category gameclient.BlockCategory
}

// NearbyEntity is one entry in a snapshot's sorted entity list.
type NearbyEntity struct {
	Name     string
	Type     string
	Position gameclient.Vec3
	Distance float64
	Hostile  bool
	Health   *float64
}

// Snapshot is an immutable observation of the world at Timestamp. It is
// never mutated after publication.
type Snapshot struct {
	Timestamp     time.Time
	Position      gameclient.Vec3
	Health        float64
	Food          float64
	Dimension     string
	NearbyBlocks  []NearbyBlock
	NearbyEntities []NearbyEntity
	Dangers       []Danger
	TimeOfDay     int
	Weather       string
}

// Policy configures scan behavior.
type Policy struct {
	BlockScanRadius  float64
	EntityScanRadius float64
	UpdateInterval   time.Duration
	TrackOres        bool
	TrackMobs        bool
	TrackDangers     bool
}

// DefaultPolicy matches spec.md §4.2's defaults.
func DefaultPolicy() Policy {
	return Policy{
		BlockScanRadius:  32,
		EntityScanRadius: 32,
		UpdateInterval:   5 * time.Second,
		TrackOres:        true,
		TrackMobs:        true,
		TrackDangers:     true,
	}
}

// interestingBlocks is the fixed "interesting block" set: ores, wood logs,
// and a handful of named utility/hazard blocks.
var interestingBlocks = []string{
	"coal_ore", "iron_ore", "gold_ore", "diamond_ore", "redstone_ore", "lapis_ore", "emerald_ore",
	"oak_log", "spruce_log", "birch_log", "jungle_log", "acacia_log", "dark_oak_log",
	"crafting_table", "furnace", "chest", "lava", "water",
}

var hostileMobs = map[string]bool{
	"zombie": true, "skeleton": true, "creeper": true, "spider": true,
	"enderman": true, "witch": true, "drowned": true, "husk": true, "phantom": true,
}

// Perceiver samples the game client on demand and, once started, on a timer.
type Perceiver struct {
	mu       sync.Mutex
	client   gameclient.Client
	policy   Policy
	last     *Snapshot
	onUpdate func(Snapshot)

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Perceiver. onUpdate, if non-nil, is called after every
// periodic (not on-demand) observation.
func New(client gameclient.Client, policy Policy, onUpdate func(Snapshot)) *Perceiver {
	return &Perceiver{client: client, policy: policy, onUpdate: onUpdate}
}

// Observe produces one WorldSnapshot. Fails with BotNotSpawned iff the bot
// has no position information available.
func (p *Perceiver) Observe(ctx context.Context) (Snapshot, error) {
	pos, err := p.client.Position(ctx)
	if err != nil {
		return Snapshot{}, agenterrors.New(agenterrors.BotNotSpawned, "Observe", err)
	}

	health, _ := p.client.Health(ctx)
	food, _ := p.client.Food(ctx)
	dimension, _ := p.client.Dimension(ctx)
	timeOfDay, _ := p.client.TimeOfDay(ctx)
	raining, _ := p.client.IsRaining(ctx)

	blocks := p.scanBlocks(ctx, pos)
	entities := p.scanEntities(ctx, pos)

	weather := "clear"
	if raining {
		weather = "rain"
	}

	snap := Snapshot{
		Timestamp:      time.Now(),
		Position:       pos,
		Health:         health,
		Food:           food,
		Dimension:      dimension,
		NearbyBlocks:   blocks,
		NearbyEntities: entities,
		TimeOfDay:      timeOfDay,
		Weather:        weather,
	}

	if p.policy.TrackDangers {
		snap.Dangers = p.detectDangers(ctx, pos, health, food, entities)
	}

	p.mu.Lock()
	p.last = &snap
	p.mu.Unlock()

	return snap, nil
}

// scanBlocks iterates the fixed interesting-block set, requesting up to 10
// matches per type, merges, and sorts by ascending distance. Errors from the
// game client are swallowed (perception never throws from block scans).
func (p *Perceiver) scanBlocks(ctx context.Context, pos gameclient.Vec3) []NearbyBlock {
	var out []NearbyBlock
	for _, name := range interestingBlocks {
		blocks, err := p.client.FindBlocks(ctx, gameclient.FindBlocksQuery{
			Matching: []string{name}, MaxDistance: p.policy.BlockScanRadius, Count: 10,
		})
		if err != nil {
			continue
		}
		for _, b := range blocks {
			out = append(out, NearbyBlock{
				Name: b.Name, Position: b.Position,
				Distance: round1(distance(pos, b.Position)), Category: b.Category,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// scanEntities scans all live entities excluding self, filters by radius,
// and sorts by ascending distance. Errors are swallowed to an empty list.
func (p *Perceiver) scanEntities(ctx context.Context, pos gameclient.Vec3) []NearbyEntity {
	entities, err := p.client.NearbyEntities(ctx, p.policy.EntityScanRadius)
	if err != nil {
		return nil
	}
	out := make([]NearbyEntity, 0, len(entities))
	for _, e := range entities {
		out = append(out, NearbyEntity{
			Name: e.Name, Type: e.Type, Position: e.Position,
			Distance: round1(distance(pos, e.Position)), Hostile: e.Hostile, Health: e.Health,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// detectDangers runs the fixed-order rules from spec.md §4.2.
func (p *Perceiver) detectDangers(ctx context.Context, pos gameclient.Vec3, health, food float64, entities []NearbyEntity) []Danger {
	var dangers []Danger

	switch {
	case health <= 5:
		dangers = append(dangers, Danger{Kind: DangerLowHealth, Severity: SeverityCritical,
			Description: fmt.Sprintf("Critical health: %.0f/20", health)})
	case health <= 10:
		dangers = append(dangers, Danger{Kind: DangerLowHealth, Severity: SeverityHigh,
			Description: fmt.Sprintf("Low health: %.0f/20", health)})
	}

	switch {
	case food <= 5:
		dangers = append(dangers, Danger{Kind: DangerLowFood, Severity: SeverityHigh,
			Description: fmt.Sprintf("Critical hunger: %.0f/20", food)})
	case food <= 10:
		dangers = append(dangers, Danger{Kind: DangerLowFood, Severity: SeverityMedium,
			Description: fmt.Sprintf("Low hunger: %.0f/20", food)})
	}

	if lava, err := p.client.FindBlock(ctx, gameclient.FindBlocksQuery{Matching: []string{"lava"}, MaxDistance: 8}); err == nil && lava != nil {
		d := distance(pos, lava.Position)
		sev := SeverityMedium
		if d < 3 {
			sev = SeverityCritical
		}
		lavaPos := lava.Position
		dangers = append(dangers, Danger{Kind: DangerLavaProximity, Severity: sev,
			Description: fmt.Sprintf("Lava nearby: %.1f blocks", d), Position: &lavaPos})
	}

	if nearest := nearestHostile(entities); nearest != nil {
		sev := SeverityMedium
		switch {
		case nearest.Distance < 5:
			sev = SeverityCritical
		case nearest.Distance < 10:
			sev = SeverityHigh
		}
		hostilePos := nearest.Position
		dangers = append(dangers, Danger{Kind: DangerHostileMob, Severity: sev,
			Description: fmt.Sprintf("Hostile %s nearby: %.1f blocks", nearest.Name, nearest.Distance), Position: &hostilePos})
	}

	if cliff := p.detectCliff(ctx, pos); cliff != nil {
		dangers = append(dangers, *cliff)
	}

	return dangers
}

func nearestHostile(entities []NearbyEntity) *NearbyEntity {
	for _, e := range entities {
		if e.Hostile || hostileMobs[e.Name] {
			cp := e
			return &cp
		}
	}
	return nil
}

// detectCliff scans a 3-block ring around pos at the same Y, looking
// downward up to 10 blocks for the first solid cell. A ring cell with solid
// ground more than 4 blocks down is a medium cliff; a ring cell with no
// solid ground anywhere in the 10-block scan is a high-severity cliff (the
// drop, if any, exceeds what the scan can even measure). The first detected
// cliff short-circuits the scan.
func (p *Perceiver) detectCliff(ctx context.Context, pos gameclient.Vec3) *Danger {
	offsets := []gameclient.Vec3{
		{X: 3, Y: 0, Z: 0}, {X: -3, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 3}, {X: 0, Y: 0, Z: -3},
		{X: 2, Y: 0, Z: 2}, {X: -2, Y: 0, Z: 2}, {X: 2, Y: 0, Z: -2}, {X: -2, Y: 0, Z: -2},
	}
	for _, off := range offsets {
		ring := gameclient.Vec3{X: pos.X + off.X, Y: pos.Y, Z: pos.Z + off.Z}
		found := false
		for drop := 1; drop <= 10; drop++ {
			check := gameclient.Vec3{X: ring.X, Y: ring.Y - float64(drop), Z: ring.Z}
			block, err := p.client.BlockAt(ctx, check)
			if err != nil || block == nil {
				continue
			}
			found = true
			if drop > 4 {
				cp := ring
				return &Danger{Kind: DangerCliff, Severity: SeverityMedium,
					Description: fmt.Sprintf("Cliff edge, drop of %d blocks", drop), Position: &cp}
			}
			break
		}
		if !found {
			cp := ring
			return &Danger{Kind: DangerCliff, Severity: SeverityHigh,
				Description: "Cliff edge, no solid ground within 10 blocks", Position: &cp}
		}
	}
	return nil
}

func distance(a, b gameclient.Vec3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// StartObserving schedules periodic observation at the configured interval
// and issues one immediate observation. Calling start while already running
// is a no-op.
func (p *Perceiver) StartObserving(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.loop(loopCtx)
}

func (p *Perceiver) loop(ctx context.Context) {
	defer close(p.done)

	if snap, err := p.Observe(ctx); err == nil && p.onUpdate != nil {
		p.onUpdate(snap)
	}

	interval := p.policy.UpdateInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if snap, err := p.Observe(ctx); err == nil && p.onUpdate != nil {
				p.onUpdate(snap)
			}
		}
	}
}

// StopObserving cancels the periodic scan, if running.
func (p *Perceiver) StopObserving() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	<-done
}

// FindNearbyBlockType returns up to 50 matches of name from the last
// snapshot, sorted by ascending distance.
func (p *Perceiver) FindNearbyBlockType(name string, maxDistance float64) []NearbyBlock {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil
	}
	var out []NearbyBlock
	for _, b := range p.last.NearbyBlocks {
		if b.Name != name {
			continue
		}
		if maxDistance > 0 && b.Distance > maxDistance {
			continue
		}
		out = append(out, b)
		if len(out) >= 50 {
			break
		}
	}
	return out
}

// FindNearestOre returns the first block in the last snapshot categorized as ore.
func (p *Perceiver) FindNearestOre() *NearbyBlock { return p.findNearestCategory(gameclient.CategoryOre) }

// FindNearestWood returns the first block in the last snapshot categorized as wood.
func (p *Perceiver) FindNearestWood() *NearbyBlock { return p.findNearestCategory(gameclient.CategoryWood) }

func (p *Perceiver) findNearestCategory(cat gameclient.BlockCategory) *NearbyBlock {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil
	}
	for _, b := range p.last.NearbyBlocks {
		if b.Category == cat {
			cp := b
			return &cp
		}
	}
	return nil
}

// IsSafePosition returns false iff any current danger has a position within
// 5 units of pos.
func (p *Perceiver) IsSafePosition(pos gameclient.Vec3) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return true
	}
	for _, d := range p.last.Dangers {
		if d.Position == nil {
			continue
		}
		if distance(*d.Position, pos) < 5 {
			return false
		}
	}
	return true
}

// LastSnapshot returns the most recently published snapshot, if any.
func (p *Perceiver) LastSnapshot() (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Snapshot{}, false
	}
	return *p.last, true
}
