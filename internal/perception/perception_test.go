package perception

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxelmind/agentcore/internal/gameclient"
)

// groundBlocksAt returns solid ground one block below each ring cell
// detectCliff scans around pos, so tests unrelated to cliff detection don't
// also trip the "no solid ground within scan" high-severity cliff.
func groundBlocksAt(pos gameclient.Vec3) []gameclient.Block {
	offsets := []gameclient.Vec3{
		{X: 3, Y: 0, Z: 0}, {X: -3, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 3}, {X: 0, Y: 0, Z: -3},
		{X: 2, Y: 0, Z: 2}, {X: -2, Y: 0, Z: 2}, {X: 2, Y: 0, Z: -2}, {X: -2, Y: 0, Z: -2},
	}
	blocks := make([]gameclient.Block, 0, len(offsets))
	for _, off := range offsets {
		blocks = append(blocks, gameclient.Block{
			Name:     "stone",
			Position: gameclient.Vec3{X: pos.X + off.X, Y: pos.Y + off.Y - 1, Z: pos.Z + off.Z},
			Category: gameclient.CategoryStone,
		})
	}
	return blocks
}

// TestDangerDetectionLowHealthOnly is spec.md §8 scenario 2: health=4,
// food=20, no nearby entities, no lava yields exactly one danger.
func TestDangerDetectionLowHealthOnly(t *testing.T) {
	mock := gameclient.NewMock()
	mock.SetHealth(4)
	mock.SetFood(20)
	mock.SetBlocks(groundBlocksAt(gameclient.Vec3{}))

	p := New(mock, DefaultPolicy(), nil)
	snap, err := p.Observe(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Dangers, 1)
	assert.Equal(t, DangerLowHealth, snap.Dangers[0].Kind)
	assert.Equal(t, SeverityCritical, snap.Dangers[0].Severity)
	assert.Equal(t, "Critical health: 4/20", snap.Dangers[0].Description)
}

func TestDangerDetectionHighHealthAndFoodThresholds(t *testing.T) {
	mock := gameclient.NewMock()
	mock.SetHealth(9)
	mock.SetFood(8)
	mock.SetBlocks(groundBlocksAt(gameclient.Vec3{}))

	p := New(mock, DefaultPolicy(), nil)
	snap, err := p.Observe(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Dangers, 2)
	var kinds []DangerKind
	for _, d := range snap.Dangers {
		kinds = append(kinds, d.Kind)
	}
	assert.Contains(t, kinds, DangerLowHealth)
	assert.Contains(t, kinds, DangerLowFood)
	for _, d := range snap.Dangers {
		if d.Kind == DangerLowHealth {
			assert.Equal(t, SeverityHigh, d.Severity)
		}
		if d.Kind == DangerLowFood {
			assert.Equal(t, SeverityMedium, d.Severity)
		}
	}
}

func TestDangerDetectionNoHazards(t *testing.T) {
	mock := gameclient.NewMock()
	mock.SetBlocks(groundBlocksAt(gameclient.Vec3{}))
	p := New(mock, DefaultPolicy(), nil)
	snap, err := p.Observe(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Dangers)
}

// TestDetectCliffHighSeverityWhenNoGroundWithinScan covers spec rule 5's
// high case: no solid ground anywhere in the 10-block downward scan.
func TestDetectCliffHighSeverityWhenNoGroundWithinScan(t *testing.T) {
	mock := gameclient.NewMock()
	p := New(mock, DefaultPolicy(), nil)
	snap, err := p.Observe(context.Background())
	require.NoError(t, err)

	var cliff *Danger
	for i := range snap.Dangers {
		if snap.Dangers[i].Kind == DangerCliff {
			cliff = &snap.Dangers[i]
		}
	}
	require.NotNil(t, cliff, "expected a cliff danger when no ring cell has solid ground within 10 blocks")
	assert.Equal(t, SeverityHigh, cliff.Severity)
}

// TestDetectCliffMediumSeverityWhenGroundBeyondFourBlocks covers the
// reachable-ground case: solid ground exists, but more than 4 blocks down.
func TestDetectCliffMediumSeverityWhenGroundBeyondFourBlocks(t *testing.T) {
	mock := gameclient.NewMock()
	mock.SetBlocks([]gameclient.Block{
		{Name: "stone", Position: gameclient.Vec3{X: 3, Y: -6, Z: 0}, Category: gameclient.CategoryStone},
	})
	p := New(mock, DefaultPolicy(), nil)
	snap, err := p.Observe(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, snap.Dangers)
	assert.Equal(t, DangerCliff, snap.Dangers[0].Kind)
	assert.Equal(t, SeverityMedium, snap.Dangers[0].Severity)
}

func TestObserveBotNotSpawnedWhenPositionFails(t *testing.T) {
	p := New(errorClient{}, DefaultPolicy(), nil)
	_, err := p.Observe(context.Background())
	assert.Error(t, err)
}

// TestNearbyListsSortedByDistanceProperty validates I3.
func TestNearbyListsSortedByDistanceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("nearbyBlocks and nearbyEntities are sorted ascending by distance", prop.ForAll(
		func(coords []float64) bool {
			mock := gameclient.NewMock()
			var blocks []gameclient.Block
			var entities []gameclient.Entity
			for i, c := range coords {
				pos := gameclient.Vec3{X: c, Y: 0, Z: 0}
				blocks = append(blocks, gameclient.Block{Name: "iron_ore", Position: pos, Category: gameclient.CategoryOre})
				entities = append(entities, gameclient.Entity{Name: "zombie", Type: "hostile", Position: pos, Hostile: true})
				_ = i
			}
			mock.SetBlocks(blocks)
			mock.SetEntities(entities)

			p := New(mock, DefaultPolicy(), nil)
			snap, err := p.Observe(context.Background())
			if err != nil {
				return false
			}
			for i := 1; i < len(snap.NearbyBlocks); i++ {
				if snap.NearbyBlocks[i-1].Distance > snap.NearbyBlocks[i].Distance {
					return false
				}
			}
			for i := 1; i < len(snap.NearbyEntities); i++ {
				if snap.NearbyEntities[i-1].Distance > snap.NearbyEntities[i].Distance {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, gen.Float64Range(-30, 30)),
	))

	properties.TestingRun(t)
}

func TestFindNearestOreAndWood(t *testing.T) {
	mock := gameclient.NewMock()
	mock.SetBlocks([]gameclient.Block{
		{Name: "iron_ore", Position: gameclient.Vec3{X: 5}, Category: gameclient.CategoryOre},
		{Name: "oak_log", Position: gameclient.Vec3{X: 2}, Category: gameclient.CategoryWood},
	})
	p := New(mock, DefaultPolicy(), nil)
	_, err := p.Observe(context.Background())
	require.NoError(t, err)

	ore := p.FindNearestOre()
	require.NotNil(t, ore)
	assert.Equal(t, "iron_ore", ore.Name)

	wood := p.FindNearestWood()
	require.NotNil(t, wood)
	assert.Equal(t, "oak_log", wood.Name)
}

func TestStartStopObservingIdempotent(t *testing.T) {
	mock := gameclient.NewMock()
	p := New(mock, Policy{UpdateInterval: 0}, nil)
	p.StartObserving(context.Background())
	p.StartObserving(context.Background()) // no-op, must not deadlock or panic
	p.StopObserving()
	p.StopObserving() // no-op
}

type errorClient struct{ gameclient.Client }

func (errorClient) Position(context.Context) (gameclient.Vec3, error) {
	return gameclient.Vec3{}, assertError{}
}

type assertError struct{}

func (assertError) Error() string { return "no position" }
