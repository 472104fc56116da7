package tools

import (
	"context"
	"fmt"

	"github.com/voxelmind/agentcore/internal/gameclient"
	"github.com/voxelmind/agentcore/internal/inventory"
)

func floatPtr(v float64) *float64 { return &v }

// RegisterCanonicalTools binds the fixed tool set every implementation must
// ship against client and tracker.
func RegisterCanonicalTools(r *Registry, client gameclient.Client, tracker *inventory.Tracker) {
	r.Register(Declaration{
		Name:        "get_position",
		Description: "Returns the bot's current world position.",
		Params:      map[string]Param{},
	}, func(ctx context.Context, _ map[string]any) (Result, error) {
		pos, err := client.Position(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{Success: true, Data: map[string]any{"x": pos.X, "y": pos.Y, "z": pos.Z}}, nil
	})

	r.Register(Declaration{
		Name:        "get_health",
		Description: "Returns the bot's current health and food levels.",
		Params:      map[string]Param{},
	}, func(ctx context.Context, _ map[string]any) (Result, error) {
		health, err := client.Health(ctx)
		if err != nil {
			return Result{}, err
		}
		food, err := client.Food(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{Success: true, Data: map[string]any{"health": health, "food": food}}, nil
	})

	r.Register(Declaration{
		Name:        "get_inventory",
		Description: "Returns a summary of the bot's current inventory.",
		Params:      map[string]Param{},
	}, func(ctx context.Context, _ map[string]any) (Result, error) {
		summary := tracker.GetInventorySummary()
		return Result{Success: true, Data: summary}, nil
	})

	r.Register(Declaration{
		Name:        "get_nearby_blocks",
		Description: "Finds blocks of a given type within range of the bot.",
		Params: map[string]Param{
			"blockType":   {Type: TypeString, Description: "Block name to search for.", Required: true},
			"maxDistance": {Type: TypeNumber, Description: "Search radius in blocks.", Max: floatPtr(128), Default: float64(32)},
		},
	}, func(ctx context.Context, args map[string]any) (Result, error) {
		blockType, _ := args["blockType"].(string)
		maxDistance := 32.0
		if v, ok := args["maxDistance"].(float64); ok {
			maxDistance = v
		}
		blocks, err := client.FindBlocks(ctx, gameclient.FindBlocksQuery{
			Matching: []string{blockType}, MaxDistance: maxDistance, Count: 20,
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Success: true, Data: blocks, Message: fmt.Sprintf("Found %d %s block(s)", len(blocks), blockType)}, nil
	})

	r.Register(Declaration{
		Name:        "goto_location",
		Description: "Navigates the bot to the given coordinates.",
		Params: map[string]Param{
			"x": {Type: TypeNumber, Required: true},
			"y": {Type: TypeNumber, Required: true},
			"z": {Type: TypeNumber, Required: true},
		},
	}, func(ctx context.Context, args map[string]any) (Result, error) {
		x, _ := args["x"].(float64)
		y, _ := args["y"].(float64)
		z, _ := args["z"].(float64)
		pf := client.Pathfinder()
		if pf == nil {
			return Result{Success: false, Error: "pathfinding is not supported by this game client"}, nil
		}
		if err := pf.GoalBlock(ctx, gameclient.Vec3{X: x, Y: y, Z: z}); err != nil {
			return Result{}, err
		}
		return Result{Success: true, Message: fmt.Sprintf("Arrived near (%.1f, %.1f, %.1f)", x, y, z)}, nil
	})

	r.Register(Declaration{
		Name:        "mine_block",
		Description: "Mines up to count blocks of blockType near the bot.",
		Params: map[string]Param{
			"blockType": {Type: TypeString, Required: true},
			"count":     {Type: TypeNumber, Required: true, Min: floatPtr(1), Max: floatPtr(64)},
		},
	}, func(ctx context.Context, args map[string]any) (Result, error) {
		blockType, _ := args["blockType"].(string)
		count := 1
		if v, ok := args["count"].(float64); ok {
			count = int(v)
		}
		mined := 0
		for mined < count {
			block, err := client.FindBlock(ctx, gameclient.FindBlocksQuery{Matching: []string{blockType}, MaxDistance: 32})
			if err != nil {
				return Result{}, err
			}
			if block == nil {
				break
			}
			if err := client.Dig(ctx, *block); err != nil {
				return Result{}, err
			}
			mined++
		}
		if mined == 0 {
			return Result{Success: false, Error: fmt.Sprintf("no %s found within range", blockType)}, nil
		}
		return Result{Success: true, Message: fmt.Sprintf("Mined %d/%d %s", mined, count, blockType)}, nil
	})

	r.Register(Declaration{
		Name:        "craft_item",
		Description: "Crafts up to count of itemName, using a crafting table if nearby.",
		Params: map[string]Param{
			"itemName": {Type: TypeString, Required: true},
			"count":    {Type: TypeNumber, Required: true, Min: floatPtr(1), Max: floatPtr(64)},
		},
	}, func(ctx context.Context, args map[string]any) (Result, error) {
		itemName, _ := args["itemName"].(string)
		count := 1
		if v, ok := args["count"].(float64); ok {
			count = int(v)
		}
		canCraft, err := client.CanCraft(ctx, itemName, count)
		if err != nil {
			return Result{}, err
		}
		if !canCraft {
			return Result{Success: false, Error: fmt.Sprintf("missing materials to craft %s", itemName)}, nil
		}
		hasTable := tracker.HasItem("crafting_table", 1)
		if err := client.Craft(ctx, itemName, count, hasTable); err != nil {
			return Result{}, err
		}
		return Result{Success: true, Message: fmt.Sprintf("Crafted %d %s", count, itemName)}, nil
	})

	r.Register(Declaration{
		Name:        "eat_food",
		Description: "Equips and consumes the best available food item.",
		Params:      map[string]Param{},
	}, func(ctx context.Context, _ map[string]any) (Result, error) {
		if err := client.Equip(ctx, "food", "hand"); err != nil {
			return Result{}, err
		}
		if err := client.Consume(ctx); err != nil {
			return Result{}, err
		}
		return Result{Success: true, Message: "Ate food"}, nil
	})
}
