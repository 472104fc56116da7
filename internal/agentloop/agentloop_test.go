package agentloop

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxelmind/agentcore/internal/bridge"
	"github.com/voxelmind/agentcore/internal/gameclient"
	"github.com/voxelmind/agentcore/internal/inventory"
	"github.com/voxelmind/agentcore/internal/memory"
	"github.com/voxelmind/agentcore/internal/model"
	"github.com/voxelmind/agentcore/internal/perception"
	"github.com/voxelmind/agentcore/internal/persistence"
	"github.com/voxelmind/agentcore/internal/state"
	"github.com/voxelmind/agentcore/internal/strategy"
	"github.com/voxelmind/agentcore/internal/tools"
)

// stillStreamer emits a single stop chunk, so the bridge never requests tools.
type stillStreamer struct{ sent bool }

func (s *stillStreamer) Recv() (model.Chunk, error) {
	if s.sent {
		return model.Chunk{}, io.EOF
	}
	s.sent = true
	return model.Chunk{Type: model.ChunkStop, StopReason: "end_turn"}, nil
}
func (s *stillStreamer) Close() error { return nil }

type stillClient struct{}

func (stillClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return &model.Response{Content: "ok"}, nil
}
func (stillClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return &stillStreamer{}, nil
}

// fakePort is a minimal in-memory persistence.Port.
type fakePort struct {
	nextMsgID   int64
	messages    []persistence.Message
	worldStates []persistence.WorldState
}

func (f *fakePort) InsertGoal(context.Context, persistence.Goal) (persistence.Goal, error) {
	return persistence.Goal{}, nil
}
func (f *fakePort) GetGoal(context.Context, string) (persistence.Goal, error) {
	return persistence.Goal{}, persistence.ErrNotFound
}
func (f *fakePort) UpdateGoalStatus(context.Context, string, persistence.GoalStatus) error {
	return nil
}
func (f *fakePort) GetPendingGoals(context.Context) ([]persistence.Goal, error) { return nil, nil }
func (f *fakePort) InsertMessage(_ context.Context, role persistence.Role, content string) (persistence.Message, error) {
	f.nextMsgID++
	m := persistence.Message{ID: f.nextMsgID, Role: role, Content: content}
	f.messages = append(f.messages, m)
	return m, nil
}
func (f *fakePort) GetRecentMessages(context.Context, int) ([]persistence.Message, error) {
	return f.messages, nil
}
func (f *fakePort) ClearOldMessages(context.Context, int) error { return nil }
func (f *fakePort) InsertWorldState(_ context.Context, x, y, z, health, food float64, dimension string) (persistence.WorldState, error) {
	ws := persistence.WorldState{X: x, Y: y, Z: z, Health: health, Food: food, Dimension: dimension}
	f.worldStates = append(f.worldStates, ws)
	return ws, nil
}
func (f *fakePort) GetLatestWorldState(context.Context) (persistence.WorldState, error) {
	if len(f.worldStates) == 0 {
		return persistence.WorldState{}, persistence.ErrNotFound
	}
	return f.worldStates[len(f.worldStates)-1], nil
}
func (f *fakePort) Close(context.Context) error { return nil }

func buildLoop(t *testing.T) (*Loop, *fakePort) {
	t.Helper()

	client := gameclient.NewMock()
	client.SetPosition(gameclient.Vec3{X: 1, Y: 2, Z: 3})
	client.SetHealth(20)
	client.SetFood(20)

	perceiver := perception.New(client, perception.DefaultPolicy(), nil)
	invTracker := inventory.New(nil)
	port := &fakePort{}
	mem := memory.New(port, memory.Options{MaxTokens: 8000, KeepMessages: 6})
	registry := tools.NewRegistry()
	tools.RegisterCanonicalTools(registry, client, invTracker)
	dispatcher := tools.NewDispatcher(registry, slog.Default())
	br := bridge.New(stillClient{}, dispatcher, bridge.DefaultOptions())

	loop := New(Options{
		Client:      client,
		Perceiver:   perceiver,
		Inventory:   invTracker,
		Memory:      mem,
		Decider:     strategy.SpeedrunDecider{},
		State:       state.New(),
		Bridge:      br,
		Tools:       registry,
		Persistence: port,
		LLM:         LLMOptions{Model: "test-model", MaxTokens: 512},
		Logger:      slog.Default(),
	})
	return loop, port
}

func TestRunOneCyclePersistsWorldStateAndMessages(t *testing.T) {
	loop, port := buildLoop(t)

	delay := loop.runOneCycle(context.Background())
	assert.Equal(t, quiescenceDelay, delay)
	assert.NotEmpty(t, port.worldStates)
	assert.NotEmpty(t, port.messages)
}

func TestIsProcessingGuardSkipsOverlappingCycle(t *testing.T) {
	loop, _ := buildLoop(t)

	loop.mu.Lock()
	loop.isProcessing = true
	loop.mu.Unlock()

	delay := loop.runOneCycle(context.Background())
	assert.Equal(t, quiescenceDelay, delay)

	loop.mu.Lock()
	stillProcessing := loop.isProcessing
	loop.mu.Unlock()
	assert.True(t, stillProcessing, "guard must leave isProcessing untouched when it skips a cycle")
}

func TestStartTwiceIsIdempotent(t *testing.T) {
	loop, _ := buildLoop(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop.Start(ctx)
	loop.Start(ctx) // must not panic or spawn a second loop
	assert.True(t, loop.Running())

	loop.Stop()
	assert.False(t, loop.Running())
}

func TestStopIsIdempotentAndCooperative(t *testing.T) {
	loop, _ := buildLoop(t)
	ctx := context.Background()

	loop.Start(ctx)
	require.True(t, loop.Running())

	loop.Stop()
	assert.False(t, loop.Running())
	loop.Stop() // no-op, must not block or panic
}

func TestLowHealthCycleTransitionsTowardsSafety(t *testing.T) {
	loop, _ := buildLoop(t)
	loop.opts.Client.(*gameclient.Mock).SetHealth(3)

	delay := loop.runOneCycle(context.Background())
	assert.Equal(t, quiescenceDelay, delay)
	// A critical-health cycle must complete normally: the model here requests
	// no tools, so reflect returns the machine to idle rather than error.
	assert.NotEqual(t, state.Error, loop.opts.State.CurrentState())
}

// eatFoodStreamer requests eat_food on its first turn and stops on the
// second, so a single cycle drives the bridge through exactly one tool call.
type eatFoodStreamer struct {
	chunks []model.Chunk
	idx    int
}

func (s *eatFoodStreamer) Recv() (model.Chunk, error) {
	if s.idx >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, nil
}
func (s *eatFoodStreamer) Close() error { return nil }

type eatFoodClient struct{ turn int }

func (c *eatFoodClient) Complete(context.Context, *model.Request) (*model.Response, error) {
	return &model.Response{Content: "ok"}, nil
}

func (c *eatFoodClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	turn := c.turn
	c.turn++
	if turn == 0 {
		args, _ := json.Marshal(map[string]any{})
		return &eatFoodStreamer{chunks: []model.Chunk{
			{Type: model.ChunkToolCall, ToolCall: &model.ToolCall{ID: "call_1", Name: "eat_food", Payload: args}},
			{Type: model.ChunkStop, StopReason: "tool_calls"},
		}}, nil
	}
	return &eatFoodStreamer{chunks: []model.Chunk{{Type: model.ChunkStop, StopReason: "end_turn"}}}, nil
}

// TestReflectTransitionsThroughActivityStateAndBackToIdle covers spec.md
// §4.7 step 5: the last executed tool's matching activity state is entered
// and then left, so the cycle always ends back at idle.
func TestReflectTransitionsThroughActivityStateAndBackToIdle(t *testing.T) {
	loop, _ := buildLoop(t)
	loop.opts.Bridge = bridge.New(&eatFoodClient{}, tools.NewDispatcher(loop.opts.Tools, slog.Default()), bridge.DefaultOptions())

	delay := loop.runOneCycle(context.Background())
	assert.Equal(t, quiescenceDelay, delay)
	assert.Equal(t, state.Idle, loop.opts.State.CurrentState())

	history := loop.opts.State.History()
	require.NotEmpty(t, history)
	var sawEating bool
	for _, tr := range history {
		if tr.To == state.Eating {
			sawEating = true
		}
	}
	assert.True(t, sawEating, "reflect must pass through the matching activity state before returning to idle")
}

func TestStopWaitsForInFlightCycleBeforeReturning(t *testing.T) {
	loop, _ := buildLoop(t)
	ctx := context.Background()
	loop.Start(ctx)

	time.Sleep(10 * time.Millisecond)
	loop.Stop()
	assert.False(t, loop.Running())
}
