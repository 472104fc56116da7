// Package agentloop implements C7, the Decision Cycle: the seven-step
// Observe -> Assess -> Plan -> Decide -> Reflect -> Persist -> Reschedule
// loop that ties every other component together into one running agent.
package agentloop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/voxelmind/agentcore/internal/agenterrors"
	"github.com/voxelmind/agentcore/internal/bridge"
	"github.com/voxelmind/agentcore/internal/eventbus"
	"github.com/voxelmind/agentcore/internal/gameclient"
	"github.com/voxelmind/agentcore/internal/inventory"
	"github.com/voxelmind/agentcore/internal/memory"
	"github.com/voxelmind/agentcore/internal/model"
	"github.com/voxelmind/agentcore/internal/perception"
	"github.com/voxelmind/agentcore/internal/persistence"
	"github.com/voxelmind/agentcore/internal/state"
	"github.com/voxelmind/agentcore/internal/strategy"
	"github.com/voxelmind/agentcore/internal/tasks"
	"github.com/voxelmind/agentcore/internal/tools"
)

// quiescenceDelay separates two successful cycles; errorDelay separates a
// cycle that failed from the next attempt, per spec.md §5.
const (
	quiescenceDelay = 2 * time.Second
	errorDelay      = 5 * time.Second
)

// LLMOptions configures the model request each cycle builds for the bridge.
type LLMOptions struct {
	Model             string
	Temperature       float32
	TopP              float32
	MaxTokens         int
	RequestsPerSecond float64 // 0 disables rate limiting
}

// Options bundles every collaborator the Decision Cycle needs. All fields
// are required except Tasks, Bus, Logger (nil means slog.Default()), and
// LLM.RequestsPerSecond.
type Options struct {
	Client      gameclient.Client
	Perceiver   *perception.Perceiver
	Inventory   *inventory.Tracker
	Memory      *memory.Store
	Decider     strategy.Decider
	State       *state.Machine
	Bridge      *bridge.Bridge
	Tools       *tools.Registry
	Persistence persistence.Port
	Tasks       *tasks.Graph // nil until a goal is decomposed
	Bus         eventbus.Bus // nil disables event publication
	LLM         LLMOptions
	Logger      *slog.Logger
}

// Loop drives the Decision Cycle on a timer. Zero value is not usable; use New.
type Loop struct {
	opts   Options
	logger *slog.Logger
	limiter *rate.Limiter

	mu          sync.Mutex
	running     bool
	isProcessing bool
	cancel      context.CancelFunc
	done        chan struct{}

	// tasksMu guards swapping taskGraph after decomposition; the field
	// itself is read far more often than written.
	tasksMu sync.RWMutex
	taskGraph *tasks.Graph
}

// New constructs a Loop from its collaborators.
func New(opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if opts.LLM.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.LLM.RequestsPerSecond), 1)
	}
	return &Loop{opts: opts, logger: logger, limiter: limiter, taskGraph: opts.Tasks}
}

// Start begins running cycles on a timer until Stop is called or ctx is
// canceled. Calling Start while already running logs a warning and returns
// without starting a second loop.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		l.logger.Warn("agent loop already running; ignoring duplicate Start")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.running = true
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	l.opts.Perceiver.StartObserving(runCtx)

	go l.run(runCtx, done)
}

// Stop cooperatively halts the loop: it stops accepting new cycles, waits
// for any in-flight cycle to finish, halts the perceiver's scan timer, and
// returns the state machine to idle. Calling Stop when not running is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	cancel()
	<-done

	l.opts.Perceiver.StopObserving()

	if err := l.opts.State.Transition(state.Idle, "stop"); err != nil {
		l.logger.Warn("failed to return to idle on stop", "error", err)
	}

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

// Running reports whether the loop is currently active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		delay := l.runOneCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// runOneCycle executes Observe/Assess/Plan/Decide/Reflect/Persist once,
// guarded so at most one cycle is ever in flight, and returns how long to
// wait before the next cycle.
func (l *Loop) runOneCycle(ctx context.Context) time.Duration {
	l.mu.Lock()
	if l.isProcessing {
		l.mu.Unlock()
		return quiescenceDelay
	}
	l.isProcessing = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.isProcessing = false
		l.mu.Unlock()
	}()

	l.publish(ctx, eventbus.CycleStarted, nil)

	if err := l.cycle(ctx); err != nil {
		l.logger.Error("decision cycle failed", "error", err)
		if terr := l.opts.State.TransitionToError(err.Error()); terr != nil {
			l.logger.Error("failed to transition to error state", "error", terr)
		}
		l.publish(ctx, eventbus.CycleCompleted, map[string]any{"error": err.Error()})
		return errorDelay
	}

	l.publish(ctx, eventbus.CycleCompleted, map[string]any{"error": nil})
	return quiescenceDelay
}

// cycle runs the seven named steps in order, stopping at the first failure.
func (l *Loop) cycle(ctx context.Context) error {
	snapshot, err := l.observe(ctx)
	if err != nil {
		return agenterrors.New(agenterrors.DecisionCycleError, "observe", err)
	}

	decision, readiness, vitals := l.assess(snapshot)

	if err := l.plan(ctx, snapshot, decision); err != nil {
		return agenterrors.New(agenterrors.DecisionCycleError, "plan", err)
	}

	exchange, err := l.decide(ctx, decision, readiness, vitals)
	if err != nil {
		return agenterrors.New(agenterrors.DecisionCycleError, "decide", err)
	}

	l.reflect(ctx, exchange)

	if err := l.persist(ctx, snapshot); err != nil {
		return agenterrors.New(agenterrors.DecisionCycleError, "persist", err)
	}

	return nil
}

// observe refreshes the World Perceiver snapshot and mirrors it into the
// Memory Store's single-producer world state slot.
func (l *Loop) observe(ctx context.Context) (perception.Snapshot, error) {
	snapshot, err := l.opts.Perceiver.Observe(ctx)
	if err != nil {
		return perception.Snapshot{}, err
	}

	l.opts.Memory.AddWorldState(memory.WorldSummary{
		Position:  [3]float64{snapshot.Position.X, snapshot.Position.Y, snapshot.Position.Z},
		Health:    snapshot.Health,
		Food:      snapshot.Food,
		Dimension: snapshot.Dimension,
	})

	for _, d := range snapshot.Dangers {
		l.publish(ctx, eventbus.DangerDetected, d)
	}

	return snapshot, nil
}

// assess asks the strategy Decider for the current phase, priority, and
// readiness given the latest inventory and vitals.
func (l *Loop) assess(snapshot perception.Snapshot) (strategy.Decision, strategy.Readiness, strategy.Vitals) {
	vitals := strategy.Vitals{Health: snapshot.Health, Food: snapshot.Food}
	decision, readiness := l.opts.Decider.Decide(l.opts.Inventory, vitals)
	return decision, readiness, vitals
}

// plan surfaces the current task (if a goal has been decomposed into a
// Graph) and the strategic decision as active goals in the Memory Store's
// context assembly, and transitions state to planning (spec step 3). Reflect
// (step 5) is responsible for moving into and back out of the matching
// activity state once the exchange's tools have actually executed.
func (l *Loop) plan(ctx context.Context, snapshot perception.Snapshot, decision strategy.Decision) error {
	goals := []memory.GoalSummary{{Description: decision.Action, Status: persistence.GoalInProgress}}

	l.tasksMu.RLock()
	graph := l.taskGraph
	l.tasksMu.RUnlock()
	if graph != nil {
		if next := graph.GetNextExecutableTask(); next != nil {
			goals = append(goals, memory.GoalSummary{Description: next.Description, Status: persistence.GoalStatus(next.Status)})
		}
	}
	l.opts.Memory.SetGoals(goals)

	before := l.opts.State.CurrentState()
	if err := l.opts.State.Transition(state.Planning, decision.Rationale); err != nil {
		return err
	}
	l.publish(ctx, eventbus.StateTransitioned, map[string]any{"from": before, "to": l.opts.State.CurrentState()})
	return nil
}

// decide sends the assembled context plus the situation summary to the LLM
// Bridge, letting the model request tool calls as needed.
func (l *Loop) decide(ctx context.Context, decision strategy.Decision, readiness strategy.Readiness, vitals strategy.Vitals) (bridge.Exchange, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return bridge.Exchange{}, err
		}
	}

	progress := 0
	l.tasksMu.RLock()
	if l.taskGraph != nil {
		progress = l.taskGraph.GetProgress()
	}
	l.tasksMu.RUnlock()

	situation := strategy.FormatSituation(decision, readiness, progress)
	l.opts.Memory.AddMessage(memory.Message{Role: memory.RoleUser, Content: situation})

	messages := toModelMessages(l.opts.Memory.BuildContext(memory.ContextOptions{IncludeVitals: true, IncludeGoals: true}))

	req := &model.Request{
		Model:       l.opts.LLM.Model,
		Messages:    messages,
		Temperature: l.opts.LLM.Temperature,
		TopP:        l.opts.LLM.TopP,
		MaxTokens:   l.opts.LLM.MaxTokens,
		Tools:       toolDefinitions(l.opts.Tools),
	}

	exchange, err := l.opts.Bridge.ChatWithTools(ctx, req)
	if err != nil {
		return bridge.Exchange{}, err
	}

	for range exchange.ToolCalls {
		l.publish(ctx, eventbus.ToolResolved, nil)
	}

	return exchange, nil
}

// reflect folds the exchange's content and token usage back into the
// Memory Store so the next cycle's context includes the assistant's reply,
// then implements spec step 5: for the last executed tool (if any),
// transition to the matching activity state and back to idle; if none,
// transition straight back to idle. Transition failures are logged, not
// fatal — reflect must always leave the cycle able to continue rather than
// wedge into error over a state-machine hiccup.
func (l *Loop) reflect(ctx context.Context, exchange bridge.Exchange) {
	if exchange.Content != "" {
		l.opts.Memory.AddMessage(memory.Message{Role: memory.RoleAssistant, Content: exchange.Content})
	}
	l.opts.Memory.SetTokenUsage(memory.TokenUsage{
		Prompt:     exchange.Usage.PromptTokens,
		Completion: exchange.Usage.CompletionTokens,
		Total:      exchange.Usage.TotalTokens,
	})

	var activity state.BotState
	var matched bool
	if n := len(exchange.ToolCalls); n > 0 {
		activity, matched = stateForTool(exchange.ToolCalls[n-1].Name)
	}

	if matched {
		l.transitionLogged(ctx, activity, "reflect: last executed tool")
	}
	l.transitionLogged(ctx, state.Idle, "reflect: cycle complete")
}

// transitionLogged attempts a state transition, logging (not returning) any
// failure so a legality hiccup in reflect never fails the whole cycle.
func (l *Loop) transitionLogged(ctx context.Context, to state.BotState, reason string) {
	before := l.opts.State.CurrentState()
	if err := l.opts.State.Transition(to, reason); err != nil {
		l.logger.Warn("reflect transition failed", "from", before, "to", to, "error", err)
		return
	}
	if l.opts.State.CurrentState() != before {
		l.publish(ctx, eventbus.StateTransitioned, map[string]any{"from": before, "to": l.opts.State.CurrentState()})
	}
}

// persist flushes the in-memory conversation and a world-state snapshot row
// to the Persistence Port.
func (l *Loop) persist(ctx context.Context, snapshot perception.Snapshot) error {
	if err := l.opts.Memory.SaveToDatabase(ctx); err != nil {
		return agenterrors.New(agenterrors.StorageError, "save messages", err)
	}
	if _, err := l.opts.Persistence.InsertWorldState(ctx,
		snapshot.Position.X, snapshot.Position.Y, snapshot.Position.Z,
		snapshot.Health, snapshot.Food, snapshot.Dimension); err != nil {
		return agenterrors.New(agenterrors.StorageError, "save world state", err)
	}
	return nil
}

// SetTaskGraph swaps in a freshly decomposed goal's task graph. Safe to call
// from outside the running loop (e.g. after a new top-level goal arrives).
func (l *Loop) SetTaskGraph(g *tasks.Graph) {
	l.tasksMu.Lock()
	l.taskGraph = g
	l.tasksMu.Unlock()
}

func (l *Loop) publish(ctx context.Context, t eventbus.EventType, payload any) {
	if l.opts.Bus == nil {
		return
	}
	if err := l.opts.Bus.Publish(ctx, eventbus.Event{Type: t, Timestamp: time.Now(), Payload: payload}); err != nil {
		l.logger.Warn("event bus publish failed", "type", t, "error", err)
	}
}

// stateForTool maps a canonical tool name (internal/tools/catalog.go) onto
// the activity BotState it represents, per spec.md §4.7 step 5. Query tools
// (get_position, get_health, ...) have no matching activity state.
func stateForTool(name string) (state.BotState, bool) {
	switch name {
	case "mine_block":
		return state.Mining, true
	case "craft_item":
		return state.Crafting, true
	case "goto_location":
		return state.Navigating, true
	case "eat_food":
		return state.Eating, true
	default:
		return "", false
	}
}

func toModelMessages(msgs []memory.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, model.Message{
			Role:  model.ConversationRole(m.Role),
			Parts: []model.Part{model.TextPart{Text: m.Content}},
		})
	}
	return out
}

func toolDefinitions(registry *tools.Registry) []model.ToolDefinition {
	decls := registry.Declarations()
	defs := make([]model.ToolDefinition, 0, len(decls))
	for _, d := range decls {
		defs = append(defs, model.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.ToSchemaDocument(),
		})
	}
	return defs
}
