// Package memory implements the bounded conversational Memory Store (C4):
// a token-budgeted message sequence, a singleton system message, the last
// world snapshot summary, active goals, and the last token usage, with
// context assembly for the LLM Bridge and round-trip persistence.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/voxelmind/agentcore/internal/persistence"
)

// Role is a message's author role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message held in memory.
type Message struct {
	Role    Role
	Content string
}

// TokenUsage tracks token counts from the most recent LLM exchange.
type TokenUsage struct {
	Prompt     int
	Completion int
	Total      int
}

// WorldSummary is the subset of a WorldSnapshot the Memory Store carries for
// context assembly; the full snapshot lives in internal/perception.
type WorldSummary struct {
	Position  [3]float64
	Health    float64
	Food      float64
	Dimension string
}

// GoalSummary is the subset of a Goal relevant to context assembly.
type GoalSummary struct {
	Description string
	Status      persistence.GoalStatus
}

// Options configures a Store.
type Options struct {
	// MaxTokens is the prompt-token threshold that triggers auto-trim.
	MaxTokens int
	// KeepMessages is how many of the most recent messages survive a trim.
	KeepMessages int
}

// Store holds the in-memory conversational state. Zero value is not usable;
// use New. Store is single-owner (the Agent Loop); it is not safe to mutate
// concurrently with BuildContext, but the embedded mutex guards against
// accidental concurrent use from tests and the perceiver's addWorldState path.
type Store struct {
	mu sync.Mutex

	maxTokens    int
	keepMessages int

	systemMessage string
	messages      []Message
	world         *WorldSummary
	goals         []GoalSummary
	usage         TokenUsage

	port persistence.Port
}

// New constructs a Store. If opts.KeepMessages is zero, trimming retains 10
// messages by default.
func New(port persistence.Port, opts Options) *Store {
	keep := opts.KeepMessages
	if keep <= 0 {
		keep = 10
	}
	return &Store{
		maxTokens:    opts.MaxTokens,
		keepMessages: keep,
		port:         port,
	}
}

// SetSystemMessage replaces the singleton system message.
func (s *Store) SetSystemMessage(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemMessage = content
}

// AddWorldState replaces the last world snapshot summary. This is the single
// writer path the Perceiver uses (spec.md §5 "single-producer operation").
func (s *Store) AddWorldState(ws WorldSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.world = &ws
}

// SetGoals replaces the set of active goals surfaced in context assembly.
func (s *Store) SetGoals(goals []GoalSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals = append([]GoalSummary(nil), goals...)
}

// SetTokenUsage records the most recent exchange's usage, used to drive
// auto-trim. Per spec.md §9 Open Questions, streaming exchanges provide no
// usage; callers should treat this as "best-effort most recent" and not rely
// on it as the sole eviction signal.
func (s *Store) SetTokenUsage(u TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = u
}

// TokenUsage returns the last recorded usage.
func (s *Store) TokenUsage() TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// AddMessage appends m to the ordered sequence, then auto-trims: if the last
// recorded prompt token usage exceeds maxTokens, the message list is
// truncated to the most recent keepMessages entries. The system message is
// never part of this list and is never trimmed.
func (s *Store) AddMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	if s.maxTokens > 0 && s.usage.Prompt > s.maxTokens && len(s.messages) > s.keepMessages {
		s.messages = s.messages[len(s.messages)-s.keepMessages:]
	}
}

// Messages returns a copy of the current in-memory message sequence, in
// chronological order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ContextOptions toggles what BuildContext appends to the synthesized system message.
type ContextOptions struct {
	IncludeVitals bool
	IncludeGoals  bool
}

const defaultSystemMessage = "You are an autonomous agent controlling a game character. Use the available tools to act on the world."

// BuildContext assembles a fresh ordered message sequence: a synthesized
// system message (stored system content, or the default, plus optional
// vitals/goals), followed by the stored messages in chronological order.
// This is what is sent to the LLM for the next exchange.
func (s *Store) BuildContext(opts ContextOptions) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	system := s.systemMessage
	if strings.TrimSpace(system) == "" {
		system = defaultSystemMessage
	}

	var b strings.Builder
	b.WriteString(system)

	if opts.IncludeVitals && s.world != nil {
		fmt.Fprintf(&b, "\n\nPosition: (%.1f, %.1f, %.1f) | Health: %.0f/20 | Food: %.0f/20 | Dimension: %s",
			s.world.Position[0], s.world.Position[1], s.world.Position[2],
			s.world.Health, s.world.Food, s.world.Dimension)
	}

	if opts.IncludeGoals && len(s.goals) > 0 {
		b.WriteString("\n\nActive goals:")
		for _, g := range s.goals {
			if g.Status != persistence.GoalPending && g.Status != persistence.GoalInProgress {
				continue
			}
			fmt.Fprintf(&b, "\n- %s (%s)", g.Description, g.Status)
		}
	}

	out := make([]Message, 0, len(s.messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: b.String()})
	out = append(out, s.messages...)
	return out
}

// SaveToDatabase appends every current in-memory message to the Persistence
// Port, in chronological order.
func (s *Store) SaveToDatabase(ctx context.Context) error {
	s.mu.Lock()
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	s.mu.Unlock()

	for _, m := range msgs {
		if _, err := s.port.InsertMessage(ctx, persistence.Role(m.Role), m.Content); err != nil {
			return err
		}
	}
	return nil
}

// LoadFromDatabase replaces the in-memory list with the n most-recent rows,
// reversed into chronological order because the port returns newest-first.
// This is the one place the "newest-first" quirk from spec.md §4.1/§9 is
// resolved; every other caller sees chronological messages.
func (s *Store) LoadFromDatabase(ctx context.Context, n int) error {
	rows, err := s.port.GetRecentMessages(ctx, n)
	if err != nil {
		return err
	}
	// rows is newest-first; reverse in place to restore chronology.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	msgs := make([]Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, Message{Role: Role(r.Role), Content: r.Content})
	}

	s.mu.Lock()
	s.messages = msgs
	s.mu.Unlock()
	return nil
}
