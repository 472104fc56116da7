// Package state implements the bot activity state machine (C6): a fixed
// legal-transition table over BotState with bounded history, onEnter/onExit
// callbacks, and revert-on-failure semantics.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/voxelmind/agentcore/internal/agenterrors"
)

// BotState is one of the ten activity states the bot can occupy.
type BotState string

const (
	Idle       BotState = "idle"
	Planning   BotState = "planning"
	Mining     BotState = "mining"
	Crafting   BotState = "crafting"
	Navigating BotState = "navigating"
	Combat     BotState = "combat"
	Eating     BotState = "eating"
	Gathering  BotState = "gathering"
	Building   BotState = "building"
	Error      BotState = "error"
)

const maxHistory = 100

// legalTransitions is the fixed table from spec.md §4.6. error always
// accepts transitionToError regardless of this table; see Machine.TransitionToError.
var legalTransitions = map[BotState]map[BotState]bool{
	Idle:       set(Planning, Eating, Error),
	Planning:   set(Mining, Crafting, Navigating, Gathering, Combat, Eating, Idle, Error),
	Mining:     set(Idle, Navigating, Combat, Error),
	Crafting:   set(Idle, Navigating, Error),
	Navigating: set(Idle, Mining, Crafting, Gathering, Building, Combat, Error),
	Combat:     set(Idle, Navigating, Eating, Error),
	Eating:     set(Idle, Mining, Navigating, Combat, Error),
	Gathering:  set(Idle, Navigating, Mining, Error),
	Building:   set(Idle, Navigating, Error),
	Error:      set(Idle, Planning),
}

func set(states ...BotState) map[BotState]bool {
	m := make(map[BotState]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}

// Transition records one state change, from/to/timestamp and an optional
// human reason.
type Transition struct {
	From      BotState
	To        BotState
	Timestamp time.Time
	Reason    string
}

// Callback runs on entry to or exit from a state. A non-nil error aborts the
// transition and reverts the machine to its prior state.
type Callback func(s BotState) error

// Machine is the bot activity state machine. Zero value is not usable; use New.
type Machine struct {
	mu sync.Mutex

	current    BotState
	since      time.Time
	history    []Transition
	onEnter    map[BotState][]Callback
	onExit     map[BotState][]Callback
	statistics map[BotState]int
}

// New constructs a Machine starting in Idle.
func New() *Machine {
	return &Machine{
		current:    Idle,
		since:      time.Now(),
		onEnter:    make(map[BotState][]Callback),
		onExit:     make(map[BotState][]Callback),
		statistics: make(map[BotState]int),
	}
}

// OnEnter registers a callback invoked when the machine enters state s.
func (m *Machine) OnEnter(s BotState, cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnter[s] = append(m.onEnter[s], cb)
}

// OnExit registers a callback invoked when the machine leaves state s.
func (m *Machine) OnExit(s BotState, cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExit[s] = append(m.onExit[s], cb)
}

// CurrentState returns the machine's current state.
func (m *Machine) CurrentState() BotState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition attempts to move the machine to `to`. A transition to the
// current state is a no-op success. An illegal destination is rejected
// without mutating state. Callback failure reverts to the prior state.
func (m *Machine) Transition(to BotState, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to, reason, false)
}

// TransitionToError is always accepted, bypassing the legal-transition table.
func (m *Machine) TransitionToError(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(Error, reason, true)
}

func (m *Machine) transitionLocked(to BotState, reason string, force bool) error {
	from := m.current
	if to == from {
		return nil
	}
	if !force && !legalTransitions[from][to] {
		return agenterrors.New(agenterrors.IllegalTransition, "transition",
			fmt.Errorf("illegal transition %s -> %s", from, to))
	}

	for _, cb := range m.onExit[from] {
		if err := cb(from); err != nil {
			return agenterrors.New(agenterrors.IllegalTransition, "onExit", err)
		}
	}

	m.current = to
	m.since = time.Now()
	m.record(Transition{From: from, To: to, Timestamp: m.since, Reason: reason})
	m.statistics[to]++

	for _, cb := range m.onEnter[to] {
		if err := cb(to); err != nil {
			// Revert. onExit callbacks already ran; the state is restored but
			// we do not re-invoke onEnter(from) — the source state's entry
			// already happened when we first arrived there.
			m.current = from
			m.since = time.Now()
			m.record(Transition{From: to, To: from, Timestamp: m.since, Reason: "revert: " + err.Error()})
			return agenterrors.New(agenterrors.IllegalTransition, "onEnter", err)
		}
	}
	return nil
}

func (m *Machine) record(t Transition) {
	m.history = append(m.history, t)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

// Reset forces the machine back to Idle and clears history and statistics.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Idle
	m.since = time.Now()
	m.history = nil
	m.statistics = make(map[BotState]int)
}

// IsIdle reports whether the machine is currently Idle.
func (m *Machine) IsIdle() bool { return m.CurrentState() == Idle }

// IsBusy reports whether the machine is neither Idle nor Planning.
func (m *Machine) IsBusy() bool {
	s := m.CurrentState()
	return s != Idle && s != Planning
}

// IsError reports whether the machine is in the Error state.
func (m *Machine) IsError() bool { return m.CurrentState() == Error }

// TimeInCurrentState returns how long the machine has held its current state.
func (m *Machine) TimeInCurrentState() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.since)
}

// History returns a copy of the bounded transition history, oldest first.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// Statistics returns the count of transitions into each destination state.
func (m *Machine) Statistics() map[BotState]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[BotState]int, len(m.statistics))
	for k, v := range m.statistics {
		out[k] = v
	}
	return out
}
