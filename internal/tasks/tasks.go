// Package tasks implements goal decomposition into a DAG of tasks and the
// dependency resolution used to schedule them.
package tasks

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GoalType mirrors persistence.GoalType but is kept local to avoid a
// dependency cycle; the agent loop is responsible for translating between
// the two at the persistence boundary.
type GoalType string

const (
	GoalMain GoalType = "main"
	GoalSub  GoalType = "sub"
	GoalTask GoalType = "task"
)

// Status is shared between Goal and Task lifecycles.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked" // Task-only
)

// Goal is one strategic objective, optionally decomposed from a parent.
type Goal struct {
	ID          string
	Type        GoalType
	Description string
	Priority    int
	Status      Status
	ParentID    string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Task is one executable unit of work belonging to a Goal.
type Task struct {
	ID                string
	GoalID            string
	Description       string
	Action            string
	Parameters        map[string]any
	Priority          int
	Status            Status
	Dependencies      []string
	EstimatedDuration time.Duration
	CreatedAt         time.Time
	CompletedAt       *time.Time
	Error             string
}

// errUnknownDependency is returned when a task references a dependency id
// outside its own goal.
type errUnknownDependency struct {
	taskID, depID string
}

func (e *errUnknownDependency) Error() string {
	return fmt.Sprintf("task %s depends on unresolvable task %s", e.taskID, e.depID)
}

// Graph holds the tasks for a single goal and tracks completion.
type Graph struct {
	mu    sync.Mutex
	goal  Goal
	tasks map[string]*Task
	order []string // insertion order, for deterministic iteration
}

// NewGraph validates that every task's dependencies resolve within this
// goal's task set (I7) before constructing the Graph. A blank Goal.ID or
// Task.ID is assigned a fresh uuid; a task referenced as a dependency must
// still be given an explicit ID by the caller, since its generated ID
// cannot be known in advance.
func NewGraph(goal Goal, taskList []Task) (*Graph, error) {
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	for i := range taskList {
		if taskList[i].ID == "" {
			taskList[i].ID = uuid.NewString()
		}
	}

	ids := make(map[string]bool, len(taskList))
	for _, t := range taskList {
		ids[t.ID] = true
	}
	for _, t := range taskList {
		for _, dep := range t.Dependencies {
			if !ids[dep] {
				return nil, &errUnknownDependency{taskID: t.ID, depID: dep}
			}
		}
	}

	g := &Graph{goal: goal, tasks: make(map[string]*Task, len(taskList))}
	for i := range taskList {
		t := taskList[i]
		if t.Status == "" {
			t.Status = StatusPending
		}
		g.tasks[t.ID] = &t
		g.order = append(g.order, t.ID)
	}
	return g, nil
}

// isExecutable reports whether every dependency of t is completed.
func (g *Graph) isExecutable(t *Task) bool {
	if t.Status != StatusPending {
		return false
	}
	for _, dep := range t.Dependencies {
		depTask, ok := g.tasks[dep]
		if !ok || depTask.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// GetNextExecutableTask returns the highest-priority (lowest value) pending
// task whose dependencies are all completed, or nil if none is ready.
func (g *Graph) GetNextExecutableTask() *Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var best *Task
	for _, id := range g.order {
		t := g.tasks[id]
		if !g.isExecutable(t) {
			continue
		}
		if best == nil || t.Priority < best.Priority {
			best = t
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

// GetExecutableGroup returns every task ready to run in parallel right now
// (all dependencies satisfied, status pending), sorted by priority.
func (g *Graph) GetExecutableGroup() []Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []Task
	for _, id := range g.order {
		t := g.tasks[id]
		if g.isExecutable(t) {
			ready = append(ready, *t)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Priority < ready[j].Priority })
	return ready
}

// StartTask transitions a pending task to in_progress.
func (g *Graph) StartTask(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("unknown task %s", id)
	}
	t.Status = StatusInProgress
	return nil
}

// CompleteTask marks id completed and stamps CompletedAt (I6).
func (g *Graph) CompleteTask(id string, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("unknown task %s", id)
	}
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.Error = ""
	return nil
}

// FailTask marks id failed, recording reason, and clears CompletedAt (I6).
func (g *Graph) FailTask(id string, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("unknown task %s", id)
	}
	t.Status = StatusFailed
	t.CompletedAt = nil
	t.Error = reason
	return nil
}

// GetProgress returns the integer percentage of tasks completed, rounded
// down, matching spec.md's 66/100 two-of-three-then-three-of-three example.
func (g *Graph) GetProgress() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.tasks) == 0 {
		return 100
	}
	completed := 0
	for _, t := range g.tasks {
		if t.Status == StatusCompleted {
			completed++
		}
	}
	return completed * 100 / len(g.tasks)
}

// Task returns a copy of the task by id.
func (g *Graph) Task(id string) (Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Tasks returns a copy of every task, in insertion order.
func (g *Graph) Tasks() []Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.tasks[id])
	}
	return out
}
