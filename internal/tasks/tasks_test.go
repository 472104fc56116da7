package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(t *testing.T) *Graph {
	t.Helper()
	goal := Goal{ID: "g1", Type: GoalMain, Description: "get diamonds", Priority: 1, Status: StatusPending}
	taskList := []Task{
		{ID: "T1", GoalID: "g1", Description: "mine stone", Priority: 1},
		{ID: "T2", GoalID: "g1", Description: "craft furnace", Priority: 1, Dependencies: []string{"T1"}},
		{ID: "T3", GoalID: "g1", Description: "smelt iron", Priority: 1, Dependencies: []string{"T2"}},
	}
	g, err := NewGraph(goal, taskList)
	require.NoError(t, err)
	return g
}

// TestTaskDAGScenario is spec.md §8 scenario 5.
func TestTaskDAGScenario(t *testing.T) {
	g := buildChain(t)

	next := g.GetNextExecutableTask()
	require.NotNil(t, next)
	assert.Equal(t, "T1", next.ID)

	require.NoError(t, g.CompleteTask("T1", time.Unix(0, 0)))
	next = g.GetNextExecutableTask()
	require.NotNil(t, next)
	assert.Equal(t, "T2", next.ID)

	require.NoError(t, g.CompleteTask("T2", time.Unix(0, 0)))
	assert.Equal(t, 66, g.GetProgress())

	next = g.GetNextExecutableTask()
	require.NotNil(t, next)
	assert.Equal(t, "T3", next.ID)

	require.NoError(t, g.CompleteTask("T3", time.Unix(0, 0)))
	assert.Equal(t, 100, g.GetProgress())
}

func TestUnknownDependencyRejectedAtConstruction(t *testing.T) {
	goal := Goal{ID: "g1"}
	_, err := NewGraph(goal, []Task{
		{ID: "T1", GoalID: "g1", Dependencies: []string{"does-not-exist"}},
	})
	assert.Error(t, err)
}

// TestCompletedAtInvariant validates I6.
func TestCompletedAtInvariant(t *testing.T) {
	g := buildChain(t)
	require.NoError(t, g.CompleteTask("T1", time.Unix(100, 0)))
	completed, _ := g.Task("T1")
	assert.NotNil(t, completed.CompletedAt)

	require.NoError(t, g.FailTask("T1", "boom"))
	failed, _ := g.Task("T1")
	assert.Nil(t, failed.CompletedAt)
	assert.Equal(t, "boom", failed.Error)

	pending, _ := g.Task("T2")
	assert.Nil(t, pending.CompletedAt)
}

func TestNoExecutableTaskWhenAllBlocked(t *testing.T) {
	g := buildChain(t)
	assert.Nil(t, func() *Task {
		g2, _ := NewGraph(Goal{ID: "g2"}, []Task{
			{ID: "A", GoalID: "g2", Dependencies: []string{"B"}},
			{ID: "B", GoalID: "g2", Dependencies: []string{"A"}},
		})
		return g2.GetNextExecutableTask()
	}())
	_ = g
}

func TestGetExecutableGroupParallelTasks(t *testing.T) {
	goal := Goal{ID: "g1"}
	taskList := []Task{
		{ID: "A", GoalID: "g1", Priority: 2},
		{ID: "B", GoalID: "g1", Priority: 1},
		{ID: "C", GoalID: "g1", Priority: 3, Dependencies: []string{"A"}},
	}
	g, err := NewGraph(goal, taskList)
	require.NoError(t, err)

	group := g.GetExecutableGroup()
	require.Len(t, group, 2)
	assert.Equal(t, "B", group[0].ID) // priority 1 sorts first
	assert.Equal(t, "A", group[1].ID)
}

func TestNewGraphAssignsIDsWhenBlank(t *testing.T) {
	goal := Goal{Description: "get diamonds"}
	taskList := []Task{
		{GoalID: "placeholder", Description: "mine stone"},
	}
	g, err := NewGraph(goal, taskList)
	require.NoError(t, err)

	assert.NotEmpty(t, g.goal.ID)
	next := g.GetNextExecutableTask()
	require.NotNil(t, next)
	assert.NotEmpty(t, next.ID)
}
