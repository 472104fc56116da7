// Package persistence defines the typed CRUD port (C1) over Goals, Messages,
// and WorldStates. Concrete backends (internal/persistence/mongo) implement
// Port; callers depend only on the interface here.
package persistence

import "context"

// Role mirrors the memory package's conversation roles so a Message can be
// stored and recalled without importing internal/memory from here.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// GoalType enumerates the three levels of a decomposed objective.
type GoalType string

const (
	GoalMain GoalType = "main"
	GoalSub  GoalType = "sub"
	GoalTask GoalType = "task"
)

// GoalStatus is the lifecycle state of a Goal.
type GoalStatus string

const (
	GoalPending    GoalStatus = "pending"
	GoalInProgress GoalStatus = "in_progress"
	GoalCompleted  GoalStatus = "completed"
	GoalFailed     GoalStatus = "failed"
)

// Goal is a durable row describing an objective at some level of the goal tree.
type Goal struct {
	ID          string
	Type        GoalType
	Description string
	Priority    int
	Status      GoalStatus
	ParentID    string
	CreatedAt   int64 // unix millis
	CompletedAt *int64
}

// Message is a durable row in the conversation log.
type Message struct {
	ID        int64
	Role      Role
	Content   string
	CreatedAt int64 // unix millis
}

// WorldState is a durable, timestamped snapshot of the bot's position and vitals.
type WorldState struct {
	ID        int64
	Timestamp int64 // unix millis
	X, Y, Z   float64
	Health    float64
	Food      float64
	Dimension string
}

// ErrNotFound is returned by GetGoal/GetLatestWorldState when no matching row exists.
var ErrNotFound = portError("not found")

type portError string

func (e portError) Error() string { return string(e) }

// Port is the typed CRUD contract every backend must satisfy. All methods
// propagate backend I/O failures wrapped as agenterrors.StorageError; there
// is no retry logic at this layer (spec.md §4.1).
type Port interface {
	// InsertGoal stores all fields; CreatedAt defaults to now if zero.
	InsertGoal(ctx context.Context, g Goal) (Goal, error)
	// GetGoal returns the goal or ErrNotFound.
	GetGoal(ctx context.Context, id string) (Goal, error)
	// UpdateGoalStatus sets status; sets CompletedAt = now iff status ==
	// GoalCompleted, clears it otherwise.
	UpdateGoalStatus(ctx context.Context, id string, status GoalStatus) error
	// GetPendingGoals returns all goals with status == GoalPending, sorted by
	// priority ascending.
	GetPendingGoals(ctx context.Context) ([]Goal, error)

	// InsertMessage appends a message and returns it with a monotonically
	// increasing ID assigned.
	InsertMessage(ctx context.Context, role Role, content string) (Message, error)
	// GetRecentMessages returns the last n messages in reverse insertion
	// order (newest first) — a documented contract every caller must reverse.
	GetRecentMessages(ctx context.Context, n int) ([]Message, error)
	// ClearOldMessages retains only the keepLast highest-id messages.
	ClearOldMessages(ctx context.Context, keepLast int) error

	// InsertWorldState appends a timestamped row and returns its ID.
	InsertWorldState(ctx context.Context, x, y, z, health, food float64, dimension string) (WorldState, error)
	// GetLatestWorldState returns the most recent row or ErrNotFound.
	GetLatestWorldState(ctx context.Context) (WorldState, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}
