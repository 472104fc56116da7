// Package mongo wires the persistence.Port interface to MongoDB via
// go.mongodb.org/mongo-driver/v2, following the thin delegating-wrapper
// shape of the teacher's memory store adapter.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/voxelmind/agentcore/internal/agenterrors"
	"github.com/voxelmind/agentcore/internal/persistence"
)

// Options configures the Store.
type Options struct {
	URI      string
	Database string
}

// Store implements persistence.Port against three Mongo collections: goals,
// messages, world_states. A fourth, counters, backs the monotonically
// increasing message and world-state ids the port contract requires.
type Store struct {
	client      *mongo.Client
	goals       *mongo.Collection
	messages    *mongo.Collection
	worldStates *mongo.Collection
	counters    *mongo.Collection
}

var _ persistence.Port = (*Store)(nil)

// NewStore connects to MongoDB and returns a ready Store. Schema is
// initialized idempotently: Mongo collections need no DDL, but this also
// ensures the counters document exists so InsertMessage/InsertWorldState can
// $inc without a race on first use.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.URI == "" {
		return nil, agenterrors.New(agenterrors.ConfigInvalid, "mongo.NewStore", errors.New("uri is required"))
	}
	if opts.Database == "" {
		return nil, agenterrors.New(agenterrors.ConfigInvalid, "mongo.NewStore", errors.New("database is required"))
	}
	client, err := mongo.Connect(options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, agenterrors.New(agenterrors.StorageError, "mongo.Connect", err)
	}
	db := client.Database(opts.Database)
	s := &Store{
		client:      client,
		goals:       db.Collection("goals"),
		messages:    db.Collection("messages"),
		worldStates: db.Collection("world_states"),
		counters:    db.Collection("counters"),
	}
	for _, name := range []string{"messages", "world_states"} {
		_, err := s.counters.UpdateOne(ctx,
			bson.M{"_id": name},
			bson.M{"$setOnInsert": bson.M{"seq": int64(0)}},
			options.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			return nil, agenterrors.New(agenterrors.StorageError, "mongo.initCounters", err)
		}
	}
	return s, nil
}

func (s *Store) nextSeq(ctx context.Context, counter string) (int64, error) {
	res := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": counter},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

type goalDoc struct {
	ID          string                 `bson:"_id"`
	Type        persistence.GoalType   `bson:"type"`
	Description string                 `bson:"description"`
	Priority    int                    `bson:"priority"`
	Status      persistence.GoalStatus `bson:"status"`
	ParentID    string                 `bson:"parent_id,omitempty"`
	CreatedAt   int64                  `bson:"created_at"`
	CompletedAt *int64                 `bson:"completed_at,omitempty"`
}

func toGoalDoc(g persistence.Goal) goalDoc {
	return goalDoc{
		ID: g.ID, Type: g.Type, Description: g.Description, Priority: g.Priority,
		Status: g.Status, ParentID: g.ParentID, CreatedAt: g.CreatedAt, CompletedAt: g.CompletedAt,
	}
}

func (d goalDoc) toGoal() persistence.Goal {
	return persistence.Goal{
		ID: d.ID, Type: d.Type, Description: d.Description, Priority: d.Priority,
		Status: d.Status, ParentID: d.ParentID, CreatedAt: d.CreatedAt, CompletedAt: d.CompletedAt,
	}
}

// InsertGoal stores all fields; CreatedAt defaults to now if zero.
func (s *Store) InsertGoal(ctx context.Context, g persistence.Goal) (persistence.Goal, error) {
	if g.CreatedAt == 0 {
		g.CreatedAt = time.Now().UnixMilli()
	}
	doc := toGoalDoc(g)
	if _, err := s.goals.InsertOne(ctx, doc); err != nil {
		return persistence.Goal{}, agenterrors.New(agenterrors.StorageError, "InsertGoal", err)
	}
	return doc.toGoal(), nil
}

// GetGoal returns the goal or persistence.ErrNotFound.
func (s *Store) GetGoal(ctx context.Context, id string) (persistence.Goal, error) {
	var doc goalDoc
	err := s.goals.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.Goal{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Goal{}, agenterrors.New(agenterrors.StorageError, "GetGoal", err)
	}
	return doc.toGoal(), nil
}

// UpdateGoalStatus sets status; sets CompletedAt = now iff status == GoalCompleted.
func (s *Store) UpdateGoalStatus(ctx context.Context, id string, status persistence.GoalStatus) error {
	update := bson.M{"status": status}
	unset := bson.M{}
	if status == persistence.GoalCompleted {
		update["completed_at"] = time.Now().UnixMilli()
	} else {
		unset["completed_at"] = ""
	}
	set := bson.M{"$set": update}
	if len(unset) > 0 {
		set["$unset"] = unset
	}
	res, err := s.goals.UpdateOne(ctx, bson.M{"_id": id}, set)
	if err != nil {
		return agenterrors.New(agenterrors.StorageError, "UpdateGoalStatus", err)
	}
	if res.MatchedCount == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetPendingGoals returns all pending goals sorted by priority ascending.
func (s *Store) GetPendingGoals(ctx context.Context) ([]persistence.Goal, error) {
	cur, err := s.goals.Find(ctx, bson.M{"status": persistence.GoalPending},
		options.Find().SetSort(bson.D{{Key: "priority", Value: 1}}))
	if err != nil {
		return nil, agenterrors.New(agenterrors.StorageError, "GetPendingGoals", err)
	}
	defer cur.Close(ctx)
	var out []persistence.Goal
	for cur.Next(ctx) {
		var doc goalDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, agenterrors.New(agenterrors.StorageError, "GetPendingGoals", err)
		}
		out = append(out, doc.toGoal())
	}
	if err := cur.Err(); err != nil {
		return nil, agenterrors.New(agenterrors.StorageError, "GetPendingGoals", err)
	}
	return out, nil
}

type messageDoc struct {
	ID        int64            `bson:"_id"`
	Role      persistence.Role `bson:"role"`
	Content   string           `bson:"content"`
	CreatedAt int64            `bson:"created_at"`
}

// InsertMessage appends a message and returns it with a monotonically
// increasing ID assigned.
func (s *Store) InsertMessage(ctx context.Context, role persistence.Role, content string) (persistence.Message, error) {
	id, err := s.nextSeq(ctx, "messages")
	if err != nil {
		return persistence.Message{}, agenterrors.New(agenterrors.StorageError, "InsertMessage", err)
	}
	doc := messageDoc{ID: id, Role: role, Content: content, CreatedAt: time.Now().UnixMilli()}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return persistence.Message{}, agenterrors.New(agenterrors.StorageError, "InsertMessage", err)
	}
	return persistence.Message{ID: doc.ID, Role: doc.Role, Content: doc.Content, CreatedAt: doc.CreatedAt}, nil
}

// GetRecentMessages returns the last n messages newest-first. Callers must
// reverse to restore chronological order; see internal/memory.
func (s *Store) GetRecentMessages(ctx context.Context, n int) ([]persistence.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	cur, err := s.messages.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(int64(n)))
	if err != nil {
		return nil, agenterrors.New(agenterrors.StorageError, "GetRecentMessages", err)
	}
	defer cur.Close(ctx)
	var out []persistence.Message
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, agenterrors.New(agenterrors.StorageError, "GetRecentMessages", err)
		}
		out = append(out, persistence.Message{ID: doc.ID, Role: doc.Role, Content: doc.Content, CreatedAt: doc.CreatedAt})
	}
	if err := cur.Err(); err != nil {
		return nil, agenterrors.New(agenterrors.StorageError, "GetRecentMessages", err)
	}
	return out, nil
}

// ClearOldMessages retains only the keepLast highest-id messages.
func (s *Store) ClearOldMessages(ctx context.Context, keepLast int) error {
	if keepLast < 0 {
		keepLast = 0
	}
	cur, err := s.messages.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetSkip(int64(keepLast)).SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return agenterrors.New(agenterrors.StorageError, "ClearOldMessages", err)
	}
	defer cur.Close(ctx)
	var ids []int64
	for cur.Next(ctx) {
		var doc struct {
			ID int64 `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return agenterrors.New(agenterrors.StorageError, "ClearOldMessages", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return agenterrors.New(agenterrors.StorageError, "ClearOldMessages", err)
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = s.messages.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return agenterrors.New(agenterrors.StorageError, "ClearOldMessages", err)
	}
	return nil
}

type worldStateDoc struct {
	ID        int64   `bson:"_id"`
	Timestamp int64   `bson:"timestamp"`
	X         float64 `bson:"x"`
	Y         float64 `bson:"y"`
	Z         float64 `bson:"z"`
	Health    float64 `bson:"health"`
	Food      float64 `bson:"food"`
	Dimension string  `bson:"dimension"`
}

// InsertWorldState appends a timestamped row and returns its ID.
func (s *Store) InsertWorldState(ctx context.Context, x, y, z, health, food float64, dimension string) (persistence.WorldState, error) {
	id, err := s.nextSeq(ctx, "world_states")
	if err != nil {
		return persistence.WorldState{}, agenterrors.New(agenterrors.StorageError, "InsertWorldState", err)
	}
	doc := worldStateDoc{
		ID: id, Timestamp: time.Now().UnixMilli(), X: x, Y: y, Z: z,
		Health: health, Food: food, Dimension: dimension,
	}
	if _, err := s.worldStates.InsertOne(ctx, doc); err != nil {
		return persistence.WorldState{}, agenterrors.New(agenterrors.StorageError, "InsertWorldState", err)
	}
	return persistence.WorldState{
		ID: doc.ID, Timestamp: doc.Timestamp, X: doc.X, Y: doc.Y, Z: doc.Z,
		Health: doc.Health, Food: doc.Food, Dimension: doc.Dimension,
	}, nil
}

// GetLatestWorldState returns the most recent row or persistence.ErrNotFound.
func (s *Store) GetLatestWorldState(ctx context.Context) (persistence.WorldState, error) {
	var doc worldStateDoc
	err := s.worldStates.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.WorldState{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.WorldState{}, agenterrors.New(agenterrors.StorageError, "GetLatestWorldState", err)
	}
	return persistence.WorldState{
		ID: doc.ID, Timestamp: doc.Timestamp, X: doc.X, Y: doc.Y, Z: doc.Z,
		Health: doc.Health, Food: doc.Food, Dimension: doc.Dimension,
	}, nil
}

// Close disconnects the underlying Mongo client.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return agenterrors.New(agenterrors.StorageError, "Close", fmt.Errorf("mongo disconnect: %w", err))
	}
	return nil
}
