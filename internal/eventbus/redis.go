package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamPublisher mirrors events onto a Redis Stream via XADD, grounded
// on the registry package's result-stream publish pattern, adapted here to
// broadcast (rather than single-consumer wait-for-result) semantics. It
// satisfies Subscriber so it can be registered on a Bus alongside in-process
// subscribers; the in-process Bus remains the default transport.
type RedisStreamPublisher struct {
	rdb       *redis.Client
	streamKey string
	maxLen    int64
}

// RedisOptions configures a RedisStreamPublisher.
type RedisOptions struct {
	Addr      string
	StreamKey string // defaults to "agentcore:events"
	MaxLen    int64  // approximate XADD MAXLEN cap; 0 disables trimming
}

// NewRedisStreamPublisher dials Redis and returns a publisher ready to
// subscribe to a Bus.
func NewRedisStreamPublisher(opts RedisOptions) (*RedisStreamPublisher, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("eventbus: redis addr is required")
	}
	streamKey := opts.StreamKey
	if streamKey == "" {
		streamKey = "agentcore:events"
	}
	rdb := redis.NewClient(&redis.Options{Addr: opts.Addr})
	return &RedisStreamPublisher{rdb: rdb, streamKey: streamKey, maxLen: opts.MaxLen}, nil
}

// HandleEvent implements Subscriber by XADD-ing the event as a JSON-encoded
// field onto the configured stream.
func (p *RedisStreamPublisher) HandleEvent(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("eventbus: marshal payload: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.streamKey,
		Values: map[string]any{
			"type":      string(event.Type),
			"timestamp": event.Timestamp.UnixMilli(),
			"payload":   string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	return p.rdb.XAdd(ctx, args).Err()
}

// ReadFrom tails the stream starting after lastID ("0" for the beginning),
// blocking up to block for new entries. Used by out-of-process observers
// (e.g. a separate transcript viewer) rather than the agent loop itself.
func (p *RedisStreamPublisher) ReadFrom(ctx context.Context, lastID string, block time.Duration) ([]redis.XMessage, string, error) {
	res, err := p.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{p.streamKey, lastID},
		Block:   block,
		Count:   100,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, lastID, nil
	}
	if err != nil {
		return nil, lastID, err
	}
	if len(res) == 0 {
		return nil, lastID, nil
	}
	messages := res[0].Messages
	next := lastID
	if len(messages) > 0 {
		next = messages[len(messages)-1].ID
	}
	return messages, next, nil
}

// Close releases the underlying Redis client.
func (p *RedisStreamPublisher) Close() error { return p.rdb.Close() }
