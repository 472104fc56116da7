// Package bridge implements the LLM Bridge half of C7: streaming chat with
// inline tool execution. It interleaves reading a model byte stream with
// executing tool handlers locally, per spec.md's producer/consumer channel
// design: a producer goroutine reads the stream and emits text deltas and
// tool invocations onto a channel; the bridge itself is the sole consumer,
// accumulating text and awaiting tool results synchronously.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/voxelmind/agentcore/internal/model"
	"github.com/voxelmind/agentcore/internal/policy"
	"github.com/voxelmind/agentcore/internal/telemetry"
	"github.com/voxelmind/agentcore/internal/tools"
)

// Exchange is the result of one chatWithTools call: the final accumulated
// content and the totally-ordered list of tool calls resolved during the
// exchange, in stream arrival order.
type Exchange struct {
	Content   string
	ToolCalls []ExecutedToolCall
	Usage     model.TokenUsage
}

// ExecutedToolCall pairs a model-requested tool call with its result.
type ExecutedToolCall struct {
	Name      string
	Arguments map[string]any
	Result    tools.Result
}

// Options configures a Bridge.
type Options struct {
	// MaxToolIterations bounds the model<->tool ping-pong within a single
	// exchange (spec.md's open question: resolved here as per-exchange).
	MaxToolIterations int

	// RunPolicy additionally caps consecutive tool failures and wall-clock
	// time for the exchange. Zero value disables those two caps; MaxToolCalls
	// here, if set, is enforced alongside MaxToolIterations (whichever is
	// reached first wins).
	RunPolicy policy.RunPolicy

	// Tracer wraps the exchange and each tool call in a span. Defaults to a
	// no-op tracer when unset.
	Tracer telemetry.Tracer
}

// DefaultOptions returns sane defaults.
func DefaultOptions() Options {
	return Options{MaxToolIterations: 8, RunPolicy: policy.DefaultRunPolicy(), Tracer: telemetry.NewNoopTracer()}
}

// Bridge streams chat completions from a model.Client, executing any tool
// calls the model requests against a tools.Dispatcher before continuing
// the exchange.
type Bridge struct {
	client     model.Client
	dispatcher *tools.Dispatcher
	opts       Options
}

// New constructs a Bridge.
func New(client model.Client, dispatcher *tools.Dispatcher, opts Options) *Bridge {
	if opts.MaxToolIterations <= 0 {
		opts.MaxToolIterations = 8
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.NewNoopTracer()
	}
	return &Bridge{client: client, dispatcher: dispatcher, opts: opts}
}

// Chat performs a single non-streaming request with no tool execution.
func (b *Bridge) Chat(ctx context.Context, req *model.Request) (*model.Response, error) {
	return b.client.Complete(ctx, req)
}

// TextFragment is one token-level delta from StreamChat. The final fragment
// received on the channel always carries a non-nil Err — io.EOF on a normal
// stop, anything else on a stream failure — and the channel is closed
// immediately after.
type TextFragment struct {
	Text string
	Err  error
}

// StreamChat performs spec.md's second bridge operation: token-level
// streaming with no tool execution. Unlike ChatWithTools it does not
// interpret ChunkToolCall events; a model that requests tools on this path
// simply has those requests ignored, since there is no dispatcher in play.
func (b *Bridge) StreamChat(ctx context.Context, req *model.Request) (<-chan TextFragment, error) {
	streamer, err := b.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan TextFragment, 16)
	go func() {
		defer streamer.Close()
		defer close(out)
		for {
			chunk, err := streamer.Recv()
			if err != nil {
				out <- TextFragment{Err: err}
				return
			}
			if chunk.Type == model.ChunkText && chunk.TextDelta != "" {
				out <- TextFragment{Text: chunk.TextDelta}
			}
		}
	}()
	return out, nil
}

// streamEvent is what the producer goroutine emits onto its channel.
type streamEvent struct {
	chunk model.Chunk
	err   error
}

// ChatWithTools streams the model's response, executing each requested tool
// call inline against the Dispatcher and feeding results back to the model
// as additional tool-result messages, until the model stops requesting
// tools or maxToolIterations is reached.
func (b *Bridge) ChatWithTools(ctx context.Context, req *model.Request) (Exchange, error) {
	ctx, span := b.opts.Tracer.Start(ctx, "bridge.ChatWithTools")
	defer span.End()

	messages := append([]model.Message(nil), req.Messages...)
	var accumulated Exchange

	tracker := policy.NewTracker(b.opts.RunPolicy, time.Now())

	for iteration := 0; iteration < b.opts.MaxToolIterations; iteration++ {
		if stop, reason := tracker.ShouldStop(time.Now()); stop {
			err := fmt.Errorf("bridge: exchange stopped: %s", reason)
			span.RecordError(err)
			return accumulated, err
		}

		turnReq := *req
		turnReq.Messages = messages

		text, toolCalls, usage, stopReason, err := b.streamOneTurn(ctx, &turnReq)
		if err != nil {
			err = fmt.Errorf("bridge: exchange aborted: %w", err)
			span.RecordError(err)
			return Exchange{}, err
		}

		accumulated.Content += text
		accumulated.Usage = usage

		if len(toolCalls) == 0 {
			_ = stopReason
			return accumulated, nil
		}

		assistantParts := []model.Part{}
		if text != "" {
			assistantParts = append(assistantParts, model.TextPart{Text: text})
		}
		var toolResultParts []model.Part
		for _, tc := range toolCalls {
			assistantParts = append(assistantParts, model.ToolUsePart{ID: tc.ID, Name: tc.Name, Input: tc.Payload})

			args, decodeErr := decodeArguments(tc.Payload)
			var result tools.Result
			if decodeErr != nil {
				result = tools.Result{ToolCallID: tc.ID, Success: false, Error: fmt.Sprintf("malformed arguments: %v", decodeErr)}
			} else {
				toolCtx, toolSpan := b.opts.Tracer.Start(ctx, "bridge.tool."+tc.Name)
				result = b.dispatcher.ExecuteTool(toolCtx, tools.Call{ID: tc.ID, Name: tc.Name, Arguments: args})
				if !result.Success {
					toolSpan.SetStatus(codes.Error, result.Error)
				}
				toolSpan.End()
			}

			accumulated.ToolCalls = append(accumulated.ToolCalls, ExecutedToolCall{Name: tc.Name, Arguments: args, Result: result})
			toolResultParts = append(toolResultParts, model.ToolResultPart{
				ToolUseID: tc.ID, Content: result.Output(), IsError: !result.Success,
			})
			tracker.RecordToolCall(result.Success)
		}

		messages = append(messages, model.Message{Role: model.RoleAssistant, Parts: assistantParts})
		messages = append(messages, model.Message{Role: model.RoleUser, Parts: toolResultParts})
	}

	return accumulated, nil
}

// streamOneTurn drives one model stream to completion via the
// producer/consumer pattern: a goroutine reads Recv() and posts onto a
// buffered channel; this function is the sole consumer, accumulating text
// and tool-call fragments in stream-arrival order.
func (b *Bridge) streamOneTurn(ctx context.Context, req *model.Request) (text string, calls []model.ToolCall, usage model.TokenUsage, stopReason string, err error) {
	streamer, err := b.client.Stream(ctx, req)
	if err != nil {
		return "", nil, model.TokenUsage{}, "", err
	}
	defer streamer.Close()

	events := make(chan streamEvent, 16)
	go produce(streamer, events)

	var textBuf []byte
	var toolCalls []model.ToolCall

	for ev := range events {
		if ev.err != nil {
			if errors.Is(ev.err, io.EOF) {
				break
			}
			return "", nil, model.TokenUsage{}, "", ev.err
		}
		switch ev.chunk.Type {
		case model.ChunkText:
			textBuf = append(textBuf, ev.chunk.TextDelta...)
		case model.ChunkToolCall:
			if ev.chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *ev.chunk.ToolCall)
			}
		case model.ChunkUsage:
			if ev.chunk.Usage != nil {
				usage = *ev.chunk.Usage
			}
		case model.ChunkStop:
			stopReason = ev.chunk.StopReason
			if ev.chunk.Usage != nil {
				usage = *ev.chunk.Usage
			}
		default:
			// Unknown/malformed chunk types are dropped silently, per
			// spec.md's "malformed stream chunks are silently dropped".
		}
	}

	return string(textBuf), toolCalls, usage, stopReason, nil
}

// produce reads streamer.Recv() in a loop and posts every event (including
// the terminal error) onto events, then closes the channel.
func produce(streamer model.Streamer, events chan<- streamEvent) {
	defer close(events)
	for {
		chunk, err := streamer.Recv()
		if err != nil {
			events <- streamEvent{err: err}
			return
		}
		events <- streamEvent{chunk: chunk}
	}
}

func decodeArguments(payload json.RawMessage) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(payload, &args); err != nil {
		return nil, err
	}
	return args, nil
}
