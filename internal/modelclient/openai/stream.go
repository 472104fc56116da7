package openai

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	sse "github.com/openai/openai-go/packages/ssestream"

	"github.com/voxelmind/agentcore/internal/model"
)

// chunkStream narrows the generic OpenAI SSE stream type to the single chunk
// type this adapter consumes.
type chunkStream struct {
	s *sse.Stream[openai.ChatCompletionChunk]
}

// streamer adapts an OpenAI Chat Completions streaming response to
// model.Streamer. OpenAI streams tool call arguments as fragments keyed by
// a per-response tool-call index, so fragments are buffered until the chunk
// that carries a finish_reason closes the call out.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	raw    *chunkStream

	chunks chan model.Chunk

	mu       sync.Mutex
	finalErr error
	errSet   bool
}

func newStreamer(ctx context.Context, raw *chunkStream) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{ctx: cctx, cancel: cancel, raw: raw, chunks: make(chan model.Chunk, 32)}
	go s.run()
	return s
}

func (s *streamer) Recv() (model.Chunk, error) {
	select {
	case c, ok := <-s.chunks:
		if ok {
			return c, nil
		}
		if err := s.err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	case <-s.ctx.Done():
		err := s.ctx.Err()
		s.setErr(err)
		return model.Chunk{}, err
	}
}

func (s *streamer) Close() error {
	s.cancel()
	if s.raw == nil || s.raw.s == nil {
		return nil
	}
	return s.raw.s.Close()
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.raw != nil && s.raw.s != nil {
			_ = s.raw.s.Close()
		}
	}()

	calls := map[int64]*pendingCall{}
	var stopReason string

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.raw.s.Next() {
			if err := s.raw.s.Err(); err != nil {
				s.setErr(err)
			} else {
				s.setErr(nil)
			}
			s.flushCalls(calls, stopReason)
			return
		}
		chunk := s.raw.s.Current()

		if chunk.Usage.TotalTokens != 0 {
			usage := model.TokenUsage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
			if err := s.emit(model.Chunk{Type: model.ChunkUsage, Usage: &usage}); err != nil {
				s.setErr(err)
				return
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if err := s.emit(model.Chunk{Type: model.ChunkText, TextDelta: choice.Delta.Content}); err != nil {
				s.setErr(err)
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			pc, ok := calls[tc.Index]
			if !ok {
				pc = &pendingCall{}
				calls[tc.Index] = pc
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pc.args.WriteString(tc.Function.Arguments)
			}
		}
		if choice.FinishReason != "" {
			stopReason = choice.FinishReason
			if choice.FinishReason == "tool_calls" {
				s.flushCalls(calls, "")
				calls = map[int64]*pendingCall{}
			}
		}
	}
}

// flushCalls emits any buffered tool calls in ascending index order, then a
// stop chunk if stopReason is non-empty. Called once the stream is otherwise
// exhausted, or mid-stream when a choice's finish_reason is "tool_calls".
func (s *streamer) flushCalls(calls map[int64]*pendingCall, stopReason string) {
	if len(calls) > 0 {
		indexes := make([]int64, 0, len(calls))
		for idx := range calls {
			indexes = append(indexes, idx)
		}
		sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
		for _, idx := range indexes {
			pc := calls[idx]
			if pc.id == "" || pc.name == "" {
				continue
			}
			call := model.ToolCall{ID: pc.id, Name: pc.name, Payload: json.RawMessage(pc.finalArgs())}
			_ = s.emit(model.Chunk{Type: model.ChunkToolCall, ToolCall: &call})
		}
	}
	if stopReason != "" {
		_ = s.emit(model.Chunk{Type: model.ChunkStop, StopReason: stopReason})
	}
}

func (s *streamer) emit(c model.Chunk) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.chunks <- c:
		return nil
	}
}

func (s *streamer) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	s.finalErr = err
}

func (s *streamer) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalErr
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func (p *pendingCall) finalArgs() string {
	s := strings.TrimSpace(p.args.String())
	if s == "" {
		return "{}"
	}
	return s
}
