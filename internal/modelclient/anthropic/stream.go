package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	sse "github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/voxelmind/agentcore/internal/model"
)

// ssestream narrows the generic Anthropic SSE stream type to the single
// event union this adapter consumes, so MessagesClient can expose it without
// leaking a generic signature into the interface.
type ssestream struct {
	s *sse.Stream[sdk.MessageStreamEventUnion]
}

// streamer adapts an Anthropic Messages streaming response to model.Streamer.
// It runs a single goroutine reading SSE events and converts each one into
// zero or more model.Chunks delivered over a buffered channel.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	raw    *ssestream

	chunks chan model.Chunk

	mu       sync.Mutex
	finalErr error
	errSet   bool
}

func newStreamer(ctx context.Context, raw *ssestream) model.Streamer {
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

	p := newChunkProcessor(s.emit)
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
			return
		}
		// Malformed or unrecognized events are dropped by the processor; a
		// handling error here means the stream itself is unusable.
		if err := p.handle(s.raw.s.Current()); err != nil {
			s.setErr(err)
			return
		}
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

// chunkProcessor converts Anthropic SSE events into model.Chunks. One tool
// use block is buffered at a time per content-block index until its
// ContentBlockStop event, since Anthropic streams tool input as successive
// partial-JSON deltas rather than one shot.
type chunkProcessor struct {
	emit func(model.Chunk) error

	toolBlocks map[int]*toolBuffer
	stopReason string
}

func newChunkProcessor(emit func(model.Chunk) error) *chunkProcessor {
	return &chunkProcessor{emit: emit, toolBlocks: make(map[int]*toolBuffer)}
}

func (p *chunkProcessor) handle(event sdk.MessageStreamEventUnion) error {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		p.toolBlocks = make(map[int]*toolBuffer)
		p.stopReason = ""
		return nil

	case sdk.ContentBlockStartEvent:
		idx := int(ev.Index)
		if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			if toolUse.ID == "" || toolUse.Name == "" {
				return nil
			}
			p.toolBlocks[idx] = &toolBuffer{id: toolUse.ID, name: toolUse.Name}
		}
		return nil

	case sdk.ContentBlockDeltaEvent:
		idx := int(ev.Index)
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil
			}
			return p.emit(model.Chunk{Type: model.ChunkText, TextDelta: delta.Text})
		case sdk.InputJSONDelta:
			if delta.PartialJSON == "" {
				return nil
			}
			if tb := p.toolBlocks[idx]; tb != nil {
				tb.fragments = append(tb.fragments, delta.PartialJSON)
			}
			return nil
		default:
			return nil
		}

	case sdk.ContentBlockStopEvent:
		idx := int(ev.Index)
		tb, ok := p.toolBlocks[idx]
		if !ok {
			return nil
		}
		delete(p.toolBlocks, idx)
		call := model.ToolCall{ID: tb.id, Name: tb.name, Payload: decodeToolPayload(tb.fragments)}
		return p.emit(model.Chunk{Type: model.ChunkToolCall, ToolCall: &call})

	case sdk.MessageDeltaEvent:
		p.stopReason = string(ev.Delta.StopReason)
		usage := model.TokenUsage{
			PromptTokens:     int(ev.Usage.InputTokens),
			CompletionTokens: int(ev.Usage.OutputTokens),
			TotalTokens:      int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
		}
		return p.emit(model.Chunk{Type: model.ChunkUsage, Usage: &usage})

	case sdk.MessageStopEvent:
		return p.emit(model.Chunk{Type: model.ChunkStop, StopReason: p.stopReason})

	default:
		return nil
	}
}

type toolBuffer struct {
	id        string
	name      string
	fragments []string
}

func decodeToolPayload(fragments []string) json.RawMessage {
	joined := strings.TrimSpace(strings.Join(fragments, ""))
	if joined == "" {
		joined = "{}"
	}
	return json.RawMessage(joined)
}
