package openai

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxelmind/agentcore/internal/model"
)

func TestPendingCallFinalArgsDefaultsToEmptyObject(t *testing.T) {
	var pc pendingCall
	assert.Equal(t, "{}", pc.finalArgs())

	pc.args.WriteString(`{"block":`)
	pc.args.WriteString(`"stone"}`)
	assert.Equal(t, `{"block":"stone"}`, pc.finalArgs())
}

func newTestStreamer(ctx context.Context) *streamer {
	cctx, cancel := context.WithCancel(ctx)
	return &streamer{ctx: cctx, cancel: cancel, chunks: make(chan model.Chunk, 8)}
}

func TestFlushCallsEmitsInAscendingIndexOrder(t *testing.T) {
	s := newTestStreamer(context.Background())
	calls := map[int64]*pendingCall{
		1: {id: "call-b", name: "craft"},
		0: {id: "call-a", name: "mine"},
	}
	calls[0].args.WriteString(`{"target":"stone"}`)
	s.flushCalls(calls, "tool_calls")
	close(s.chunks)

	var got []model.Chunk
	for c := range s.chunks {
		got = append(got, c)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "call-a", got[0].ToolCall.ID)
	assert.Equal(t, "call-b", got[1].ToolCall.ID)
	assert.Equal(t, model.ChunkStop, got[2].Type)
	assert.Equal(t, "tool_calls", got[2].StopReason)
}

func TestFlushCallsSkipsIncompleteCalls(t *testing.T) {
	s := newTestStreamer(context.Background())
	calls := map[int64]*pendingCall{
		0: {id: "", name: "mine"}, // missing id, dropped
	}
	s.flushCalls(calls, "")
	close(s.chunks)

	var got []model.Chunk
	for c := range s.chunks {
		got = append(got, c)
	}
	assert.Empty(t, got)
}

func TestStreamerRecvReturnsEOFAfterClose(t *testing.T) {
	s := newTestStreamer(context.Background())
	close(s.chunks)
	_, err := s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamerCloseCancelsContext(t *testing.T) {
	s := newTestStreamer(context.Background())
	err := s.Close()
	assert.NoError(t, err)
	assert.Error(t, s.ctx.Err())
}

func TestPendingCallArgsAccumulateFragments(t *testing.T) {
	var pc pendingCall
	fragments := []string{`{"a":`, `1,`, `"b":2}`}
	for _, f := range fragments {
		pc.args.WriteString(f)
	}
	assert.Equal(t, strings.Join(fragments, ""), pc.finalArgs())
}
