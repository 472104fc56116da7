package anthropic

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voxelmind/agentcore/internal/model"
)

func TestDecodeToolPayloadDefaultsToEmptyObject(t *testing.T) {
	assert.Equal(t, "{}", string(decodeToolPayload(nil)))
	assert.Equal(t, "{}", string(decodeToolPayload([]string{"  ", ""})))
}

func TestDecodeToolPayloadJoinsFragments(t *testing.T) {
	got := decodeToolPayload([]string{`{"bl`, `ock":"stone"}`})
	assert.Equal(t, `{"block":"stone"}`, string(got))
}

func newTestStreamer(ctx context.Context) *streamer {
	cctx, cancel := context.WithCancel(ctx)
	return &streamer{ctx: cctx, cancel: cancel, chunks: make(chan model.Chunk, 8)}
}

func TestStreamerRecvReturnsEOFAfterChannelClose(t *testing.T) {
	s := newTestStreamer(context.Background())
	close(s.chunks)
	_, err := s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamerRecvReturnsFinalErr(t *testing.T) {
	s := newTestStreamer(context.Background())
	s.setErr(assert.AnError)
	close(s.chunks)
	_, err := s.Recv()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestStreamerCloseCancelsContextWithNilRaw(t *testing.T) {
	s := newTestStreamer(context.Background())
	err := s.Close()
	assert.NoError(t, err)
	assert.Error(t, s.ctx.Err())
}

func TestStreamerSetErrKeepsFirstError(t *testing.T) {
	s := newTestStreamer(context.Background())
	s.setErr(assert.AnError)
	s.setErr(nil)
	assert.ErrorIs(t, s.err(), assert.AnError)
}

