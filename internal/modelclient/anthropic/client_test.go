package anthropic

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxelmind/agentcore/internal/model"
)

// stubMessagesClient satisfies MessagesClient without ever calling the real
// Anthropic API; prepareRequest never touches it, so both methods only need
// to exist to satisfy the interface.
type stubMessagesClient struct{}

func (stubMessagesClient) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return nil, nil
}

func (stubMessagesClient) NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream {
	return nil
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(stubMessagesClient{}, Options{DefaultModel: "claude-3-5-sonnet", MaxTokens: 1024, Temperature: 0.5})
	require.NoError(t, err)
	return c
}

func TestNewRejectsMissingClientOrModel(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "x"})
	assert.Error(t, err)

	_, err = New(stubMessagesClient{}, Options{})
	assert.Error(t, err)
}

func TestPrepareRequestAppliesDefaults(t *testing.T) {
	c := newTestClient(t)
	req := &model.Request{
		Messages: []model.Message{
			{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hello"}}},
		},
	}
	params, err := c.prepareRequest(req)
	require.NoError(t, err)
	assert.Equal(t, sdk.Model("claude-3-5-sonnet"), params.Model)
	assert.EqualValues(t, 1024, params.MaxTokens)
}

func TestPrepareRequestRejectsEmptyMessages(t *testing.T) {
	c := newTestClient(t)
	_, err := c.prepareRequest(&model.Request{})
	assert.Error(t, err)
}

func TestPrepareRequestRejectsNonPositiveMaxTokens(t *testing.T) {
	c, err := New(stubMessagesClient{}, Options{DefaultModel: "m"})
	require.NoError(t, err)
	_, err = c.prepareRequest(&model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}}},
	})
	assert.Error(t, err)
}

func TestEncodeMessagesExtractsSystemPrompt(t *testing.T) {
	msgs := []model.Message{
		{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: "be terse"}}},
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}},
	}
	conv, system, err := encodeMessages(msgs)
	require.NoError(t, err)
	assert.Equal(t, "be terse", system)
	assert.Len(t, conv, 1)
}

func TestEncodeMessagesRejectsUnsupportedRole(t *testing.T) {
	msgs := []model.Message{
		{Role: "tool", Parts: []model.Part{model.TextPart{Text: "x"}}},
	}
	_, _, err := encodeMessages(msgs)
	assert.Error(t, err)
}

func TestEncodeMessagesRejectsNoUsableMessages(t *testing.T) {
	msgs := []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: ""}}},
	}
	_, _, err := encodeMessages(msgs)
	assert.Error(t, err)
}

func TestEncodeToolsSkipsBlankNamesAndEmptyInput(t *testing.T) {
	out, err := encodeTools(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = encodeTools([]model.ToolDefinition{
		{Name: "", Description: "skip me"},
		{Name: "dig", Description: "mine a block", InputSchema: map[string]any{"type": "object"}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestEncodeToolResultMarshalsNonStringContent(t *testing.T) {
	block := encodeToolResult(model.ToolResultPart{
		ToolUseID: "call-1",
		Content:   map[string]any{"ok": true},
		IsError:   false,
	})
	data, err := json.Marshal(block)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
