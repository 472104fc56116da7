// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API. It translates agent-core requests into
// ChatCompletion calls using the official github.com/openai/openai-go SDK and
// maps responses back into the generic bridge structures in internal/model.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/voxelmind/agentcore/internal/model"
)

// ChatCompletionsClient captures the subset of the OpenAI SDK used by the
// adapter, satisfied by the SDK's Chat.Completions service.
type ChatCompletionsClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *chunkStream
}

// Options configures the OpenAI adapter.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Client implements model.Client via the OpenAI Chat Completions API.
type Client struct {
	chat   ChatCompletionsClient
	model  string
	maxTok int
	temp   float64
}

// New builds an OpenAI-backed model client from the provided options.
func New(chat ChatCompletionsClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{chat: chat, model: modelID, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(sdkChatAdapter{&oc.Chat.Completions}, Options{DefaultModel: defaultModel})
}

// Complete renders a chat completion using the configured OpenAI client.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(resp)
}

// Stream invokes Chat.Completions.NewStreaming and adapts incremental SSE
// chunks into model.Chunks.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: param.NewOpt(true)}
	stream := c.chat.NewStreaming(ctx, *params)
	return newStreamer(ctx, stream), nil
}

func (c *Client) prepareRequest(req *model.Request) (*openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = c.model
	}
	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return nil, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: messages,
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	temp := float64(req.Temperature)
	if temp <= 0 {
		temp = c.temp
	}
	if temp > 0 {
		params.Temperature = param.NewOpt(temp)
	}
	if req.TopP > 0 {
		params.TopP = param.NewOpt(float64(req.TopP))
	}
	if rf, ok := encodeResponseFormat(req.ResponseFormat); ok {
		params.ResponseFormat = rf
	}
	return &params, nil
}

func encodeMessages(msgs []model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		var text strings.Builder
		var toolUses []model.ToolUsePart
		var toolResults []model.ToolResultPart
		for _, p := range m.Parts {
			switch v := p.(type) {
			case model.TextPart:
				text.WriteString(v.Text)
			case model.ToolUsePart:
				toolUses = append(toolUses, v)
			case model.ToolResultPart:
				toolResults = append(toolResults, v)
			}
		}
		switch m.Role {
		case model.RoleSystem:
			if text.Len() > 0 {
				out = append(out, openai.SystemMessage(text.String()))
			}
		case model.RoleUser:
			for _, tr := range toolResults {
				out = append(out, openai.ToolMessage(toolResultText(tr), tr.ToolUseID))
			}
			if text.Len() > 0 {
				out = append(out, openai.UserMessage(text.String()))
			}
		case model.RoleAssistant:
			if len(toolUses) == 0 {
				if text.Len() > 0 {
					out = append(out, openai.AssistantMessage(text.String()))
				}
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(toolUses))
			for _, tu := range toolUses {
				args := string(tu.Input)
				if args == "" {
					args = "{}"
				}
				calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tu.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tu.Name,
							Arguments: args,
						},
					},
				})
			}
			asst := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if text.Len() > 0 {
				asst.Content.OfString = param.NewOpt(text.String())
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: no encodable messages")
	}
	return out, nil
}

func toolResultText(tr model.ToolResultPart) string {
	switch c := tr.Content.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		if data, err := json.Marshal(c); err == nil {
			return string(data)
		}
		return ""
	}
}

func encodeTools(defs []model.ToolDefinition) ([]openai.ChatCompletionToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var params map[string]any
		if def.InputSchema != nil {
			data, err := json.Marshal(def.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("openai: marshal tool %q schema: %w", def.Name, err)
			}
			if err := json.Unmarshal(data, &params); err != nil {
				return nil, fmt.Errorf("openai: decode tool %q schema: %w", def.Name, err)
			}
		}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        def.Name,
			Description: param.NewOpt(def.Description),
			Parameters:  params,
		}))
	}
	return out, nil
}

func encodeResponseFormat(rf model.ResponseFormat) (openai.ChatCompletionNewParamsResponseFormatUnion, bool) {
	switch rf.Kind {
	case "json_object":
		return openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &openai.ResponseFormatJSONObjectParam{}}, true
	case "json_schema":
		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   rf.Name,
					Schema: rf.Schema,
					Strict: param.NewOpt(rf.Strict),
				},
			},
		}, true
	default:
		return openai.ChatCompletionNewParamsResponseFormatUnion{}, false
	}
}

func translateResponse(resp *openai.ChatCompletion) (*model.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty response")
	}
	choice := resp.Choices[0]
	out := &model.Response{Content: choice.Message.Content, StopReason: string(choice.FinishReason)}
	for _, call := range choice.Message.ToolCalls {
		fn := call.Function
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:      call.ID,
			Name:    fn.Name,
			Payload: json.RawMessage(normalizeArguments(fn.Arguments)),
		})
	}
	out.Usage = model.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out, nil
}

func normalizeArguments(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "{}"
	}
	return raw
}

// sdkChatAdapter narrows *openai.ChatCompletionService to the
// ChatCompletionsClient seam.
type sdkChatAdapter struct {
	svc *openai.ChatCompletionService
}

func (a sdkChatAdapter) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	return a.svc.New(ctx, body, opts...)
}

func (a sdkChatAdapter) NewStreaming(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) *chunkStream {
	return &chunkStream{s: a.svc.NewStreaming(ctx, body, opts...)}
}
