// Package model defines the provider-agnostic message and streaming types
// used by the LLM bridge and its provider adapters (internal/modelclient/...).
// It models messages as typed parts (text, tool use, tool result) rather than
// flattening everything to a single string, so provider adapters can
// round-trip tool-calling transcripts faithfully.
package model

import (
	"context"
	"encoding/json"
	"errors"
)

// ConversationRole is the role of a message in a conversation.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

type (
	// Part is implemented by all message content blocks.
	Part interface{ isPart() }

	// TextPart is a plain text content block.
	TextPart struct{ Text string }

	// ToolUsePart declares a tool invocation requested by the assistant.
	ToolUsePart struct {
		// ID uniquely identifies this call within the exchange.
		ID string
		// Name is the tool identifier as requested by the model.
		Name string
		// Input is the raw JSON arguments the model supplied.
		Input json.RawMessage
	}

	// ToolResultPart carries a tool result fed back to the model in a
	// subsequent user-role message.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// Message is a single chat message: an ordered sequence of parts under one role.
	Message struct {
		Role  ConversationRole
		Parts []Part
	}

	// ToolDefinition describes a tool exposed to the model.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any // JSON Schema
	}

	// ToolCall is a tool invocation requested by the model during an exchange.
	ToolCall struct {
		ID      string
		Name    string
		Payload json.RawMessage
	}

	// TokenUsage tracks token counts for a model call.
	TokenUsage struct {
		PromptTokens     int
		CompletionTokens int
		TotalTokens      int
	}

	// ResponseFormat selects how the model must shape its final output.
	ResponseFormat struct {
		// Kind is one of "text", "json_object", "json_schema".
		Kind   string
		Name   string // used when Kind == "json_schema"
		Strict bool
		Schema any
	}

	// Request captures inputs for a model invocation.
	Request struct {
		Model          string
		Messages       []Message
		Temperature    float32
		TopP           float32
		MaxTokens      int
		Tools          []ToolDefinition
		ResponseFormat ResponseFormat
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Content   string
		ToolCalls []ToolCall
		Usage     TokenUsage
		StopReason string
	}

	// Chunk is a single streaming event from the model.
	Chunk struct {
		Type       ChunkType
		TextDelta  string
		ToolCall   *ToolCall
		Usage      *TokenUsage
		StopReason string
	}

	// Streamer delivers incremental model output. Callers drain Recv until it
	// returns io.EOF (or another terminal error) then call Close.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
	}

	// Client is the provider-agnostic model client implemented by each
	// provider adapter (anthropic, openai).
	Client interface {
		Complete(ctx context.Context, req *Request) (*Response, error)
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}
)

// ChunkType enumerates streaming event kinds.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkToolCall ChunkType = "tool_call"
	ChunkUsage    ChunkType = "usage"
	ChunkStop     ChunkType = "stop"
)

// ErrStreamingUnsupported indicates the provider does not support streaming.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting. Callers must not retry in a tight loop.
var ErrRateLimited = errors.New("model: rate limited")

func (TextPart) isPart()       {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}
