// Package tools implements the Tool Registry & Dispatcher (C5): a
// declarative tool catalog, schema-driven argument validation, handler
// execution, and error normalization.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ParamType enumerates the declarative schema primitive types.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param describes one declared parameter.
type Param struct {
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
	Min         *float64
	Max         *float64
	Default     any
	Items       *Param // element schema when Type == TypeArray
}

// Declaration is the source of truth sent to the LLM for one tool.
type Declaration struct {
	Name        string
	Description string
	Params      map[string]Param
}

// ToSchemaDocument renders the declaration as a JSON Schema document
// (object + properties + required), the form both the LLM bridge and the
// validator consume.
func (d Declaration) ToSchemaDocument() map[string]any {
	props := make(map[string]any, len(d.Params))
	var required []string
	names := make([]string, 0, len(d.Params))
	for name := range d.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := d.Params[name]
		props[name] = paramSchema(p)
		if p.Required {
			required = append(required, name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func paramSchema(p Param) map[string]any {
	s := map[string]any{"type": string(p.Type)}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		enum := make([]any, len(p.Enum))
		for i, v := range p.Enum {
			enum[i] = v
		}
		s["enum"] = enum
	}
	if p.Min != nil {
		s["minimum"] = *p.Min
	}
	if p.Max != nil {
		s["maximum"] = *p.Max
	}
	if p.Default != nil {
		s["default"] = p.Default
	}
	if p.Type == TypeArray && p.Items != nil {
		s["items"] = paramSchema(*p.Items)
	}
	return s
}

// Call is one tool invocation requested by the model.
type Call struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Result is what executeTool/executeToolBatch returns to the caller.
type Result struct {
	ToolCallID string
	Success    bool
	Data       any
	Message    string
	Error      string
}

// Output collapses a Result to the single value sent back to the model:
// data, else message, else {success}.
func (r Result) Output() any {
	if r.Data != nil {
		return r.Data
	}
	if r.Message != "" {
		return r.Message
	}
	return map[string]any{"success": r.Success}
}

// Handler executes one tool call. Handlers never throw across the boundary
// — internal faults are caught by the dispatcher and normalized.
type Handler func(ctx context.Context, args map[string]any) (Result, error)

// Validation error kinds, per validateToolCall's contract.
type ValidationErrorKind string

const (
	MissingId   ValidationErrorKind = "missing_id"
	MissingName ValidationErrorKind = "missing_name"
	UnknownTool ValidationErrorKind = "unknown_tool"
)

// ValidationError reports why a Call failed validation.
type ValidationError struct {
	Kind    ValidationErrorKind
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type entry struct {
	decl    Declaration
	handler Handler
	schema  *jsonschema.Schema
}

// Registry maps tool name to (declaration, handler, compiled schema).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register compiles decl's schema document and binds it to handler.
// Compilation failure is a programming error and panics, matching the
// teacher's convention of failing fast on bad static tool declarations.
func (r *Registry) Register(decl Declaration, handler Handler) {
	compiler := jsonschema.NewCompiler()
	doc := decl.ToSchemaDocument()
	resourceName := "tool:" + decl.Name
	if err := compiler.AddResource(resourceName, doc); err != nil {
		panic(fmt.Sprintf("tools: invalid schema for %q: %v", decl.Name, err))
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		panic(fmt.Sprintf("tools: schema compile failed for %q: %v", decl.Name, err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[decl.Name] = &entry{decl: decl, handler: handler, schema: schema}
}

// Declarations returns every registered tool's declaration, sorted by name.
func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Declaration, 0, len(names))
	for _, name := range names {
		out = append(out, r.entries[name].decl)
	}
	return out
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Dispatcher validates and executes Calls against a Registry.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher constructs a Dispatcher. logger may be nil (defaults to
// slog.Default()).
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// ValidateToolCall checks id/name presence and that name is registered.
func (d *Dispatcher) ValidateToolCall(call Call) error {
	if call.ID == "" {
		return &ValidationError{Kind: MissingId, Message: "Tool call ID is required"}
	}
	if call.Name == "" {
		return &ValidationError{Kind: MissingName, Message: "Tool name is required"}
	}
	if _, ok := d.registry.lookup(call.Name); !ok {
		return &ValidationError{Kind: UnknownTool, Message: fmt.Sprintf("Unknown tool: %s", call.Name)}
	}
	return nil
}

// ExecuteTool validates, invokes the handler, and normalizes the outcome.
// Any panic escaping the handler is recovered and reported as a failed Result.
func (d *Dispatcher) ExecuteTool(ctx context.Context, call Call) (res Result) {
	res.ToolCallID = call.ID

	if err := d.ValidateToolCall(call); err != nil {
		res.Success = false
		res.Error = err.Error()
		return res
	}

	e, _ := d.registry.lookup(call.Name)

	if err := validateArguments(e.schema, call.Arguments); err != nil {
		res.Success = false
		res.Error = fmt.Sprintf("invalid arguments: %v", err)
		return res
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("tool handler panicked", "tool", call.Name, "recovered", rec)
			res.Success = false
			res.Error = fmt.Sprintf("%v", rec)
		}
	}()

	out, err := e.handler(ctx, call.Arguments)
	if err != nil {
		d.logger.Warn("tool handler returned error", "tool", call.Name, "error", err)
		res.Success = false
		res.Error = err.Error()
		return res
	}
	out.ToolCallID = call.ID
	return out
}

// ExecuteToolBatch processes calls sequentially, never short-circuiting on
// failure; it returns exactly len(calls) results in the same order.
func (d *Dispatcher) ExecuteToolBatch(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))
	for i, call := range calls {
		results[i] = d.ExecuteTool(ctx, call)
	}
	return results
}

func validateArguments(schema *jsonschema.Schema, args map[string]any) error {
	// jsonschema works over json-decoded any values; round-trip through
	// encoding/json so numeric/string typing matches what the compiler expects.
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	return schema.Validate(decoded)
}
