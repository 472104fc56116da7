// Package agenterrors defines the error kinds named in the agent's error
// handling design: ConfigInvalid, BotNotSpawned, StorageError, LLMError,
// ToolValidationError, ToolExecutionError, IllegalTransition, and
// DecisionCycleError. Kinds are sentinel-wrapped so callers can classify an
// error with errors.Is/errors.As without importing every producing package.
package agenterrors

import "fmt"

// Kind classifies an agent-core error for dispatch by the caller (fatal vs.
// recoverable vs. "report back to the model").
type Kind string

const (
	ConfigInvalid       Kind = "config_invalid"
	BotNotSpawned       Kind = "bot_not_spawned"
	StorageError        Kind = "storage_error"
	LLMError            Kind = "llm_error"
	ToolValidationError Kind = "tool_validation_error"
	ToolExecutionError  Kind = "tool_execution_error"
	IllegalTransition   Kind = "illegal_transition"
	DecisionCycleError  Kind = "decision_cycle_error"
)

// Error wraps an underlying cause with a classification kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
