package contract

import "errors"

var (
	ErrDuplicateTool   = errors.New("tool already registered")
	ErrUnknownTool     = errors.New("unknown tool")
	ErrArgValidation   = errors.New("tool arguments invalid")
	ErrToolFailure     = errors.New("tool invocation failed")
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrValidation      = errors.New("validation failed")
)
