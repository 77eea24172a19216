package tools

import (
	"fmt"
	"strings"
)

// InvalidInputError reports that tool input failed schema validation. The
// tool was never invoked; callers must not retry with the same input.
type InvalidInputError struct {
	Tool   string
	Causes []string
}

func (e *InvalidInputError) Error() string {
	if len(e.Causes) == 0 {
		return fmt.Sprintf("invalid input for tool %s", e.Tool)
	}
	return fmt.Sprintf("invalid input for tool %s: %s", e.Tool, strings.Join(e.Causes, "; "))
}

// ExecutionError reports an upstream or transport failure during a tool
// call. Status carries the upstream HTTP status when one was received.
type ExecutionError struct {
	Tool   string
	Status int
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("tool %s failed with upstream status %d", e.Tool, e.Status)
	}
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
