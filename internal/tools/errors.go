package tools

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a violated precondition detected before any external call.
type ConfigurationError struct {
	Op     string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Op == "" {
		return e.Reason
	}
	return e.Op + ": " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Configuration builds a ConfigurationError.
func Configuration(op, format string, args ...interface{}) error {
	return &ConfigurationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Tool build stages.
const (
	StageParse = "parse"
	StageIndex = "index"
)

// ToolBuildError reports a parsing or indexing failure while constructing a tool.
type ToolBuildError struct {
	Tool  string
	Stage string
	Cause error
}

func (e *ToolBuildError) Error() string {
	return fmt.Sprintf("build tool %q: %s: %v", e.Tool, e.Stage, e.Cause)
}

func (e *ToolBuildError) Unwrap() error {
	return e.Cause
}
