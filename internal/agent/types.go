package agent

import (
	"errors"

	"github.com/animus-coder/codesmith/internal/llm"
)

// ErrMaxSteps is returned when the loop ends without a final answer.
var ErrMaxSteps = errors.New("agent: reached max steps")

// Step is one reasoning iteration. Exactly one of Action or Answer is set.
type Step struct {
	Index       int    `json:"index"`
	Thought     string `json:"thought,omitempty"`
	Action      string `json:"action,omitempty"`
	ActionInput string `json:"action_input,omitempty"`
	Observation string `json:"observation,omitempty"`
	Answer      string `json:"answer,omitempty"`
}

// StepObserver receives every step as it completes.
type StepObserver func(Step)

// Response is the final answer plus the steps that produced it.
type Response struct {
	Answer string
	Steps  []Step
	Route  llm.ModelRoute
}
