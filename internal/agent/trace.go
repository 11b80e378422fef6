package agent

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"sedar-analyst/internal/domain"
)

// FinishAction marks the closing step of a trace whose model produced an answer.
const FinishAction = "Finish"

// Step is one thought/action/observation record.
type Step struct {
	Thought     string `json:"thought,omitempty"`
	Action      string `json:"action,omitempty"`
	ActionInput string `json:"action_input,omitempty"`
	Observation string `json:"observation,omitempty"`
}

// Trace is the ordered log of one query. Steps are only ever appended.
type Trace struct {
	ID    string `json:"id"`
	Steps []Step `json:"steps"`
}

func newTrace() *Trace {
	return &Trace{ID: uuid.NewString()}
}

func (t *Trace) append(s Step) {
	t.Steps = append(t.Steps, s)
}

// Len is the number of recorded steps.
func (t *Trace) Len() int { return len(t.Steps) }

// String renders the trace for terminals and logs.
func (t *Trace) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "trace %s\n", t.ID)
	for i, s := range t.Steps {
		fmt.Fprintf(&b, "[%d]", i+1)
		if s.Thought != "" {
			fmt.Fprintf(&b, " Thought: %s\n   ", s.Thought)
		}
		if s.Action != "" {
			fmt.Fprintf(&b, " Action: %s %s\n   ", s.Action, s.ActionInput)
		}
		fmt.Fprintf(&b, " Observation: %s\n", s.Observation)
	}
	return b.String()
}

// Outcome is how a loop reached DONE.
type Outcome string

const (
	OutcomeAnswered     Outcome = "answered"
	OutcomeExhausted    Outcome = "exhausted"
	OutcomeParseFailure Outcome = "parse_failure"
	OutcomeModelFailure Outcome = "model_failure"
)

// Result is what a finished loop hands back to the caller.
type Result struct {
	Answer  string
	Outcome Outcome
	Trace   *Trace
	// ModelCalls counts language model invocations, retries included.
	ModelCalls int
}

// Err classifies a non-answered outcome. It is nil when the model answered.
func (r Result) Err() error {
	switch r.Outcome {
	case OutcomeAnswered:
		return nil
	case OutcomeExhausted:
		return domain.E("agent", domain.ErrLoopExhausted, nil)
	case OutcomeParseFailure:
		return domain.E("agent", domain.ErrExternalService, fmt.Errorf("model output unparsable"))
	default:
		return domain.E("agent", domain.ErrExternalService, fmt.Errorf("model call failed"))
	}
}
