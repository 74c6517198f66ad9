package harness

import "github.com/roach88/hdrreg/internal/header"

// Outcomes recorded for each step.
const (
	OutcomeOK           = "ok"
	OutcomeFound        = "found"
	OutcomeNotFound     = "not_found"
	OutcomeUnchanged    = "unchanged"
	OutcomeOutOfMemory  = "out_of_memory"
	OutcomeInvalidRange = "invalid_range"
	OutcomeReleased     = "released"
	OutcomeDeleted      = "deleted"
	OutcomeClosed       = "closed"

	// OutcomeViolation marks a step that broke the registry contract while
	// the registry ran in debug mode.
	OutcomeViolation = "violation"
)

// TraceEvent is one executed operation as observed by the harness.
// Seq is a per-run counter starting at 1, so traces are reproducible.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Op        string `json:"op"`
	Node      string `json:"node,omitempty"`
	SuiteID   int    `json:"suite_id,omitempty"`
	StoreName string `json:"store_name,omitempty"`
	LookupID  int64  `json:"lookup_id,omitempty"`
	Outcome   string `json:"outcome"`
	Version   int64  `json:"version"`
	RefCount  int    `json:"ref_count"`
	Size      int    `json:"size"`
	Digest    string `json:"digest,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// RunID is the journal run id, empty when no journal was used.
	RunID string `json:"run_id,omitempty"`

	// Trace contains every operation in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expect and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Final is the registry state after the last step.
	Final header.Stats `json:"final"`

	// Headers lists the live headers after the last step.
	Headers []header.Info `json:"headers"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Headers: []header.Info{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
