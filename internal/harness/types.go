package harness

// TraceEvent records one cycle of a scenario. Paths are relative to the
// target directory so traces are stable across runs.
type TraceEvent struct {
	Step    int      `json:"step"`
	Mode    string   `json:"mode"`
	Version string   `json:"version,omitempty"`
	Status  string   `json:"status,omitempty"`
	Changed []string `json:"changed,omitempty"` // "<action> <path>"
	Failed  []string `json:"failed,omitempty"`  // "<code> <path>"
	Error   string   `json:"error,omitempty"`   // Cycle error class
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every expectation and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains one event per cycle, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
