package engine

import (
	"errors"
	"time"

	"github.com/roach88/keel/internal/ir"
)

// OutcomeStatus is the result of converging one path.
type OutcomeStatus string

const (
	StatusNoop    OutcomeStatus = "noop"
	StatusApplied OutcomeStatus = "applied"
	StatusFailed  OutcomeStatus = "failed"
)

// Actions recorded on applied outcomes.
const (
	ActionCreated          = "created"
	ActionContentChanged   = "content changed"
	ActionDirectoryCreated = "directory created"
	ActionRemoved          = "removed"
	ActionModeChanged      = "mode changed"
)

// Outcome records what happened to one managed path.
type Outcome struct {
	Resource string // Title of the declaring resource
	Path     string
	Status   OutcomeStatus
	Actions  []string
	Err      error
}

// Report is the result of one Apply.
type Report struct {
	VersionToken string
	Node         string
	Outcomes     []Outcome // Target path order
}

// Status summarizes the report. Failures take precedence over changes.
func (r *Report) Status() ir.RunStatus {
	changed := false
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusFailed:
			return ir.StatusFailures
		case StatusApplied:
			changed = true
		}
	}
	if changed {
		return ir.StatusChangesApplied
	}
	return ir.StatusNoChanges
}

// Changed returns the applied outcomes.
func (r *Report) Changed() []Outcome {
	return r.filter(StatusApplied)
}

// Failed returns the failed outcomes.
func (r *Report) Failed() []Outcome {
	return r.filter(StatusFailed)
}

// Outcome returns the outcome recorded for path.
func (r *Report) Outcome(path string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Path == path {
			return o, true
		}
	}
	return Outcome{}, false
}

func (r *Report) filter(status OutcomeStatus) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

// Summary converts the report into its persisted form.
func (r *Report) Summary(mode ir.RunMode, finishedAt time.Time) ir.RunReport {
	summary := ir.RunReport{
		Node:         r.Node,
		VersionToken: r.VersionToken,
		Mode:         mode,
		Status:       r.Status(),
		FinishedAt:   finishedAt.UTC().Format(time.RFC3339),
	}
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusApplied:
			for _, action := range o.Actions {
				summary.Changed = append(summary.Changed, ir.ChangedEntry{Path: o.Path, Action: action})
			}
		case StatusFailed:
			entry := ir.FailedEntry{Path: o.Path}
			var re *ResourceError
			if errors.As(o.Err, &re) {
				entry.Code = string(re.Code)
			}
			if o.Err != nil {
				entry.Reason = o.Err.Error()
			}
			summary.Failed = append(summary.Failed, entry)
		}
	}
	return summary
}
