package models

// ResultStatus is the outcome of one engine run.
type ResultStatus string

const (
	// ResultStatusOK indicates the run completed and produced a report.
	ResultStatusOK ResultStatus = "ok"
	// ResultStatusBlocked indicates the restricted-target guard refused the run.
	ResultStatusBlocked ResultStatus = "blocked"
	// ResultStatusError indicates planning or reporting failed.
	ResultStatusError ResultStatus = "error"
)

// Valid returns true if the status is a known value.
func (s ResultStatus) Valid() bool {
	switch s {
	case ResultStatusOK, ResultStatusBlocked, ResultStatusError:
		return true
	default:
		return false
	}
}

// SessionResult is what a run returns to its caller.
type SessionResult struct {
	SessionID string       `json:"session_id"`
	Status    ResultStatus `json:"status"`
	// Error carries diagnostic text for blocked and error results.
	Error  string `json:"error,omitempty"`
	Report string `json:"report,omitempty"`
	// Findings holds every finding of the session, not only this cycle's.
	Findings  []Finding  `json:"findings"`
	Knowledge []string   `json:"knowledge"`
	Artifacts []Artifact `json:"artifacts"`
	// Subtasks holds the subtasks planned by this run.
	Subtasks []Subtask `json:"subtasks"`
	// Cycle is the mission cycle that produced this result.
	Cycle int `json:"cycle"`
}

// CycleFindings returns the findings produced by this result's subtasks.
func (r *SessionResult) CycleFindings() []Finding {
	ids := make(map[int]bool, len(r.Subtasks))
	for _, st := range r.Subtasks {
		ids[st.ID] = true
	}
	var out []Finding
	for _, f := range r.Findings {
		if ids[f.SubtaskID] {
			out = append(out, f)
		}
	}
	return out
}

// ObjectiveReached reports whether a finding of this cycle carries the
// termination marker.
func (r *SessionResult) ObjectiveReached() bool {
	for _, f := range r.CycleFindings() {
		if f.ObjectiveReached() {
			return true
		}
	}
	return false
}
