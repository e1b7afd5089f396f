package models

import "time"

// Severity is the impact tier of a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid returns true if the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank orders severities from info (0) to critical (4). Unknown values rank as info.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// FindingStatusObjectiveReached is the marker a worker sets when it believes
// the mission objective has been met.
const FindingStatusObjectiveReached = "objective_reached"

// Finding is a structured discovery produced by a worker.
// Findings are append-only; only Remediation may be attached later.
type Finding struct {
	// Title is a one-line summary.
	Title string `json:"title"`
	// Severity is the impact tier.
	Severity Severity `json:"severity"`
	// Description is free text detail.
	Description string `json:"description,omitempty"`
	// Remediation is a mitigation suggestion attached by the remediation pass.
	Remediation string `json:"remediation,omitempty"`
	// Timestamp is when the finding was recorded.
	Timestamp time.Time `json:"timestamp"`
	// WorkerID is the capability that produced the finding.
	WorkerID string `json:"worker_id,omitempty"`
	// SubtaskID is the subtask during which the finding was produced.
	SubtaskID int `json:"subtask_id"`
	// Status is an optional marker, e.g. FindingStatusObjectiveReached.
	Status string `json:"status,omitempty"`
}

// ObjectiveReached reports whether the finding carries the termination marker.
func (f Finding) ObjectiveReached() bool {
	return f.Status == FindingStatusObjectiveReached
}
