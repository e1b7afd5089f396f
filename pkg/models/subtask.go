package models

import (
	"slices"
	"time"
)

// SubtaskStatus represents the lifecycle state of a subtask.
type SubtaskStatus string

const (
	// SubtaskStatusPending indicates the subtask has not started.
	SubtaskStatusPending SubtaskStatus = "pending"
	// SubtaskStatusRunning indicates workers are executing the subtask.
	SubtaskStatusRunning SubtaskStatus = "running"
	// SubtaskStatusDone indicates the subtask produced a combined result.
	SubtaskStatusDone SubtaskStatus = "done"
	// SubtaskStatusError indicates the subtask could not be executed.
	SubtaskStatusError SubtaskStatus = "error"
)

// Valid returns true if the status is a known value.
func (s SubtaskStatus) Valid() bool {
	switch s {
	case SubtaskStatusPending, SubtaskStatusRunning, SubtaskStatusDone, SubtaskStatusError:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states a subtask never leaves.
func (s SubtaskStatus) IsTerminal() bool {
	return s == SubtaskStatusDone || s == SubtaskStatusError
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s SubtaskStatus) CanTransition(next SubtaskStatus) bool {
	switch s {
	case SubtaskStatusPending:
		return next == SubtaskStatusRunning || next == SubtaskStatusError
	case SubtaskStatusRunning:
		return next == SubtaskStatusDone || next == SubtaskStatusError
	default:
		return false
	}
}

// Recommended task categories. The set is open; planners may emit others.
const (
	TaskTypeResearch            = "research"
	TaskTypeReconnaissance      = "reconnaissance"
	TaskTypeAnalysis            = "analysis"
	TaskTypeCodeGeneration      = "code_generation"
	TaskTypeConfigurationReview = "configuration_review"
	TaskTypePlanning            = "planning"
	TaskTypeReportWriting       = "report_writing"
	TaskTypeGeneral             = "general"
)

// Subtask is one unit of plan work.
// The first seven fields form the persisted plan format.
type Subtask struct {
	// ID is unique within a session.
	ID int `json:"id"`
	// Title is the short description of the subtask.
	Title string `json:"title"`
	// Description provides detailed instructions for workers.
	Description string `json:"description"`
	// TaskType is the category tag used for routing.
	TaskType string `json:"task_type"`
	// RequiredTools lists capability hints suggested by the planner.
	RequiredTools []string `json:"required_tools"`
	// RequiresAuth marks subtasks that may only run for authorized targets.
	RequiresAuth bool `json:"requires_auth"`
	// DependsOn lists subtask IDs that must be done first.
	DependsOn []int `json:"depends_on"`

	// Status is the current lifecycle state.
	Status SubtaskStatus `json:"status,omitempty"`
	// Result is the combined textual output of all assigned workers.
	Result string `json:"result,omitempty"`
	// Workers lists the capability IDs the selector assigned.
	Workers []string `json:"workers,omitempty"`
	// Cycle is the mission cycle that planned this subtask.
	Cycle int `json:"cycle,omitempty"`
	// StartedAt is when the subtask entered running.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the subtask reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the subtask.
func (s Subtask) Clone() Subtask {
	c := s
	c.RequiredTools = slices.Clone(s.RequiredTools)
	c.DependsOn = slices.Clone(s.DependsOn)
	c.Workers = slices.Clone(s.Workers)
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// PlanEntry returns only the persisted plan fields of the subtask.
func (s Subtask) PlanEntry() Subtask {
	return Subtask{
		ID:            s.ID,
		Title:         s.Title,
		Description:   s.Description,
		TaskType:      s.TaskType,
		RequiredTools: slices.Clone(s.RequiredTools),
		RequiresAuth:  s.RequiresAuth,
		DependsOn:     slices.Clone(s.DependsOn),
	}
}
