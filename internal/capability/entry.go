// Package capability defines the directory of capability-tagged workers and
// the worker variants that execute subtasks.
package capability

import (
	"fmt"
	"slices"
)

// ExecutionMode selects the worker variant bound to an entry.
type ExecutionMode string

const (
	// ModeInProcess runs a Go function registered under the entry id.
	ModeInProcess ExecutionMode = "in_process"
	// ModeRemoteCall posts the assignment to an HTTP endpoint.
	ModeRemoteCall ExecutionMode = "remote_call"
	// ModeInferenceFallback prompts the text-generation collaborator with a persona.
	ModeInferenceFallback ExecutionMode = "inference_fallback"
)

// Valid returns true if the mode is a known value.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeInProcess, ModeRemoteCall, ModeInferenceFallback:
		return true
	default:
		return false
	}
}

// Entry is the static descriptor of a capability. Entries are immutable once
// loaded into a Directory.
type Entry struct {
	// ID is the unique capability identifier used by rules and plan hints.
	ID string `yaml:"id" json:"id"`
	// Name is a human-readable label.
	Name string `yaml:"name" json:"name"`
	// Description explains what the capability does.
	Description string `yaml:"description" json:"description"`
	// Categories lists the task categories the capability serves.
	Categories []string `yaml:"categories" json:"categories"`
	// Mode selects the worker variant.
	Mode ExecutionMode `yaml:"mode" json:"mode"`
	// Priority ranks candidates, lower first. Must be at least 1.
	Priority int `yaml:"priority" json:"priority"`
	// Autonomy breaks priority ties, higher first.
	Autonomy int `yaml:"autonomy" json:"autonomy"`
	// Endpoint is the URL for remote_call entries.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	// Persona is the system prompt for inference_fallback entries.
	Persona string `yaml:"persona,omitempty" json:"persona,omitempty"`
}

// Serves reports whether the entry serves the given category.
func (e Entry) Serves(category string) bool {
	return slices.Contains(e.Categories, category)
}

// Validate checks the entry for structural errors.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("capability entry has no id")
	}
	if !e.Mode.Valid() {
		return fmt.Errorf("capability %s: unknown execution mode %q", e.ID, e.Mode)
	}
	if e.Priority < 1 {
		return fmt.Errorf("capability %s: priority must be >= 1, got %d", e.ID, e.Priority)
	}
	if e.Mode == ModeRemoteCall && e.Endpoint == "" {
		return fmt.Errorf("capability %s: remote_call requires an endpoint", e.ID)
	}
	return nil
}

func (e Entry) clone() Entry {
	e.Categories = slices.Clone(e.Categories)
	return e
}
