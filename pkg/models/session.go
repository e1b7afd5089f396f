package models

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// MessageRole identifies the author of a session message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one entry of the session transcript.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// Artifact is a file produced by a run, usually the report.
type Artifact struct {
	// Name is the file name.
	Name string `json:"name"`
	// Path is the local path the artifact was written to.
	Path string `json:"path"`
	// Kind describes the artifact, e.g. "report".
	Kind string `json:"kind"`
	// Digest is the hex BLAKE3 digest of the content.
	Digest string `json:"digest"`
	// Remote is the upload location, if the upload succeeded.
	Remote string `json:"remote,omitempty"`
	// CreatedAt is when the artifact was written.
	CreatedAt time.Time `json:"created_at"`
}

// WorkerResult is the last outcome recorded for a worker.
type WorkerResult struct {
	WorkerID  string        `json:"worker_id"`
	SubtaskID int           `json:"subtask_id"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Session is the full mutable state of one orchestration run.
// A session is owned by a single engine at a time.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"session_id"`
	// CreatedAt is when the session was first opened.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the session was last mutated.
	UpdatedAt time.Time `json:"updated_at"`
	// Request is the most recent objective the session ran.
	Request string `json:"request"`
	// Target is the optional target identifier.
	Target string `json:"target"`
	// Authorized records whether the operator authorized the target.
	Authorized bool `json:"authorized"`
	// Cycle is the number of completed planning cycles.
	Cycle int `json:"cycle"`
	// Messages is the ordered transcript.
	Messages []Message `json:"messages"`
	// Subtasks lists every subtask planned in this session, in plan order.
	Subtasks []Subtask `json:"subtasks"`
	// WorkerResults maps worker ID to its last result.
	WorkerResults map[string]WorkerResult `json:"agent_results"`
	// Findings is the append-only list of discoveries.
	Findings []Finding `json:"findings"`
	// Knowledge holds free-text knowledge items.
	Knowledge []string `json:"knowledge"`
	// Artifacts lists produced files.
	Artifacts []Artifact `json:"artifacts"`
	// Context holds arbitrary key/value data.
	Context map[string]string `json:"context"`
}

// NewSession returns an empty session with the given id.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:            id,
		CreatedAt:     now,
		UpdatedAt:     now,
		Messages:      []Message{},
		Subtasks:      []Subtask{},
		WorkerResults: map[string]WorkerResult{},
		Findings:      []Finding{},
		Knowledge:     []string{},
		Artifacts:     []Artifact{},
		Context:       map[string]string{},
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = slices.Clone(s.Messages)
	c.Findings = slices.Clone(s.Findings)
	c.Knowledge = slices.Clone(s.Knowledge)
	c.Artifacts = slices.Clone(s.Artifacts)
	c.WorkerResults = maps.Clone(s.WorkerResults)
	c.Context = maps.Clone(s.Context)
	if s.Subtasks != nil {
		c.Subtasks = make([]Subtask, len(s.Subtasks))
		for i, st := range s.Subtasks {
			c.Subtasks[i] = st.Clone()
		}
	}
	return &c
}

// Subtask returns a pointer into the subtask list for the given id, or nil.
func (s *Session) Subtask(id int) *Subtask {
	for i := range s.Subtasks {
		if s.Subtasks[i].ID == id {
			return &s.Subtasks[i]
		}
	}
	return nil
}

// MaxSubtaskID returns the highest subtask id in the session, or -1 when empty.
func (s *Session) MaxSubtaskID() int {
	maxID := -1
	for _, st := range s.Subtasks {
		if st.ID > maxID {
			maxID = st.ID
		}
	}
	return maxID
}

// AddMessage appends a transcript entry.
func (s *Session) AddMessage(role MessageRole, content string, now time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: now})
}

// CountDone returns how many subtasks are done.
func (s *Session) CountDone() int {
	n := 0
	for _, st := range s.Subtasks {
		if st.Status == SubtaskStatusDone {
			n++
		}
	}
	return n
}

// Summary renders the condensed session summary fed to the planner.
func (s *Session) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", s.ID)
	fmt.Fprintf(&b, "Status: %d/%d tasks done\n", s.CountDone(), len(s.Subtasks))
	fmt.Fprintf(&b, "Findings: %d\n", len(s.Findings))
	fmt.Fprintf(&b, "Knowledge: %d", len(s.Knowledge))

	start := len(s.Findings) - 3
	if start < 0 {
		start = 0
	}
	for _, f := range s.Findings[start:] {
		fmt.Fprintf(&b, "\n  [%s] %s", f.Severity, f.Title)
	}
	return b.String()
}
