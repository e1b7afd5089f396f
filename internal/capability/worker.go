package capability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ShayCichocki/conduct/internal/llm"
	"github.com/ShayCichocki/conduct/pkg/models"
)

// Assignment is everything a worker receives for one subtask. Workers hold no
// session state between calls; whatever they need arrives here.
type Assignment struct {
	Subtask    models.Subtask    `json:"subtask"`
	SessionID  string            `json:"session_id"`
	Request    string            `json:"request"`
	Target     string            `json:"target,omitempty"`
	Authorized bool              `json:"authorized"`
	Summary    string            `json:"summary,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
	// PriorResults holds the combined results of the subtask's dependencies.
	PriorResults []string `json:"prior_results,omitempty"`
	// Board is the shared blackboard. Nil when the engine runs without one.
	Board Board `json:"-"`
}

// Output is what a worker produces.
type Output struct {
	Text      string           `json:"text"`
	Findings  []models.Finding `json:"findings,omitempty"`
	Knowledge []string         `json:"knowledge,omitempty"`
}

// Worker executes subtasks for one capability.
type Worker interface {
	ID() string
	Execute(ctx context.Context, a Assignment) (*Output, error)
}

// LocalFunc is the body of an in-process worker.
type LocalFunc func(ctx context.Context, a Assignment) (*Output, error)

// Binder turns entries into worker variants.
type Binder struct {
	// Local maps entry ids to in-process implementations.
	Local map[string]LocalFunc
	// Completer serves inference_fallback entries.
	Completer llm.Completer
	// HTTPClient serves remote_call entries. Nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Bind returns the worker variant for e.
func (b *Binder) Bind(e Entry) (Worker, error) {
	switch e.Mode {
	case ModeInProcess:
		fn, ok := b.Local[e.ID]
		if !ok {
			return nil, fmt.Errorf("no in-process implementation registered for %q", e.ID)
		}
		return &LocalWorker{id: e.ID, fn: fn}, nil
	case ModeRemoteCall:
		return NewRemoteWorker(e.ID, e.Endpoint, b.HTTPClient), nil
	case ModeInferenceFallback:
		if b.Completer == nil {
			return nil, fmt.Errorf("inference capability %q needs a completer", e.ID)
		}
		return NewInferenceWorker(e, b.Completer), nil
	default:
		return nil, fmt.Errorf("unknown execution mode %q", e.Mode)
	}
}

// LocalWorker runs an in-process function.
type LocalWorker struct {
	id string
	fn LocalFunc
}

// NewLocalWorker wraps fn as a worker.
func NewLocalWorker(id string, fn LocalFunc) *LocalWorker {
	return &LocalWorker{id: id, fn: fn}
}

// ID returns the capability id.
func (w *LocalWorker) ID() string { return w.id }

// Execute calls the wrapped function.
func (w *LocalWorker) Execute(ctx context.Context, a Assignment) (*Output, error) {
	return w.fn(ctx, a)
}

var (
	_ Worker = (*LocalWorker)(nil)
	_ Worker = (*RemoteWorker)(nil)
	_ Worker = (*InferenceWorker)(nil)
)
