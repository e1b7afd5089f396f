package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/conduct/internal/capability"
	"github.com/ShayCichocki/conduct/internal/graph"
	"github.com/ShayCichocki/conduct/internal/llm"
	"github.com/ShayCichocki/conduct/internal/progress"
	"github.com/ShayCichocki/conduct/pkg/models"
)

// inferenceWorkerID labels output of the generic inference fallback.
const inferenceWorkerID = "inference"

const genericPersona = "You are a general-purpose analyst. No specialist was able to answer this subtask."

type inferenceConfig struct {
	completer llm.Completer
}

// outcome is the result of running all workers of one subtask.
type outcome struct {
	parts     []string
	findings  []models.Finding
	knowledge []string
	results   []models.WorkerResult
	succeeded bool
	skipped   bool
}

// execute runs the plan wave by wave. Subtasks in one wave run concurrently
// up to the pool size; a wave starts only after the previous one finished.
func (e *Engine) execute(ctx context.Context, req Request, id string, plan []models.Subtask) error {
	g := graph.New()
	g.SetLogger(e.logger)
	if err := g.Build(plan); err != nil {
		return &FatalError{Phase: "planning", Err: fmt.Errorf("%w: %w", ErrPlanning, err)}
	}
	waves, err := g.Waves()
	if err != nil {
		return &FatalError{Phase: "planning", Err: fmt.Errorf("%w: %w", ErrPlanning, err)}
	}

	// results holds the combined text of finished subtasks for dependents.
	var mu sync.Mutex
	results := make(map[int]string, len(plan))

	for _, wave := range waves {
		eg := errgroup.Group{}
		eg.SetLimit(e.poolSize)
		for _, sid := range wave {
			mu.Lock()
			st, _ := g.Get(sid)
			dep, failed := g.FailedDependency(sid)
			if failed {
				g.MarkFailed(sid)
				mu.Unlock()
				e.skipSubtask(ctx, id, st, dep)
				continue
			}
			prior := make([]string, 0, len(st.DependsOn))
			for _, dep := range st.DependsOn {
				prior = append(prior, results[dep])
			}
			mu.Unlock()

			eg.Go(func() error {
				status, text := e.safeRunSubtask(ctx, req, id, st, prior)
				mu.Lock()
				defer mu.Unlock()
				results[st.ID] = text
				if status == models.SubtaskStatusDone {
					g.MarkComplete(st.ID)
				} else {
					g.MarkFailed(st.ID)
				}
				return nil
			})
		}
		_ = eg.Wait()
	}
	return nil
}

// safeRunSubtask is runSubtask with engine faults contained to the subtask:
// a panic outside the worker calls marks it error so its dependents are skipped.
func (e *Engine) safeRunSubtask(ctx context.Context, req Request, id string, st models.Subtask, prior []string) (status models.SubtaskStatus, text string) {
	defer func() {
		if r := recover(); r != nil {
			text = fmt.Sprintf("internal error: %v", r)
			e.logger.Error("subtask panicked", zap.String("session", id), zap.Int("subtask", st.ID), zap.Any("panic", r))
			e.failSubtask(ctx, id, st, text)
			e.emit(id, progress.KindSubtaskFailed, "engine", st.ID, fmt.Sprintf("Subtask %d failed: %s", st.ID, text))
			status = models.SubtaskStatusError
		}
	}()
	return e.runSubtask(ctx, req, id, st, prior)
}

// skipSubtask marks st as error because dependency dep did not complete.
func (e *Engine) skipSubtask(ctx context.Context, id string, st models.Subtask, dep int) {
	msg := fmt.Sprintf("dependency %d did not complete", dep)
	e.failSubtask(ctx, id, st, msg)
	e.emit(id, progress.KindSubtaskSkipped, "engine", st.ID, fmt.Sprintf("Subtask %d skipped: %s", st.ID, msg))
}

func (e *Engine) failSubtask(ctx context.Context, id string, st models.Subtask, msg string) {
	now := e.now()
	e.mutate(ctx, id, func(s *models.Session) error {
		cur := s.Subtask(st.ID)
		if cur == nil {
			return fmt.Errorf("subtask %d not in session", st.ID)
		}
		cur.Status = models.SubtaskStatusError
		cur.Result = msg
		cur.CompletedAt = &now
		return nil
	})
}

// runSubtask executes one subtask and records its outcome. Worker and
// inference failures are annotations in the result, so the subtask ends done.
func (e *Engine) runSubtask(ctx context.Context, req Request, id string, st models.Subtask, prior []string) (models.SubtaskStatus, string) {
	started := e.now()
	e.mutate(ctx, id, func(s *models.Session) error {
		cur := s.Subtask(st.ID)
		if cur == nil {
			return fmt.Errorf("subtask %d not in session", st.ID)
		}
		cur.Status = models.SubtaskStatusRunning
		cur.StartedAt = &started
		return nil
	})
	e.emit(id, progress.KindSubtaskStarted, "engine", st.ID, fmt.Sprintf("Subtask %d: %s", st.ID, st.Title))

	sess, _ := e.sessions.Get(id)
	a := capability.Assignment{
		Subtask:      st.Clone(),
		SessionID:    id,
		Request:      req.Request,
		Target:       req.Target,
		Authorized:   req.Authorized,
		PriorResults: prior,
	}
	if sess != nil {
		a.Summary = sess.Summary()
		a.Context = sess.Context
	}
	if e.board != nil {
		a.Board = e.board
	}

	out := &outcome{}
	for _, wid := range st.Workers {
		e.runWorker(ctx, id, wid, a, out)
	}
	if !out.succeeded && !out.skipped {
		e.runInference(ctx, id, a, out)
	}

	status := models.SubtaskStatusDone
	text := strings.Join(out.parts, "\n\n")
	e.record(ctx, id, st, status, text, out)
	e.emit(id, progress.KindSubtaskDone, "engine", st.ID, fmt.Sprintf("Subtask %d %s", st.ID, status))
	return status, text
}

// runWorker invokes one worker and folds its output into out.
func (e *Engine) runWorker(ctx context.Context, id, wid string, a capability.Assignment, out *outcome) {
	if a.Subtask.RequiresAuth && !a.Authorized {
		out.parts = append(out.parts, fmt.Sprintf("[%s]: SKIPPED: authorization required", wid))
		out.skipped = true
		return
	}

	w, ok := e.directory.Worker(wid)
	if !ok {
		e.workerFailed(id, out, &WorkerError{WorkerID: wid, SubtaskID: a.Subtask.ID, Err: errors.New("capability not registered")}, 0)
		return
	}

	start := e.now()
	res, err := e.callWorker(ctx, w, a)
	elapsed := e.now().Sub(start)
	if err != nil {
		e.workerFailed(id, out, &WorkerError{WorkerID: wid, SubtaskID: a.Subtask.ID, Err: err}, elapsed)
		return
	}

	out.succeeded = true
	out.parts = append(out.parts, fmt.Sprintf("[%s]: %s", wid, res.Text))
	out.findings = append(out.findings, stamp(res.Findings, wid, a.Subtask.ID, e.now())...)
	out.knowledge = append(out.knowledge, res.Knowledge...)
	out.results = append(out.results, models.WorkerResult{
		WorkerID:  wid,
		SubtaskID: a.Subtask.ID,
		Output:    res.Text,
		Duration:  elapsed,
		Timestamp: e.now(),
	})
}

// callWorker runs w under the worker timeout, converting panics and empty
// output into errors. The deadline holds even when w ignores ctx: the call
// is abandoned and whatever it returns later is dropped.
func (e *Engine) callWorker(ctx context.Context, w capability.Worker, a capability.Assignment) (*capability.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, e.workerTimeout)
	defer cancel()

	type result struct {
		out *capability.Output
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r = result{err: panicError(p)}
			}
			ch <- r
		}()
		r.out, r.err = w.Execute(ctx, a)
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.out == nil || (strings.TrimSpace(r.out.Text) == "" && len(r.out.Findings) == 0) {
		return nil, errors.New("empty output")
	}
	return r.out, nil
}

func (e *Engine) workerFailed(id string, out *outcome, werr *WorkerError, elapsed time.Duration) {
	out.parts = append(out.parts, fmt.Sprintf("[%s]: ERROR: %s", werr.WorkerID, werr.Err))
	out.results = append(out.results, models.WorkerResult{
		WorkerID:  werr.WorkerID,
		SubtaskID: werr.SubtaskID,
		Error:     werr.Err.Error(),
		Duration:  elapsed,
		Timestamp: e.now(),
	})
	e.logger.Warn("worker failed",
		zap.String("session", id),
		zap.String("worker", werr.WorkerID),
		zap.Int("subtask", werr.SubtaskID),
		zap.Error(werr))
	e.emit(id, progress.KindWorkerError, werr.WorkerID, werr.SubtaskID, werr.Error())
}

// runInference asks the generic collaborator to answer the subtask when no
// specialist did.
func (e *Engine) runInference(ctx context.Context, id string, a capability.Assignment, out *outcome) {
	if e.inference.completer == nil {
		out.parts = append(out.parts, fmt.Sprintf("[%s]: ERROR: no inference collaborator configured", inferenceWorkerID))
		return
	}
	e.emit(id, progress.KindInferenceFallback, inferenceWorkerID, a.Subtask.ID, fmt.Sprintf("Subtask %d: falling back to generic inference", a.Subtask.ID))

	category := a.Subtask.TaskType
	if category == "" {
		category = models.TaskTypeAnalysis
	}
	completer := llm.WithTimeout(e.inference.completer, e.workerTimeout)

	answer, err := func() (answer string, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
		}()
		return completer.Complete(ctx, []llm.Message{
			llm.System(genericPersona),
			llm.User(capability.BuildPrompt(a)),
		}, llm.Options{TaskCategory: category, Temperature: 0.4, MaxTokens: 2048})
	}()
	if err == nil && strings.TrimSpace(answer) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		out.parts = append(out.parts, fmt.Sprintf("[%s]: ERROR: %s", inferenceWorkerID, err))
		e.logger.Warn("inference fallback failed", zap.String("session", id), zap.Int("subtask", a.Subtask.ID), zap.Error(err))
		return
	}

	res := capability.ParseOutput(answer)
	out.succeeded = true
	out.parts = append(out.parts, fmt.Sprintf("[%s]: %s", inferenceWorkerID, res.Text))
	out.findings = append(out.findings, stamp(res.Findings, inferenceWorkerID, a.Subtask.ID, e.now())...)
	out.knowledge = append(out.knowledge, res.Knowledge...)
}

// record writes the subtask outcome to the session and blackboard.
func (e *Engine) record(ctx context.Context, id string, st models.Subtask, status models.SubtaskStatus, text string, out *outcome) {
	now := e.now()
	e.mutate(ctx, id, func(s *models.Session) error {
		cur := s.Subtask(st.ID)
		if cur == nil {
			return fmt.Errorf("subtask %d not in session", st.ID)
		}
		cur.Status = status
		cur.Result = text
		cur.CompletedAt = &now
		s.AddMessage(models.RoleAssistant, fmt.Sprintf("Subtask %d (%s):\n%s", st.ID, st.Title, text), now)
		s.Findings = append(s.Findings, out.findings...)
		s.Knowledge = append(s.Knowledge, out.knowledge...)
		for _, r := range out.results {
			s.WorkerResults[r.WorkerID] = r
		}
		return nil
	})

	for _, f := range out.findings {
		e.post(TopicFindings, f)
	}
	for _, k := range out.knowledge {
		e.post(TopicKnowledge, k)
	}
}

// stamp fills attribution fields the worker left empty.
func stamp(findings []models.Finding, wid string, subtask int, now time.Time) []models.Finding {
	out := make([]models.Finding, 0, len(findings))
	for _, f := range findings {
		if f.WorkerID == "" {
			f.WorkerID = wid
		}
		f.SubtaskID = subtask
		if f.Timestamp.IsZero() {
			f.Timestamp = now
		}
		if !f.Severity.Valid() {
			f.Severity = models.SeverityInfo
		}
		out = append(out, f)
	}
	return out
}
