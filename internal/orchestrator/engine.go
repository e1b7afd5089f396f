package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/internal/blackboard"
	"github.com/ShayCichocki/conduct/internal/capability"
	"github.com/ShayCichocki/conduct/internal/guard"
	"github.com/ShayCichocki/conduct/internal/progress"
	"github.com/ShayCichocki/conduct/internal/remediation"
	"github.com/ShayCichocki/conduct/internal/report"
	"github.com/ShayCichocki/conduct/internal/selector"
	"github.com/ShayCichocki/conduct/internal/session"
	"github.com/ShayCichocki/conduct/internal/upload"
	"github.com/ShayCichocki/conduct/pkg/models"
)

// Blackboard topics the engine posts to. Workers additionally post to
// capability.TopicScope.
const (
	TopicFindings  = capability.TopicFindings
	TopicKnowledge = capability.TopicKnowledge
	TopicStatus    = "status"
)

var _ capability.Board = (*blackboard.Blackboard)(nil)

// Request is the input of one run.
type Request struct {
	// Request is the objective in free text.
	Request string
	// Target optionally names what the run is about.
	Target string
	// SessionID continues an existing session. Empty starts a new one.
	SessionID string
	// Authorized records operator authorization for restricted targets and
	// subtasks that require it.
	Authorized bool
	// PriorFindings are fed to the planner in addition to the session's own.
	PriorFindings []models.Finding
}

// Engine runs plan, execute and report passes. An Engine may serve many
// sessions, but each session must only be run by one caller at a time.
type Engine struct {
	planner   Planner
	directory Directory
	sessions  *session.Store

	selector      Selector
	guard         Guard
	reporter      ReportBuilder
	uploader      upload.Uploader
	board         *blackboard.Blackboard
	sink          progress.Sink
	logger        *zap.Logger
	inference     inferenceConfig
	poolSize      int
	workerTimeout time.Duration
	reportsDir    string
	now           func() time.Time
	newID         func() string
}

// New creates an Engine.
func New(cfg RequiredConfig, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	o := &engineOptions{
		poolSize:      defaultPoolSize,
		workerTimeout: defaultWorkerTimeout,
		reportsDir:    defaultReportsDir,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.poolSize < 1 {
		o.poolSize = defaultPoolSize
	}
	if o.workerTimeout <= 0 {
		o.workerTimeout = defaultWorkerTimeout
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = func() string { return uuid.NewString()[:8] }
	}
	if o.selector == nil {
		o.selector = selector.New(cfg.Directory, selector.WithLogger(o.logger))
	}
	if o.guard == nil {
		o.guard = guard.New()
	}
	if o.reporter == nil {
		o.reporter = report.NewBuilder(report.WithLogger(o.logger), report.WithClock(o.now))
	}
	if o.uploader == nil {
		o.uploader = upload.Nop{}
	}
	if o.sink == nil {
		o.sink = progress.Nop{}
	}

	return &Engine{
		planner:       cfg.Planner,
		directory:     cfg.Directory,
		sessions:      cfg.Sessions,
		selector:      o.selector,
		guard:         o.guard,
		reporter:      o.reporter,
		uploader:      o.uploader,
		board:         o.board,
		sink:          o.sink,
		logger:        o.logger,
		inference:     inferenceConfig{completer: o.inference},
		poolSize:      o.poolSize,
		workerTimeout: o.workerTimeout,
		reportsDir:    o.reportsDir,
		now:           o.now,
		newID:         o.newID,
	}, nil
}

// Run executes one full pass for req and always returns a result. The run
// is detached from ctx cancellation: once started it runs to completion.
func (e *Engine) Run(ctx context.Context, req Request) (result *models.SessionResult) {
	ctx = context.WithoutCancel(ctx)

	id := req.SessionID
	if id == "" {
		id = e.newID()
	}
	log := e.logger.With(zap.String("session", id))

	defer func() {
		if r := recover(); r != nil {
			log.Error("run panicked", zap.Any("panic", r))
			result = e.fail(id, &FatalError{Phase: "run", Err: panicError(r)})
		}
	}()

	sess, err := e.sessions.Open(ctx, id)
	if err != nil {
		return e.fail(id, &FatalError{Phase: "session", Err: fmt.Errorf("%w: %w", ErrPersistence, err)})
	}
	e.emit(id, progress.KindSessionOpened, "system", progress.NoSubtask, "Session "+id+" started")

	if ok, reason := e.guard.Allowed(req.Target, req.Authorized); !ok {
		return e.block(ctx, sess, req, reason)
	}

	cycle := sess.Cycle + 1
	e.mutate(ctx, id, func(s *models.Session) error {
		s.Request = req.Request
		s.Target = req.Target
		s.Authorized = req.Authorized
		s.Context["request"] = req.Request
		if req.Target != "" {
			s.Context["target"] = req.Target
		}
		s.AddMessage(models.RoleUser, req.Request, e.now())
		return nil
	})
	e.postStatus(id, "planning", cycle)

	plan, err := e.plan(ctx, id, req, sess, cycle)
	if err != nil {
		return e.fail(id, err)
	}

	if err := e.execute(ctx, req, id, plan); err != nil {
		return e.fail(id, err)
	}

	res, err := e.finish(ctx, id, plan, cycle)
	if err != nil {
		return e.fail(id, err)
	}
	return res
}

// block records a refused run and returns a blocked result.
func (e *Engine) block(ctx context.Context, sess *models.Session, req Request, reason string) *models.SessionResult {
	msg := fmt.Sprintf("[SECURITY BLOCK] Target '%s' is in a restricted category. Execution denied.", req.Target)
	e.mutate(ctx, sess.ID, func(s *models.Session) error {
		s.Target = req.Target
		s.AddMessage(models.RoleSystem, msg, e.now())
		return nil
	})
	e.emit(sess.ID, progress.KindSecurityBlock, "security", progress.NoSubtask, msg)
	e.logger.Warn("run blocked", zap.String("session", sess.ID), zap.String("target", req.Target), zap.String("reason", reason))

	return &models.SessionResult{
		SessionID: sess.ID,
		Status:    models.ResultStatusBlocked,
		Error:     fmt.Errorf("%w: %s", ErrSecurityBlock, msg).Error(),
		Findings:  []models.Finding{},
		Knowledge: []string{},
		Artifacts: []models.Artifact{},
		Subtasks:  []models.Subtask{},
		Cycle:     sess.Cycle,
	}
}

// plan runs the planner and selector and persists the assigned plan.
func (e *Engine) plan(ctx context.Context, id string, req Request, sess *models.Session, cycle int) (plan []models.Subtask, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FatalError{Phase: "planning", Err: fmt.Errorf("%w: %w", ErrPlanning, panicError(r))}
		}
	}()

	prior := mergeFindings(req.PriorFindings, sess.Findings)
	res := e.planner.PlanDetailed(ctx, req.Request, e.sessions.Summary(id), prior)
	if len(res.Subtasks) == 0 {
		return nil, &FatalError{Phase: "planning", Err: fmt.Errorf("%w: empty plan", ErrPlanning)}
	}
	if res.Fallback {
		e.logger.Warn("planner fell back to the default plan", zap.String("session", id), zap.Error(res.Err))
	}

	plan = renumber(res.Subtasks, sess)
	for i := range plan {
		plan[i].Status = models.SubtaskStatusPending
		plan[i].Cycle = cycle
		plan[i].Workers = e.selectWorkers(id, plan[i])
	}

	e.mutate(ctx, id, func(s *models.Session) error {
		for _, st := range plan {
			s.Subtasks = append(s.Subtasks, st.Clone())
		}
		s.AddMessage(models.RoleSystem, fmt.Sprintf("Plan: %d subtasks", len(plan)), e.now())
		return nil
	})
	e.emit(id, progress.KindPlanReady, "planner", progress.NoSubtask, fmt.Sprintf("Plan: %d subtasks", len(plan)))
	return plan, nil
}

// selectWorkers runs the selector, treating a panic as an empty selection.
func (e *Engine) selectWorkers(id string, st models.Subtask) (workers []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("selector failed",
				zap.String("session", id),
				zap.Int("subtask", st.ID),
				zap.Error(fmt.Errorf("%w: %w", ErrSelection, panicError(r))))
			workers = nil
		}
	}()
	return e.selector.Select(st)
}

// finish runs remediation, writes and uploads the report and builds the result.
func (e *Engine) finish(ctx context.Context, id string, plan []models.Subtask, cycle int) (res *models.SessionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FatalError{Phase: "report", Err: panicError(r)}
		}
	}()

	e.emit(id, progress.KindRemediation, "reporter", progress.NoSubtask, "Generating report & remediation patches...")
	e.mutate(ctx, id, func(s *models.Session) error {
		s.Findings = remediation.Apply(s.Findings)
		return nil
	})

	sess, ok := e.sessions.Get(id)
	if !ok {
		return nil, &FatalError{Phase: "report", Err: fmt.Errorf("session %s vanished", id)}
	}
	sess.Cycle = cycle
	text := e.reporter.Build(ctx, sess)

	var artifacts []models.Artifact
	art, werr := report.Write(e.reportsDir, id, text, e.now())
	if werr != nil {
		e.logger.Warn("report artifact not written", zap.String("session", id), zap.Error(fmt.Errorf("%w: %w", ErrPersistence, werr)))
	} else {
		e.emit(id, progress.KindReportWritten, "reporter", progress.NoSubtask, "Report written to "+art.Path)
		art.Remote = e.upload(ctx, id, text)
		artifacts = append(artifacts, art)
	}

	e.mutate(ctx, id, func(s *models.Session) error {
		s.Artifacts = append(s.Artifacts, artifacts...)
		s.Cycle = cycle
		return nil
	})
	e.postStatus(id, "done", cycle)

	final, _ := e.sessions.Get(id)
	subtasks := make([]models.Subtask, 0, len(plan))
	for _, st := range plan {
		if cur := final.Subtask(st.ID); cur != nil {
			subtasks = append(subtasks, cur.Clone())
		}
	}

	e.emit(id, progress.KindSessionDone, "system", progress.NoSubtask, "Session "+id+" COMPLETE")
	return &models.SessionResult{
		SessionID: id,
		Status:    models.ResultStatusOK,
		Report:    text,
		Findings:  final.Findings,
		Knowledge: final.Knowledge,
		Artifacts: final.Artifacts,
		Subtasks:  subtasks,
		Cycle:     cycle,
	}, nil
}

// upload sends the report and returns its remote location, if any.
func (e *Engine) upload(ctx context.Context, id, text string) string {
	ok, err := e.uploader.Upload(ctx, id, text)
	if err != nil {
		e.logger.Warn("report upload skipped", zap.String("session", id), zap.Error(err))
		e.emit(id, progress.KindUpload, "upload", progress.NoSubtask, "Upload skipped: "+err.Error())
		return ""
	}
	if !ok {
		return ""
	}
	e.emit(id, progress.KindUpload, "upload", progress.NoSubtask, "Report uploaded")
	if loc, isLocator := e.uploader.(upload.Locator); isLocator {
		return loc.Location(id)
	}
	return ""
}

// fail builds an error result and records it on the session if possible.
func (e *Engine) fail(id string, err error) *models.SessionResult {
	e.logger.Error("run failed", zap.String("session", id), zap.Error(err))
	e.emit(id, progress.KindSessionError, "system", progress.NoSubtask, err.Error())

	res := &models.SessionResult{
		SessionID: id,
		Status:    models.ResultStatusError,
		Error:     err.Error(),
		Report:    "# Error\n\n" + err.Error() + "\n",
		Findings:  []models.Finding{},
		Knowledge: []string{},
		Artifacts: []models.Artifact{},
		Subtasks:  []models.Subtask{},
	}
	if sess, ok := e.sessions.Get(id); ok {
		res.Findings = sess.Findings
		res.Knowledge = sess.Knowledge
		res.Cycle = sess.Cycle
	}
	return res
}

// mutate applies fn to the session, logging instead of failing.
func (e *Engine) mutate(ctx context.Context, id string, fn func(*models.Session) error) {
	if err := e.sessions.Mutate(ctx, id, fn); err != nil {
		e.logger.Warn("session update failed", zap.String("session", id), zap.Error(err))
	}
}

func (e *Engine) emit(id string, kind progress.Kind, source string, subtask int, msg string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("progress sink panicked", zap.Any("panic", r))
		}
	}()
	e.sink.OnUpdate(progress.Event{
		Timestamp: e.now(),
		Source:    source,
		Message:   msg,
		Kind:      kind,
		SessionID: id,
		SubtaskID: subtask,
	})
}

func (e *Engine) post(topic string, data any) {
	if e.board == nil {
		return
	}
	if err := e.board.Post(topic, data); err != nil && !errors.Is(err, blackboard.ErrClosed) {
		e.logger.Warn("blackboard post failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (e *Engine) postStatus(id, phase string, cycle int) {
	e.post(TopicStatus, map[string]any{"session_id": id, "phase": phase, "cycle": cycle})
}

// renumber shifts plan ids past the session's existing ids when they would collide.
func renumber(plan []models.Subtask, sess *models.Session) []models.Subtask {
	out := make([]models.Subtask, len(plan))
	for i, st := range plan {
		out[i] = st.Clone()
	}

	collides := false
	for _, st := range out {
		if sess.Subtask(st.ID) != nil {
			collides = true
			break
		}
	}
	if !collides {
		return out
	}

	offset := sess.MaxSubtaskID() + 1
	for i := range out {
		out[i].ID += offset
		for j := range out[i].DependsOn {
			out[i].DependsOn[j] += offset
		}
	}
	return out
}

// mergeFindings returns prior followed by any session findings not already in it.
func mergeFindings(prior, own []models.Finding) []models.Finding {
	type key struct {
		title, worker string
		subtask       int
	}
	seen := make(map[key]bool, len(prior)+len(own))
	out := make([]models.Finding, 0, len(prior)+len(own))
	for _, list := range [][]models.Finding{prior, own} {
		for _, f := range list {
			k := key{f.Title, f.WorkerID, f.SubtaskID}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, f)
		}
	}
	return out
}
