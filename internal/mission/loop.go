// Package mission repeats engine runs over one session until the objective
// is reported reached or the cycle budget is spent.
package mission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/internal/orchestrator"
	"github.com/ShayCichocki/conduct/internal/progress"
	"github.com/ShayCichocki/conduct/pkg/models"
)

const (
	// DefaultMaxCycles bounds a mission when the request does not.
	DefaultMaxCycles = 5
	// DefaultCooldown separates consecutive cycles.
	DefaultCooldown = 5 * time.Second
)

// Runner executes one cycle.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) *models.SessionResult
}

// Stopper reports an operator stop request.
type Stopper interface {
	ShouldStop() bool
}

// Sleeper waits between cycles. It returns early with ctx's error when ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// MissionRequest is the input of a mission.
type MissionRequest struct {
	Request string
	Target  string
	// MaxCycles caps the number of cycles. Zero means DefaultMaxCycles.
	MaxCycles int
	// Unbounded ignores MaxCycles and runs until another stop condition.
	Unbounded  bool
	Authorized bool
	// SessionID continues an existing session. Empty starts a new one.
	SessionID string
}

// Loop runs missions.
type Loop struct {
	runner   Runner
	verifier Verifier
	stopper  Stopper
	sleep    Sleeper
	cooldown time.Duration
	sink     progress.Sink
	logger   *zap.Logger
	newID    func() string
}

// Option configures a Loop.
type Option func(*Loop)

// WithVerifier requires the verifier to confirm the objective marker before
// the mission ends on it.
func WithVerifier(v Verifier) Option {
	return func(l *Loop) { l.verifier = v }
}

// WithStopper sets the operator stop signal.
func WithStopper(s Stopper) Option {
	return func(l *Loop) { l.stopper = s }
}

// WithCooldown sets the pause between cycles.
func WithCooldown(d time.Duration) Option {
	return func(l *Loop) { l.cooldown = d }
}

// WithSleeper replaces the cooldown wait.
func WithSleeper(s Sleeper) Option {
	return func(l *Loop) { l.sleep = s }
}

// WithProgress sets the progress sink.
func WithProgress(s progress.Sink) Option {
	return func(l *Loop) { l.sink = s }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(l *Loop) { l.newID = fn }
}

// New creates a Loop over runner.
func New(runner Runner, opts ...Option) *Loop {
	l := &Loop{
		runner:   runner,
		cooldown: DefaultCooldown,
		sleep:    sleepContext,
		sink:     progress.Nop{},
		logger:   zap.NewNop(),
		newID:    func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunMission runs cycles until the objective is reached, a cycle is blocked
// or fails, the budget is spent, ctx ends, or a stop is requested. Those
// conditions are checked between cycles only. It returns the last cycle's result.
func (l *Loop) RunMission(ctx context.Context, req MissionRequest) *models.SessionResult {
	maxCycles := req.MaxCycles
	if maxCycles <= 0 {
		maxCycles = DefaultMaxCycles
	}
	id := req.SessionID
	if id == "" {
		id = l.newID()
	}
	log := l.logger.With(zap.String("session", id))

	limit := fmt.Sprint(maxCycles)
	if req.Unbounded {
		limit = "unbounded"
	}
	log.Info("mission started", zap.String("request", req.Request), zap.String("cycles", limit))

	var last *models.SessionResult
	for cycle := 1; req.Unbounded || cycle <= maxCycles; cycle++ {
		l.emit(id, progress.KindCycleStarted, fmt.Sprintf("Cycle %d / %s", cycle, limit))

		last = l.runner.Run(ctx, orchestrator.Request{
			Request:    req.Request,
			Target:     req.Target,
			SessionID:  id,
			Authorized: req.Authorized,
		})
		l.emit(id, progress.KindCycleDone, fmt.Sprintf("Cycle %d finished: %s", cycle, last.Status))

		if reason, done := l.finished(ctx, req, last); done {
			log.Info("mission finished", zap.Int("cycle", cycle), zap.String("reason", reason))
			l.emit(id, progress.KindMissionDone, reason)
			return last
		}

		if !req.Unbounded && cycle == maxCycles {
			break
		}
		if err := l.sleep(ctx, l.cooldown); err != nil {
			log.Info("mission cancelled", zap.Int("cycle", cycle), zap.Error(err))
			l.emit(id, progress.KindMissionDone, "cancelled")
			return last
		}
		if reason, stop := l.interrupted(ctx); stop {
			log.Info("mission interrupted", zap.Int("cycle", cycle), zap.String("reason", reason))
			l.emit(id, progress.KindMissionDone, reason)
			return last
		}
	}

	log.Info("mission exhausted its cycles", zap.Int("cycles", maxCycles))
	l.emit(id, progress.KindMissionDone, "cycle budget spent")
	return last
}

// finished decides whether the cycle that produced res ends the mission.
func (l *Loop) finished(ctx context.Context, req MissionRequest, res *models.SessionResult) (string, bool) {
	switch res.Status {
	case models.ResultStatusBlocked:
		return "blocked", true
	case models.ResultStatusError:
		return "cycle failed", true
	}
	if !res.ObjectiveReached() {
		return "", false
	}
	if l.verifier == nil {
		return "objective reached", true
	}

	ok, err := l.verifier.Verify(ctx, req.Request, res)
	if err != nil {
		l.logger.Warn("objective verification failed, continuing", zap.String("session", res.SessionID), zap.Error(err))
		return "", false
	}
	if !ok {
		l.logger.Info("objective marker not corroborated", zap.String("session", res.SessionID))
		return "", false
	}
	return "objective reached (verified)", true
}

func (l *Loop) interrupted(ctx context.Context) (string, bool) {
	if err := ctx.Err(); err != nil {
		return "cancelled", true
	}
	if l.stopper != nil && l.stopper.ShouldStop() {
		return "stop requested", true
	}
	return "", false
}

func (l *Loop) emit(id string, kind progress.Kind, msg string) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("progress sink panicked", zap.Any("panic", r))
		}
	}()
	l.sink.OnUpdate(progress.Event{
		Timestamp: time.Now(),
		Source:    "mission",
		Message:   msg,
		Kind:      kind,
		SessionID: id,
		SubtaskID: progress.NoSubtask,
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Runner = (*orchestrator.Engine)(nil)
