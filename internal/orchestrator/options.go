package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/internal/blackboard"
	"github.com/ShayCichocki/conduct/internal/capability"
	"github.com/ShayCichocki/conduct/internal/llm"
	"github.com/ShayCichocki/conduct/internal/planner"
	"github.com/ShayCichocki/conduct/internal/progress"
	"github.com/ShayCichocki/conduct/internal/selector"
	"github.com/ShayCichocki/conduct/internal/session"
	"github.com/ShayCichocki/conduct/internal/upload"
	"github.com/ShayCichocki/conduct/pkg/models"
)

const (
	defaultPoolSize      = 1
	defaultWorkerTimeout = 2 * time.Minute
	defaultReportsDir    = "reports"
)

// Planner produces a plan for a request.
type Planner interface {
	PlanDetailed(ctx context.Context, request, summary string, prior []models.Finding) planner.Result
}

// Selector assigns capability IDs to a subtask.
type Selector interface {
	Select(st models.Subtask) []string
}

// Directory resolves capabilities and their bound workers.
type Directory interface {
	selector.Directory
	Worker(id string) (capability.Worker, bool)
}

// Guard decides whether a target may be run against.
type Guard interface {
	Allowed(target string, authorized bool) (bool, string)
}

// ReportBuilder renders the final report for a session.
type ReportBuilder interface {
	Build(ctx context.Context, sess *models.Session) string
}

// RequiredConfig contains the collaborators an Engine cannot run without.
type RequiredConfig struct {
	// Planner turns requests into subtasks.
	Planner Planner
	// Directory holds the capabilities and their workers.
	Directory Directory
	// Sessions owns session state.
	Sessions *session.Store
}

// Option configures an Engine. Use With* functions to create Options.
type Option func(*engineOptions)

// engineOptions holds all optional configuration.
type engineOptions struct {
	poolSize      int
	workerTimeout time.Duration
	reportsDir    string
	selector      Selector
	guard         Guard
	inference     llm.Completer
	reporter      ReportBuilder
	uploader      upload.Uploader
	board         *blackboard.Blackboard
	sink          progress.Sink
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string
}

// WithPoolSize sets how many subtasks of a wave may run at once.
func WithPoolSize(n int) Option {
	return func(o *engineOptions) { o.poolSize = n }
}

// WithWorkerTimeout bounds each worker and fallback inference call.
func WithWorkerTimeout(d time.Duration) Option {
	return func(o *engineOptions) { o.workerTimeout = d }
}

// WithReportsDir sets where report artifacts are written.
func WithReportsDir(dir string) Option {
	return func(o *engineOptions) { o.reportsDir = dir }
}

// WithSelector replaces the default selector built over the directory.
func WithSelector(s Selector) Option {
	return func(o *engineOptions) { o.selector = s }
}

// WithGuard replaces the default restricted-target guard.
func WithGuard(g Guard) Option {
	return func(o *engineOptions) { o.guard = g }
}

// WithInference sets the completer used when no worker produced output.
func WithInference(c llm.Completer) Option {
	return func(o *engineOptions) { o.inference = c }
}

// WithReportBuilder replaces the default report builder.
func WithReportBuilder(r ReportBuilder) Option {
	return func(o *engineOptions) { o.reporter = r }
}

// WithUploader sets the report uploader.
func WithUploader(u upload.Uploader) Option {
	return func(o *engineOptions) { o.uploader = u }
}

// WithBlackboard sets the blackboard findings and knowledge are posted to.
func WithBlackboard(b *blackboard.Blackboard) Option {
	return func(o *engineOptions) { o.board = b }
}

// WithProgress sets the progress sink.
func WithProgress(s progress.Sink) Option {
	return func(o *engineOptions) { o.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// WithIDGenerator overrides how new session ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(o *engineOptions) { o.newID = fn }
}

func (c RequiredConfig) validate() error {
	var errs []error
	if c.Planner == nil {
		errs = append(errs, errors.New("planner is required"))
	}
	if c.Directory == nil {
		errs = append(errs, errors.New("directory is required"))
	}
	if c.Sessions == nil {
		errs = append(errs, errors.New("session store is required"))
	}
	return errors.Join(errs...)
}
