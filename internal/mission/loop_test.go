package mission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conduct/internal/orchestrator"
	"github.com/ShayCichocki/conduct/internal/progress"
	"github.com/ShayCichocki/conduct/pkg/models"
)

// scriptedRunner returns results from script in order, repeating the last.
type scriptedRunner struct {
	mu     sync.Mutex
	script []func(cycle int, req orchestrator.Request) *models.SessionResult
	reqs   []orchestrator.Request
}

func (r *scriptedRunner) Run(_ context.Context, req orchestrator.Request) *models.SessionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	cycle := len(r.reqs)
	i := cycle - 1
	if i >= len(r.script) {
		i = len(r.script) - 1
	}
	return r.script[i](cycle, req)
}

func okResult(cycle int, req orchestrator.Request) *models.SessionResult {
	return &models.SessionResult{
		SessionID: req.SessionID,
		Status:    models.ResultStatusOK,
		Cycle:     cycle,
		Subtasks:  []models.Subtask{{ID: cycle}},
		Findings:  []models.Finding{{Title: "progress", SubtaskID: cycle}},
	}
}

func reachedResult(cycle int, req orchestrator.Request) *models.SessionResult {
	res := okResult(cycle, req)
	res.Findings = append(res.Findings, models.Finding{
		Title: "done", SubtaskID: cycle, Status: models.FindingStatusObjectiveReached,
	})
	return res
}

func statusResult(status models.ResultStatus) func(int, orchestrator.Request) *models.SessionResult {
	return func(cycle int, req orchestrator.Request) *models.SessionResult {
		return &models.SessionResult{SessionID: req.SessionID, Status: status, Cycle: cycle}
	}
}

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func newLoop(r Runner, opts ...Option) (*Loop, *sleepRecorder) {
	rec := &sleepRecorder{}
	base := []Option{WithSleeper(rec.sleep), WithIDGenerator(func() string { return "m1" })}
	return New(r, append(base, opts...)...), rec
}

func TestRunMission_RunsExactlyMaxCycles(t *testing.T) {
	r := &scriptedRunner{script: []func(int, orchestrator.Request) *models.SessionResult{okResult}}
	loop, rec := newLoop(r)

	res := loop.RunMission(context.Background(), MissionRequest{Request: "map it", MaxCycles: 3})

	require.Len(t, r.reqs, 3)
	assert.Equal(t, 3, res.Cycle)
	assert.Len(t, rec.calls, 2, "no cooldown after the last cycle")
	assert.Equal(t, DefaultCooldown, rec.calls[0])
	for _, req := range r.reqs {
		assert.Equal(t, "m1", req.SessionID)
		assert.Equal(t, "map it", req.Request)
	}
}

func TestRunMission_DefaultMaxCycles(t *testing.T) {
	r := &scriptedRunner{script: []func(int, orchestrator.Request) *models.SessionResult{okResult}}
	loop, _ := newLoop(r)

	loop.RunMission(context.Background(), MissionRequest{Request: "x"})

	assert.Len(t, r.reqs, DefaultMaxCycles)
}

func TestRunMission_StopsOnObjectiveMarker(t *testing.T) {
	r := &scriptedRunner{script: []func(int, orchestrator.Request) *models.SessionResult{okResult, reachedResult, okResult}}
	loop, _ := newLoop(r)

	res := loop.RunMission(context.Background(), MissionRequest{Request: "x", MaxCycles: 5})

	assert.Len(t, r.reqs, 2)
	assert.Equal(t, 2, res.Cycle)
	assert.True(t, res.ObjectiveReached())
}

func TestRunMission_MarkerFromEarlierCycleIgnored(t *testing.T) {
	stale := func(cycle int, req orchestrator.Request) *models.SessionResult {
		res := okResult(cycle, req)
		res.Findings = append(res.Findings, models.Finding{
			Title: "old", SubtaskID: 0, Status: models.FindingStatusObjectiveReached,
		})
		return res
	}
	r := &scriptedRunner{script: []func(int, orchestrator.Request) *models.SessionResult{stale}}
	loop, _ := newLoop(r)

	loop.RunMission(context.Background(), MissionRequest{Request: "x", MaxCycles: 2})

	assert.Len(t, r.reqs, 2)
}

func TestRunMission_StopsOnBlockedOrError(t *testing.T) {
	for _, status := range []models.ResultStatus{models.ResultStatusBlocked, models.ResultStatusError} {
		t.Run(string(status), func(t *testing.T) {
			r := &scriptedRunner{script: []func(int, orchestrator.Request) *models.SessionResult{statusResult(status)}}
			loop, rec := newLoop(r)

			res := loop.RunMission(context.Background(), MissionRequest{Request: "x", MaxCycles: 4})

			assert.Len(t, r.reqs, 1)
			assert.Equal(t, status, res.Status)
			assert.Empty(t, rec.calls)
		})
	}
}

func TestRunMission_Verifier(t *testing.T) {
	tests := []struct {
		name      string
		verdict   bool
		err       error
		wantCalls int
	}{
		{"confirmed ends mission", true, nil, 1},
		{"rejected continues", false, nil, 3},
		{"error continues", false, errors.New("provider down"), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &scriptedRunner{script: []func(int, orchestrator.Request) *models.SessionResult{reachedResult}}
			verifier := VerifierFunc(func(context.Context, string, *models.SessionResult) (bool, error) {
				return tt.verdict, tt.err
			})
			loop, _ := newLoop(r, WithVerifier(verifier))

			loop.RunMission(context.Background(), MissionRequest{Request: "x", MaxCycles: 3})

			assert.Len(t, r.reqs, tt.wantCalls)
		})
	}
}

type stopAfter struct {
	checks, after int
}

func (s *stopAfter) ShouldStop() bool {
	s.checks++
	return s.checks >= s.after
}

func TestRunMission_StopSignalBetweenCycles(t *testing.T) {
	r := &scriptedRunner{script: []func(int, orchestrator.Request) *models.SessionResult{okResult}}
	loop, _ := newLoop(r, WithStopper(&stopAfter{after: 2}))

	loop.RunMission(context.Background(), MissionRequest{Request: "x", Unbounded: true})

	assert.Len(t, r.reqs, 2)
}

func TestRunMission_CancelledBetweenCycles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := func(cycle int, req orchestrator.Request) *models.SessionResult {
		cancel()
		return okResult(cycle, req)
	}
	r := &scriptedRunner{script: []func(int, orchestrator.Request) *models.SessionResult{first}}
	loop, _ := newLoop(r)

	res := loop.RunMission(ctx, MissionRequest{Request: "x", MaxCycles: 5})

	assert.Len(t, r.reqs, 1)
	assert.Equal(t, models.ResultStatusOK, res.Status)
}

func TestRunMission_EmitsCycleEvents(t *testing.T) {
	var mu sync.Mutex
	var kinds []progress.Kind
	sink := progress.SinkFunc(func(ev progress.Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})
	r := &scriptedRunner{script: []func(int, orchestrator.Request) *models.SessionResult{okResult, reachedResult}}
	loop, _ := newLoop(r, WithProgress(sink))

	loop.RunMission(context.Background(), MissionRequest{Request: "x", MaxCycles: 3, SessionID: "given"})

	assert.Equal(t, []progress.Kind{
		progress.KindCycleStarted, progress.KindCycleDone,
		progress.KindCycleStarted, progress.KindCycleDone,
		progress.KindMissionDone,
	}, kinds)
	assert.Equal(t, "given", r.reqs[0].SessionID)
}
