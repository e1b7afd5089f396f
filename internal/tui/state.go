package tui

import (
	"github.com/ShayCichocki/conduct/internal/progress"
)

// RunState aggregates progress events into the counters shown in the header.
type RunState struct {
	SessionID string
	Cycle     int
	Phase     string
	Started   int
	Done      int
	Failed    int
	Skipped   int
	Errors    int
	Blocked   bool
	// Running maps subtask id to its start message.
	Running map[int]string
}

// Apply folds one event into the state.
func (s *RunState) Apply(ev progress.Event) {
	if s.Running == nil {
		s.Running = make(map[int]string)
	}
	if ev.SessionID != "" {
		s.SessionID = ev.SessionID
	}

	switch ev.Kind {
	case progress.KindSessionOpened:
		s.Phase = "starting"
	case progress.KindSecurityBlock:
		s.Blocked = true
		s.Phase = "blocked"
	case progress.KindPlanReady:
		s.Phase = "planning"
	case progress.KindSubtaskStarted:
		s.Phase = "executing"
		s.Started++
		s.Running[ev.SubtaskID] = ev.Message
	case progress.KindSubtaskDone:
		s.Done++
		delete(s.Running, ev.SubtaskID)
	case progress.KindSubtaskFailed:
		s.Failed++
		delete(s.Running, ev.SubtaskID)
	case progress.KindSubtaskSkipped:
		s.Skipped++
	case progress.KindWorkerError:
		s.Errors++
	case progress.KindRemediation, progress.KindReportWritten, progress.KindUpload:
		s.Phase = "reporting"
	case progress.KindSessionDone:
		s.Phase = "done"
	case progress.KindSessionError:
		s.Phase = "error"
	case progress.KindCycleStarted:
		s.Cycle++
	case progress.KindMissionDone:
		s.Phase = "mission done"
	}
}
