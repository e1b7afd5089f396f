// Package progress carries lifecycle events from the engine and mission loop
// to whoever is watching: logs, a terminal feed, or tests.
package progress

import "time"

// Kind is the type of a progress event.
type Kind string

const (
	KindSessionOpened     Kind = "session_opened"
	KindSecurityBlock     Kind = "security_block"
	KindPlanReady         Kind = "plan_ready"
	KindSubtaskStarted    Kind = "subtask_started"
	KindSubtaskDone       Kind = "subtask_done"
	KindSubtaskFailed     Kind = "subtask_failed"
	KindSubtaskSkipped    Kind = "subtask_skipped"
	KindWorkerError       Kind = "worker_error"
	KindInferenceFallback Kind = "inference_fallback"
	KindRemediation       Kind = "remediation"
	KindReportWritten     Kind = "report_written"
	KindUpload            Kind = "upload"
	KindSessionDone       Kind = "session_done"
	KindSessionError      Kind = "session_error"
	KindCycleStarted      Kind = "cycle_started"
	KindCycleDone         Kind = "cycle_done"
	KindMissionDone       Kind = "mission_done"
)

// NoSubtask is the SubtaskID of events not tied to a subtask.
const NoSubtask = -1

// Event is one progress update.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	// Source names the emitting stage, e.g. "planner" or a worker ID.
	Source    string `json:"source"`
	Message   string `json:"message"`
	Kind      Kind   `json:"kind"`
	SessionID string `json:"session_id"`
	SubtaskID int    `json:"subtask_id"`
}
