// Package orchestrator runs one plan, execute and report pass over a session.
//
// The Engine provides functionality for:
//   - Restricted-target gating: refusing unauthorized runs against deny-listed targets
//   - Planning: turning a request into dependency-ordered subtasks
//   - Execution: running ready subtasks in waves on a bounded worker pool
//   - Reporting: remediation, the markdown report artifact and its upload
//
// Worker failures are isolated per worker and recorded inline in the subtask
// result. Only a security block or a fatal planning or reporting failure ends
// a run early, and neither crashes the process.
//
// Example usage:
//
//	engine, err := orchestrator.New(orchestrator.RequiredConfig{
//		Planner:   planner.New(router),
//		Directory: dir,
//		Sessions:  session.New(db),
//	}, orchestrator.WithPoolSize(4))
//	result := engine.Run(ctx, orchestrator.Request{Request: "review the staging config"})
package orchestrator
