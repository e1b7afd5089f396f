// Package tui provides the live progress feed shown by `conduct run --tui`
// and `conduct mission --tui`.
//
// The feed is read-only. It renders the session header, subtask counters,
// and a scrolling activity log built from progress events. Users can only
// scroll and quit with 'q' or Ctrl+C.
//
// Usage:
//
//	sink := progress.NewChannelSink(256, logger)
//	program, _ := tui.NewFeedProgram()
//	go tui.Forward(program, sink.Events())
//
//	res := engine.Run(ctx, req) // engine built WithProgress(sink)
//	sink.Close()
//	program.Send(tui.DoneMsg{Result: res})
package tui
