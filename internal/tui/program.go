package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/conduct/internal/progress"
)

// Sender is the part of tea.Program used to deliver messages.
type Sender interface {
	Send(msg tea.Msg)
}

// NewFeedProgram creates a new Bubbletea program for the progress feed.
func NewFeedProgram() (*tea.Program, *FeedApp) {
	app := NewFeedApp()
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Forward delivers every event from events to the program until the channel closes.
func Forward(p Sender, events <-chan progress.Event) {
	for ev := range events {
		p.Send(EventMsg{Event: ev})
	}
}
