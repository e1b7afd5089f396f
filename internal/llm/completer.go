// Package llm provides the text-generation collaborators used by the planner,
// inference workers, and the report summarizer.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty completion")

// Role identifies the author of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of an ordered prompt.
type Message struct {
	Role    Role
	Content string
}

// Options tune a single completion call.
type Options struct {
	// TaskCategory is a routing hint, e.g. "planning" or "analysis".
	TaskCategory string
	// Temperature is the sampling temperature.
	Temperature float64
	// MaxTokens caps the response length. Zero uses the provider default.
	MaxTokens int
	// Model overrides the provider's configured model.
	Model string
}

// Completer produces text for an ordered list of messages.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, messages []Message, opts Options) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	return f(ctx, messages, opts)
}

// System is shorthand for a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User is shorthand for a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// splitSystem separates system messages from the conversational turns.
func splitSystem(messages []Message) (system string, turns []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}
