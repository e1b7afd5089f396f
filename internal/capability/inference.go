package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ShayCichocki/conduct/internal/llm"
)

// jsonFence matches fenced ```json blocks.
var jsonFence = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// InferenceWorker answers subtasks by prompting the text-generation
// collaborator with the entry's persona.
type InferenceWorker struct {
	entry     Entry
	completer llm.Completer
}

// NewInferenceWorker creates an inference worker for e.
func NewInferenceWorker(e Entry, c llm.Completer) *InferenceWorker {
	return &InferenceWorker{entry: e.clone(), completer: c}
}

// ID returns the capability id.
func (w *InferenceWorker) ID() string { return w.entry.ID }

// Execute prompts the collaborator and extracts structured findings from the answer.
func (w *InferenceWorker) Execute(ctx context.Context, a Assignment) (*Output, error) {
	category := a.Subtask.TaskType
	if category == "" && len(w.entry.Categories) > 0 {
		category = w.entry.Categories[0]
	}

	answer, err := w.completer.Complete(ctx, []llm.Message{
		llm.System(w.systemPrompt()),
		llm.User(BuildPrompt(a)),
	}, llm.Options{TaskCategory: category, Temperature: 0.4, MaxTokens: 2048})
	if err != nil {
		return nil, fmt.Errorf("%s inference: %w", w.entry.ID, err)
	}

	return ParseOutput(answer), nil
}

func (w *InferenceWorker) systemPrompt() string {
	persona := w.entry.Persona
	if persona == "" {
		persona = fmt.Sprintf("You are %s. %s", nameOr(w.entry), w.entry.Description)
	}
	return persona + "\n\n" + outputContract
}

func nameOr(e Entry) string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

const outputContract = `Answer the subtask directly. If you discover issues worth tracking, end your
answer with a fenced json block of the form:
` + "```json" + `
{"findings": [{"title": "...", "severity": "info|low|medium|high|critical", "description": "..."}],
 "knowledge": ["short reusable fact"]}
` + "```" + `
Set "status": "objective_reached" on a finding only when the overall objective is fully met.`

// BuildPrompt renders an assignment as a user prompt.
func BuildPrompt(a Assignment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n", a.Request)
	if a.Target != "" {
		fmt.Fprintf(&b, "Target: %s\n", a.Target)
	}
	fmt.Fprintf(&b, "\nSubtask %d: %s\n%s\n", a.Subtask.ID, a.Subtask.Title, a.Subtask.Description)
	if a.Summary != "" {
		fmt.Fprintf(&b, "\nSession state:\n%s\n", a.Summary)
	}
	if len(a.PriorResults) > 0 {
		b.WriteString("\nResults of prerequisite subtasks:\n")
		for _, r := range a.PriorResults {
			fmt.Fprintf(&b, "%s\n", r)
		}
	}
	return b.String()
}

// ParseOutput splits an answer into text and the optional structured block.
// A block that fails to decode is left in the text.
func ParseOutput(answer string) *Output {
	out := &Output{Text: strings.TrimSpace(answer)}

	matches := jsonFence.FindAllStringSubmatchIndex(answer, -1)
	if len(matches) == 0 {
		return out
	}
	last := matches[len(matches)-1]
	block := answer[last[2]:last[3]]

	var structured struct {
		Findings  json.RawMessage `json:"findings"`
		Knowledge []string        `json:"knowledge"`
	}
	if err := json.Unmarshal([]byte(block), &structured); err != nil {
		return out
	}
	if len(structured.Findings) > 0 {
		if err := json.Unmarshal(structured.Findings, &out.Findings); err != nil {
			return out
		}
	}
	out.Knowledge = structured.Knowledge
	out.Text = strings.TrimSpace(answer[:last[0]] + answer[last[1]:])
	return out
}
