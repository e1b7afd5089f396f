// Package planner turns a request into a dependency-ordered list of subtasks.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/internal/graph"
	"github.com/ShayCichocki/conduct/internal/llm"
	"github.com/ShayCichocki/conduct/pkg/models"
)

const (
	planTemperature = 0.3
	planMaxTokens   = 4096
	// maxPromptFindings bounds how many prior findings are embedded in the prompt.
	maxPromptFindings = 25
)

// Result is a plan along with how it was obtained.
type Result struct {
	Subtasks []models.Subtask
	// Fallback is true when the model produced nothing usable and the
	// built-in two-step plan was returned instead.
	Fallback bool
	// Err is the reason the fallback was used, if any.
	Err error
}

// Planner asks a completer for a plan and repairs whatever comes back.
type Planner struct {
	completer llm.Completer
	logger    *zap.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a planner over the given completer.
func New(completer llm.Completer, opts ...Option) *Planner {
	p := &Planner{completer: completer, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan returns a non-empty plan for request. It never fails; when the model
// output is unusable the fallback plan is returned.
func (p *Planner) Plan(ctx context.Context, request, summary string, prior []models.Finding) []models.Subtask {
	return p.PlanDetailed(ctx, request, summary, prior).Subtasks
}

// PlanDetailed is Plan that also reports whether the fallback was used.
func (p *Planner) PlanDetailed(ctx context.Context, request, summary string, prior []models.Finding) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("planner panicked", zap.Any("panic", r))
			res = Result{Subtasks: FallbackPlan(request), Fallback: true, Err: fmt.Errorf("planner panic: %v", r)}
		}
	}()

	if p.completer == nil {
		return p.fallback(request, errors.New("no completer configured"))
	}

	messages := []llm.Message{
		llm.System(systemPrompt),
		llm.User(BuildPrompt(request, summary, prior)),
	}
	answer, err := p.completer.Complete(ctx, messages, llm.Options{
		TaskCategory: models.TaskTypePlanning,
		Temperature:  planTemperature,
		MaxTokens:    planMaxTokens,
	})
	if err != nil {
		return p.fallback(request, fmt.Errorf("complete plan: %w", err))
	}
	p.logger.Debug("planner raw response", zap.String("head", head(answer, 200)))

	subtasks, err := ParseResponse(answer)
	if err != nil {
		return p.fallback(request, err)
	}
	p.logger.Info("plan ready", zap.Int("subtasks", len(subtasks)))
	return Result{Subtasks: subtasks}
}

func (p *Planner) fallback(request string, err error) Result {
	p.logger.Warn("using fallback plan", zap.Error(err))
	return Result{Subtasks: FallbackPlan(request), Fallback: true, Err: err}
}

// BuildPrompt renders the user prompt for a planning call.
func BuildPrompt(request, summary string, prior []models.Finding) string {
	if strings.TrimSpace(summary) == "" {
		summary = "None"
	}
	section := ""
	if len(prior) > 0 {
		recent := prior
		if len(recent) > maxPromptFindings {
			recent = recent[len(recent)-maxPromptFindings:]
		}
		type promptFinding struct {
			Title    string          `json:"title"`
			Severity models.Severity `json:"severity"`
			Status   string          `json:"status,omitempty"`
			Worker   string          `json:"worker,omitempty"`
		}
		view := make([]promptFinding, len(recent))
		for i, f := range recent {
			view[i] = promptFinding{Title: f.Title, Severity: f.Severity, Status: f.Status, Worker: f.WorkerID}
		}
		blob, _ := json.MarshalIndent(view, "", "  ")
		section = fmt.Sprintf(findingsSection, blob)
	}
	return fmt.Sprintf(userPromptTemplate, request, summary, section)
}

// FallbackPlan is the two-step plan used when no model plan is available.
func FallbackPlan(request string) []models.Subtask {
	return []models.Subtask{
		{
			ID:            0,
			Title:         "Research & Analysis",
			Description:   "Research: " + request,
			TaskType:      models.TaskTypeResearch,
			RequiredTools: []string{"research_agent", "web_search"},
			DependsOn:     []int{},
			Status:        models.SubtaskStatusPending,
		},
		{
			ID:            1,
			Title:         "Execute & Report",
			Description:   "Execute and generate report",
			TaskType:      models.TaskTypeReportWriting,
			RequiredTools: []string{},
			DependsOn:     []int{0},
			Status:        models.SubtaskStatusPending,
		},
	}
}

// normalize assigns ids, filters dependencies, breaks cycles and fills defaults.
func normalize(entries []rawSubtask) []models.Subtask {
	out := make([]models.Subtask, len(entries))
	used := make(map[int]bool, len(entries))
	assigned := make([]bool, len(entries))

	// First pass: keep every valid, first-seen declared id.
	for i, e := range entries {
		if e.ID.set && e.ID.value >= 0 && !used[e.ID.value] {
			out[i].ID = e.ID.value
			used[e.ID.value] = true
			assigned[i] = true
		}
	}
	// Second pass: missing or duplicate ids take their index, or the next free id.
	next := 0
	for i := range entries {
		if assigned[i] {
			continue
		}
		id := i
		if used[id] {
			for used[next] {
				next++
			}
			id = next
		}
		out[i].ID = id
		used[id] = true
	}

	for i, e := range entries {
		st := &out[i]
		st.Title = strings.TrimSpace(e.Title)
		st.Description = strings.TrimSpace(e.Description)
		if st.Title == "" {
			st.Title = head(st.Description, 60)
		}
		if st.Title == "" {
			st.Title = fmt.Sprintf("Subtask %d", st.ID)
		}
		st.TaskType = strings.ToLower(strings.TrimSpace(e.TaskType))
		if st.TaskType == "" {
			st.TaskType = models.TaskTypeGeneral
		}
		st.RequiredTools = cleanTools(e.RequiredTools)
		st.RequiresAuth = e.RequiresAuth
		st.Status = models.SubtaskStatusPending

		st.DependsOn = []int{}
		for _, d := range e.DependsOn {
			if !d.set || d.value == st.ID || !used[d.value] || slices.Contains(st.DependsOn, d.value) {
				continue
			}
			st.DependsOn = append(st.DependsOn, d.value)
		}
	}

	if err := graph.New().Build(out); errors.Is(err, graph.ErrCycleDetected) {
		position := make(map[int]int, len(out))
		for i, st := range out {
			position[st.ID] = i
		}
		for i := range out {
			out[i].DependsOn = slices.DeleteFunc(out[i].DependsOn, func(d int) bool {
				return position[d] >= i
			})
		}
	}
	return out
}

func cleanTools(tools []string) []string {
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// head returns the first n runes of s.
func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
