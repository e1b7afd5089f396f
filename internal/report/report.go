// Package report renders a session into a markdown report and writes it as
// an artifact.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/internal/llm"
	"github.com/ShayCichocki/conduct/pkg/models"
)

const (
	summaryTemperature = 0.2
	summaryMaxTokens   = 1024
)

const summarySystemPrompt = `You write the executive summary of an engagement report.
Summarize the objective, what was done, and the most important findings in at most
two short paragraphs. Do not invent findings that are not listed.`

// Builder produces report text for a session.
type Builder struct {
	completer llm.Completer
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithCompleter enables the generated executive summary.
func WithCompleter(c llm.Completer) Option {
	return func(b *Builder) { b.completer = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a report builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders the report. When a completer is configured the executive
// summary is generated; a failed generation falls back to the plain summary.
func (b *Builder) Build(ctx context.Context, sess *models.Session) string {
	summary := PlainSummary(sess)
	if b.completer != nil {
		generated, err := b.completer.Complete(ctx, []llm.Message{
			llm.System(summarySystemPrompt),
			llm.User(summaryInput(sess)),
		}, llm.Options{
			TaskCategory: models.TaskTypeReportWriting,
			Temperature:  summaryTemperature,
			MaxTokens:    summaryMaxTokens,
		})
		switch {
		case err != nil:
			b.logger.Warn("executive summary generation failed", zap.String("session", sess.ID), zap.Error(err))
		case strings.TrimSpace(generated) != "":
			summary = strings.TrimSpace(generated)
		}
	}
	return Render(sess, summary, b.now())
}

// PlainSummary is the summary used when none is generated.
func PlainSummary(sess *models.Session) string {
	counts := map[models.Severity]int{}
	for _, f := range sess.Findings {
		counts[f.Severity]++
	}
	var parts []string
	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow, models.SeverityInfo} {
		if counts[sev] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[sev], sev))
		}
	}
	breakdown := ""
	if len(parts) > 0 {
		breakdown = " (" + strings.Join(parts, ", ") + ")"
	}
	return fmt.Sprintf("%d of %d subtasks completed. %d findings%s, %d knowledge items.",
		sess.CountDone(), len(sess.Subtasks), len(sess.Findings), breakdown, len(sess.Knowledge))
}

func summaryInput(sess *models.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n", sess.Request)
	if sess.Target != "" {
		fmt.Fprintf(&b, "Target: %s\n", sess.Target)
	}
	b.WriteString("\nSubtasks:\n")
	for _, st := range sess.Subtasks {
		fmt.Fprintf(&b, "- [%s] %s\n", st.Status, st.Title)
	}
	b.WriteString("\nFindings:\n")
	for _, f := range sortedFindings(sess.Findings) {
		fmt.Fprintf(&b, "- [%s] %s\n", f.Severity, f.Title)
	}
	return b.String()
}

// Render produces the markdown report.
func Render(sess *models.Session, summary string, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Report: %s\n\n", sess.ID)
	fmt.Fprintf(&b, "- **Request:** %s\n", oneLine(sess.Request))
	if sess.Target != "" {
		fmt.Fprintf(&b, "- **Target:** %s\n", sess.Target)
	}
	fmt.Fprintf(&b, "- **Cycle:** %d\n", sess.Cycle)
	fmt.Fprintf(&b, "- **Generated:** %s\n\n", now.UTC().Format(time.RFC3339))

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(summary)
	b.WriteString("\n\n")

	b.WriteString("## Subtasks\n\n")
	if len(sess.Subtasks) == 0 {
		b.WriteString("_No subtasks were planned._\n\n")
	} else {
		b.WriteString("| ID | Title | Type | Status | Workers |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, st := range sess.Subtasks {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
				st.ID, cell(st.Title), st.TaskType, st.Status, cell(strings.Join(st.Workers, ", ")))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Findings\n\n")
	if len(sess.Findings) == 0 {
		b.WriteString("_No findings were recorded._\n\n")
	}
	for _, f := range sortedFindings(sess.Findings) {
		fmt.Fprintf(&b, "### [%s] %s\n\n", strings.ToUpper(string(f.Severity)), f.Title)
		if f.WorkerID != "" {
			fmt.Fprintf(&b, "_Reported by %s during subtask %d._\n\n", f.WorkerID, f.SubtaskID)
		}
		if f.Description != "" {
			b.WriteString(f.Description)
			b.WriteString("\n\n")
		}
		if f.Remediation != "" {
			b.WriteString(f.Remediation)
			b.WriteString("\n\n")
		}
	}

	if len(sess.Knowledge) > 0 {
		b.WriteString("## Knowledge\n\n")
		for _, k := range sess.Knowledge {
			fmt.Fprintf(&b, "- %s\n", oneLine(k))
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// sortedFindings orders findings by severity, most severe first, keeping
// insertion order within a severity.
func sortedFindings(findings []models.Finding) []models.Finding {
	out := append([]models.Finding(nil), findings...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", "\\|")
}
