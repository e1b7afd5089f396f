package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conduct/internal/llm"
	"github.com/ShayCichocki/conduct/pkg/models"
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func sampleSession() *models.Session {
	s := models.NewSession("abc123", fixedNow)
	s.Request = "review\nthe staging cluster"
	s.Target = "staging.example.com"
	s.Subtasks = []models.Subtask{
		{ID: 0, Title: "Inventory | hosts", TaskType: models.TaskTypeReconnaissance, Status: models.SubtaskStatusDone, Workers: []string{"scope_mapper"}},
		{ID: 1, Title: "Report", TaskType: models.TaskTypeReportWriting, Status: models.SubtaskStatusError},
	}
	s.Findings = []models.Finding{
		{Title: "Verbose errors", Severity: models.SeverityLow},
		{Title: "Open admin port", Severity: models.SeverityCritical, WorkerID: "analyst", SubtaskID: 0, Remediation: "### Remediation Strategy\nclose it"},
		{Title: "Missing HSTS", Severity: models.SeverityLow},
	}
	s.Knowledge = []string{"scope: staging.example.com"}
	return s
}

func TestRender(t *testing.T) {
	out := Render(sampleSession(), "All good.", fixedNow)

	assert.Contains(t, out, "# Report: abc123")
	assert.Contains(t, out, "- **Request:** review the staging cluster")
	assert.Contains(t, out, "- **Generated:** 2026-05-04T10:30:00Z")
	assert.Contains(t, out, "## Executive Summary\n\nAll good.")
	assert.Contains(t, out, `| 0 | Inventory \| hosts | reconnaissance | done | scope_mapper |`)
	assert.Contains(t, out, "close it")
	assert.Contains(t, out, "- scope: staging.example.com")

	critical := strings.Index(out, "[CRITICAL] Open admin port")
	verbose := strings.Index(out, "[LOW] Verbose errors")
	hsts := strings.Index(out, "[LOW] Missing HSTS")
	require.True(t, critical >= 0 && verbose >= 0 && hsts >= 0, out)
	assert.Less(t, critical, verbose)
	assert.Less(t, verbose, hsts, "insertion order preserved within a severity")
}

func TestRender_Empty(t *testing.T) {
	out := Render(models.NewSession("empty", fixedNow), PlainSummary(models.NewSession("empty", fixedNow)), fixedNow)
	assert.Contains(t, out, "_No subtasks were planned._")
	assert.Contains(t, out, "_No findings were recorded._")
	assert.NotContains(t, out, "## Knowledge")
}

func TestPlainSummary(t *testing.T) {
	got := PlainSummary(sampleSession())
	assert.Equal(t, "1 of 2 subtasks completed. 3 findings (1 critical, 2 low), 1 knowledge items.", got)
}

func TestBuild_GeneratedSummary(t *testing.T) {
	var opts llm.Options
	c := llm.CompleterFunc(func(_ context.Context, _ []llm.Message, o llm.Options) (string, error) {
		opts = o
		return "  Generated overview.  ", nil
	})

	out := NewBuilder(WithCompleter(c), WithClock(func() time.Time { return fixedNow })).Build(context.Background(), sampleSession())
	assert.Contains(t, out, "## Executive Summary\n\nGenerated overview.\n")
	assert.Equal(t, models.TaskTypeReportWriting, opts.TaskCategory)
}

func TestBuild_SummaryFailureFallsBack(t *testing.T) {
	c := llm.CompleterFunc(func(context.Context, []llm.Message, llm.Options) (string, error) {
		return "", errors.New("rate limited")
	})
	sess := sampleSession()
	out := NewBuilder(WithCompleter(c)).Build(context.Background(), sess)
	assert.Contains(t, out, PlainSummary(sess))
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	content := "# Report\n"

	art, err := Write(dir, "s1", content, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "report_s1.md", art.Name)
	assert.Equal(t, filepath.Join(dir, "report_s1.md"), art.Path)
	assert.Equal(t, ArtifactKind, art.Kind)
	assert.Len(t, art.Digest, 64)

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	again, err := Digest([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, art.Digest, again)

	other, _ := Digest([]byte("# Report 2\n"))
	assert.NotEqual(t, art.Digest, other)
}
