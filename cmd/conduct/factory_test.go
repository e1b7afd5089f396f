package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/internal/config"
	"github.com/ShayCichocki/conduct/internal/orchestrator"
	"github.com/ShayCichocki/conduct/internal/progress"
	"github.com/ShayCichocki/conduct/internal/session"
	"github.com/ShayCichocki/conduct/internal/state"
	"github.com/ShayCichocki/conduct/pkg/models"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.Default()
	c.LLM.Provider = "none"
	c.Store.Driver = "memory"
	c.Engine.ReportsDir = t.TempDir()
	return c
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name  string
		store config.StoreConfig
		check func(t *testing.T, b state.Backend)
	}{
		{
			name:  "memory",
			store: config.StoreConfig{Driver: "memory"},
			check: func(t *testing.T, b state.Backend) {
				assert.IsType(t, &state.MemoryStore{}, b)
			},
		},
		{
			name:  "files",
			store: config.StoreConfig{Driver: "files", Path: filepath.Join(dir, "files")},
			check: func(t *testing.T, b state.Backend) {
				assert.IsType(t, &state.FileStore{}, b)
			},
		},
		{
			name:  "sqlite",
			store: config.StoreConfig{Driver: "sqlite", Path: filepath.Join(dir, "conduct.db")},
			check: func(t *testing.T, b state.Backend) {
				assert.IsType(t, &state.DB{}, b)
			},
		},
		{
			name:  "mirror",
			store: config.StoreConfig{Driver: "memory", MirrorDir: filepath.Join(dir, "mirror")},
			check: func(t *testing.T, b state.Backend) {
				assert.IsType(t, &state.Multi{}, b)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := openBackend(tt.store)
			require.NoError(t, err)
			defer b.Close()
			tt.check(t, b)

			ctx := context.Background()
			require.NoError(t, b.Save(ctx, "s1", []byte(`{"session_id":"s1"}`)))
			blob, err := b.Load(ctx, "s1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"session_id":"s1"}`, string(blob))
		})
	}
}

func TestBuildCompleter(t *testing.T) {
	c := offlineConfig(t)
	got, err := buildCompleter(context.Background(), c, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, got)

	c.LLM.Provider = "openai"
	_, err = buildCompleter(context.Background(), c, zap.NewNop())
	assert.ErrorContains(t, err, "unknown llm provider")
}

func TestBuildCompleter_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	c := offlineConfig(t)
	c.LLM.Provider = config.ProviderAnthropic

	_, err := buildCompleter(context.Background(), c, zap.NewNop())
	assert.ErrorIs(t, err, config.ErrNoAPIKey)
}

func TestBuildRuntime_OfflineRun(t *testing.T) {
	c := offlineConfig(t)

	var (
		mu    sync.Mutex
		kinds []progress.Kind
	)
	sink := progress.SinkFunc(func(e progress.Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, e.Kind)
	})

	rt, err := buildRuntime(context.Background(), c, sink, zap.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	res := rt.engine.Run(context.Background(), orchestrator.Request{Request: "review the deployment checklist"})
	require.Equal(t, models.ResultStatusOK, res.Status, res.Error)
	assert.NotEmpty(t, res.Subtasks)
	assert.True(t, strings.HasPrefix(res.Report, "#"), "report should be markdown")

	require.Len(t, res.Artifacts, 1)
	_, err = os.Stat(res.Artifacts[0].Path)
	assert.NoError(t, err)

	assert.Contains(t, kinds, progress.KindPlanReady)
	assert.Contains(t, kinds, progress.KindReportWritten)

	// The session is durable in the configured backend.
	blob, err := rt.backend.Load(context.Background(), res.SessionID)
	require.NoError(t, err)
	sess, err := session.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Cycle)
}

func TestBuildRuntime_BadCatalog(t *testing.T) {
	c := offlineConfig(t)
	c.Capabilities.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := buildRuntime(context.Background(), c, progress.Nop{}, zap.NewNop())
	assert.ErrorContains(t, err, "load capability catalog")
}

func TestPrintResult(t *testing.T) {
	tests := []struct {
		name    string
		res     *models.SessionResult
		wantErr bool
		want    string
	}{
		{
			name: "ok",
			res:  &models.SessionResult{SessionID: "s1", Status: models.ResultStatusOK, Report: "# Report\n", Cycle: 1},
			want: "# Report",
		},
		{
			name:    "blocked",
			res:     &models.SessionResult{Status: models.ResultStatusBlocked, Error: "restricted"},
			wantErr: true,
			want:    "restricted",
		},
		{
			name:    "error",
			res:     &models.SessionResult{Status: models.ResultStatusError, Error: "planning failed"},
			wantErr: true,
			want:    "planning failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetOut(&buf)

			err := printResult(cmd, tt.res, false)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestDescribeSnapshot(t *testing.T) {
	sess := models.NewSession("s1", time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC))
	sess.Cycle = 2
	sess.Subtasks = []models.Subtask{
		{ID: 0, Status: models.SubtaskStatusDone},
		{ID: 1, Status: models.SubtaskStatusRunning},
	}
	blob, err := session.Encode(sess)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "s1.json")
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	line, err := describeSnapshot(path)
	require.NoError(t, err)
	assert.Contains(t, line, "cycle 2")
	assert.Contains(t, line, "1/2 done")
	assert.Contains(t, line, "running 1")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "1h30m", formatDuration(90*time.Minute))
	assert.Equal(t, "2d", formatDuration(49*time.Hour))
}

type failingFeed struct{ err error }

func (f failingFeed) Run() (tea.Model, error) { return nil, f.err }

func TestAwaitRun_FeedFailureWaitsForRun(t *testing.T) {
	resCh := make(chan *models.SessionResult, 1)
	var mu sync.Mutex
	finished := false
	go func() {
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		finished = true
		mu.Unlock()
		resCh <- &models.SessionResult{SessionID: "s1", Status: models.ResultStatusOK}
	}()

	res, err := awaitRun(failingFeed{err: errors.New("no tty")}, resCh)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "progress feed: no tty")
	assert.Nil(t, res)
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished, "awaitRun returned before the run finished")
}

func TestAwaitRun_ReturnsResult(t *testing.T) {
	resCh := make(chan *models.SessionResult, 1)
	resCh <- &models.SessionResult{SessionID: "s1", Status: models.ResultStatusOK}

	res, err := awaitRun(failingFeed{}, resCh)
	require.NoError(t, err)
	assert.Equal(t, "s1", res.SessionID)
}
