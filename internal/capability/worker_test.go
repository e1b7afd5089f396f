package capability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conduct/internal/llm"
	"github.com/ShayCichocki/conduct/pkg/models"
)

func TestRemoteWorker_Execute(t *testing.T) {
	var got Assignment
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "scanner", r.Header.Get("X-Conduct-Capability"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Output{
			Text:     "scanned",
			Findings: []models.Finding{{Title: "TLS 1.0 enabled", Severity: models.SeverityMedium}},
		})
	}))
	defer srv.Close()

	w := NewRemoteWorker("scanner", srv.URL, srv.Client())
	out, err := w.Execute(context.Background(), Assignment{
		SessionID: "s1",
		Subtask:   models.Subtask{ID: 2, Title: "check tls"},
	})
	require.NoError(t, err)

	assert.Equal(t, "scanned", out.Text)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, models.SeverityMedium, out.Findings[0].Severity)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, 2, got.Subtask.ID)
}

func TestRemoteWorker_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "scanner offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRemoteWorker("scanner", srv.URL, nil).Execute(context.Background(), Assignment{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "scanner offline")
}

func TestInferenceWorker_Execute(t *testing.T) {
	var gotMessages []llm.Message
	var gotOpts llm.Options
	completer := llm.CompleterFunc(func(_ context.Context, msgs []llm.Message, opts llm.Options) (string, error) {
		gotMessages, gotOpts = msgs, opts
		return "Looks fine.\n```json\n{\"findings\": [{\"title\": \"Debug mode on\", \"severity\": \"high\"}], \"knowledge\": [\"uses django\"]}\n```", nil
	})

	w := NewInferenceWorker(Entry{ID: "analyst", Name: "Analyst", Categories: []string{"analysis"}}, completer)
	out, err := w.Execute(context.Background(), Assignment{
		Request: "review settings",
		Subtask: models.Subtask{ID: 1, Title: "Review", TaskType: "configuration_review"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Looks fine.", out.Text)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "Debug mode on", out.Findings[0].Title)
	assert.Equal(t, []string{"uses django"}, out.Knowledge)
	assert.Equal(t, "configuration_review", gotOpts.TaskCategory)
	require.Len(t, gotMessages, 2)
	assert.Equal(t, llm.RoleSystem, gotMessages[0].Role)
	assert.Contains(t, gotMessages[1].Content, "Subtask 1: Review")
}

func TestInferenceWorker_CompleterError(t *testing.T) {
	completer := llm.CompleterFunc(func(context.Context, []llm.Message, llm.Options) (string, error) {
		return "", errors.New("rate limited")
	})
	_, err := NewInferenceWorker(Entry{ID: "analyst"}, completer).Execute(context.Background(), Assignment{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name         string
		answer       string
		wantText     string
		wantFindings int
	}{
		{"plain text", "just text", "just text", 0},
		{"bad json stays in text", "x\n```json\n{not json}\n```", "x\n```json\n{not json}\n```", 0},
		{"uses last block", "a\n```json\n{\"findings\": []}\n```\nb\n```json\n{\"findings\": [{\"title\": \"t\"}]}\n```", "a\n```json\n{\"findings\": []}\n```\nb", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ParseOutput(tt.answer)
			assert.Equal(t, tt.wantText, out.Text)
			assert.Len(t, out.Findings, tt.wantFindings)
		})
	}
}

func TestScopeMapper(t *testing.T) {
	out, err := ScopeMapper(context.Background(), Assignment{
		Target:  "shop.example.com",
		Request: "Audit https://shop.example.com/login and 10.0.0.0/24, see notes.md",
	})
	require.NoError(t, err)

	assert.Contains(t, out.Text, "host:shop.example.com")
	assert.Contains(t, out.Text, "url:https://shop.example.com/login")
	assert.Contains(t, out.Text, "ip:10.0.0.0/24")
	assert.NotContains(t, out.Text, "notes.md")
	require.Len(t, out.Knowledge, 1)
	assert.True(t, strings.HasPrefix(out.Knowledge[0], "scope: "))
}

func TestScopeMapper_Empty(t *testing.T) {
	out, err := ScopeMapper(context.Background(), Assignment{Request: "write a haiku"})
	require.NoError(t, err)
	assert.Empty(t, out.Knowledge)
}

func TestFindingsDigest(t *testing.T) {
	out, err := FindingsDigest(context.Background(), Assignment{
		PriorResults: []string{"[research_agent]: first line\nsecond line", strings.Repeat("x", 300)},
	})
	require.NoError(t, err)

	assert.Contains(t, out.Text, "Digest of 2 prerequisite results")
	assert.Contains(t, out.Text, "- [research_agent]: first line")
	assert.NotContains(t, out.Text, "second line")
	assert.Contains(t, out.Text, "...")
}

// memBoard is a minimal Board keeping list topics as JSON-ready slices.
type memBoard struct {
	topics map[string][]any
}

func (m *memBoard) Post(topic string, data any) error {
	if m.topics == nil {
		m.topics = map[string][]any{}
	}
	m.topics[topic] = append(m.topics[topic], data)
	return nil
}

func (m *memBoard) DecodeTopic(topic string, v any) error {
	items, ok := m.topics[topic]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func TestFindingsDigest_ReadsBoard(t *testing.T) {
	board := &memBoard{}
	require.NoError(t, board.Post(TopicFindings, models.Finding{Title: "Weak TLS", Severity: models.SeverityHigh}))
	require.NoError(t, board.Post(TopicFindings, models.Finding{Title: "Banner leak", Severity: models.SeverityLow}))
	require.NoError(t, board.Post(TopicFindings, models.Finding{Title: "Verbose errors", Severity: models.SeverityLow}))

	out, err := FindingsDigest(context.Background(), Assignment{Board: board})
	require.NoError(t, err)

	assert.Contains(t, out.Text, "Findings on the board: 3 (1 high, 2 low)")
	assert.Contains(t, out.Text, "- [high] Weak TLS")
	assert.NotContains(t, out.Text, "Banner leak")
}

func TestFindingsDigest_ClipsOnRuneBoundary(t *testing.T) {
	out, err := FindingsDigest(context.Background(), Assignment{
		PriorResults: []string{strings.Repeat("é", 200)},
	})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(out.Text))
	assert.Contains(t, out.Text, strings.Repeat("é", 157)+"...")
}

func TestScopeMapper_PostsScope(t *testing.T) {
	board := &memBoard{}
	_, err := ScopeMapper(context.Background(), Assignment{Target: "https://app.example.com", Board: board})
	require.NoError(t, err)

	var scope []string
	require.NoError(t, board.DecodeTopic(TopicScope, &scope))
	assert.Equal(t, []string{"url:https://app.example.com"}, scope)
}
