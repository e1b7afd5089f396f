package capability

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/conduct/pkg/models"
)

// Blackboard topics shared by the engine and workers.
const (
	TopicFindings  = "findings"
	TopicKnowledge = "knowledge"
	TopicScope     = "scope"
)

// Board is the shared blackboard as a worker sees it. Posts are visible to
// every later subtask of the process, not only the current session.
type Board interface {
	Post(topic string, data any) error
	DecodeTopic(topic string, v any) error
}

// post writes to the assignment's board when one is attached.
func (a Assignment) post(topic string, data any) error {
	if a.Board == nil {
		return nil
	}
	return a.Board.Post(topic, data)
}

// boardFindings returns every finding posted so far, or nil without a board.
func (a Assignment) boardFindings() ([]models.Finding, error) {
	if a.Board == nil {
		return nil, nil
	}
	var out []models.Finding
	if err := a.Board.DecodeTopic(TopicFindings, &out); err != nil {
		return nil, fmt.Errorf("read %s topic: %w", TopicFindings, err)
	}
	return out, nil
}

// severityTally renders counts per severity, highest first, e.g. "1 critical, 2 low".
func severityTally(findings []models.Finding) string {
	counts := make(map[models.Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	order := []models.Severity{
		models.SeverityCritical, models.SeverityHigh, models.SeverityMedium,
		models.SeverityLow, models.SeverityInfo,
	}
	var parts []string
	for _, sev := range order {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	return strings.Join(parts, ", ")
}

// clip shortens s to at most n runes, marking the cut with "...".
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
