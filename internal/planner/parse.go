package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ShayCichocki/conduct/pkg/models"
)

var (
	// ErrNoPlan is returned when a response contains no usable subtasks.
	ErrNoPlan = errors.New("no subtasks in planner response")

	thoughtBlock = regexp.MustCompile(`(?is)<(?:thought|thinking)>.*?</(?:thought|thinking)>`)
)

// flexID accepts ids written as numbers or numeric strings. Anything else
// leaves the id unset so normalization can assign one.
type flexID struct {
	value int
	set   bool
}

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if n, err := strconv.Atoi(s); err == nil {
		f.value, f.set = n, true
		return nil
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil && x == float64(int(x)) {
		f.value, f.set = int(x), true
	}
	return nil
}

// rawSubtask is one plan entry as the model wrote it.
type rawSubtask struct {
	ID            flexID   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	TaskType      string   `json:"task_type"`
	RequiredTools []string `json:"required_tools"`
	RequiresAuth  bool     `json:"requires_auth"`
	DependsOn     []flexID `json:"depends_on"`
}

// Clean strips reasoning blocks, "thought:" lines and code fences from a response.
func Clean(response string) string {
	cleaned := thoughtBlock.ReplaceAllString(response, "")

	var kept []string
	for _, line := range strings.Split(cleaned, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "thought:") {
			continue
		}
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ParseResponse extracts and normalizes a plan from a model response.
func ParseResponse(response string) ([]models.Subtask, error) {
	entries, err := parseEntries(response)
	if err != nil {
		return nil, err
	}
	return normalize(entries), nil
}

func parseEntries(response string) ([]rawSubtask, error) {
	cleaned := Clean(response)
	if cleaned == "" {
		return nil, ErrNoPlan
	}

	if entries, err := decodePlan(cleaned); err == nil {
		return nonEmpty(entries)
	}

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array found in response (%d chars): %w", len(response), ErrNoPlan)
	}
	entries, err := decodePlan(cleaned[start : end+1])
	if err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return nonEmpty(entries)
}

func decodePlan(text string) ([]rawSubtask, error) {
	var list []rawSubtask
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Subtasks []rawSubtask `json:"subtasks"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Subtasks == nil {
		return nil, ErrNoPlan
	}
	return wrapped.Subtasks, nil
}

func nonEmpty(entries []rawSubtask) ([]rawSubtask, error) {
	if len(entries) == 0 {
		return nil, ErrNoPlan
	}
	return entries, nil
}
