// Package selector assigns capabilities to subtasks.
//
// Precedence is fixed: keyword rules first, then the planner's
// required_tools hints, then the top capabilities declared for the subtask's
// category. A rule keyword in a title beats any keyword in a description.
package selector

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/pkg/models"
)

// categoryLimit is how many category candidates are selected.
const categoryLimit = 3

// Directory is the part of the capability directory the selector reads.
type Directory interface {
	Has(id string) bool
	ForCategory(category string) []string
}

// Selector picks capability IDs for subtasks. It is deterministic and
// holds no mutable state.
type Selector struct {
	dir    Directory
	rules  []Rule
	logger *zap.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithRules replaces the default rules.
func WithRules(rules []Rule) Option {
	return func(s *Selector) { s.rules = rules }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a selector over dir.
func New(dir Directory, opts ...Option) *Selector {
	s := &Selector{dir: dir, rules: DefaultRules(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the capability IDs for a subtask. The result may be empty.
func (s *Selector) Select(st models.Subtask) []string {
	selected, via := s.selectWithReason(st)
	s.logger.Debug("capabilities selected",
		zap.Int("subtask", st.ID),
		zap.String("via", via),
		zap.Strings("capabilities", selected))
	return selected
}

// SelectForPlan selects capabilities for every subtask, keyed by subtask id.
func (s *Selector) SelectForPlan(subtasks []models.Subtask) map[int][]string {
	out := make(map[int][]string, len(subtasks))
	for _, st := range subtasks {
		out[st.ID] = s.Select(st)
	}
	return out
}

func (s *Selector) selectWithReason(st models.Subtask) ([]string, string) {
	// The title is checked against every rule before the description is
	// checked against any.
	for _, field := range []string{st.Title, st.Description} {
		text := strings.ToLower(field)
		if text == "" {
			continue
		}
		for _, r := range s.rules {
			if !matches(text, r.Keywords) {
				continue
			}
			if caps := s.present(r.Capabilities); len(caps) > 0 {
				return caps, "rule:" + r.Name
			}
		}
	}

	if hints := s.present(st.RequiredTools); len(hints) > 0 {
		return hints, "hints"
	}

	category := st.TaskType
	if category == "" {
		category = models.TaskTypeGeneral
	}
	candidates := s.dir.ForCategory(category)
	if len(candidates) > categoryLimit {
		candidates = candidates[:categoryLimit]
	}
	return slices.Clone(candidates), "category:" + category
}

// present filters ids to those in the directory, keeping order and dropping duplicates.
func (s *Selector) present(ids []string) []string {
	var out []string
	for _, id := range ids {
		if s.dir.Has(id) && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func matches(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
