package capability

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ShayCichocki/conduct/pkg/models"
)

// DefaultCatalog returns the built-in capabilities.
func DefaultCatalog() []Entry {
	return []Entry{
		{
			ID:          "research_agent",
			Name:        "Research Agent",
			Description: "Gathers background, prior art, and public documentation relevant to the objective.",
			Categories:  []string{models.TaskTypeResearch, models.TaskTypeReconnaissance},
			Mode:        ModeInferenceFallback,
			Priority:    1,
			Autonomy:    7,
		},
		{
			ID:          "analyst",
			Name:        "Analyst",
			Description: "Evaluates collected material and draws conclusions with supporting evidence.",
			Categories:  []string{models.TaskTypeAnalysis, models.TaskTypeResearch},
			Mode:        ModeInferenceFallback,
			Priority:    1,
			Autonomy:    6,
		},
		{
			ID:          "config_auditor",
			Name:        "Configuration Auditor",
			Description: "Reviews configuration and deployment descriptions for insecure defaults.",
			Categories:  []string{models.TaskTypeConfigurationReview, models.TaskTypeAnalysis},
			Mode:        ModeInferenceFallback,
			Priority:    2,
			Autonomy:    5,
		},
		{
			ID:          "code_writer",
			Name:        "Code Writer",
			Description: "Produces code, scripts, and patches that implement a described change.",
			Categories:  []string{models.TaskTypeCodeGeneration},
			Mode:        ModeInferenceFallback,
			Priority:    1,
			Autonomy:    6,
		},
		{
			ID:          "report_writer",
			Name:        "Report Writer",
			Description: "Writes clear summaries of results for a technical audience.",
			Categories:  []string{models.TaskTypeReportWriting},
			Mode:        ModeInferenceFallback,
			Priority:    1,
			Autonomy:    4,
		},
		{
			ID:          "planner_assist",
			Name:        "Planning Assistant",
			Description: "Breaks vague goals into concrete next steps.",
			Categories:  []string{models.TaskTypePlanning, models.TaskTypeGeneral},
			Mode:        ModeInferenceFallback,
			Priority:    2,
			Autonomy:    5,
		},
		{
			ID:          "scope_mapper",
			Name:        "Scope Mapper",
			Description: "Extracts hosts, URLs, addresses, and paths named in the objective.",
			Categories:  []string{models.TaskTypeReconnaissance, models.TaskTypePlanning, models.TaskTypeGeneral},
			Mode:        ModeInProcess,
			Priority:    2,
			Autonomy:    8,
		},
		{
			ID:          "findings_digest",
			Name:        "Findings Digest",
			Description: "Condenses prerequisite results into a short digest.",
			Categories:  []string{models.TaskTypeReportWriting, models.TaskTypeAnalysis},
			Mode:        ModeInProcess,
			Priority:    3,
			Autonomy:    9,
		},
	}
}

// DefaultLocal returns the in-process implementations of the built-in catalog.
func DefaultLocal() map[string]LocalFunc {
	return map[string]LocalFunc{
		"scope_mapper":    ScopeMapper,
		"findings_digest": FindingsDigest,
	}
}

var (
	urlPattern  = regexp.MustCompile(`https?://[^\s"'<>]+`)
	ipPattern   = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?:/\d{1,2})?\b`)
	hostPattern = regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}\b`)
)

// ScopeMapper lists the URLs, addresses, and hostnames named in the assignment.
func ScopeMapper(_ context.Context, a Assignment) (*Output, error) {
	text := strings.Join([]string{a.Target, a.Request, a.Subtask.Title, a.Subtask.Description}, "\n")

	var items []string
	seen := map[string]bool{}
	add := func(kind string, values []string) {
		for _, v := range values {
			v = strings.TrimRight(v, ".,;:)")
			key := kind + ":" + strings.ToLower(v)
			if seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, key)
		}
	}
	add("url", urlPattern.FindAllString(text, -1))
	add("ip", ipPattern.FindAllString(text, -1))
	// Hosts inside URLs are already listed.
	withoutURLs := urlPattern.ReplaceAllString(text, " ")
	add("host", filterHosts(hostPattern.FindAllString(withoutURLs, -1)))

	if len(items) == 0 {
		return &Output{Text: "No explicit hosts, URLs, or addresses in scope."}, nil
	}
	slices.Sort(items)

	for _, item := range items {
		if err := a.post(TopicScope, item); err != nil {
			return nil, fmt.Errorf("post scope: %w", err)
		}
	}
	return &Output{
		Text:      fmt.Sprintf("Scope (%d items):\n- %s", len(items), strings.Join(items, "\n- ")),
		Knowledge: []string{"scope: " + strings.Join(items, ", ")},
	}, nil
}

// filterHosts drops dotted tokens that are really version numbers or file names.
func filterHosts(hosts []string) []string {
	fileExt := []string{".md", ".txt", ".go", ".py", ".json", ".yaml", ".yml"}
	var out []string
	for _, h := range hosts {
		lower := strings.ToLower(h)
		skip := false
		for _, ext := range fileExt {
			if strings.HasSuffix(lower, ext) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, h)
		}
	}
	return out
}

// FindingsDigest condenses prerequisite results into one line each and
// tallies the findings already posted to the shared board.
func FindingsDigest(_ context.Context, a Assignment) (*Output, error) {
	posted, err := a.boardFindings()
	if err != nil {
		return nil, err
	}
	if len(a.PriorResults) == 0 && len(posted) == 0 {
		return &Output{Text: "No prerequisite results to digest."}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Digest of %d prerequisite results:", len(a.PriorResults))
	for _, r := range a.PriorResults {
		line := strings.TrimSpace(r)
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		fmt.Fprintf(&b, "\n- %s", clip(line, 160))
	}
	if len(posted) > 0 {
		fmt.Fprintf(&b, "\nFindings on the board: %d (%s)", len(posted), severityTally(posted))
		for _, f := range posted {
			if f.Severity.Rank() >= models.SeverityHigh.Rank() {
				fmt.Fprintf(&b, "\n- [%s] %s", f.Severity, clip(f.Title, 120))
			}
		}
	}
	return &Output{Text: b.String()}, nil
}
