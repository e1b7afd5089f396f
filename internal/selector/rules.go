package selector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule maps keywords to the capabilities that should handle matching subtasks.
type Rule struct {
	// Name identifies the rule in logs.
	Name string `yaml:"name"`
	// Keywords are matched case-insensitively as substrings.
	Keywords []string `yaml:"keywords"`
	// Capabilities are the capability IDs selected when the rule matches.
	Capabilities []string `yaml:"capabilities"`
}

// rulesFile is the on-disk layout of a rules file.
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules returns the built-in routing rules, in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "report", Keywords: []string{"report", "summary", "summarize", "write-up"}, Capabilities: []string{"report_writer"}},
		{Name: "digest", Keywords: []string{"digest", "recap"}, Capabilities: []string{"findings_digest"}},
		{Name: "scope", Keywords: []string{"scope", "inventory", "asset"}, Capabilities: []string{"scope_mapper", "research_agent"}},
		{Name: "configuration", Keywords: []string{"config", "hardening", "misconfiguration"}, Capabilities: []string{"config_auditor"}},
		{Name: "code", Keywords: []string{"code", "script", "build"}, Capabilities: []string{"code_writer"}},
		{Name: "research", Keywords: []string{"research", "paper", "literature"}, Capabilities: []string{"research_agent"}},
		{Name: "planning", Keywords: []string{"strategy", "roadmap"}, Capabilities: []string{"planner_assist"}},
	}
}

// LoadRules reads rules from a YAML file with a top-level "rules" list.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes rules from YAML.
func ParseRules(data []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	for i, r := range f.Rules {
		if len(r.Keywords) == 0 || len(r.Capabilities) == 0 {
			return nil, fmt.Errorf("rule %d (%q): keywords and capabilities are required", i, r.Name)
		}
	}
	return f.Rules, nil
}
