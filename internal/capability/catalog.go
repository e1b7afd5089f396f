package capability

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// catalogFile is the YAML layout of a capability catalog.
type catalogFile struct {
	Capabilities []Entry `yaml:"capabilities"`
}

// LoadCatalog reads entries from a YAML catalog file.
func LoadCatalog(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) ([]Entry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for _, e := range f.Capabilities {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Capabilities, nil
}

// Merge overlays extra onto base. Entries with the same id replace the base entry.
func Merge(base, extra []Entry) []Entry {
	idx := make(map[string]int, len(base))
	out := make([]Entry, 0, len(base)+len(extra))
	for _, e := range base {
		idx[e.ID] = len(out)
		out = append(out, e)
	}
	for _, e := range extra {
		if i, ok := idx[e.ID]; ok {
			out[i] = e
			continue
		}
		idx[e.ID] = len(out)
		out = append(out, e)
	}
	return out
}
