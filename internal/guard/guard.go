// Package guard refuses to run against restricted targets unless the
// operator has authorized them.
package guard

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

// Guard checks targets against restricted keywords and host patterns.
type Guard struct {
	mu       sync.RWMutex
	keywords []string
	patterns []string
}

// fileConfig is the deny-list file layout.
type fileConfig struct {
	Restricted struct {
		Keywords []string `yaml:"keywords"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"restricted"`
}

// New creates a guard with the default deny-list.
func New() *Guard {
	return &Guard{
		keywords: append([]string{}, DefaultKeywords...),
		patterns: append([]string{}, DefaultPatterns...),
	}
}

// Restricted reports whether target is in a restricted category, with the reason.
// An empty target is never restricted.
func (g *Guard) Restricted(target string) (bool, string) {
	target = strings.TrimSpace(target)
	if target == "" {
		return false, ""
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	lower := strings.ToLower(target)
	for _, kw := range g.keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true, "target contains restricted keyword: " + kw
		}
	}

	host := hostOf(lower)
	for _, p := range g.patterns {
		if matchHostPattern(host, strings.ToLower(p)) {
			return true, "target matches restricted pattern: " + p
		}
	}
	return false, ""
}

// Allowed reports whether a run against target may proceed.
func (g *Guard) Allowed(target string, authorized bool) (bool, string) {
	restricted, reason := g.Restricted(target)
	if restricted && !authorized {
		return false, reason
	}
	return true, ""
}

// AddKeyword adds a restricted keyword.
func (g *Guard) AddKeyword(keyword string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keywords = append(g.keywords, keyword)
}

// AddPattern adds a restricted host pattern.
func (g *Guard) AddPattern(pattern string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.patterns = append(g.patterns, pattern)
}

// LoadConfig appends the keywords and patterns from a deny-list file.
func (g *Guard) LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read guard config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse guard config: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.keywords = append(g.keywords, cfg.Restricted.Keywords...)
	g.patterns = append(g.patterns, cfg.Restricted.Patterns...)
	return nil
}

// hostOf extracts the hostname from a URL, host:port or bare host string.
func hostOf(target string) string {
	if strings.Contains(target, "://") {
		if u, err := url.Parse(target); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	host := target
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}
