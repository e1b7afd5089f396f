package llm

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CostTier ranks models by price.
type CostTier string

const (
	CostCheap   CostTier = "cheap"
	CostMid     CostTier = "mid"
	CostPremium CostTier = "premium"
)

// allowedTiers lists the tiers a preference may use, preferred first.
func (t CostTier) allowedTiers() []CostTier {
	switch t {
	case CostCheap:
		return []CostTier{CostCheap}
	case CostPremium:
		return []CostTier{CostPremium, CostMid, CostCheap}
	default:
		return []CostTier{CostMid, CostCheap}
	}
}

// Route names a provider and model that can serve a task category.
type Route struct {
	Provider string   `yaml:"provider"`
	Model    string   `yaml:"model"`
	CostTier CostTier `yaml:"cost_tier"`
}

// RouteTable maps a task category to its candidate routes, best first.
type RouteTable map[string][]Route

// fallbackCategory is used when a category has no routes of its own.
const fallbackCategory = "analysis"

// DefaultRoutes returns the built-in routing table for the anthropic and gemini providers.
func DefaultRoutes() RouteTable {
	sonnet := Route{Provider: "anthropic", Model: "claude-sonnet-4-20250514", CostTier: CostMid}
	haiku := Route{Provider: "anthropic", Model: "claude-3-5-haiku-20241022", CostTier: CostCheap}
	opus := Route{Provider: "anthropic", Model: "claude-opus-4-1-20250805", CostTier: CostPremium}
	flash := Route{Provider: "gemini", Model: "gemini-2.5-flash", CostTier: CostCheap}
	pro := Route{Provider: "gemini", Model: "gemini-2.5-pro", CostTier: CostMid}

	return RouteTable{
		"planning":             {opus, sonnet, pro},
		"analysis":             {sonnet, pro, haiku},
		"research":             {sonnet, flash, haiku},
		"reconnaissance":       {haiku, flash},
		"code_generation":      {opus, sonnet, pro},
		"configuration_review": {sonnet, haiku},
		"report_writing":       {sonnet, flash},
		"verification":         {sonnet, pro},
		"general":              {haiku, flash, sonnet},
	}
}

// LoadRoutes reads a routing table from a YAML file.
func LoadRoutes(path string) (RouteTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}
	var table RouteTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}
	return table, nil
}

// Router selects a provider and model per task category and implements Completer.
type Router struct {
	providers  map[string]Completer
	routes     RouteTable
	preference CostTier
	logger     *zap.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithCostPreference limits routing to tiers allowed by t.
func WithCostPreference(t CostTier) RouterOption {
	return func(r *Router) { r.preference = t }
}

// WithRouterLogger sets the router logger.
func WithRouterLogger(l *zap.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter creates a router over the named providers.
func NewRouter(providers map[string]Completer, routes RouteTable, opts ...RouterOption) (*Router, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("router needs at least one provider")
	}
	if routes == nil {
		routes = DefaultRoutes()
	}
	r := &Router{
		providers:  providers,
		routes:     routes,
		preference: CostMid,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Select returns the route a category would use.
func (r *Router) Select(category string) (Route, error) {
	candidates, ok := r.routes[category]
	if !ok {
		candidates = r.routes[fallbackCategory]
	}

	for _, tier := range r.preference.allowedTiers() {
		for _, c := range candidates {
			if c.CostTier == tier && r.providers[c.Provider] != nil {
				return c, nil
			}
		}
	}
	for _, c := range candidates {
		if r.providers[c.Provider] != nil {
			return c, nil
		}
	}

	// A lone provider serves every category with its configured model.
	if len(r.providers) == 1 {
		for name := range r.providers {
			return Route{Provider: name}, nil
		}
	}
	return Route{}, fmt.Errorf("no route for category %q", category)
}

// Complete routes the call by opts.TaskCategory unless opts.Model is already set.
func (r *Router) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	route, err := r.Select(opts.TaskCategory)
	if err != nil {
		return "", err
	}
	if opts.Model == "" {
		opts.Model = route.Model
	}
	r.logger.Debug("routing completion",
		zap.String("category", opts.TaskCategory),
		zap.String("provider", route.Provider),
		zap.String("model", opts.Model))
	return r.providers[route.Provider].Complete(ctx, messages, opts)
}
