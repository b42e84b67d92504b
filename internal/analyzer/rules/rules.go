// Package rules implements the deterministic analyzer: a registry of pure
// checks over a document's extracted facts. It makes no external calls and
// is always available, so it anchors every analysis run even when remote
// providers are down.
package rules

import (
	"context"
	"sort"

	"reclaim/internal/domain"
	"reclaim/internal/facts"
	"reclaim/internal/port"
)

// amountTolerance is the slack allowed before an arithmetic mismatch
// becomes a finding.
const amountTolerance = 0.01

// Rule is a single deterministic check over one document's facts.
type Rule interface {
	Key() string
	Check(f *facts.FactModel) []domain.CandidateIssue
}

// Registry maps rule keys to Rule implementations.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// Register adds a rule to the registry.
func (r *Registry) Register(rule Rule) {
	r.rules[rule.Key()] = rule
}

// All returns registered rules in stable key order.
func (r *Registry) All() []Rule {
	keys := make([]string, 0, len(r.rules))
	for k := range r.rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Rule, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.rules[k])
	}
	return out
}

// Engine runs every registered rule against the primary document's facts.
// It implements the analyzer port.
type Engine struct {
	registry *Registry
}

// NewEngine creates an Engine over the given registry.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry}
}

// NewDefaultEngine creates an Engine with all built-in rules registered.
func NewDefaultEngine() *Engine {
	reg := NewRegistry()
	reg.Register(MathTotalRule())
	reg.Register(DuplicateLineRule())
	reg.Register(OverchargeRule())
	reg.Register(CodeFormatRule())
	return NewEngine(reg)
}

func (e *Engine) Source() string { return "rules" }

func (e *Engine) Analyze(_ context.Context, input port.AnalyzeInput) ([]domain.CandidateIssue, error) {
	if input.Facts == nil {
		return nil, nil
	}
	var out []domain.CandidateIssue
	for _, rule := range e.registry.All() {
		out = append(out, rule.Check(input.Facts)...)
	}
	return out, nil
}

// funcRule adapts a closure into a Rule.
type funcRule struct {
	key   string
	check func(f *facts.FactModel) []domain.CandidateIssue
}

func (r *funcRule) Key() string { return r.key }

func (r *funcRule) Check(f *facts.FactModel) []domain.CandidateIssue {
	return r.check(f)
}
