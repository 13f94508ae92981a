// Package policy maps intercepted requests to caching strategies.
package policy

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/veilbox/offline-engine/internal/config"
)

// Strategy is a closed set of cache dispatch behaviors.
type Strategy int

const (
	CacheFirst Strategy = iota
	NetworkFirst
	StaleWhileRevalidate
	NetworkOnly
	CacheOnly
)

var strategyNames = map[Strategy]string{
	CacheFirst:           "cache_first",
	NetworkFirst:         "network_first",
	StaleWhileRevalidate: "stale_while_revalidate",
	NetworkOnly:          "network_only",
	CacheOnly:            "cache_only",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy converts a config strategy name into a Strategy
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy: %s", name)
}

// Rule maps requests whose path starts with Pattern (and whose raw query
// contains Query, when set) to a strategy
type Rule struct {
	Pattern   string
	Query     string
	Strategy  Strategy
	TTL       time.Duration // zero means cache until evicted
	Partition string
}

// Match checks if a request path and query match this rule
func (r Rule) Match(path, rawQuery string) bool {
	if !strings.HasPrefix(path, r.Pattern) {
		return false
	}
	if r.Query != "" && !strings.Contains(rawQuery, r.Query) {
		return false
	}
	return true
}

// Decision is the resolved policy for a request
type Decision struct {
	Strategy  Strategy
	TTL       time.Duration
	Partition string
}

// Table is an ordered rule table. Resolution is pure: no network or storage
// calls. Mutation happens only through Upsert.
type Table struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewTable builds a rule table from config rules, preserving order
func NewTable(rules []config.Rule) (*Table, error) {
	t := &Table{}
	for i, rc := range rules {
		rule, err := FromConfig(rc)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		t.rules = append(t.rules, rule)
	}
	return t, nil
}

// FromConfig converts a config rule into a policy rule. Rules arriving at
// runtime bypass config validation, so the structural requirements are
// enforced here as well.
func FromConfig(rc config.Rule) (Rule, error) {
	if rc.Pattern == "" {
		return Rule{}, fmt.Errorf("pattern is required")
	}
	if rc.Partition == "" {
		return Rule{}, fmt.Errorf("partition is required")
	}

	strategy, err := ParseStrategy(rc.Strategy)
	if err != nil {
		return Rule{}, err
	}

	var ttl time.Duration
	if rc.TTL != "" {
		ttl, err = time.ParseDuration(rc.TTL)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid TTL: %w", err)
		}
	}

	return Rule{
		Pattern:   rc.Pattern,
		Query:     rc.Query,
		Strategy:  strategy,
		TTL:       ttl,
		Partition: rc.Partition,
	}, nil
}

// Resolve returns the decision of the first matching rule, or nil when no
// rule matches
func (t *Table) Resolve(path, rawQuery string) *Decision {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, rule := range t.rules {
		if rule.Match(path, rawQuery) {
			return &Decision{
				Strategy:  rule.Strategy,
				TTL:       rule.TTL,
				Partition: rule.Partition,
			}
		}
	}
	return nil
}

// Upsert replaces the rule with the same pattern and query, or appends the
// rule when no existing rule has that matcher identity
func (t *Table) Upsert(rule Rule) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, existing := range t.rules {
		if existing.Pattern == rule.Pattern && existing.Query == rule.Query {
			t.rules[i] = rule
			return
		}
	}
	t.rules = append(t.rules, rule)
}

// Rules returns a snapshot of the table in evaluation order
func (t *Table) Rules() []Rule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}
