package policy

import (
	"testing"
	"time"

	"github.com/veilbox/offline-engine/internal/config"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Strategy
		wantErr bool
	}{
		{name: "cache first", input: "cache_first", want: CacheFirst},
		{name: "network first", input: "network_first", want: NetworkFirst},
		{name: "stale while revalidate", input: "stale_while_revalidate", want: StaleWhileRevalidate},
		{name: "network only", input: "network_only", want: NetworkOnly},
		{name: "cache only", input: "cache_only", want: CacheOnly},
		{name: "unknown", input: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStrategy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseStrategy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveFirstMatchWins(t *testing.T) {
	table, err := NewTable([]config.Rule{
		{Pattern: "/api/organizations", Strategy: "stale_while_revalidate", TTL: "10m", Partition: "api"},
		{Pattern: "/api/", Strategy: "network_first", Partition: "api"},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	decision := table.Resolve("/api/organizations", "")
	if decision == nil {
		t.Fatal("Resolve() returned nil, want a decision")
	}
	if decision.Strategy != StaleWhileRevalidate {
		t.Errorf("Strategy = %v, want StaleWhileRevalidate (registration order must win)", decision.Strategy)
	}
	if decision.TTL != 10*time.Minute {
		t.Errorf("TTL = %v, want 10m", decision.TTL)
	}

	decision = table.Resolve("/api/vaults", "")
	if decision == nil || decision.Strategy != NetworkFirst {
		t.Errorf("Resolve(/api/vaults) = %+v, want NetworkFirst", decision)
	}
}

func TestResolveNoMatch(t *testing.T) {
	table, err := NewTable([]config.Rule{
		{Pattern: "/api/", Strategy: "network_first", Partition: "api"},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	if decision := table.Resolve("/assets/app.js", ""); decision != nil {
		t.Errorf("Resolve() = %+v, want nil for unmatched path", decision)
	}
}

func TestResolveQueryConstraint(t *testing.T) {
	table, err := NewTable([]config.Rule{
		{Pattern: "/api/search", Query: "cached=1", Strategy: "cache_first", Partition: "api"},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	if decision := table.Resolve("/api/search", "q=x&cached=1"); decision == nil {
		t.Error("Resolve() = nil, want a match when query constraint is present")
	}
	if decision := table.Resolve("/api/search", "q=x"); decision != nil {
		t.Errorf("Resolve() = %+v, want nil when query constraint is absent", decision)
	}
}

func TestUpsert(t *testing.T) {
	table, err := NewTable([]config.Rule{
		{Pattern: "/api/vaults", Strategy: "network_first", Partition: "api"},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	// Same matcher identity replaces in place
	table.Upsert(Rule{Pattern: "/api/vaults", Strategy: CacheOnly, Partition: "api"})
	if got := len(table.Rules()); got != 1 {
		t.Fatalf("len(rules) = %d, want 1 after replace", got)
	}
	if decision := table.Resolve("/api/vaults", ""); decision.Strategy != CacheOnly {
		t.Errorf("Strategy = %v, want CacheOnly after replace", decision.Strategy)
	}

	// New matcher identity appends
	table.Upsert(Rule{Pattern: "/api/assets", Strategy: NetworkOnly, Partition: "api"})
	if got := len(table.Rules()); got != 2 {
		t.Errorf("len(rules) = %d, want 2 after append", got)
	}
}

func TestFromConfigInvalid(t *testing.T) {
	if _, err := FromConfig(config.Rule{Pattern: "/x", Strategy: "bogus", Partition: "api"}); err == nil {
		t.Error("FromConfig() error = nil, want error for unknown strategy")
	}
	if _, err := FromConfig(config.Rule{Pattern: "/x", Strategy: "cache_first", TTL: "nope", Partition: "api"}); err == nil {
		t.Error("FromConfig() error = nil, want error for invalid TTL")
	}
	if _, err := FromConfig(config.Rule{Strategy: "cache_first", Partition: "api"}); err == nil {
		t.Error("FromConfig() error = nil, want error for missing pattern")
	}
	if _, err := FromConfig(config.Rule{Pattern: "/x", Strategy: "cache_first"}); err == nil {
		t.Error("FromConfig() error = nil, want error for missing partition")
	}
}
