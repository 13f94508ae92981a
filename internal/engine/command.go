package engine

import (
	"context"
	"fmt"

	"github.com/veilbox/offline-engine/internal/config"
	"github.com/veilbox/offline-engine/internal/policy"
	"github.com/veilbox/offline-engine/internal/store"
)

// Command types understood by HandleCommand
const (
	CmdGetOfflineQueue     = "GET_OFFLINE_QUEUE"
	CmdForceSync           = "FORCE_SYNC"
	CmdClearCache          = "CLEAR_CACHE"
	CmdUpdateCacheStrategy = "UPDATE_CACHE_STRATEGY"
	CmdSkipWaiting         = "SKIP_WAITING"
)

// Command is a request from the surrounding application
type Command struct {
	Type      string       `json:"type"`
	Partition string       `json:"partition,omitempty"`
	Rule      *config.Rule `json:"rule,omitempty"`
}

// CommandResult is the structured acknowledgment for a command
type CommandResult struct {
	Success bool               `json:"success"`
	Queue   []*store.Operation `json:"queue,omitempty"`
}

// HandleCommand dispatches an application command to the owning component
func (e *Engine) HandleCommand(ctx context.Context, cmd Command) (*CommandResult, error) {
	switch cmd.Type {
	case CmdGetOfflineQueue:
		ops, err := e.queue.ListPending()
		if err != nil {
			return nil, fmt.Errorf("listing offline queue: %w", err)
		}
		return &CommandResult{Success: true, Queue: ops}, nil

	case CmdForceSync:
		if _, err := e.sync.Drain(ctx); err != nil {
			return &CommandResult{Success: false}, err
		}
		return &CommandResult{Success: true}, nil

	case CmdClearCache:
		if cmd.Partition == "" {
			return nil, fmt.Errorf("CLEAR_CACHE requires a partition")
		}
		if err := e.cache.EvictPartition(cmd.Partition); err != nil {
			return &CommandResult{Success: false}, err
		}
		return &CommandResult{Success: true}, nil

	case CmdUpdateCacheStrategy:
		if cmd.Rule == nil {
			return nil, fmt.Errorf("UPDATE_CACHE_STRATEGY requires a rule")
		}
		rule, err := policy.FromConfig(*cmd.Rule)
		if err != nil {
			return nil, fmt.Errorf("invalid rule: %w", err)
		}
		e.policies.Upsert(rule)
		return &CommandResult{Success: true}, nil

	case CmdSkipWaiting:
		version := e.pendingVersion
		if version == "" {
			version = e.version
		}
		if err := e.Activate(version); err != nil {
			return &CommandResult{Success: false}, err
		}
		return &CommandResult{Success: true}, nil
	}

	return nil, fmt.Errorf("unknown command: %s", cmd.Type)
}
