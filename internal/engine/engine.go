// Package engine implements the offline-first request interception and
// synchronization engine: it serves intercepted requests under per-resource
// cache policies, queues write operations issued while disconnected, and
// replays them once connectivity returns.
package engine

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veilbox/offline-engine/internal/cachestore"
	"github.com/veilbox/offline-engine/internal/config"
	"github.com/veilbox/offline-engine/internal/policy"
	"github.com/veilbox/offline-engine/internal/store"
)

// Default partitions used when no rule names one
const (
	PartitionStatic     = "static"
	PartitionNavigation = "navigation"
	PartitionAPI        = "api"
	PartitionImages     = "images"
)

var (
	// ErrNetworkUnavailable is surfaced when a request fails and no strategy
	// fallback can absorb the failure
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrQueuePersistence is surfaced when a mutation could not be durably
	// queued; "queued" cannot be promised to the caller
	ErrQueuePersistence = errors.New("offline queue persistence failed")
)

// Engine owns the cache store, the offline mutation queue, and the sync
// coordinator. Applications interact with it only through HandleRequest,
// HandleCommand, and the broadcast events.
type Engine struct {
	cfg      *config.Config
	policies *policy.Table
	cache    cachestore.Store
	store    *store.Store
	queue    *store.Queue
	fetcher  Fetcher
	notifier *Notifier
	sync     *Coordinator

	version        string
	pendingVersion string
	fetchTimeout   time.Duration
	maxRetries     int
	apiPrefixes    []string

	stop chan struct{}
}

// New builds an engine from configuration. Stores are opened by Initialize.
func New(cfg *config.Config) (*Engine, error) {
	policies, err := policy.NewTable(cfg.Rules)
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := cfg.GetFetchTimeout()
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:          cfg,
		policies:     policies,
		fetcher:      NewHTTPFetcher(fetchTimeout),
		notifier:     NewNotifier(),
		version:      cfg.Engine.Version,
		fetchTimeout: fetchTimeout,
		maxRetries:   cfg.Engine.MaxRetries,
		apiPrefixes:  cfg.Engine.APIPrefixes,
		stop:         make(chan struct{}),
	}, nil
}

// Initialize opens the durable stores, pre-warms the static partition from
// the configured manifest, and starts the periodic sync trigger
func (e *Engine) Initialize(ctx context.Context) error {
	cache, err := cachestore.NewDisk(e.cfg.Cache.Folder)
	if err != nil {
		return err
	}
	e.cache = cache

	st, err := store.Open(e.cfg.Engine.StorePath)
	if err != nil {
		return err
	}
	e.store = st
	e.queue = st.Queue()
	e.sync = NewCoordinator(e.queue, e.fetcher, e.fetchTimeout)

	e.prewarm(ctx)

	interval, err := e.cfg.GetSyncInterval()
	if err != nil {
		return err
	}
	if interval > 0 {
		go e.periodicSync(interval)
	}

	logrus.Infof("Engine initialized (version %s, %d rules)", e.version, len(e.policies.Rules()))
	return nil
}

// prewarm fetches the manifest URLs into the static partition. Failures are
// logged and skipped; pre-warming is best-effort.
func (e *Engine) prewarm(ctx context.Context) {
	for _, u := range e.cfg.Engine.Prewarm {
		req := &Request{Method: http.MethodGet, URL: u, Header: http.Header{}}

		result, err := e.fetcher.Fetch(ctx, req)
		if err != nil {
			logrus.Warnf("Failed to pre-warm %s: %v", u, err)
			continue
		}

		entry := &cachestore.Entry{
			Partition:  PartitionStatic,
			Key:        cachestore.Key(http.MethodGet, u),
			StatusCode: result.StatusCode,
			Header:     result.Header,
			Body:       result.Body,
			CachedAt:   time.Now(),
		}
		if err := e.cache.Write(entry); err != nil {
			logrus.Errorf("Failed to cache pre-warmed %s: %v", u, err)
		}
	}
}

// Activate evicts every partition whose recorded version differs from
// version, then records the new version for all known partitions
func (e *Engine) Activate(version string) error {
	now := time.Now()

	for _, partition := range e.knownPartitions() {
		meta, err := e.store.GetPartitionMeta(partition)
		if err != nil {
			return err
		}

		if meta != nil && meta.Version != version {
			logrus.Infof("Partition %s is tagged %s, evicting for %s", partition, meta.Version, version)
			if err := e.cache.EvictPartition(partition); err != nil {
				return err
			}
		}

		err = e.store.PutPartitionMeta(partition, &store.PartitionMeta{
			Version:         version,
			LastActivatedAt: now,
		})
		if err != nil {
			return err
		}
	}

	e.version = version
	e.pendingVersion = ""
	return nil
}

// knownPartitions is the union of the default partitions, rule partitions,
// and partitions with recorded metadata
func (e *Engine) knownPartitions() []string {
	seen := map[string]bool{}
	var out []string

	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, p := range []string{PartitionStatic, PartitionNavigation, PartitionAPI, PartitionImages} {
		add(p)
	}
	for _, rule := range e.policies.Rules() {
		add(rule.Partition)
	}
	if recorded, err := e.store.Partitions(); err == nil {
		for _, p := range recorded {
			add(p)
		}
	}

	return out
}

// SetPendingVersion records a version waiting for activation; SKIP_WAITING
// activates it immediately
func (e *Engine) SetPendingVersion(version string) {
	e.pendingVersion = version
}

// Notifier exposes the broadcast channel for host integration
func (e *Engine) Notifier() *Notifier {
	return e.notifier
}

// OnConnectivityChange feeds network status transitions into the engine:
// subscribers are notified, and regained connectivity triggers a sync
func (e *Engine) OnConnectivityChange(online bool) {
	logrus.Infof("Network status changed: online=%v", online)
	e.notifier.Notify(Event{Type: EventNetworkStatus, Online: online})

	if online {
		go func() {
			if _, err := e.sync.Drain(context.Background()); err != nil {
				logrus.Errorf("Sync after reconnect failed: %v", err)
			}
		}()
	}
}

func (e *Engine) periodicSync(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := e.sync.Drain(context.Background()); err != nil {
				logrus.Errorf("Periodic sync failed: %v", err)
			}
		case <-e.stop:
			return
		}
	}
}

// Close stops background work and releases the stores
func (e *Engine) Close() error {
	close(e.stop)

	var first error
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			first = err
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
