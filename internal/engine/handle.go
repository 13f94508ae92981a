package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veilbox/offline-engine/internal/cachestore"
	"github.com/veilbox/offline-engine/internal/policy"
	"github.com/veilbox/offline-engine/internal/store"
)

const offlinePageHTML = `<!DOCTYPE html>
<html>
<head><title>Offline</title></head>
<body>
<h1>You are offline</h1>
<p>This page is not available without a network connection. Changes you make
are saved locally and synchronized once you reconnect.</p>
</body>
</html>`

const offlineImageSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="120" height="90" viewBox="0 0 120 90">
<rect width="120" height="90" fill="#e5e7eb"/>
<text x="60" y="48" text-anchor="middle" font-family="sans-serif" font-size="12" fill="#6b7280">offline</text>
</svg>`

// HandleRequest intercepts an outgoing request, classifies it, resolves the
// cache policy, and dispatches it. Network failures on cacheable reads are
// absorbed into a best-effort response; the caller never sees a raw
// connection error for those.
func (e *Engine) HandleRequest(ctx context.Context, req *Request) (*Result, error) {
	if req.Header == nil {
		req.Header = http.Header{}
	}

	class := e.classify(req)
	if class == ClassAPIWrite {
		return e.handleMutation(ctx, req)
	}

	decision := e.resolve(req, class)
	logrus.Debugf("Routing %s %s: class=%s strategy=%s partition=%s",
		req.Method, req.URL, class, decision.Strategy, decision.Partition)

	switch decision.Strategy {
	case policy.CacheFirst:
		return e.cacheFirst(ctx, req, decision, class)
	case policy.NetworkFirst:
		return e.networkFirst(ctx, req, decision, class)
	case policy.StaleWhileRevalidate:
		return e.staleWhileRevalidate(ctx, req, decision, class)
	case policy.NetworkOnly:
		return e.networkOnly(ctx, req, decision)
	case policy.CacheOnly:
		return e.cacheOnly(req, decision)
	}
	return nil, fmt.Errorf("unhandled strategy: %s", decision.Strategy)
}

// resolve consults the rule table, falling back to the fixed per-class
// defaults when no rule matches
func (e *Engine) resolve(req *Request, class Class) *policy.Decision {
	if parsed, err := url.Parse(req.URL); err == nil {
		if decision := e.policies.Resolve(parsed.Path, parsed.RawQuery); decision != nil {
			return decision
		}
	}

	switch class {
	case ClassStatic:
		return &policy.Decision{Strategy: policy.CacheFirst, Partition: PartitionStatic}
	case ClassImage:
		return &policy.Decision{Strategy: policy.CacheFirst, Partition: PartitionImages}
	case ClassNavigation:
		return &policy.Decision{Strategy: policy.NetworkFirst, Partition: PartitionNavigation}
	default:
		// Unmatched API reads never serve unbounded-age data
		return &policy.Decision{Strategy: policy.NetworkOnly, Partition: PartitionAPI}
	}
}

func (e *Engine) cacheFirst(ctx context.Context, req *Request, dec *policy.Decision, class Class) (*Result, error) {
	key := cachestore.Key(req.Method, req.URL)

	entry, err := e.cache.Lookup(dec.Partition, key)
	if err != nil {
		logrus.Errorf("Cache lookup failed for %s: %v", req.URL, err)
	}
	if entry != nil {
		return cachedResult(entry, false), nil
	}

	result, err := e.fetcher.Fetch(ctx, req)
	if err == nil {
		e.cacheResult(req, dec, result)
		return result, nil
	}

	if class == ClassImage {
		return placeholderImage(), nil
	}
	return nil, fmt.Errorf("%w: %s %s", ErrNetworkUnavailable, req.Method, req.URL)
}

func (e *Engine) networkFirst(ctx context.Context, req *Request, dec *policy.Decision, class Class) (*Result, error) {
	result, err := e.fetcher.Fetch(ctx, req)
	if err == nil {
		e.cacheResult(req, dec, result)
		return result, nil
	}

	// Degraded fallback: staleness is acceptable here, so TTL is ignored
	key := cachestore.Key(req.Method, req.URL)
	entry, lookupErr := e.cache.LookupStale(dec.Partition, key)
	if lookupErr != nil {
		logrus.Errorf("Cache fallback lookup failed for %s: %v", req.URL, lookupErr)
	}
	if entry != nil {
		return cachedResult(entry, true), nil
	}

	if class == ClassNavigation {
		return e.offlinePage(), nil
	}
	return nil, fmt.Errorf("%w: %s %s", ErrNetworkUnavailable, req.Method, req.URL)
}

func (e *Engine) staleWhileRevalidate(ctx context.Context, req *Request, dec *policy.Decision, class Class) (*Result, error) {
	key := cachestore.Key(req.Method, req.URL)

	entry, err := e.cache.Lookup(dec.Partition, key)
	if err != nil {
		logrus.Errorf("Cache lookup failed for %s: %v", req.URL, err)
	}
	if entry == nil {
		// Nothing to serve yet: wait on the network like NetworkFirst
		return e.networkFirst(ctx, req, dec, class)
	}

	// Serve the cached entry immediately; refresh in the background. The
	// caller's response never waits on the revalidation.
	go e.revalidate(req, dec)

	return cachedResult(entry, false), nil
}

// revalidate refreshes a cached entry, announcing the update only when a
// fresh entry actually landed in the cache
func (e *Engine) revalidate(req *Request, dec *policy.Decision) {
	ctx, cancel := context.WithTimeout(context.Background(), e.fetchTimeout)
	defer cancel()

	result, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		logrus.Debugf("Background revalidation failed for %s: %v", req.URL, err)
		return
	}

	if e.cacheResult(req, dec, result) {
		e.notifier.Notify(Event{Type: EventCacheUpdated, URL: req.URL})
	}
}

func (e *Engine) networkOnly(ctx context.Context, req *Request, dec *policy.Decision) (*Result, error) {
	result, err := e.fetcher.Fetch(ctx, req)
	if err == nil {
		return result, nil
	}

	// A prior strategy may have left an entry behind; serve it explicitly
	// tagged as offline rather than failing outright
	key := cachestore.Key(req.Method, req.URL)
	entry, lookupErr := e.cache.LookupStale(dec.Partition, key)
	if lookupErr == nil && entry != nil {
		return cachedResult(entry, true), nil
	}

	return offlinePayload(), nil
}

func (e *Engine) cacheOnly(req *Request, dec *policy.Decision) (*Result, error) {
	key := cachestore.Key(req.Method, req.URL)

	entry, err := e.cache.Lookup(dec.Partition, key)
	if err != nil {
		logrus.Errorf("Cache lookup failed for %s: %v", req.URL, err)
	}
	if entry != nil {
		return cachedResult(entry, false), nil
	}

	return offlinePayload(), nil
}

// handleMutation attempts the write over the network; on network failure the
// request is durably queued for replay and the caller receives an accepted
// acknowledgment instead of the raw error
func (e *Engine) handleMutation(ctx context.Context, req *Request) (*Result, error) {
	result, err := e.fetcher.Fetch(ctx, req)
	if err == nil {
		return result, nil
	}

	logrus.Infof("Mutation %s %s failed, queueing for replay: %v", req.Method, req.URL, err)

	op := &store.Operation{
		URL:        req.URL,
		Method:     req.Method,
		Header:     req.Header.Clone(),
		Body:       req.Body,
		MaxRetries: e.maxRetries,
	}

	id, enqueueErr := e.queue.Enqueue(op)
	if enqueueErr != nil {
		// "queued" cannot be promised, so the failure is the caller's to see
		return nil, fmt.Errorf("%w: %v", ErrQueuePersistence, enqueueErr)
	}

	body, _ := json.Marshal(map[string]any{
		"success": true,
		"queued":  true,
		"id":      id,
	})

	return &Result{
		StatusCode: http.StatusAccepted,
		Header:     jsonHeader(),
		Body:       body,
		Source:     SourceSynthetic,
		Queued:     true,
	}, nil
}

// cacheResult persists a network result under the decision's partition and
// reports whether an entry was written (non-2xx responses never are)
func (e *Engine) cacheResult(req *Request, dec *policy.Decision, result *Result) bool {
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return false
	}

	entry := &cachestore.Entry{
		Partition:  dec.Partition,
		Key:        cachestore.Key(req.Method, req.URL),
		StatusCode: result.StatusCode,
		Header:     result.Header,
		Body:       result.Body,
		CachedAt:   time.Now(),
		TTL:        dec.TTL,
	}
	if err := e.cache.Write(entry); err != nil {
		logrus.Errorf("Failed to cache response for %s: %v", req.URL, err)
		return false
	}
	return true
}

func cachedResult(entry *cachestore.Entry, offline bool) *Result {
	header := entry.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("X-Cache", "HIT")

	return &Result{
		StatusCode: entry.StatusCode,
		Header:     header,
		Body:       entry.Body,
		Source:     SourceCache,
		Offline:    offline,
	}
}

func (e *Engine) offlinePage() *Result {
	header := http.Header{}
	header.Set("Content-Type", "text/html; charset=utf-8")

	return &Result{
		StatusCode: http.StatusServiceUnavailable,
		Header:     header,
		Body:       []byte(offlinePageHTML),
		Source:     SourceSynthetic,
		Offline:    true,
	}
}

func placeholderImage() *Result {
	header := http.Header{}
	header.Set("Content-Type", "image/svg+xml")

	return &Result{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       []byte(offlineImageSVG),
		Source:     SourceSynthetic,
		Offline:    true,
	}
}

func offlinePayload() *Result {
	body, _ := json.Marshal(map[string]any{
		"error":   "network unavailable and no cached response",
		"offline": true,
	})

	return &Result{
		StatusCode: http.StatusServiceUnavailable,
		Header:     jsonHeader(),
		Body:       body,
		Source:     SourceSynthetic,
		Offline:    true,
	}
}

func jsonHeader() http.Header {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return header
}
