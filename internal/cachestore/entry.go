// Package cachestore persists HTTP responses in named, independently
// evictable partitions.
package cachestore

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Entry is a cached response with its bookkeeping metadata
type Entry struct {
	Partition  string      `json:"partition"`
	Key        string      `json:"key"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	CachedAt   time.Time   `json:"cached_at"`
	// TTL of zero means the entry lives until explicitly evicted
	TTL time.Duration `json:"ttl"`
}

// Expired reports whether the entry is older than its TTL
func (e *Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.CachedAt) > e.TTL
}

// Key generates the canonical identity of a request: method plus URL, with
// the query string hashed so complex URLs map to stable file paths
func Key(method, targetURL string) string {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return ""
	}

	host := strings.TrimSuffix(strings.TrimSuffix(parsed.Host, ":80"), ":443")
	pathParts := []string{host}

	if parsed.Path != "" && parsed.Path != "/" {
		pathParts = append(pathParts, strings.Trim(parsed.Path, "/"))
	}

	filename := method
	if parsed.RawQuery != "" {
		hash := sha256.Sum256([]byte(parsed.RawQuery))
		filename += "_" + hex.EncodeToString(hash[:])[:8]
	}
	filename += ".json"

	pathParts = append(pathParts, filename)

	return filepath.Join(pathParts...)
}
