// Package tests holds end-to-end fixtures exercising the daemon, the
// engine, and the stores together.
package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/veilbox/offline-engine/internal/config"
	"github.com/veilbox/offline-engine/internal/daemon"
	"github.com/veilbox/offline-engine/internal/engine"
)

// fixture_upstream creates a test upstream server
func fixture_upstream() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, requ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "Hello from upstream", "path": "` + requ.URL.Path + `"}`))
	}))
}

// fixture_config creates a test config with optional rules
func fixture_config(t *testing.T, rules []config.Rule) *config.Config {
	t.Helper()

	return &config.Config{
		Server: config.Server{ProxyPort: 8080, AdminPort: 8081},
		Engine: config.Engine{
			Version:      "v1",
			StorePath:    filepath.Join(t.TempDir(), "engine.db"),
			FetchTimeout: "2s",
			MaxRetries:   5,
			APIPrefixes:  []string{"/api/"},
		},
		Cache: config.Cache{Folder: t.TempDir()},
		Rules: rules,
	}
}

// fixture_daemon builds an initialized engine fronted by the intercepting
// proxy, and an HTTP client routed through it
func fixture_daemon(t *testing.T, cfg *config.Config) (*engine.Engine, *httptest.Server, *http.Client) {
	t.Helper()

	eng, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if err := eng.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize engine: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	if err := eng.Activate(cfg.Engine.Version); err != nil {
		t.Fatalf("Failed to activate engine: %v", err)
	}

	server := daemon.New(cfg, eng)
	proxyTestServer := httptest.NewServer(server.GetProxy())
	t.Cleanup(proxyTestServer.Close)

	proxyURL, _ := url.Parse(proxyTestServer.URL)
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
		Timeout: 10 * time.Second,
	}

	return eng, proxyTestServer, client
}
