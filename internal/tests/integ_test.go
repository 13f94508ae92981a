package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veilbox/offline-engine/internal/config"
	"github.com/veilbox/offline-engine/internal/daemon"
	"github.com/veilbox/offline-engine/internal/engine"
)

func TestProxyCacheMissThenHit(t *testing.T) {
	upstream := fixture_upstream()
	defer upstream.Close()

	cfg := fixture_config(t, []config.Rule{
		{Pattern: "/api/data", Strategy: "cache_first", TTL: "1h", Partition: "api"},
	})

	_, _, client := fixture_daemon(t, cfg)

	t.Run("first request - cache miss", func(t *testing.T) {
		resp, err := client.Get(upstream.URL + "/api/data")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
		if resp.Header.Get("X-Cache") == "HIT" {
			t.Error("First request must not be served from cache")
		}

		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "Hello from upstream") {
			t.Errorf("Unexpected response body: %s", string(body))
		}
	})

	t.Run("second request - cache hit", func(t *testing.T) {
		resp, err := client.Get(upstream.URL + "/api/data")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.Header.Get("X-Cache") != "HIT" {
			t.Errorf("Expected X-Cache: HIT, got %s", resp.Header.Get("X-Cache"))
		}

		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "Hello from upstream") {
			t.Errorf("Unexpected response body: %s", string(body))
		}
	})
}

func TestProxyOfflineNavigation(t *testing.T) {
	upstream := fixture_upstream()
	upstreamURL := upstream.URL
	upstream.Close() // Network is down from the start

	cfg := fixture_config(t, nil)
	_, _, client := fixture_daemon(t, cfg)

	req, _ := http.NewRequest(http.MethodGet, upstreamURL+"/dashboard", nil)
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Offline") != "true" {
		t.Error("Offline page must carry the X-Offline marker")
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "offline") {
		t.Errorf("Expected offline page, got: %s", string(body))
	}
}

func TestProxyQueuesOfflineMutation(t *testing.T) {
	upstream := fixture_upstream()
	upstreamURL := upstream.URL
	upstream.Close()

	cfg := fixture_config(t, nil)
	eng, _, client := fixture_daemon(t, cfg)

	resp, err := client.Post(upstreamURL+"/api/assets", "application/json",
		bytes.NewReader([]byte(`{"name":"laptop"}`)))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Offline-Queued") != "true" {
		t.Error("Queued mutation must carry the X-Offline-Queued marker")
	}

	var ack map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("Failed to decode ack: %v", err)
	}
	if ack["queued"] != true {
		t.Errorf("Expected queued ack, got %v", ack)
	}

	result, err := eng.HandleCommand(context.Background(), engine.Command{Type: engine.CmdGetOfflineQueue})
	if err != nil {
		t.Fatalf("GET_OFFLINE_QUEUE failed: %v", err)
	}
	if len(result.Queue) != 1 {
		t.Fatalf("Expected 1 queued operation, got %d", len(result.Queue))
	}
	if result.Queue[0].Method != http.MethodPost {
		t.Errorf("Expected queued POST, got %s", result.Queue[0].Method)
	}
}

func TestAdminCommandEndpoint(t *testing.T) {
	cfg := fixture_config(t, nil)
	eng, _, _ := fixture_daemon(t, cfg)

	admin := httptest.NewServer(daemon.New(cfg, eng).AdminHandler())
	defer admin.Close()

	payload := `{"type":"CLEAR_CACHE","partition":"api"}`
	resp, err := http.Post(admin.URL+"/command", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("Command request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var result engine.CommandResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if !result.Success {
		t.Error("Expected success acknowledgment")
	}
}

func TestEventWebsocketBroadcast(t *testing.T) {
	cfg := fixture_config(t, nil)
	eng, _, _ := fixture_daemon(t, cfg)

	admin := httptest.NewServer(daemon.New(cfg, eng).AdminHandler())
	defer admin.Close()

	wsURL := "ws" + strings.TrimPrefix(admin.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Websocket dial failed: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the subscriber
	time.Sleep(50 * time.Millisecond)
	eng.OnConnectivityChange(false)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event engine.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}

	if event.Type != engine.EventNetworkStatus {
		t.Errorf("Expected NETWORK_STATUS event, got %s", event.Type)
	}
	if event.Online {
		t.Error("Expected online=false")
	}
}
