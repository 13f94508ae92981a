package daemon

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// probeLoop polls the configured probe URL and feeds connectivity
// transitions into the engine. Only changes are reported; the engine starts
// out assumed online.
func (s *Server) probeLoop() {
	if s.cfg.Engine.ProbeURL == "" {
		logrus.Debugf("No probe URL configured, connectivity detection disabled")
		return
	}

	interval, err := s.cfg.GetProbeInterval()
	if err != nil {
		logrus.Errorf("Invalid probe interval: %v", err)
		return
	}

	client := &http.Client{Timeout: interval / 2}
	online := true

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		now := s.probe(client)
		if now != online {
			online = now
			s.engine.OnConnectivityChange(online)
		}
	}
}

func (s *Server) probe(client *http.Client) bool {
	resp, err := client.Head(s.cfg.Engine.ProbeURL)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
