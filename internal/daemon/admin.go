package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/veilbox/offline-engine/internal/engine"
)

var upgrader = websocket.Upgrader{
	// The admin endpoint only listens on localhost
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AdminHandler returns the command/event mux (exported for testing)
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.handleCommand)
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

func (s *Server) startAdmin() {
	if err := http.ListenAndServe(s.adminAddr(), s.AdminHandler()); err != nil {
		logrus.Errorf("Admin endpoint failed: %v", err)
	}
}

// adminAddr binds the admin endpoint to loopback only; the origin check on
// the websocket upgrade relies on that
func (s *Server) adminAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.cfg.Server.AdminPort)
}

// handleCommand accepts one engine command as JSON and returns its
// structured acknowledgment
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd engine.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, fmt.Sprintf("invalid command: %v", err), http.StatusBadRequest)
		return
	}

	result, err := s.engine.HandleCommand(r.Context(), cmd)
	if err != nil {
		logrus.Errorf("Command %s failed: %v", cmd.Type, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logrus.Errorf("Failed to encode command result: %v", err)
	}
}

// handleEvents upgrades the connection to a websocket and streams broadcast
// events until the client goes away
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.engine.Notifier().Subscribe()
	defer unsubscribe()

	logrus.Debugf("Application instance connected for events: %s", r.RemoteAddr)

	for event := range events {
		if err := conn.WriteJSON(event); err != nil {
			logrus.Debugf("Dropping event subscriber %s: %v", r.RemoteAddr, err)
			return
		}
	}
}
