package main

import (
	"context"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/veilbox/offline-engine/internal/config"
	"github.com/veilbox/offline-engine/internal/daemon"
	"github.com/veilbox/offline-engine/internal/engine"
)

func main() {
	configPath := "configs/engine.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)

	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	if err := eng.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	defer eng.Close()

	if err := eng.Activate(cfg.Engine.Version); err != nil {
		log.Fatalf("Failed to activate engine: %v", err)
	}

	server := daemon.New(cfg, eng)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
