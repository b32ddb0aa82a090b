package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/runlet/runlet/internal/api"
	"github.com/runlet/runlet/internal/config"
	"github.com/runlet/runlet/internal/engine"
	"github.com/runlet/runlet/internal/events"
	"github.com/runlet/runlet/internal/history"
	"github.com/runlet/runlet/internal/log"
	"github.com/runlet/runlet/internal/script"
	"github.com/runlet/runlet/internal/storage"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "version":
		fmt.Printf("runlet version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`runlet - Script execution gateway

Usage:
  runlet <command> [flags]

Commands:
  start     Start the gateway service in foreground
  version   Show version information
  help      Show this help message

Start flags:
  --config <path>   Path to config.yaml (defaults apply when omitted)
`)
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.yaml")
	_ = fs.Parse(args)

	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		cfg = loaded
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("starting runlet", "version", version, "scripts_dir", cfg.Scripts.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := script.NewStore(cfg.Scripts.Dir, cfg.Scripts.Extension)
	if err != nil {
		logger.Error("failed to open script store", "error", err)
		return 1
	}

	registry := script.NewRegistry(store)
	cache := engine.NewCache(cfg.Engine.CacheTTL)
	gate := engine.NewGate(cfg.Engine.MaxConcurrent)
	hub := events.NewHub(256)
	registry.SetEvents(hub)

	var hist *history.Store
	if cfg.History.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.History.Path)
		if err != nil {
			logger.Error("failed to open history database", "error", err)
			return 1
		}
		defer func() { _ = db.Close() }()
		hist = history.New(db)
	}

	runner := engine.NewRunner(engine.Options{
		Store:           store,
		Registry:        registry,
		Cache:           cache,
		Gate:            gate,
		Events:          hub,
		History:         hist,
		Interpreter:     cfg.Scripts.Interpreter,
		InterpreterArgs: cfg.Scripts.InterpreterArgs,
		RunTimeout:      cfg.Engine.RunTimeout,
	})

	go registry.Watch(ctx, cfg.Scripts.ScanInterval)

	server := api.New(api.Config{
		Listen: cfg.API.Listen,
		APIKey: cfg.API.Auth.APIKey,
	}, store, registry, runner, cache, gate, hist, hub, log.WithComponent("api"))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited with error", "error", err)
		return 1
	}

	logger.Info("runlet stopped")
	return 0
}
