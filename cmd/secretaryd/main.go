package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Ghazalehdelfi/secretary-agent/internal/calendar"
	"github.com/Ghazalehdelfi/secretary-agent/internal/config"
	"github.com/Ghazalehdelfi/secretary-agent/internal/coordinator"
	"github.com/Ghazalehdelfi/secretary-agent/internal/directory"
	"github.com/Ghazalehdelfi/secretary-agent/internal/discovery"
	"github.com/Ghazalehdelfi/secretary-agent/internal/engine"
	"github.com/Ghazalehdelfi/secretary-agent/internal/logbuf"
	"github.com/Ghazalehdelfi/secretary-agent/internal/mail"
	"github.com/Ghazalehdelfi/secretary-agent/internal/peer"
	"github.com/Ghazalehdelfi/secretary-agent/internal/reconcile"
	"github.com/Ghazalehdelfi/secretary-agent/internal/server"
	"github.com/Ghazalehdelfi/secretary-agent/internal/session"
	"github.com/Ghazalehdelfi/secretary-agent/internal/task"
	"github.com/Ghazalehdelfi/secretary-agent/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("secretaryd starting", "agent", cfg.Agent.Name, "user", cfg.Agent.User)

	loc, err := time.LoadLocation(cfg.Agent.Timezone)
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.Agent.Timezone, "error", err)
		os.Exit(1)
	}

	if cfg.Engine.APIKey == "" {
		logger.Error("engine.api_key is required")
		os.Exit(1)
	}

	// 1. Stores
	os.MkdirAll(cfg.Agent.DataDir, 0o755)

	contacts, err := directory.NewStore(filepath.Join(cfg.Agent.DataDir, "contacts.db"))
	if err != nil {
		logger.Error("failed to open contact store", "error", err)
		os.Exit(1)
	}
	defer contacts.Close()

	sessions, err := session.NewStore(filepath.Join(cfg.Agent.DataDir, "sessions.db"), logger)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer sessions.Close()

	tasks := task.NewStore(logger)

	// 2. Discovery, routing, calendar
	peers := discovery.NewRegistry(cfg.Peers, logger)
	dir := directory.New(contacts, peers, logger)
	cal := calendar.NewService(calendar.NewMemoryProvider(), cfg.Calendar.ID, loc, logger)

	// 3. Reasoning engine
	var engOpts []engine.OpenAIOption
	if cfg.Engine.BaseURL != "" {
		engOpts = append(engOpts, engine.WithBaseURL(cfg.Engine.BaseURL))
	}
	if cfg.Engine.Model != "" {
		engOpts = append(engOpts, engine.WithModel(cfg.Engine.Model))
	}
	eng := engine.NewOpenAI(cfg.Engine.APIKey, engOpts...)
	logger.Info("engine initialized", "name", eng.Name(), "model", cfg.Engine.Model)

	// 4. Mail transport
	var transport mail.Transport
	if cfg.Mail != nil {
		transport = mail.NewGateway(*cfg.Mail, logger)
		logger.Info("mail transport initialized", "address", cfg.Mail.Address)
	} else {
		transport = mail.NewMemoryTransport()
		logger.Warn("no mail credentials configured, email negotiation is in-process only")
	}

	// 5. Coordinators
	peerClient := peer.NewClient(logger)
	initiator := coordinator.NewInitiator(cfg.Agent.User, cfg.Agent.UserEmail, eng, cal, dir, peers, sessions, transport, peerClient, logger)
	responder := coordinator.NewResponder(cfg.Agent.User, eng, cal, logger)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. Reply reconciler
	reconciler := reconcile.New(transport, sessions, initiator, cfg.Agent.User, logger)
	go safeGo(logger, "reconciler", func() { reconciler.Start(ctx) })

	// 7. HTTP server
	card := protocol.AgentCard{
		Name:        cfg.Agent.Name,
		Description: cfg.Agent.Description,
		URL:         cfg.Agent.URL,
		Version:     "1.0.0",
		Capabilities: protocol.AgentCapabilities{
			Streaming: false,
		},
		Skills: []protocol.AgentSkill{{
			ID:          "schedule_meeting",
			Name:        "Schedule meetings",
			Description: fmt.Sprintf("Negotiates meeting times on behalf of %s.", cfg.Agent.User),
		}},
	}
	srv := server.NewServer(tasks, initiator, responder, card, contacts, peers, server.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "server"), logBuf)

	go safeGo(logger, "server", func() { srv.Start(ctx) })
	logger.Info("server started", "port", cfg.API.Port)

	// 8. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("secretaryd stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
