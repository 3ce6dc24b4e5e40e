package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/database"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/event"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/registry"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/utils"
)

func main() {
	fs := flag.NewFlagSet("chat-server", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", config.ServerConfigFile, "Path of the configuration file")
	debug := fs.BoolP("debug", "d", false, "Enable debug logging")
	showHelp := fs.BoolP("help", "h", false, "Show this help")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if *showHelp {
		fmt.Fprintln(os.Stderr, "Usage: chat-server [options]")
		fs.PrintDefaults()
		return
	}

	// A broken file is reported again on Start, so the operator can fix it
	// and retry without restarting.
	cfg, err := config.ReadConfig(*configPath)
	if err != nil {
		color.Yellow("%v", err)
		cfg = &config.Config{LogPath: "logs"}
	}

	loggerCallback := logger.Init(*debug || cfg.DebugMode, cfg.LogPath)
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)
	defer cleaner.Clean()

	store := openStore(cfg, cleaner)

	app := &serverApp{
		configPath: *configPath,
		registry:   registry.New(),
		manager:    connection.NewConnectionManager(),
		store:      store,
		prompter:   utils.NewPrompter(os.Stdin, os.Stdout),
	}
	cleaner.Add(event.CallableFunc(app.shutdown))
	app.run()
}

func openStore(cfg *config.Config, cleaner *event.Cleaner) database.SessionStore {
	if cfg.Database.Enabled {
		store, err := database.ConnectDatabase(cfg.Database, "chat-broker")
		if err == nil {
			cleaner.Add(store.CloseCallback())
			return store
		}
		logger.ErrorF("Error occured while initializing database, details: %v", err)
		logger.Warn("Falling back to in-memory session history")
	}
	return database.NewMemoryStore(cfg.HistoryLimit(), cfg.HistoryTTLDuration())
}
