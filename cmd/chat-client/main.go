package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/event"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/utils"
)

func main() {
	fs := flag.NewFlagSet("chat-client", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", config.ClientConfigFile, "Path of the configuration file")
	wsURL := fs.StringP("websocket", "w", "", "Connect through the WebSocket gateway at this URL instead of TCP")
	debug := fs.BoolP("debug", "d", false, "Enable debug logging")
	showHelp := fs.BoolP("help", "h", false, "Show this help")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if *showHelp {
		fmt.Fprintln(os.Stderr, "Usage: chat-client [options]")
		fs.PrintDefaults()
		return
	}

	cfg, err := config.ReadConfig(*configPath)
	if err != nil {
		color.Yellow("%v", err)
		cfg = &config.Config{}
	}

	loggerCallback := logger.Init(*debug || cfg.DebugMode, cfg.LogPath)
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)
	defer cleaner.Clean()

	app := &clientApp{
		configPath: *configPath,
		wsURL:      *wsURL,
		prompter:   utils.NewPrompter(os.Stdin, os.Stdout),
	}
	cleaner.Add(event.CallableFunc(app.disconnect))
	app.run()
}
