package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/database"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/registry"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/server"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/utils"
)

const historyLimit = 10

type serverApp struct {
	configPath string
	registry   *registry.TopicRegistry
	manager    *connection.ConnectionManager
	store      database.SessionStore
	prompter   *utils.Prompter

	mu     sync.Mutex
	server *server.Server
}

func (a *serverApp) run() {
	title := color.New(color.FgCyan, color.Bold)
	for {
		_, _ = title.Println("\n== Chat Server ==")
		fmt.Println("1) Start server")
		fmt.Println("2) Stop all connections")
		fmt.Println("3) Show sessions")
		fmt.Println("4) Show session record")
		fmt.Println("0) Quit")

		choice, ok := a.prompter.Ask("> ")
		if !ok {
			return
		}
		switch choice {
		case "1":
			a.start()
		case "2":
			a.stop()
		case "3":
			a.showSessions()
		case "4":
			a.showRecord()
		case "0":
			return
		default:
			fmt.Println("Unknown option")
		}
	}
}

func (a *serverApp) running() *server.Server {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server
}

func (a *serverApp) start() {
	if a.running() != nil {
		color.Yellow("Server is already running")
		return
	}

	cfg, err := config.ReadConfig(a.configPath)
	if err != nil {
		color.Red("%v", err)
		return
	}

	ip := strings.TrimSpace(cfg.IP)
	if ip == "" {
		addresses, err := utils.LocalAddresses()
		if err != nil {
			color.Red("Fail to list local addresses: %v", err)
			return
		}
		fmt.Println("Choose the address to listen on:")
		if ip, ok := a.prompter.Choose("> ", addresses); ok {
			cfg.IP = ip
		} else {
			return
		}
	}
	if ip, err = cfg.Get("ip"); err != nil {
		color.Red("%v", err)
		return
	}
	port, err := cfg.PortNumber()
	if err != nil {
		color.Red("%v", err)
		return
	}
	wsPort, err := cfg.WebSocketPortNumber()
	if err != nil {
		color.Red("%v", err)
		return
	}

	srv := server.New(server.OptionsFromConfig(cfg), a.registry, a.manager, a.store)
	if err := srv.Listen(ip, port); err != nil {
		color.Red("%v", err)
		return
	}
	if wsPort != 0 {
		if err := srv.ListenWebSocket(ip, wsPort); err != nil {
			color.Red("%v", err)
			srv.StopAccepting()
			return
		}
	}

	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	go func() {
		if err := srv.Serve(); err != nil {
			logger.ErrorF("Accept loop stopped: %v", err)
		}
	}()
	color.Green("Server started on %s", srv.Addr())
}

func (a *serverApp) stop() {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.mu.Unlock()

	if srv == nil {
		color.Yellow("Server is not running")
		return
	}
	srv.StopAll()
	srv.Wait()
	color.Green("Server stopped")
}

func (a *serverApp) showSessions() {
	if srv := a.running(); srv != nil {
		sessions := srv.Sessions()
		fmt.Printf("Active sessions: %d\n", len(sessions))
		for _, s := range sessions {
			fmt.Printf("  [%s] %s since %s, topics: %s\n",
				s.Transport, s.ID, utils.DateTimeStamp(s.ConnectedAt), joinTopics(s.Topics))
		}
	} else {
		fmt.Println("Server is not running")
	}

	records, err := a.history()
	if err != nil {
		color.Red("Fail to load session history: %v", err)
		return
	}
	fmt.Printf("Recent sessions: %d\n", len(records))
	for _, r := range records {
		status := "active"
		if r.Closed() {
			status = fmt.Sprintf("closed %s (%s)", utils.DateTimeStamp(r.DisconnectedAt), r.Cause)
		}
		fmt.Printf("  %s [%s] %s connected %s, %s\n",
			r.RecordID, r.Transport, r.SessionID, utils.DateTimeStamp(r.ConnectedAt), status)
	}
}

func (a *serverApp) history() ([]*database.SessionRecord, error) {
	if srv := a.running(); srv != nil {
		return srv.History(historyLimit)
	}
	return a.store.ListSessions(historyLimit)
}

func (a *serverApp) showRecord() {
	recordID, ok := a.prompter.Ask("record id: ")
	if !ok || recordID == "" {
		return
	}
	r, err := a.store.GetSession(recordID)
	if err != nil {
		color.Red("%v", err)
		return
	}
	fmt.Printf("Session %s over %s\n", r.SessionID, r.Transport)
	fmt.Printf("  connected:    %s\n", utils.DateTimeStamp(r.ConnectedAt))
	if r.Closed() {
		fmt.Printf("  disconnected: %s (%s)\n", utils.DateTimeStamp(r.DisconnectedAt), r.Cause)
	} else {
		fmt.Println("  disconnected: -")
	}
	fmt.Printf("  published:    %d\n", r.Published)
	fmt.Printf("  topics:       %s\n", joinTopics(r.Topics))
}

// shutdown runs from the cleaner on exit or signal.
func (a *serverApp) shutdown(_ context.Context) error {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.mu.Unlock()
	if srv != nil {
		srv.StopAll()
	}
	return nil
}

func joinTopics(topics []string) string {
	if len(topics) == 0 {
		return "-"
	}
	return strings.Join(topics, ",")
}
