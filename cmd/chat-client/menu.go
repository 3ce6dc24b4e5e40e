package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/fatih/color"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/client"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/config"
	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/utils"
)

type clientApp struct {
	configPath string
	wsURL      string
	prompter   *utils.Prompter

	mu     sync.Mutex
	client *client.Client
}

func (a *clientApp) run() {
	title := color.New(color.FgCyan, color.Bold)
	for {
		_, _ = title.Println("\n== Chat Client ==")
		fmt.Println("1) Connect")
		fmt.Println("2) Register topic")
		fmt.Println("3) Leave topic")
		fmt.Println("4) Send message")
		fmt.Println("5) Disconnect")
		fmt.Println("0) Quit")

		choice, ok := a.prompter.Ask("> ")
		if !ok {
			return
		}

		var err error
		switch choice {
		case "1":
			err = a.connect()
		case "2":
			err = a.subscription(true)
		case "3":
			err = a.subscription(false)
		case "4":
			err = a.send()
		case "5":
			err = a.disconnect(context.Background())
		case "0":
			return
		default:
			fmt.Println("Unknown option")
		}
		if err != nil {
			color.Red("%v", err)
		}
	}
}

// current returns the live client, forgetting one whose connection ended.
func (a *clientApp) current() (*client.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil, e.ErrNotConnected
	}
	select {
	case <-a.client.Done():
		a.client = nil
		return nil, e.ErrDisconnected
	default:
		return a.client, nil
	}
}

func (a *clientApp) connect() error {
	if _, err := a.current(); err == nil {
		color.Yellow("Already connected")
		return nil
	}

	cfg, err := config.ReadConfig(a.configPath)
	if err != nil {
		return err
	}
	options := client.OptionsFromConfig(cfg)
	ctx := context.Background()

	var c *client.Client
	if a.wsURL != "" {
		c, err = client.DialWebSocket(ctx, a.wsURL, options)
	} else {
		ip, err := cfg.Get("ip")
		if err != nil {
			return err
		}
		port, err := cfg.PortNumber()
		if err != nil {
			return err
		}
		c, err = client.Dial(ctx, ip, port, options)
		if err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.client = c
	a.mu.Unlock()
	color.Green("Connected to %s", c.RemoteAddr())
	return nil
}

func (a *clientApp) subscription(register bool) error {
	c, err := a.current()
	if err != nil {
		return err
	}
	ctx := context.Background()

	// The listener prints the current list.
	if _, err := c.Topics(ctx); err != nil {
		return err
	}

	topic, ok := a.prompter.Ask("topic: ")
	if !ok {
		return nil
	}
	if register {
		_, err = c.Register(ctx, topic)
	} else {
		_, err = c.Leave(ctx, topic)
	}
	return err
}

func (a *clientApp) send() error {
	c, err := a.current()
	if err != nil {
		return err
	}
	topic, ok := a.prompter.Ask("topic: ")
	if !ok {
		return nil
	}
	content, ok := a.prompter.Ask("message: ")
	if !ok {
		return nil
	}
	return c.Send(topic, content)
}

func (a *clientApp) disconnect(ctx context.Context) error {
	a.mu.Lock()
	c := a.client
	a.client = nil
	a.mu.Unlock()

	if c == nil {
		return nil
	}
	if err := c.Close(ctx); err != nil {
		return err
	}
	color.Green("Disconnected")
	return nil
}
