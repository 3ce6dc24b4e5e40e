package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/utils"
)

const (
	ServerConfigFile = "server-config.json"
	ClientConfigFile = "client-config.json"

	DefaultMaxConnections  = 10000
	DefaultWriteTimeout    = 5 * time.Second
	DefaultSendGracePeriod = 100 * time.Millisecond
	DefaultHistorySize     = 256
	DefaultHistoryTTL      = time.Hour
)

type Database struct {
	Enabled            bool   `json:"enabled"`
	Host               string `json:"host"`
	Port               uint64 `json:"port"`
	Username           string `json:"username"`
	Password           string `json:"password"`
	Database           string `json:"database"`
	UseTLS             bool   `json:"use_tls"`
	ConnectTimeout     string `json:"connect_timeout"`
	SocketTimeout      string `json:"socket_timeout"`
	ConnectIdleTimeout string `json:"connect_idle_timeout"`
	OperationTimeout   string `json:"operation_timeout"`
	Heartbeat          string `json:"heartbeat"`
	MinPoolSize        uint64 `json:"min_pool_size"`
	MaxPoolSize        uint64 `json:"max_pool_size"`
}

type Config struct {
	IP              string   `json:"ip"`
	Port            string   `json:"port"`
	WebSocketPort   string   `json:"ws_port,omitempty"`
	MaxConnections  int      `json:"max_connections,omitempty"`
	WriteTimeout    string   `json:"write_timeout,omitempty"`
	SendGracePeriod string   `json:"send_grace_period,omitempty"`
	HistorySize     int      `json:"history_size,omitempty"`
	HistoryTTL      string   `json:"history_ttl,omitempty"`
	DebugMode       bool     `json:"debug_mode"`
	LogPath         string   `json:"log_path"`
	Database        Database `json:"database"`
}

func template() Config {
	return Config{
		IP:              "127.0.0.1",
		Port:            "9000",
		MaxConnections:  DefaultMaxConnections,
		WriteTimeout:    "5s",
		SendGracePeriod: "100ms",
		HistorySize:     DefaultHistorySize,
		HistoryTTL:      "1h",
		LogPath:         "logs",
		Database: Database{
			Host:               "127.0.0.1",
			Port:               27017,
			Database:           "chat_broker",
			ConnectTimeout:     "10s",
			SocketTimeout:      "10s",
			ConnectIdleTimeout: "5m",
			OperationTimeout:   "5s",
			Heartbeat:          "10s",
			MinPoolSize:        1,
			MaxPoolSize:        10,
		},
	}
}

// ReadConfig loads path. A missing file is replaced by a template and
// reported as a ConfigError so the operator can edit it and retry.
func ReadConfig(path string) (*Config, error) {
	bytes, err := os.ReadFile(path)

	if err != nil {
		if os.IsNotExist(err) {
			data, _ := json.MarshalIndent(template(), "", "\t")
			_ = os.WriteFile(path, data, 0644)
		}
		return nil, &e.ConfigError{
			Key:     path,
			Message: "the configuration file does not exist and has been created",
			Hint:    "edit the configuration file and try again",
		}
	}

	config := &Config{}
	if err = json.Unmarshal(bytes, config); err != nil {
		return nil, &e.ConfigError{
			Key:     path,
			Message: "the configuration file does not contain valid JSON",
			Hint:    err.Error(),
		}
	}

	return config, nil
}

// Get returns the raw value of a required key ("ip" or "port").
func (c *Config) Get(key string) (string, error) {
	var value string
	switch key {
	case "ip":
		value = c.IP
	case "port":
		value = c.Port
	case "ws_port":
		value = c.WebSocketPort
	default:
		return "", &e.ConfigError{Key: key, Message: "unknown key"}
	}
	if strings.TrimSpace(value) == "" && key != "ws_port" {
		return "", &e.ConfigError{Key: key, Message: "missing value", Hint: "set \"" + key + "\" in the configuration file"}
	}
	return strings.TrimSpace(value), nil
}

// PortNumber validates and returns the "port" key.
func (c *Config) PortNumber() (int, error) {
	return parsePort("port", c.Port)
}

// WebSocketPortNumber returns 0 when the gateway is disabled.
func (c *Config) WebSocketPortNumber() (int, error) {
	if strings.TrimSpace(c.WebSocketPort) == "" {
		return 0, nil
	}
	return parsePort("ws_port", c.WebSocketPort)
}

func parsePort(key, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &e.ConfigError{Key: key, Message: "missing value"}
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &e.ConfigError{Key: key, Value: raw, Message: "port must be a number", Hint: "modify the port in the configuration file and try again"}
	}
	if port < 1 || port > 65535 {
		return 0, &e.ConfigError{Key: key, Value: port, Message: "port out of range 1-65535"}
	}
	return port, nil
}

func (c *Config) ConnectionLimit() int {
	if c.MaxConnections <= 0 {
		return DefaultMaxConnections
	}
	return c.MaxConnections
}

func (c *Config) WriteTimeoutDuration() time.Duration {
	return utils.ParseStringTimeOr(c.WriteTimeout, DefaultWriteTimeout)
}

func (c *Config) SendGraceDuration() time.Duration {
	return utils.ParseStringTimeOr(c.SendGracePeriod, DefaultSendGracePeriod)
}

func (c *Config) HistoryLimit() int {
	if c.HistorySize <= 0 {
		return DefaultHistorySize
	}
	return c.HistorySize
}

func (c *Config) HistoryTTLDuration() time.Duration {
	return utils.ParseStringTimeOr(c.HistoryTTL, DefaultHistoryTTL)
}
