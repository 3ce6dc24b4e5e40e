package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
)

func TestReadConfigMissingCreatesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), ServerConfigFile)

	_, err := ReadConfig(path)
	var ce *e.ConfigError
	if !e.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("template was not written: %v", statErr)
	}

	config, err := ReadConfig(path)
	if err != nil {
		t.Fatalf("template should parse, got %v", err)
	}
	if port, err := config.PortNumber(); err != nil || port != 9000 {
		t.Errorf("expected template port 9000, got %d (%v)", port, err)
	}
}

func TestReadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ClientConfigFile)
	if err := os.WriteFile(path, []byte("{ip:"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := ReadConfig(path)
	var ce *e.ConfigError
	if !e.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestGetAndPort(t *testing.T) {
	tests := []struct {
		port    string
		want    int
		wantErr bool
	}{
		{"9000", 9000, false},
		{" 80 ", 80, false},
		{"abc", 0, true},
		{"0", 0, true},
		{"70000", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		c := &Config{IP: "127.0.0.1", Port: tt.port}
		got, err := c.PortNumber()
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("PortNumber(%q) = %d, %v; want %d, err=%v", tt.port, got, err, tt.want, tt.wantErr)
		}
	}

	c := &Config{}
	if _, err := c.Get("ip"); err == nil {
		t.Error("expected error for missing ip")
	}
	c.IP = "10.0.0.1"
	if ip, err := c.Get("ip"); err != nil || ip != "10.0.0.1" {
		t.Errorf("Get(ip) = %q, %v", ip, err)
	}
	if _, err := c.Get("nope"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestDurationsFallback(t *testing.T) {
	c := &Config{}
	if got := c.WriteTimeoutDuration(); got != DefaultWriteTimeout {
		t.Errorf("expected default write timeout, got %v", got)
	}
	c.SendGracePeriod = "250ms"
	if got := c.SendGraceDuration(); got != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", got)
	}
	if got := c.ConnectionLimit(); got != DefaultMaxConnections {
		t.Errorf("expected default connection limit, got %d", got)
	}
	if port, err := c.WebSocketPortNumber(); err != nil || port != 0 {
		t.Errorf("expected disabled ws port, got %d (%v)", port, err)
	}
}
