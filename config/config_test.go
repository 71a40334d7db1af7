package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	old := os.Args
	os.Args = args
	t.Cleanup(func() {
		os.Args = old
	})
}

func TestGetConfigDefaultsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvmbridge.toml")
	data := `
[server]
addr = ":9090"
cors = true

[serial]
port = "/dev/ttyUSB0"
legacy_bauds = [9600, 19200]

[serial.ext]
address = 2

[mouse]
width = 2560
height = 1440
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	withArgs(t, "kvmbridge", path)

	config, err := GetConfig()
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if config.Server.Addr != ":9090" || !config.Server.Cors {
		t.Fatalf("Expected overridden server settings, got %+v", config.Server)
	}
	if config.Server.Path != "/events" {
		t.Fatalf("Expected default path, got %q", config.Server.Path)
	}
	if config.Serial.Port != "/dev/ttyUSB0" {
		t.Fatalf("Expected overridden port, got %q", config.Serial.Port)
	}
	if config.Serial.Baud != 115200 {
		t.Fatalf("Expected default baud, got %d", config.Serial.Baud)
	}
	if len(config.Serial.LegacyBauds) != 2 || config.Serial.LegacyBauds[1] != 19200 {
		t.Fatalf("Expected overridden legacy bauds, got %v", config.Serial.LegacyBauds)
	}
	if config.Serial.ConnectTimeout() != 5*time.Second {
		t.Fatalf("Expected 5s connect timeout, got %v", config.Serial.ConnectTimeout())
	}
	addr, err := config.Serial.Ext.GetAddress(0)
	if err != nil {
		t.Fatalf("Failed to read address: %v", err)
	}
	if addr != 2 {
		t.Fatalf("Expected address 2, got %d", addr)
	}
	if config.Mouse.Width != 2560 || config.Mouse.Height != 1440 {
		t.Fatalf("Expected overridden mouse size, got %+v", config.Mouse)
	}
	if !config.Mouse.Clamp {
		t.Fatal("Expected clamp to default to true")
	}
	if config.Keyboard.Type != KeyboardCH9329 || config.Keyboard.Layout != "us" {
		t.Fatalf("Expected default keyboard, got %+v", config.Keyboard)
	}
	if config.Keyboard.CharDelay() != 20*time.Millisecond {
		t.Fatalf("Expected 20ms char delay, got %v", config.Keyboard.CharDelay())
	}
	if config.Device.Type != DeviceSysfs || config.Device.HIDVID != "534d" {
		t.Fatalf("Expected default device filter, got %+v", config.Device)
	}
}

func TestGetConfigMissingFile(t *testing.T) {
	withArgs(t, "kvmbridge", filepath.Join(t.TempDir(), "nope.toml"))
	if _, err := GetConfig(); err == nil {
		t.Fatal("Expected an error for a missing config file")
	}
}

func TestSerialExt(t *testing.T) {
	ext := SerialExt{"address": int64(1), "reconfigure_delay_ms": "250"}

	addr, err := ext.GetAddress(0)
	if err != nil {
		t.Fatalf("Failed to read address: %v", err)
	}
	if addr != 1 {
		t.Fatalf("Expected address 1, got %d", addr)
	}

	delay, err := ext.GetReconfigureDelayMs(500)
	if err != nil {
		t.Fatalf("Failed to read delay: %v", err)
	}
	if delay != 250 {
		t.Fatalf("Expected delay 250, got %d", delay)
	}

	delay, err = SerialExt{}.GetReconfigureDelayMs(500)
	if err != nil {
		t.Fatalf("Failed to read default delay: %v", err)
	}
	if delay != 500 {
		t.Fatalf("Expected default delay 500, got %d", delay)
	}

	if _, err = (SerialExt{"address": int64(300)}).GetAddress(0); err == nil {
		t.Fatal("Expected an error for an out of range address")
	}
	if _, err = (SerialExt{"address": "xyz"}).GetAddress(0); err == nil {
		t.Fatal("Expected an error for a malformed address")
	}
}
