package config

import (
	"os"
	"time"

	"github.com/allape/kvmbridge/logger"
	"github.com/pelletier/go-toml/v2"
)

var log = logger.New("[config]")

const DefaultConfigPath = "kvmbridge.toml"

// PortAuto asks the daemon to locate the serial port through the device
// enumerator instead of a fixed path.
const PortAuto = "auto"

type KeyboardDriverType string

const (
	KeyboardNone   KeyboardDriverType = "none"
	KeyboardCH9329 KeyboardDriverType = "ch9329"
)

type MouseDriverType string

const (
	MouseNone   MouseDriverType = "none"
	MouseCH9329 MouseDriverType = "ch9329"
)

type DeviceDriverType string

const (
	DeviceNone  DeviceDriverType = "none"
	DeviceSysfs DeviceDriverType = "sysfs"
)

type Server struct {
	Addr string `toml:"addr"`
	Path string `toml:"path"`
	Cors bool   `toml:"cors"`
}

type Serial struct {
	Port              string    `toml:"port"`
	Baud              int       `toml:"baud"`
	LegacyBauds       []int     `toml:"legacy_bauds"`
	ConnectTimeoutMs  int       `toml:"connect_timeout_ms"`
	ResponseTimeoutMs int       `toml:"response_timeout_ms"`
	PollIntervalMs    int       `toml:"poll_interval_ms"`
	Ext               SerialExt `toml:"ext"`
}

func (s Serial) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutMs) * time.Millisecond
}

func (s Serial) ResponseTimeout() time.Duration {
	return time.Duration(s.ResponseTimeoutMs) * time.Millisecond
}

func (s Serial) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

type Keyboard struct {
	Type         KeyboardDriverType `toml:"type"`
	Layout       string             `toml:"layout"`
	CharDelayMs  int                `toml:"char_delay_ms"`
	AckTimeoutMs int                `toml:"ack_timeout_ms"`
}

func (k Keyboard) CharDelay() time.Duration {
	return time.Duration(k.CharDelayMs) * time.Millisecond
}

func (k Keyboard) AckTimeout() time.Duration {
	return time.Duration(k.AckTimeoutMs) * time.Millisecond
}

type Mouse struct {
	Type         MouseDriverType `toml:"type"`
	Width        int             `toml:"width"`
	Height       int             `toml:"height"`
	Clamp        bool            `toml:"clamp"`
	AckTimeoutMs int             `toml:"ack_timeout_ms"`
}

func (m Mouse) AckTimeout() time.Duration {
	return time.Duration(m.AckTimeoutMs) * time.Millisecond
}

type Device struct {
	Type           DeviceDriverType `toml:"type"`
	SerialVID      string           `toml:"serial_vid"`
	SerialPID      string           `toml:"serial_pid"`
	HIDVID         string           `toml:"hid_vid"`
	HIDPID         string           `toml:"hid_pid"`
	PollIntervalMs int              `toml:"poll_interval_ms"`
}

func (d Device) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalMs) * time.Millisecond
}

type Config struct {
	Server   Server   `toml:"server"`
	Serial   Serial   `toml:"serial"`
	Keyboard Keyboard `toml:"keyboard"`
	Mouse    Mouse    `toml:"mouse"`
	Device   Device   `toml:"device"`
}

func GetConfig() (Config, error) {
	configFile := DefaultConfigPath
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	log.Println("reading config file:", configFile)

	config := Config{
		Server: Server{
			Addr: ":8080",
			Path: "/events",
		},
		Serial: Serial{
			Port:              PortAuto,
			Baud:              115200,
			LegacyBauds:       []int{9600},
			ConnectTimeoutMs:  5000,
			ResponseTimeoutMs: 500,
			PollIntervalMs:    3000,
		},
		Keyboard: Keyboard{
			Type:        KeyboardCH9329,
			Layout:      "us",
			CharDelayMs: 20,
		},
		Mouse: Mouse{
			Type:   MouseCH9329,
			Width:  1920,
			Height: 1080,
			Clamp:  true,
		},
		Device: Device{
			Type:           DeviceSysfs,
			SerialVID:      "1a86",
			SerialPID:      "7523",
			HIDVID:         "534d",
			HIDPID:         "2109",
			PollIntervalMs: 2000,
		},
	}

	_, err := os.Stat(configFile)
	if err != nil {
		return config, err
	}

	configData, err := os.ReadFile(configFile)
	if err != nil {
		return config, err
	}

	err = toml.Unmarshal(configData, &config)
	if err != nil {
		return config, err
	}

	log.Println("use config:", config)

	return config, nil
}
